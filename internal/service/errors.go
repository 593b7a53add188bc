package service

import "errors"

// ワークフロー共通のエラー。呼び出し側は errors.Is で判定する
var (
	ErrUnauthenticated   = errors.New("not authenticated")
	ErrUnauthorized      = errors.New("not authorized")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyCancelled  = errors.New("order is already cancelled")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
)
