package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product は商品情報を表すモデル
type Product struct {
	ID          string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name        string          `json:"name" gorm:"type:varchar(255);uniqueIndex;not null"`
	Description string          `json:"description" gorm:"type:text;not null"`
	Price       decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Stock       int             `json:"stock" gorm:"not null;default:0"`
	Category    string          `json:"category" gorm:"type:varchar(100);not null;index"`
	ImageURL    string          `json:"imageUrl,omitempty" gorm:"type:varchar(1024)"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// ProductRequest は商品の作成・更新リクエスト
type ProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description" binding:"required"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category" binding:"required"`
	ImageURL    string          `json:"imageUrl"`
}

// ProductListResponse は商品一覧のレスポンス
type ProductListResponse struct {
	Products   []Product `json:"products"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
	TotalItems int       `json:"totalItems"`
}
