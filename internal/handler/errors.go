package handler

import (
	"errors"
	"net/http"

	"furniture-store/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// errorMapping はワークフローのエラーとHTTPステータスの対応
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{service.ErrUnauthorized, http.StatusForbidden, "forbidden"},
	{service.ErrNotFound, http.StatusNotFound, "not_found"},
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{service.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{service.ErrAlreadyCancelled, http.StatusConflict, "already_cancelled"},
	{service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{service.ErrConflict, http.StatusConflict, "conflict"},
}

// respondError はエラーをステータスコード付きのJSONで返す
func respondError(c *gin.Context, err error) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			c.JSON(m.status, gin.H{"error": m.code, "message": err.Error()})
			return
		}
	}

	zerolog.Ctx(c.Request.Context()).Error().Err(err).
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Msg("unhandled error")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Internal server error"})
}

// respondBindError はリクエストボディの不正を 400 で返す
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "Invalid request body: " + err.Error()})
}
