package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/verify-api/internal/service"
)

// ExtractPhoneParam создает middleware для извлечения и валидации
// E.164 номера из параметра URL.
// paramName - имя параметра в URL (например, "phone").
// contextKey - ключ, под которым значение будет сохранено в контексте Gin.
func ExtractPhoneParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		phone := c.Param(paramName)
		if !service.IsE164(phone) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":      fmt.Sprintf("Invalid %s: must be E.164, e.g. +15550001111", paramName),
				"error_type": "validation_error",
			})
			c.Abort()
			return
		}
		c.Set(contextKey, phone)
		c.Next()
	}
}
