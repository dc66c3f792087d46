package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tsafe/backend/internal/interfaces/http/dto"
)

// abortWithError stops the chain with the standard error envelope.
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message, c.GetString(RequestIDKey)))
}
