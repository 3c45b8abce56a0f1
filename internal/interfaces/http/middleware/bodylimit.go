package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// BodyLimit caps request body size on the admin endpoints. Webhook intake has
// its own limit inside the signature middleware, where the body is buffered.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeBadRequest, "request body exceeds maximum allowed size"))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
