package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/syncbridge/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// HeaderAdminToken carries the shared secret for operational endpoints
const HeaderAdminToken = "X-Admin-Token"

// AdminToken guards operational endpoints with a shared secret. An empty
// configured token disables the endpoints outright rather than leaving them
// open.
func AdminToken(token string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "admin endpoints not configured"))
			return
		}

		provided := c.GetHeader(HeaderAdminToken)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			logger.Warn("admin endpoint rejected, invalid token",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeUnauthorized, "invalid admin token"))
			return
		}

		c.Next()
	}
}
