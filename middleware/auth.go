package middleware

import (
	"context"
	"errors"
	"net/http"

	"visitor-kiosk/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const OperatorKey = "operator"

// Authenticator checks operator credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.Operator, error)
}

// OperatorAuth guards dashboard routes with HTTP basic auth. Browsers
// cannot set headers on a websocket upgrade, so ?u=&p= is accepted there.
func OperatorAuth(auth Authenticator, invalid error, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok && c.GetHeader("Upgrade") == "websocket" {
			user, pass = c.Query("u"), c.Query("p")
			ok = user != ""
		}
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="kiosk dashboard"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authentication required"})
			return
		}

		op, err := auth.Authenticate(c.Request.Context(), user, pass)
		if err != nil {
			if !errors.Is(err, invalid) {
				logger.Error("operator auth failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "authentication unavailable"})
				return
			}
			c.Header("WWW-Authenticate", `Basic realm="kiosk dashboard"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
			return
		}
		c.Set(OperatorKey, op)
		c.Next()
	}
}
