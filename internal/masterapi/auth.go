package masterapi

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware validates bearer tokens against MASTER_API_TOKEN. When
// the variable is unset every request passes (dev mode); the status
// surface is local ops telemetry, but a token keeps a shared host honest.
func AuthMiddleware() gin.HandlerFunc {
	token := os.Getenv("MASTER_API_TOKEN")

	if token == "" && os.Getenv("GIN_MODE") == "release" {
		logrus.Warn("[API] MASTER_API_TOKEN is not set in release mode; " +
			"the status surface is unauthenticated")
	}

	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Missing Authorization header",
				"hint":  "Use: Authorization: Bearer <MASTER_API_TOKEN>",
			})
			c.Abort()
			return
		}

		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid Authorization header format"})
			c.Abort()
			return
		}

		// Constant-time comparison prevents timing-based token
		// enumeration.
		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
