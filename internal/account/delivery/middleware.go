package delivery

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/usemox/mox/internal/account/usecase"
)

// AuthMiddleware accepts a Bearer token, or ?token= for EventSource
// clients that cannot set headers, and stores the account id as
// "accountID".
func AuthMiddleware(accounts usecase.AccountUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
				c.Abort()
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		accountID, err := accounts.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("accountID", accountID)
		c.Next()
	}
}
