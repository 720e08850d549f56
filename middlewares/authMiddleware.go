package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/payroll_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware reads an operator bearer token when present and stores the operator in the request context.
// A present but invalid token is rejected.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := strings.TrimSpace(c.Request.Header.Get("Authorization"))
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "bearer "
		if len(auth) <= len(bearer) || !strings.EqualFold(auth[:len(bearer)], bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, err := utils.JwtValidate(strings.TrimSpace(auth[len(bearer):]))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetOperatorInContext(c.Request.Context(), claim.Operator)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireOperator rejects requests AuthMiddleware did not authenticate.
func RequireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		if operator, ok := utils.GetOperatorFromContext(c.Request.Context()); !ok || operator == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
