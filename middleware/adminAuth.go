package middleware

import (
	"net/http"
	"strings"

	"travelpay/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Context keys set by JWTAuthAdminMiddleware.
const (
	AdminSubjectKey = "adminSubject"
	IsAdminKey      = "isAdmin"
)

// JWTAuthAdminMiddleware admits bearer tokens signed with JWT_SECRET whose role claim is admin.
func JWTAuthAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		subject, role, err := utils.ExtractClaims(tokenString)
		if err != nil {
			zap.L().Warn("Rejected admin token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		if role != utils.AdminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Unauthorized admin access"})
			return
		}

		c.Set(AdminSubjectKey, subject)
		c.Set(IsAdminKey, true)
		c.Next()
	}
}
