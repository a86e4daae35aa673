package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/service"
	"realtime_chat/pkg/logger"
)

const (
	ContextUserID   = "user_id"
	ContextIdentity = "identity"
)

type AuthMiddleware struct {
	authService service.AuthService
	log         logger.Logger
}

func NewAuthMiddleware(authService service.AuthService, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		log:         log,
	}
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		identity, err := m.authService.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			m.log.Debug("Rejected request token", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextIdentity, identity)
		c.Next()
	}
}

// UserID возвращает пользователя, установленного RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

func Identity(c *gin.Context) (domain.Identity, bool) {
	value, ok := c.Get(ContextIdentity)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}
