package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/verify-api/pkg/auth"
)

// ActorContextKey — ключ, под которым имя оператора сохраняется в
// контексте Gin после успешной аутентификации.
const ActorContextKey = "actor"

// AdminMiddleware защищает маршруты админ-панели. Принимает либо
// статический операторский токен из конфигурации, либо короткоживущий
// сессионный JWT, выпущенный через /api/admin/session.
type AdminMiddleware struct {
	operatorToken string
	sessions      *auth.SessionService
}

// NewAdminMiddleware создает новый middleware админ-доступа.
func NewAdminMiddleware(operatorToken string, sessions *auth.SessionService) *AdminMiddleware {
	return &AdminMiddleware{
		operatorToken: operatorToken,
		sessions:      sessions,
	}
}

// RequireAdmin проверяет Bearer токен в заголовке Authorization.
func (m *AdminMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			c.Abort()
			return
		}
		token := parts[1]

		// Статический операторский токен сравниваем в константное время
		if m.operatorToken != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(m.operatorToken)) == 1 {
			c.Set(ActorContextKey, "operator")
			c.Next()
			return
		}

		if m.sessions != nil {
			claims, err := m.sessions.ParseToken(token)
			if err == nil {
				c.Set(ActorContextKey, claims.Actor)
				c.Next()
				return
			}
		}

		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": "token_invalid"})
		c.Abort()
	}
}

// Actor возвращает имя оператора из контекста запроса.
func Actor(c *gin.Context) string {
	if actor, exists := c.Get(ActorContextKey); exists {
		if s, ok := actor.(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}
