package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/odontoapp/booking-api/internal/handler"
	"github.com/odontoapp/booking-api/internal/model"
	"github.com/odontoapp/booking-api/internal/service/auth"
)

const (
	ContextUserID = "user_id"
	ContextRole   = "user_role"
	ContextName   = "user_name"
)

type AuthMiddleware struct {
	authService *auth.Service
}

func NewAuthMiddleware(authService *auth.Service) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate verifies the bearer token and stores the typed caller
// identity in the request context. No global token state: every request
// carries its own credential.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.authService.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextName, claims.Name)
		c.Next()
	}
}

// RequireRole restricts a route to one account type.
func (m *AuthMiddleware) RequireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("insufficient role for this operation"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// CallerID returns the authenticated user's id from the request context.
func CallerID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ContextUserID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// CallerRole returns the authenticated user's role from the request context.
func CallerRole(c *gin.Context) model.Role {
	if v, ok := c.Get(ContextRole); ok {
		if role, ok := v.(model.Role); ok {
			return role
		}
	}
	return ""
}
