package middleware

import (
	"context"
	"errors"
	"slices"
	"strings"

	"followpro/api/internal/model"
	"followpro/api/internal/service"
	"followpro/api/pkg/response"
	"followpro/api/pkg/security"

	"github.com/gin-gonic/gin"
)

// TokenVerifier checks an access token and returns its subject
type TokenVerifier interface {
	Verify(token string, kind security.TokenKind) (string, error)
}

// RoleResolver looks up the current role of a user
type RoleResolver interface {
	Role(ctx context.Context, userID string) (model.Role, error)
}

// NewJWTMiddleware requires a valid bearer access token and sets userID
func NewJWTMiddleware(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")

		scheme, tokenStr, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
			response.Error(c, &service.AuthError{
				Kind:    service.KindUnauthenticated,
				Message: "No bearer token provided",
			})
			return
		}

		userID, err := tokens.Verify(strings.TrimSpace(tokenStr), security.AccessToken)
		if err != nil {
			msg := service.ErrUnauthenticated.Message
			if errors.Is(err, security.ErrTokenExpired) {
				msg = "Authorization token expired. Please log in again"
			}

			response.Error(c, &service.AuthError{Kind: service.KindUnauthenticated, Message: msg})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// Authorize must run after NewJWTMiddleware. It resolves the caller's role
// from storage and rejects roles outside allowed with 403.
func Authorize(roles RoleResolver, allowed ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			response.Error(c, service.ErrUnauthenticated)
			return
		}

		role, err := roles.Role(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				response.Error(c, service.ErrUnauthenticated)
				return
			}

			response.Error(c, err)
			return
		}

		if !slices.Contains(allowed, role) {
			response.Error(c, service.ErrForbidden)
			return
		}

		c.Set("role", role)
		c.Next()
	}
}
