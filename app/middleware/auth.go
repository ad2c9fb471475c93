package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
	"github.com/vibast-solutions/ms-go-accounts/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// AccessTokenCookie is the cookie the login endpoint sets and this
// middleware reads. The Authorization header is the fallback for clients
// that do not carry cookies.
const AccessTokenCookie = "accessToken"

type accessTokenVerifier interface {
	VerifyAccessToken(tokenString string) (*service.AccessClaims, error)
}

type userResolver interface {
	FindByID(ctx context.Context, id uint64) (*entity.User, error)
}

type AuthMiddleware struct {
	tokens accessTokenVerifier
	users  userResolver
}

func NewAuthMiddleware(tokens accessTokenVerifier, users userResolver) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := extractToken(c)
		if tokenString == "" {
			logrus.Debug("Missing access token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing access token",
			})
		}

		claims, err := m.tokens.VerifyAccessToken(tokenString)
		if err != nil {
			logrus.Debug("Invalid or expired access token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid or expired token",
			})
		}

		user, err := m.users.FindByID(c.Request().Context(), claims.UserID)
		if err != nil {
			logrus.WithError(err).Error("Failed to resolve user for access token")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
		}
		if user == nil {
			logrus.WithField("user_id", claims.UserID).Debug("Access token for unknown user")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid or expired token",
			})
		}

		c.Set("user_id", user.ID)
		c.Set("user", user)

		return next(c)
	}
}

func extractToken(c echo.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
