package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-template-service/internal/utils"
)

// TokenVerifier is implemented by *utils.TokenCodec.
type TokenVerifier interface {
	Verify(token string) (*utils.Claims, error)
}

// JWTAuth validates a Bearer access token and stores its claims in the
// context under ClaimsKey, with the user id and role also under UserIDKey
// and RoleKey. Refresh tokens are rejected.
func JWTAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, found := strings.Cut(auth, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
				return unauthorized(c, "missing bearer token")
			}

			claims, err := v.Verify(strings.TrimSpace(raw))
			if err != nil {
				if errors.Is(err, utils.ErrExpiredToken) {
					return unauthorized(c, "token has expired")
				}
				return unauthorized(c, "invalid token")
			}
			if claims.Kind != utils.TokenKindAccess {
				return unauthorized(c, "invalid token")
			}

			c.Set(ClaimsKey, claims)
			c.Set(UserIDKey, strconv.FormatUint(claims.UserID, 10))
			c.Set(RoleKey, string(claims.Role))
			return next(c)
		}
	}
}

func unauthorized(c echo.Context, msg string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": msg})
}
