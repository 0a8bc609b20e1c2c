package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-template-service/internal/utils"
)

// Context keys set by JWTAuth.
const (
	ClaimsKey = "claims"
	UserIDKey = "user_id"
	RoleKey   = "role"
)

// ClaimsFrom returns the verified access-token claims of the request.
func ClaimsFrom(c echo.Context) (*utils.Claims, bool) {
	cl, ok := c.Get(ClaimsKey).(*utils.Claims)
	return cl, ok && cl != nil
}

// userID returns the caller's id for rate-limit keys, or "anon".
func userID(c echo.Context) string {
	if cl, ok := ClaimsFrom(c); ok {
		return strconv.FormatUint(cl.UserID, 10)
	}
	return "anon"
}
