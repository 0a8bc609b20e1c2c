package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/auth-template-service/internal/config"
	"github.com/iliyamo/auth-template-service/internal/logging"
	"github.com/iliyamo/auth-template-service/internal/model"
	"github.com/iliyamo/auth-template-service/internal/utils"
)

func newCodec(t *testing.T) *utils.TokenCodec {
	t.Helper()
	c, err := utils.NewTokenCodec("mw-secret", "HS256")
	require.NoError(t, err)
	return c
}

func issue(t *testing.T, c *utils.TokenCodec, kind utils.TokenKind, role model.Role, ttl time.Duration) string {
	t.Helper()
	tok, _, err := c.Issue(kind, utils.Subject{Username: "alice", Role: role, UserID: 42}, ttl)
	require.NoError(t, err)
	return tok
}

func serve(e *echo.Echo, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func protected(t *testing.T, codec *utils.TokenCodec, mws ...echo.MiddlewareFunc) *echo.Echo {
	t.Helper()
	e := echo.New()
	chain := append([]echo.MiddlewareFunc{JWTAuth(codec)}, mws...)
	e.GET("/p", func(c echo.Context) error {
		cl, ok := ClaimsFrom(c)
		require.True(t, ok)
		return c.JSON(http.StatusOK, echo.Map{"sub": cl.Subject, "user_id": c.Get(UserIDKey), "role": c.Get(RoleKey)})
	}, chain...)
	return e
}

func TestJWTAuth(t *testing.T) {
	codec := newCodec(t)
	e := protected(t, codec)

	rec := serve(e, http.MethodGet, "/p", issue(t, codec, utils.TokenKindAccess, model.RoleUser, time.Minute))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"sub":"alice","user_id":"42","role":"user"}`, rec.Body.String())

	cases := []struct {
		name   string
		bearer string
		msg    string
	}{
		{"missing", "", "missing bearer token"},
		{"garbage", "abc", "invalid token"},
		{"refresh token", issue(t, codec, utils.TokenKindRefresh, model.RoleUser, time.Minute), "invalid token"},
		{"expired", issue(t, codec, utils.TokenKindAccess, model.RoleUser, -time.Minute), "token has expired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(e, http.MethodGet, "/p", tc.bearer)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "Bearer", rec.Header().Get(echo.HeaderWWWAuthenticate))
			require.JSONEq(t, `{"error":"`+tc.msg+`"}`, rec.Body.String())
		})
	}
}

func TestJWTAuth_WrongScheme(t *testing.T) {
	codec := newCodec(t)
	e := protected(t, codec)

	req := httptest.NewRequest(http.MethodGet, "/p", nil)
	req.Header.Set(echo.HeaderAuthorization, "Basic YWxpY2U6cHc=")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	codec := newCodec(t)
	e := protected(t, codec, RequireRole(model.RoleAdmin))

	rec := serve(e, http.MethodGet, "/p", issue(t, codec, utils.TokenKindAccess, model.RoleUser, time.Minute))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(e, http.MethodGet, "/p", issue(t, codec, utils.TokenKindAccess, model.RoleAdmin, time.Minute))
	require.Equal(t, http.StatusOK, rec.Code)
}

func limited(cfg config.RateLimitConfig, rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, logging.Discard()))
	return e
}

func rlConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "ip_route",
		Prefix:         "rl:auth",
	}
}

func TestTokenBucket_BlocksAfterCapacity(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	e := limited(rlConfig(), rdb)

	for i, want := range []string{"1", "0"} {
		rec := serve(e, http.MethodPost, "/login", "")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		require.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, want, rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := serve(e, http.MethodPost, "/login", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Contains(t, rec.Body.String(), "rate limit exceeded")

	require.True(t, mr.Exists("rl:auth:ip:192.0.2.1:route:POST /login"))
}

func TestTokenBucket_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.SetError("LOADING")
	e := limited(rlConfig(), rdb)

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/login", "").Code)
	}
}

func TestTokenBucket_DisabledOrNoRedis(t *testing.T) {
	cfg := rlConfig()
	cfg.Capacity = 1
	e := limited(cfg, nil)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, serve(e, http.MethodPost, "/login", "").Code)
	}
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/v1/auth/login")

	cfg := rlConfig()
	require.Equal(t, "rl:auth:ip:10.0.0.1:route:POST /api/v1/auth/login", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	require.Equal(t, "rl:auth:user:anon", buildRateKey(cfg, c))

	c.Set(ClaimsKey, &utils.Claims{UserID: 9})
	require.Equal(t, "rl:auth:user:9", buildRateKey(cfg, c))
}
