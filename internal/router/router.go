// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-template-service/internal/handler"
	"github.com/iliyamo/auth-template-service/internal/middleware"
	"github.com/iliyamo/auth-template-service/internal/model"
)

// RegisterRoutes registers routes that need no authentication. Currently
// only the health check, which pings deps.
func RegisterRoutes(e *echo.Echo, deps ...handler.Pinger) {
	e.GET("/healthz", handler.Health(deps...))
}

// RegisterAuth registers /api/v1/auth. Login and refresh are anonymous;
// register needs an admin access token; password and me need any access
// token. limiter, when non-nil, guards every route and runs after the
// bearer guard on protected ones, so per-user rate keys see the caller.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.TokenVerifier, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/v1/auth")
	bearer := middleware.JWTAuth(v)
	chain := func(mw ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
		if limiter == nil {
			return mw
		}
		return append(mw, limiter)
	}

	g.POST("/login", a.Login, chain()...)
	g.POST("/refresh", a.Refresh, chain()...)
	g.POST("/register", a.Register, append(chain(bearer), middleware.RequireRole(model.RoleAdmin))...)
	g.POST("/password", a.ChangePassword, chain(bearer)...)
	g.GET("/me", a.Me, chain(bearer)...)
}

// RegisterTasks registers the broker demo endpoint for authenticated users.
func RegisterTasks(e *echo.Echo, t *handler.TaskHandler, v middleware.TokenVerifier) {
	g := e.Group("/api/v1/test", middleware.JWTAuth(v))
	g.POST("/push_task", t.PushTask)
}
