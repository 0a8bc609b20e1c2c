package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auth-template-service/internal/middleware"
	"github.com/iliyamo/auth-template-service/internal/model"
	"github.com/iliyamo/auth-template-service/internal/service"
)

// requestTimeout bounds the store calls made by a single request.
const requestTimeout = 5 * time.Second

// AuthService is the part of *service.AuthService used by the handlers.
type AuthService interface {
	Register(ctx context.Context, username, password string, role model.Role) (model.User, error)
	Login(ctx context.Context, username, password string) (service.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (service.TokenPair, error)
	ChangePassword(ctx context.Context, userID uint64, current, next string) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth AuthService
	Log  *slog.Logger
}

func NewAuthHandler(auth AuthService, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{Auth: auth, Log: log}
}

// ----- DTOs -----

// Passwords are capped at 72 bytes, the most bcrypt accepts.
type registerReq struct {
	Username string `json:"username" validate:"required,max=128"`
	Password string `json:"password" validate:"required,maxbytes=72"`
	Role     string `json:"role"` // user | admin, defaults to user
}

// loginReq binds from an OAuth2-style form or from JSON.
type loginReq struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token" validate:"required"`
}

type passwordReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,maxbytes=72"`
}

type userResp struct {
	ID       uint64     `json:"id"`
	Username string     `json:"username"`
	Role     model.Role `json:"role"`
}

// Register creates a user. Admins only.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username is required"})
	}
	role := model.RoleUser
	if req.Role != "" {
		r, err := model.ParseRole(req.Role)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be user or admin"})
		}
		role = r
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Auth.Register(ctx, req.Username, req.Password, role)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, userResp{ID: u.ID, Username: u.Username, Role: u.Role})
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Refresh returns a fresh access token alongside the same refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// ChangePassword replaces the caller's password (protected).
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	cl, ok := middleware.ClaimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req passwordReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": validationMessage(err)})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, cl.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me echoes the identity of the access token.
func (h *AuthHandler) Me(c echo.Context) error {
	cl, ok := middleware.ClaimsFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := cl.Identity()
	return c.JSON(http.StatusOK, userResp{ID: id.UserID, Username: id.Username, Role: id.Role})
}

// fail maps service errors to responses. Unknown errors are logged and
// reported without detail.
func (h *AuthHandler) fail(c echo.Context, err error) error {
	var ae *service.AuthError
	switch {
	case errors.As(err, &ae):
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": ae.Reason})
	case errors.Is(err, service.ErrUserAlreadyExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "user already exists"})
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	h.Log.ErrorContext(c.Request().Context(), "request failed",
		"method", c.Request().Method, "path", c.Path(), "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}
