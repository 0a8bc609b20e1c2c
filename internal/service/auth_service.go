package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/auth-template-service/internal/model"
	"github.com/iliyamo/auth-template-service/internal/repository"
	"github.com/iliyamo/auth-template-service/internal/utils"
)

// UserStore is the user persistence the orchestrator needs. Missing rows
// are reported as repository.ErrNotFound and duplicate usernames as
// repository.ErrAlreadyExists.
type UserStore interface {
	Create(ctx context.Context, nu model.NewUser) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByUsername(ctx context.Context, username string) (model.User, error)
	UpdatePasswordHash(ctx context.Context, id uint64, hash string) (model.User, error)
}

// RefreshTokenStore keeps the single active refresh token of each user.
type RefreshTokenStore interface {
	Upsert(ctx context.Context, userID uint64, token string, expiresAt time.Time) (model.RefreshToken, error)
	GetByUserID(ctx context.Context, userID uint64) (model.RefreshToken, bool, error)
}

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Verify(ctx context.Context, hash, plain string) (bool, error)
}

// Codec issues and verifies signed tokens.
type Codec interface {
	Issue(kind utils.TokenKind, s utils.Subject, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (*utils.Claims, error)
}

// TokenType is the fixed token_type marker returned with every pair.
const TokenType = "bearer"

// TokenPair is the result of Login and Refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// AuthService implements registration, login, refresh and password change
// on top of the stores, the hasher and the codec.
type AuthService struct {
	users      UserStore
	tokens     RefreshTokenStore
	hasher     Hasher
	codec      Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        *slog.Logger
}

// NewAuthService wires the orchestrator. ttls come from config.SecurityConfig.
func NewAuthService(users UserStore, tokens RefreshTokenStore, hasher Hasher, codec Codec, accessTTL, refreshTTL time.Duration, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{
		users:      users,
		tokens:     tokens,
		hasher:     hasher,
		codec:      codec,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        log.With("component", "auth"),
	}
}

// Register creates a user with the given role. A taken username yields
// ErrUserAlreadyExists whatever the password or role.
func (s *AuthService) Register(ctx context.Context, username, password string, role model.Role) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.User{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	role, err := model.ParseRole(string(role))
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	_, err = s.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
		return model.User{}, ErrUserAlreadyExists
	case !errors.Is(err, repository.ErrNotFound):
		return model.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, model.NewUser{Username: username, PasswordHash: hash, Role: role})
	if err != nil {
		// Lost the race with a concurrent registration.
		if errors.Is(err, repository.ErrAlreadyExists) {
			return model.User{}, ErrUserAlreadyExists
		}
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	s.log.InfoContext(ctx, "user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

// Login checks the credentials, issues an access and a refresh token and
// stores the refresh token as the only valid one for the user.
func (s *AuthService) Login(ctx context.Context, username, password string) (TokenPair, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.InfoContext(ctx, "login rejected", "cause", "unknown user")
			return TokenPair{}, authFailed(ReasonBadCredentials)
		}
		return TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}
	ok, err := s.hasher.Verify(ctx, u.PasswordHash, password)
	if err != nil {
		return TokenPair{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.log.InfoContext(ctx, "login rejected", "cause", "wrong password", "user_id", u.ID)
		return TokenPair{}, authFailed(ReasonBadCredentials)
	}

	sub := subjectOf(u)
	access, _, err := s.codec.Issue(utils.TokenKindAccess, sub, s.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, exp, err := s.codec.Issue(utils.TokenKindRefresh, sub, s.refreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if _, err := s.tokens.Upsert(ctx, u.ID, refresh, exp); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}
	s.log.InfoContext(ctx, "login succeeded", "user_id", u.ID)
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: TokenType}, nil
}

// Refresh exchanges a refresh token for a new access token. Only the token
// stored by the latest login is honoured, and it is handed back unchanged:
// refresh tokens rotate on login only.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		if errors.Is(err, utils.ErrExpiredToken) {
			return TokenPair{}, authFailed(ReasonExpired)
		}
		s.log.DebugContext(ctx, "refresh rejected", "error", err)
		return TokenPair{}, authFailed(ReasonInvalid)
	}
	if claims.Kind != utils.TokenKindRefresh {
		return TokenPair{}, authFailed(ReasonInvalid)
	}

	u, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, authFailed(ReasonUserNotFound)
		}
		return TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}

	stored, found, err := s.tokens.GetByUserID(ctx, u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("load refresh token: %w", err)
	}
	if !found || stored.Token != refreshToken {
		s.log.InfoContext(ctx, "refresh rejected", "cause", "superseded or unknown token", "user_id", u.ID)
		return TokenPair{}, authFailed(ReasonInvalid)
	}

	access, _, err := s.codec.Issue(utils.TokenKindAccess, subjectOf(u), s.accessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refreshToken, TokenType: TokenType}, nil
}

// ChangePassword replaces the password of userID after checking the
// current one. Issued tokens stay valid.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, current, next string) error {
	if next == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return authFailed(ReasonUserNotFound)
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	ok, err := s.hasher.Verify(ctx, u.PasswordHash, current)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return authFailed(ReasonBadCredentials)
	}
	hash, err := s.hasher.Hash(ctx, next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return authFailed(ReasonUserNotFound)
		}
		return fmt.Errorf("update password: %w", err)
	}
	s.log.InfoContext(ctx, "password changed", "user_id", u.ID)
	return nil
}

// EnsureAdmin registers username as an admin unless it already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.Register(ctx, username, password, model.RoleAdmin)
	if errors.Is(err, ErrUserAlreadyExists) {
		return nil
	}
	return err
}

func subjectOf(u model.User) utils.Subject {
	return utils.Subject{Username: u.Username, Role: u.Role, UserID: u.ID}
}
