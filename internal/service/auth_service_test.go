package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auth-template-service/internal/logging"
	"github.com/iliyamo/auth-template-service/internal/model"
	"github.com/iliyamo/auth-template-service/internal/utils"
)

const (
	accessTTL  = 30 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

type authFixture struct {
	svc    *AuthService
	users  *memUsers
	tokens *memTokens
	codec  *utils.TokenCodec
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	codec, err := utils.NewTokenCodec("test-secret", "HS256")
	require.NoError(t, err)
	users, tokens := newMemUsers(), newMemTokens()
	hasher := utils.NewPasswordHasher(bcrypt.MinCost, 2)
	return &authFixture{
		svc:    NewAuthService(users, tokens, hasher, codec, accessTTL, refreshTTL, logging.Discard()),
		users:  users,
		tokens: tokens,
		codec:  codec,
	}
}

func TestRegisterThenLogin(t *testing.T) {
	cases := []struct {
		name     string
		username string
		password string
		role     model.Role
	}{
		{"user", "alice", "s3cret", model.RoleUser},
		{"admin", "root", "p@ss word", model.RoleAdmin},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAuthFixture(t)
			ctx := context.Background()

			u, err := f.svc.Register(ctx, tc.username, tc.password, tc.role)
			require.NoError(t, err)
			require.NotEqual(t, tc.password, u.PasswordHash)

			pair, err := f.svc.Login(ctx, tc.username, tc.password)
			require.NoError(t, err)
			require.Equal(t, "bearer", pair.TokenType)

			claims, err := f.codec.Verify(pair.AccessToken)
			require.NoError(t, err)
			assert.Equal(t, tc.username, claims.Subject)
			assert.Equal(t, tc.role, claims.Role)
			assert.Equal(t, u.ID, claims.UserID)
			assert.Equal(t, utils.TokenKindAccess, claims.Kind)
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "bob", "one", model.RoleUser)
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "bob", "two", model.RoleAdmin)
	require.ErrorIs(t, err, ErrUserAlreadyExists)
	_, err = f.svc.Register(ctx, "bob", "one", model.RoleUser)
	require.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestRegister_LostInsertRaceIsAlreadyExists(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "bob", "one", model.RoleUser)
	require.NoError(t, err)

	racy := NewAuthService(racyUsers{f.users}, f.tokens, utils.NewPasswordHasher(bcrypt.MinCost, 1), f.codec, accessTTL, refreshTTL, nil)
	_, err = racy.Register(ctx, "bob", "two", model.RoleUser)
	require.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestRegister_Validation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "  ", "pw", model.RoleUser)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Register(ctx, "carol", "", model.RoleUser)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Register(ctx, "carol", "pw", model.Role("owner"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegister_StoresNormalizedRole(t *testing.T) {
	f := newAuthFixture(t)

	u, err := f.svc.Register(context.Background(), "dave", "pw", model.Role(" Admin "))
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, u.Role)

	stored, err := f.users.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, stored.Role)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "alice", "right", model.RoleUser)
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "alice", "wrong")
	_, unknownUser := f.svc.Login(ctx, "mallory", "right")

	require.ErrorIs(t, wrongPassword, ErrAuthenticationFailed)
	require.ErrorIs(t, unknownUser, ErrAuthenticationFailed)
	require.Equal(t, wrongPassword.Error(), unknownUser.Error())
	require.Equal(t, ReasonBadCredentials, wrongPassword.Error())

	var ae *AuthError
	require.ErrorAs(t, unknownUser, &ae)
	require.Equal(t, ReasonBadCredentials, ae.Reason)
}

func TestLogin_TokenExpiryHorizons(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "alice", "pw", model.RoleUser)
	require.NoError(t, err)

	pair, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	access, err := f.codec.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, accessTTL, access.ExpiresAt.Sub(access.IssuedAt.Time))

	refresh, err := f.codec.Verify(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, refreshTTL, refresh.ExpiresAt.Sub(refresh.IssuedAt.Time))
	require.Equal(t, utils.TokenKindRefresh, refresh.Kind)

	stored, found, err := f.tokens.GetByUserID(ctx, refresh.UserID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, pair.RefreshToken, stored.Token)
	require.True(t, stored.ExpiresAt.Equal(refresh.ExpiresAt.Time))
}

func TestRefresh_SupersededTokenRejected(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "alice", "pw", model.RoleUser)
	require.NoError(t, err)

	first, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.Equal(t, ReasonInvalid, err.Error())

	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_RepeatableAndDoesNotRotate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "alice", "pw", model.RoleAdmin)
	require.NoError(t, err)
	pair, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	seen := map[string]bool{pair.AccessToken: true}
	for i := 0; i < 3; i++ {
		got, err := f.svc.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.Equal(t, pair.RefreshToken, got.RefreshToken)
		require.Equal(t, "bearer", got.TokenType)
		require.False(t, seen[got.AccessToken], "access token must be freshly issued")
		seen[got.AccessToken] = true

		claims, err := f.codec.Verify(got.AccessToken)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Subject)
		require.Equal(t, model.RoleAdmin, claims.Role)
	}
}

func TestRefresh_Rejections(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	u, err := f.svc.Register(ctx, "alice", "pw", model.RoleUser)
	require.NoError(t, err)
	pair, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	sub := utils.Subject{Username: u.Username, Role: u.Role, UserID: u.ID}
	expired, _, err := f.codec.Issue(utils.TokenKindRefresh, sub, -time.Minute)
	require.NoError(t, err)
	ghost, _, err := f.codec.Issue(utils.TokenKindRefresh, utils.Subject{Username: "ghost", Role: model.RoleUser, UserID: 999}, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		token  string
		reason string
	}{
		{"expired", expired, ReasonExpired},
		{"garbage", "not-a-jwt", ReasonInvalid},
		{"access token", pair.AccessToken, ReasonInvalid},
		{"unknown user", ghost, ReasonUserNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Refresh(ctx, tc.token)
			require.ErrorIs(t, err, ErrAuthenticationFailed)
			require.Equal(t, tc.reason, err.Error())
		})
	}
}

func TestRefresh_NoStoredToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	u, err := f.svc.Register(ctx, "alice", "pw", model.RoleUser)
	require.NoError(t, err)

	// Validly signed, but never stored by a login.
	tok, _, err := f.codec.Issue(utils.TokenKindRefresh, utils.Subject{Username: u.Username, Role: u.Role, UserID: u.ID}, time.Hour)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, tok)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.Equal(t, ReasonInvalid, err.Error())
}

func TestRefresh_DeletedUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	u, err := f.svc.Register(ctx, "alice", "pw", model.RoleUser)
	require.NoError(t, err)
	pair, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	f.users.delete(u.ID)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.Equal(t, ReasonUserNotFound, err.Error())
}

func TestInfrastructureErrorsAreNotAuthFailures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, "alice", "pw", model.RoleUser)
	require.NoError(t, err)
	pair, err := f.svc.Login(ctx, "alice", "pw")
	require.NoError(t, err)

	down := errors.New("connection refused")
	f.users.err = down

	_, err = f.svc.Login(ctx, "alice", "pw")
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, ErrAuthenticationFailed)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, ErrAuthenticationFailed)

	_, err = f.svc.Register(ctx, "bob", "pw", model.RoleUser)
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, ErrUserAlreadyExists)
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	u, err := f.svc.Register(ctx, "alice", "old", model.RoleUser)
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, u.ID, "wrong", "new")
	require.ErrorIs(t, err, ErrAuthenticationFailed)

	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, "old", "new"))

	_, err = f.svc.Login(ctx, "alice", "old")
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	_, err = f.svc.Login(ctx, "alice", "new")
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.ChangePassword(ctx, u.ID, "new", ""), ErrInvalidInput)
	require.ErrorIs(t, f.svc.ChangePassword(ctx, 404, "new", "x"), ErrAuthenticationFailed)
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.EnsureAdmin(ctx, "root", "pw"))
	require.NoError(t, f.svc.EnsureAdmin(ctx, "root", "other"))

	u, err := f.users.GetByUsername(ctx, "root")
	require.NoError(t, err)
	require.Equal(t, model.RoleAdmin, u.Role)
}
