package service

import "errors"

var (
	// ErrUserAlreadyExists is returned by Register for a taken username.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrAuthenticationFailed is the umbrella for every credential or token
	// failure. Match it with errors.Is; the concrete value is an *AuthError.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvalidInput rejects empty usernames or passwords.
	ErrInvalidInput = errors.New("invalid input")
)

// Caller-visible reasons carried by AuthError.
const (
	ReasonBadCredentials = "incorrect username or password"
	ReasonExpired        = "refresh token has expired"
	ReasonInvalid        = "invalid refresh token"
	ReasonUserNotFound   = "user not found"
)

// AuthError is an authentication failure with a message safe to show to
// the caller. It never says whether a username exists.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// Is makes errors.Is(err, ErrAuthenticationFailed) true for every AuthError.
func (e *AuthError) Is(target error) bool { return target == ErrAuthenticationFailed }

func authFailed(reason string) error { return &AuthError{Reason: reason} }
