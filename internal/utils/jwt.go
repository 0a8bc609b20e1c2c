package utils // package utils provides the password hasher and the token codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/auth-template-service/internal/model"
)

// TokenKind tells access and refresh tokens apart. Both are encoded the
// same way; only the ttl and the `typ` claim differ.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

var (
	// ErrExpiredToken means the signature is valid but exp has passed.
	ErrExpiredToken = errors.New("token has expired")
	// ErrMalformedToken covers bad structure, bad signature, wrong algorithm
	// and a missing subject.
	ErrMalformedToken = errors.New("malformed token")
)

// Subject is the identity embedded in a token.
type Subject struct {
	Username string
	Role     model.Role
	UserID   uint64
}

// Claims is the decoded payload. On the wire: sub (username), role,
// id (user id), typ, exp, iat and jti.
type Claims struct {
	Role   model.Role `json:"role"`
	UserID uint64     `json:"id"`
	Kind   TokenKind  `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// Identity reassembles the subject carried by the claims.
func (c *Claims) Identity() Subject {
	return Subject{Username: c.Subject, Role: c.Role, UserID: c.UserID}
}

// TokenCodec signs and verifies HMAC JWTs with a shared secret. It is safe
// for concurrent use.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	parser *jwt.Parser
	now    func() time.Time
}

// NewTokenCodec builds a codec for one of HS256, HS384 or HS512.
func NewTokenCodec(secret, algorithm string) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	method, ok := jwt.GetSigningMethod(algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", algorithm)
	}
	c := &TokenCodec{secret: []byte(secret), method: method, now: time.Now}
	c.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return c.now() }),
	)
	return c, nil
}

// Issue signs a token of the given kind for s that expires ttl from now. It
// returns the compact token and its expiry, truncated to whole seconds the
// same way the exp claim is.
func (c *TokenCodec) Issue(kind TokenKind, s Subject, ttl time.Duration) (string, time.Time, error) {
	now := c.now().UTC()
	exp := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		Role:   s.Role,
		UserID: s.UserID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Username,
			ExpiresAt: exp,
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp.Time, nil
}

// Verify checks signature, algorithm and expiry, then returns the claims.
// Errors are always ErrExpiredToken or wrap ErrMalformedToken.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	if _, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub claim", ErrMalformedToken)
	}
	return claims, nil
}
