package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type Claims struct {
	Kind TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

type TokenIssuerOpts struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now overrides the clock, mostly for tests
	Now func() time.Time
}

// TokenIssuer signs and verifies stateless access and refresh tokens. The two
// kinds use different secrets so one leaked secret can't mint the other kind.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenIssuer(o *TokenIssuerOpts) (*TokenIssuer, error) {
	if o == nil {
		return nil, errors.New("no token options provided")
	}

	if len(o.AccessSecret) == 0 || len(o.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}

	if string(o.AccessSecret) == string(o.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}

	if o.AccessTTL <= 0 || o.RefreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	now := o.Now
	if now == nil {
		now = time.Now
	}

	return &TokenIssuer{
		accessSecret:  o.AccessSecret,
		refreshSecret: o.RefreshSecret,
		accessTTL:     o.AccessTTL,
		refreshTTL:    o.RefreshTTL,
		now:           now,
	}, nil
}

// IssuePair signs a fresh access and refresh token for userID
func (t *TokenIssuer) IssuePair(userID string) (*TokenPair, error) {
	if userID == "" {
		return nil, errors.New("no user ID provided")
	}

	access, err := t.sign(userID, AccessToken)
	if err != nil {
		return nil, err
	}

	refresh, err := t.sign(userID, RefreshToken)
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks signature, kind and expiry of a token and returns its subject.
// Errors are always ErrTokenInvalid or ErrTokenExpired.
func (t *TokenIssuer) Verify(tokenStr string, kind TokenKind) (string, error) {
	secret, _, err := t.params(kind)
	if err != nil {
		return "", ErrTokenInvalid
	}

	var claims Claims

	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}

		return "", ErrTokenInvalid
	}

	if !token.Valid || claims.Kind != kind || claims.Subject == "" {
		return "", ErrTokenInvalid
	}

	return claims.Subject, nil
}

// Refresh verifies a refresh token and issues a new pair for the same
// subject. The old refresh token stays valid until it expires.
func (t *TokenIssuer) Refresh(refreshToken string) (*TokenPair, error) {
	userID, err := t.Verify(refreshToken, RefreshToken)
	if err != nil {
		return nil, err
	}

	return t.IssuePair(userID)
}

func (t *TokenIssuer) sign(userID string, kind TokenKind) (string, error) {
	secret, ttl, err := t.params(kind)
	if err != nil {
		return "", err
	}

	now := t.now()

	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *TokenIssuer) params(kind TokenKind) ([]byte, time.Duration, error) {
	switch kind {
	case AccessToken:
		return t.accessSecret, t.accessTTL, nil
	case RefreshToken:
		return t.refreshSecret, t.refreshTTL, nil
	}

	return nil, 0, errors.New("unknown token kind")
}
