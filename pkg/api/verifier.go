package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier resolves a bearer token to a user identity. An empty
// token is valid for anonymous play; implementations decide whether to
// accept it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// AnonymousVerifier accepts every connection without an identity.
// Supplied tokens are ignored rather than rejected, so clients with
// stale credentials can still play anonymously.
type AnonymousVerifier struct{}

// Verify always succeeds with no user id.
func (AnonymousVerifier) Verify(ctx context.Context, token string) (string, error) {
	return "", nil
}

// JWTVerifier validates bearer tokens against a provider's JWKS. Keys
// are cached and refreshed automatically to survive rotation.
type JWTVerifier struct {
	jwksURL  string
	cache    *jwk.Cache
	issuer   string
	audience string

	// required rejects empty tokens; when false, missing tokens fall
	// back to anonymous play while present tokens are still verified.
	required bool
}

// NewJWTVerifier builds a verifier that fetches and caches the JWKS at
// jwksURL. The initial fetch runs eagerly so misconfiguration fails at
// startup, not on the first connection.
func NewJWTVerifier(ctx context.Context, jwksURL, issuer, audience string, required bool) (*JWTVerifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}
	return &JWTVerifier{
		jwksURL:  jwksURL,
		cache:    cache,
		issuer:   issuer,
		audience: audience,
		required: required,
	}, nil
}

// Verify checks the token signature, expiry, issuer, and audience, and
// returns the subject claim as the user id.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		if v.required {
			return "", fmt.Errorf("%w: missing bearer token", ErrInvalidToken)
		}
		return "", nil
	}

	keyset, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return "", fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(keyset),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.Subject() == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrInvalidToken)
	}
	return parsed.Subject(), nil
}
