package gotrue

import (
	stderrors "errors"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// SessionClaims is the subset of access token claims the flow cares about.
type SessionClaims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt time.Time
}

type rawClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

const (
	textCodeTokenExpired   = "TOKEN_EXPIRED"
	textCodeTokenMalformed = "TOKEN_MALFORMED"
)

// ErrTokenExpired is returned for structurally valid but expired access tokens.
var ErrTokenExpired = goerrors.New("access token is expired", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when a token fails signature or structure checks.
var ErrTokenMalformed = goerrors.New("access token is malformed", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// IsTokenExpired checks for expired token validation failures.
func IsTokenExpired(err error) bool {
	return hasTextCode(err, textCodeTokenExpired)
}

// IsTokenMalformed checks for signature or structure validation failures.
func IsTokenMalformed(err error) bool {
	return hasTextCode(err, textCodeTokenMalformed)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}

	return false
}

// TokenValidator validates backend-issued access tokens against the
// published JWK set, refreshing keys in the background.
type TokenValidator struct {
	jwks *keyfunc.JWKS
}

// NewTokenValidator fetches the JWK set and keeps it refreshed.
func NewTokenValidator(cfg Config) (*TokenValidator, error) {
	refresh := cfg.JWKSRefreshInterval
	if refresh == 0 {
		refresh = time.Hour
	}

	jwks, err := keyfunc.Get(cfg.jwksURL(), keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWK set: %s", err)
		},
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("gotrue: failed to load JWK set: %w", err)
	}

	return &TokenValidator{jwks: jwks}, nil
}

// Validate parses and verifies an access token, returning its session claims.
func (v *TokenValidator) Validate(tokenString string) (*SessionClaims, error) {
	claims := &rawClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc)
	if err != nil {
		return nil, normalizeValidationError(err)
	}

	if !token.Valid {
		return nil, ErrTokenMalformed
	}

	out := &SessionClaims{
		Subject: claims.Subject,
		Email:   claims.Email,
		Role:    claims.Role,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	return out, nil
}

// Close stops the background JWKS refresh goroutine.
func (v *TokenValidator) Close() {
	v.jwks.EndBackground()
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	clone := ErrTokenMalformed.Clone()
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		clone = ErrTokenExpired.Clone()
	}

	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"provider": "gotrue",
		"cause":    err.Error(),
	})
}
