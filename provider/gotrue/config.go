package gotrue

import (
	"net/http"
	"strings"
	"time"
)

// Config holds connection settings for a GoTrue-compatible auth backend.
type Config struct {
	// BaseURL is the auth endpoint root (e.g. "https://xyz.supabase.co/auth/v1").
	BaseURL string

	// APIKey is sent as the `apikey` header on every request.
	APIKey string

	// HTTPClient overrides the transport. Default: http.Client with a 10s timeout.
	HTTPClient *http.Client

	// JWKSURL is where the backend publishes its signing keys.
	// Default: "{BaseURL}/.well-known/jwks.json".
	JWKSURL string

	// JWKSRefreshInterval is how often to refresh cached signing keys.
	// Default: 1 hour.
	JWKSRefreshInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL:             baseURL,
		APIKey:              apiKey,
		JWKSRefreshInterval: time.Hour,
	}
}

func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
}

func (c Config) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.baseURL() + "/.well-known/jwks.json"
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
