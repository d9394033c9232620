package authflow

import (
	"net/url"
	"strings"
)

// DeepLinkTokens are the auth parameters carried by a verification or
// recovery URL into the app.
type DeepLinkTokens struct {
	AccessToken  string
	RefreshToken string
	Type         string
}

// ParseDeepLink extracts access_token, refresh_token, and type from a deep
// link URL. On web the parameters arrive in the hash fragment; on mobile the
// same parameters come in the query string of a custom scheme URL
// (appscheme://verify?...). Both shapes route here.
//
// Missing or invalid token parameters yield ErrMalformedDeepLink; the caller
// returns the user to a public entry screen rather than crashing.
func ParseDeepLink(raw string) (DeepLinkTokens, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DeepLinkTokens{}, ErrMalformedDeepLink.WithMetadata(map[string]any{
			"reason": "empty url",
		})
	}

	u, err := url.Parse(raw)
	if err != nil {
		clone := ErrMalformedDeepLink.Clone()
		clone.Source = err
		return DeepLinkTokens{}, clone.WithMetadata(map[string]any{
			"reason": "unparseable url",
		})
	}

	params := tokenParams(u)
	tokens := DeepLinkTokens{
		AccessToken:  params.Get("access_token"),
		RefreshToken: params.Get("refresh_token"),
		Type:         params.Get("type"),
	}

	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return DeepLinkTokens{}, ErrMalformedDeepLink.WithMetadata(map[string]any{
			"reason":            "missing token parameters",
			"has_access_token":  tokens.AccessToken != "",
			"has_refresh_token": tokens.RefreshToken != "",
		})
	}

	return tokens, nil
}

// tokenParams prefers the hash fragment when it carries tokens, falling back
// to the query string.
func tokenParams(u *url.URL) url.Values {
	if u.Fragment != "" {
		if params, err := url.ParseQuery(u.Fragment); err == nil {
			if params.Get("access_token") != "" || params.Get("refresh_token") != "" {
				return params
			}
		}
	}

	return u.Query()
}
