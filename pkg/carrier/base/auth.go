package base

import (
	"context"
	"encoding/base64"

	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// AuthType is an auth header strategy.
type AuthType string

const (
	AuthNone         AuthType = "none"
	AuthBearer       AuthType = "bearer"
	AuthAPIKey       AuthType = "api_key"
	AuthBasic        AuthType = "basic"
	AuthCustomHeader AuthType = "custom_header"
	AuthOAuth2       AuthType = "oauth2"
)

// Credential keys understood by the auth strategies.
const (
	CredToken        = "token"
	CredAPIKey       = "api_key"
	CredUsername     = "username"
	CredPassword     = "password"
	CredClientID     = "client_id"
	CredClientSecret = "client_secret"
	CredTokenURL     = "token_url"
)

// AuthConfig selects how credentials become request headers.
type AuthConfig struct {
	Type AuthType `yaml:"type" json:"type"`
	// HeaderName is the header for api_key (default X-API-Key) and custom_header.
	HeaderName string `yaml:"header_name" json:"header_name,omitempty"`
	// CredentialKey is the credential used for custom_header (default api_key).
	CredentialKey string `yaml:"credential_key" json:"credential_key,omitempty"`
	// TokenURL and Scopes configure oauth2 when credentials carry no token_url.
	TokenURL string   `yaml:"token_url" json:"token_url,omitempty"`
	Scopes   []string `yaml:"scopes" json:"scopes,omitempty"`
}

// AuthHeaders builds the request headers for creds using the adapter's strategy.
func (b *BaseAdapter) AuthHeaders(ctx context.Context, creds models.Credentials) (map[string]string, error) {
	return BuildAuthHeaders(ctx, b.auth, creds, b.Tokens)
}

// BuildAuthHeaders applies auth to creds. Missing credentials are validation
// errors; rejected oauth2 credentials are authentication errors.
func BuildAuthHeaders(ctx context.Context, auth AuthConfig, creds models.Credentials, tokens *clients.TokenManager) (map[string]string, error) {
	headers := make(map[string]string, 1)

	switch auth.Type {
	case "", AuthNone:
		return headers, nil

	case AuthBearer:
		token := creds.Get(CredToken, "access_token")
		if token == "" {
			return nil, missingCredential(CredToken)
		}
		headers["Authorization"] = "Bearer " + token

	case AuthAPIKey:
		key := creds.Get(CredAPIKey)
		if key == "" {
			return nil, missingCredential(CredAPIKey)
		}
		name := auth.HeaderName
		if name == "" {
			name = "X-API-Key"
		}
		headers[name] = key

	case AuthBasic:
		user, pass := creds.Get(CredUsername), creds.Get(CredPassword)
		if user == "" {
			return nil, missingCredential(CredUsername)
		}
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))

	case AuthCustomHeader:
		credKey := auth.CredentialKey
		if credKey == "" {
			credKey = CredAPIKey
		}
		value := creds.Get(credKey)
		if value == "" {
			return nil, missingCredential(credKey)
		}
		if auth.HeaderName == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "custom_header auth requires header_name")
		}
		headers[auth.HeaderName] = value

	case AuthOAuth2:
		if tokens == nil {
			return nil, errors.New(errors.ErrorTypeConfig, "oauth2 auth requires a token manager")
		}
		cfg := clients.OAuth2Config{
			ClientID:     creds.Get(CredClientID),
			ClientSecret: creds.Get(CredClientSecret),
			TokenURL:     creds.Get(CredTokenURL),
			Scopes:       auth.Scopes,
		}
		if cfg.TokenURL == "" {
			cfg.TokenURL = auth.TokenURL
		}
		if cfg.ClientID == "" {
			return nil, missingCredential(CredClientID)
		}
		tok, err := tokens.Token(ctx, cfg)
		if err != nil {
			return nil, err
		}
		headers["Authorization"] = tok.Type() + " " + tok.AccessToken

	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown auth type %q", auth.Type)
	}

	return headers, nil
}

func missingCredential(key string) error {
	return errors.Newf(errors.ErrorTypeValidation, "missing credential %q", key).
		WithDetail("credential", key)
}
