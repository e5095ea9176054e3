package clients

import (
	"context"
	stderrors "errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ajitpratap0/freightsync/pkg/errors"
)

// OAuth2Config identifies a client-credentials grant.
type OAuth2Config struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
	// UseBasicAuth sends the client credentials in the Authorization header
	// instead of the form body.
	UseBasicAuth bool `json:"use_basic_auth"`
}

func (c OAuth2Config) cacheKey() string {
	scopes := append([]string(nil), c.Scopes...)
	sort.Strings(scopes)
	return c.TokenURL + "|" + c.ClientID + "|" + strings.Join(scopes, " ")
}

// TokenManager caches one refreshing token source per client-credentials
// grant, so connections sharing a carrier account share a token.
type TokenManager struct {
	httpClient *http.Client
	logger     *zap.Logger

	sources map[string]oauth2.TokenSource
	mu      sync.Mutex
}

// NewTokenManager creates a token manager whose token requests go through client.
func NewTokenManager(client *HTTPClient, logger *zap.Logger) *TokenManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	tm := &TokenManager{
		logger:  logger.With(zap.String("component", "oauth2")),
		sources: make(map[string]oauth2.TokenSource),
	}
	if client != nil {
		tm.httpClient = client.StdClient()
	}
	return tm
}

// Token returns a valid access token for cfg, fetching or refreshing as needed.
// Rejected credentials surface as ErrorTypeAuthentication.
func (tm *TokenManager) Token(ctx context.Context, cfg OAuth2Config) (*oauth2.Token, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "oauth2 token_url and client_id are required")
	}

	tok, err := tm.source(ctx, cfg).Token()
	if err != nil {
		tm.forget(cfg)
		return nil, classifyTokenError(err)
	}
	return tok, nil
}

// Invalidate drops the cached source for cfg so the next call fetches a new token.
func (tm *TokenManager) Invalidate(cfg OAuth2Config) {
	tm.forget(cfg)
}

func (tm *TokenManager) source(ctx context.Context, cfg OAuth2Config) oauth2.TokenSource {
	key := cfg.cacheKey()

	tm.mu.Lock()
	defer tm.mu.Unlock()

	if ts, ok := tm.sources[key]; ok {
		return ts
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if cfg.UseBasicAuth {
		cc.AuthStyle = oauth2.AuthStyleInHeader
	}

	// The token source keeps the context for later refreshes, so it must not
	// be tied to the first caller's request.
	base := context.WithoutCancel(ctx)
	if tm.httpClient != nil {
		base = context.WithValue(base, oauth2.HTTPClient, tm.httpClient)
	}
	ts := cc.TokenSource(base)
	tm.sources[key] = ts

	tm.logger.Debug("created token source",
		zap.String("token_url", cfg.TokenURL),
		zap.String("client_id", cfg.ClientID))
	return ts
}

func (tm *TokenManager) forget(cfg OAuth2Config) {
	tm.mu.Lock()
	delete(tm.sources, cfg.cacheKey())
	tm.mu.Unlock()
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if stderrors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		var e *errors.Error
		switch {
		case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
			e = errors.Wrap(err, errors.ErrorTypeAuthentication, "oauth2 token request rejected")
		case status == http.StatusTooManyRequests:
			e = errors.Wrap(err, errors.ErrorTypeRateLimit, "oauth2 token endpoint throttled").
				WithDetail(errors.DetailUpstream, true)
		case status >= 500:
			e = errors.Wrap(err, errors.ErrorTypeConnection, "oauth2 token endpoint unavailable")
		default:
			e = errors.Wrap(err, errors.ErrorTypeAuthentication, "oauth2 token request failed")
		}
		return e.WithDetail(errors.DetailStatusCode, status)
	}

	var structured *errors.Error
	if stderrors.As(err, &structured) {
		return err
	}
	return classifyTransportError(context.Background(), err, DefaultRequestTimeout)
}
