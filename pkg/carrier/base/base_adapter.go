// Package base provides the BaseAdapter every carrier adapter embeds. It
// implements the shared parts of the adapter contract:
//
//   - fallbacks for transports an adapter does not implement
//   - the default health check (an API connection test)
//   - auth header strategies: bearer, api_key, basic, custom_header, oauth2
//   - endpoint templates per data type and JSON fetches through the shared client
//   - manual document upload parsing into raw records
//
// # Usage
//
//	type Adapter struct {
//	    *base.BaseAdapter
//	}
//
//	func New(deps base.Deps) *Adapter {
//	    a := &Adapter{BaseAdapter: base.NewBaseAdapter(descriptor, auth, endpoints, deps)}
//	    a.Bind(a)
//	    return a
//	}
//
// Bind hands the outer adapter to the base so that defaults such as
// HealthCheck dispatch to the adapter's own TestConnection override.
package base

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/logger"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Capability error reasons, stored under the "reason" detail.
const (
	ReasonNotSupported   = "not_supported"
	ReasonNotImplemented = "not_implemented"
)

// Deps are the shared collaborators adapters are built with.
type Deps struct {
	Client *clients.HTTPClient
	Tokens *clients.TokenManager
	Logger *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.Get()
	}
	if d.Client == nil {
		d.Client = clients.NewHTTPClient(nil, d.Logger)
	}
	if d.Tokens == nil {
		d.Tokens = clients.NewTokenManager(d.Client, d.Logger)
	}
	return d
}

// BaseAdapter provides the default behavior of core.Adapter.
type BaseAdapter struct {
	desc      core.Descriptor
	auth      AuthConfig
	endpoints map[core.DataType]string
	// HealthPath is probed by the default API connection test, relative to BaseURL.
	HealthPath string

	Client *clients.HTTPClient
	Tokens *clients.TokenManager
	Logger *zap.Logger

	self core.Adapter
}

// NewBaseAdapter creates a base for desc. endpoints maps data types to URL
// templates relative to desc.BaseURL; {name} placeholders are filled from params.
func NewBaseAdapter(desc core.Descriptor, auth AuthConfig, endpoints map[core.DataType]string, deps Deps) *BaseAdapter {
	deps = deps.withDefaults()
	b := &BaseAdapter{
		desc:      desc,
		auth:      auth,
		endpoints: endpoints,
		Client:    deps.Client,
		Tokens:    deps.Tokens,
		Logger:    deps.Logger.With(zap.String("carrier_id", desc.CarrierID)),
	}
	b.self = b
	return b
}

// Bind records the outer adapter for default methods to dispatch through.
func (b *BaseAdapter) Bind(self core.Adapter) {
	b.self = self
}

// Descriptor returns the adapter's identity and declared capabilities.
func (b *BaseAdapter) Descriptor() core.Descriptor {
	return b.desc
}

// Auth returns the adapter's auth configuration.
func (b *BaseAdapter) Auth() AuthConfig {
	return b.auth
}

// TestConnection checks an API connection by probing HealthPath with the
// connection's auth headers. Manual connections need no credentials.
// Adapters with other transports override this and fall back to it for API.
func (b *BaseAdapter) TestConnection(ctx context.Context, creds models.Credentials, t models.TransportType) core.TestResult {
	if !b.desc.Supports(t) {
		return core.Failed(b.CapabilityError(t))
	}
	switch t {
	case models.TransportManual:
		return core.Succeeded()
	case models.TransportAPI:
		if err := b.ProbeAPI(ctx, creds); err != nil {
			return core.Failed(err)
		}
		return core.Succeeded()
	default:
		return core.Failed(b.CapabilityError(t))
	}
}

// HealthCheck runs an API connection test through the bound adapter. Carriers
// without an API test their first declared transport.
func (b *BaseAdapter) HealthCheck(ctx context.Context, creds models.Credentials) core.TestResult {
	t := models.TransportAPI
	if !b.desc.Supports(t) && len(b.desc.SupportedTypes) > 0 {
		t = b.desc.SupportedTypes[0]
	}
	return b.self.TestConnection(ctx, creds, t)
}

// FetchViaAPI is the fallback for adapters without an API transport.
func (b *BaseAdapter) FetchViaAPI(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	return nil, b.CapabilityError(models.TransportAPI)
}

// FetchViaEDI is the fallback for adapters without an EDI transport.
func (b *BaseAdapter) FetchViaEDI(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	return nil, b.CapabilityError(models.TransportEDI)
}

// FetchViaEmail is the fallback for adapters without an email transport.
func (b *BaseAdapter) FetchViaEmail(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	return nil, b.CapabilityError(models.TransportEmail)
}

// FetchViaWeb is the fallback for adapters without a web transport.
func (b *BaseAdapter) FetchViaWeb(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	return nil, b.CapabilityError(models.TransportWeb)
}

// ProcessManualUpload extracts text from the document and parses key: value
// lines into records.
func (b *BaseAdapter) ProcessManualUpload(ctx context.Context, file core.UploadFile) ([]models.RawRecord, error) {
	if !b.desc.Supports(models.TransportManual) {
		return nil, b.CapabilityError(models.TransportManual)
	}
	records, err := ParseUpload(file)
	if err != nil {
		return nil, err
	}
	b.Logger.Info("processed manual upload",
		zap.String("file", file.Name),
		zap.Int("records", len(records)))
	return records, nil
}

// CapabilityError reports a transport the adapter cannot serve. A transport
// that is not declared is "not supported". One that is declared but reached
// this fallback is a programming error: "declared but not implemented".
func (b *BaseAdapter) CapabilityError(t models.TransportType) error {
	if !b.desc.Supports(t) {
		return errors.Newf(errors.ErrorTypeCapability, "carrier %s does not support %s transport", b.desc.CarrierID, t).
			WithDetail("reason", ReasonNotSupported).
			WithDetail("transport", string(t))
	}

	b.Logger.Error("transport declared but not implemented", zap.String("transport", string(t)))
	return errors.Newf(errors.ErrorTypeCapability, "carrier %s declares %s transport but does not implement it", b.desc.CarrierID, t).
		WithDetail("reason", ReasonNotImplemented).
		WithDetail("transport", string(t))
}

// IsNotSupported reports whether err is a "not supported" capability error.
func IsNotSupported(err error) bool {
	reason, _ := errors.GetDetail(err, "reason")
	return errors.IsType(err, errors.ErrorTypeCapability) && reason == ReasonNotSupported
}

// IsNotImplemented reports whether err is a "declared but not implemented" capability error.
func IsNotImplemented(err error) bool {
	reason, _ := errors.GetDetail(err, "reason")
	return errors.IsType(err, errors.ErrorTypeCapability) && reason == ReasonNotImplemented
}

// Endpoint builds the URL for dataType. {name} placeholders in the template
// are replaced with path-escaped params; the remaining params become query values.
func (b *BaseAdapter) Endpoint(dataType core.DataType, params core.Params) (string, error) {
	tmpl, ok := b.endpoints[dataType]
	if !ok {
		return "", errors.Newf(errors.ErrorTypeValidation, "carrier %s has no %s endpoint", b.desc.CarrierID, dataType).
			WithDetail("data_type", string(dataType))
	}
	return BuildURL(b.desc.BaseURL, tmpl, params)
}

// BuildURL joins base and a path template, substituting {name} placeholders
// and appending unused params as query values. A missing placeholder value is
// a validation error.
func BuildURL(baseURL, tmpl string, params core.Params) (string, error) {
	used := make(map[string]bool)
	path := tmpl
	for {
		start := strings.Index(path, "{")
		if start < 0 {
			break
		}
		end := strings.Index(path[start:], "}")
		if end < 0 {
			break
		}
		end += start
		name := path[start+1 : end]
		v, ok := params[name]
		if !ok || fmt.Sprint(v) == "" {
			return "", errors.Newf(errors.ErrorTypeValidation, "missing parameter %q", name)
		}
		used[name] = true
		path = path[:start] + url.PathEscape(fmt.Sprint(v)) + path[end+1:]
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid carrier URL")
	}

	q := u.Query()
	for k, v := range params {
		if used[k] || k == "file" {
			continue
		}
		if s := fmt.Sprint(v); s != "" {
			q.Set(k, s)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetJSON fetches dataType with the adapter's auth headers and decodes the body into out.
func (b *BaseAdapter) GetJSON(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params, out interface{}) error {
	endpoint, err := b.Endpoint(dataType, params)
	if err != nil {
		return err
	}
	headers, err := b.AuthHeaders(ctx, creds)
	if err != nil {
		return err
	}
	return b.Client.GetJSON(ctx, endpoint, headers, out)
}

// ProbeAPI issues an authenticated GET against HealthPath (or BaseURL) and
// reports any classified failure.
func (b *BaseAdapter) ProbeAPI(ctx context.Context, creds models.Credentials) error {
	headers, err := b.AuthHeaders(ctx, creds)
	if err != nil {
		return err
	}
	target, err := BuildURL(b.desc.BaseURL, b.HealthPath, nil)
	if err != nil {
		return err
	}
	_, err = b.Client.Fetch(ctx, http.MethodGet, target, headers, nil)
	return err
}

// Option adjusts an adapter's descriptor at construction, mostly to point a
// built-in adapter at a sandbox or test server.
type Option func(*core.Descriptor)

// WithBaseURL replaces the carrier's base endpoint.
func WithBaseURL(baseURL string) Option {
	return func(d *core.Descriptor) { d.BaseURL = baseURL }
}

// WithRateLimit replaces the carrier's declared rate limit policy.
func WithRateLimit(policy clients.RateLimitPolicy) Option {
	return func(d *core.Descriptor) { d.RateLimit = policy }
}

// ApplyOptions returns desc with opts applied.
func ApplyOptions(desc core.Descriptor, opts []Option) core.Descriptor {
	for _, opt := range opts {
		opt(&desc)
	}
	return desc
}
