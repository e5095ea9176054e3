package base

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

func testDeps() Deps {
	cfg := clients.DefaultHTTPConfig()
	cfg.EnableHTTP2 = false
	cfg.RequestTimeout = time.Second
	client := clients.NewHTTPClient(cfg, zap.NewNop())
	return Deps{Client: client, Tokens: clients.NewTokenManager(client, zap.NewNop()), Logger: zap.NewNop()}
}

// probeAdapter overrides TestConnection to prove HealthCheck dispatches through Bind.
type probeAdapter struct {
	*BaseAdapter
	tested []models.TransportType
}

func (p *probeAdapter) TestConnection(ctx context.Context, creds models.Credentials, t models.TransportType) core.TestResult {
	p.tested = append(p.tested, t)
	return core.Succeeded()
}

func TestBaseAdapter_CapabilityFallbacks(t *testing.T) {
	desc := core.Descriptor{
		CarrierID:      "acme",
		SupportedTypes: []models.TransportType{models.TransportAPI, models.TransportEDI},
	}
	b := NewBaseAdapter(desc, AuthConfig{}, nil, testDeps())
	ctx := context.Background()

	_, err := b.FetchViaEmail(ctx, nil, core.DataTypeTracking, nil)
	require.Error(t, err)
	assert.True(t, IsNotSupported(err))
	assert.False(t, IsNotImplemented(err))
	assert.Contains(t, err.Error(), "does not support email")

	_, err = b.FetchViaEDI(ctx, nil, core.DataTypeTracking, nil)
	require.Error(t, err)
	assert.True(t, IsNotImplemented(err))
	assert.Contains(t, err.Error(), "declares edi transport but does not implement it")
	assert.False(t, errors.IsRetryable(err))

	_, err = b.ProcessManualUpload(ctx, core.UploadFile{Data: []byte("Container: MSKU1234567")})
	assert.True(t, IsNotSupported(err))

	res := b.TestConnection(ctx, nil, models.TransportWeb)
	assert.False(t, res.Success)
	assert.True(t, IsNotSupported(res.Err))
}

func TestBaseAdapter_HealthCheckUsesBoundAdapter(t *testing.T) {
	desc := core.Descriptor{CarrierID: "acme", SupportedTypes: []models.TransportType{models.TransportAPI}}
	p := &probeAdapter{BaseAdapter: NewBaseAdapter(desc, AuthConfig{}, nil, testDeps())}
	p.Bind(p)

	res := p.HealthCheck(context.Background(), models.Credentials{})
	assert.True(t, res.Success)
	assert.Equal(t, []models.TransportType{models.TransportAPI}, p.tested)
}

func TestBaseAdapter_HealthCheckWithoutAPI(t *testing.T) {
	desc := core.Descriptor{CarrierID: "acme", SupportedTypes: []models.TransportType{models.TransportManual}}
	b := NewBaseAdapter(desc, AuthConfig{}, nil, testDeps())

	assert.True(t, b.HealthCheck(context.Background(), nil).Success)
}

func TestBaseAdapter_ProbeAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ping", r.URL.Path)
		if r.Header.Get("X-API-Key") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	desc := core.Descriptor{CarrierID: "acme", BaseURL: srv.URL, SupportedTypes: []models.TransportType{models.TransportAPI}}
	b := NewBaseAdapter(desc, AuthConfig{Type: AuthAPIKey}, nil, testDeps())
	b.HealthPath = "/v1/ping"

	ok := b.TestConnection(context.Background(), models.Credentials{"api_key": "good"}, models.TransportAPI)
	assert.True(t, ok.Success)

	bad := b.TestConnection(context.Background(), models.Credentials{"api_key": "bad"}, models.TransportAPI)
	assert.False(t, bad.Success)
	assert.True(t, errors.IsType(bad.Err, errors.ErrorTypeAuthentication))

	missing := b.TestConnection(context.Background(), models.Credentials{}, models.TransportAPI)
	assert.False(t, missing.Success)
	assert.Contains(t, missing.Error, `missing credential "api_key"`)
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		tmpl    string
		params  core.Params
		want    string
		wantErr bool
	}{
		{
			name:   "path placeholder",
			base:   "https://api.example.com/",
			tmpl:   "/track/{containerNumber}",
			params: core.Params{"containerNumber": "MSKU1234567"},
			want:   "https://api.example.com/track/MSKU1234567",
		},
		{
			name:   "remaining params become query",
			base:   "https://api.example.com",
			tmpl:   "events",
			params: core.Params{"containerNumber": "MSKU1234567", "limit": 10},
			want:   "https://api.example.com/events?containerNumber=MSKU1234567&limit=10",
		},
		{
			name:   "escaped value",
			base:   "https://api.example.com",
			tmpl:   "bookings/{bookingNumber}",
			params: core.Params{"bookingNumber": "A B/1"},
			want:   "https://api.example.com/bookings/A%20B%2F1",
		},
		{
			name:    "missing placeholder",
			base:    "https://api.example.com",
			tmpl:    "track/{containerNumber}",
			params:  core.Params{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildURL(tt.base, tt.tmpl, tt.params)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBaseAdapter_EndpointUnknownDataType(t *testing.T) {
	b := NewBaseAdapter(core.Descriptor{CarrierID: "acme", BaseURL: "https://x"}, AuthConfig{},
		map[core.DataType]string{core.DataTypeTracking: "track"}, testDeps())

	_, err := b.Endpoint(core.DataTypeSchedules, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no schedules endpoint")
}
