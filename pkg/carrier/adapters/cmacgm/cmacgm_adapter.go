// Package cmacgm implements the CMA CGM carrier adapter: the REST API with a
// KeyId header, tracking scraped from the public web portal, and manual
// document upload.
package cmacgm

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

const (
	// CarrierID is the registry key of the adapter
	CarrierID = "cmacgm"

	defaultBaseURL   = "https://apis.cma-cgm.net"
	defaultPortalURL = "https://www.cma-cgm.com/ebusiness/tracking/search"
	// movesSelector is the container moves table on the tracking result page
	movesSelector = "table.container-moves"

	// CredPortalURL overrides the tracking portal address
	CredPortalURL = "portal_url"
	// CredChromeURL points web connections at a remote Chrome DevTools endpoint
	CredChromeURL = "chrome_url"
)

var endpoints = map[core.DataType]string{
	core.DataTypeTracking: "/operation/trackandtrace/v1/events",
	core.DataTypeEvents:   "/operation/trackandtrace/v1/events",
	core.DataTypeBookings: "/operation/booking/v1/bookings/{bookingNumber}",
}

// Adapter is the CMA CGM carrier adapter.
type Adapter struct {
	*base.BaseAdapter

	newScraper func(creds models.Credentials) Scraper
}

// New creates a CMA CGM adapter.
func New(deps base.Deps, opts ...base.Option) *Adapter {
	desc := base.ApplyOptions(core.Descriptor{
		CarrierID: CarrierID,
		Name:      "CMA CGM",
		BaseURL:   defaultBaseURL,
		SupportedTypes: []models.TransportType{
			models.TransportAPI,
			models.TransportWeb,
			models.TransportManual,
		},
		RateLimit: clients.RateLimitPolicy{
			MaxRequests: 20,
			Window:      time.Minute,
		},
	}, opts)

	auth := base.AuthConfig{Type: base.AuthCustomHeader, HeaderName: "KeyId"}

	a := &Adapter{BaseAdapter: base.NewBaseAdapter(desc, auth, endpoints, deps)}
	a.HealthPath = "/operation/trackandtrace/v1/health"
	a.newScraper = func(creds models.Credentials) Scraper {
		return NewChromeScraper(ChromeConfig{
			RemoteURL: creds.Get(CredChromeURL),
			NoSandbox: true,
		}, a.Logger)
	}
	a.Bind(a)
	return a
}

// TestConnection loads the tracking portal for web connections and defers to
// the base API probe otherwise.
func (a *Adapter) TestConnection(ctx context.Context, creds models.Credentials, t models.TransportType) core.TestResult {
	if t != models.TransportWeb {
		return a.BaseAdapter.TestConnection(ctx, creds, t)
	}
	if err := a.newScraper(creds).Reachable(ctx, portalURL(creds)); err != nil {
		return core.Failed(err)
	}
	return core.Succeeded()
}

// FetchViaAPI fetches DCSA style events from the CMA CGM API.
func (a *Adapter) FetchViaAPI(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	if dataType != core.DataTypeBookings {
		params = renameParam(params, models.FieldContainerNumber, "equipmentReference")
	}

	var payload interface{}
	if err := a.GetJSON(ctx, creds, dataType, params, &payload); err != nil {
		return nil, err
	}
	return transformEventsData(payload)
}

// FetchViaWeb scrapes the container moves table for params["containerNumber"].
func (a *Adapter) FetchViaWeb(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	if dataType != core.DataTypeTracking && dataType != core.DataTypeEvents {
		return nil, errors.Newf(errors.ErrorTypeValidation, "the tracking portal shows tracking and events, not %s", dataType).
			WithDetail("data_type", string(dataType))
	}
	container := params.String(models.FieldContainerNumber)
	if container == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "web tracking requires containerNumber")
	}

	q := url.Values{"SearchBy": {"Container"}, "Reference": {container}}
	target := portalURL(creds) + "?" + q.Encode()

	rows, err := a.newScraper(creds).Table(ctx, target, movesSelector)
	if err != nil {
		return nil, err
	}

	records := transformWebData(container, rows)
	a.Logger.Debug("scraped tracking portal",
		zap.String("container", container),
		zap.Int("rows", len(rows)),
		zap.Int("records", len(records)))
	return records, nil
}

func portalURL(creds models.Credentials) string {
	if u := creds.Get(CredPortalURL); u != "" {
		return strings.TrimRight(u, "?")
	}
	return defaultPortalURL
}

func renameParam(params core.Params, from, to string) core.Params {
	out := make(core.Params, len(params))
	for k, v := range params {
		if k == from {
			out[to] = v
			continue
		}
		out[k] = v
	}
	return out
}
