// Package hapag implements the Hapag-Lloyd carrier adapter: a basic-auth
// REST API, EDIFACT IFTSTA status messages served over HTTP, and manual
// document upload.
package hapag

import (
	"context"
	"net/http"
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
	CarrierID = "hapag"

	defaultBaseURL = "https://api.hlag.com"
	ediPath        = "/edi/v1/iftsta"
	ediPingPath    = "/edi/v1/ping"
)

var endpoints = map[core.DataType]string{
	core.DataTypeTracking: "/tracking/v1/containers/{containerNumber}",
	core.DataTypeEvents:   "/tracking/v1/events",
	core.DataTypeBookings: "/tracking/v1/bookings/{bookingNumber}",
}

var trackingFields = map[string]string{
	models.FieldContainerNumber: "equipment.number",
	models.FieldStatus:          "status",
	models.FieldCurrentLocation: "place",
	models.FieldOrigin:          "portOfLoading",
	models.FieldDestination:     "portOfDischarge",
	models.FieldETA:             "estimatedArrival",
	models.FieldETD:             "estimatedDeparture",
	models.FieldATA:             "actualArrival",
	models.FieldATD:             "actualDeparture",
	models.FieldVessel:          "vesselName",
	models.FieldVoyage:          "voyageNumber",
	models.FieldBookingNumber:   "booking",
	models.FieldBillOfLading:    "blNumber",
}

// Adapter is the Hapag-Lloyd carrier adapter.
type Adapter struct {
	*base.BaseAdapter
}

// New creates a Hapag-Lloyd adapter.
func New(deps base.Deps, opts ...base.Option) *Adapter {
	desc := base.ApplyOptions(core.Descriptor{
		CarrierID: CarrierID,
		Name:      "Hapag-Lloyd",
		BaseURL:   defaultBaseURL,
		SupportedTypes: []models.TransportType{
			models.TransportAPI,
			models.TransportEDI,
			models.TransportManual,
		},
		RateLimit: clients.RateLimitPolicy{
			MaxRequests: 30,
			Window:      time.Minute,
			MaxBurst:    5,
		},
	}, opts)

	a := &Adapter{BaseAdapter: base.NewBaseAdapter(desc, base.AuthConfig{Type: base.AuthBasic}, endpoints, deps)}
	a.HealthPath = "/tracking/v1/health"
	a.Bind(a)
	return a
}

// TestConnection pings the EDI gateway for EDI connections and defers to the
// base API probe otherwise.
func (a *Adapter) TestConnection(ctx context.Context, creds models.Credentials, t models.TransportType) core.TestResult {
	if t != models.TransportEDI {
		return a.BaseAdapter.TestConnection(ctx, creds, t)
	}
	if _, err := a.fetchEDI(ctx, creds, ediPingPath, nil); err != nil {
		return core.Failed(err)
	}
	return core.Succeeded()
}

// FetchViaAPI fetches tracking results from the Hapag-Lloyd API.
func (a *Adapter) FetchViaAPI(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	var payload interface{}
	if err := a.GetJSON(ctx, creds, dataType, params, &payload); err != nil {
		return nil, err
	}
	return transformTrackingData(payload)
}

// FetchViaEDI downloads pending IFTSTA messages and parses their status events.
func (a *Adapter) FetchViaEDI(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	if dataType != core.DataTypeTracking && dataType != core.DataTypeEvents {
		return nil, errors.Newf(errors.ErrorTypeValidation, "IFTSTA messages carry tracking and events, not %s", dataType).
			WithDetail("data_type", string(dataType))
	}

	body, err := a.fetchEDI(ctx, creds, ediPath, params)
	if err != nil {
		return nil, err
	}

	records, err := parseIFTSTA(string(body))
	if err != nil {
		return nil, err
	}
	a.Logger.Debug("parsed IFTSTA interchange",
		zap.Int("bytes", len(body)),
		zap.Int("records", len(records)))
	return records, nil
}

func (a *Adapter) fetchEDI(ctx context.Context, creds models.Credentials, path string, params core.Params) ([]byte, error) {
	headers, err := a.AuthHeaders(ctx, creds)
	if err != nil {
		return nil, err
	}
	headers["Accept"] = "application/edifact"

	target, err := base.BuildURL(a.Descriptor().BaseURL, path, params)
	if err != nil {
		return nil, err
	}
	return a.Client.Fetch(ctx, http.MethodGet, target, headers, nil)
}

func transformTrackingData(payload interface{}) ([]models.RawRecord, error) {
	items, err := base.Items(payload, "trackingResults")
	if err != nil {
		return nil, err
	}
	records := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		records = append(records, base.MapFields(item, trackingFields))
	}
	return records, nil
}
