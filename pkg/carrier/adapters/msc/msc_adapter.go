// Package msc implements the MSC carrier adapter: an API-key REST API, status
// notification emails read from a mailbox bucket, and manual document upload.
package msc

import (
	"context"
	"strconv"
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
	CarrierID = "msc"

	defaultBaseURL    = "https://api.msc.com"
	defaultEmailLimit = 50
)

var endpoints = map[core.DataType]string{
	core.DataTypeTracking: "/api/v1/tracking/containers/{containerNumber}",
	core.DataTypeBookings: "/api/v1/tracking/bookings/{bookingNumber}",
}

// Adapter is the MSC carrier adapter.
type Adapter struct {
	*base.BaseAdapter

	openMailbox func(ctx context.Context, creds models.Credentials) (Mailbox, error)
}

// New creates an MSC adapter.
func New(deps base.Deps, opts ...base.Option) *Adapter {
	desc := base.ApplyOptions(core.Descriptor{
		CarrierID: CarrierID,
		Name:      "Mediterranean Shipping Company",
		BaseURL:   defaultBaseURL,
		SupportedTypes: []models.TransportType{
			models.TransportAPI,
			models.TransportEmail,
			models.TransportManual,
		},
		RateLimit: clients.RateLimitPolicy{
			MaxRequests: 60,
			Window:      time.Minute,
		},
	}, opts)

	auth := base.AuthConfig{Type: base.AuthAPIKey, HeaderName: "MSC-Api-Key"}

	a := &Adapter{BaseAdapter: base.NewBaseAdapter(desc, auth, endpoints, deps)}
	a.HealthPath = "/api/v1/status"
	a.openMailbox = func(ctx context.Context, creds models.Credentials) (Mailbox, error) {
		return openS3Mailbox(ctx, creds, a.Client.StdClient())
	}
	a.Bind(a)
	return a
}

// TestConnection lists the mailbox for email connections and defers to the
// base API probe otherwise.
func (a *Adapter) TestConnection(ctx context.Context, creds models.Credentials, t models.TransportType) core.TestResult {
	if t != models.TransportEmail {
		return a.BaseAdapter.TestConnection(ctx, creds, t)
	}

	mailbox, err := a.openMailbox(ctx, creds)
	if err != nil {
		return core.Failed(err)
	}
	if _, err := mailbox.List(ctx, creds.Get(CredMailboxPrefix), time.Time{}, 1); err != nil {
		return core.Failed(err)
	}
	return core.Succeeded()
}

// FetchViaAPI fetches container tracking or booking data.
func (a *Adapter) FetchViaAPI(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	var payload interface{}
	if err := a.GetJSON(ctx, creds, dataType, params, &payload); err != nil {
		return nil, err
	}
	return transformTrackingData(payload)
}

// FetchViaEmail reads status notifications from the mailbox. Params:
// containerNumber filters records, since (RFC 3339) skips older messages,
// limit caps the messages read (default 50). Unparseable messages are skipped.
func (a *Adapter) FetchViaEmail(ctx context.Context, creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	if dataType != core.DataTypeTracking && dataType != core.DataTypeEvents {
		return nil, errors.Newf(errors.ErrorTypeValidation, "msc email notifications carry tracking and events, not %s", dataType).
			WithDetail("data_type", string(dataType))
	}

	var since time.Time
	if s := params.String("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, "invalid since parameter")
		}
		since = t
	}

	mailbox, err := a.openMailbox(ctx, creds)
	if err != nil {
		return nil, err
	}
	refs, err := mailbox.List(ctx, creds.Get(CredMailboxPrefix), since, emailLimit(params))
	if err != nil {
		return nil, err
	}

	filter := params.String(models.FieldContainerNumber)
	records := make([]models.RawRecord, 0)
	for _, ref := range refs {
		raw, err := mailbox.Read(ctx, ref.Key)
		if err != nil {
			return nil, err
		}
		parsed, err := parseNotification(raw)
		if err != nil {
			a.Logger.Warn("skipping unparseable notification", zap.String("key", ref.Key), zap.Error(err))
			continue
		}
		for _, rec := range parsed {
			if filter != "" && base.Str(rec[models.FieldContainerNumber]) != filter {
				continue
			}
			records = append(records, rec)
		}
	}

	a.Logger.Debug("read msc mailbox",
		zap.Int("messages", len(refs)),
		zap.Int("records", len(records)))
	return records, nil
}

func emailLimit(params core.Params) int {
	switch v := params["limit"].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultEmailLimit
}
