// Package core defines the contract every carrier adapter implements and the
// values that cross it.
package core

import (
	"context"

	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// DataType names the kind of shipment data being fetched.
type DataType string

const (
	DataTypeTracking  DataType = "tracking"
	DataTypeEvents    DataType = "events"
	DataTypeSchedules DataType = "schedules"
	DataTypeBookings  DataType = "bookings"
)

// AllDataTypes lists every data type.
var AllDataTypes = []DataType{DataTypeTracking, DataTypeEvents, DataTypeSchedules, DataTypeBookings}

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	for _, known := range AllDataTypes {
		if d == known {
			return true
		}
	}
	return false
}

// Params are fetch parameters such as containerNumber or bookingNumber.
// Adapters substitute them into endpoint templates or pass them as query values.
type Params map[string]interface{}

// String returns params[key] as a string, or "".
func (p Params) String(key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// UploadFile is a document a user uploaded for a manual connection.
type UploadFile struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// Descriptor is an adapter's identity and declared capabilities. It does not
// change after construction.
type Descriptor struct {
	CarrierID      string                  `json:"carrierId"`
	Name           string                  `json:"name"`
	BaseURL        string                  `json:"baseUrl"`
	SupportedTypes []models.TransportType  `json:"supportedTypes"`
	RateLimit      clients.RateLimitPolicy `json:"rateLimit"`
}

// Supports reports whether t is one of the declared transports.
func (d Descriptor) Supports(t models.TransportType) bool {
	for _, s := range d.SupportedTypes {
		if s == t {
			return true
		}
	}
	return false
}

// TestResult is the outcome of a connection test or health check.
type TestResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	// Err keeps the structured cause for classification.
	Err error `json:"-"`
}

// Succeeded is a passing TestResult.
func Succeeded() TestResult {
	return TestResult{Success: true}
}

// Failed is a failing TestResult for err.
func Failed(err error) TestResult {
	return TestResult{Success: false, Error: err.Error(), Err: err}
}

// Adapter is one carrier's implementation of the uniform capability surface.
// Concrete adapters differ only in transport and field mapping; every fetch
// returns raw records keyed by canonical field names with untyped values.
type Adapter interface {
	// Descriptor returns the adapter's identity and declared capabilities
	Descriptor() Descriptor

	// TestConnection verifies credentials over transport t
	TestConnection(ctx context.Context, creds models.Credentials, t models.TransportType) TestResult

	// HealthCheck probes the carrier; by default an API TestConnection
	HealthCheck(ctx context.Context, creds models.Credentials) TestResult

	// FetchViaAPI fetches over the carrier's REST API
	FetchViaAPI(ctx context.Context, creds models.Credentials, dataType DataType, params Params) ([]models.RawRecord, error)

	// FetchViaEDI fetches EDI status messages
	FetchViaEDI(ctx context.Context, creds models.Credentials, dataType DataType, params Params) ([]models.RawRecord, error)

	// FetchViaEmail parses status notifications from the carrier's mailbox
	FetchViaEmail(ctx context.Context, creds models.Credentials, dataType DataType, params Params) ([]models.RawRecord, error)

	// FetchViaWeb scrapes the carrier's web portal
	FetchViaWeb(ctx context.Context, creds models.Credentials, dataType DataType, params Params) ([]models.RawRecord, error)

	// ProcessManualUpload extracts records from an uploaded document
	ProcessManualUpload(ctx context.Context, file UploadFile) ([]models.RawRecord, error)
}
