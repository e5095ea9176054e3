// Package models defines the data shapes shared across freightsync: the raw
// records adapters return, the canonical record the pipeline produces, and the
// connection, alert and audit entities the engine persists.
package models

import (
	"regexp"
	"time"
)

// RawRecord is whatever shape a carrier transport returns for one shipment.
// Adapters map provider field names onto the canonical keys (containerNumber,
// status, eta, ...) but values remain untyped until standardization.
type RawRecord map[string]interface{}

// ContainerStatus is the fixed status enumeration of canonical records.
type ContainerStatus string

const (
	StatusInTransit ContainerStatus = "IN_TRANSIT"
	StatusAtPort    ContainerStatus = "AT_PORT"
	StatusDelivered ContainerStatus = "DELIVERED"
	StatusEmpty     ContainerStatus = "EMPTY"
	StatusLoaded    ContainerStatus = "LOADED"
	StatusGateOut   ContainerStatus = "GATE_OUT"
	StatusGateIn    ContainerStatus = "GATE_IN"
	StatusUnknown   ContainerStatus = "UNKNOWN"
)

// DDRisk buckets detention and demurrage exposure.
type DDRisk string

const (
	DDRiskLow    DDRisk = "LOW"
	DDRiskMedium DDRisk = "MEDIUM"
	DDRiskHigh   DDRisk = "HIGH"
)

// Confidence buckets how fresh a record is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// ContainerNumberPattern is the ISO 6346 style owner code + category + serial check.
var ContainerNumberPattern = regexp.MustCompile(`^[A-Z]{3}[UJZ]\d{7}$`)

// Canonical raw field names understood by the pipeline.
const (
	FieldContainerNumber = "containerNumber"
	FieldStatus          = "status"
	FieldCurrentLocation = "currentLocation"
	FieldOrigin          = "origin"
	FieldDestination     = "destination"
	FieldETA             = "eta"
	FieldETD             = "etd"
	FieldATA             = "ata"
	FieldATD             = "atd"
	FieldVessel          = "vessel"
	FieldVoyage          = "voyage"
	FieldBookingNumber   = "bookingNumber"
	FieldBillOfLading    = "billOfLading"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a normalized place. Code is a UN/LOCODE when one was detected.
type Location struct {
	Code        string       `json:"code,omitempty"`
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Equal compares the identifying parts of two locations.
func (l *Location) Equal(o *Location) bool {
	if l == nil || o == nil {
		return l == nil && o == nil
	}
	return l.Code == o.Code && l.Name == o.Name && l.Type == o.Type
}

// DataQuality is the quality scoring stage's verdict on a record.
type DataQuality struct {
	Score        int        `json:"score"`
	Confidence   Confidence `json:"confidence"`
	Completeness int        `json:"completeness"`
	Issues       []string   `json:"issues"`
}

// FieldChange is one field's before and after values.
type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// UpdateEntry records the diffs applied when a repeat sighting was merged.
type UpdateEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Changes   map[string]FieldChange `json:"changes"`
}

// CanonicalRecord is the carrier-agnostic shipment status the pipeline emits.
type CanonicalRecord struct {
	ContainerNumber string          `json:"containerNumber"`
	Status          ContainerStatus `json:"status"`
	Carrier         string          `json:"carrier"`

	CurrentLocation *Location `json:"currentLocation,omitempty"`
	Origin          *Location `json:"origin,omitempty"`
	Destination     *Location `json:"destination,omitempty"`

	ETA *string `json:"eta"`
	ETD *string `json:"etd"`
	ATA *string `json:"ata"`
	ATD *string `json:"atd"`

	Vessel        string `json:"vessel,omitempty"`
	Voyage        string `json:"voyage,omitempty"`
	BookingNumber string `json:"bookingNumber,omitempty"`
	BillOfLading  string `json:"billOfLading,omitempty"`

	TransitDays       *int    `json:"transitDays,omitempty"`
	FreeTimeEnd       *string `json:"freeTimeEnd,omitempty"`
	FreeTimeRemaining *int    `json:"freeTimeRemaining,omitempty"`
	DDRisk            DDRisk  `json:"ddRisk,omitempty"`

	DataQuality *DataQuality `json:"dataQuality,omitempty"`

	Source        string        `json:"source"`
	LastUpdated   time.Time     `json:"lastUpdated"`
	RawData       RawRecord     `json:"rawData,omitempty"`
	UpdateHistory []UpdateEntry `json:"updateHistory,omitempty"`
}

// DedupKey is the duplicate-detection key: containerNumber_carrier.
func (r *CanonicalRecord) DedupKey() string {
	return r.ContainerNumber + "_" + r.Carrier
}

// Clone returns a copy that shares no mutable state with r.
func (r *CanonicalRecord) Clone() *CanonicalRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.CurrentLocation = cloneLocation(r.CurrentLocation)
	c.Origin = cloneLocation(r.Origin)
	c.Destination = cloneLocation(r.Destination)
	c.ETA = cloneString(r.ETA)
	c.ETD = cloneString(r.ETD)
	c.ATA = cloneString(r.ATA)
	c.ATD = cloneString(r.ATD)
	c.FreeTimeEnd = cloneString(r.FreeTimeEnd)
	if r.TransitDays != nil {
		v := *r.TransitDays
		c.TransitDays = &v
	}
	if r.FreeTimeRemaining != nil {
		v := *r.FreeTimeRemaining
		c.FreeTimeRemaining = &v
	}
	if r.DataQuality != nil {
		dq := *r.DataQuality
		dq.Issues = append([]string(nil), r.DataQuality.Issues...)
		c.DataQuality = &dq
	}
	if r.RawData != nil {
		c.RawData = make(RawRecord, len(r.RawData))
		for k, v := range r.RawData {
			c.RawData[k] = v
		}
	}
	if r.UpdateHistory != nil {
		c.UpdateHistory = append([]UpdateEntry(nil), r.UpdateHistory...)
	}
	return &c
}

func cloneLocation(l *Location) *Location {
	if l == nil {
		return nil
	}
	c := *l
	if l.Coordinates != nil {
		coords := *l.Coordinates
		c.Coordinates = &coords
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr is a convenience for optional string fields.
func StringPtr(s string) *string {
	return &s
}
