package pipeline

import (
	"context"
	"strings"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// statusAliases maps normalized free text onto the status enumeration. Keys
// are lowercased with runs of space, '_' and '-' collapsed to one space.
var statusAliases = map[string]models.ContainerStatus{
	"in transit":       models.StatusInTransit,
	"on vessel":        models.StatusInTransit,
	"at sea":           models.StatusInTransit,
	"sailing":          models.StatusInTransit,
	"departed":         models.StatusInTransit,
	"vessel departure": models.StatusInTransit,
	"transshipment":    models.StatusInTransit,

	"at port":        models.StatusAtPort,
	"discharged":     models.StatusAtPort,
	"arrived":        models.StatusAtPort,
	"in terminal":    models.StatusAtPort,
	"vessel arrival": models.StatusAtPort,

	"delivered":              models.StatusDelivered,
	"container to consignee": models.StatusDelivered,

	"empty":          models.StatusEmpty,
	"empty returned": models.StatusEmpty,

	"loaded":           models.StatusLoaded,
	"full":             models.StatusLoaded,
	"loaded on vessel": models.StatusLoaded,

	"gate out": models.StatusGateOut,
	"gate in":  models.StatusGateIn,

	"unknown": models.StatusUnknown,
}

// NormalizeStatus maps carrier status text onto the canonical enumeration.
func NormalizeStatus(raw string) models.ContainerStatus {
	key := strings.Join(strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	}), " ")
	if st, ok := statusAliases[key]; ok {
		return st
	}
	return models.StatusUnknown
}

// StandardizationStage maps validated raw items onto canonical records.
type StandardizationStage struct{}

// NewStandardizationStage creates the standardization stage.
func NewStandardizationStage() *StandardizationStage { return &StandardizationStage{} }

// Name implements Stage.
func (s *StandardizationStage) Name() string { return "standardization" }

// Process implements Stage.
func (s *StandardizationStage) Process(_ context.Context, batch *Batch) error {
	records := make([]*models.CanonicalRecord, 0, len(batch.Raw))
	for _, item := range batch.Raw {
		records = append(records, s.standardize(item, batch))
	}
	batch.Records = records
	batch.Raw = nil
	return nil
}

func (s *StandardizationStage) standardize(item models.RawRecord, batch *Batch) *models.CanonicalRecord {
	raw := make(models.RawRecord, len(item))
	for k, v := range item {
		raw[k] = v
	}

	return &models.CanonicalRecord{
		ContainerNumber: strings.ToUpper(strings.TrimSpace(base.Str(item[models.FieldContainerNumber]))),
		Status:          NormalizeStatus(base.Str(item[models.FieldStatus])),
		Carrier:         batch.CarrierID,

		CurrentLocation: NormalizeLocation(item[models.FieldCurrentLocation]),
		Origin:          NormalizeLocation(item[models.FieldOrigin]),
		Destination:     NormalizeLocation(item[models.FieldDestination]),

		ETA: NormalizeDate(item[models.FieldETA]),
		ETD: NormalizeDate(item[models.FieldETD]),
		ATA: NormalizeDate(item[models.FieldATA]),
		ATD: NormalizeDate(item[models.FieldATD]),

		Vessel:        trimmed(item[models.FieldVessel]),
		Voyage:        trimmed(item[models.FieldVoyage]),
		BookingNumber: trimmed(item[models.FieldBookingNumber]),
		BillOfLading:  trimmed(item[models.FieldBillOfLading]),

		Source:      batch.Source,
		LastUpdated: batch.Now,
		RawData:     raw,
	}
}

func trimmed(v interface{}) string {
	return strings.TrimSpace(base.Str(v))
}
