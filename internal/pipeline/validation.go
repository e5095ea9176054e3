package pipeline

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// ValidationStage drops raw items that lack a well formed container number
// or a status. It never fails the batch.
type ValidationStage struct {
	logger *zap.Logger
}

// NewValidationStage creates the validation stage.
func NewValidationStage(l *zap.Logger) *ValidationStage {
	if l == nil {
		l = zap.NewNop()
	}
	return &ValidationStage{logger: l}
}

// Name implements Stage.
func (s *ValidationStage) Name() string { return "validation" }

// Process implements Stage.
func (s *ValidationStage) Process(_ context.Context, batch *Batch) error {
	log := s.logger
	kept := make([]models.RawRecord, 0, len(batch.Raw))
	for i, item := range batch.Raw {
		if reason := invalidReason(item); reason != "" {
			log.Warn("dropping invalid record",
				zap.String("carrier_id", batch.CarrierID),
				zap.Int("index", i),
				zap.String("reason", reason))
			continue
		}
		kept = append(kept, item)
	}
	batch.Raw = kept
	return nil
}

func invalidReason(item models.RawRecord) string {
	if item == nil {
		return "not an object"
	}
	cn, ok := item[models.FieldContainerNumber].(string)
	if !ok || strings.TrimSpace(cn) == "" {
		return "missing container number"
	}
	if !models.ContainerNumberPattern.MatchString(strings.TrimSpace(cn)) {
		return "malformed container number " + cn
	}
	if strings.TrimSpace(base.Str(item[models.FieldStatus])) == "" {
		return "missing status"
	}
	return ""
}
