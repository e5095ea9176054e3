package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/ajitpratap0/freightsync/pkg/models"
)

const day = 24 * time.Hour

// EnrichmentStage derives transit time, free time and D&D risk, and attaches
// coordinates to known ports.
type EnrichmentStage struct {
	freeTimeDays int
}

// NewEnrichmentStage creates the enrichment stage with the given free time
// allowance after arrival.
func NewEnrichmentStage(freeTimeDays int) *EnrichmentStage {
	return &EnrichmentStage{freeTimeDays: freeTimeDays}
}

// Name implements Stage.
func (s *EnrichmentStage) Name() string { return "enrichment" }

// Process implements Stage.
func (s *EnrichmentStage) Process(_ context.Context, batch *Batch) error {
	for _, rec := range batch.Records {
		s.enrich(rec, batch.Now)
	}
	return nil
}

func (s *EnrichmentStage) enrich(rec *models.CanonicalRecord, now time.Time) {
	eta, hasETA := ParseDate(rec.ETA)
	etd, hasETD := ParseDate(rec.ETD)
	if hasETA && hasETD {
		days := ceilDays(eta.Sub(etd))
		rec.TransitDays = &days
	}

	if rec.Status == models.StatusAtPort {
		if ata, ok := ParseDate(rec.ATA); ok {
			end := ata.Add(time.Duration(s.freeTimeDays) * day)
			remaining := ceilDays(end.Sub(now))
			if remaining < 0 {
				remaining = 0
			}
			rec.FreeTimeEnd = models.StringPtr(end.UTC().Format(time.RFC3339))
			rec.FreeTimeRemaining = &remaining
			rec.DDRisk = riskFor(remaining)
		}
	}

	for _, loc := range []*models.Location{rec.CurrentLocation, rec.Origin, rec.Destination} {
		if loc == nil || loc.Code == "" || loc.Coordinates != nil {
			continue
		}
		if c, ok := PortCoordinates(loc.Code); ok {
			loc.Coordinates = &c
		}
	}
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(day)))
}

func riskFor(remaining int) models.DDRisk {
	switch {
	case remaining <= 2:
		return models.DDRiskHigh
	case remaining <= 4:
		return models.DDRiskMedium
	default:
		return models.DDRiskLow
	}
}
