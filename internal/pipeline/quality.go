package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/ajitpratap0/freightsync/pkg/models"
)

// Quality issue labels.
const (
	IssueMissingETA      = "Missing ETA"
	IssueMissingLocation = "Missing current location"
	IssueUnknownStatus   = "Unknown status"
	IssueHighDDRisk      = "High D&D risk"
)

// QualityStage scores each record's completeness and freshness.
type QualityStage struct{}

// NewQualityStage creates the quality scoring stage.
func NewQualityStage() *QualityStage { return &QualityStage{} }

// Name implements Stage.
func (s *QualityStage) Name() string { return "quality" }

// Process implements Stage.
func (s *QualityStage) Process(_ context.Context, batch *Batch) error {
	for _, rec := range batch.Records {
		rec.DataQuality = Assess(rec, batch.Now)
	}
	return nil
}

// Assess grades rec as of now.
func Assess(rec *models.CanonicalRecord, now time.Time) *models.DataQuality {
	score := 100
	for _, s := range []string{rec.Vessel, rec.Voyage, rec.BookingNumber, rec.BillOfLading} {
		if s == "" {
			score -= 5
		}
	}
	if rec.ETA == nil {
		score -= 10
	}
	if rec.ETD == nil {
		score -= 10
	}
	if rec.Status == models.StatusUnknown {
		score -= 20
	}
	if score < 0 {
		score = 0
	}

	issues := []string{}
	if rec.ETA == nil {
		issues = append(issues, IssueMissingETA)
	}
	if rec.CurrentLocation == nil {
		issues = append(issues, IssueMissingLocation)
	}
	if rec.Status == models.StatusUnknown {
		issues = append(issues, IssueUnknownStatus)
	}
	if rec.DDRisk == models.DDRiskHigh {
		issues = append(issues, IssueHighDDRisk)
	}

	return &models.DataQuality{
		Score:        score,
		Confidence:   confidence(now.Sub(rec.LastUpdated)),
		Completeness: completeness(rec),
		Issues:       issues,
	}
}

func confidence(age time.Duration) models.Confidence {
	switch {
	case age < time.Hour:
		return models.ConfidenceHigh
	case age < 24*time.Hour:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// completeness is the percentage of the fourteen core fields that are set.
func completeness(rec *models.CanonicalRecord) int {
	filled := []bool{
		rec.ContainerNumber != "",
		rec.Status != "",
		rec.Carrier != "",
		rec.CurrentLocation != nil,
		rec.Origin != nil,
		rec.Destination != nil,
		rec.ETA != nil,
		rec.ETD != nil,
		rec.ATA != nil,
		rec.ATD != nil,
		rec.Vessel != "",
		rec.Voyage != "",
		rec.BookingNumber != "",
		rec.BillOfLading != "",
	}
	n := 0
	for _, ok := range filled {
		if ok {
			n++
		}
	}
	return int(math.Round(float64(n) * 100 / float64(len(filled))))
}
