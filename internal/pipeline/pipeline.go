// Package pipeline turns raw carrier records into canonical records through
// five ordered stages:
//
//  1. validation drops items without a valid container number or a status
//  2. standardization maps fields onto the canonical shape
//  3. enrichment derives transit days, free time and D&D risk, port coordinates
//  4. duplicate detection merges repeat sightings and suppresses unchanged ones
//  5. quality scoring grades each record
//
// Stages share a Batch. Any stage error aborts the run and no records are
// returned; bad individual items are dropped with a warning instead.
//
// # Usage
//
//	p := pipeline.New(cfg.Pipeline, dedupstore.NewMemoryStore())
//	records, err := p.Process(ctx, raw, "maersk", connection.Partition())
package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/config"
	"github.com/ajitpratap0/freightsync/pkg/dedupstore"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/logger"
	"github.com/ajitpratap0/freightsync/pkg/metrics"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

const tracerName = "github.com/ajitpratap0/freightsync/internal/pipeline"

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Process(ctx context.Context, batch *Batch) error
}

// Batch is the state a run passes from stage to stage. Validation filters
// Raw; standardization fills Records from it; later stages work on Records.
type Batch struct {
	CarrierID string
	Partition string
	Source    string
	Now       time.Time

	Raw     []models.RawRecord
	Records []*models.CanonicalRecord
}

// Len is the number of items currently in flight.
func (b *Batch) Len() int {
	if b.Records != nil {
		return len(b.Records)
	}
	return len(b.Raw)
}

// Input is one run's raw payload and provenance.
type Input struct {
	Raw       interface{}
	CarrierID string
	// Partition scopes duplicate detection, normally the tenant or connection id
	Partition string
	// Source is stamped on every record; it defaults to CarrierID
	Source string
}

// Pipeline runs the stages in order.
type Pipeline struct {
	stages []Stage
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithLogger sets the pipeline's logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// New builds the standard five stage pipeline over store.
func New(cfg config.PipelineConfig, store dedupstore.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		logger: logger.Get().With(zap.String("component", "pipeline")),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	freeTime := cfg.FreeTimeDays
	if freeTime <= 0 {
		freeTime = 5
	}
	ttl := cfg.DedupTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	p.stages = []Stage{
		NewValidationStage(p.logger),
		NewStandardizationStage(),
		NewEnrichmentStage(freeTime),
		NewDedupStage(store, ttl, cfg.SignificantFields, p.logger),
		NewQualityStage(),
	}
	return p
}

// NewWithStages builds a pipeline from explicit stages.
func NewWithStages(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages: stages,
		logger: logger.Get().With(zap.String("component", "pipeline")),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs raw through every stage for carrierID, deduplicating within
// partition. raw must be a list of objects.
func (p *Pipeline) Process(ctx context.Context, raw interface{}, carrierID, partition string) ([]models.CanonicalRecord, error) {
	return p.Run(ctx, Input{Raw: raw, CarrierID: carrierID, Partition: partition})
}

// Run is Process with explicit provenance.
func (p *Pipeline) Run(ctx context.Context, in Input) ([]models.CanonicalRecord, error) {
	items, err := toRawRecords(in.Raw)
	if err != nil {
		return nil, err
	}

	source := in.Source
	if source == "" {
		source = in.CarrierID
	}
	partition := in.Partition
	if partition == "" {
		partition = in.CarrierID
	}
	batch := &Batch{
		CarrierID: in.CarrierID,
		Partition: partition,
		Source:    source,
		Now:       p.now().UTC(),
		Raw:       items,
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.Process", trace.WithAttributes(
		attribute.String("carrier", in.CarrierID),
		attribute.Int("input_records", len(items)),
	))
	defer span.End()

	for _, stage := range p.stages {
		if err := p.runStage(ctx, stage, batch); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	out := make([]models.CanonicalRecord, 0, len(batch.Records))
	for _, rec := range batch.Records {
		out = append(out, *rec)
	}
	span.SetAttributes(attribute.Int("output_records", len(out)))

	p.logger.Debug("pipeline run complete",
		zap.String("carrier_id", in.CarrierID),
		zap.Int("input", len(items)),
		zap.Int("output", len(out)))
	return out, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage, batch *Batch) error {
	ctx, span := p.tracer.Start(ctx, "pipeline."+stage.Name())
	defer span.End()

	before := batch.Len()
	if err := stage.Process(ctx, batch); err != nil {
		span.RecordError(err)
		var structured *errors.Error
		if errors.As(err, &structured) {
			return err
		}
		return errors.Wrap(err, errors.ErrorTypeInternal, stage.Name()+" stage failed")
	}
	after := batch.Len()

	metrics.PipelineRecords.WithLabelValues(stage.Name(), "passed").Add(float64(after))
	if dropped := before - after; dropped > 0 {
		metrics.PipelineRecords.WithLabelValues(stage.Name(), "dropped").Add(float64(dropped))
	}
	span.SetAttributes(attribute.Int("in", before), attribute.Int("out", after))
	return nil
}

// toRawRecords accepts the list shapes adapters and callers produce. Elements
// that are not objects become nil and are dropped by validation.
func toRawRecords(raw interface{}) ([]models.RawRecord, error) {
	switch v := raw.(type) {
	case []models.RawRecord:
		return append([]models.RawRecord(nil), v...), nil
	case []map[string]interface{}:
		out := make([]models.RawRecord, len(v))
		for i, m := range v {
			out[i] = m
		}
		return out, nil
	case []interface{}:
		out := make([]models.RawRecord, len(v))
		for i, el := range v {
			switch m := el.(type) {
			case map[string]interface{}:
				out[i] = m
			case models.RawRecord:
				out[i] = m
			}
		}
		return out, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeData, "pipeline input is not a list: %T", raw)
	}
}
