package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/internal/pipeline"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/logger"
	"github.com/ajitpratap0/freightsync/pkg/metrics"
	"github.com/ajitpratap0/freightsync/pkg/models"
	"github.com/ajitpratap0/freightsync/pkg/sink"
)

// ParamFile is the params key holding a manual connection's core.UploadFile.
const ParamFile = "file"

// FetchData fetches dataType over connection id and returns the canonical
// records the pipeline produced. Transient failures are retried up to
// MaxRetries times; every failure is audit-logged.
func (e *Engine) FetchData(ctx context.Context, id string, dataType core.DataType, params core.Params) ([]models.CanonicalRecord, error) {
	timer := metrics.NewTimer()

	conn, err := e.conns.Store().Load(ctx, id)
	if err != nil {
		e.audit(ctx, models.AuditEvent{
			Action:       models.AuditDataFetchFailed,
			ConnectionID: id,
			DataType:     string(dataType),
			Error:        err.Error(),
			Details:      map[string]interface{}{"error_type": string(errors.TypeOf(err))},
		})
		return nil, err
	}
	ctx = logger.ContextWithConnection(ctx, conn.ID, conn.CarrierID, conn.TenantID)
	log := e.logger.With(
		zap.String("connection_id", conn.ID),
		zap.String("carrier_id", conn.CarrierID),
		zap.String("data_type", string(dataType)))

	ctx, span := e.tracer.Start(ctx, "engine.FetchData", trace.WithAttributes(
		attribute.String("connection_id", conn.ID),
		attribute.String("carrier", conn.CarrierID),
		attribute.String("data_type", string(dataType)),
	))
	defer span.End()

	records, err := e.fetchWithRetry(ctx, conn, dataType, params, log)

	metrics.FetchRequests.WithLabelValues(conn.CarrierID, string(dataType), metrics.Outcome(err)).Inc()
	metrics.FetchDuration.WithLabelValues(conn.CarrierID, string(dataType)).Observe(timer.Stop().Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.audit(ctx, models.AuditEvent{
			Action:   models.AuditDataFetchFailed,
			DataType: string(dataType),
			Error:    err.Error(),
			Details:  map[string]interface{}{"error_type": string(errors.TypeOf(err))},
		})
		log.Error("fetch failed", zap.Error(err))
		return nil, err
	}

	span.SetAttributes(attribute.Int("records", len(records)))
	e.audit(ctx, models.AuditEvent{
		Action:   models.AuditDataFetched,
		DataType: string(dataType),
		Details:  map[string]interface{}{"records": len(records)},
	})

	meta := sink.Meta{
		ConnectionID: conn.ID,
		CarrierID:    conn.CarrierID,
		TenantID:     conn.TenantID,
		DataType:     string(dataType),
	}
	if err := e.publisher.PublishRecords(ctx, meta, records); err != nil {
		log.Warn("failed to publish records", zap.Error(err))
	}

	log.Info("fetch complete", zap.Int("records", len(records)))
	return records, nil
}

func (e *Engine) fetchWithRetry(ctx context.Context, conn *models.Connection, dataType core.DataType,
	params core.Params, log *zap.Logger) ([]models.CanonicalRecord, error) {
	if !conn.Active() {
		return nil, errors.Newf(errors.ErrorTypeConfig, "connection %s is inactive", conn.ID)
	}
	adapter, err := e.adapter(conn.CarrierID)
	if err != nil {
		return nil, err
	}
	limiter := e.limiters.Get(conn.ID, adapter.Descriptor().RateLimit)

	for attempt := 0; ; attempt++ {
		if err := limiter.CheckLimit(); err != nil {
			metrics.RateLimitRejections.WithLabelValues(conn.CarrierID).Inc()
			return nil, err
		}

		records, err := e.attempt(ctx, conn, adapter, dataType, params)
		if err == nil {
			return records, nil
		}
		if !errors.IsRetryable(err) {
			return nil, err
		}
		if attempt >= e.cfg.MaxRetries {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal,
				fmt.Sprintf("Max retries exceeded (%d)", e.cfg.MaxRetries)).
				WithDetail("retries", e.cfg.MaxRetries)
		}

		delay := e.backoff(attempt, err)
		metrics.FetchRetries.WithLabelValues(conn.CarrierID).Inc()
		log.Warn("retrying fetch",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := e.sleep(ctx, delay); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "fetch cancelled during backoff")
		}
	}
}

// backoff is min(BaseDelay*2^attempt, MaxDelay), raised to a carrier's
// retry-after hint when that is longer.
func (e *Engine) backoff(attempt int, err error) time.Duration {
	delay := e.cfg.MaxDelay
	if attempt < 31 {
		if d := e.cfg.BaseDelay << uint(attempt); d > 0 && d < delay {
			delay = d
		}
	}
	if hint, ok := errors.RetryAfter(err); ok && hint > delay {
		delay = hint
	}
	return delay
}

// attempt runs one fetch and pipeline pass and records it in the
// connection's running metrics.
func (e *Engine) attempt(ctx context.Context, conn *models.Connection, adapter core.Adapter,
	dataType core.DataType, params core.Params) ([]models.CanonicalRecord, error) {
	start := e.now()

	records, err := e.fetchOnce(ctx, conn, adapter, dataType, params)

	elapsed := e.now().Sub(start)
	e.recordAttempt(ctx, conn.ID, elapsed, err)
	return records, err
}

func (e *Engine) fetchOnce(ctx context.Context, conn *models.Connection, adapter core.Adapter,
	dataType core.DataType, params core.Params) ([]models.CanonicalRecord, error) {
	creds, err := e.vault.Decrypt(ctx, conn.Credentials)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	raw, err := e.dispatch(rctx, conn, adapter, creds, dataType, params)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !errors.IsType(err, errors.ErrorTypeTimeout) {
			return nil, errors.Wrap(err, errors.ErrorTypeTimeout,
				fmt.Sprintf("request timed out after %s", e.cfg.RequestTimeout))
		}
		return nil, err
	}

	return e.pipeline.Run(ctx, pipeline.Input{
		Raw:       raw,
		CarrierID: conn.CarrierID,
		Partition: conn.Partition(),
		Source:    conn.CarrierID,
	})
}

func (e *Engine) dispatch(ctx context.Context, conn *models.Connection, adapter core.Adapter,
	creds models.Credentials, dataType core.DataType, params core.Params) ([]models.RawRecord, error) {
	switch conn.Type {
	case models.TransportAPI:
		return adapter.FetchViaAPI(ctx, creds, dataType, params)
	case models.TransportEDI:
		return adapter.FetchViaEDI(ctx, creds, dataType, params)
	case models.TransportEmail:
		return adapter.FetchViaEmail(ctx, creds, dataType, params)
	case models.TransportWeb:
		return adapter.FetchViaWeb(ctx, creds, dataType, params)
	case models.TransportManual:
		file, err := uploadParam(params)
		if err != nil {
			return nil, err
		}
		raw, err := adapter.ProcessManualUpload(ctx, file)
		if err == nil {
			e.audit(ctx, models.AuditEvent{
				Action:   models.AuditUploadProcessed,
				DataType: string(dataType),
				Details:  map[string]interface{}{"file": file.Name, "records": len(raw)},
			})
		}
		return raw, err
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown connection type: %s", conn.Type)
	}
}

func uploadParam(params core.Params) (core.UploadFile, error) {
	switch f := params[ParamFile].(type) {
	case core.UploadFile:
		return f, nil
	case *core.UploadFile:
		if f != nil {
			return *f, nil
		}
	}
	return core.UploadFile{}, errors.New(errors.ErrorTypeValidation, "manual connections require an uploaded file")
}

// recordAttempt folds one attempt into the connection's running averages.
func (e *Engine) recordAttempt(ctx context.Context, id string, elapsed time.Duration, err error) {
	now := e.now().UTC()
	_, uerr := e.conns.Update(ctx, id, func(c *models.Connection) error {
		m := &c.Metrics
		m.TotalRequests++
		n := float64(m.TotalRequests)
		failed := 0.0
		if err != nil {
			failed = 1
		}
		m.ErrorRate = (m.ErrorRate*(n-1) + failed) / n
		m.AvgResponseTimeMs = (m.AvgResponseTimeMs*(n-1) + float64(elapsed.Milliseconds())) / n
		if err == nil {
			c.LastSync = &now
		}
		return nil
	})
	if uerr != nil {
		e.logger.Warn("failed to update connection metrics", zap.String("connection_id", id), zap.Error(uerr))
	}
}
