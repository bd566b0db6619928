package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/metrics"
	"github.com/naveego/plugin-sage/pkg/models"
	"github.com/naveego/plugin-sage/pkg/observability"
)

// TimedOut is the ack error of a write that missed its commit SLA
const TimedOut = "timed out"

// ErrTimedOut is returned by DetachedPut when the SLA elapses first
var ErrTimedOut = errors.New(errors.ErrorTypeTimeout, TimedOut)

// WriteJob is the schema and commit SLA set by PrepareWrite
type WriteJob struct {
	Schema    *models.Schema
	CommitSLA time.Duration
}

// Stats summarizes one write stream
type Stats struct {
	Received  int
	Succeeded int
	Failed    int
	TimedOut  int
}

// Writer applies a stream of records to a backend
type Writer struct {
	backend core.Backend
}

// NewWriter creates a writer for the backend
func NewWriter(backend core.Backend) *Writer {
	return &Writer{backend: backend}
}

// Run receives records one at a time while active reports true, writes
// each under the job's commit SLA and sends one ack per record, in order.
// io.EOF from recv ends the stream normally.
func (w *Writer) Run(ctx context.Context, job WriteJob, recv func() (*models.Record, error), send func(*models.RecordAck) error, active func() bool) (stats Stats, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.Write", attribute.String("schema", job.Schema.ID))
	defer func() {
		span.SetAttribute("received", stats.Received)
		span.SetAttribute("failed", stats.Failed+stats.TimedOut)
		span.End(err)
	}()

	log := logger.WithContext(logger.WithSchemaID(ctx, job.Schema.ID))
	tracker := metrics.NewThroughputTracker(job.Schema.ID, "write")
	defer tracker.GetAndReset()

	for active() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		record, err := recv()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, err
		}
		stats.Received++

		ack := w.put(ctx, job, record, &stats)
		if err := send(ack); err != nil {
			return stats, err
		}
		tracker.Increment(1)
	}

	log.Info(fmt.Sprintf("Wrote %d of %d records", stats.Succeeded, stats.Received),
		zap.Int("failed", stats.Failed),
		zap.Int("timed_out", stats.TimedOut))
	return stats, nil
}

func (w *Writer) put(ctx context.Context, job WriteJob, record *models.Record, stats *Stats) *models.RecordAck {
	ack := &models.RecordAck{CorrelationID: record.CorrelationID}
	log := logger.WithContext(ctx).With(zap.String("correlation_id", record.CorrelationID))

	timer := metrics.NewTimer()
	err := DetachedPut(ctx, job.CommitSLA, func(ctx context.Context) error {
		return w.backend.Put(ctx, job.Schema, record)
	})

	switch {
	case err == nil:
		stats.Succeeded++
		metrics.ObserveWrite(job.Schema.ID, timer.Stop(), nil)
	case stderrors.Is(err, ErrTimedOut):
		stats.TimedOut++
		ack.Error = TimedOut
		metrics.RecordsWritten.WithLabelValues(job.Schema.ID, metrics.StatusTimeout).Inc()
		log.Warn("write exceeded commit SLA", zap.Duration("sla", job.CommitSLA))
	default:
		stats.Failed++
		ack.Error = err.Error()
		metrics.ObserveWrite(job.Schema.ID, timer.Stop(), err)
		log.Warn("write failed", zap.Error(err))
	}
	return ack
}

// DetachedPut runs fn on its own goroutine and waits at most sla for it.
// When the SLA or ctx ends first the goroutine is abandoned, not
// cancelled: fn keeps running and its write may still land after the
// caller reported a timeout. fn sees ctx's values but never its
// cancellation. A non-positive sla waits indefinitely.
func DetachedPut(ctx context.Context, sla time.Duration, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	detached := context.WithoutCancel(ctx)
	go func() {
		done <- fn(detached)
	}()

	var expired <-chan time.Time
	if sla > 0 {
		t := time.NewTimer(sla)
		defer t.Stop()
		expired = t.C
	}

	select {
	case err := <-done:
		return err
	case <-expired:
		return ErrTimedOut
	case <-ctx.Done():
		return ctx.Err()
	}
}
