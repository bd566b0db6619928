package pipeline

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/metrics"
	"github.com/naveego/plugin-sage/pkg/models"
	"github.com/naveego/plugin-sage/pkg/observability"
)

// Read streams every row of the schema's module to emit as an upsert
// record. It stops without error once limit records were emitted (0 means
// no limit), when active reports false, or when ctx is done. It returns
// the number of records emitted.
func Read(ctx context.Context, backend core.Backend, s *models.Schema, limit int, active func() bool, emit func(*models.Record) error) (count int, err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.Read", attribute.String("schema", s.ID))
	defer func() {
		span.SetAttribute("records", count)
		span.End(err)
	}()

	log := logger.WithContext(logger.WithSchemaID(ctx, s.ID))
	tracker := metrics.NewThroughputTracker(s.ID, "read")
	defer tracker.GetAndReset()

	rows, err := backend.Rows(ctx, s)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn("failed to close cursor", zap.Error(cerr))
		}
	}()

	for {
		// checked before advancing so a reached limit never reads the next row
		if (limit > 0 && count == limit) || !active() || ctx.Err() != nil {
			log.Debug("read stopped early", zap.Int("emitted", count), zap.Int("limit", limit))
			return count, nil
		}
		if !rows.Next() {
			break
		}

		record, err := models.NewUpsertRecord(rows.Row())
		if err != nil {
			return count, err
		}
		if err := emit(record); err != nil {
			return count, err
		}
		count++
		tracker.Increment(1)
		metrics.RecordsRead.WithLabelValues(s.ID).Inc()
	}
	if err := rows.Err(); err != nil {
		return count, err
	}

	log.Debug("read complete", zap.Int("emitted", count))
	return count, nil
}
