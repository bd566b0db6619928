package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/models"
)

// memBackend is an in-memory core.Backend for pipeline tests
type memBackend struct {
	mu           sync.Mutex
	rows         []map[string]interface{}
	rowsErr      error
	discoverErr  map[string]error
	discovered   []string
	put          func(ctx context.Context, s *models.Schema, r *models.Record) error
	discoverWait time.Duration

	inflight    int32
	maxInflight int32
	nextCalls   int32
	closed      int32
}

func (b *memBackend) Kind() string { return "memory" }

func (b *memBackend) Discover(ctx context.Context, cfg busobject.ModuleConfig) (*models.Schema, error) {
	n := atomic.AddInt32(&b.inflight, 1)
	defer atomic.AddInt32(&b.inflight, -1)
	for {
		max := atomic.LoadInt32(&b.maxInflight)
		if n <= max || atomic.CompareAndSwapInt32(&b.maxInflight, max, n) {
			break
		}
	}
	if b.discoverWait > 0 {
		time.Sleep(b.discoverWait)
	}

	b.mu.Lock()
	b.discovered = append(b.discovered, cfg.LogicalName)
	err := b.discoverErr[cfg.LogicalName]
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return &models.Schema{
		ID:                cfg.LogicalName,
		Name:              cfg.LogicalName,
		Description:       cfg.Table,
		PublisherMetaJSON: models.EncodeSchemaMeta(cfg.LogicalName),
		DataFlowDirection: models.DirectionReadWrite,
		Properties:        []models.Property{{ID: "col", Name: "col", Type: models.PropertyTypeString}},
	}, nil
}

func (b *memBackend) Rows(ctx context.Context, s *models.Schema) (core.Rows, error) {
	if _, err := s.Module(); err != nil {
		return nil, err
	}
	return &memRows{backend: b, rows: b.rows, err: b.rowsErr, pos: -1}, nil
}

func (b *memBackend) Put(ctx context.Context, s *models.Schema, r *models.Record) error {
	if b.put == nil {
		return nil
	}
	return b.put(ctx, s, r)
}

func (b *memBackend) Close() error { return nil }

func (b *memBackend) discoveredModules() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.discovered...)
}

type memRows struct {
	backend *memBackend
	rows    []map[string]interface{}
	err     error
	pos     int
}

func (r *memRows) Next() bool {
	atomic.AddInt32(&r.backend.nextCalls, 1)
	if r.pos+1 >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *memRows) Row() map[string]interface{} { return r.rows[r.pos] }
func (r *memRows) Err() error                  { return r.err }

func (r *memRows) Close() error {
	atomic.AddInt32(&r.backend.closed, 1)
	return nil
}

func testSchema(module string) *models.Schema {
	return &models.Schema{
		ID:                module,
		Name:              module,
		PublisherMetaJSON: models.EncodeSchemaMeta(module),
	}
}

var errCorrupt = errors.New(errors.ErrorTypeDataIntegrity, "row has 3 fields, expected 4")
