// Package pipeline runs the publisher's three data flows against a
// connected backend: schema discovery, streaming reads and streaming
// writes with a per-record commit SLA.
package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/metrics"
	"github.com/naveego/plugin-sage/pkg/models"
	"github.com/naveego/plugin-sage/pkg/observability"
)

// DefaultDiscoveryConcurrency bounds parallel module discovery when the
// caller passes no limit
const DefaultDiscoveryConcurrency = 4

// Discoverer builds schemas for logical module names
type Discoverer struct {
	backend  core.Backend
	resolver *busobject.Resolver
	limit    int
}

// NewDiscoverer creates a discoverer. limit bounds how many modules are
// described at once.
func NewDiscoverer(backend core.Backend, resolver *busobject.Resolver, limit int) *Discoverer {
	if resolver == nil {
		resolver = busobject.NewResolver()
	}
	if limit <= 0 {
		limit = DefaultDiscoveryConcurrency
	}
	return &Discoverer{backend: backend, resolver: resolver, limit: limit}
}

// DiscoverAll describes every named module. A module that fails is
// logged and left out.
func (d *Discoverer) DiscoverAll(ctx context.Context, modules []string) ([]*models.Schema, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.DiscoverAll")
	schemas, err := d.discover(ctx, modules)
	span.SetAttribute("schemas", len(schemas))
	span.End(err)
	return schemas, err
}

// DiscoverRefresh re-describes the modules named by previously issued
// schema metadata. Schemas whose metadata cannot be read are left out.
func (d *Discoverer) DiscoverRefresh(ctx context.Context, toRefresh []*models.Schema) ([]*models.Schema, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.DiscoverRefresh")
	log := logger.WithContext(ctx)

	modules := make([]string, 0, len(toRefresh))
	for _, s := range toRefresh {
		module, err := s.Module()
		if err != nil {
			log.Warn("skipping schema with unreadable metadata",
				zap.String("schema_id", s.ID),
				zap.Error(err))
			metrics.ObserveDiscovery(err)
			continue
		}
		modules = append(modules, module)
	}

	schemas, err := d.discover(ctx, modules)
	span.End(err)
	return schemas, err
}

// discover describes modules concurrently and returns the successes in
// request order. Only context cancellation fails the whole call.
func (d *Discoverer) discover(ctx context.Context, modules []string) ([]*models.Schema, error) {
	results := make([]*models.Schema, len(modules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)

	for i, name := range modules {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := d.describe(gctx, name)
			metrics.ObserveDiscovery(err)
			if err != nil {
				logger.WithContext(logger.WithModule(gctx, name)).Warn("module discovery failed", zap.Error(err))
				return nil
			}
			results[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	schemas := make([]*models.Schema, 0, len(results))
	for _, s := range results {
		if s != nil {
			schemas = append(schemas, s)
		}
	}
	return schemas, nil
}

func (d *Discoverer) describe(ctx context.Context, name string) (*models.Schema, error) {
	cfg, err := d.resolver.Resolve(name)
	if err != nil {
		return nil, err
	}
	return d.backend.Discover(ctx, cfg)
}
