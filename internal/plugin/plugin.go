// Package plugin holds the publisher's connection state and runs each host
// call against the connected backend. It is transport independent; the
// gRPC layer in internal/server adapts it to the wire.
package plugin

import (
	"context"
	"database/sql"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/internal/pipeline"
	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/config"
	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/connector/registry"
	"github.com/naveego/plugin-sage/pkg/dispatch"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/metrics"
	"github.com/naveego/plugin-sage/pkg/models"
	"github.com/naveego/plugin-sage/pkg/observability"
)

// DiscoverMode selects which schemas DiscoverSchemas returns
type DiscoverMode string

const (
	// DiscoverAll describes every module in the connected settings
	DiscoverAll DiscoverMode = "ALL"
	// DiscoverRefresh re-describes only the given schemas
	DiscoverRefresh DiscoverMode = "REFRESH"
)

// ConnectResponse reports why a connect failed. Both errors are empty on
// success.
type ConnectResponse struct {
	SettingsError   string `json:"settingsError"`
	ConnectionError string `json:"connectionError"`
	OauthStateJSON  string `json:"oauthStateJson"`
}

// Succeeded reports whether the connect succeeded
func (r *ConnectResponse) Succeeded() bool {
	return r.SettingsError == "" && r.ConnectionError == ""
}

// BackendFactory creates the backend named by kind
type BackendFactory func(ctx context.Context, kind string, opts core.Options) (core.Backend, error)

// Options configure a Plugin
type Options struct {
	Config *config.PluginConfig
	// Modules are registered on top of the built-in module table
	Modules []busobject.ModuleConfig
	// Dispatch overrides the COM factory of the dispatch backend
	Dispatch dispatch.Factory
	// DB overrides the connection pool of the sql backend
	DB *sql.DB
	// NewBackend defaults to the global backend registry
	NewBackend BackendFactory
}

// Plugin is the publisher's connection state machine
type Plugin struct {
	cfg        *config.PluginConfig
	modules    []busobject.ModuleConfig
	dispatch   dispatch.Factory
	db         *sql.DB
	newBackend BackendFactory

	mu       sync.Mutex
	backend  core.Backend
	settings *config.Settings
	resolver *busobject.Resolver
	writeJob *pipeline.WriteJob
	session  chan struct{}

	connected       atomic.Bool
	writeConfigured atomic.Bool
}

// New creates a disconnected plugin
func New(opts Options) *Plugin {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewPluginConfig()
	}
	newBackend := opts.NewBackend
	if newBackend == nil {
		newBackend = registry.Create
	}
	return &Plugin{
		cfg:        cfg,
		modules:    opts.Modules,
		dispatch:   opts.Dispatch,
		db:         opts.DB,
		newBackend: newBackend,
	}
}

// begin tags ctx with a fresh request id and starts the call's span
func begin(ctx context.Context, op string) (context.Context, *observability.Span, *zap.Logger) {
	ctx = logger.WithRequestID(ctx, uuid.NewString())
	ctx, span := observability.StartSpan(ctx, "plugin."+op)
	log := logger.WithContext(ctx).With(zap.String("rpc", op))
	log.Debug("call started")
	return ctx, span, log
}

// Connect parses the host settings and connects the configured backend,
// replacing any previous connection. Settings and connection failures
// are reported in the response, not as an error.
func (p *Plugin) Connect(ctx context.Context, settingsJSON string) (*ConnectResponse, error) {
	resp, _, err := p.connect(ctx, settingsJSON, false)
	return resp, err
}

// connect replaces the connection. With withSession set, a successful
// connect also opens the session channel under the same lock.
func (p *Plugin) connect(ctx context.Context, settingsJSON string, withSession bool) (resp *ConnectResponse, session chan struct{}, err error) {
	ctx, span, log := begin(ctx, "Connect")
	defer func() { span.End(err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.disconnectLocked(log)
	resp = &ConnectResponse{}

	settings, err := config.ParseSettings(settingsJSON)
	if err != nil {
		log.Warn("invalid settings", zap.Error(err))
		resp.SettingsError = message(err)
		return resp, nil, nil
	}

	resolver := busobject.NewResolver(p.modules...)
	backend, err := p.newBackend(ctx, p.cfg.Backend.Kind, core.Options{
		Settings: settings,
		Config:   p.cfg,
		Resolver: resolver,
		Dispatch: p.dispatch,
		DB:       p.db,
	})
	if err != nil {
		log.Error("connection failed", zap.String("backend", p.cfg.Backend.Kind), zap.Error(err))
		resp.ConnectionError = err.Error()
		return resp, nil, nil
	}

	p.backend = backend
	p.settings = settings
	p.resolver = resolver
	p.connected.Store(true)
	metrics.ActiveSessions.Set(1)
	if withSession {
		p.session = make(chan struct{})
		session = p.session
	}

	log.Info("connected",
		zap.String("backend", backend.Kind()),
		zap.String("company", settings.CompanyCode),
		zap.Strings("modules", settings.Modules()))
	return resp, session, nil
}

// ConnectSession connects, sends the result, then blocks until the
// session is released by Disconnect, by another ConnectSession or by ctx.
func (p *Plugin) ConnectSession(ctx context.Context, settingsJSON string, send func(*ConnectResponse) error) error {
	resp, session, err := p.connect(ctx, settingsJSON, true)
	if err != nil {
		return err
	}
	if err := send(resp); err != nil {
		return err
	}
	if session == nil {
		return nil
	}

	select {
	case <-session:
	case <-ctx.Done():
	}
	return nil
}

// DiscoverSchemas describes the connected modules. Refresh mode only
// describes the modules named by toRefresh's metadata.
func (p *Plugin) DiscoverSchemas(ctx context.Context, mode DiscoverMode, toRefresh []*models.Schema) (schemas []*models.Schema, err error) {
	ctx, span, log := begin(ctx, "DiscoverSchemas")
	defer func() { span.End(err) }()

	backend, settings, resolver, err := p.state()
	if err != nil {
		return nil, err
	}

	d := pipeline.NewDiscoverer(backend, resolver, p.cfg.Write.DiscoveryConcurrency)
	switch mode {
	case DiscoverRefresh:
		schemas, err = d.DiscoverRefresh(ctx, toRefresh)
	default:
		schemas, err = d.DiscoverAll(ctx, settings.Modules())
	}
	if err != nil {
		return nil, err
	}

	log.Info("schemas discovered", zap.String("mode", string(mode)), zap.Int("count", len(schemas)))
	return schemas, nil
}

// ReadStream emits the schema's records until limit is reached (0 means
// all), the plugin disconnects or ctx ends.
func (p *Plugin) ReadStream(ctx context.Context, schema *models.Schema, limit int, emit func(*models.Record) error) (count int, err error) {
	ctx, span, log := begin(ctx, "ReadStream")
	defer func() { span.End(err) }()

	backend, _, _, err := p.state()
	if err != nil {
		return 0, err
	}

	count, err = pipeline.Read(ctx, backend, schema, limit, p.connected.Load, emit)
	if err != nil {
		log.Error("read failed", zap.String("schema_id", schema.ID), zap.Int("emitted", count), zap.Error(err))
		return count, err
	}
	log.Info("read finished", zap.String("schema_id", schema.ID), zap.Int("emitted", count))
	return count, nil
}

// ConfigureWrite renders the write-back form of backends that accept one
func (p *Plugin) ConfigureWrite(ctx context.Context, form *core.WriteForm) (result *core.WriteFormResult, err error) {
	ctx, span, _ := begin(ctx, "ConfigureWrite")
	defer func() { span.End(err) }()

	backend, _, _, err := p.state()
	if err != nil {
		return nil, err
	}
	configurer, ok := backend.(core.WriteBackConfigurer)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeConfig, "backend %s does not support write-back configuration", backend.Kind())
	}
	return configurer.ConfigureWrite(ctx, form)
}

// PrepareWrite sets the schema and commit SLA of the next write stream.
// A non-positive SLA selects the configured default.
func (p *Plugin) PrepareWrite(ctx context.Context, schema *models.Schema, commitSLASeconds int) (err error) {
	_, span, log := begin(ctx, "PrepareWrite")
	defer func() { span.End(err) }()

	if _, _, _, err := p.state(); err != nil {
		return err
	}
	if schema == nil {
		return errors.New(errors.ErrorTypeValidation, "write schema must be set")
	}

	sla := time.Duration(commitSLASeconds) * time.Second
	if sla <= 0 {
		sla = p.cfg.Write.DefaultCommitSLA
	}

	p.mu.Lock()
	p.writeJob = &pipeline.WriteJob{Schema: schema, CommitSLA: sla}
	p.mu.Unlock()
	p.writeConfigured.Store(true)

	log.Info("write prepared", zap.String("schema_id", schema.ID), zap.Duration("commit_sla", sla))
	return nil
}

// WriteStream writes received records with the prepared job and sends
// one ack per record
func (p *Plugin) WriteStream(ctx context.Context, recv func() (*models.Record, error), send func(*models.RecordAck) error) (stats pipeline.Stats, err error) {
	ctx, span, _ := begin(ctx, "WriteStream")
	defer func() { span.End(err) }()

	backend, _, _, err := p.state()
	if err != nil {
		return stats, err
	}

	p.mu.Lock()
	job := p.writeJob
	p.mu.Unlock()
	if job == nil {
		return stats, errors.New(errors.ErrorTypeConfig, "write has not been prepared")
	}

	active := func() bool { return p.connected.Load() && p.writeConfigured.Load() }
	return pipeline.NewWriter(backend).Run(ctx, *job, recv, send, active)
}

// Disconnect clears the connection, releases ConnectSession waiters and
// closes the backend
func (p *Plugin) Disconnect(ctx context.Context) error {
	_, span, log := begin(ctx, "Disconnect")
	defer span.End(nil)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnectLocked(log)
	return nil
}

// Connected reports whether a backend is connected
func (p *Plugin) Connected() bool {
	return p.connected.Load()
}

func (p *Plugin) disconnectLocked(log *zap.Logger) {
	p.connected.Store(false)
	p.writeConfigured.Store(false)
	p.writeJob = nil
	p.settings = nil
	p.resolver = nil

	if p.session != nil {
		close(p.session)
		p.session = nil
	}

	if p.backend != nil {
		if err := p.backend.Close(); err != nil {
			log.Warn("failed to close backend", zap.Error(err))
		}
		p.backend = nil
		metrics.ActiveSessions.Set(0)
		log.Info("disconnected")
	}
}

func (p *Plugin) state() (core.Backend, *config.Settings, *busobject.Resolver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backend == nil || !p.connected.Load() {
		return nil, nil, nil, errors.New(errors.ErrorTypeConnection, "not connected")
	}
	return p.backend, p.settings, p.resolver, nil
}

// message returns the bare message of a structured error
func message(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
