// Package sage is the dispatch backend: it reaches Sage 100 business objects
// through the ProvideX COM automation layer.
package sage

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/cursor"
	"github.com/naveego/plugin-sage/pkg/dispatch"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/json"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/models"
	"github.com/naveego/plugin-sage/pkg/schema"
	"github.com/naveego/plugin-sage/pkg/session"
)

// Kind is the registry name of the dispatch backend
const Kind = "dispatch"

// Backend reads and writes business objects over one Sage session
type Backend struct {
	session   *session.Session
	resolver  *busobject.Resolver
	inference *schema.TypeInferenceEngine
	logger    *zap.Logger
}

// New opens a session with the host settings. A nil dispatch factory
// selects the COM automation layer of the local machine.
func New(ctx context.Context, opts core.Options) (core.Backend, error) {
	if opts.Settings == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "dispatch backend requires settings")
	}

	factory := opts.Dispatch
	if factory == nil {
		factory = dispatch.NewOLEFactory()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = busobject.NewResolver()
	}

	sess, err := session.Open(ctx, factory, session.Credentials{
		Username:    opts.Settings.Username,
		Password:    opts.Settings.Password,
		CompanyCode: opts.Settings.CompanyCode,
		HomePath:    opts.Settings.HomePath,
	})
	if err != nil {
		return nil, err
	}

	log := logger.Get().With(zap.String("backend", Kind))
	return &Backend{
		session:   sess,
		resolver:  resolver,
		inference: schema.NewTypeInferenceEngine(log),
		logger:    log,
	}, nil
}

// Kind implements core.Backend
func (b *Backend) Kind() string {
	return Kind
}

// Discover samples the first row of the module and infers one property
// per column. Write-only modules return their fixed write schema.
func (b *Backend) Discover(ctx context.Context, cfg busobject.ModuleConfig) (*models.Schema, error) {
	if cfg.WriteOnly {
		return writeSchema(cfg), nil
	}

	c, err := cursor.Open(ctx, b.session, cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	columns, row, err := c.ReadFirst(ctx)
	if err != nil {
		return nil, err
	}

	keys := cfg.Keys
	if len(keys) == 0 {
		if keys, err = c.KeyColumns(ctx); err != nil {
			return nil, err
		}
	}

	sample := make([]schema.Column, len(columns))
	for i, col := range columns {
		sample[i] = schema.Column{Name: col, Value: row[col]}
	}

	return &models.Schema{
		ID:                cfg.LogicalName,
		Name:              cfg.LogicalName,
		Description:       cfg.Table,
		Properties:        b.inference.BuildProperties(sample, keys),
		PublisherMetaJSON: models.EncodeSchemaMeta(cfg.LogicalName),
		DataFlowDirection: models.DirectionReadWrite,
	}, nil
}

// Rows opens a cursor over the schema's module. Values are converted to
// the declared property types.
func (b *Backend) Rows(ctx context.Context, s *models.Schema) (core.Rows, error) {
	cfg, err := b.config(s)
	if err != nil {
		return nil, err
	}

	c, err := cursor.Open(ctx, b.session, cfg)
	if err != nil {
		return nil, err
	}
	rows, err := c.ReadAll(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	return &typedRows{cursor: c, rows: rows, schema: s, inference: b.inference}, nil
}

// Put writes one record. The record's key is positioned first; an existing
// row is updated in place, otherwise a new row is inserted with a key from
// the module's key generator.
func (b *Backend) Put(ctx context.Context, s *models.Schema, record *models.Record) error {
	cfg, err := b.config(s)
	if err != nil {
		return err
	}
	data, err := record.Data()
	if err != nil {
		return err
	}

	c, err := cursor.Open(ctx, b.session, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.WriteOnly {
		return b.insertSalesOrder(ctx, c, cfg, data)
	}

	values := stringValues(data)
	keys, keyValues, err := b.recordKeys(ctx, c, cfg, values)
	if err != nil {
		return err
	}

	if err := c.SetKey(ctx, keys, keyValues); err != nil {
		return err
	}
	found, err := c.Exists(ctx)
	if err != nil {
		return err
	}
	if found {
		return c.Update(ctx, values)
	}

	key, err := c.Insert(ctx, values, cfg.KeyGenerator)
	if err != nil {
		return err
	}
	b.logger.Debug("inserted row", zap.String("module", cfg.LogicalName), zap.String("key", key))
	return nil
}

// Close ends the session
func (b *Backend) Close() error {
	b.session.Close()
	return nil
}

func (b *Backend) config(s *models.Schema) (busobject.ModuleConfig, error) {
	module, err := s.Module()
	if err != nil {
		return busobject.ModuleConfig{}, err
	}
	return b.resolver.Resolve(module)
}

// recordKeys picks the record fields that address the row: the configured
// keys when the record carries them, else the keys the source reports.
func (b *Backend) recordKeys(ctx context.Context, c *cursor.Cursor, cfg busobject.ModuleConfig, values map[string]string) ([]string, []string, error) {
	keys, keyValues := matchKeys(cfg.Keys, values)
	if len(keys) > 0 {
		return keys, keyValues, nil
	}

	sourceKeys, err := c.KeyColumns(ctx)
	if err != nil {
		return nil, nil, err
	}
	keys, keyValues = matchKeys(sourceKeys, values)
	if len(keys) == 0 {
		return nil, nil, errors.Newf(errors.ErrorTypeWrite, "record carries none of the key columns of %s", cfg.LogicalName).
			WithDetail("keys", sourceKeys)
	}
	return keys, keyValues, nil
}

// matchKeys returns the record fields matching each key, in key order
func matchKeys(keys []string, values map[string]string) ([]string, []string) {
	var fields, out []string
	for _, k := range keys {
		for field, v := range values {
			if schema.MatchesColumn(field, k) {
				fields = append(fields, field)
				out = append(out, v)
				break
			}
		}
	}
	return fields, out
}

// stringValues renders decoded record values the way the source expects
// them. Nulls are dropped so they leave stored values untouched.
func stringValues(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := formatValue(v); ok {
			out[k] = s
		}
	}
	return out
}

func formatValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	case []interface{}, map[string]interface{}:
		s, err := json.MarshalString(t)
		if err != nil {
			return fmt.Sprint(t), true
		}
		return s, true
	default:
		return fmt.Sprint(t), true
	}
}

// typedRows converts cursor rows into typed values
type typedRows struct {
	cursor    *cursor.Cursor
	rows      *cursor.Rows
	schema    *models.Schema
	inference *schema.TypeInferenceEngine
	row       map[string]interface{}
}

func (r *typedRows) Next() bool {
	if !r.rows.Next() {
		return false
	}
	raw := r.rows.Row()
	r.row = make(map[string]interface{}, len(raw))
	for col, v := range raw {
		// keys go back to SetKey as read
		typ := models.PropertyTypeString
		if p, ok := r.schema.Property(col); ok && !p.IsKey {
			typ = p.Type
		}
		r.row[col] = r.inference.Coerce(v, typ).Interface()
	}
	return true
}

func (r *typedRows) Row() map[string]interface{} { return r.row }

func (r *typedRows) Err() error { return r.rows.Err() }

func (r *typedRows) Close() error {
	r.cursor.Close()
	return nil
}

// sortedKeys returns map keys in name order
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
