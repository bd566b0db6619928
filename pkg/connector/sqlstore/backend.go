// Package sqlstore is the SQL backend: it reaches Sage tables through a
// database/sql driver, either the MySQL protocol of an ODBC bridge or
// PostgreSQL through pgx.
package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/connector/core"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/models"
	"github.com/naveego/plugin-sage/pkg/schema"
)

// Kind is the registry name of the SQL backend
const Kind = "sql"

// duplicateKeyMessage is reported by the Sage ODBC driver
const duplicateKeyMessage = "Duplicate key not allowed"

// Backend runs table scans and writes over a connection pool
type Backend struct {
	db       *sql.DB
	dialect  dialect
	resolver *busobject.Resolver
	logger   *zap.Logger
}

// New opens and pings the connection pool named by the plugin config.
// opts.DB, when set, is used as is.
func New(ctx context.Context, opts core.Options) (core.Backend, error) {
	if opts.Config == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "sql backend requires plugin config")
	}
	bc := opts.Config.Backend

	db := opts.DB
	if db == nil {
		var err error
		db, err = sql.Open(bc.Driver, bc.DSN)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database")
		}
		if bc.MaxOpenConns > 0 {
			db.SetMaxOpenConns(bc.MaxOpenConns)
		}
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to database").
			WithDetail("driver", bc.Driver)
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = busobject.NewResolver()
	}

	return &Backend{
		db:       db,
		dialect:  dialectFor(bc.Driver),
		resolver: resolver,
		logger:   logger.Get().With(zap.String("backend", Kind), zap.String("driver", bc.Driver)),
	}, nil
}

// Kind implements core.Backend
func (b *Backend) Kind() string {
	return Kind
}

// Discover builds a schema from driver column metadata without reading
// any row.
func (b *Backend) Discover(ctx context.Context, cfg busobject.ModuleConfig) (*models.Schema, error) {
	rows, err := b.db.QueryContext(ctx, describe(cfg.Table))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMetadata, "failed to describe "+cfg.Table).
			WithDetail("module", cfg.LogicalName)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMetadata, "failed to read column types of "+cfg.Table)
	}

	props := make([]models.Property, 0, len(types))
	for i, ct := range types {
		name := columnName(ct.Name(), i)
		nullable, ok := ct.Nullable()
		if !ok {
			nullable = true
		}
		props = append(props, models.Property{
			ID:              name,
			Name:            name,
			Type:            propertyType(ct.DatabaseTypeName()),
			TypeAtSource:    ct.DatabaseTypeName(),
			IsKey:           schema.IsKeyColumn(name, cfg.Keys),
			IsCreateCounter: schema.MatchesColumn(name, schema.CreateCounterColumn),
			IsUpdateCounter: schema.MatchesColumn(name, schema.UpdateCounterColumn),
			IsNullable:      nullable,
		})
	}

	return &models.Schema{
		ID:                cfg.LogicalName,
		Name:              cfg.LogicalName,
		Description:       cfg.Table,
		Properties:        props,
		PublisherMetaJSON: models.EncodeSchemaMeta(cfg.LogicalName),
		DataFlowDirection: models.DirectionReadWrite,
	}, nil
}

// Rows scans the whole table of the schema's module
func (b *Backend) Rows(ctx context.Context, s *models.Schema) (core.Rows, error) {
	cfg, err := b.config(s)
	if err != nil {
		return nil, err
	}

	rows, err := b.db.QueryContext(ctx, selectAll(cfg.Table))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMetadata, "failed to query "+cfg.Table).
			WithDetail("module", cfg.LogicalName)
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeMetadata, "failed to read columns of "+cfg.Table)
	}
	for i := range cols {
		cols[i] = columnName(cols[i], i)
	}
	return &tableRows{rows: rows, columns: cols}, nil
}

// Put runs the write-back query of a configured schema, or inserts the
// record and falls back to an update when the key already exists.
func (b *Backend) Put(ctx context.Context, s *models.Schema, record *models.Record) error {
	data, err := record.Data()
	if err != nil {
		return err
	}

	if s.Query != "" {
		stmt, err := buildWriteBack(s, data)
		if err != nil {
			return err
		}
		return b.exec(ctx, stmt, "write-back")
	}

	cfg, err := b.config(s)
	if err != nil {
		return err
	}

	insert, err := b.dialect.buildInsert(cfg.Table, s.Properties, data)
	if err != nil {
		return err
	}
	err = b.exec(ctx, insert, "insert")
	if err == nil {
		return nil
	}
	if !errors.IsType(err, errors.ErrorTypeDuplicateKey) {
		return err
	}

	b.logger.Debug("key exists, updating", zap.String("module", cfg.LogicalName), zap.String("correlation_id", record.CorrelationID))
	update, err := b.dialect.buildUpdate(cfg.Table, s.Properties, data)
	if err != nil {
		return err
	}
	return b.exec(ctx, update, "update")
}

// Close closes the connection pool
func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) exec(ctx context.Context, stmt statement, op string) error {
	res, err := b.db.ExecContext(ctx, stmt.query, stmt.args...)
	if err != nil {
		errType := errors.ErrorTypeWrite
		if isDuplicateKey(err) {
			errType = errors.ErrorTypeDuplicateKey
		}
		return errors.Wrap(err, errType, op+" failed").WithDetail("query", stmt.query)
	}
	if n, err := res.RowsAffected(); err == nil {
		b.logger.Debug("statement executed", zap.String("op", op), zap.Int64("rows", n))
	}
	return nil
}

func (b *Backend) config(s *models.Schema) (busobject.ModuleConfig, error) {
	module, err := s.Module()
	if err != nil {
		return busobject.ModuleConfig{}, err
	}
	return b.resolver.Resolve(module)
}

// isDuplicateKey recognizes unique violations of every supported driver
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if stderrors.As(err, &me) && me.Number == 1062 {
		return true
	}
	var pe *pgconn.PgError
	if stderrors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), duplicateKeyMessage)
}

func columnName(name string, i int) string {
	if name == "" {
		return fmt.Sprintf("UNKNOWN_%d", i)
	}
	return name
}

// propertyType maps a driver type name to a property type
func propertyType(dbType string) models.PropertyType {
	t := strings.ToUpper(dbType)
	switch {
	case strings.Contains(t, "DECIMAL"), strings.Contains(t, "NUMERIC"),
		strings.Contains(t, "FLOAT"), strings.Contains(t, "REAL"),
		strings.Contains(t, "DOUBLE"):
		return models.PropertyTypeFloat
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return models.PropertyTypeDatetime
	default:
		return models.PropertyTypeString
	}
}

// tableRows adapts *sql.Rows to core.Rows
type tableRows struct {
	rows    *sql.Rows
	columns []string
	row     map[string]interface{}
	err     error
}

func (r *tableRows) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}

	values := make([]interface{}, len(r.columns))
	ptrs := make([]interface{}, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.err = errors.Wrap(err, errors.ErrorTypeDataIntegrity, "failed to scan row")
		return false
	}

	r.row = make(map[string]interface{}, len(r.columns))
	for i, col := range r.columns {
		switch v := values[i].(type) {
		case []byte:
			r.row[col] = string(v)
		case time.Time:
			r.row[col] = v.Format(time.RFC3339)
		default:
			r.row[col] = v
		}
	}
	return true
}

func (r *tableRows) Row() map[string]interface{} { return r.row }

func (r *tableRows) Err() error {
	if r.err != nil {
		return r.err
	}
	if err := r.rows.Err(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeMetadata, "row iteration failed")
	}
	return nil
}

func (r *tableRows) Close() error {
	return r.rows.Close()
}
