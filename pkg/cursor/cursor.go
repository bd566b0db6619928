// Package cursor is the single place that understands the row and column
// protocol of Sage business objects: describing columns, walking rows,
// positioning by key and writing values back.
package cursor

import (
	"context"
	stderrors "errors"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/dispatch"
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/schema"
)

// Opener creates business objects bound to a session
type Opener interface {
	NewBusinessObject(ctx context.Context, cfg busobject.ModuleConfig) (dispatch.Object, error)
	LastError() string
}

// Line is one sales order line added through oLines
type Line struct {
	ItemCode        string
	QuantityOrdered string
}

// Cursor is a forward-only handle on one business object. It is owned by
// a single operation and must not be shared between goroutines.
type Cursor struct {
	obj    dispatch.Object
	src    Opener
	cfg    busobject.ModuleConfig
	logger *zap.Logger

	dataSource string
	columns    []string
	rowCount   int
	described  bool

	keyColumns []string
}

// Open instantiates the business object for cfg, positioned before the
// first row.
func Open(ctx context.Context, src Opener, cfg busobject.ModuleConfig) (*Cursor, error) {
	obj, err := src.NewBusinessObject(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		obj:    obj,
		src:    src,
		cfg:    cfg,
		logger: logger.WithContext(ctx).With(zap.String("bus_object", cfg.BusObject)),
	}, nil
}

// Config returns the module config the cursor was opened with
func (c *Cursor) Config() busobject.ModuleConfig {
	return c.cfg
}

// call runs one legacy call and enriches any failure with the operation,
// its parameters and the session's last error text.
func (c *Cursor) call(errType errors.ErrorType, op string, params []string, fn func() (interface{}, error)) (interface{}, error) {
	res, err := fn()
	if err != nil {
		last := c.src.LastError()
		c.logger.Error("legacy call failed",
			zap.String("op", op),
			zap.Strings("params", params),
			zap.String("last_error", last),
			zap.Error(err))
		return nil, errors.Bridge(errType, op, params, last, err)
	}
	return res, nil
}

func (c *Cursor) invoke(errType errors.ErrorType, method string, args ...string) (interface{}, error) {
	iargs := make([]interface{}, len(args))
	for i, a := range args {
		iargs[i] = a
	}
	return c.call(errType, method, args, func() (interface{}, error) {
		return c.obj.InvokeMethod(method, iargs...)
	})
}

// Metadata describes the cursor: the ordered column names of its first
// data source and the number of rows. The result is cached.
func (c *Cursor) Metadata(ctx context.Context) ([]string, int, error) {
	if c.described {
		return c.columns, c.rowCount, nil
	}

	res, err := c.invoke(errors.ErrorTypeMetadata, "sGetDataSources")
	if err != nil {
		return nil, 0, err
	}
	c.dataSource = splitRow(dispatch.ToString(res))[0]

	res, err = c.invoke(errors.ErrorTypeMetadata, "sGetColumns", c.dataSource)
	if err != nil {
		return nil, 0, err
	}
	columns := splitRow(dispatch.ToString(res))

	res, err = c.invoke(errors.ErrorTypeMetadata, "nGetRecordCount", c.dataSource)
	if err != nil {
		return nil, 0, err
	}
	count, err := dispatch.ToInt(res)
	if err != nil {
		return nil, 0, errors.Bridge(errors.ErrorTypeMetadata, "nGetRecordCount", []string{c.dataSource}, c.src.LastError(), err)
	}

	c.columns = columns
	c.rowCount = count
	c.described = true
	return c.columns, c.rowCount, nil
}

// MoveFirst positions on the first row
func (c *Cursor) MoveFirst(ctx context.Context) error {
	_, err := c.invoke(errors.ErrorTypeMetadata, "nMoveFirst")
	return err
}

// MoveNext advances one row
func (c *Cursor) MoveNext(ctx context.Context) error {
	_, err := c.invoke(errors.ErrorTypeMetadata, "nMoveNext")
	return err
}

// AtEnd reports whether the cursor has moved past the last row
func (c *Cursor) AtEnd(ctx context.Context) (bool, error) {
	res, err := c.call(errors.ErrorTypeMetadata, "nEOF", nil, func() (interface{}, error) {
		return c.obj.GetProperty("nEOF")
	})
	if err != nil {
		return true, err
	}
	return dispatch.ToString(res) != "0", nil
}

// ReadRow fetches the current row and pairs it with columns
func (c *Cursor) ReadRow(ctx context.Context, columns []string) (map[string]string, error) {
	args := []interface{}{"", ""}
	if _, err := c.call(errors.ErrorTypeMetadata, "nGetRecord", nil, func() (interface{}, error) {
		return c.obj.InvokeMethodByRef("nGetRecord", args)
	}); err != nil {
		return nil, err
	}

	row, err := zipRow(dispatch.ToString(args[0]), columns)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeDataIntegrity, "failed to read row").
			WithDetail("bus_object", c.cfg.BusObject)
	}
	return row, nil
}

// ReadAll returns a lazy iterator over every row. An empty cursor yields
// nothing and no navigation call is made.
func (c *Cursor) ReadAll(ctx context.Context) (*Rows, error) {
	columns, count, err := c.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	return &Rows{ctx: ctx, c: c, columns: columns, empty: count == 0}, nil
}

// ReadFirst returns the columns and the first row. The row is empty when
// the cursor has no rows.
func (c *Cursor) ReadFirst(ctx context.Context) ([]string, map[string]string, error) {
	columns, count, err := c.Metadata(ctx)
	if err != nil {
		return nil, nil, err
	}
	if count == 0 {
		return columns, map[string]string{}, nil
	}
	if err := c.MoveFirst(ctx); err != nil {
		return nil, nil, err
	}
	row, err := c.ReadRow(ctx, columns)
	if err != nil {
		return nil, nil, err
	}
	return columns, row, nil
}

// KeyColumns returns the key columns reported by the business object
func (c *Cursor) KeyColumns(ctx context.Context) ([]string, error) {
	if c.keyColumns != nil {
		return c.keyColumns, nil
	}
	res, err := c.invoke(errors.ErrorTypeMetadata, "sGetKeyColumns")
	if err != nil {
		return nil, err
	}
	c.keyColumns = splitRow(dispatch.ToString(res))
	return c.keyColumns, nil
}

// SetKey stages every key value and then applies the key
func (c *Cursor) SetKey(ctx context.Context, keys, values []string) error {
	if len(keys) != len(values) {
		return errors.Newf(errors.ErrorTypeValidation, "%d key columns but %d key values", len(keys), len(values))
	}
	for i, k := range keys {
		if _, err := c.invoke(errors.ErrorTypeWrite, "nSetKeyValue", k, values[i]); err != nil {
			return err
		}
	}
	if _, err := c.invoke(errors.ErrorTypeWrite, "nSetKey"); err != nil {
		return err
	}
	c.keyColumns = keys
	return nil
}

// Exists reports whether the key set by SetKey matched a row
func (c *Cursor) Exists(ctx context.Context) (bool, error) {
	res, err := c.invoke(errors.ErrorTypeWrite, "nFind")
	if err != nil {
		return false, err
	}
	found := dispatch.ToString(res) == "1"
	c.logger.Debug("find", zap.Bool("found", found))
	return found, nil
}

// Update writes every non-key column present in values and commits.
// Columns absent from values keep their stored value.
func (c *Cursor) Update(ctx context.Context, values map[string]string) error {
	if err := c.setValues(values, c.keyColumns); err != nil {
		return err
	}
	_, err := c.invoke(errors.ErrorTypeWrite, "nWrite")
	return err
}

// Insert asks the source for a new key through keyGenerator, applies it,
// writes the remaining columns and commits the new row. The generated
// key is returned.
func (c *Cursor) Insert(ctx context.Context, values map[string]string, keyGenerator string) (string, error) {
	key, err := c.NewKey(ctx, keyGenerator)
	if err != nil {
		return "", err
	}
	if err := c.setValues(values, c.keyColumns); err != nil {
		return "", err
	}
	if _, err := c.invoke(errors.ErrorTypeWrite, "nWrite"); err != nil {
		return "", err
	}
	return key, nil
}

// NewKey obtains and applies a source-generated key for a new row. Values
// written afterwards and before Commit belong to that row.
func (c *Cursor) NewKey(ctx context.Context, keyGenerator string) (string, error) {
	if keyGenerator == "" {
		return "", errors.Newf(errors.ErrorTypeWrite, "requested module %s does not support inserts", c.cfg.LogicalName)
	}
	args := []interface{}{""}
	if _, err := c.call(errors.ErrorTypeWrite, keyGenerator, nil, func() (interface{}, error) {
		return c.obj.InvokeMethodByRef(keyGenerator, args)
	}); err != nil {
		return "", err
	}
	key := dispatch.ToString(args[0])
	if _, err := c.invoke(errors.ErrorTypeWrite, "nSetKey", key); err != nil {
		return "", err
	}
	if len(c.cfg.Keys) > 0 {
		c.keyColumns = c.cfg.Keys[:1]
	}
	return key, nil
}

// SetValue writes a single column of the row being edited
func (c *Cursor) SetValue(ctx context.Context, column, value string) error {
	_, err := c.invoke(errors.ErrorTypeWrite, "nSetValue", column, value)
	return err
}

// Commit writes the row being edited
func (c *Cursor) Commit(ctx context.Context) error {
	_, err := c.invoke(errors.ErrorTypeWrite, "nWrite")
	return err
}

// AddLines appends lines to the row being edited through oLines
func (c *Cursor) AddLines(ctx context.Context, lines []Line) error {
	res, err := c.call(errors.ErrorTypeWrite, "oLines", nil, func() (interface{}, error) {
		return c.obj.GetProperty("oLines")
	})
	if err != nil {
		return err
	}
	linesObj, err := dispatch.AsObject(res)
	if err != nil {
		return errors.Bridge(errors.ErrorTypeWrite, "oLines", nil, c.src.LastError(), err)
	}
	lc := &Cursor{obj: linesObj, src: c.src, cfg: c.cfg, logger: c.logger}

	for i, line := range lines {
		if _, err := lc.invoke(errors.ErrorTypeWrite, "nAddLine"); err != nil {
			return err
		}
		if err := lc.SetValue(ctx, "ItemCode$", line.ItemCode); err != nil {
			return err
		}
		if err := lc.SetValue(ctx, "QuantityOrdered", line.QuantityOrdered); err != nil {
			return err
		}
		c.logger.Debug("line added", zap.Int("line", i+1), zap.String("item_code", line.ItemCode))
	}
	return nil
}

// setValues writes columns in name order, skipping key columns
func (c *Cursor) setValues(values map[string]string, keys []string) error {
	columns := make([]string, 0, len(values))
	for col := range values {
		if schema.IsKeyColumn(col, keys) || schema.IsKeyColumn(col, c.cfg.Keys) {
			continue
		}
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for _, col := range columns {
		if _, err := c.invoke(errors.ErrorTypeWrite, "nSetValue", col, values[col]); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the business object
func (c *Cursor) Close() {
	if c.obj != nil {
		c.obj.Release()
		c.obj = nil
	}
}

// Rows is a lazy, finite, non-restartable sequence of row maps
type Rows struct {
	ctx     context.Context
	c       *Cursor
	columns []string
	empty   bool

	started bool
	done    bool
	row     map[string]string
	read    int
	err     error
}

// Columns returns the described columns
func (r *Rows) Columns() []string {
	return r.columns
}

// Next advances to the next row. It returns false at the end or on error.
func (r *Rows) Next() bool {
	if r.done || r.err != nil {
		return false
	}

	if !r.started {
		r.started = true
		if r.empty {
			r.done = true
			return false
		}
		if r.err = r.c.MoveFirst(r.ctx); r.err != nil {
			return false
		}
	} else {
		if r.err = r.c.MoveNext(r.ctx); r.err != nil {
			return false
		}
		atEnd, err := r.c.AtEnd(r.ctx)
		if err != nil {
			r.err = err
			return false
		}
		if atEnd {
			r.done = true
			return false
		}
	}

	r.row, r.err = r.c.ReadRow(r.ctx, r.columns)
	if r.err != nil {
		var typed *errors.Error
		if stderrors.As(r.err, &typed) {
			typed.WithDetail("row", r.read+1)
		} else {
			r.err = errors.Wrap(r.err, errors.ErrorTypeDataIntegrity, "row "+strconv.Itoa(r.read+1)).
				WithDetail("row", r.read+1)
		}
		return false
	}
	r.read++
	return true
}

// Row returns the current row
func (r *Rows) Row() map[string]string {
	return r.row
}

// Err returns the error that stopped iteration, if any
func (r *Rows) Err() error {
	return r.err
}
