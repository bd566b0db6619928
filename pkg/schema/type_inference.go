// Package schema turns sampled legacy rows into typed schema properties.
package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/naveego/plugin-sage/pkg/models"
	"go.uber.org/zap"
)

const (
	// CreateCounterColumn marks the creation timestamp column by convention
	CreateCounterColumn = "DateCreated"
	// UpdateCounterColumn marks the last-update timestamp column by convention
	UpdateCounterColumn = "DateUpdated"
)

// dateLayouts are tried in order. Purely numeric layouts are excluded so
// that values like "20200115" or "1" fall through to the numeric checks.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// TypeInferenceEngine classifies sampled values
type TypeInferenceEngine struct {
	logger  *zap.Logger
	layouts []string
}

// NewTypeInferenceEngine creates a new type inference engine
func NewTypeInferenceEngine(logger *zap.Logger) *TypeInferenceEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeInferenceEngine{
		logger:  logger,
		layouts: dateLayouts,
	}
}

// Infer classifies a single value. Nested lists and maps are always JSON.
// Strings are tried as date-time, integer, float and boolean, in that
// order, before falling back to string.
func (e *TypeInferenceEngine) Infer(value interface{}) models.Value {
	switch v := value.(type) {
	case nil:
		return models.Value{Kind: models.KindNull}
	case string:
		return e.inferString(v)
	case bool:
		return models.Value{Kind: models.KindBoolean, Bool: v}
	case int:
		return models.Value{Kind: models.KindInteger, Int: int64(v)}
	case int32:
		return models.Value{Kind: models.KindInteger, Int: int64(v)}
	case int64:
		return models.Value{Kind: models.KindInteger, Int: v}
	case float32:
		return models.Value{Kind: models.KindFloat, Float: float64(v)}
	case float64:
		return models.Value{Kind: models.KindFloat, Float: v}
	case time.Time:
		return models.Value{Kind: models.KindTimestamp, Time: v}
	case []interface{}, map[string]interface{}:
		return models.Value{Kind: models.KindNested, Nested: v}
	case interface{ String() string }:
		// json.Number and friends
		return e.inferString(v.String())
	}

	switch reflect.ValueOf(value).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		return models.Value{Kind: models.KindNested, Nested: value}
	}
	return models.Value{Kind: models.KindString, Str: fmt.Sprint(value)}
}

func (e *TypeInferenceEngine) inferString(s string) models.Value {
	if t, ok := e.parseTime(s); ok {
		return models.Value{Kind: models.KindTimestamp, Time: t}
	}
	if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return models.Value{Kind: models.KindInteger, Int: i}
	}
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return models.Value{Kind: models.KindFloat, Float: f}
	}
	if b, ok := parseBool(s); ok {
		return models.Value{Kind: models.KindBoolean, Bool: b}
	}
	return models.Value{Kind: models.KindString, Str: s}
}

func (e *TypeInferenceEngine) parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range e.layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseBool accepts only the words true and false. "1" and "t" are left
// to the numeric and string branches.
func parseBool(s string) (bool, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

// Coerce converts a raw source string into the value form of a declared
// property type. A conversion is only made when it is lossless: the typed
// value must render back to the raw text, so zero-padded numbers stay
// strings. Date-times are always passed through as written by the source,
// and empty non-string values become null.
func (e *TypeInferenceEngine) Coerce(raw string, typ models.PropertyType) models.Value {
	if typ == models.PropertyTypeString || typ == models.PropertyTypeDatetime || typ == "" {
		return models.Value{Kind: models.KindString, Str: raw}
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return models.Value{Kind: models.KindNull}
	}

	switch typ {
	case models.PropertyTypeInteger:
		if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil && strconv.FormatInt(i, 10) == trimmed {
			return models.Value{Kind: models.KindInteger, Int: i}
		}
	case models.PropertyTypeFloat:
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == canonicalDecimal(trimmed) {
			return models.Value{Kind: models.KindFloat, Float: f}
		}
	case models.PropertyTypeBool:
		if b, ok := parseBool(trimmed); ok {
			return models.Value{Kind: models.KindBoolean, Bool: b}
		}
	}

	e.logger.Debug("value does not convert losslessly, keeping string",
		zap.String("type", string(typ)))
	return models.Value{Kind: models.KindString, Str: raw}
}

// canonicalDecimal drops trailing fractional zeros so "5000.00" compares
// equal to the shortest rendering "5000". Anything else is left as is.
func canonicalDecimal(s string) string {
	if !strings.Contains(s, ".") || strings.ContainsAny(s, "eE") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
