package schema

import (
	"strings"

	"github.com/naveego/plugin-sage/pkg/models"
)

// Column is one sampled column: its name and the value seen for it
type Column struct {
	Name  string
	Value interface{}
}

// BuildProperties infers one property per column, preserving column order.
// Keys name the configured key columns of the module.
func (e *TypeInferenceEngine) BuildProperties(columns []Column, keys []string) []models.Property {
	props := make([]models.Property, 0, len(columns))
	seen := make(map[string]struct{}, len(columns))

	for _, col := range columns {
		if _, dup := seen[col.Name]; dup {
			continue
		}
		seen[col.Name] = struct{}{}

		value := e.Infer(col.Value)
		props = append(props, models.Property{
			ID:              col.Name,
			Name:            col.Name,
			Type:            value.PropertyType(),
			TypeAtSource:    value.Kind.String(),
			IsKey:           IsKeyColumn(col.Name, keys),
			IsCreateCounter: MatchesColumn(col.Name, CreateCounterColumn),
			IsUpdateCounter: MatchesColumn(col.Name, UpdateCounterColumn),
			IsNullable:      true,
		})
	}
	return props
}

// MatchesColumn compares a source column against a logical column name.
// ProvideX suffixes string columns with '$', so "CustomerNo$" matches
// "CustomerNo".
func MatchesColumn(column, name string) bool {
	return column == name || strings.TrimSuffix(column, "$") == name
}

// IsKeyColumn reports whether the column is one of the configured keys
func IsKeyColumn(column string, keys []string) bool {
	for _, k := range keys {
		if MatchesColumn(column, k) {
			return true
		}
	}
	return false
}
