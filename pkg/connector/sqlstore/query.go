package sqlstore

import (
	"fmt"
	"strings"
	"time"

	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/json"
	"github.com/naveego/plugin-sage/pkg/models"
)

// dialect covers the statement differences between drivers
type dialect struct {
	name        string
	placeholder func(n int) string
}

var (
	mysqlDialect = dialect{name: "mysql", placeholder: func(int) string { return "?" }}
	pgxDialect   = dialect{name: "pgx", placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
)

func dialectFor(driver string) dialect {
	if driver == "pgx" {
		return pgxDialect
	}
	return mysqlDialect
}

// statement is one SQL text with its bound arguments
type statement struct {
	query string
	args  []interface{}
}

func selectAll(table string) string {
	return "SELECT * FROM " + table
}

// describe selects no rows so only column metadata comes back
func describe(table string) string {
	return selectAll(table) + " WHERE 1=0"
}

// buildInsert writes every schema property present in data. Nulls and
// empty strings are left to the column default.
func (d dialect) buildInsert(table string, props []models.Property, data map[string]interface{}) (statement, error) {
	var cols, marks []string
	var args []interface{}

	for _, p := range props {
		v, ok := data[p.ID]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		arg, err := bindValue(p, v)
		if err != nil {
			return statement{}, err
		}
		cols = append(cols, p.ID)
		args = append(args, arg)
		marks = append(marks, d.placeholder(len(args)))
	}

	if len(cols) == 0 {
		return statement{}, errors.Newf(errors.ErrorTypeWrite, "record has no values for %s", table)
	}

	return statement{
		query: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(marks, ", ")),
		args:  args,
	}, nil
}

// buildUpdate sets every non-key property present in data on the row
// addressed by the key properties.
func (d dialect) buildUpdate(table string, props []models.Property, data map[string]interface{}) (statement, error) {
	var sets, where []string
	var setArgs, whereArgs []interface{}

	for _, p := range props {
		v, ok := data[p.ID]
		if !ok {
			continue
		}
		if p.IsKey {
			if v == nil {
				return statement{}, errors.Newf(errors.ErrorTypeWrite, "key %s was null", p.ID)
			}
			arg, err := bindValue(p, v)
			if err != nil {
				return statement{}, err
			}
			whereArgs = append(whereArgs, arg)
			where = append(where, p.ID)
			continue
		}
		if v == nil {
			continue
		}
		arg, err := bindValue(p, v)
		if err != nil {
			return statement{}, err
		}
		setArgs = append(setArgs, arg)
		sets = append(sets, p.ID)
	}

	if len(where) == 0 {
		return statement{}, errors.Newf(errors.ErrorTypeWrite, "record carries none of the key columns of %s", table)
	}
	if len(sets) == 0 {
		return statement{}, errors.Newf(errors.ErrorTypeWrite, "record has no non-key values for %s", table)
	}

	n := 0
	for i := range sets {
		n++
		sets[i] = sets[i] + " = " + d.placeholder(n)
	}
	for i := range where {
		n++
		where[i] = where[i] + " = " + d.placeholder(n)
	}

	return statement{
		query: fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), strings.Join(where, " AND ")),
		args:  append(setArgs, whereArgs...),
	}, nil
}

// buildWriteBack binds the write-back parameters in property order
func buildWriteBack(s *models.Schema, data map[string]interface{}) (statement, error) {
	args := make([]interface{}, len(s.Properties))
	for i, p := range s.Properties {
		v, ok := data[p.ID]
		if !ok || v == nil {
			continue
		}
		arg, err := bindValue(p, v)
		if err != nil {
			return statement{}, err
		}
		args[i] = arg
	}
	return statement{query: s.Query, args: args}, nil
}

// bindValue converts a decoded record value to a driver argument of the
// property's type
func bindValue(p models.Property, v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case json.Number:
		switch p.Type {
		case models.PropertyTypeInteger:
			if i, err := t.Int64(); err == nil {
				return i, nil
			}
			return t.Float64()
		case models.PropertyTypeFloat:
			return t.Float64()
		default:
			return t.String(), nil
		}
	case string:
		if p.Type == models.PropertyTypeDatetime {
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
				if ts, err := time.Parse(layout, t); err == nil {
					return ts, nil
				}
			}
		}
		return t, nil
	case bool:
		return t, nil
	case []interface{}, map[string]interface{}:
		return json.MarshalString(t)
	default:
		return fmt.Sprint(t), nil
	}
}
