package cursor

import (
	"strings"

	"github.com/naveego/plugin-sage/pkg/errors"
)

// Delimiter separates fields in every multi-valued response of the legacy
// layer (code point 352). It is part of the wire contract.
const Delimiter = 'Š'

var delimiter = string(Delimiter)

// splitRow decodes one delimiter-joined response
func splitRow(raw string) []string {
	return strings.Split(raw, delimiter)
}

// joinRow encodes fields the way the legacy layer does
func joinRow(fields []string) string {
	return strings.Join(fields, delimiter)
}

// zipRow pairs decoded fields with their columns. A field count that
// differs from the column count is corruption and is never padded.
func zipRow(raw string, columns []string) (map[string]string, error) {
	fields := splitRow(raw)
	if len(fields) != len(columns) {
		return nil, errors.Newf(errors.ErrorTypeDataIntegrity,
			"row has %d fields but %d columns were described", len(fields), len(columns)).
			WithDetail("fields", len(fields)).
			WithDetail("columns", len(columns))
	}
	row := make(map[string]string, len(columns))
	for i, col := range columns {
		row[col] = fields[i]
	}
	return row, nil
}
