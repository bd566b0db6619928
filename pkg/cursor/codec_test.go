package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naveego/plugin-sage/pkg/errors"
)

func TestDelimiterIsCodePoint352(t *testing.T) {
	assert.Equal(t, rune(352), Delimiter)
	assert.Equal(t, "Š", delimiter)
}

func TestSplitRow(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"single", "abc", []string{"abc"}},
		{"three", "aŠbŠc", []string{"a", "b", "c"}},
		{"empty fields", "ŠŠ", []string{"", "", ""}},
		{"commas are data", "a,bŠc\td", []string{"a,b", "c\td"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitRow(tt.raw))
			assert.Equal(t, tt.raw, joinRow(tt.want))
		})
	}
}

func TestZipRowMismatch(t *testing.T) {
	_, err := zipRow("aŠb", []string{"one", "two", "three"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeDataIntegrity))

	row, err := zipRow("aŠb", []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"one": "a", "two": "b"}, row)
}
