package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalStringNoHTMLEscape(t *testing.T) {
	s, err := MarshalString(map[string]string{"Name": "A&B <Co>"})
	require.NoError(t, err)
	assert.Equal(t, `{"Name":"A&B <Co>"}`, s)
}

func TestDecodeObjectKeepsNumbers(t *testing.T) {
	obj, err := DecodeObject(`{"Qty":12.50,"Code":"001","Lines":[{"ItemCode":"X"}]}`)
	require.NoError(t, err)

	n, ok := obj["Qty"].(Number)
	require.True(t, ok)
	assert.Equal(t, "12.50", n.String())
	assert.Equal(t, "001", obj["Code"])
	assert.IsType(t, []interface{}{}, obj["Lines"])
}

func TestDecodeObjectRejectsArrays(t *testing.T) {
	_, err := DecodeObject(`[1,2]`)
	assert.Error(t, err)
}

func TestBufferPool(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("data")
	PutBuffer(buf)

	again := GetBuffer()
	assert.Equal(t, 0, again.Len())
}
