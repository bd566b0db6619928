// Package json wraps goccy/go-json with pooled buffers for the record and
// RPC payloads the plugin encodes on every row.
package json

import (
	"bytes"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Number re-exports the decoded number type used by UseNumber decoding
type Number = gojson.Number

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > 1<<20 {
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalString marshals v without HTML escaping and returns it as a string
func MarshalString(v interface{}) (string, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encode appends a newline
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeObject decodes a JSON object keeping numbers as Number so that
// values such as "00123" style keys and large decimals survive untouched.
func DecodeObject(data string) (map[string]interface{}, error) {
	dec := gojson.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	out := make(map[string]interface{})
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
