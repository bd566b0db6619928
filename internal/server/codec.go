package server

import (
	"github.com/naveego/plugin-sage/pkg/json"
)

// codecName is sent as the gRPC content subtype
const codecName = "json"

// Codec carries publisher messages as JSON instead of protobuf
type Codec struct{}

// Marshal implements encoding.Codec
func (Codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal implements encoding.Codec
func (Codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Name implements encoding.Codec
func (Codec) Name() string {
	return codecName
}
