// Package models provides the host-facing data models of the Sage plugin:
// schemas, properties, records and acknowledgments, plus the tagged Value
// produced by type inference.
package models

import (
	"github.com/naveego/plugin-sage/pkg/errors"
	"github.com/naveego/plugin-sage/pkg/json"
)

// Action is the change a record asks the receiver to apply
type Action string

const (
	// ActionUpsert means insert if absent, else update
	ActionUpsert Action = "UPSERT"
)

// Record is one row exchanged with the host.
// DataJSON is a flat JSON object keyed by property ID.
type Record struct {
	// CorrelationID is only set on the write path
	CorrelationID string `json:"correlationId,omitempty"`
	Action        Action `json:"action"`
	DataJSON      string `json:"dataJson"`
}

// NewUpsertRecord encodes data into an upsert record
func NewUpsertRecord(data map[string]interface{}) (*Record, error) {
	encoded, err := json.MarshalString(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode record data")
	}
	return &Record{
		Action:   ActionUpsert,
		DataJSON: encoded,
	}, nil
}

// Data decodes the record payload
func (r *Record) Data() (map[string]interface{}, error) {
	data, err := json.DecodeObject(r.DataJSON)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, "record data is not a JSON object").
			WithDetail("correlation_id", r.CorrelationID)
	}
	return data, nil
}

// RecordAck acknowledges one written record. An empty Error means success.
type RecordAck struct {
	CorrelationID string `json:"correlationId"`
	Error         string `json:"error"`
}

// Succeeded reports whether the write landed
func (a *RecordAck) Succeeded() bool {
	return a.Error == ""
}
