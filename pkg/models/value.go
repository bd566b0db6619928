package models

import (
	"time"
)

// Kind tags the variant held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindTimestamp
	KindNested
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindTimestamp:
		return "timestamp"
	case KindNested:
		return "nested"
	default:
		return "null"
	}
}

// Value is a source value after type inference. Exactly one payload field
// is meaningful, selected by Kind.
type Value struct {
	Kind   Kind
	Str    string
	Int    int64
	Float  float64
	Bool   bool
	Time   time.Time
	Nested interface{}
}

// PropertyType maps the value kind to the schema type it implies
func (v Value) PropertyType() PropertyType {
	switch v.Kind {
	case KindInteger:
		return PropertyTypeInteger
	case KindFloat:
		return PropertyTypeFloat
	case KindBoolean:
		return PropertyTypeBool
	case KindTimestamp:
		return PropertyTypeDatetime
	case KindNested:
		return PropertyTypeJSON
	default:
		return PropertyTypeString
	}
}

// Interface returns the value in the form written to record JSON
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInteger:
		return v.Int
	case KindFloat:
		return v.Float
	case KindBoolean:
		return v.Bool
	case KindTimestamp:
		return v.Time.Format(time.RFC3339)
	case KindNested:
		return v.Nested
	default:
		return nil
	}
}
