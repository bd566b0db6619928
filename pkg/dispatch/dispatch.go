// Package dispatch abstracts late-bound automation objects, the way the
// ProvideX scripting layer of Sage 100 is reached. Production code uses the
// COM implementation in ole.go; tests use dispatchtest.
package dispatch

import (
	"fmt"
	"strconv"
	"strings"
)

// Object is one late-bound automation object
type Object interface {
	// InvokeMethod calls a method and returns its result. Results that are
	// themselves automation objects come back as Object.
	InvokeMethod(method string, args ...interface{}) (interface{}, error)
	// InvokeMethodByRef calls a method whose arguments are passed by
	// reference; args is updated in place with the values written back.
	InvokeMethodByRef(method string, args []interface{}) (interface{}, error)
	// GetProperty reads a property
	GetProperty(name string) (interface{}, error)
	// Release frees the underlying handle
	Release()
}

// Factory creates top-level automation objects by ProgID
type Factory interface {
	Create(progID string) (Object, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(progID string) (Object, error)

// Create implements Factory
func (f FactoryFunc) Create(progID string) (Object, error) {
	return f(progID)
}

// AsObject asserts that a call result is an automation object
func AsObject(v interface{}) (Object, error) {
	obj, ok := v.(Object)
	if !ok || obj == nil {
		return nil, fmt.Errorf("expected automation object, got %T", v)
	}
	return obj, nil
}

// ToString renders a call result the way the legacy layer prints it
func ToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// ToInt converts a numeric or numeric-string result
func ToInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int8:
		return int(t), nil
	case int16:
		return int(t), nil
	case int32:
		return int(t), nil
	case int64:
		return int(t), nil
	case uint8:
		return int(t), nil
	case uint16:
		return int(t), nil
	case uint32:
		return int(t), nil
	case float32:
		return int(t), nil
	case float64:
		return int(t), nil
	}
	s := strings.TrimSpace(ToString(v))
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("expected number, got %q", s)
	}
	return int(f), nil
}
