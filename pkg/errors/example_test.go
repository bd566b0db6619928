package errors_test

import (
	"fmt"
	"io"

	"github.com/naveego/plugin-sage/pkg/errors"
)

// Example demonstrates basic error creation.
func Example() {
	err := errors.New(errors.ErrorTypeConfig, "module Payroll is not configured").
		WithDetail("module", "Payroll")

	fmt.Println(err.Error())

	// Output:
	// config: module Payroll is not configured
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	err := errors.Wrap(io.EOF, errors.ErrorTypeMetadata, "failed to read columns").
		WithDetail("module", "Sales Orders")

	if errors.IsType(err, errors.ErrorTypeMetadata) {
		fmt.Println("metadata error")
	}

	// Output:
	// metadata error
}

// ExampleBridge shows the composite error raised for legacy calls.
func ExampleBridge() {
	err := errors.Bridge(errors.ErrorTypeWrite, "nSetValue", []string{"CustomerNo$", "ABC"}, "Invalid customer", nil)

	fmt.Println(err.Error())

	// Output:
	// write: nSetValue failed: Error: Invalid customer, Method: nSetValue, Params: [CustomerNo$, ABC]
}
