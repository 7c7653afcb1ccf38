// Package monitor enforces the inbound API contract: every create-order
// request is validated against a JSON schema before any business code sees
// it, so malformed payloads are rejected with precise field-level errors.
package monitor

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed payment_order.schema.json
var paymentOrderSchema string

// ContractMonitor validates request bodies against a compiled JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewPaymentOrderMonitor compiles the built-in create-order schema.
func NewPaymentOrderMonitor() (*ContractMonitor, error) {
	return newFromLoader(gojsonschema.NewStringLoader(paymentOrderSchema))
}

// NewContractMonitorFromFile compiles a schema from disk, for deployments
// that override the built-in contract.
func NewContractMonitorFromFile(schemaPath string) (*ContractMonitor, error) {
	return newFromLoader(gojsonschema.NewReferenceLoader("file://" + schemaPath))
}

func newFromLoader(loader gojsonschema.JSONLoader) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("monitor: compiling schema: %w", err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// Validate checks the request body against the schema. It returns true when
// the body conforms, or false plus one message per violated constraint.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("monitor: validation: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}

// FormatErrors joins violation messages into one response-ready string.
func FormatErrors(violations []string) string {
	if len(violations) == 0 {
		return ""
	}
	return "validation errors: " + strings.Join(violations, "; ")
}
