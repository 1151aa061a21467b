// Package logging provides structured logging utilities for ctrlseed.
package logging

// Standard field names for consistent logging across the application.
const (
	// FieldTenantID is the server-assigned tenant identifier.
	FieldTenantID = "tenant_id"

	// FieldEndpoint is the controller API endpoint (e.g. "addtenant").
	FieldEndpoint = "endpoint"

	// FieldStep is the human-readable provisioning step name.
	FieldStep = "step"

	// FieldAttempt is the 1-based attempt number of a retried step.
	FieldAttempt = "attempt"

	// FieldDelay is the wait before the next attempt.
	FieldDelay = "delay"

	// FieldKind is the failure classification of a controller call.
	FieldKind = "kind"

	// FieldRequestID is a unique identifier for each HTTP request.
	FieldRequestID = "request_id"

	// FieldDuration is the duration of an operation in milliseconds.
	FieldDuration = "duration_ms"

	// FieldStatusCode is the HTTP status code of a response.
	FieldStatusCode = "status_code"

	// FieldMethod is the HTTP method of a request.
	FieldMethod = "method"

	// FieldPath is the URL path of an HTTP request.
	FieldPath = "path"

	// FieldRemoteAddr is the client's remote address.
	FieldRemoteAddr = "remote_addr"

	// FieldComponent identifies the component generating the log.
	FieldComponent = "component"
)
