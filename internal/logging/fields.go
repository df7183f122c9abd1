package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for transfer job identifiers.
	FieldJobID = "job_id"
	// FieldItemID is the standardized structured logging key for transfer item identifiers.
	FieldItemID = "item_id"
	// FieldOpID is the standardized structured logging key for queued operation identifiers.
	FieldOpID = "op_id"
	// FieldSourceRef is the standardized structured logging key for remote share references.
	FieldSourceRef = "source_ref"
	// FieldEventType tags log records for machine filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests a next step when a warning or error is logged.
	FieldErrorHint = "error_hint"
)
