package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldItemID is the standardized structured logging key for queue item identifiers.
	FieldItemID = "item_id"
	// FieldItemHash is the standardized structured logging key for queue item hashes.
	FieldItemHash = "item_hash"
	// FieldQueue is the standardized structured logging key for queue names.
	FieldQueue = "queue"
	// FieldPID is the standardized structured logging key for worker process IDs.
	FieldPID = "pid"
	// FieldCorrelationID is the standardized structured logging key for manager cycle identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldRunID is the standardized structured logging key for a single worker run.
	FieldRunID = "run_id"
	// FieldEventType is the standardized structured logging key for machine-readable event names.
	FieldEventType = "event_type"
	// FieldErrorHint is the standardized structured logging key for operator remediation hints.
	FieldErrorHint = "error_hint"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)
