package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID   = "user_id"
	FieldTenantID = "tenant_id"

	// Gateway
	FieldConnectionID = "connection_id"
	FieldApplication  = "application"
	FieldEventID      = "event_id"
	FieldEventType    = "event_type"
	FieldRoom         = "room"
	FieldAttempt      = "attempt"

	// Service
	FieldService = "service"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
