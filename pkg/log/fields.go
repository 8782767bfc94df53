package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Connection
	FieldSessionID  = "session_id"
	FieldRemoteAddr = "remote_addr"
	FieldState      = "state"

	// Chat
	FieldRoomID  = "room_id"
	FieldSender  = "sender"
	FieldMsgType = "msg_type"
	FieldCount   = "count"

	// Service
	FieldService = "service"
	FieldNodeID  = "node_id"

	// Infrastructure
	FieldChannel = "channel"
	FieldDriver  = "driver"
	FieldAttempt = "attempt"
	FieldBackoff = "backoff"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
