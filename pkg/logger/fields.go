package logger

const (
	FieldSource   = "source"
	FieldProvider = "provider"
	FieldModel    = "model"
	FieldSenderID = "sender_id"
	FieldJobID    = "job_id"
	FieldError    = "error"
)
