package event

// LogSchema names the reserved fields of a log record.
type LogSchema struct {
	MessageKey    string `json:"message_key" yaml:"message_key"`
	TimestampKey  string `json:"timestamp_key" yaml:"timestamp_key"`
	SourceTypeKey string `json:"source_type_key" yaml:"source_type_key"`
}

// DefaultLogSchema returns the schema used when none is configured
func DefaultLogSchema() LogSchema {
	return LogSchema{
		MessageKey:    "message",
		TimestampKey:  "timestamp",
		SourceTypeKey: "source_type",
	}
}
