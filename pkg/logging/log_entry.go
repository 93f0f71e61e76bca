package logging

// LogEntry is a structured log record with fields relevant to optimization runs.
type LogEntry struct {
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Optimization-specific fields
	RunID      string // Identifier of the optimization run, if known
	Generation int    // Generation index, -1 when not applicable

	// General structured data
	Fields map[string]interface{}
}
