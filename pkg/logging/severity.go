package logging

import "strings"

// Severity represents log levels for optimizer and LLM operations.
type Severity int32

const (
	DEBUG Severity = iota
	INFO
	WARN
	ERROR
)

// String provides human-readable severity levels.
func (s Severity) String() string {
	return [...]string{"DEBUG", "INFO", "WARN", "ERROR"}[s]
}

// ParseSeverity converts a string to a Severity level, ignoring case.
// Returns INFO for unknown strings.
func ParseSeverity(level string) Severity {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}
