package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput records entries for assertions.
type captureOutput struct {
	entries []LogEntry
}

func (c *captureOutput) Write(e LogEntry) error {
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureOutput) Sync() error  { return nil }
func (c *captureOutput) Close() error { return nil }

func TestLoggerSeverityFilter(t *testing.T) {
	capture := &captureOutput{}
	logger := NewLogger(Config{Severity: WARN, Outputs: []Output{capture}})

	ctx := context.Background()
	logger.Debug(ctx, "hidden")
	logger.Info(ctx, "hidden too")
	logger.Warn(ctx, "shown")
	logger.Error(ctx, "also shown")

	require.Len(t, capture.entries, 2)
	assert.Equal(t, "shown", capture.entries[0].Message)
	assert.Equal(t, ERROR, capture.entries[1].Severity)
}

func TestLoggerContextTags(t *testing.T) {
	capture := &captureOutput{}
	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{capture}})

	ctx := WithGeneration(WithRunID(context.Background(), "run-42"), 7)
	logger.Info(ctx, "scored %d candidates", 30)

	require.Len(t, capture.entries, 1)
	entry := capture.entries[0]
	assert.Equal(t, "run-42", entry.RunID)
	assert.Equal(t, 7, entry.Generation)
	assert.Equal(t, "scored 30 candidates", entry.Message)
}

func TestLoggerUntaggedContext(t *testing.T) {
	capture := &captureOutput{}
	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{capture}})

	logger.Info(context.Background(), "plain")
	require.Len(t, capture.entries, 1)
	assert.Equal(t, -1, capture.entries[0].Generation, "unset generation is marked")
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"DEBUG": DEBUG,
		"info":  INFO,
		"Warn":  WARN,
		"ERROR": ERROR,
		"bogus": INFO,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseSeverity(in), in)
	}
}
