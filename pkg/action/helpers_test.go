package action_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xjectro/actionkit/pkg/action"
)

// MockLogger for testing.
type MockLogger struct {
	mu   sync.Mutex
	logs []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields map[string]interface{}
}

func (l *MockLogger) add(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, logEntry{level: level, msg: msg, fields: fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.add("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{})  { l.add("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{})  { l.add("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.add("error", msg, fields) }

func (l *MockLogger) entries(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []logEntry

	for _, entry := range l.logs {
		if entry.level == level {
			out = append(out, entry)
		}
	}

	return out
}

// recordingInvalidator remembers every tag it was asked to invalidate.
type recordingInvalidator struct {
	mu   sync.Mutex
	tags []string
	fail map[string]error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tags = append(r.tags, tag)

	return r.fail[tag]
}

func (r *recordingInvalidator) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.tags...)
}

func (r *recordingInvalidator) count(tag string) int {
	n := 0

	for _, recorded := range r.calls() {
		if recorded == tag {
			n++
		}
	}

	return n
}

func newFactory(t *testing.T, baseURL string, mutate ...func(*action.Config)) *action.Factory {
	t.Helper()

	config := &action.Config{BaseURL: baseURL}
	for _, fn := range mutate {
		fn(config)
	}

	factory, err := action.NewFactory(config)
	require.NoError(t, err)

	return factory
}

func requireKind(t *testing.T, err error, kind action.Kind) *action.Error {
	t.Helper()

	require.Error(t, err)

	var actionErr *action.Error

	require.ErrorAs(t, err, &actionErr, "expected *action.Error, got %T: %v", err, err)
	require.Equal(t, kind, actionErr.Kind, fmt.Sprintf("error: %v", err))

	return actionErr
}
