package logging

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// RunLogger appends structured JSONL events to a per-run log file. Every run
// gets its own file inside the run directory, so the log is an artifact of
// the run like the digest or the archive.
//
// Logging must never take a run down: any failure to serialize or write is
// swallowed.
type RunLogger struct {
	mu   sync.Mutex
	path string
}

// NewRunLogger creates a logger appending to the given file path.
func NewRunLogger(path string) *RunLogger {
	return &RunLogger{path: path}
}

// Path returns the log file path.
func (l *RunLogger) Path() string {
	return l.path
}

// Info logs an informational event.
func (l *RunLogger) Info(event string, fields map[string]any) {
	l.write("info", event, fields)
}

// Warning logs a warning event.
func (l *RunLogger) Warning(event string, fields map[string]any) {
	l.write("warning", event, fields)
}

// Error logs an error event.
func (l *RunLogger) Error(event string, fields map[string]any) {
	l.write("error", event, fields)
}

func (l *RunLogger) write(level, event string, fields map[string]any) {
	if l == nil || l.path == "" {
		return
	}

	record := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		record[k] = v
	}
	record["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	record["level"] = level
	record["event"] = event

	line, err := json.Marshal(record)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.Write(append(line, '\n'))
}
