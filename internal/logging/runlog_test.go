package logging

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"encoding/json"
)

func TestRunLoggerWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger := NewRunLogger(path)

	logger.Info("run_started", map[string]any{"stage": "orchestrator", "mode": "movers"})
	logger.Warning("http_fetch_retry", map[string]any{"stage": "ingestion", "retries": 1})
	logger.Error("ingestion_failed", nil)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("run.log not written: %v", err)
	}
	defer f.Close()

	var events []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var event map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		events = append(events, event)
	}
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0]["event"] != "run_started" || events[0]["level"] != "info" {
		t.Errorf("first event = %v", events[0])
	}
	if events[0]["mode"] != "movers" {
		t.Errorf("fields not merged: %v", events[0])
	}
	if events[1]["level"] != "warning" || events[2]["level"] != "error" {
		t.Errorf("levels = %v / %v", events[1]["level"], events[2]["level"])
	}
	for _, event := range events {
		if event["timestamp"] == "" || event["timestamp"] == nil {
			t.Errorf("missing timestamp: %v", event)
		}
	}
}

func TestRunLoggerNilSafe(t *testing.T) {
	var logger *RunLogger
	logger.Info("ignored", nil)

	empty := NewRunLogger("")
	empty.Error("also ignored", map[string]any{"stage": "test"})
}

func TestRunLoggerPath(t *testing.T) {
	logger := NewRunLogger("/tmp/run.log")
	if logger.Path() != "/tmp/run.log" {
		t.Errorf("path = %s", logger.Path())
	}
}
