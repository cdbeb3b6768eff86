package logging_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dronetrack/internal/logging"
	"dronetrack/internal/testsupport"
)

func TestConsoleLoggerFormatsComponentAndFloats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "controller").Info("pulse issued",
		logging.String(logging.FieldAxis, "x"),
		logging.Float64("value", 0.3),
	)

	line := buf.String()
	if !strings.Contains(line, "[controller] pulse issued") {
		t.Fatalf("expected component and message, got %q", line)
	}
	if !strings.Contains(line, "axis=x value=0.300") {
		t.Fatalf("expected formatted attrs, got %q", line)
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information at info level, got %q", line)
	}
}

func TestConsoleLoggerHidesSessionAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WithSession(logger, "abc").Info("attached")
	if strings.Contains(buf.String(), "session_id") {
		t.Fatalf("session id leaked into info console line: %q", buf.String())
	}
}

func TestDebugLevelIncludesCaller(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("drain miss")
	if !strings.Contains(buf.String(), ".go:") {
		t.Fatalf("expected caller information at debug level, got %q", buf.String())
	}
}

func TestFileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tracker.log")
	logger, err := logging.New(logging.Options{Level: "info", Console: &bytes.Buffer{}, File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("frame cached", logging.FrameID(12))

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, content)
	}
	if record["msg"] != "frame cached" || record["frame_id"] != float64(12) {
		t.Fatalf("unexpected record %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestNewRejectsUnknownValues(t *testing.T) {
	if _, err := logging.New(logging.Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFromConfigWritesRoleFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	logger, err := logging.NewFromConfig(cfg, "station")
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Warn("link lost")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "station.log"))
	if err != nil {
		t.Fatalf("read role log: %v", err)
	}
	if !strings.Contains(string(content), `"role":"station"`) {
		t.Fatalf("expected role attr in file output, got %q", content)
	}
}

func TestWarnWithContextFillsDefaults(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "frame skipped", "frame_malformed",
		logging.String(logging.FieldImpact, "tracker keeps previous frame"))

	out := buf.String()
	for _, want := range []string{`"event_type":"frame_malformed"`, `"error_hint":`, `"impact":"tracker keeps previous frame"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}
