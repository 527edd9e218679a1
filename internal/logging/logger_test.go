package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func jsonLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&Config{
		Level:  level,
		Format: "json",
		Output: buf,
		Sync:   true,
	})
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, LevelInfo)

	log.Info("framebuffer ready", "resource", uint32(3), "width", 1280)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["message"] != "framebuffer ready" {
		t.Errorf("message = %v", line["message"])
	}
	if line["resource"] != float64(3) {
		t.Errorf("resource = %v", line["resource"])
	}
	if line["width"] != float64(1280) {
		t.Errorf("width = %v", line["width"])
	}
	if _, ok := line["time"]; !ok {
		t.Error("no timestamp field")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, LevelWarn)

	log.Debug("dropped")
	log.Info("dropped too")
	log.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("below-level lines emitted: %q", out)
	}
	if !strings.Contains(out, "kept") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestWithQueueAndResource(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, LevelInfo).WithQueue("cursor").WithResource(9)

	log.Info("round trip complete")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["queue"] != "cursor" {
		t.Errorf("queue = %v", line["queue"])
	}
	if line["resource_id"] != float64(9) {
		t.Errorf("resource_id = %v", line["resource_id"])
	}
}

func TestOddArgsIgnored(t *testing.T) {
	var buf bytes.Buffer
	log := jsonLogger(&buf, LevelInfo)

	// A trailing key with no value must not panic or corrupt output.
	log.Info("msg", "key1", 1, "dangling")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["key1"] != float64(1) {
		t.Errorf("key1 = %v", line["key1"])
	}
	if _, ok := line["dangling"]; ok {
		t.Error("dangling key emitted")
	}
}

func TestAsyncWriterDropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	aw := newAsyncWriter(&stallingWriter{release: release}, 1)

	// With a one-slot buffer and a stalled sink, extra writes must
	// return immediately instead of blocking.
	for i := 0; i < 100; i++ {
		if _, err := aw.Write([]byte("line\n")); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	close(release)
	aw.Close()
}

// stallingWriter blocks every write until released.
type stallingWriter struct {
	release chan struct{}
}

func (w *stallingWriter) Write(p []byte) (int, error) {
	<-w.release
	return len(p), nil
}

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Error("Default returned distinct loggers")
	}
}
