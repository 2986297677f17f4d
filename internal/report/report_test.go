package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{Debug, "debug"},
		{Info, "info"},
		{Warning, "warn"},
		{Error, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.sev.String(), func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))
			l.Report(tt.sev, "peer EPS presumed dead")

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("invalid JSON %q: %v", buf.String(), err)
			}
			if line["level"] != tt.want {
				t.Errorf("level: got %v, want %s", line["level"], tt.want)
			}
			if line["message"] != "peer EPS presumed dead" {
				t.Errorf("message: got %v", line["message"])
			}
		})
	}
}

func TestNonBlockingWriterFlushesOnClose(t *testing.T) {
	var buf safeBuffer
	w, closer := NonBlockingWriter(&buf, 64)

	l := NewLogger(zerolog.New(w))
	l.Report(Info, "hello")

	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected flushed message, got %q", buf.String())
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	r.Report(Warning, "a")
	r.Report(Error, "b")
	r.Report(Warning, "c")

	if r.Count(Warning) != 2 {
		t.Errorf("warnings: got %d, want 2", r.Count(Warning))
	}
	entries := r.Entries()
	if len(entries) != 3 || entries[1].Message != "b" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestSeverityString(t *testing.T) {
	if Severity(42).String() != "Severity(42)" {
		t.Errorf("unexpected: %s", Severity(42))
	}
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
