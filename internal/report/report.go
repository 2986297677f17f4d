// Package report is the fire-and-forget logging sink used by the heartbeat
// engine. Reporting never blocks and never returns an error to the caller.
package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
)

// Severity ranks a report.
type Severity int

const (
	Debug Severity = iota
	Info
	Warning
	Error
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Reporter accepts engine reports.
type Reporter interface {
	Report(sev Severity, msg string)
}

// Logger forwards reports to a zerolog logger.
type Logger struct {
	log zerolog.Logger
}

// NewLogger wraps an existing zerolog logger.
func NewLogger(l zerolog.Logger) *Logger {
	return &Logger{log: l}
}

// Report writes msg at the level matching sev.
func (l *Logger) Report(sev Severity, msg string) {
	var ev *zerolog.Event
	switch sev {
	case Debug:
		ev = l.log.Debug()
	case Info:
		ev = l.log.Info()
	case Warning:
		ev = l.log.Warn()
	default:
		ev = l.log.Error()
	}
	ev.Msg(msg)
}

// NonBlockingWriter wraps w in a diode ring so a slow console never stalls the
// caller. Messages beyond the ring size are dropped and counted on w.
// The returned closer flushes the ring.
func NonBlockingWriter(w io.Writer, size int) (io.Writer, io.Closer) {
	d := diode.NewWriter(w, size, 10*time.Millisecond, func(missed int) {
		fmt.Fprintf(w, "report: dropped %d messages\n", missed)
	})
	return d, d
}

// Entry is one recorded report.
type Entry struct {
	Severity Severity
	Message  string
}

// Recorder keeps reports in memory for tests.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report records the entry.
func (r *Recorder) Report(sev Severity, msg string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Severity: sev, Message: msg})
	r.mu.Unlock()
}

// Entries returns a copy of everything recorded.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many entries have the given severity.
func (r *Recorder) Count(sev Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Severity == sev {
			n++
		}
	}
	return n
}
