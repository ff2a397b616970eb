// Package testutil provides a buffering slog handler so tests can assert on
// the structured records a component emits.
package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// Record is one captured log entry with its attributes flattened.
type Record struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// Recorder is a slog.Handler that buffers every record at every level. It is
// safe for concurrent use so pipeline fan-out logging can be asserted on.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

var _ slog.Handler = (*Recorder)(nil)

func (r *Recorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs())
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	return nil
}

func (r *Recorder) Enabled(context.Context, slog.Level) bool { return true }
func (r *Recorder) WithAttrs([]slog.Attr) slog.Handler       { return r }
func (r *Recorder) WithGroup(string) slog.Handler            { return r }

// Records returns a copy of every captured record in emission order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Record(nil), r.records...)
}

// GetRecordsByLevel returns the captured records at exactly the given level.
func (r *Recorder) GetRecordsByLevel(level slog.Level) []Record {
	var out []Record
	for _, rec := range r.Records() {
		if rec.Level == level {
			out = append(out, rec)
		}
	}
	return out
}

// ContainsMessage reports whether any record's message contains the text.
func (r *Recorder) ContainsMessage(text string) bool {
	for _, rec := range r.Records() {
		if strings.Contains(rec.Message, text) {
			return true
		}
	}
	return false
}

// ContainsAttr reports whether any record carries the attribute. slog widens
// integer attrs to int64, so pass int64 values when matching slog.Int.
func (r *Recorder) ContainsAttr(key string, value any) bool {
	for _, rec := range r.Records() {
		if got, ok := rec.Attrs[key]; ok && got == value {
			return true
		}
	}
	return false
}

// NewTestLogger returns a logger wired to a fresh Recorder.
func NewTestLogger(t *testing.T) (*slog.Logger, *Recorder) {
	t.Helper()
	rec := &Recorder{}
	return slog.New(rec), rec
}
