package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
)

// Entry is one captured log event.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// Recorder is an io.Writer that keeps every JSON log event written to it.
// Pair it with Tee to capture the transcript of a single invocation.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Write stores p as one event. zerolog emits exactly one event per call.
func (r *Recorder) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	return len(p), nil
}

// Len returns the number of captured events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

// Transcript returns the captured events joined by newlines.
func (r *Recorder) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

// Entries decodes the captured events. Lines that are not JSON objects,
// such as console-formatted output, come back with only Message set.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	lines := append([]string(nil), r.lines...)
	r.mu.Unlock()

	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		fields := map[string]interface{}{}
		dec := json.NewDecoder(bytes.NewReader([]byte(line)))
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			entries = append(entries, Entry{Message: line})
			continue
		}
		e := Entry{Fields: fields}
		if lvl, ok := fields["level"].(string); ok {
			e.Level = lvl
			delete(fields, "level")
		}
		if msg, ok := fields["message"].(string); ok {
			e.Message = msg
			delete(fields, "message")
		}
		entries = append(entries, e)
	}
	return entries
}

// Reset drops every captured event.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.lines = nil
	r.mu.Unlock()
}

// JSON returns the captured events as a JSON array. Non-JSON lines are
// encoded as strings.
func (r *Recorder) JSON() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]string, 0, len(r.lines))
	for _, line := range r.lines {
		if json.Valid([]byte(line)) {
			items = append(items, line)
			continue
		}
		quoted, _ := json.Marshal(line)
		items = append(items, string(quoted))
	}
	return "[" + strings.Join(items, ",") + "]"
}
