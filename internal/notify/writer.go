// Package notify carries sync notifications from the ingestion job to a
// running caresight server through event files in a shared directory.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// EventSyncComplete is written after every successful spreadsheet sync.
const EventSyncComplete = "sync_complete"

// Event is the payload written to an event file.
type Event struct {
	Type        string `json:"type"`
	Source      string `json:"source,omitempty"`
	RecordCount int    `json:"record_count,omitempty"`
	Time        int64  `json:"time"`
}

// EventWriter writes event files to {dataPath}/events/.
type EventWriter struct {
	dir string
	now func() time.Time
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events"), now: time.Now}
}

// Dir returns the events directory.
func (w *EventWriter) Dir() string {
	return w.dir
}

// Notify writes one event file. The file is written under a temporary name
// and renamed into place so a watcher never reads a partial payload.
// Safe to call concurrently.
func (w *EventWriter) Notify(eventType, source string, recordCount int) error {
	if eventType == "" {
		return fmt.Errorf("notify: event type is required")
	}
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		Type:        eventType,
		Source:      source,
		RecordCount: recordCount,
		Time:        w.now().UnixNano(),
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	name := fmt.Sprintf("%d-%s-%s.event", evt.Time, sanitizeName(eventType), uuid.NewString()[:8])
	tmp, err := os.CreateTemp(w.dir, ".pending-*")
	if err != nil {
		return fmt.Errorf("notify: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: write event: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: close event: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(w.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: publish event: %w", err)
	}
	return nil
}

// sanitizeName replaces characters unsafe for filenames.
func sanitizeName(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '/', ':', '\\', '.':
			out[i] = '_'
		default:
			out[i] = s[i]
		}
	}
	return string(out)
}
