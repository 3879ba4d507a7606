package notify

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	if err := w.Notify(EventSyncComplete, "sheets", 120); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	name := entries[0].Name()
	if filepath.Ext(name) != ".event" {
		t.Errorf("expected .event extension, got %s", name)
	}
	if !strings.Contains(name, EventSyncComplete) {
		t.Errorf("expected event type in file name, got %s", name)
	}
}

func TestEventWriterRejectsEmptyType(t *testing.T) {
	if err := NewEventWriter(t.TempDir()).Notify("", "sheets", 0); err == nil {
		t.Fatal("expected error for empty event type")
	}
}

func TestEventWriterDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)
	fixed := time.Unix(1750000000, 0)
	w.now = func() time.Time { return fixed }

	for i := 0; i < 3; i++ {
		if err := w.Notify(EventSyncComplete, "sheets", i); err != nil {
			t.Fatalf("Notify failed: %v", err)
		}
	}
	entries, _ := os.ReadDir(w.Dir())
	if len(entries) != 3 {
		t.Fatalf("expected 3 event files for identical timestamps, got %d", len(entries))
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()
	received := make(chan Event, 1)

	watcher := NewEventWatcher(dir, func(evt Event) { received <- evt }, nil)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	if err := NewEventWriter(dir).Notify(EventSyncComplete, "sheets", 42); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case evt := <-received:
		if evt.Type != EventSyncComplete {
			t.Errorf("expected %s, got %s", EventSyncComplete, evt.Type)
		}
		if evt.Source != "sheets" || evt.RecordCount != 42 {
			t.Errorf("unexpected payload: %+v", evt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The consumed file is removed.
	time.Sleep(50 * time.Millisecond)
	entries, _ := os.ReadDir(filepath.Join(dir, "events"))
	if len(entries) != 0 {
		t.Errorf("expected events dir to be empty, got %d entries", len(entries))
	}
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	// Write events BEFORE starting watcher
	writer := NewEventWriter(dir)
	_ = writer.Notify(EventSyncComplete, "first", 1)
	_ = writer.Notify(EventSyncComplete, "second", 2)

	received := make(chan Event, 10)
	watcher := NewEventWatcher(dir, func(evt Event) { received <- evt }, nil)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Drain runs synchronously during Start
	if len(received) != 2 {
		t.Fatalf("expected 2 drained events, got %d", len(received))
	}
	if first := <-received; first.Source != "first" {
		t.Errorf("expected oldest event first, got %s", first.Source)
	}
}

func TestEventWatcherSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	eventsDir := filepath.Join(dir, "events")
	if err := os.MkdirAll(eventsDir, 0o700); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(eventsDir, "1-bad.event"), []byte("not json"), 0o600)
	_ = os.WriteFile(filepath.Join(eventsDir, "2-untyped.event"), []byte(`{"time":1}`), 0o600)
	_ = os.WriteFile(filepath.Join(eventsDir, "notes.txt"), []byte("ignore"), 0o600)

	calls := 0
	watcher := NewEventWatcher(dir, func(Event) { calls++ }, nil)
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	watcher.Stop()

	if calls != 0 {
		t.Errorf("expected no callbacks, got %d", calls)
	}
	if _, err := os.Stat(filepath.Join(eventsDir, "notes.txt")); err != nil {
		t.Errorf("non-event file should be left alone: %v", err)
	}
}

func TestSanitizeName(t *testing.T) {
	got := sanitizeName("sync:complete/v1.2")
	if got != "sync_complete_v1_2" {
		t.Errorf("expected sync_complete_v1_2, got %s", got)
	}
}
