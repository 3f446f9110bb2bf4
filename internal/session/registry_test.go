package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry(testLogger(), time.Minute)

	sess := reg.Create("s1")
	if sess == nil {
		t.Fatal("Create returned nil")
	}
	if sess.Busy() {
		t.Error("New session should not be busy")
	}
	if sess.BufferLen() != 0 {
		t.Error("New session should have an empty buffer")
	}

	got, exists := reg.Get("s1")
	if !exists || got != sess {
		t.Error("Get should return the created session")
	}

	if reg.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", reg.Len())
	}

	if !reg.Remove("s1") {
		t.Error("Remove should report the session existed")
	}
	if reg.Remove("s1") {
		t.Error("Second Remove should report the session was gone")
	}

	if _, exists := reg.Get("s1"); exists {
		t.Error("Removed session should not be retrievable")
	}
}

func TestRegistryCreateExisting(t *testing.T) {
	reg := NewRegistry(testLogger(), time.Minute)

	first := reg.Create("s1")
	second := reg.Create("s1")

	if first != second {
		t.Error("Creating an existing id should return the existing session")
	}
	if reg.Len() != 1 {
		t.Errorf("Expected 1 session after duplicate create, got %d", reg.Len())
	}
}

func TestRegistrySweepEvictsIdle(t *testing.T) {
	reg := NewRegistry(testLogger(), 50*time.Millisecond)

	var evicted []string
	reg.OnEvict = func(id string) { evicted = append(evicted, id) }

	reg.Create("idle")
	fresh := reg.Create("fresh")

	time.Sleep(80 * time.Millisecond)
	fresh.Touch()

	reg.sweep()

	if _, exists := reg.Get("idle"); exists {
		t.Error("Idle session should have been evicted")
	}
	if _, exists := reg.Get("fresh"); !exists {
		t.Error("Active session should have survived the sweep")
	}
	if len(evicted) != 1 || evicted[0] != "idle" {
		t.Errorf("Expected OnEvict for 'idle', got %v", evicted)
	}
}

func TestRegistryGetAllStats(t *testing.T) {
	reg := NewRegistry(testLogger(), time.Minute)

	reg.Create("a")
	b := reg.Create("b")
	b.AppendOrFlush([]byte("x"), 20)

	stats := reg.GetAllStats()
	if len(stats) != 2 {
		t.Fatalf("Expected stats for 2 sessions, got %d", len(stats))
	}

	byID := make(map[string]Stats)
	for _, s := range stats {
		byID[s.ID] = s
	}
	if byID["b"].BufferedChunks != 1 {
		t.Errorf("Expected 1 buffered chunk for session b, got %d", byID["b"].BufferedChunks)
	}
}

func TestRegistryStartStop(t *testing.T) {
	reg := NewRegistry(testLogger(), time.Minute)

	reg.Start(context.Background())
	reg.Stop()
}
