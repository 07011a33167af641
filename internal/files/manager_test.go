package files

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return manager
}

func TestAdoptStoresPayloadAndKeepsExtension(t *testing.T) {
	manager := newTestManager(t)

	ref, err := manager.Adopt(strings.NewReader("payload-bytes"), "Photo.JPG")
	if err != nil {
		t.Fatalf("Adopt error: %v", err)
	}
	if !strings.HasPrefix(ref, RefPrefix) {
		t.Fatalf("ref = %q, want prefix %q", ref, RefPrefix)
	}
	if !strings.HasSuffix(ref, ".jpg") {
		t.Fatalf("ref = %q, want lowercased .jpg extension", ref)
	}

	file, err := manager.Open(ref)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "payload-bytes" {
		t.Fatalf("stored payload = %q", data)
	}
}

func TestAdoptDropsOversizedExtension(t *testing.T) {
	manager := newTestManager(t)
	ref, err := manager.Adopt(strings.NewReader("x"), "weird."+strings.Repeat("a", 20))
	if err != nil {
		t.Fatalf("Adopt error: %v", err)
	}
	if strings.Contains(strings.TrimPrefix(ref, RefPrefix), ".") {
		t.Fatalf("ref = %q, want no extension", ref)
	}
}

func TestAdoptLeavesNoTempFileBehind(t *testing.T) {
	manager := newTestManager(t)
	if _, err := manager.Adopt(strings.NewReader("x"), "a.png"); err != nil {
		t.Fatalf("Adopt error: %v", err)
	}
	entries, err := os.ReadDir(manager.Dir())
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "incoming-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestReleaseOutcomes(t *testing.T) {
	manager := newTestManager(t)
	ref, err := manager.Adopt(strings.NewReader("x"), "a.png")
	if err != nil {
		t.Fatalf("Adopt error: %v", err)
	}

	if result := manager.Release(ref); result != Deleted {
		t.Fatalf("first Release = %s, want deleted", result)
	}
	if result := manager.Release(ref); result != AlreadyAbsent {
		t.Fatalf("second Release = %s, want already_absent", result)
	}
	if result := manager.Release("/uploads/never-existed.png"); result != AlreadyAbsent {
		t.Fatalf("Release of unknown ref = %s, want already_absent", result)
	}
}

func TestResolveRejectsEscapingReferences(t *testing.T) {
	manager := newTestManager(t)
	refs := []string{
		"not-a-ref",
		"/uploads/",
		"/uploads/../store.json",
		"/uploads/sub/dir.png",
		"/elsewhere/file.png",
	}
	for _, ref := range refs {
		if _, err := manager.Open(ref); !os.IsNotExist(err) {
			t.Fatalf("Open(%q) error = %v, want not-exist", ref, err)
		}
		if result := manager.Release(ref); result != AlreadyAbsent {
			t.Fatalf("Release(%q) = %s, want already_absent", ref, result)
		}
	}
}

func TestSweepRemovesOnlyOldOrphans(t *testing.T) {
	manager := newTestManager(t)

	keepRef, err := manager.Adopt(strings.NewReader("keep"), "keep.png")
	if err != nil {
		t.Fatalf("Adopt error: %v", err)
	}
	orphanRef, err := manager.Adopt(strings.NewReader("orphan"), "orphan.png")
	if err != nil {
		t.Fatalf("Adopt error: %v", err)
	}
	freshRef, err := manager.Adopt(strings.NewReader("fresh"), "fresh.png")
	if err != nil {
		t.Fatalf("Adopt error: %v", err)
	}

	// Age the referenced and orphaned files past the cutoff; the fresh
	// orphan keeps its current mtime and must survive.
	old := time.Now().Add(-2 * time.Hour)
	for _, ref := range []string{keepRef, orphanRef} {
		name := strings.TrimPrefix(ref, RefPrefix)
		if err := os.Chtimes(filepath.Join(manager.Dir(), name), old, old); err != nil {
			t.Fatalf("Chtimes error: %v", err)
		}
	}

	referenced := map[string]struct{}{keepRef: {}}
	removed, err := manager.Sweep(context.Background(), referenced, time.Hour)
	if err != nil {
		t.Fatalf("Sweep error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("Sweep removed %d files, want 1", removed)
	}

	if _, err := manager.Open(keepRef); err != nil {
		t.Fatalf("referenced file was swept: %v", err)
	}
	if _, err := manager.Open(freshRef); err != nil {
		t.Fatalf("fresh orphan was swept: %v", err)
	}
	if _, err := manager.Open(orphanRef); !os.IsNotExist(err) {
		t.Fatalf("old orphan survived, Open error = %v", err)
	}
}

func TestSweepHonorsContextCancellation(t *testing.T) {
	manager := newTestManager(t)
	ref, err := manager.Adopt(strings.NewReader("x"), "a.png")
	if err != nil {
		t.Fatalf("Adopt error: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	name := strings.TrimPrefix(ref, RefPrefix)
	if err := os.Chtimes(filepath.Join(manager.Dir(), name), old, old); err != nil {
		t.Fatalf("Chtimes error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := manager.Sweep(ctx, nil, time.Minute); err == nil {
		t.Fatal("expected context error from Sweep")
	}
}
