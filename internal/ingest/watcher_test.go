package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherInitialScanFiltersByType(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.pdf", "b.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{Roots: []string{dir}, InitialScan: true})
	if err != nil {
		t.Fatalf("start watcher: %v", err)
	}

	got := map[string]string{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case f := <-events:
			got[filepath.Base(f.Path)] = f.MimeType
		case <-timeout:
			t.Fatalf("expected 2 files, got %v", got)
		}
	}
	if got["a.pdf"] != "application/pdf" || got["b.png"] != "image/png" {
		t.Fatalf("unexpected files: %v", got)
	}
	if _, ok := got["notes.txt"]; ok {
		t.Fatalf("text file must not be emitted")
	}
}

func TestWatcherRequiresRoots(t *testing.T) {
	if _, _, err := StartWatcher(context.Background(), WatchConfig{}); err == nil {
		t.Fatalf("expected error without roots")
	}
}

func TestAcceptedSkipsHiddenFiles(t *testing.T) {
	if _, ok := accepted("/inbox/.notice.pdf"); ok {
		t.Fatalf("hidden file must be skipped")
	}
	f, ok := accepted("/inbox/Notice.PDF")
	if !ok || f.MimeType != "application/pdf" {
		t.Fatalf("expected an accepted pdf, got %+v ok=%v", f, ok)
	}
}
