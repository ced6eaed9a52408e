package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/notice-ingest/internal/async"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/ingest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunReturnsStoreErrorInsteadOfExiting(t *testing.T) {
	cfg := &common.Config{Database: common.DatabaseConfig{Driver: "oracle", DSN: "x"}}

	err := run(context.Background(), cfg, quietLogger())
	if err == nil {
		t.Fatalf("expected error for unsupported driver, got nil")
	}
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []async.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job async.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Shutdown(context.Context) {}

func TestSubmitInboxEnqueuesUntilFilesClose(t *testing.T) {
	files := make(chan ingest.InboxFile, 2)
	errs := make(chan error, 1)
	files <- ingest.InboxFile{Path: "/inbox/a.pdf", MimeType: "application/pdf"}
	files <- ingest.InboxFile{Path: "/inbox/b.png", MimeType: "image/png"}
	errs <- errors.New("watch overflow")
	close(files)

	q := &recordingQueue{}
	if err := submitInbox(context.Background(), q, files, errs, quietLogger()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(q.jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(q.jobs))
	}
	if q.jobs[0].JobID == "" || q.jobs[0].JobID == q.jobs[1].JobID {
		t.Fatalf("expected distinct job ids, got %q and %q", q.jobs[0].JobID, q.jobs[1].JobID)
	}
	if q.jobs[1].LocalPath != "/inbox/b.png" || q.jobs[1].MimeType != "image/png" {
		t.Fatalf("expected b.png job, got %+v", q.jobs[1])
	}
}

func TestSubmitInboxStopsWhenQueueCloses(t *testing.T) {
	files := make(chan ingest.InboxFile, 1)
	files <- ingest.InboxFile{Path: "/inbox/a.pdf", MimeType: "application/pdf"}

	done := make(chan error, 1)
	go func() {
		done <- submitInbox(context.Background(), &recordingQueue{err: async.ErrQueueClosed}, files, nil, quietLogger())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected submitInbox to return after queue closed")
	}
}
