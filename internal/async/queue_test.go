package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type call struct {
	jobID, url, mime string
	data             []byte
}

type fakeProcessor struct {
	mu     sync.Mutex
	calls  []call
	status constants.JobStatus
	err    error
}

func (f *fakeProcessor) record(c call) (*entity.ProcessingJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.status == "" {
		return nil, f.err
	}
	return &entity.ProcessingJob{ID: c.jobID, Status: f.status}, f.err
}

func (f *fakeProcessor) ProcessURL(_ context.Context, jobID, url, mime string) (*entity.ProcessingJob, error) {
	return f.record(call{jobID: jobID, url: url, mime: mime})
}

func (f *fakeProcessor) ProcessBuffer(_ context.Context, jobID string, data []byte, mime string) (*entity.ProcessingJob, error) {
	return f.record(call{jobID: jobID, data: data, mime: mime})
}

func (f *fakeProcessor) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func TestProcessorQueue_RunsAndDrains(t *testing.T) {
	proc := &fakeProcessor{status: constants.JobStatusCompleted}
	q := NewProcessorQueue(proc, quietLogger(), WithWorkers(2), WithQueueSize(1), WithProcessTimeout(time.Second))

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, Job{JobID: id, SourceURL: "https://example.test/" + id + ".pdf"}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	q.Shutdown(shutdownCtx)

	if got := len(proc.snapshot()); got != 3 {
		t.Fatalf("expected 3 processed jobs, got %d", got)
	}
	if err := q.Enqueue(ctx, Job{JobID: "late", SourceURL: "https://example.test/late.pdf"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
}

func TestProcessorQueue_RejectsInvalidJob(t *testing.T) {
	q := NewProcessorQueue(&fakeProcessor{}, quietLogger(), WithWorkers(1))
	defer q.Shutdown(context.Background())

	if err := q.Enqueue(context.Background(), Job{JobID: "x"}); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a job without a source, got %v", err)
	}
}

func TestRunJob_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notice.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	proc := &fakeProcessor{status: constants.JobStatusCompleted}

	if err := RunJob(context.Background(), proc, Job{JobID: "inbox-1", LocalPath: path, MimeType: "image/png"}, 0, quietLogger()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := proc.snapshot()
	if len(calls) != 1 || string(calls[0].data) != "png-bytes" || calls[0].mime != "image/png" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestRunJob_ErrorClassification(t *testing.T) {
	stageErr := common.NewStageError("ocr", common.ErrNoPagesProcessed, nil)
	dbErr := errors.New("connection refused")

	tests := []struct {
		name      string
		proc      *fakeProcessor
		wantRetry bool
	}{
		{name: "completed", proc: &fakeProcessor{status: constants.JobStatusCompleted}},
		{name: "terminal failure is final", proc: &fakeProcessor{status: constants.JobStatusFailed, err: stageErr}},
		{name: "already handled", proc: &fakeProcessor{err: common.ErrInvalidTransition}},
		{name: "store outage retries", proc: &fakeProcessor{err: dbErr}, wantRetry: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunJob(context.Background(), tt.proc, Job{JobID: "j", SourceURL: "https://example.test/j.pdf"}, time.Second, quietLogger())
			if (err != nil) != tt.wantRetry {
				t.Fatalf("expected retry=%v, got err=%v", tt.wantRetry, err)
			}
		})
	}
}

func TestParseStreamMessage(t *testing.T) {
	item := redis.XMessage{ID: "1-0", Values: map[string]any{
		"job_id":       "job-7",
		"source_url":   "https://example.test/n.pdf",
		"mime_type":    "application/pdf",
		"attempt":      "2",
		"requested_at": "2024-07-01T10:00:00Z",
	}}
	job, err := parseStreamMessage(item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.JobID != "job-7" || job.Attempt != 2 || job.MimeType != "application/pdf" {
		t.Fatalf("unexpected job %+v", job)
	}
	if !job.SubmittedAt.Equal(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected submitted_at %v", job.SubmittedAt)
	}

	delete(item.Values, "attempt")
	if _, err := parseStreamMessage(item); err == nil {
		t.Fatalf("expected error for missing attempt")
	}

	noSource := redis.XMessage{ID: "2-0", Values: map[string]any{
		"job_id": "job-8", "attempt": "0", "requested_at": "2024-07-01T10:00:00Z",
	}}
	if _, err := parseStreamMessage(noSource); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for message without a source, got %v", err)
	}
}
