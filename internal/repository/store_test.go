package repository

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSQLiteStore(t *testing.T) JobStore {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, common.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + filepath.Join(t.TempDir(), "jobs.db") + "?_pragma=busy_timeout(5000)",
	}, quietLogger())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(db.Close)
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Idempotent.
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if err := db.HealthCheck(ctx, time.Second); err != nil {
		t.Fatalf("health check: %v", err)
	}
	return NewJobStore(db, quietLogger())
}

func TestJobStores(t *testing.T) {
	stores := map[string]func(t *testing.T) JobStore{
		"memory": func(t *testing.T) JobStore { return NewMemoryJobStore(quietLogger()) },
		"sqlite": newSQLiteStore,
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			t.Run("lifecycle completed", func(t *testing.T) { testLifecycleCompleted(t, newStore(t)) })
			t.Run("lifecycle failed keeps ocr", func(t *testing.T) { testFailKeepsOCR(t, newStore(t)) })
			t.Run("guarded transitions", func(t *testing.T) { testGuardedTransitions(t, newStore(t)) })
			t.Run("list", func(t *testing.T) { testList(t, newStore(t)) })
		})
	}
}

func testLifecycleCompleted(t *testing.T, s JobStore) {
	ctx := context.Background()
	url := "https://example.test/notice.pdf"
	job := &entity.ProcessingJob{ID: "job-1", SourceURL: &url, MimeType: constants.MimePDF}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if job.Status != constants.JobStatusPending {
		t.Fatalf("expected pending after create, got %s", job.Status)
	}

	if err := s.MarkProcessing(ctx, "job-1", time.Now()); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := s.SaveOCR(ctx, "job-1", entity.OCROutcome{Text: "--- Page 1 ---\nसूचना", Confidence: 0.85, PageCount: 2}); err != nil {
		t.Fatalf("save ocr: %v", err)
	}
	fields := json.RawMessage(`{"notice_type":"Job Vacancy"}`)
	if err := s.Complete(ctx, "job-1", entity.ExtractionOutcome{Fields: fields, ModelName: "gemini-2.5-flash"}, time.Now()); err != nil {
		t.Fatalf("complete: %v", err)
	}

	got, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != constants.JobStatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.OCRText == nil || *got.OCRText != "--- Page 1 ---\nसूचना" {
		t.Fatalf("unexpected ocr text: %v", got.OCRText)
	}
	if got.OCRConfidence == nil || *got.OCRConfidence != 0.85 {
		t.Fatalf("unexpected confidence: %v", got.OCRConfidence)
	}
	if got.PageCount == nil || *got.PageCount != 2 {
		t.Fatalf("unexpected page count: %v", got.PageCount)
	}
	var m map[string]any
	if err := json.Unmarshal(got.ExtractedFields, &m); err != nil || m["notice_type"] != "Job Vacancy" {
		t.Fatalf("unexpected fields %s (err %v)", got.ExtractedFields, err)
	}
	if got.ModelName == nil || *got.ModelName != "gemini-2.5-flash" {
		t.Fatalf("unexpected model name: %v", got.ModelName)
	}
	if got.SourceURL == nil || *got.SourceURL != url {
		t.Fatalf("unexpected source url: %v", got.SourceURL)
	}
	if got.StartedAt == nil || got.FinishedAt == nil {
		t.Fatalf("expected started/finished timestamps, got %v / %v", got.StartedAt, got.FinishedAt)
	}
	if got.FailureReason != nil {
		t.Fatalf("expected no failure reason, got %q", *got.FailureReason)
	}
}

func testFailKeepsOCR(t *testing.T, s JobStore) {
	ctx := context.Background()
	if err := s.Create(ctx, &entity.ProcessingJob{ID: "job-2", MimeType: "image/jpeg"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkProcessing(ctx, "job-2", time.Now()); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := s.SaveOCR(ctx, "job-2", entity.OCROutcome{Text: "text", Confidence: 0.72, PageCount: 1}); err != nil {
		t.Fatalf("save ocr: %v", err)
	}
	if err := s.Fail(ctx, "job-2", "extract: extraction parse failed", time.Now()); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, err := s.Get(ctx, "job-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != constants.JobStatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
	if got.FailureReason == nil || *got.FailureReason != "extract: extraction parse failed" {
		t.Fatalf("unexpected failure reason: %v", got.FailureReason)
	}
	if got.OCRText == nil || got.OCRConfidence == nil || *got.OCRConfidence != 0.72 {
		t.Fatalf("expected ocr results to survive failure, got %v / %v", got.OCRText, got.OCRConfidence)
	}
	if got.ExtractedFields != nil {
		t.Fatalf("expected no extracted fields, got %s", got.ExtractedFields)
	}
}

func testGuardedTransitions(t *testing.T, s JobStore) {
	ctx := context.Background()
	if err := s.Create(ctx, &entity.ProcessingJob{ID: "job-3", MimeType: "image/png"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, &entity.ProcessingJob{ID: "job-3", MimeType: "image/png"}); !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := s.Complete(ctx, "job-3", entity.ExtractionOutcome{}, time.Now()); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("expected pending -> completed to be rejected, got %v", err)
	}
	if err := s.SaveOCR(ctx, "job-3", entity.OCROutcome{Text: "x", Confidence: 0.5, PageCount: 1}); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("expected ocr on pending job to be rejected, got %v", err)
	}
	if err := s.MarkProcessing(ctx, "job-3", time.Now()); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := s.MarkProcessing(ctx, "job-3", time.Now()); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("expected second mark processing to be rejected, got %v", err)
	}
	if err := s.Fail(ctx, "job-3", "no pages processed", time.Now()); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := s.Complete(ctx, "job-3", entity.ExtractionOutcome{}, time.Now()); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("expected terminal job to stay terminal, got %v", err)
	}
	if err := s.MarkProcessing(ctx, "missing", time.Now()); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testList(t *testing.T, s JobStore) {
	ctx := context.Background()
	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		job := &entity.ProcessingJob{ID: id, MimeType: "image/png", CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.Create(ctx, job); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := s.MarkProcessing(ctx, "b", time.Now()); err != nil {
		t.Fatalf("mark processing: %v", err)
	}

	all, err := s.List(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Fatalf("expected newest first [c b a], got %v", ids(all))
	}

	pending, err := s.List(ctx, ListFilter{Status: constants.JobStatusPending})
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending jobs, got %v", ids(pending))
	}

	window, err := s.List(ctx, ListFilter{From: base.Add(30 * time.Minute), To: base.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(window) != 1 || window[0].ID != "b" {
		t.Fatalf("expected only b in window, got %v", ids(window))
	}

	limited, err := s.List(ctx, ListFilter{Limit: 1})
	if err != nil {
		t.Fatalf("list limit: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 job, got %d", len(limited))
	}
}

func ids(jobs []*entity.ProcessingJob) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
