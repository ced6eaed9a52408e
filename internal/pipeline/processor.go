// Package pipeline runs one notice document through acquisition, OCR and
// field extraction while driving the job's status transitions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
	"github.com/joseph-ayodele/notice-ingest/internal/events"
	"github.com/joseph-ayodele/notice-ingest/internal/ingest"
	"github.com/joseph-ayodele/notice-ingest/internal/repository"
	"github.com/joseph-ayodele/notice-ingest/internal/tempfiles"
)

// StageAcquire labels source acquisition failures.
const StageAcquire = "acquire"

// Processor coordinates acquisition, OCR (text extract) and LLM parse (fields).
// It holds no per-job lock: callers must not run the same job id twice at once.
type Processor struct {
	Logger   *slog.Logger
	Store    repository.JobStore
	Temp     *tempfiles.Manager
	OCR      *OCRStage
	Parse    *ParseStage
	Events   events.Publisher
	Download ingest.URLOptions
}

func NewProcessor(logger *slog.Logger, store repository.JobStore, temp *tempfiles.Manager, ocr *OCRStage, parse *ParseStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		Logger: logger,
		Store:  store,
		Temp:   temp,
		OCR:    ocr,
		Parse:  parse,
		Events: events.NopPublisher{},
	}
}

// ProcessBuffer runs the synchronous-at-upload mode over bytes already in memory.
func (p *Processor) ProcessBuffer(ctx context.Context, jobID string, data []byte, mimeType string) (*entity.ProcessingJob, error) {
	return p.Process(ctx, jobID, ingest.NewBufferSource(data, mimeType))
}

// ProcessURL runs the asynchronous-after-upload mode: the document is downloaded first.
func (p *Processor) ProcessURL(ctx context.Context, jobID, url, mimeType string) (*entity.ProcessingJob, error) {
	opts := p.Download
	if opts.Logger == nil {
		opts.Logger = p.Logger
	}
	return p.Process(ctx, jobID, ingest.NewURLSource(url, mimeType, opts))
}

// Process drives job jobID from pending to a terminal status.
//
// The job is created if the store does not know it yet, then moved to
// processing before any work starts. OCR results are committed before
// extraction runs and are kept when extraction fails. Every temp file the job
// acquired is removed before Process returns, whichever path it took.
//
// The returned job is the persisted record. The error is the pipeline-fatal
// *common.StageError when the job failed, or a store error.
func (p *Processor) Process(ctx context.Context, jobID string, src ingest.Source) (*entity.ProcessingJob, error) {
	logger := p.Logger.With("job_id", jobID)
	ctx = common.WithLogger(common.WithJobID(ctx, jobID), logger)
	start := time.Now()

	if err := p.ensureJob(ctx, jobID, src); err != nil {
		return nil, err
	}
	if err := p.Store.MarkProcessing(ctx, jobID, time.Now()); err != nil {
		logger.Error("processor.start.failed", "error", err)
		return nil, err
	}
	logger.Info("processor.start", "source", sourceLabel(src), "mime_type", src.DeclaredMimeType())

	scope := p.Temp.Scope(jobID)
	defer scope.ReleaseAll()

	runErr := p.run(ctx, jobID, src, scope)

	// Read back with a context that survives the caller's deadline.
	job, err := p.Store.Get(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	if job.Status.IsTerminal() {
		p.publish(ctx, job)
	}

	logger.Info("processor.done",
		"status", job.Status,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return job, runErr
}

func (p *Processor) run(ctx context.Context, jobID string, src ingest.Source, scope *tempfiles.Scope) error {
	logger := common.LoggerFromContext(ctx, p.Logger)
	// Terminal writes must land even when ctx has expired.
	persist := context.WithoutCancel(ctx)

	doc, err := src.Materialize(ctx, scope)
	if err != nil {
		return p.fail(persist, jobID, common.NewStageError(StageAcquire, common.ErrSourceAcquisition, err))
	}
	logger.Info("processor.acquire.ok", "path", doc.Path, "mime_type", doc.MimeType, "bytes", doc.Size)

	agg, err := p.OCR.Run(ctx, doc, scope)
	if err != nil {
		return p.fail(persist, jobID, err)
	}

	if err := p.Store.SaveOCR(persist, jobID, entity.OCROutcome{
		Text:       agg.FullText,
		Confidence: agg.MeanConfidence,
		PageCount:  agg.PageCount,
	}); err != nil {
		logger.Error("processor.ocr.persist_failed", "error", err)
		return p.fail(persist, jobID, fmt.Errorf("persist ocr: %w", err))
	}

	if agg.FullText == "" {
		logger.Warn("processor.parse.skipped", "reason", "empty ocr text", "pages", agg.PageCount)
		return p.complete(persist, jobID, entity.ExtractionOutcome{})
	}

	out, err := p.Parse.Run(ctx, agg.FullText)
	if err != nil {
		var se *common.StageError
		if errors.As(err, &se) && se.RawOutput != "" {
			logger.Warn("processor.parse.raw_output", "raw", truncate(se.RawOutput, 2000))
		}
		return p.fail(persist, jobID, err)
	}
	logger.Info("processor.parse.ok", "model", out.ModelName)
	return p.complete(persist, jobID, out)
}

// ensureJob creates a pending record for unknown job ids.
func (p *Processor) ensureJob(ctx context.Context, jobID string, src ingest.Source) error {
	_, err := p.Store.Get(ctx, jobID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return err
	}
	job := &entity.ProcessingJob{ID: jobID, MimeType: src.DeclaredMimeType()}
	if ref := src.Ref(); ref != "" {
		job.SourceURL = &ref
	}
	if err := p.Store.Create(ctx, job); err != nil && !errors.Is(err, common.ErrAlreadyExists) {
		return err
	}
	return nil
}

func (p *Processor) complete(ctx context.Context, jobID string, out entity.ExtractionOutcome) error {
	if err := p.Store.Complete(ctx, jobID, out, time.Now()); err != nil {
		common.LoggerFromContext(ctx, p.Logger).Error("processor.complete.failed", "error", err)
		return err
	}
	return nil
}

// fail records cause as the job's failure reason and returns it. A store error
// is joined to cause, never substituted for it.
func (p *Processor) fail(ctx context.Context, jobID string, cause error) error {
	logger := common.LoggerFromContext(ctx, p.Logger)
	reason := common.FailureReason(cause)
	logger.Error("processor.failed", "reason", reason)
	if err := p.Store.Fail(ctx, jobID, reason, time.Now()); err != nil {
		logger.Error("processor.fail.persist_failed", "error", err)
		return errors.Join(cause, err)
	}
	return cause
}

func (p *Processor) publish(ctx context.Context, job *entity.ProcessingJob) {
	if p.Events == nil {
		return
	}
	if err := p.Events.Publish(context.WithoutCancel(ctx), events.FromJob(job)); err != nil {
		common.LoggerFromContext(ctx, p.Logger).Warn("processor.event.failed", "error", err)
	}
}

func sourceLabel(src ingest.Source) string {
	if ref := src.Ref(); ref != "" {
		return ref
	}
	return "buffer"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
