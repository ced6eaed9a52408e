package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"
)

// StageExtract is the stage label carried by extraction failures.
const StageExtract = "extract"

// ExtractorConfig tunes model calls.
type ExtractorConfig struct {
	Timeout time.Duration // per call; 0 disables
	RPS     float64       // 0 disables throttling
	Burst   int
}

// Extractor turns aggregated OCR text into NoticeFields using a TextGenerator.
type Extractor struct {
	gen     TextGenerator
	cfg     ExtractorConfig
	schema  *jsonschema.Schema
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ FieldExtractor = (*Extractor)(nil)

func NewExtractor(gen TextGenerator, cfg ExtractorConfig, logger *slog.Logger) (*Extractor, error) {
	if gen == nil {
		return nil, fmt.Errorf("text generator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := CompileSchema(BuildNoticeJSONSchema())
	if err != nil {
		return nil, err
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst)
	}
	return &Extractor{gen: gen, cfg: cfg, schema: schema, limiter: limiter, logger: logger}, nil
}

func (e *Extractor) Model() string { return e.gen.Model() }

// ExtractFields issues one model call for ocrText and returns the validated
// fields plus their normalized JSON. Failures are *common.StageError with kind
// ErrExtractionCall (the call itself failed) or ErrExtractionParse (the output
// was unusable; RawOutput holds it).
func (e *Extractor) ExtractFields(ctx context.Context, ocrText string) (NoticeFields, []byte, error) {
	logger := common.LoggerFromContext(ctx, e.logger)
	start := time.Now()
	logger.Info("llm.extract.start", "model", e.gen.Model(), "text_len", len(ocrText))

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return NoticeFields{}, nil, common.NewStageError(StageExtract, common.ErrExtractionCall, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	callCtx := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	output, err := e.gen.Generate(callCtx, BuildNoticePrompt(ocrText))
	if err != nil {
		logger.Error("llm.extract.call_failed", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return NoticeFields{}, nil, common.NewStageError(StageExtract, common.ErrExtractionCall, err)
	}

	fields, normalized, err := e.parse(output, logger)
	if err != nil {
		logger.Error("llm.extract.parse_failed", "error", err, "output_len", len(output), "elapsed_ms", time.Since(start).Milliseconds())
		se := common.NewStageError(StageExtract, common.ErrExtractionParse, err)
		se.RawOutput = output
		return NoticeFields{}, nil, se
	}

	logger.Info("llm.extract.ok",
		"model", e.gen.Model(),
		"notice_type", fields.NoticeType,
		"deadline", fields.Deadline,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return fields, normalized, nil
}

func (e *Extractor) parse(output string, logger *slog.Logger) (NoticeFields, []byte, error) {
	obj, err := ExtractJSONObject(output)
	if err != nil {
		return NoticeFields{}, nil, err
	}
	normalized, _, err := NormalizeNoticeJSON(obj, logger)
	if err != nil {
		return NoticeFields{}, nil, err
	}
	if err := ValidateJSON(e.schema, normalized); err != nil {
		return NoticeFields{}, nil, err
	}
	var out NoticeFields
	if err := json.Unmarshal(normalized, &out); err != nil {
		return NoticeFields{}, nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return out, normalized, nil
}
