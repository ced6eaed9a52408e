package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
	"github.com/joseph-ayodele/notice-ingest/internal/llm"
)

type ParseStage struct {
	Extractor llm.FieldExtractor
	Logger    *slog.Logger
}

func NewParseStage(fe llm.FieldExtractor, logger *slog.Logger) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStage{Extractor: fe, Logger: logger}
}

// Run extracts notice fields from aggregated OCR text. Errors are always
// *common.StageError so the processor can persist a reason.
func (s *ParseStage) Run(ctx context.Context, text string) (entity.ExtractionOutcome, error) {
	logger := common.LoggerFromContext(ctx, s.Logger)
	logger.Info("parse fields start", "ocr_bytes", len(text), "model", s.Extractor.Model())

	fields, raw, err := s.Extractor.ExtractFields(ctx, text)
	if err != nil {
		var se *common.StageError
		if !errors.As(err, &se) {
			err = common.NewStageError(llm.StageExtract, common.ErrExtractionCall, err)
		}
		return entity.ExtractionOutcome{}, err
	}

	logger.Info("parsed fields successfully",
		"notice_type", fields.NoticeType,
		"position_title", fields.PositionTitle,
		"district", fields.District,
		"deadline", fields.Deadline,
	)
	return entity.ExtractionOutcome{Fields: raw, ModelName: s.Extractor.Model()}, nil
}
