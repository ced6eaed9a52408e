package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/ingest"
	"github.com/joseph-ayodele/notice-ingest/internal/ocr"
)

// StageOCR labels failures of the rasterize + recognise loop.
const StageOCR = "ocr"

// PageSource opens a lazy page sequence over a document. *ocr.Rasterizer implements it.
type PageSource interface {
	Open(doc ingest.Document, scope ingest.TempScope) (ocr.PageCursor, error)
}

// PageRecognizer runs OCR on one page image. *ocr.Adapter implements it.
type PageRecognizer interface {
	Recognize(ctx context.Context, imagePath string) (ocr.Recognition, error)
}

type OCRStage struct {
	Pages      PageSource
	Recognizer PageRecognizer
	Logger     *slog.Logger
}

func NewOCRStage(pages PageSource, rec PageRecognizer, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{Pages: pages, Recognizer: rec, Logger: logger}
}

// Run rasterises doc page by page and recognises each page before asking for
// the next. The first page that fails to render or recognise ends the loop;
// pages before it are kept. Zero usable pages is ErrNoPagesProcessed.
func (s *OCRStage) Run(ctx context.Context, doc ingest.Document, scope ingest.TempScope) (ocr.Aggregated, error) {
	logger := common.LoggerFromContext(ctx, s.Logger)
	start := time.Now()

	cursor, err := s.Pages.Open(doc, scope)
	if err != nil {
		return ocr.Aggregated{}, common.NewStageError(StageOCR, common.ErrNoPagesProcessed, err)
	}

	var (
		pages []ocr.PageText
		stop  error
	)
	for {
		res := cursor.Next(ctx)
		if res.EndOfDocument {
			stop = res.Reason
			break
		}
		rec, err := s.Recognizer.Recognize(ctx, res.Page.Path)
		if err != nil {
			logger.Warn("processor.ocr.page_failed", "page", res.Page.Number, "error", err)
			stop = err
			break
		}
		pages = append(pages, ocr.PageText{
			PageNumber: res.Page.Number,
			Text:       rec.Text,
			Confidence: rec.Confidence,
		})
		logger.Debug("processor.ocr.page_ok", "page", res.Page.Number, "confidence", rec.Confidence)
	}

	if len(pages) == 0 {
		return ocr.Aggregated{}, common.NewStageError(StageOCR, common.ErrNoPagesProcessed, stop)
	}

	agg := ocr.Aggregate(pages, doc.Format == constants.PDF)
	logger.Info("processor.ocr.ok",
		"format", doc.Format,
		"pages", agg.PageCount,
		"confidence", agg.MeanConfidence,
		"chars", len(agg.FullText),
		"stopped_by", errString(stop),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return agg, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
