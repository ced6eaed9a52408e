package tesseract

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/otiai10/gosseract/v2"

	"github.com/joseph-ayodele/notice-ingest/internal/ocr"
)

// GosseractEngine runs tesseract in-process through libtesseract.
type GosseractEngine struct {
	langs       []string
	tessdataDir string
	psm         int
	logger      *slog.Logger
}

func NewGosseractEngine(cfg ocr.Config, logger *slog.Logger) *GosseractEngine {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &GosseractEngine{
		langs:       cfg.Languages(),
		tessdataDir: cfg.TessdataDir,
		psm:         cfg.PSM,
		logger:      logger,
	}
}

// Recognize returns as soon as ctx is done; the native call cannot be
// interrupted, so the client is released when it eventually finishes.
func (e *GosseractEngine) Recognize(ctx context.Context, imagePath string) (ocr.EngineResult, error) {
	type outcome struct {
		res ocr.EngineResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.recognize(imagePath)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		e.logger.Warn("ocr.gosseract.abandoned", "path", imagePath, "error", ctx.Err())
		return ocr.EngineResult{}, ctx.Err()
	case o := <-done:
		return o.res, o.err
	}
}

func (e *GosseractEngine) recognize(imagePath string) (ocr.EngineResult, error) {
	c := gosseract.NewClient()
	defer func() {
		if err := c.Close(); err != nil {
			e.logger.Warn("ocr.gosseract.close_failed", "error", err)
		}
	}()

	if e.tessdataDir != "" {
		if err := c.SetTessdataPrefix(e.tessdataDir); err != nil {
			return ocr.EngineResult{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(e.langs...); err != nil {
		return ocr.EngineResult{}, fmt.Errorf("set languages: %w", err)
	}
	if e.psm > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.psm)); err != nil {
			return ocr.EngineResult{}, fmt.Errorf("set psm: %w", err)
		}
	}
	if err := c.SetImage(imagePath); err != nil {
		return ocr.EngineResult{}, fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return ocr.EngineResult{}, fmt.Errorf("recognize text: %w", err)
	}

	// word boxes carry per-word confidence on a 0..100 scale
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		e.logger.Warn("ocr.gosseract.boxes_failed", "path", imagePath, "error", err)
		return ocr.EngineResult{Text: text}, nil
	}
	var sum float64
	for _, b := range boxes {
		sum += b.Confidence
	}
	var mean float64
	if len(boxes) > 0 {
		mean = sum / float64(len(boxes))
	}
	return ocr.EngineResult{Text: text, MeanConfidence: mean}, nil
}
