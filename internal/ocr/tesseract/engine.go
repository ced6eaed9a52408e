// Package tesseract selects and builds the OCR engine.
package tesseract

import (
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/notice-ingest/internal/ocr"
)

// NewEngine builds the configured engine: in-process gosseract or the tesseract CLI.
func NewEngine(cfg ocr.Config, runner ocr.Runner, logger *slog.Logger) (ocr.Engine, error) {
	cfg = cfg.WithDefaults()
	switch cfg.Engine {
	case ocr.EngineGosseract:
		return NewGosseractEngine(cfg, logger), nil
	case ocr.EngineCLI:
		return ocr.NewCLIEngine(cfg, runner, logger), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
	}
}
