package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
)

// DefaultLang is the fixed bilingual mode: Nepali plus English.
const DefaultLang = "nep+eng"

const (
	EngineGosseract = "gosseract"
	EngineCLI       = "cli"
)

type Config struct {
	Engine    string // EngineGosseract | EngineCLI; default gosseract
	Tesseract string // binary name or absolute path; if empty -> "tesseract"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"

	Lang        string // tesseract language spec, default DefaultLang
	TessdataDir string
	PSM         int // 0 keeps the engine default

	DPI       int // rasterization DPI for PDFs, default 300
	MaxWidth  int // pixel envelope, default 2000
	MaxHeight int // pixel envelope, default 2800
	MaxPages  int // 0 = no limit

	PageTimeout time.Duration // per-page OCR deadline, 0 = none
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Engine == "" {
		c.Engine = EngineGosseract
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Lang == "" {
		c.Lang = DefaultLang
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = 2000
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = 2800
	}
	return c
}

// Languages splits "nep+eng" into its parts.
func (c Config) Languages() []string {
	var out []string
	for _, l := range strings.Split(c.Lang, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// EngineResult is raw engine output; MeanConfidence is on the engine's 0..100 scale.
type EngineResult struct {
	Text           string
	MeanConfidence float64
}

// Engine recognises the text on one page image.
type Engine interface {
	Recognize(ctx context.Context, imagePath string) (EngineResult, error)
}

// Recognition is one page's text with confidence normalised to 0..1.
type Recognition struct {
	Text       string
	Confidence float64
}

// Adapter wraps an Engine with normalisation and the per-page deadline.
// It only reads the image; deleting it is the caller's business.
type Adapter struct {
	engine      Engine
	pageTimeout time.Duration
	logger      *slog.Logger
}

func NewAdapter(engine Engine, pageTimeout time.Duration, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{engine: engine, pageTimeout: pageTimeout, logger: logger}
}

// Recognize runs OCR on one image. Any failure wraps common.ErrOCRPage.
func (a *Adapter) Recognize(ctx context.Context, imagePath string) (Recognition, error) {
	if a.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.pageTimeout)
		defer cancel()
	}
	start := time.Now()
	res, err := a.engine.Recognize(ctx, imagePath)
	if err != nil {
		return Recognition{}, fmt.Errorf("%w: %s: %w", common.ErrOCRPage, imagePath, err)
	}
	out := Recognition{
		Text:       Normalize(res.Text),
		Confidence: normalizeConfidence(res.MeanConfidence),
	}
	a.logger.Debug("ocr.page.ok",
		"path", imagePath,
		"chars", len(out.Text),
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func normalizeConfidence(raw float64) float64 {
	c := raw / 100.0
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}
