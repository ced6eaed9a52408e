package server

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/events"
	"github.com/joseph-ayodele/notice-ingest/internal/ingest"
	"github.com/joseph-ayodele/notice-ingest/internal/llm/provider"
	"github.com/joseph-ayodele/notice-ingest/internal/ocr"
	"github.com/joseph-ayodele/notice-ingest/internal/ocr/tesseract"
	"github.com/joseph-ayodele/notice-ingest/internal/pipeline"
	"github.com/joseph-ayodele/notice-ingest/internal/repository"
	"github.com/joseph-ayodele/notice-ingest/internal/tempfiles"
)

// NewLogger builds the text logger used by every binary. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// OCRConfig maps environment configuration onto the OCR package.
func OCRConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		Engine:      c.Engine,
		Tesseract:   c.Tesseract,
		Pdftoppm:    c.Pdftoppm,
		Lang:        c.Lang,
		TessdataDir: c.TessdataDir,
		PSM:         c.PSM,
		DPI:         c.DPI,
		MaxWidth:    c.MaxWidth,
		MaxHeight:   c.MaxHeight,
		MaxPages:    c.MaxPages,
		PageTimeout: c.PageTimeout,
	}.WithDefaults()
}

// NewOCRStage wires rasterizer, engine and adapter.
func NewOCRStage(c common.OCRConfig, logger *slog.Logger) (*pipeline.OCRStage, error) {
	cfg := OCRConfig(c)
	runner := ocr.NewExecRunner(logger)
	engine, err := tesseract.NewEngine(cfg, runner, logger)
	if err != nil {
		return nil, err
	}
	raster := ocr.NewRasterizer(cfg, runner, logger)
	adapter := ocr.NewAdapter(engine, cfg.PageTimeout, logger)
	return pipeline.NewOCRStage(raster, adapter, logger), nil
}

// NewPublisher returns a Kafka publisher when brokers are configured.
func NewPublisher(c common.EventsConfig, logger *slog.Logger) events.Publisher {
	if len(c.KafkaBrokers) == 0 {
		logger.Info("job events disabled, no KAFKA_BROKERS set")
		return events.NopPublisher{}
	}
	logger.Info("publishing job events", "brokers", c.KafkaBrokers, "topic", c.KafkaTopic)
	return events.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic, logger)
}

// NewProcessor builds the whole ingestion pipeline over store.
func NewProcessor(cfg *common.Config, store repository.JobStore, pub events.Publisher, logger *slog.Logger) (*pipeline.Processor, error) {
	ocrStage, err := NewOCRStage(cfg.OCR, logger)
	if err != nil {
		return nil, fmt.Errorf("ocr: %w", err)
	}
	extractor, err := provider.NewExtractor(cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}
	logger.Info("llm extractor ready", "provider", cfg.LLM.Provider, "model", extractor.Model())

	p := pipeline.NewProcessor(logger, store, tempfiles.NewManager(cfg.OCR.WorkDir, logger), ocrStage, pipeline.NewParseStage(extractor, logger))
	if pub != nil {
		p.Events = pub
	}
	p.Download = ingest.URLOptions{
		Timeout:  cfg.Download.Timeout,
		MaxBytes: cfg.Download.MaxBytes,
		Logger:   logger,
	}
	return p, nil
}
