package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/ingest"
	svc "github.com/joseph-ayodele/notice-ingest/internal/server"
	"github.com/joseph-ayodele/notice-ingest/internal/tempfiles"
)

// runocr processes one document synchronously and prints the final job record.
// With -ocr-only it stops after the OCR stage and prints the aggregated text.
func main() {
	var (
		file    = flag.String("file", "", "local document (pdf, png, jpeg, ...)")
		url     = flag.String("url", "", "remote document URL")
		mime    = flag.String("mime", "", "declared mime type; detected from the extension when empty")
		jobID   = flag.String("id", "", "job id (default: random uuid)")
		useDB   = flag.Bool("db", false, "persist into the configured database instead of memory")
		ocrOnly = flag.Bool("ocr-only", false, "run only the OCR stage")
	)
	flag.Parse()

	_ = common.LoadDotEnv()
	cfg := common.LoadConfig()
	logger := svc.NewLogger(os.Stderr, cfg.LogLevel)

	if (*file == "") == (*url == "") {
		logger.Error("usage", "cmd", "runocr -file <path> | -url <url> [-mime type] [-id job] [-db] [-ocr-only]")
		os.Exit(2)
	}
	if *jobID == "" {
		*jobID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Queue.JobTimeout)
	defer cancel()

	var data []byte
	if *file != "" {
		var err error
		if data, err = os.ReadFile(*file); err != nil {
			logger.Error("read file", "path", *file, "error", err)
			os.Exit(1)
		}
		if *mime == "" {
			*mime = constants.MimeTypeFromExt(filepath.Ext(*file))
		}
	}

	if *ocrOnly {
		runOCROnly(ctx, cfg, data, *url, *mime)
		return
	}

	store, err := svc.OpenStore(ctx, cfg.Database, !*useDB, logger)
	if err != nil {
		logger.Error("open job store", "error", err)
		os.Exit(1)
	}
	defer store.Close(logger)

	processor, err := svc.NewProcessor(cfg, store.Jobs, nil, logger)
	if err != nil {
		logger.Error("build pipeline", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	if data != nil {
		_, err = processor.ProcessBuffer(ctx, *jobID, data, *mime)
	} else {
		_, err = processor.ProcessURL(ctx, *jobID, *url, *mime)
	}
	if err != nil {
		logger.Warn("job failed", "job_id", *jobID, "reason", common.FailureReason(err), "duration_ms", time.Since(start).Milliseconds())
	} else {
		logger.Info("job completed", "job_id", *jobID, "duration_ms", time.Since(start).Milliseconds())
	}

	job, getErr := store.Jobs.Get(context.WithoutCancel(ctx), *jobID)
	if getErr != nil {
		logger.Error("load job", "job_id", *jobID, "error", getErr)
		os.Exit(1)
	}
	printJSON(job)
	if err != nil {
		os.Exit(1)
	}
}

func runOCROnly(ctx context.Context, cfg *common.Config, data []byte, url, mime string) {
	logger := svc.NewLogger(os.Stderr, cfg.LogLevel)

	var src ingest.Source
	if data != nil {
		src = ingest.NewBufferSource(data, mime)
	} else {
		src = ingest.NewURLSource(url, mime, ingest.URLOptions{
			Timeout:  cfg.Download.Timeout,
			MaxBytes: cfg.Download.MaxBytes,
			Logger:   logger,
		})
	}

	stage, err := svc.NewOCRStage(cfg.OCR, logger)
	if err != nil {
		logger.Error("build ocr stage", "error", err)
		os.Exit(1)
	}

	scope := tempfiles.NewManager(cfg.OCR.WorkDir, logger).Scope("runocr")
	defer scope.ReleaseAll()

	start := time.Now()
	doc, err := src.Materialize(ctx, scope)
	if err != nil {
		logger.Error("acquire document", "error", err)
		scope.ReleaseAll()
		os.Exit(1)
	}
	res, err := stage.Run(ctx, doc, scope)
	if err != nil {
		logger.Error("ocr failed", "reason", common.FailureReason(err), "duration_ms", time.Since(start).Milliseconds())
		scope.ReleaseAll()
		os.Exit(1)
	}

	logger.Info("ocr OK",
		"pages", res.PageCount,
		"confidence", res.MeanConfidence,
		"chars", len([]rune(res.FullText)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	printJSON(map[string]any{
		"text":       res.FullText,
		"confidence": res.MeanConfidence,
		"page_count": res.PageCount,
	})
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
