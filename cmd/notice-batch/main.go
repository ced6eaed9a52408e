package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/async"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/export"
	"github.com/joseph-ayodele/notice-ingest/internal/repository"
	svc "github.com/joseph-ayodele/notice-ingest/internal/server"
	"github.com/joseph-ayodele/notice-ingest/internal/utils"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		inmem   = flag.Bool("inmem", false, "use an in-memory job store")
		dir     = flag.String("dir", "", "directory to process notices from (required)")
		out     = flag.String("out", "", "output XLSX file path (optional, defaults to parent directory)")
		workers = flag.Int("workers", 2, "concurrent documents")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(filepath.Clean(*dir)), "notices.xlsx")
	}

	if err := common.LoadDotEnv(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}
	cfg := common.LoadConfig()
	logger := svc.NewLogger(os.Stdout, cfg.LogLevel)

	if err := runBatch(context.Background(), cfg, batchOptions{inmem: *inmem, dir: *dir, out: *out, workers: *workers}, logger); err != nil {
		logger.Error("batch processing failed", "error", err)
		os.Exit(1)
	}
}

type batchOptions struct {
	inmem   bool
	dir     string
	out     string
	workers int
}

// runBatch processes every supported file under opts.dir and writes the day's
// sheet to opts.out. The store closes before runBatch returns.
func runBatch(ctx context.Context, cfg *common.Config, opts batchOptions, logger *slog.Logger) error {
	started := time.Now().UTC()

	store, err := svc.OpenStore(ctx, cfg.Database, opts.inmem, logger)
	if err != nil {
		return fmt.Errorf("open job store: %w", err)
	}
	defer store.Close(logger)

	processor, err := svc.NewProcessor(cfg, store.Jobs, nil, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(opts.workers),
		async.WithProcessTimeout(cfg.Queue.JobTimeout),
	)

	submitted := 0
	err = filepath.WalkDir(opts.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if utils.IsHidden(path) && path != opts.dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		mt := constants.MimeTypeFromExt(filepath.Ext(path))
		if mt == "" {
			logger.Debug("skipping unsupported file", "path", path)
			return nil
		}
		job := async.Job{JobID: uuid.NewString(), LocalPath: path, MimeType: mt, SubmittedAt: time.Now().UTC()}
		if err := queue.Enqueue(ctx, job); err != nil {
			return err
		}
		submitted++
		return nil
	})
	// Drain: Shutdown waits for every queued job.
	queue.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("scan directory %s: %w", opts.dir, err)
	}
	logger.Info("scan complete", "dir", opts.dir, "submitted", submitted)

	exportService := export.NewService(store.Jobs, logger)
	jobs, err := store.Jobs.List(ctx, repository.ListFilter{From: started})
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	completed, failed := 0, 0
	for _, j := range jobs {
		switch j.Status {
		case constants.JobStatusCompleted:
			completed++
		case constants.JobStatusFailed:
			failed++
		}
	}

	// The sheet covers the whole UTC day the run started in.
	from := started
	xlsxBytes, err := exportService.ExportJobsXLSX(ctx, "", &from, nil)
	if err != nil {
		return fmt.Errorf("export notices: %w", err)
	}
	if err := os.WriteFile(opts.out, xlsxBytes, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}

	logger.Info("batch processing complete",
		"submitted", submitted,
		"completed", completed,
		"failed", failed,
		"output_file", opts.out)

	fmt.Printf("Batch processing complete!\n")
	fmt.Printf("- Documents submitted: %d\n", submitted)
	fmt.Printf("- Completed: %d\n", completed)
	fmt.Printf("- Failed: %d\n", failed)
	fmt.Printf("- Output: %s\n", opts.out)
	return nil
}
