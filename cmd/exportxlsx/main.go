package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joseph-ayodele/notice-ingest/constants"
	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/export"
	svc "github.com/joseph-ayodele/notice-ingest/internal/server"
	"github.com/joseph-ayodele/notice-ingest/internal/utils"
)

func main() {
	var (
		out     = flag.String("out", "notices.xlsx", "output XLSX file path")
		status  = flag.String("status", "", "only jobs in this status (pending|processing|completed|failed)")
		fromStr = flag.String("from", "", "from date YYYY-MM-DD")
		toStr   = flag.String("to", "", "to date YYYY-MM-DD")
	)
	flag.Parse()

	var from, to *time.Time
	if *fromStr != "" {
		parsed, err := utils.ParseYMD(*fromStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --from date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(2)
		}
		from = &parsed
	}
	if *toStr != "" {
		parsed, err := utils.ParseYMD(*toStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --to date format, use YYYY-MM-DD: %v\n", err)
			os.Exit(2)
		}
		to = &parsed
	}
	st := constants.JobStatus(*status)
	if st != "" && !st.Valid() {
		fmt.Fprintf(os.Stderr, "Error: unknown --status %q\n", *status)
		os.Exit(2)
	}

	if err := common.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cfg := common.LoadConfig()
	logger := svc.NewLogger(os.Stderr, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store, err := svc.OpenStore(ctx, cfg.Database, false, logger)
	if err != nil {
		logger.Error("open job store", "error", err)
		os.Exit(1)
	}
	defer store.Close(logger)

	data, err := export.NewService(store.Jobs, logger).ExportJobsXLSX(ctx, st, from, to)
	if err != nil {
		logger.Error("export failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write output", "path", *out, "error", err)
		os.Exit(1)
	}
	fmt.Println(*out)
}
