package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/llm/provider"
	svc "github.com/joseph-ayodele/notice-ingest/internal/server"
)

// llm runs the field extractor over OCR text read from a file or stdin.
func main() {
	var (
		in    = flag.String("in", "-", "text file with OCR output, - for stdin")
		times = flag.Int("times", 1, "repeat the call n times against the same text")
	)
	flag.Parse()

	_ = common.LoadDotEnv()
	cfg := common.LoadConfig()
	logger := svc.NewLogger(os.Stderr, cfg.LogLevel)

	var (
		text []byte
		err  error
	)
	if *in == "-" {
		text, err = io.ReadAll(os.Stdin)
	} else {
		text, err = os.ReadFile(*in)
	}
	if err != nil {
		logger.Error("read input", "in", *in, "error", err)
		os.Exit(2)
	}

	extractor, err := provider.NewExtractor(cfg.LLM, logger)
	if err != nil {
		logger.Error("build extractor", "error", err)
		os.Exit(2)
	}

	failures := 0
	for i := 1; i <= *times; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.LLM.Timeout+10*time.Second)
		start := time.Now()
		_, normalized, err := extractor.ExtractFields(ctx, string(text))
		cancel()
		if err != nil {
			failures++
			logger.Error("llm.run.error", "iter", i, "reason", common.FailureReason(err))
			var se *common.StageError
			if errors.As(err, &se) && se.RawOutput != "" {
				logger.Debug("llm.run.raw_output", "output", se.RawOutput)
			}
			continue
		}
		logger.Info("llm.run.ok", "iter", i, "model", extractor.Model(), "elapsed_ms", time.Since(start).Milliseconds())

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, normalized, "", "  "); err != nil {
			pretty.Reset()
			pretty.Write(normalized)
		}
		fmt.Println(pretty.String())
	}
	if failures > 0 {
		os.Exit(1)
	}
}
