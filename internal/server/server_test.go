package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/entity"
	"github.com/joseph-ayodele/notice-ingest/internal/repository"
)

type flakyPinger struct{ down atomic.Bool }

func (p *flakyPinger) HealthCheck(context.Context, time.Duration) error {
	if p.down.Load() {
		return errors.New("db down")
	}
	return nil
}

func TestHealthServerFollowsPinger(t *testing.T) {
	logger := NewLogger(io.Discard, "error")
	pinger := &flakyPinger{}
	srv := NewHealthServer(pinger, 20*time.Millisecond, logger)

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		cctx, ccancel := context.WithTimeout(context.Background(), time.Second)
		defer ccancel()
		resp, err := client.Check(cctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}

	pinger.down.Store(true)
	deadline := time.Now().Add(2 * time.Second)
	for check() != healthpb.HealthCheckResponse_NOT_SERVING {
		if time.Now().After(deadline) {
			t.Fatalf("expected NOT_SERVING after the pinger failed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	pinger.down.Store(false)
	deadline = time.Now().Add(2 * time.Second)
	for check() != healthpb.HealthCheckResponse_SERVING {
		if time.Now().After(deadline) {
			t.Fatalf("expected SERVING after the pinger recovered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestOpenStore_InMemory(t *testing.T) {
	logger := NewLogger(io.Discard, "info")
	st, err := OpenStore(context.Background(), common.DatabaseConfig{}, true, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close(logger)
	if st.DB != nil {
		t.Fatalf("expected no database for the in-memory store")
	}
	if _, ok := st.Jobs.(*repository.MemoryJobStore); !ok {
		t.Fatalf("expected *repository.MemoryJobStore, got %T", st.Jobs)
	}
}

func TestOpenStore_SQLiteMigrates(t *testing.T) {
	logger := NewLogger(io.Discard, "info")
	cfg := common.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + t.TempDir() + "/jobs.db?_pragma=busy_timeout(5000)",
	}
	st, err := OpenStore(context.Background(), cfg, false, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close(logger)

	ctx := context.Background()
	if err := st.Jobs.Create(ctx, &entity.ProcessingJob{ID: "n-1", MimeType: "application/pdf"}); err != nil {
		t.Fatalf("create on migrated schema: %v", err)
	}
	if _, err := st.Jobs.Get(ctx, "n-1"); err != nil {
		t.Fatalf("get: %v", err)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	if !NewLogger(io.Discard, "debug").Enabled(context.Background(), -4) {
		t.Fatalf("expected debug to be enabled")
	}
	if NewLogger(io.Discard, "bogus").Enabled(context.Background(), -4) {
		t.Fatalf("expected an unknown level to fall back to info")
	}
}

func TestOCRConfigDefaults(t *testing.T) {
	cfg := OCRConfig(common.OCRConfig{})
	if cfg.Lang != "nep+eng" || cfg.DPI != 300 || cfg.Engine != "gosseract" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}
