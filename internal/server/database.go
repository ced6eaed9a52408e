package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/notice-ingest/internal/common"
	"github.com/joseph-ayodele/notice-ingest/internal/repository"
)

// Store is an opened job store plus the database behind it. DB is nil for the
// in-memory store.
type Store struct {
	Jobs repository.JobStore
	DB   *repository.DB
}

// OpenStore connects to the configured database, pings it and applies the
// schema. With inmem set it returns a process-local store instead.
func OpenStore(ctx context.Context, cfg common.DatabaseConfig, inmem bool, logger *slog.Logger) (*Store, error) {
	if inmem {
		logger.Info("using in-memory job store")
		return &Store{Jobs: repository.NewMemoryJobStore(logger)}, nil
	}

	logger.Info("opening job store", "driver", cfg.Driver)
	db, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := PingDB(ctx, db, logger, 5*time.Second); err != nil {
		db.Close()
		return nil, err
	}
	if err := repository.Migrate(ctx, db); err != nil {
		logger.Error("failed to apply schema", "error", err)
		db.Close()
		return nil, err
	}
	logger.Info("job store ready", "dialect", db.Dialect())
	return &Store{Jobs: repository.NewJobStore(db, logger), DB: db}, nil
}

// PingDB pings the database to ensure it's responsive
func PingDB(ctx context.Context, db *repository.DB, logger *slog.Logger, timeout time.Duration) error {
	logger.Debug("pinging database")
	if err := db.HealthCheck(ctx, timeout); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// Close closes the database connections gracefully
func (s *Store) Close(logger *slog.Logger) {
	if s == nil || s.DB == nil {
		return
	}
	logger.Debug("closing job store")
	s.DB.Close()
}
