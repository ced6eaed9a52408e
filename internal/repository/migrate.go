package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

const jobsTable = "notice_jobs"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS notice_jobs (
		id               TEXT PRIMARY KEY,
		source_url       TEXT,
		mime_type        TEXT NOT NULL,
		status           TEXT NOT NULL CHECK (status IN ('pending','processing','completed','failed')),
		ocr_text         TEXT,
		ocr_confidence   DOUBLE PRECISION CHECK (ocr_confidence BETWEEN 0 AND 1),
		page_count       INTEGER,
		extracted_fields JSONB,
		model_name       TEXT,
		failure_reason   TEXT,
		started_at       TIMESTAMPTZ,
		finished_at      TIMESTAMPTZ,
		created_at       TIMESTAMPTZ NOT NULL,
		updated_at       TIMESTAMPTZ NOT NULL,
		CONSTRAINT notice_jobs_ocr_pair CHECK ((ocr_text IS NULL) = (ocr_confidence IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS notice_jobs_status_created_at ON notice_jobs (status, created_at)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS notice_jobs (
		id               TEXT PRIMARY KEY,
		source_url       TEXT,
		mime_type        TEXT NOT NULL,
		status           TEXT NOT NULL CHECK (status IN ('pending','processing','completed','failed')),
		ocr_text         TEXT,
		ocr_confidence   REAL CHECK (ocr_confidence BETWEEN 0 AND 1),
		page_count       INTEGER,
		extracted_fields TEXT,
		model_name       TEXT,
		failure_reason   TEXT,
		started_at       TIMESTAMP,
		finished_at      TIMESTAMP,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL,
		CHECK ((ocr_text IS NULL) = (ocr_confidence IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS notice_jobs_status_created_at ON notice_jobs (status, created_at)`,
}

// Migrate creates the job table and its index if they do not exist.
func Migrate(ctx context.Context, db *DB) error {
	var stmts []string
	switch db.Dialect() {
	case dialect.Postgres:
		stmts = postgresSchema
	case dialect.SQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", db.Dialect())
	}
	for _, stmt := range stmts {
		if err := db.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			db.logger.Error("migration failed", "error", err)
			return fmt.Errorf("migrate %s: %w", jobsTable, err)
		}
	}
	db.logger.Info("migration applied", "table", jobsTable, "dialect", db.Dialect())
	return nil
}
