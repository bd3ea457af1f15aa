package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/dietflow/importer/internal/domain"
)

// RecordRepository persists committed records.
type RecordRepository interface {
	// InsertAll writes every record inside the caller's transaction and fails
	// fast on the first error, so the caller can abort the whole commit.
	InsertAll(ctx context.Context, tx pgx.Tx, records []domain.Record) (int, error)

	// InsertBestEffort writes records in its own transaction with a savepoint
	// per row: conflicting rows are reported and skipped, the rest commit.
	InsertBestEffort(ctx context.Context, records []domain.Record) (int, []domain.FieldError, error)
}

// ImportLogRepository stores row-level import errors for operator review.
type ImportLogRepository interface {
	Record(ctx context.Context, entry domain.ImportLogEntry) error
	List(ctx context.Context, sessionID string, limit int, offset int) ([]domain.ImportLogEntry, error)
}
