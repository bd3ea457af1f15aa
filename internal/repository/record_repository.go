package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dietflow/importer/internal/domain"
)

const uniqueViolationCode = "23505"

const insertRecordSQL = `INSERT INTO records (id, record_type, dedupe_key, properties, created_at)
	 VALUES ($1, $2, $3, $4, $5)`

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository wires a record repository backed by pgxpool.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

func (r *recordRepository) InsertAll(ctx context.Context, tx pgx.Tx, records []domain.Record) (int, error) {
	inserted := 0
	for _, record := range records {
		if err := insertRecord(ctx, tx, record); err != nil {
			return inserted, fmt.Errorf("failed to insert %s record: %w", record.RecordType, err)
		}
		inserted++
	}
	return inserted, nil
}

func (r *recordRepository) InsertBestEffort(ctx context.Context, records []domain.Record) (int, []domain.FieldError, error) {
	if r.pool == nil {
		return 0, nil, errors.New("record repository not initialized")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, fieldErrors, err := insertWithSavepoints(ctx, tx, records)
	if err != nil {
		return 0, fieldErrors, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fieldErrors, fmt.Errorf("failed to commit records: %w", err)
	}

	return inserted, fieldErrors, nil
}

// insertWithSavepoints writes records under a savepoint per row so a
// conflicting row is skipped without aborting the surrounding transaction.
// A savepoint bookkeeping failure poisons the transaction; since the caller's
// rollback then discards every row, the inserted count reported is zero.
func insertWithSavepoints(ctx context.Context, tx pgx.Tx, records []domain.Record) (int, []domain.FieldError, error) {
	inserted := 0
	var fieldErrors []domain.FieldError

	for i, record := range records {
		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return 0, fieldErrors, fmt.Errorf("failed to create savepoint: %w", err)
		}

		if err := insertRecord(ctx, tx, record); err != nil {
			if _, rbErr := tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); rbErr != nil {
				return 0, fieldErrors, fmt.Errorf("failed to roll back savepoint: %w", rbErr)
			}
			fieldErrors = append(fieldErrors, classifyInsertError(record, err))
			continue
		}

		if _, err := tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
			return 0, fieldErrors, fmt.Errorf("failed to release savepoint: %w", err)
		}
		inserted++
	}

	return inserted, fieldErrors, nil
}

func insertRecord(ctx context.Context, tx pgx.Tx, record domain.Record) error {
	propertiesJSON, err := record.PropertiesJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal properties: %w", err)
	}

	_, err = tx.Exec(ctx, insertRecordSQL,
		record.ID,
		record.RecordType,
		record.DedupeKey,
		propertiesJSON,
		record.CreatedAt,
	)
	return err
}

// classifyInsertError maps database failures to field errors; unique
// violations surface as duplicates on the record's dedupe key.
func classifyInsertError(record domain.Record, err error) domain.FieldError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return domain.FieldError{
			Field:    "dedupe_key",
			Message:  "duplicate",
			RawValue: record.DedupeKey,
		}
	}
	return domain.FieldError{
		Field:    "record",
		Message:  err.Error(),
		RawValue: record.DedupeKey,
	}
}

// IsUniqueViolation reports whether err is a unique-constraint conflict.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
