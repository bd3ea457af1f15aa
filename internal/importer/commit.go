package importer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dietflow/importer/internal/domain"
	"github.com/dietflow/importer/internal/repository"
)

// TxRunner runs a function inside a database transaction. Satisfied by
// db.Connection.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

// Committer writes validated model groups to the record store. The commit
// mode is resolved once at construction, never per call.
type Committer struct {
	catalog domain.Catalog
	records repository.RecordRepository
	tx      TxRunner
	mode    domain.CommitMode
}

// NewCommitter creates a committer bound to one commit mode.
func NewCommitter(catalog domain.Catalog, records repository.RecordRepository, tx TxRunner, mode domain.CommitMode) *Committer {
	return &Committer{
		catalog: catalog,
		records: records,
		tx:      tx,
		mode:    mode,
	}
}

// Mode returns the commit mode the committer was resolved to.
func (c *Committer) Mode() domain.CommitMode {
	return c.mode
}

// Commit writes every model group that has valid rows. Invalid and unmatched
// rows are never written under any circumstance.
func (c *Committer) Commit(ctx context.Context, sess domain.ImportSession) domain.CommitReport {
	batches := c.buildBatches(sess.Validation)

	if c.mode == domain.CommitModeTransactional {
		return c.commitTransactional(ctx, batches)
	}
	return c.commitBestEffort(ctx, batches)
}

type groupBatch struct {
	modelName string
	records   []domain.Record
}

func (c *Committer) buildBatches(validation *domain.ValidationReport) []groupBatch {
	var batches []groupBatch
	for _, group := range validation.Groups {
		if group.ValidCount == 0 {
			continue
		}
		batch := groupBatch{modelName: group.ModelName}
		rt, _ := c.catalog.Get(group.ModelName)
		for _, row := range group.Rows {
			if !row.IsValid() {
				continue
			}
			batch.records = append(batch.records, buildRecord(rt, row))
		}
		batches = append(batches, batch)
	}
	return batches
}

// commitTransactional opens one transaction spanning all groups. Any
// non-recoverable insert failure aborts the whole transaction: nothing is
// persisted.
func (c *Committer) commitTransactional(ctx context.Context, batches []groupBatch) domain.CommitReport {
	report := domain.CommitReport{Mode: domain.CommitModeTransactional}
	var results []domain.GroupCommitResult
	failedGroup := ""

	err := c.tx.WithTx(ctx, func(tx pgx.Tx) error {
		for _, batch := range batches {
			start := time.Now()
			inserted, insertErr := c.records.InsertAll(ctx, tx, batch.records)
			if insertErr != nil {
				failedGroup = batch.modelName
				return insertErr
			}
			results = append(results, domain.GroupCommitResult{
				ModelName:     batch.modelName,
				InsertedCount: inserted,
				DurationMs:    time.Since(start).Milliseconds(),
			})
		}
		return nil
	})

	if err != nil {
		// The transaction rolled back: no group persisted anything.
		report.Groups = make([]domain.GroupCommitResult, 0, len(batches))
		for _, batch := range batches {
			result := domain.GroupCommitResult{
				ModelName:   batch.modelName,
				FailedCount: len(batch.records),
			}
			if batch.modelName == failedGroup {
				result.Errors = append(result.Errors, commitError(err))
			}
			report.Groups = append(report.Groups, result)
		}
		return report
	}

	report.Success = true
	report.Groups = results
	return report
}

// commitBestEffort inserts group by group. A failed group never rolls back
// groups already committed; the report records exactly which groups succeeded
// so the caller can retry only the failures.
func (c *Committer) commitBestEffort(ctx context.Context, batches []groupBatch) domain.CommitReport {
	report := domain.CommitReport{
		Mode:    domain.CommitModeBestEffort,
		Success: true,
	}

	for _, batch := range batches {
		start := time.Now()
		inserted, fieldErrors, err := c.records.InsertBestEffort(ctx, batch.records)
		result := domain.GroupCommitResult{
			ModelName:     batch.modelName,
			InsertedCount: inserted,
			FailedCount:   len(batch.records) - inserted,
			Errors:        fieldErrors,
			DurationMs:    time.Since(start).Milliseconds(),
		}
		if err != nil {
			report.Success = false
			result.Errors = append(result.Errors, commitError(err))
		}
		report.Groups = append(report.Groups, result)
	}

	return report
}

func commitError(err error) domain.FieldError {
	if repository.IsUniqueViolation(err) {
		return domain.FieldError{Field: "dedupe_key", Message: "duplicate"}
	}
	return domain.FieldError{Field: "group", Message: err.Error()}
}

// buildRecord converts a valid row into a persistable record. The dedupe key
// derives from the record type's unique fields; types without unique fields
// fall back to the record id, so they never conflict.
func buildRecord(rt domain.RecordType, row domain.RowResult) domain.Record {
	record := domain.NewRecord(rt.Name, "", row.Coerced)
	if len(rt.UniqueFields) == 0 {
		record.DedupeKey = record.ID.String()
		return record
	}

	parts := make([]string, 0, len(rt.UniqueFields)+1)
	parts = append(parts, rt.Name)
	for _, field := range rt.UniqueFields {
		parts = append(parts, strings.ToLower(strings.TrimSpace(fmt.Sprint(row.Coerced[field]))))
	}
	record.DedupeKey = strings.Join(parts, "\x1f")
	return record
}
