package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dietflow/importer/internal/domain"
)

func commitSession(validation domain.ValidationReport) domain.ImportSession {
	return domain.ImportSession{
		ID:         "sess-1",
		Status:     domain.SessionStatusValidated,
		Validation: &validation,
	}
}

func validRow(index int, recordType string, coerced map[string]any) domain.RowResult {
	return domain.RowResult{RowIndex: index, RecordType: recordType, Coerced: coerced}
}

func invalidRow(index int, recordType string) domain.RowResult {
	return domain.RowResult{
		RowIndex:   index,
		RecordType: recordType,
		Errors:     []domain.FieldError{{Field: "email", Message: "missing required field: email"}},
	}
}

func twoGroupValidation() domain.ValidationReport {
	return domain.ValidationReport{
		CanSave: true,
		Groups: []domain.ModelGroup{
			{
				ModelName:  "client",
				ValidCount: 2,
				Rows: []domain.RowResult{
					validRow(0, "client", map[string]any{"email": "ada@example.com"}),
					invalidRow(1, "client"),
					validRow(2, "client", map[string]any{"email": "alan@example.com"}),
				},
			},
			{
				ModelName:  "food_item",
				ValidCount: 1,
				Rows: []domain.RowResult{
					validRow(3, "food_item", map[string]any{"name": "Egg", "calories": 155.0}),
				},
			},
		},
	}
}

func TestCommitTransactionalSpansAllGroups(t *testing.T) {
	catalog := serviceCatalog(t)
	records := &stubRecordRepo{}
	tx := &stubTxRunner{}
	committer := NewCommitter(catalog, records, tx, domain.CommitModeTransactional)

	report := committer.Commit(context.Background(), commitSession(twoGroupValidation()))

	if !report.Success {
		t.Fatalf("expected success: %+v", report)
	}
	if tx.calls != 1 {
		t.Fatalf("expected one transaction, got %d", tx.calls)
	}
	if len(report.Groups) != 2 {
		t.Fatalf("expected 2 group results, got %d", len(report.Groups))
	}
	if report.Groups[0].InsertedCount != 2 || report.Groups[1].InsertedCount != 1 {
		t.Fatalf("unexpected inserted counts: %+v", report.Groups)
	}
	if len(records.inserted) != 3 {
		t.Fatalf("expected 3 records written, got %d", len(records.inserted))
	}
}

func TestCommitTransactionalAbortsEverything(t *testing.T) {
	catalog := serviceCatalog(t)
	records := &stubRecordRepo{insertAllErr: errors.New("disk on fire")}
	tx := &stubTxRunner{}
	committer := NewCommitter(catalog, records, tx, domain.CommitModeTransactional)

	report := committer.Commit(context.Background(), commitSession(twoGroupValidation()))

	if report.Success {
		t.Fatal("expected failed commit")
	}
	for _, group := range report.Groups {
		if group.InsertedCount != 0 {
			t.Fatalf("aborted commit must report zero inserts, got %+v", group)
		}
		if group.FailedCount == 0 {
			t.Fatalf("aborted commit must report failures, got %+v", group)
		}
	}
	// The failing group carries the error.
	if len(report.Groups[0].Errors) != 1 {
		t.Fatalf("expected error on the failing group, got %+v", report.Groups[0])
	}
}

func TestCommitBestEffortContinuesPastFailedGroup(t *testing.T) {
	catalog := serviceCatalog(t)
	failing := &failingFirstGroupRepo{failOn: "client"}
	committer := NewCommitter(catalog, failing, &stubTxRunner{}, domain.CommitModeBestEffort)

	report := committer.Commit(context.Background(), commitSession(twoGroupValidation()))

	if report.Success {
		t.Fatal("a failed group must mark the report unsuccessful")
	}
	if len(report.Groups) != 2 {
		t.Fatalf("expected both groups reported, got %d", len(report.Groups))
	}
	if report.Groups[1].InsertedCount != 1 {
		t.Fatalf("later groups must still commit, got %+v", report.Groups[1])
	}
}

// failingFirstGroupRepo rejects one record type and accepts the rest.
type failingFirstGroupRepo struct {
	stubRecordRepo
	failOn string
}

func (f *failingFirstGroupRepo) InsertBestEffort(ctx context.Context, records []domain.Record) (int, []domain.FieldError, error) {
	if len(records) > 0 && records[0].RecordType == f.failOn {
		return 0, nil, errors.New("connection reset")
	}
	return f.stubRecordRepo.InsertBestEffort(ctx, records)
}

func TestCommitBestEffortReportsRowDuplicates(t *testing.T) {
	catalog := serviceCatalog(t)
	records := &stubRecordRepo{
		bestEffortSkip: 1,
		bestEffortErrors: []domain.FieldError{
			{Field: "dedupe_key", Message: "duplicate", RawValue: "client\x1fada@example.com"},
		},
	}
	committer := NewCommitter(catalog, records, &stubTxRunner{}, domain.CommitModeBestEffort)

	validation := domain.ValidationReport{
		CanSave: true,
		Groups: []domain.ModelGroup{
			{
				ModelName:  "client",
				ValidCount: 2,
				Rows: []domain.RowResult{
					validRow(0, "client", map[string]any{"email": "ada@example.com"}),
					validRow(1, "client", map[string]any{"email": "ada@example.com"}),
				},
			},
		},
	}

	report := committer.Commit(context.Background(), commitSession(validation))

	if !report.Success {
		t.Fatal("row-level duplicates do not fail the commit")
	}
	group := report.Groups[0]
	if group.InsertedCount != 1 || group.FailedCount != 1 {
		t.Fatalf("unexpected counts: %+v", group)
	}
	if len(group.Errors) != 1 || group.Errors[0].Message != "duplicate" {
		t.Fatalf("expected duplicate error, got %+v", group.Errors)
	}
}

func TestCommitErrorClassifiesUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505"}
	fieldErr := commitError(pgErr)
	if fieldErr.Field != "dedupe_key" || fieldErr.Message != "duplicate" {
		t.Fatalf("expected duplicate classification, got %+v", fieldErr)
	}

	fieldErr = commitError(errors.New("boom"))
	if fieldErr.Field != "group" {
		t.Fatalf("expected group-level classification, got %+v", fieldErr)
	}
}

func TestBuildRecordDedupeKey(t *testing.T) {
	catalog := serviceCatalog(t)
	client, _ := catalog.Get("client")

	record := buildRecord(client, validRow(0, "client", map[string]any{"email": " Ada@Example.COM "}))
	want := "client\x1fada@example.com"
	if record.DedupeKey != want {
		t.Fatalf("expected dedupe key %q, got %q", want, record.DedupeKey)
	}
	if record.RecordType != "client" {
		t.Fatalf("expected record type client, got %s", record.RecordType)
	}
}

func TestBuildRecordWithoutUniqueFields(t *testing.T) {
	rt := domain.NewRecordType("note", "Note", []domain.FieldDescriptor{
		{Path: "text", Type: domain.FieldTypeString, Required: true},
	})

	a := buildRecord(rt, validRow(0, "note", map[string]any{"text": "same"}))
	b := buildRecord(rt, validRow(1, "note", map[string]any{"text": "same"}))
	if a.DedupeKey == b.DedupeKey {
		t.Fatal("records without unique fields must never share a dedupe key")
	}
	if !strings.Contains(a.DedupeKey, "-") {
		t.Fatalf("expected uuid fallback, got %q", a.DedupeKey)
	}
}

func TestCommitSkipsGroupsWithNoValidRows(t *testing.T) {
	catalog := serviceCatalog(t)
	records := &stubRecordRepo{}
	committer := NewCommitter(catalog, records, &stubTxRunner{}, domain.CommitModeTransactional)

	validation := domain.ValidationReport{
		CanSave: true,
		Groups: []domain.ModelGroup{
			{ModelName: "client", ValidCount: 0, Rows: []domain.RowResult{invalidRow(0, "client")}},
			{ModelName: "food_item", ValidCount: 1, Rows: []domain.RowResult{
				validRow(1, "food_item", map[string]any{"name": "Egg", "calories": 155.0}),
			}},
		},
	}

	report := committer.Commit(context.Background(), commitSession(validation))
	if !report.Success {
		t.Fatalf("expected success: %+v", report)
	}
	if len(report.Groups) != 1 || report.Groups[0].ModelName != "food_item" {
		t.Fatalf("fully invalid groups must be skipped, got %+v", report.Groups)
	}
}
