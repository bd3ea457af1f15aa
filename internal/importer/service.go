// Package importer orchestrates the bulk-import pipeline: parse, match,
// validate, and commit through a session store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dietflow/importer/internal/domain"
	"github.com/dietflow/importer/internal/parser"
	"github.com/dietflow/importer/internal/repository"
	"github.com/dietflow/importer/internal/session"
	"github.com/dietflow/importer/internal/validate"
)

// ErrNothingToCommit is returned when a validated upload has no valid rows.
var ErrNothingToCommit = errors.New("upload has no valid rows to commit")

// Service wires the pipeline stages together. The schema catalog is injected
// at construction and read-only for the service lifetime.
type Service struct {
	catalog   domain.Catalog
	engine    *validate.Engine
	sessions  *session.Store
	committer *Committer
	logs      repository.ImportLogRepository
}

// NewService creates the import service. logs may be nil when row-error
// persistence is not wired.
func NewService(
	catalog domain.Catalog,
	engine *validate.Engine,
	sessions *session.Store,
	committer *Committer,
	logs repository.ImportLogRepository,
) *Service {
	return &Service{
		catalog:   catalog,
		engine:    engine,
		sessions:  sessions,
		committer: committer,
		logs:      logs,
	}
}

// UploadRequest describes one uploaded file.
type UploadRequest struct {
	FileName       string
	ForceModelType string
	Data           io.Reader
}

// ValidationSummary carries the headline counts of a validation pass.
type ValidationSummary struct {
	ValidRows     int  `json:"validRows"`
	InvalidRows   int  `json:"invalidRows"`
	UnmatchedRows int  `json:"unmatchedRows"`
	CanSave       bool `json:"canSave"`
}

// UploadResult is returned to the caller after the upload phase.
type UploadResult struct {
	SessionID   string                `json:"sessionId"`
	FileType    string                `json:"fileType"`
	TotalRows   int                   `json:"totalRows"`
	Headers     []string              `json:"headers"`
	Validation  ValidationSummary     `json:"validation"`
	ModelGroups []domain.ModelGroup   `json:"modelGroups"`
	Unmatched   []domain.UnmatchedRow `json:"unmatchedData"`
	AllErrors   []domain.RowError     `json:"allErrors"`
}

// Upload parses and validates a file and stores the snapshot in a new
// session. A fatal parse error halts the pipeline before matching runs.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if strings.TrimSpace(req.FileName) == "" {
		return UploadResult{}, errors.New("file name is required")
	}
	if req.Data == nil {
		return UploadResult{}, errors.New("data reader is required")
	}

	forced := strings.TrimSpace(req.ForceModelType)
	if forced != "" {
		if _, ok := s.catalog.Get(forced); !ok {
			return UploadResult{}, fmt.Errorf("unknown record type %q", forced)
		}
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to read upload: %w", err)
	}

	parsed, err := parser.Parse(payload, req.FileName)
	if err != nil {
		return UploadResult{}, err
	}

	sess, err := s.sessions.Create(req.FileName)
	if err != nil {
		return UploadResult{}, err
	}

	report := s.engine.ValidateAll(parsed.Rows, forced)

	sess, err = s.sessions.AttachValidation(sess.ID, string(parsed.FileType), parsed.Headers, report)
	if err != nil {
		return UploadResult{}, fmt.Errorf("failed to attach validation: %w", err)
	}

	s.logRowErrors(ctx, sess, report)

	slog.Info("upload validated",
		"session_id", sess.ID,
		"file", req.FileName,
		"total_rows", parsed.TotalRows,
		"valid", report.ValidRows,
		"invalid", report.InvalidRows,
		"unmatched", report.UnmatchedRows,
	)

	return UploadResult{
		SessionID: sess.ID,
		FileType:  string(parsed.FileType),
		TotalRows: parsed.TotalRows,
		Headers:   parsed.Headers,
		Validation: ValidationSummary{
			ValidRows:     report.ValidRows,
			InvalidRows:   report.InvalidRows,
			UnmatchedRows: report.UnmatchedRows,
			CanSave:       report.CanSave,
		},
		ModelGroups: report.Groups,
		Unmatched:   report.Unmatched,
		AllErrors:   report.AllErrors,
	}, nil
}

// Commit performs the grouped bulk write for a validated session. An
// in-flight commit runs to completion; it is not interruptible mid-batch.
func (s *Service) Commit(ctx context.Context, sessionID string) (domain.CommitReport, error) {
	sess, err := s.sessions.BeginCommit(sessionID)
	if err != nil {
		return domain.CommitReport{}, err
	}

	if sess.Validation == nil || !sess.Validation.CanSave {
		s.sessions.CompleteCommit(sessionID, false)
		return domain.CommitReport{}, ErrNothingToCommit
	}

	report := s.committer.Commit(ctx, sess)
	s.sessions.CompleteCommit(sessionID, report.Success)

	slog.Info("commit finished",
		"session_id", sessionID,
		"mode", report.Mode,
		"success", report.Success,
		"groups", len(report.Groups),
	)

	return report, nil
}

// Discard marks the session discarded and releases its validation snapshot.
func (s *Service) Discard(sessionID string) error {
	return s.sessions.Discard(sessionID)
}

// Session returns a copy of the session for status queries.
func (s *Service) Session(sessionID string) (domain.ImportSession, error) {
	return s.sessions.Get(sessionID)
}

func (s *Service) logRowErrors(ctx context.Context, sess domain.ImportSession, report domain.ValidationReport) {
	if s.logs == nil {
		return
	}
	for _, rowErr := range report.AllErrors {
		rowNumber := rowErr.RowIndex
		entry := domain.ImportLogEntry{
			SessionID:    sess.ID,
			RecordType:   rowErr.RecordType,
			FileName:     sess.FileName,
			RowNumber:    &rowNumber,
			ErrorMessage: fmt.Sprintf("%s: %s", rowErr.Field, rowErr.Message),
		}
		if err := s.logs.Record(ctx, entry); err != nil {
			slog.Warn("failed to record import log", "session_id", sess.ID, "error", err)
		}
	}
}
