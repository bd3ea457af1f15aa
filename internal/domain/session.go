package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of an import session.
type SessionStatus string

const (
	SessionStatusUploaded  SessionStatus = "uploaded"
	SessionStatusValidated SessionStatus = "validated"
	SessionStatusCommitted SessionStatus = "committed"
	SessionStatusDiscarded SessionStatus = "discarded"
	SessionStatusExpired   SessionStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionStatusCommitted, SessionStatusDiscarded, SessionStatusExpired:
		return true
	}
	return false
}

// ImportSession tracks one upload from parse through commit or discard. The
// session store owns sessions exclusively; callers receive copies.
type ImportSession struct {
	ID         string            `json:"sessionId"`
	FileName   string            `json:"fileName"`
	FileType   string            `json:"fileType"`
	TotalRows  int               `json:"totalRows"`
	Headers    []string          `json:"headers"`
	Status     SessionStatus     `json:"status"`
	Validation *ValidationReport `json:"validation,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
}

// NewImportSession creates a session in the uploaded state with an opaque id.
func NewImportSession(fileName string, ttl time.Duration) ImportSession {
	now := time.Now()
	return ImportSession{
		ID:        uuid.NewString(),
		FileName:  fileName,
		Status:    SessionStatusUploaded,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// ImportLogEntry captures a row-level issue persisted for operator review.
type ImportLogEntry struct {
	ID           uuid.UUID `json:"id"`
	SessionID    string    `json:"session_id"`
	RecordType   string    `json:"record_type"`
	FileName     string    `json:"file_name"`
	RowNumber    *int      `json:"row_number,omitempty"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
