package domain

// ParsedRow is one input record after format-neutral extraction. Values may be
// plain strings or structured data when the parser repaired a pseudo-literal
// container. Rows are never mutated after the parser emits them.
type ParsedRow struct {
	Index    int            `json:"rowIndex"`
	Values   map[string]any `json:"rawValues"`
	Headers  []string       `json:"sourceHeaders"`
	Warnings []string       `json:"warnings,omitempty"`
}

// MatchResult records the outcome of scoring one row against the catalog.
type MatchResult struct {
	RowIndex        int      `json:"rowIndex"`
	RecordType      string   `json:"candidateType,omitempty"`
	Matched         bool     `json:"matched"`
	Confidence      float64  `json:"confidence"`
	MatchedFields   int      `json:"matchedFieldCount"`
	MissingRequired []string `json:"missingRequiredFields,omitempty"`
}

// FieldError is a single field-level validation or commit failure. The raw
// value is preserved for operator review.
type FieldError struct {
	Field    string `json:"field"`
	Message  string `json:"message"`
	RawValue any    `json:"rawValue,omitempty"`
}

// RowResult is the validation outcome for one matched row.
type RowResult struct {
	RowIndex   int            `json:"rowIndex"`
	RecordType string         `json:"recordType"`
	Coerced    map[string]any `json:"coercedValue"`
	Errors     []FieldError   `json:"errors"`
}

// IsValid holds iff the row accumulated zero field errors.
func (r RowResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ModelGroup aggregates the validated rows matched to one record type.
type ModelGroup struct {
	ModelName    string      `json:"modelName"`
	DisplayName  string      `json:"displayName"`
	Rows         []RowResult `json:"rows"`
	ValidCount   int         `json:"validCount"`
	InvalidCount int         `json:"invalidCount"`
	TotalCount   int         `json:"totalCount"`
}

// UnmatchedRow is an input row that could not be assigned to any record type.
type UnmatchedRow struct {
	RowIndex int            `json:"rowIndex"`
	Values   map[string]any `json:"rawValues"`
	Reason   string         `json:"reason"`
}

// RowError is a field error with its row context, used for the flat
// discrepancy report returned to the caller.
type RowError struct {
	RowIndex   int    `json:"rowIndex"`
	RecordType string `json:"recordType"`
	FieldError
}

// ValidationReport is the top-level result of validating an upload.
type ValidationReport struct {
	Groups        []ModelGroup   `json:"modelGroups"`
	Unmatched     []UnmatchedRow `json:"unmatchedData"`
	ValidRows     int            `json:"validRows"`
	InvalidRows   int            `json:"invalidRows"`
	UnmatchedRows int            `json:"unmatchedRows"`
	CanSave       bool           `json:"canSave"`
	AllErrors     []RowError     `json:"allErrors"`
}

// CommitMode selects how the commit service writes model groups.
type CommitMode string

const (
	CommitModeTransactional CommitMode = "transactional"
	CommitModeBestEffort    CommitMode = "best-effort"
)

// GroupCommitResult reports the outcome of writing one model group.
type GroupCommitResult struct {
	ModelName     string       `json:"modelName"`
	InsertedCount int          `json:"insertedCount"`
	FailedCount   int          `json:"failedCount"`
	Errors        []FieldError `json:"errors,omitempty"`
	DurationMs    int64        `json:"durationMs"`
}

// CommitReport is the structured result of a commit call.
type CommitReport struct {
	Success bool                `json:"success"`
	Mode    CommitMode          `json:"mode"`
	Groups  []GroupCommitResult `json:"perGroupResult"`
}
