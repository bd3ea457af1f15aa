// Package validate coerces matched rows against their record-type descriptors
// and assembles the grouped validation report.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dietflow/importer/internal/domain"
	"github.com/dietflow/importer/internal/match"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
}

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// Engine validates parsed rows. Row validation only reads the catalog and the
// row itself, so rows are fanned out across a worker pool and re-joined by
// index to keep the output order deterministic.
type Engine struct {
	catalog domain.Catalog
	matcher *match.Engine
	workers int
	reason  string
}

// NewEngine creates a validation engine. workers <= 0 selects one worker per
// available core.
func NewEngine(catalog domain.Catalog, matcher *match.Engine, cfg match.Config, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Engine{
		catalog: catalog,
		matcher: matcher,
		workers: workers,
		reason:  fmt.Sprintf("no record type matched at least %d%% of required fields", int(cfg.Threshold*100)),
	}
}

type rowOutcome struct {
	index   int
	matched bool
	result  domain.RowResult
	values  map[string]any
}

// ValidateAll matches and validates every row, then groups the results by
// record type. Each row lands in exactly one of a model group or the
// unmatched set.
func (e *Engine) ValidateAll(rows []domain.ParsedRow, forcedType string) domain.ValidationReport {
	outcomes := make([]rowOutcome, len(rows))

	workers := e.workers
	if workers > len(rows) {
		workers = len(rows)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = e.validateRow(rows[idx], forcedType)
			}
		}()
	}
	for idx := range rows {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return e.assemble(outcomes)
}

func (e *Engine) validateRow(row domain.ParsedRow, forcedType string) rowOutcome {
	matchResult := e.matcher.DetectModel(row, forcedType)
	if !matchResult.Matched {
		return rowOutcome{index: row.Index, values: row.Values}
	}

	rt, ok := e.catalog.Get(matchResult.RecordType)
	if !ok {
		return rowOutcome{index: row.Index, values: row.Values}
	}

	result := domain.RowResult{
		RowIndex:   row.Index,
		RecordType: rt.Name,
		Coerced:    make(map[string]any, len(rt.Fields)),
	}

	values := normalizeRowValues(row.Values)

	// Every declared field is checked before deciding validity; extra raw
	// columns not in the schema are ignored.
	for _, field := range rt.Fields {
		raw, present := values[domain.NormalizeFieldKey(field.Path)]
		if !present || isEmptyValue(raw) {
			if field.Required {
				result.Errors = append(result.Errors, domain.FieldError{
					Field:   field.Path,
					Message: fmt.Sprintf("missing required field: %s", field.Path),
				})
			}
			continue
		}

		coerced, err := coerceValue(field, raw)
		if err != nil {
			result.Errors = append(result.Errors, domain.FieldError{
				Field:    field.Path,
				Message:  err.Error(),
				RawValue: raw,
			})
			continue
		}
		result.Coerced[field.Path] = coerced
	}

	return rowOutcome{index: row.Index, matched: true, result: result}
}

func (e *Engine) assemble(outcomes []rowOutcome) domain.ValidationReport {
	report := domain.ValidationReport{
		Groups:    []domain.ModelGroup{},
		Unmatched: []domain.UnmatchedRow{},
		AllErrors: []domain.RowError{},
	}

	grouped := make(map[string][]domain.RowResult)

	for _, outcome := range outcomes {
		if !outcome.matched {
			report.Unmatched = append(report.Unmatched, domain.UnmatchedRow{
				RowIndex: outcome.index,
				Values:   outcome.values,
				Reason:   e.reason,
			})
			report.UnmatchedRows++
			continue
		}

		result := outcome.result
		grouped[result.RecordType] = append(grouped[result.RecordType], result)
		if result.IsValid() {
			report.ValidRows++
		} else {
			report.InvalidRows++
			for _, fieldErr := range result.Errors {
				report.AllErrors = append(report.AllErrors, domain.RowError{
					RowIndex:   result.RowIndex,
					RecordType: result.RecordType,
					FieldError: fieldErr,
				})
			}
		}
	}

	// Emit groups in catalog registration order for reproducible output.
	for _, rt := range e.catalog.Types() {
		results, ok := grouped[rt.Name]
		if !ok {
			continue
		}
		group := domain.ModelGroup{
			ModelName:   rt.Name,
			DisplayName: rt.DisplayName,
			Rows:        results,
			TotalCount:  len(results),
		}
		for _, result := range results {
			if result.IsValid() {
				group.ValidCount++
			} else {
				group.InvalidCount++
			}
		}
		report.Groups = append(report.Groups, group)
		if group.ValidCount > 0 {
			report.CanSave = true
		}
	}

	return report
}

// normalizeRowValues keys the raw values by normalized column name so field
// paths resolve regardless of header casing or separators.
func normalizeRowValues(values map[string]any) map[string]any {
	normalized := make(map[string]any, len(values))
	for column, value := range values {
		normalized[domain.NormalizeFieldKey(column)] = value
	}
	return normalized
}

// isEmptyValue treats nil (a JSON null, or a repaired None) the same as a
// blank string: the field is absent, not malformed.
func isEmptyValue(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

// coerceValue converts a raw value to the field's declared type. Failures are
// reported, never thrown; the raw value is preserved for operator review.
func coerceValue(field domain.FieldDescriptor, raw any) (any, error) {
	switch field.Type {
	case domain.FieldTypeString:
		return coerceString(field, raw)
	case domain.FieldTypeNumber:
		return coerceNumber(field, raw)
	case domain.FieldTypeBoolean:
		return coerceBoolean(field, raw)
	case domain.FieldTypeDate:
		return coerceDate(field, raw)
	case domain.FieldTypeEnum:
		return coerceEnum(field, raw)
	case domain.FieldTypeReference:
		return coerceReference(field, raw)
	case domain.FieldTypeArray:
		if value, ok := raw.([]any); ok {
			return value, nil
		}
		return nil, fmt.Errorf("field %s must be a structured array", field.Path)
	case domain.FieldTypeObject:
		if value, ok := raw.(map[string]any); ok {
			return value, nil
		}
		return nil, fmt.Errorf("field %s must be a structured object", field.Path)
	default:
		return nil, fmt.Errorf("field %s has unknown type %q", field.Path, field.Type)
	}
}

func coerceString(field domain.FieldDescriptor, raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64, int, int64, bool:
		return fmt.Sprint(v), nil
	default:
		return nil, fmt.Errorf("field %s must be a string", field.Path)
	}
}

func coerceNumber(field domain.FieldDescriptor, raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("field %s must be a finite number", field.Path)
		}
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("unable to coerce %q to number", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("field %s must be a number", field.Path)
	}
}

func coerceBoolean(field domain.FieldDescriptor, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to boolean", v)
	default:
		return nil, fmt.Errorf("field %s must be a boolean", field.Path)
	}
}

func coerceDate(field domain.FieldDescriptor, raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("unable to coerce %q to date", v)
	default:
		return nil, fmt.Errorf("field %s must be a date", field.Path)
	}
}

func coerceEnum(field domain.FieldDescriptor, raw any) (any, error) {
	v, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("field %s must be one of %v", field.Path, field.EnumValues)
	}
	trimmed := strings.TrimSpace(v)
	for _, allowed := range field.EnumValues {
		if strings.EqualFold(trimmed, allowed) {
			return allowed, nil
		}
	}
	return nil, fmt.Errorf("value %q is not one of %v", v, field.EnumValues)
}

// coerceReference checks the lexical shape of an identifier reference: either
// a 24-character hex object id or an RFC 4122 UUID. The referenced collection
// is not consulted at this stage.
func coerceReference(field domain.FieldDescriptor, raw any) (any, error) {
	v, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("field %s must be an identifier reference", field.Path)
	}
	trimmed := strings.TrimSpace(v)
	if objectIDPattern.MatchString(trimmed) {
		return trimmed, nil
	}
	if _, err := uuid.Parse(trimmed); err == nil {
		return trimmed, nil
	}
	return nil, fmt.Errorf("value %q is not a valid identifier reference", v)
}
