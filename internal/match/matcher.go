// Package match scores parsed rows against the schema catalog and selects the
// record type each row most likely belongs to.
package match

import (
	"sort"
	"strings"
	"sync"

	"github.com/dietflow/importer/internal/domain"
)

// Config holds the tunable matching constants. The weighting is a heuristic;
// callers should treat these as configuration, not fixed law.
type Config struct {
	Threshold      float64
	RequiredWeight float64
	FieldWeight    float64
}

// DefaultConfig returns the production defaults: 50% confidence threshold with
// a 0.7/0.3 split between required-field coverage and overall field overlap.
func DefaultConfig() Config {
	return Config{
		Threshold:      0.5,
		RequiredWeight: 0.7,
		FieldWeight:    0.3,
	}
}

// Engine matches rows to catalog record types. The decision for a given header
// shape is memoized, so tabular files with a shared header are scored once.
type Engine struct {
	catalog domain.Catalog
	cfg     Config

	mu    sync.Mutex
	cache map[string]domain.MatchResult
}

// NewEngine creates a matching engine over a read-only catalog.
func NewEngine(catalog domain.Catalog, cfg Config) *Engine {
	if cfg.Threshold <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		catalog: catalog,
		cfg:     cfg,
		cache:   make(map[string]domain.MatchResult),
	}
}

// DetectModel selects the best record type for a row. When forcedType names a
// catalog entry, scoring is skipped and the row matches unconditionally; the
// missing-required set is still computed for reporting.
func (e *Engine) DetectModel(row domain.ParsedRow, forcedType string) domain.MatchResult {
	if forcedType != "" {
		return e.forceMatch(row, forcedType)
	}

	key := shapeKey(row.Headers)

	e.mu.Lock()
	cached, ok := e.cache[key]
	e.mu.Unlock()
	if ok {
		cached.RowIndex = row.Index
		return cached
	}

	result := e.score(row)

	e.mu.Lock()
	e.cache[key] = result
	e.mu.Unlock()

	result.RowIndex = row.Index
	return result
}

func (e *Engine) forceMatch(row domain.ParsedRow, forcedType string) domain.MatchResult {
	rt, ok := e.catalog.Get(forcedType)
	if !ok {
		return domain.MatchResult{RowIndex: row.Index}
	}

	matched, missing := overlap(row.Headers, rt)
	return domain.MatchResult{
		RowIndex:        row.Index,
		RecordType:      rt.Name,
		Matched:         true,
		Confidence:      1,
		MatchedFields:   matched,
		MissingRequired: missing,
	}
}

// score evaluates every catalog entry in registration order. Ties resolve by
// higher required coverage, then more matched fields, then first registered,
// which keeps the outcome deterministic for identical input.
func (e *Engine) score(row domain.ParsedRow) domain.MatchResult {
	best := domain.MatchResult{}
	bestCoverage := -1.0
	found := false

	for _, rt := range e.catalog.Types() {
		matched, missing := overlap(row.Headers, rt)
		coverage := requiredCoverage(rt, missing)
		fieldRatio := 0.0
		if len(rt.Fields) > 0 {
			fieldRatio = float64(matched) / float64(len(rt.Fields))
		}
		confidence := coverage*e.cfg.RequiredWeight + fieldRatio*e.cfg.FieldWeight

		better := confidence > best.Confidence
		if !better && found && confidence == best.Confidence {
			if coverage > bestCoverage {
				better = true
			} else if coverage == bestCoverage && matched > best.MatchedFields {
				better = true
			}
		}

		if !found || better {
			found = true
			bestCoverage = coverage
			best = domain.MatchResult{
				RecordType:      rt.Name,
				Confidence:      confidence,
				MatchedFields:   matched,
				MissingRequired: missing,
			}
		}
	}

	if !found || best.Confidence < e.cfg.Threshold || bestCoverage <= 0 {
		return domain.MatchResult{
			Confidence:      best.Confidence,
			MatchedFields:   best.MatchedFields,
			MissingRequired: best.MissingRequired,
		}
	}

	best.Matched = true
	return best
}

// overlap counts row columns that resolve to declared fields and reports which
// required paths have no matching column.
func overlap(headers []string, rt domain.RecordType) (int, []string) {
	present := make(map[string]bool, len(headers))
	matched := 0
	for _, header := range headers {
		if field, ok := rt.FieldForColumn(header); ok {
			if !present[field.Path] {
				matched++
			}
			present[field.Path] = true
		}
	}

	var missing []string
	for _, path := range rt.RequiredPaths() {
		if !present[path] {
			missing = append(missing, path)
		}
	}
	return matched, missing
}

// requiredCoverage is the fraction of required fields present. A type that
// declares no required fields gets full coverage so that purely optional
// schemas remain matchable on field overlap alone.
func requiredCoverage(rt domain.RecordType, missing []string) float64 {
	required := len(rt.RequiredPaths())
	if required == 0 {
		return 1
	}
	return float64(required-len(missing)) / float64(required)
}

func shapeKey(headers []string) string {
	normalized := make([]string, len(headers))
	for i, header := range headers {
		normalized[i] = domain.NormalizeFieldKey(header)
	}
	sort.Strings(normalized)
	return strings.Join(normalized, "\x00")
}
