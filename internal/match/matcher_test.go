package match

import (
	"testing"

	"github.com/dietflow/importer/internal/domain"
)

func testCatalog(t *testing.T) domain.Catalog {
	t.Helper()

	client := domain.NewRecordType("client", "Client", []domain.FieldDescriptor{
		{Path: "firstName", Type: domain.FieldTypeString, Required: true},
		{Path: "lastName", Type: domain.FieldTypeString, Required: true},
		{Path: "email", Type: domain.FieldTypeString, Required: true},
		{Path: "heightCm", Type: domain.FieldTypeNumber},
	}, "email")

	food := domain.NewRecordType("food_item", "Food Item", []domain.FieldDescriptor{
		{Path: "name", Type: domain.FieldTypeString, Required: true},
		{Path: "calories", Type: domain.FieldTypeNumber, Required: true},
		{Path: "protein", Type: domain.FieldTypeNumber},
	}, "name")

	catalog, err := domain.NewCatalog(client, food)
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	return catalog
}

func row(index int, headers ...string) domain.ParsedRow {
	return domain.ParsedRow{Index: index, Headers: headers}
}

func TestDetectModelMatchesFullHeaderSet(t *testing.T) {
	engine := NewEngine(testCatalog(t), DefaultConfig())

	result := engine.DetectModel(row(0, "firstName", "lastName", "email", "heightCm"), "")
	if !result.Matched {
		t.Fatal("expected a match")
	}
	if result.RecordType != "client" {
		t.Fatalf("expected client, got %s", result.RecordType)
	}
	if result.Confidence != 1 {
		t.Fatalf("expected confidence 1, got %f", result.Confidence)
	}
	if len(result.MissingRequired) != 0 {
		t.Fatalf("expected no missing required fields, got %v", result.MissingRequired)
	}
}

func TestDetectModelNormalizesHeaderVariants(t *testing.T) {
	engine := NewEngine(testCatalog(t), DefaultConfig())

	result := engine.DetectModel(row(0, "First Name", "last-name", "EMAIL"), "")
	if !result.Matched || result.RecordType != "client" {
		t.Fatalf("expected client match for normalized headers, got %+v", result)
	}
}

func TestDetectModelBelowThresholdIsUnmatched(t *testing.T) {
	engine := NewEngine(testCatalog(t), DefaultConfig())

	result := engine.DetectModel(row(0, "foo", "bar", "baz"), "")
	if result.Matched {
		t.Fatalf("expected no match, got %s", result.RecordType)
	}
	if result.RecordType != "" {
		t.Fatalf("unmatched result should carry no record type, got %s", result.RecordType)
	}
}

func TestDetectModelZeroRequiredCoverageIsUnmatched(t *testing.T) {
	// "protein" alone overlaps food_item but covers none of its required
	// fields, so the row must stay unmatched regardless of confidence.
	catalog := testCatalog(t)
	engine := NewEngine(catalog, Config{Threshold: 0.05, RequiredWeight: 0.7, FieldWeight: 0.3})

	result := engine.DetectModel(row(0, "protein"), "")
	if result.Matched {
		t.Fatalf("expected no match with zero required coverage, got %s", result.RecordType)
	}
}

func TestDetectModelIsDeterministic(t *testing.T) {
	engine := NewEngine(testCatalog(t), DefaultConfig())

	headers := []string{"name", "calories"}
	first := engine.DetectModel(row(0, headers...), "")
	for i := 1; i < 50; i++ {
		next := engine.DetectModel(row(i, headers...), "")
		if next.RecordType != first.RecordType || next.Confidence != first.Confidence {
			t.Fatalf("detection not deterministic: run %d gave %+v, first gave %+v", i, next, first)
		}
		if next.RowIndex != i {
			t.Fatalf("expected cached result rebound to row %d, got %d", i, next.RowIndex)
		}
	}
}

func TestDetectModelTieBreaksByRegistrationOrder(t *testing.T) {
	a := domain.NewRecordType("alpha", "Alpha", []domain.FieldDescriptor{
		{Path: "x", Type: domain.FieldTypeString, Required: true},
	})
	b := domain.NewRecordType("beta", "Beta", []domain.FieldDescriptor{
		{Path: "x", Type: domain.FieldTypeString, Required: true},
	})
	catalog, err := domain.NewCatalog(a, b)
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}

	engine := NewEngine(catalog, DefaultConfig())
	result := engine.DetectModel(row(0, "x"), "")
	if result.RecordType != "alpha" {
		t.Fatalf("expected first registered type to win the tie, got %s", result.RecordType)
	}
}

func TestDetectModelForcedType(t *testing.T) {
	engine := NewEngine(testCatalog(t), DefaultConfig())

	// Headers that would naturally score as food_item.
	result := engine.DetectModel(row(0, "name", "calories"), "client")
	if !result.Matched || result.RecordType != "client" {
		t.Fatalf("expected forced client match, got %+v", result)
	}
	if result.Confidence != 1 {
		t.Fatalf("forced match should have confidence 1, got %f", result.Confidence)
	}
	if len(result.MissingRequired) != 3 {
		t.Fatalf("expected all client required fields reported missing, got %v", result.MissingRequired)
	}
}

func TestDetectModelForcedUnknownType(t *testing.T) {
	engine := NewEngine(testCatalog(t), DefaultConfig())

	result := engine.DetectModel(row(0, "firstName", "lastName", "email"), "nonexistent")
	if result.Matched {
		t.Fatal("forcing an unknown type must not match")
	}
}
