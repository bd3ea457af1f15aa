package parser

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	payload := []byte("firstName,lastName,email\nAda,Lovelace,ada@example.com\nAlan,Turing,alan@example.com\n")

	result, err := Parse(payload, "clients.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FileType != FileTypeCSV {
		t.Fatalf("expected file type csv, got %s", result.FileType)
	}
	if result.TotalRows != 2 {
		t.Fatalf("expected 2 rows, got %d", result.TotalRows)
	}
	if !reflect.DeepEqual(result.Headers, []string{"firstName", "lastName", "email"}) {
		t.Fatalf("unexpected headers: %v", result.Headers)
	}
	if got := result.Rows[0].Values["email"]; got != "ada@example.com" {
		t.Fatalf("expected ada@example.com, got %v", got)
	}
	if result.Rows[1].Index != 1 {
		t.Fatalf("expected row index 1, got %d", result.Rows[1].Index)
	}
}

func TestParseCSVStripsByteOrderMark(t *testing.T) {
	payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name,calories\nEgg,155\n")...)

	result, err := Parse(payload, "foods.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Headers[0] != "name" {
		t.Fatalf("expected BOM stripped from first header, got %q", result.Headers[0])
	}
}

func TestParseCSVPadsShortRows(t *testing.T) {
	payload := []byte("a,b,c\n1,2\n")

	result, err := Parse(payload, "data.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Rows[0].Values["c"]; got != "" {
		t.Fatalf("expected short row padded with empty string, got %v", got)
	}
}

func TestParseCSVTruncatesLongRowsWithWarning(t *testing.T) {
	payload := []byte("a,b\n1,2,3,4\n")

	result, err := Parse(payload, "data.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := result.Rows[0]
	if len(row.Warnings) == 0 {
		t.Fatal("expected a warning for the overflow columns")
	}
	if _, ok := row.Values["c"]; ok {
		t.Fatal("overflow cells should not be kept")
	}
}

func TestParseCSVSkipsBlankRows(t *testing.T) {
	payload := []byte("a,b\n\n1,2\n , \n3,4\n")

	result, err := Parse(payload, "data.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalRows != 2 {
		t.Fatalf("expected 2 rows after skipping blanks, got %d", result.TotalRows)
	}
}

func TestParseCSVRepairsContainerCells(t *testing.T) {
	payload := []byte("name,meals\nplan,\"[{'name': 'egg', 'qty': 2, 'ok': True}]\"\n")

	result, err := Parse(payload, "plans.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	meals, ok := result.Rows[0].Values["meals"].([]any)
	if !ok {
		t.Fatalf("expected repaired array, got %T", result.Rows[0].Values["meals"])
	}
	meal := meals[0].(map[string]any)
	if meal["name"] != "egg" {
		t.Fatalf("expected name egg, got %v", meal["name"])
	}
	if meal["qty"] != float64(2) {
		t.Fatalf("expected qty 2, got %v", meal["qty"])
	}
	if meal["ok"] != true {
		t.Fatalf("expected ok true, got %v", meal["ok"])
	}
}

func TestParseCSVKeepsBrokenLiteralVerbatim(t *testing.T) {
	payload := []byte("name,meals\nplan,\"[{'name': }]\"\n")

	result, err := Parse(payload, "plans.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row := result.Rows[0]
	if _, ok := row.Values["meals"].(string); !ok {
		t.Fatalf("expected verbatim string, got %T", row.Values["meals"])
	}
	if len(row.Warnings) == 0 {
		t.Fatal("expected a warning for the unparsable literal")
	}
}

func TestParseTSV(t *testing.T) {
	payload := []byte("a\tb\n1\t2\n")

	result, err := Parse(payload, "data.tsv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Rows[0].Values["b"]; got != "2" {
		t.Fatalf("expected 2, got %v", got)
	}
}

func TestParseJSON(t *testing.T) {
	payload := []byte(`[
		{"name": "Egg", "calories": 155},
		{"name": "Rice", "calories": 130, "unit": "g"}
	]`)

	result, err := Parse(payload, "foods.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FileType != FileTypeJSON {
		t.Fatalf("expected file type json, got %s", result.FileType)
	}
	if result.TotalRows != 2 {
		t.Fatalf("expected 2 rows, got %d", result.TotalRows)
	}
	// Union headers in first-seen order.
	if !reflect.DeepEqual(result.Headers, []string{"calories", "name", "unit"}) {
		t.Fatalf("unexpected headers: %v", result.Headers)
	}
	if got := result.Rows[0].Values["calories"]; got != float64(155) {
		t.Fatalf("expected numeric 155, got %v (%T)", got, got)
	}
	// Per-row headers reflect only that row's keys, sorted.
	if !reflect.DeepEqual(result.Rows[0].Headers, []string{"calories", "name"}) {
		t.Fatalf("unexpected per-row headers: %v", result.Rows[0].Headers)
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "name")
	_ = f.SetCellValue(sheet, "B1", "calories")
	_ = f.SetCellValue(sheet, "A2", "Egg")
	_ = f.SetCellValue(sheet, "B2", 155)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("failed to build xlsx fixture: %v", err)
	}

	result, err := Parse(buf.Bytes(), "foods.xlsx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FileType != FileTypeXLSX {
		t.Fatalf("expected file type xlsx, got %s", result.FileType)
	}
	if result.TotalRows != 1 {
		t.Fatalf("expected 1 row, got %d", result.TotalRows)
	}
	if got := result.Rows[0].Values["name"]; got != "Egg" {
		t.Fatalf("expected Egg, got %v", got)
	}
}

func TestParseFatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		fileName string
		want     error
	}{
		{"empty file", "", "data.csv", ErrEmptyFile},
		{"whitespace only", "  \n\t ", "data.csv", ErrEmptyFile},
		{"unsupported extension", "a,b\n1,2", "data.parquet", ErrUnsupportedFormat},
		{"empty json array", "[]", "data.json", ErrEmptyFile},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.payload), tc.fileName)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseJSONRejectsNonArray(t *testing.T) {
	_, err := Parse([]byte(`{"name": "Egg"}`), "food.json")
	if err == nil {
		t.Fatal("expected error for non-array json")
	}
}

func TestSanitizeHeaders(t *testing.T) {
	got := sanitizeHeaders([]string{" First Name ", "", "email", "email"})
	want := []string{"First_Name", "column_2", "email", "email_2"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestSanitizeUTF8ReplacesInvalidBytes(t *testing.T) {
	got := string(sanitizeUTF8([]byte{'a', 0xFF, 'b'}))
	if !strings.Contains(got, "a") || !strings.Contains(got, "b") {
		t.Fatalf("expected surrounding bytes preserved, got %q", got)
	}
	if strings.ContainsRune(got, 0xFF) {
		t.Fatal("invalid byte should have been replaced")
	}
}
