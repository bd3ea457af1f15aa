// Package parser converts uploaded CSV, XLSX, or JSON payloads into the
// canonical row sequence consumed by the matching and validation engines.
package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/dietflow/importer/internal/domain"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrEmptyFile is returned for zero-byte or all-blank uploads.
	ErrEmptyFile = errors.New("file is empty")
	// ErrNoHeader is returned when no header row could be detected.
	ErrNoHeader = errors.New("no header row detected")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// FileType identifies the detected upload format.
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
	FileTypeJSON FileType = "json"
)

// Result is the outcome of parsing one upload. Parse failures are fatal and
// reported through the error return; per-row anomalies become row warnings.
type Result struct {
	Rows       []domain.ParsedRow `json:"rows"`
	Headers    []string           `json:"headers"`
	RawHeaders []string           `json:"rawHeaders"`
	TotalRows  int                `json:"totalRows"`
	FileType   FileType           `json:"fileType"`
}

// Parse detects the upload format from the file extension and converts the
// payload into ordered rows. The first row of tabular input is the header.
func Parse(payload []byte, fileName string) (Result, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Result{}, ErrEmptyFile
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv", ".txt", ".tsv":
		return parseCSV(payload, ext)
	case ".xlsx":
		return parseExcel(payload)
	case ".json":
		return parseJSON(payload)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, ext string) (Result, error) {
	payload = sanitizeUTF8(payload)

	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1
	if ext == ".tsv" {
		csvReader.Comma = '\t'
	}

	records, err := csvReader.ReadAll()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read csv: %w", err)
	}

	return tableResult(records, FileTypeCSV)
}

func parseExcel(payload []byte) (Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, errors.New("excel file has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return Result{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	return tableResult(records, FileTypeXLSX)
}

func parseJSON(payload []byte) (Result, error) {
	var objects []map[string]any
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&objects); err != nil {
		return Result{}, fmt.Errorf("failed to decode json array: %w", err)
	}
	if len(objects) == 0 {
		return Result{}, ErrEmptyFile
	}

	result := Result{FileType: FileTypeJSON}
	seen := make(map[string]bool)

	for idx, object := range objects {
		values := make(map[string]any, len(object))
		headers := make([]string, 0, len(object))
		for key, value := range object {
			headers = append(headers, key)
			values[key] = decodeJSONValue(value)
		}
		// Object keys come back in map order; sort for reproducible row headers.
		sort.Strings(headers)

		for _, key := range headers {
			if !seen[key] {
				seen[key] = true
				result.Headers = append(result.Headers, key)
				result.RawHeaders = append(result.RawHeaders, key)
			}
		}

		result.Rows = append(result.Rows, domain.ParsedRow{
			Index:   idx,
			Values:  values,
			Headers: headers,
		})
	}

	result.TotalRows = len(result.Rows)
	return result, nil
}

// decodeJSONValue converts json.Number tokens into float64 so downstream
// coercion sees one numeric representation regardless of input format.
func decodeJSONValue(value any) any {
	switch v := value.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = decodeJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = decodeJSONValue(item)
		}
		return out
	default:
		return value
	}
}

func tableResult(records [][]string, fileType FileType) (Result, error) {
	var headerRow []string
	var dataRows [][]string

	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}

	if headerRow == nil {
		return Result{}, ErrNoHeader
	}

	headers := sanitizeHeaders(headerRow)
	rawHeaders := make([]string, len(headerRow))
	for i, value := range headerRow {
		rawHeaders[i] = strings.TrimSpace(value)
	}

	result := Result{
		Headers:    headers,
		RawHeaders: rawHeaders,
		FileType:   fileType,
	}

	for idx, row := range dataRows {
		parsed := domain.ParsedRow{
			Index:   idx,
			Values:  make(map[string]any, len(headers)),
			Headers: headers,
		}

		if len(row) > len(headers) {
			parsed.Warnings = append(parsed.Warnings,
				fmt.Sprintf("row has %d extra column(s); overflow dropped", len(row)-len(headers)))
			row = row[:len(headers)]
		}

		for col, header := range headers {
			// Short rows pad with empty string.
			raw := ""
			if col < len(row) {
				raw = strings.TrimSpace(row[col])
			}
			parsed.Values[header] = normalizeCell(raw, header, &parsed)
		}

		result.Rows = append(result.Rows, parsed)
	}

	result.TotalRows = len(result.Rows)
	return result, nil
}

// normalizeCell repairs pseudo-literal containers into structured data. When
// repair fails the verbatim string is kept and the row carries a warning so
// validation can surface it instead of silently dropping the value.
func normalizeCell(raw, header string, row *domain.ParsedRow) any {
	if !LooksLikeContainer(raw) {
		return raw
	}
	value, ok := NormalizeLiteral(raw)
	if !ok {
		row.Warnings = append(row.Warnings,
			fmt.Sprintf("column %s: unparsable literal kept verbatim", header))
		return raw
	}
	return value
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
