// Package importer reads rows for a grid from uploaded spreadsheets.
//
// Supported formats are xlsx (first worksheet) and csv. The first non-blank
// row is the header row; its cells name grid columns. Every later non-blank
// row becomes one core.RowInput. A "Status" header feeds the row status
// unless the grid has a column of that name.
package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/xuri/excelize/v2"
)

// Import errors. Their texts are matched by core.MapError.
var (
	ErrNoFile            = errors.New("no file provided")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyFile         = errors.New("empty file")
	ErrNoHeader          = errors.New("no header row")
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// DefaultMaxFileSize is used when Open is given a non-positive limit.
const DefaultMaxFileSize int64 = 10 << 20

// StatusHeader names the header that carries the row status.
const StatusHeader = "Status"

// zipMagic starts every xlsx file.
var zipMagic = []byte("PK\x03\x04")

// File is an uploaded spreadsheet held in memory. It implements
// core.ImportSource.
type File struct {
	name   string
	format string
	data   []byte
}

// Open reads at most maxSize bytes from r and detects the format from the
// file name, falling back to content sniffing when the name has no known
// extension.
func Open(name string, r io.Reader, maxSize int64) (*File, error) {
	if r == nil {
		return nil, ErrNoFile
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxSize)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	format, err := detectFormat(name, data)
	if err != nil {
		return nil, err
	}
	return &File{name: name, format: format, data: data}, nil
}

func detectFormat(name string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case "":
		if bytes.HasPrefix(data, zipMagic) {
			return FormatXLSX, nil
		}
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Name returns the uploaded file name.
func (f *File) Name() string { return f.name }

// Format returns "csv" or "xlsx".
func (f *File) Format() string { return f.format }

// Records returns the raw cell grid of the file, blank rows included.
func (f *File) Records() ([][]string, error) {
	switch f.format {
	case FormatXLSX:
		return readXLSX(f.data)
	default:
		return readCSV(f.data)
	}
}

// Rows maps the file onto the given column snapshot.
func (f *File) Rows(ctx context.Context, columns []core.Column) ([]core.RowInput, error) {
	records, err := f.Records()
	if err != nil {
		return nil, err
	}
	return MapRecords(ctx, records, columns)
}

// MapRecords turns a header row and data rows into row payloads. Header cells
// match column names exactly, then case-insensitively; unmatched headers are
// passed through so validation can name them.
func MapRecords(ctx context.Context, records [][]string, columns []core.Column) ([]core.RowInput, error) {
	headerAt := -1
	for i, rec := range records {
		if !isBlankRecord(rec) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil, ErrEmptyFile
	}

	h, err := mapHeader(records[headerAt], columns)
	if err != nil {
		return nil, err
	}

	rows := make([]core.RowInput, 0, len(records)-headerAt-1)
	for i, rec := range records[headerAt+1:] {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if isBlankRecord(rec) {
			continue
		}
		rows = append(rows, h.row(rec))
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: the header row has no data rows below it", ErrEmptyFile)
	}
	return rows, nil
}

// header is the resolved header row: the key for every file column, with ""
// for ignored columns, and the status column index or -1. sparse marks the
// optional grid columns, whose blank cells are left out of the row.
type header struct {
	keys   []string
	sparse []bool
	status int
}

func mapHeader(rec []string, columns []core.Column) (header, error) {
	h := header{keys: make([]string, len(rec)), sparse: make([]bool, len(rec)), status: -1}

	_, statusIsColumn := core.ColumnByName(columns, StatusHeader)
	seen := make(map[string]bool, len(rec))
	matched := 0

	for i, cell := range rec {
		name := core.CleanCell(cell)
		if name == "" {
			continue
		}
		if !statusIsColumn && strings.EqualFold(name, StatusHeader) {
			h.status = i
			matched++
			continue
		}

		key, ok := resolveColumn(columns, name)
		if ok {
			matched++
		}
		if seen[key] {
			return header{}, core.NewValidationError(key, "column '%s' appears more than once in the header row", key)
		}
		seen[key] = true
		h.keys[i] = key
		if col, ok := core.ColumnByName(columns, key); ok && !col.Required {
			h.sparse[i] = true
		}
	}

	if matched == 0 && len(columns) > 0 {
		return header{}, fmt.Errorf("%w: no header cell matches a grid column", ErrNoHeader)
	}
	return h, nil
}

func resolveColumn(columns []core.Column, name string) (string, bool) {
	if _, ok := core.ColumnByName(columns, name); ok {
		return name, true
	}
	for _, c := range columns {
		if strings.EqualFold(c.Name, name) {
			return c.Name, true
		}
	}
	return name, false
}

func (h header) row(rec []string) core.RowInput {
	var in core.RowInput
	for i, key := range h.keys {
		if key == "" {
			continue
		}
		v := cellAt(rec, i)
		if v == "" && h.sparse[i] {
			continue
		}
		in.Values.Set(key, v)
	}
	if h.status >= 0 {
		in.Status = cellAt(rec, h.status)
	}
	return in
}

// cellAt returns the cleaned cell i of rec. Short rows read as blank cells.
func cellAt(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return core.CleanCell(rec[i])
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if core.CleanCell(v) != "" {
			return false
		}
	}
	return true
}

// ---- Readers ----

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// normalizeText strips a UTF-8 BOM and replaces invalid byte sequences with
// U+FFFD. Spreadsheet exports from Windows commonly carry both.
func normalizeText(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	return bytes.ToValidUTF8(data, []byte("\uFFFD"))
}

func readCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(normalizeText(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: not a readable xlsx workbook: %v", ErrUnsupportedFormat, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
