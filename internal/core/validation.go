package core

// validation.go validates cells, rows and batches against a grid's columns.
//
// Validation happens at three levels:
//  1. Cell: one raw value against its column's type (ValidateCell)
//  2. Row: required coverage, unknown keys, then every cell (ValidateRow)
//  3. Batch: every row, stopping at the first failure (ValidateBatch) or
//     collecting all failures for preview (PreviewBatch)
//
// Every present key is checked against its column type, including blank
// values. An optional cell is left empty by omitting its key.

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateCell checks one raw value against a column and returns the
// normalized value. Rejections are *ValidationError values naming the column.
func ValidateCell(col Column, raw string) (string, error) {
	fn, ok := ValidatorFor(col.Type)
	if !ok {
		return "", &ValidationError{
			Row:     NoRow,
			Column:  col.Name,
			Value:   raw,
			Message: "unknown column type",
			err:     ErrConfiguration,
		}
	}

	norm, err := fn(col, raw)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			cp := *ve
			cp.Column = col.Name
			cp.Value = raw
			return "", &cp
		}
		return "", fmt.Errorf("column %s: %w", col.Name, err)
	}
	return norm, nil
}

// ValidateRow validates a row payload against the grid's columns.
//
// With requireAllRequired set, every required column must be present and
// non-blank. Without it (a partial edit), absent required columns are
// skipped but present ones must still be non-blank.
//
// Unknown keys are rejected, then cells are validated in payload order; the
// first failure is returned. A blank status defaults to ToDo.
func ValidateRow(columns []Column, input RowInput, requireAllRequired bool) (NormalizedRow, error) {
	for _, col := range columns {
		if !col.Required {
			continue
		}
		val, present := input.Values.Get(col.Name)
		if !present {
			if requireAllRequired {
				return NormalizedRow{}, NewValidationError(col.Name, "missing required column '%s'", col.Name)
			}
			continue
		}
		if IsBlank(val) {
			return NormalizedRow{}, NewValidationError(col.Name, "required column '%s' cannot be empty", col.Name)
		}
	}

	byName := make(map[string]Column, len(columns))
	for _, col := range columns {
		byName[col.Name] = col
	}
	keys := input.Values.Keys()
	for _, key := range keys {
		if _, ok := byName[key]; !ok {
			return NormalizedRow{}, NewValidationError(key, "column '%s' does not exist in grid", key)
		}
	}

	var out Values
	for _, key := range keys {
		raw, _ := input.Values.Get(key)
		col := byName[key]

		norm, err := ValidateCell(col, raw)
		if err != nil {
			return NormalizedRow{}, err
		}
		out.Set(key, norm)
	}

	status, err := ParseStatus(input.Status)
	if err != nil {
		return NormalizedRow{}, err
	}

	return NormalizedRow{Values: out, Status: status}, nil
}

// ValidateBatch validates rows in order and stops at the first failure. The
// returned *ValidationError carries the 0-based index of the failing row.
// Nothing is returned for a batch that fails, so callers cannot persist part
// of it.
func ValidateBatch(columns []Column, inputs []RowInput) ([]NormalizedRow, error) {
	if len(inputs) == 0 {
		return nil, NewValidationError("", "no rows provided")
	}
	if len(columns) == 0 {
		return nil, NewValidationError("", "grid has no columns defined")
	}

	out := make([]NormalizedRow, 0, len(inputs))
	for i, in := range inputs {
		row, err := ValidateRow(columns, in, true)
		if err != nil {
			return nil, atRow(err, i)
		}
		out = append(out, row)
	}
	return out, nil
}

// BatchReport is the outcome of PreviewBatch.
type BatchReport struct {
	Total   int                `json:"total"`
	Valid   int                `json:"valid"`
	Invalid int                `json:"invalid"`
	Errors  []*ValidationError `json:"-"`
	Rows    []NormalizedRow    `json:"-"` // rows that passed, in input order
}

// OK reports whether every row validated.
func (r BatchReport) OK() bool { return r.Invalid == 0 }

// Messages returns the rendered error messages, one per failing row.
func (r BatchReport) Messages() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Error()
	}
	return out
}

// PreviewBatch validates every row and collects all failures instead of
// stopping at the first one. Nothing is persisted.
func PreviewBatch(columns []Column, inputs []RowInput) BatchReport {
	report := BatchReport{Total: len(inputs)}
	for i, in := range inputs {
		row, err := ValidateRow(columns, in, true)
		if err != nil {
			report.Invalid++
			report.Errors = append(report.Errors, atRow(err, i))
			continue
		}
		report.Valid++
		report.Rows = append(report.Rows, row)
	}
	return report
}

// atRow positions a row error within a batch. Errors that are not
// *ValidationError (configuration problems) keep their kind and gain the
// row number in their text.
func atRow(err error, index int) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.AtRow(index)
	}
	return &ValidationError{Row: index, Message: err.Error(), err: err}
}

// RowFromValues builds a RowInput from a plain map, ordering keys by the
// grid's column order. Used by callers that decode rows into maps.
func RowFromValues(columns []Column, m map[string]string, status string) RowInput {
	return RowInput{Values: ValuesFromMap(m, ColumnNames(columns)), Status: strings.TrimSpace(status)}
}
