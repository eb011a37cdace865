package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ValidateColumn checks a proposed column definition and returns the first
// problem found. Checks run in a fixed order so the reported reason is stable.
func ValidateColumn(col Column) error {
	name := strings.TrimSpace(col.Name)
	if name == "" {
		return NewValidationError("", "column name cannot be empty")
	}
	if utf8.RuneCountInString(col.Name) > MaxNameLength {
		return NewValidationError("", "column name cannot exceed %d characters", MaxNameLength)
	}

	if !IsKnownType(string(col.Type)) {
		return NewValidationError(col.Name, "invalid data type: %s", col.Type)
	}

	if col.Type == TypeRegexp && strings.TrimSpace(col.ValidationPattern) == "" {
		return NewValidationError(col.Name, "Regexp columns must define a validation pattern")
	}
	if col.ValidationPattern != "" {
		if _, err := compilePattern(col.ValidationPattern); err != nil {
			return NewValidationError(col.Name, "invalid validation pattern: %v", err)
		}
	}

	if (col.Type == TypeSingleSelect || col.Type == TypeMultiSelect) && len(col.Options) == 0 {
		return NewValidationError(col.Name, "select types must have options defined")
	}

	if col.Type == TypeExternalCollection && strings.TrimSpace(col.ExternalCollectionURL) == "" {
		return NewValidationError(col.Name, "ExternalCollection type must have a collection URL")
	}

	return nil
}

// ValidateColumnSet validates candidate and checks that its name is not taken
// by another column of the same grid. A column being edited is matched by ID
// and does not collide with itself.
func ValidateColumnSet(existing []Column, candidate Column) error {
	if err := ValidateColumn(candidate); err != nil {
		return err
	}
	for _, c := range existing {
		if c.ID == candidate.ID {
			continue
		}
		if c.Name == candidate.Name {
			return NewValidationError(candidate.Name, "column name '%s' already exists in grid", candidate.Name)
		}
	}
	return nil
}

// ValidateColumns validates a whole schema, such as one loaded from a file,
// including name uniqueness.
func ValidateColumns(columns []Column) error {
	seen := make(map[string]bool, len(columns))
	for i, c := range columns {
		if err := ValidateColumn(c); err != nil {
			return fmt.Errorf("column %d: %w", i+1, err)
		}
		if seen[c.Name] {
			return NewValidationError(c.Name, "column name '%s' already exists in grid", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// ValidateGrid checks grid metadata.
func ValidateGrid(g Grid) error {
	if strings.TrimSpace(g.Name) == "" {
		return NewValidationError("", "grid name cannot be empty")
	}
	if utf8.RuneCountInString(g.Name) > MaxNameLength {
		return NewValidationError("", "grid name cannot exceed %d characters", MaxNameLength)
	}
	return nil
}

// NormalizeColumn canonicalizes user-supplied spelling before validation:
// the type name is matched case-insensitively and the name is trimmed.
func NormalizeColumn(col Column) Column {
	col.Name = strings.TrimSpace(col.Name)
	if t, ok := ParseDataType(string(col.Type)); ok {
		col.Type = t
	}
	col.ValidationPattern = strings.TrimSpace(col.ValidationPattern)
	col.ExternalCollectionURL = strings.TrimSpace(col.ExternalCollectionURL)
	return col
}
