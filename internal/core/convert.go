package core

// convert.go holds the string helpers shared by cell validation and imports.
//
// Cells always arrive as text: from form input, pasted spreadsheet ranges or
// uploaded files. These helpers strip the usual spreadsheet artifacts and
// recognise the handful of formats the validators care about.

import (
	"regexp"
	"strings"
)

// decimalRegex matches a locale-invariant decimal: optional sign, digits,
// optional fraction. No thousands separators or exponents.
var decimalRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// emailRegex is the deliberately loose local@domain.tld shape. Whitespace
// covers Unicode separators and NEL, not just ASCII \s.
var emailRegex = regexp.MustCompile(`^[^@\s\x{85}\p{Z}]+@[^@\s\x{85}\p{Z}]+\.[^@\s\x{85}\p{Z}]+$`)

// IsDecimal reports whether s (after trimming) is a locale-invariant decimal.
func IsDecimal(s string) bool {
	return decimalRegex.MatchString(strings.TrimSpace(s))
}

// IsEmail reports whether s has the local@domain.tld shape.
func IsEmail(s string) bool {
	return emailRegex.MatchString(s)
}

// IsBlank reports whether s is empty or whitespace only.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// CleanCell removes common spreadsheet artifacts from an imported cell:
//   - surrounding whitespace
//   - Excel text formula wrappers (="value")
//   - surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = s[1 : len(s)-1]
		}
	}

	return s
}
