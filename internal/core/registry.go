package core

import (
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
)

// CellFunc validates one raw cell against a column definition and returns the
// normalized value. A rejection is returned as a *ValidationError carrying only
// the reason; callers attach the column and row position.
type CellFunc func(col Column, raw string) (string, error)

var (
	typeRegistry   = make(map[DataType]CellFunc)
	typeRegistryMu sync.RWMutex
)

func init() {
	RegisterType(TypeString, validateString)
	RegisterType(TypeNumeric, validateNumeric)
	RegisterType(TypeEmail, validateEmail)
	RegisterType(TypeRegexp, validateRegexp)
	RegisterType(TypeSingleSelect, validateSelect)
	RegisterType(TypeMultiSelect, validateSelect)
	RegisterType(TypeExternalCollection, validateString)
}

// RegisterType adds a data type and its cell validator.
// Panics if the type is already registered.
func RegisterType(t DataType, fn CellFunc) {
	typeRegistryMu.Lock()
	defer typeRegistryMu.Unlock()

	if _, exists := typeRegistry[t]; exists {
		panic(fmt.Sprintf("data type already registered: %s", t))
	}
	typeRegistry[t] = fn
}

// IsKnownType reports whether name is a registered data type. The match is
// exact; use ParseDataType to accept other spellings.
func IsKnownType(name string) bool {
	_, ok := ValidatorFor(DataType(name))
	return ok
}

// ValidatorFor returns the cell validator registered for t.
func ValidatorFor(t DataType) (CellFunc, bool) {
	typeRegistryMu.RLock()
	defer typeRegistryMu.RUnlock()

	fn, ok := typeRegistry[t]
	return fn, ok
}

// KnownTypes returns every registered data type, sorted by name.
func KnownTypes() []DataType {
	typeRegistryMu.RLock()
	defer typeRegistryMu.RUnlock()

	out := make([]DataType, 0, len(typeRegistry))
	for t := range typeRegistry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseDataType maps a user-supplied type name to its canonical DataType,
// ignoring case and surrounding whitespace.
func ParseDataType(name string) (DataType, bool) {
	name = strings.TrimSpace(name)
	for _, t := range KnownTypes() {
		if strings.EqualFold(string(t), name) {
			return t, true
		}
	}
	return "", false
}

// ---- Built-in validators ----

func reject(raw, format string, args ...any) error {
	return &ValidationError{Row: NoRow, Value: raw, Message: fmt.Sprintf(format, args...)}
}

func validateString(_ Column, raw string) (string, error) {
	return raw, nil
}

func validateNumeric(_ Column, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !decimalRegex.MatchString(trimmed) {
		return "", reject(raw, "must be a valid number")
	}
	return trimmed, nil
}

func validateEmail(_ Column, raw string) (string, error) {
	if !IsEmail(raw) {
		return "", reject(raw, "must be a valid email address")
	}
	return raw, nil
}

func validateRegexp(col Column, raw string) (string, error) {
	re, err := compilePattern(col.ValidationPattern)
	if err != nil {
		return "", &ValidationError{
			Row:     NoRow,
			Value:   raw,
			Message: fmt.Sprintf("invalid validation pattern: %v", err),
			err:     ErrConfiguration,
		}
	}
	if !re.MatchString(raw) {
		return "", reject(raw, "must match the pattern %s", col.ValidationPattern)
	}
	return raw, nil
}

func validateSelect(col Column, raw string) (string, error) {
	if !slices.Contains(col.Options, raw) {
		return "", reject(raw, "must be one of the allowed options")
	}
	return raw, nil
}

// ---- Pattern cache ----

// Compiled column patterns, keyed by source text. Reset when full.
var (
	patternCache   = make(map[string]*regexp.Regexp)
	patternCacheMu sync.RWMutex
)

const maxCachedPatterns = 256

func compilePattern(pattern string) (*regexp.Regexp, error) {
	patternCacheMu.RLock()
	re, ok := patternCache[pattern]
	patternCacheMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	patternCacheMu.Lock()
	if len(patternCache) >= maxCachedPatterns {
		patternCache = make(map[string]*regexp.Regexp)
	}
	patternCache[pattern] = re
	patternCacheMu.Unlock()
	return re, nil
}
