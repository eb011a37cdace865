package core

import (
	"fmt"
	"strings"
)

// Status is the workflow state of a row. Any status may move to any other.
type Status string

const (
	StatusToDo       Status = "ToDo"
	StatusInProgress Status = "In Progress"
	StatusFinished   Status = "Finished"
)

// DefaultStatus is the initial state of every row.
const DefaultStatus = StatusToDo

// Statuses returns the closed set of statuses in workflow order.
func Statuses() []Status {
	return []Status{StatusToDo, StatusInProgress, StatusFinished}
}

// statusAliases maps lowercased spellings seen in pasted and imported data to
// canonical statuses.
var statusAliases = map[string]Status{
	"todo":          StatusToDo,
	"to do":         StatusToDo,
	"need to start": StatusToDo,
	"inprogress":    StatusInProgress,
	"in progress":   StatusInProgress,
	"progress":      StatusInProgress,
	"finished":      StatusFinished,
	"complete":      StatusFinished,
	"done":          StatusFinished,
}

// ParseStatus normalizes a raw status. Blank input yields DefaultStatus.
// Unrecognised input is a validation error.
func ParseStatus(raw string) (Status, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return DefaultStatus, nil
	}
	if st, ok := statusAliases[strings.ToLower(s)]; ok {
		return st, nil
	}
	names := make([]string, 0, 3)
	for _, st := range Statuses() {
		names = append(names, string(st))
	}
	return "", &ValidationError{
		Row:     NoRow,
		Column:  "status",
		Value:   raw,
		Message: fmt.Sprintf("status must be one of: %s", strings.Join(names, ", ")),
	}
}

// Valid reports whether s is one of the canonical statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusFinished:
		return true
	}
	return false
}
