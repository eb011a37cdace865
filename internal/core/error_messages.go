package core

// # Error Codes Reference
//
// User-facing errors carry a short code that users can quote to support.
// Codes are grouped by category:
//
//	VAL000-VAL099  validation (row values, column definitions, statuses)
//	AUTH001        not signed in
//	AUTH002        not allowed
//	NF001          grid, column or row not found
//	CON001         stale write, the row changed since it was read
//	CFG001         column configuration reached validation in a broken state
//	IMP001-IMP099  spreadsheet import
//	DB001-DB099    database
//	REQ001-REQ002  request cancelled or timed out
//	RATE001        rate limited
//	ERR000         anything else; check the logs for the technical error
//
// Typed errors (see KindOf) are classified first. Everything else is matched
// case-insensitively against errorPatterns; the first match wins, so specific
// patterns come before general ones.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// validationPatterns refine KindValidation errors. Message is replaced with
// the validation reason itself.
var validationPatterns = []errorPattern{
	{"missing required column", UserMessage{Action: "Add a value for every required column", Code: "VAL001"}},
	{"cannot be empty", UserMessage{Action: "Fill in the required value", Code: "VAL002"}},
	{"does not exist in grid", UserMessage{Action: "Remove the column from your data or add it to the grid first", Code: "VAL003"}},
	{"must be a valid number", UserMessage{Action: "Use plain digits with an optional sign and decimal point, e.g. -12.5", Code: "VAL004"}},
	{"must be a valid email address", UserMessage{Action: "Use the form name@example.com", Code: "VAL005"}},
	{"must match the pattern", UserMessage{Action: "Check the value against the column's validation pattern", Code: "VAL006"}},
	{"must be one of the allowed options", UserMessage{Action: "Pick one of the column's options", Code: "VAL007"}},
	{"status must be one of", UserMessage{Action: "Use ToDo, In Progress or Finished", Code: "VAL008"}},
	{"already exists in grid", UserMessage{Action: "Choose a different column name", Code: "VAL009"}},
	{"column name", UserMessage{Action: "Give the column a name of at most 100 characters", Code: "VAL010"}},
	{"invalid data type", UserMessage{Action: "Choose one of the supported data types", Code: "VAL011"}},
	{"validation pattern", UserMessage{Action: "Fix the regular expression", Code: "VAL012"}},
	{"options defined", UserMessage{Action: "Add at least one option", Code: "VAL013"}},
	{"collection url", UserMessage{Action: "Provide the external collection URL", Code: "VAL014"}},
	{"grid name", UserMessage{Action: "Give the grid a name of at most 100 characters", Code: "VAL015"}},
	{"no rows provided", UserMessage{Action: "Include at least one row", Code: "VAL016"}},
	{"no columns defined", UserMessage{Action: "Add columns to the grid before adding rows", Code: "VAL017"}},
}

var defaultValidation = UserMessage{Action: "Correct the highlighted value and try again", Code: "VAL000"}

var kindMessages = map[ErrorKind]UserMessage{
	KindUnauthorized: {
		Message: "You need to sign in",
		Action:  "Sign in and try again",
		Code:    "AUTH001",
	},
	KindForbidden: {
		Message: "You do not have access to this grid",
		Action:  "Ask the grid owner or an administrator for access",
		Code:    "AUTH002",
	},
	KindNotFound: {
		Message: "The requested item was not found",
		Action:  "It may have been deleted. Refresh and try again",
		Code:    "NF001",
	},
	KindConflict: {
		Message: "This row was changed by someone else",
		Action:  "Refresh the grid and apply your change again",
		Code:    "CON001",
	},
	KindConfiguration: {
		Message: "This column is misconfigured",
		Action:  "Ask an administrator to review the column definition",
		Code:    "CFG001",
	},
}

// errorPatterns maps untyped technical errors to user messages.
var errorPatterns = []errorPattern{
	// Import
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "IMP001"}},
	{"unsupported file format", UserMessage{"This file type is not supported", "Upload an .xlsx or .csv file", "IMP002"}},
	{"too many rows", UserMessage{"File has more rows than a single import allows", "Split the file into smaller files", "IMP003"}},
	{"too many concurrent imports", UserMessage{"The system is busy with other imports", "Please wait a moment and try again", "IMP004"}},
	{"no file provided", UserMessage{"No file was selected", "Select a spreadsheet to import", "IMP005"}},
	{"empty file", UserMessage{"The uploaded file has no data rows", "Add a header row and at least one data row", "IMP006"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save the file as UTF-8", "IMP007"}},
	{"no header row", UserMessage{"The file has no header row", "Put column names in the first row", "IMP008"}},

	// Database constraints
	{"duplicate key", UserMessage{"A record with this ID already exists", "Refresh and try again", "DB001"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Use a different value", "DB002"}},
	{"violates foreign key", UserMessage{"Referenced record does not exist", "Refresh and try again", "DB003"}},

	// Database connectivity
	{"connection refused", UserMessage{"Unable to connect to the database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Request lifecycle
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "REQ002"}},
	{"timeout", UserMessage{"Operation timed out", "Please try again later", "DB006"}},

	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check the logs for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error into a user-facing message. Validation errors
// keep their own reason as the message so users see which field and row
// failed.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	kind := KindOf(err)
	if kind == KindValidation {
		var ve *ValidationError
		errors.As(err, &ve)
		msg := matchPattern(validationPatterns, ve.Message, defaultValidation)
		msg.Message = ve.Error()
		return msg
	}
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}

	return matchPattern(errorPatterns, err.Error(), defaultMessage)
}

func matchPattern(patterns []errorPattern, text string, fallback UserMessage) UserMessage {
	text = strings.ToLower(text)
	for _, ep := range patterns {
		if strings.Contains(text, ep.pattern) {
			return ep.msg
		}
	}
	return fallback
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than ERR000.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message. Error
// returns the user message; Unwrap returns the technical error for logging.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string { return e.User.Message }

func (e *UserError) Unwrap() error { return e.Technical }

// NewUserError maps err and wraps it. Returns nil for a nil error.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
