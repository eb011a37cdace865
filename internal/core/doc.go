// Package core holds the domain model and rules of the data grid service.
//
// Grids are user-defined tables. Each grid has an ordered set of typed
// columns and any number of rows; a row is an ordered mapping of column name
// to string value plus a workflow status. The package is free of I/O: storage,
// caching and transport plug in through the interfaces in repository.go.
//
// # Type Registry
//
// Column data types are registered at init time with [RegisterType]. Each type
// maps to a [CellFunc] that accepts a raw cell and returns its normalized
// form. The set is closed in practice:
//
//	String, Numeric, Email, Regexp, SingleSelect, MultiSelect, ExternalCollection
//
// # Validation
//
// Validation runs bottom-up:
//
//   - [ValidateColumn] checks a column definition before it is stored.
//   - [ValidateCell] checks one value against its column.
//   - [ValidateRow] checks required coverage and unknown keys, then each cell.
//   - [ValidateBatch] stops at the first bad row; [PreviewBatch] reports all.
//
// All rejections are [*ValidationError] values that carry the row index,
// column and reason. Batch errors render as "row N: ..." with N 1-based.
//
// # Access
//
// [Evaluate] is the pure access rule; [Policy] adds the grant lookup. Reads are
// open to public grids, administrators, owners and grantees. Writes and deletes
// belong to administrators and owners. Denials distinguish an anonymous caller
// ([ErrUnauthorized]) from one without rights ([ErrForbidden]).
//
// # Service
//
// [Service] ties the rules to a [Store]. It takes the acting [Principal] on
// every call, authorizes, validates against one column snapshot and only then
// writes. Row updates carry the version the caller read; a stale version
// fails with [ErrConflict]. Every mutation is written to the audit log.
//
// # Error Handling
//
// Errors are classified with [KindOf] and turned into user messages with a
// support code by [MapError].
package core
