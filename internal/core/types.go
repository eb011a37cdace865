package core

import (
	"time"

	"github.com/google/uuid"
)

// MaxNameLength bounds grid and column names.
const MaxNameLength = 100

// DataType is the declared type of a column. The set is closed; see KnownTypes.
type DataType string

const (
	TypeString             DataType = "String"
	TypeNumeric            DataType = "Numeric"
	TypeEmail              DataType = "Email"
	TypeRegexp             DataType = "Regexp"
	TypeSingleSelect       DataType = "SingleSelect"
	TypeMultiSelect        DataType = "MultiSelect"
	TypeExternalCollection DataType = "ExternalCollection"
)

// Grid is a user-defined table.
type Grid struct {
	ID        uuid.UUID `json:"gridId"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	IsPublic  bool      `json:"isPublic"`
	CreatedAt time.Time `json:"createdAt"`
}

// Column is a typed field definition scoped to one grid.
type Column struct {
	ID                    uuid.UUID `json:"columnId" yaml:"-"`
	GridID                uuid.UUID `json:"gridId" yaml:"-"`
	Name                  string    `json:"name" yaml:"name"`
	Type                  DataType  `json:"dataType" yaml:"type"`
	Required              bool      `json:"isRequired" yaml:"required"`
	ValidationPattern     string    `json:"validationPattern,omitempty" yaml:"pattern,omitempty"`
	Options               []string  `json:"options,omitempty" yaml:"options,omitempty"`
	ExternalCollectionURL string    `json:"externalCollectionUrl,omitempty" yaml:"externalCollectionUrl,omitempty"`
	Position              int       `json:"position" yaml:"-"`
}

// Row is one record in a grid. Values is deliberately untyped: columns evolve
// independently of rows already stored.
type Row struct {
	ID        uuid.UUID `json:"rowId"`
	GridID    uuid.UUID `json:"gridId"`
	Values    Values    `json:"values"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	Version   int64     `json:"version"`
}

// Grant is an explicit (grid, user) authorization used by private grids.
type Grant struct {
	GridID         uuid.UUID `json:"gridId"`
	UserID         string    `json:"userId"`
	PermissionType string    `json:"permissionType,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID          string `json:"userId"`
	Role            string `json:"role"`
	IsAdministrator bool   `json:"isAdministrator"`
}

// RowInput is a raw row payload as received from a form, a paste or an import file.
type RowInput struct {
	Values Values `json:"values"`
	Status string `json:"status,omitempty"`
}

// NormalizedRow is a row payload that passed validation and is ready to persist.
// Identity and timestamps are assigned by the store.
type NormalizedRow struct {
	Values Values `json:"values"`
	Status Status `json:"status"`
}

// ColumnByName returns the column with the given exact name.
func ColumnByName(columns []Column, name string) (Column, bool) {
	for _, c := range columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns column names in schema order.
func ColumnNames(columns []Column) []string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	return names
}
