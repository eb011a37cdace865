package main

import (
	"fmt"
	"os"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gridctl",
		Short: "Offline tooling for datagrid schemas and imports",
		Long: `gridctl validates grid schemas and spreadsheet files with the same rules
the datagrid API applies, without a running server or database.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newTypesCmd(),
		newCheckSchemaCmd(),
		newCheckImportCmd(),
		newTokenCmd(),
	)
	return root
}

// schemaFile is the YAML layout of a grid schema:
//
//	grid: Tasks
//	columns:
//	  - name: Title
//	    type: String
//	    required: true
type schemaFile struct {
	Grid    string        `yaml:"grid"`
	Columns []core.Column `yaml:"columns"`
}

// loadSchema reads and validates a schema file. Columns come back
// normalized and positioned in file order.
func loadSchema(path string) (schemaFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return schemaFile{}, err
	}
	defer f.Close()

	var s schemaFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return schemaFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(s.Columns) == 0 {
		return schemaFile{}, fmt.Errorf("%s: no columns defined", path)
	}

	for i := range s.Columns {
		s.Columns[i] = core.NormalizeColumn(s.Columns[i])
		s.Columns[i].Position = i
	}
	if err := core.ValidateColumns(s.Columns); err != nil {
		return schemaFile{}, err
	}
	return s, nil
}
