package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/datagrid/internal/auth"
	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/importer"
	"github.com/spf13/cobra"
)

// errInvalidRows marks a check-import run that found bad rows. The rows
// are already printed, so main only needs the exit status.
var errInvalidRows = errors.New("file has invalid rows")

func newTypesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the supported column data types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range core.KnownTypes() {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newCheckSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-schema <schema.yaml>",
		Short: "Validate a grid schema file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSchema(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			name := s.Grid
			if name == "" {
				name = filepath.Base(args[0])
			}
			fmt.Fprintf(out, "%s: %d columns OK\n", name, len(s.Columns))
			for _, c := range s.Columns {
				req := ""
				if c.Required {
					req = " (required)"
				}
				fmt.Fprintf(out, "  %-24s %s%s\n", c.Name, c.Type, req)
			}
			return nil
		},
	}
}

type checkImportOptions struct {
	schema  string
	all     bool
	json    bool
	maxSize int64
}

func newCheckImportCmd() *cobra.Command {
	var opts checkImportOptions

	cmd := &cobra.Command{
		Use:   "check-import --schema <schema.yaml> <file.xlsx|file.csv>",
		Short: "Validate a spreadsheet against a schema without importing it",
		Long: `check-import reads a .xlsx or .csv file, maps its header row to the
schema's columns and validates every row. By default it stops at the first
invalid row, like an import does. With --all every failing row is reported.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckImport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.schema, "schema", "s", "", "Schema file (YAML)")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Report every invalid row instead of the first")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the report as JSON")
	cmd.Flags().Int64Var(&opts.maxSize, "max-size", importer.DefaultMaxFileSize, "Maximum file size in bytes")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

// importReport is the check-import output.
type importReport struct {
	File    string   `json:"file"`
	Format  string   `json:"format"`
	Total   int      `json:"total"`
	Valid   int      `json:"valid"`
	Invalid int      `json:"invalid"`
	Errors  []string `json:"errors"`
}

func runCheckImport(cmd *cobra.Command, path string, opts checkImportOptions) error {
	s, err := loadSchema(opts.schema)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	file, err := importer.Open(filepath.Base(path), f, opts.maxSize)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	inputs, err := file.Rows(cmd.Context(), s.Columns)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	rep := importReport{File: path, Format: file.Format(), Total: len(inputs), Errors: []string{}}
	if opts.all {
		batch := core.PreviewBatch(s.Columns, inputs)
		rep.Valid, rep.Invalid = batch.Valid, batch.Invalid
		rep.Errors = append(rep.Errors, batch.Messages()...)
	} else if _, err := core.ValidateBatch(s.Columns, inputs); err != nil {
		rep.Invalid = 1
		rep.Errors = append(rep.Errors, err.Error())
	} else {
		rep.Valid = len(inputs)
	}

	if err := printReport(cmd, rep, opts.json); err != nil {
		return err
	}
	if rep.Invalid > 0 {
		return errInvalidRows
	}
	return nil
}

func printReport(cmd *cobra.Command, rep importReport, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	if rep.Invalid == 0 {
		fmt.Fprintf(out, "%s: %d rows OK (%s)\n", rep.File, rep.Total, rep.Format)
		return nil
	}
	fmt.Fprintf(out, "%s: %d of %d rows invalid (%s)\n", rep.File, rep.Invalid, rep.Total, rep.Format)
	for _, e := range rep.Errors {
		fmt.Fprintf(out, "  %s\n", e)
	}
	return nil
}

func newTokenCmd() *cobra.Command {
	var (
		user   string
		roles  []string
		ttl    time.Duration
		issuer string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for development",
		Long:  `token signs a JWT with JWT_SECRET. Use --role Administrator for an admin token.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if strings.TrimSpace(secret) == "" {
				return errors.New("JWT_SECRET is not set")
			}
			if issuer == "" {
				issuer = os.Getenv("JWT_ISSUER")
			}

			tok, err := auth.NewResolver(secret, auth.WithIssuer(issuer)).Issue(user, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User id (sub claim)")
	cmd.Flags().StringSliceVarP(&roles, "role", "r", nil, "Role, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
	cmd.Flags().StringVar(&issuer, "issuer", "", "iss claim (default: $JWT_ISSUER)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
