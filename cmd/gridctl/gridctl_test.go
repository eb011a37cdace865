package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/datagrid/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tasksSchema = `grid: Tasks
columns:
  - name: Title
    type: string
    required: true
  - name: Amount
    type: Numeric
  - name: Priority
    type: SingleSelect
    options: [Low, High]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTypes(t *testing.T) {
	out, err := execute(t, "types")
	require.NoError(t, err)
	assert.Contains(t, out, "String\n")
	assert.Contains(t, out, "ExternalCollection\n")
}

func TestCheckSchema(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		out, err := execute(t, "check-schema", writeFile(t, "tasks.yaml", tasksSchema))
		require.NoError(t, err)
		assert.Contains(t, out, "Tasks: 3 columns OK")
		assert.Contains(t, out, "(required)")
	})

	tests := []struct {
		name   string
		schema string
		want   string
	}{
		{"no columns", "grid: Empty\n", "no columns defined"},
		{"unknown type", "columns:\n  - name: A\n    type: Date\n", "invalid data type"},
		{"select without options", "columns:\n  - name: A\n    type: SingleSelect\n", "options"},
		{"duplicate name", "columns:\n  - name: A\n    type: String\n  - name: A\n    type: Numeric\n", "already exists"},
		{"unknown key", "columns:\n  - name: A\n    kind: String\n", "kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "check-schema", writeFile(t, "s.yaml", tt.schema))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckImport(t *testing.T) {
	schema := writeFile(t, "tasks.yaml", tasksSchema)

	t.Run("valid csv", func(t *testing.T) {
		file := writeFile(t, "tasks.csv", "Title,Amount,Priority\nWrite,1.5,High\nReview,,Low\n")
		out, err := execute(t, "check-import", "--schema", schema, file)
		require.NoError(t, err)
		assert.Contains(t, out, "2 rows OK (csv)")
	})

	t.Run("first error only", func(t *testing.T) {
		file := writeFile(t, "tasks.csv", "Title,Amount,Priority\n,1,High\nReview,x,Low\n")
		out, err := execute(t, "check-import", "--schema", schema, file)
		require.ErrorIs(t, err, errInvalidRows)
		assert.Contains(t, out, "1 of 2 rows invalid")
		assert.Contains(t, out, "row 1")
		assert.NotContains(t, out, "row 2")
	})

	t.Run("all errors as json", func(t *testing.T) {
		file := writeFile(t, "tasks.csv", "Title,Amount,Priority\n,1,High\nReview,x,Low\nShip,2,Medium\n")
		out, err := execute(t, "check-import", "--schema", schema, "--all", "--json", file)
		require.ErrorIs(t, err, errInvalidRows)

		// cobra appends the error after the JSON document.
		var rep importReport
		require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&rep))
		assert.Equal(t, 3, rep.Total)
		assert.Equal(t, 3, rep.Invalid)
		assert.Len(t, rep.Errors, 3)
	})

	t.Run("schema flag required", func(t *testing.T) {
		_, err := execute(t, "check-import", writeFile(t, "tasks.csv", "Title\nx\n"))
		require.Error(t, err)
	})

	t.Run("unsupported file", func(t *testing.T) {
		_, err := execute(t, "check-import", "--schema", schema, writeFile(t, "tasks.pdf", "%PDF"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported file format")
	})
}

func TestToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("JWT_ISSUER", "")

	out, err := execute(t, "token", "--user", "alice", "--role", auth.DefaultAdminRole, "--ttl", "1h")
	require.NoError(t, err)

	p, err := auth.NewResolver("cli-secret").ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UserID)
	assert.True(t, p.IsAdministrator)

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := execute(t, "token", "--user", "alice")
		assert.ErrorContains(t, err, "JWT_SECRET")
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := execute(t, "token", "--ttl", time.Hour.String())
		assert.Error(t, err)
	})
}
