package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/JonMunkholm/datagrid/internal/store/memory"
	"github.com/google/uuid"
)

var (
	admin = core.Principal{UserID: "root", Role: "Administrator", IsAdministrator: true}
	owner = core.Principal{UserID: "owner", Role: "User"}
	other = core.Principal{UserID: "other", Role: "User"}
	anon  = core.Principal{}
)

type fixture struct {
	svc  *core.Service
	grid core.Grid
}

// newFixture creates a private grid owned by owner with Title (required
// String) and Amount (optional Numeric) columns.
func newFixture(t *testing.T, opts ...core.Option) fixture {
	t.Helper()
	ctx := context.Background()
	svc := core.NewService(memory.New(), append([]core.Option{core.WithOpenGridCreation(true)}, opts...)...)

	g, err := svc.CreateGrid(ctx, owner, core.GridInput{Name: "Tasks"})
	if err != nil {
		t.Fatalf("CreateGrid error = %v", err)
	}
	for _, col := range []core.Column{
		{Name: "Title", Type: core.TypeString, Required: true},
		{Name: "Amount", Type: core.TypeNumeric},
	} {
		if _, err := svc.AddColumn(ctx, owner, g.ID, col); err != nil {
			t.Fatalf("AddColumn(%s) error = %v", col.Name, err)
		}
	}
	return fixture{svc: svc, grid: g}
}

func row(kv ...string) core.RowInput {
	return core.RowInput{Values: core.NewValues(kv...)}
}

// ---- Grid Tests ----

func TestCreateGrid_AdminOnlyByDefault(t *testing.T) {
	ctx := context.Background()
	svc := core.NewService(memory.New())

	if _, err := svc.CreateGrid(ctx, admin, core.GridInput{Name: "Budget"}); err != nil {
		t.Fatalf("admin CreateGrid error = %v", err)
	}
	if _, err := svc.CreateGrid(ctx, owner, core.GridInput{Name: "Budget"}); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("user CreateGrid error = %v, want ErrForbidden", err)
	}
	if _, err := svc.CreateGrid(ctx, anon, core.GridInput{Name: "Budget"}); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("anonymous CreateGrid error = %v, want ErrUnauthorized", err)
	}
}

func TestCreateGrid_RejectsBadName(t *testing.T) {
	svc := core.NewService(memory.New())

	_, err := svc.CreateGrid(context.Background(), admin, core.GridInput{Name: "   "})
	if core.KindOf(err) != core.KindValidation {
		t.Fatalf("CreateGrid error = %v, want validation", err)
	}
	if err.Error() != "grid name cannot be empty" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestGetGrid_PrivateAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.GetGrid(ctx, owner, f.grid.ID); err != nil {
		t.Errorf("owner GetGrid error = %v", err)
	}
	if _, err := f.svc.GetGrid(ctx, admin, f.grid.ID); err != nil {
		t.Errorf("admin GetGrid error = %v", err)
	}
	if _, err := f.svc.GetGrid(ctx, other, f.grid.ID); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("stranger GetGrid error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.GetGrid(ctx, anon, f.grid.ID); !errors.Is(err, core.ErrUnauthorized) {
		t.Errorf("anonymous GetGrid error = %v, want ErrUnauthorized", err)
	}

	if _, err := f.svc.PutGrant(ctx, owner, f.grid.ID, other.UserID, "read"); err != nil {
		t.Fatalf("PutGrant error = %v", err)
	}
	if _, err := f.svc.GetGrid(ctx, other, f.grid.ID); err != nil {
		t.Errorf("grantee GetGrid error = %v", err)
	}
	if _, err := f.svc.CreateRow(ctx, other, f.grid.ID, row("Title", "x")); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("grantee CreateRow error = %v, want ErrForbidden", err)
	}
}

func TestListGrids_FiltersByAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.CreateGrid(ctx, other, core.GridInput{Name: "Shared", IsPublic: true}); err != nil {
		t.Fatalf("CreateGrid error = %v", err)
	}

	tests := []struct {
		name string
		p    core.Principal
		want int
	}{
		{"owner sees own and public", owner, 2},
		{"stranger sees public only", core.Principal{UserID: "nobody"}, 1},
		{"admin sees all", admin, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grids, err := f.svc.ListGrids(ctx, tt.p)
			if err != nil {
				t.Fatalf("ListGrids error = %v", err)
			}
			if len(grids) != tt.want {
				t.Errorf("ListGrids returned %d grids, want %d", len(grids), tt.want)
			}
		})
	}
}

func TestGetGrid_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GetGrid(context.Background(), owner, uuid.New())
	if core.KindOf(err) != core.KindNotFound {
		t.Errorf("GetGrid error = %v, want not found", err)
	}
}

// ---- Column Tests ----

func TestAddColumn_RejectsDuplicateAndAssignsPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.AddColumn(ctx, owner, f.grid.ID, core.Column{Name: "Title", Type: core.TypeString}); core.KindOf(err) != core.KindValidation {
		t.Errorf("duplicate AddColumn error = %v, want validation", err)
	}

	col, err := f.svc.AddColumn(ctx, owner, f.grid.ID, core.Column{Name: "Owner", Type: core.TypeEmail})
	if err != nil {
		t.Fatalf("AddColumn error = %v", err)
	}
	if col.Position != 3 {
		t.Errorf("Position = %d, want 3", col.Position)
	}
}

func TestDeleteColumn_OldValuesStayReadable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.CreateRow(ctx, owner, f.grid.ID, row("Title", "a", "Amount", "5"))
	if err != nil {
		t.Fatalf("CreateRow error = %v", err)
	}

	cols, _ := f.svc.ListColumns(ctx, owner, f.grid.ID)
	amount, _ := core.ColumnByName(cols, "Amount")
	if err := f.svc.DeleteColumn(ctx, owner, amount.ID); err != nil {
		t.Fatalf("DeleteColumn error = %v", err)
	}

	got, err := f.svc.GetRow(ctx, owner, r.ID)
	if err != nil {
		t.Fatalf("GetRow error = %v", err)
	}
	if v, _ := got.Values.Get("Amount"); v != "5" {
		t.Errorf("Amount = %q, want 5", v)
	}

	if _, err := f.svc.CreateRow(ctx, owner, f.grid.ID, row("Title", "b", "Amount", "1")); core.KindOf(err) != core.KindValidation {
		t.Errorf("CreateRow with removed column error = %v, want validation", err)
	}
}

// ---- Row Tests ----

func TestCreateRow_Normalizes(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.CreateRow(context.Background(), owner, f.grid.ID, core.RowInput{
		Values: core.NewValues("Title", "Buy milk", "Amount", " 12.50 "),
		Status: "done",
	})
	if err != nil {
		t.Fatalf("CreateRow error = %v", err)
	}
	if v, _ := r.Values.Get("Amount"); v != "12.50" {
		t.Errorf("Amount = %q, want 12.50", v)
	}
	if r.Status != core.StatusFinished {
		t.Errorf("Status = %q, want Finished", r.Status)
	}
	if r.Version != 1 {
		t.Errorf("Version = %d, want 1", r.Version)
	}
}

func TestCreateRows_FirstFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateRows(ctx, owner, f.grid.ID, []core.RowInput{
		row("Title", "ok", "Amount", "1"),
		row("Title", "bad", "Amount", "abc"),
		row("Title", "never checked", "Amount", "also bad"),
	})

	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("CreateRows error = %v, want *ValidationError", err)
	}
	if ve.Row != 1 || ve.Column != "Amount" {
		t.Errorf("error at row %d column %q, want row 1 column Amount", ve.Row, ve.Column)
	}
	if err.Error() != "row 2: Amount: must be a valid number" {
		t.Errorf("message = %q", err.Error())
	}

	rows, err := f.svc.ListRows(ctx, owner, f.grid.ID)
	if err != nil {
		t.Fatalf("ListRows error = %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("stored %d rows after failed batch, want 0", len(rows))
	}
}

func TestPreviewRows_ReportsEveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	report, err := f.svc.PreviewRows(ctx, owner, f.grid.ID, []core.RowInput{
		row("Title", "ok"),
		row("Amount", "1"),
		row("Title", "x", "Amount", "nope"),
	})
	if err != nil {
		t.Fatalf("PreviewRows error = %v", err)
	}
	if report.Valid != 1 || report.Invalid != 2 {
		t.Errorf("report = %+v, want 1 valid 2 invalid", report)
	}

	rows, _ := f.svc.ListRows(ctx, owner, f.grid.ID)
	if len(rows) != 0 {
		t.Errorf("preview stored %d rows", len(rows))
	}
}

func TestUpdateRow_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.CreateRow(ctx, owner, f.grid.ID, row("Title", "v1"))
	if err != nil {
		t.Fatalf("CreateRow error = %v", err)
	}

	updated, err := f.svc.UpdateRow(ctx, owner, r.ID, r.Version, row("Title", "v2"))
	if err != nil {
		t.Fatalf("UpdateRow error = %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("Version = %d, want 2", updated.Version)
	}

	_, err = f.svc.UpdateRow(ctx, owner, r.ID, r.Version, row("Title", "lost update"))
	if !errors.Is(err, core.ErrConflict) {
		t.Errorf("stale UpdateRow error = %v, want ErrConflict", err)
	}
}

func TestUpdateCell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.CreateRow(ctx, owner, f.grid.ID, row("Title", "a", "Amount", "1"))
	if err != nil {
		t.Fatalf("CreateRow error = %v", err)
	}

	r, err = f.svc.UpdateCell(ctx, owner, r.ID, core.UpdateCellRequest{Column: "Amount", Value: "2.5", Version: r.Version})
	if err != nil {
		t.Fatalf("UpdateCell(Amount) error = %v", err)
	}
	if v, _ := r.Values.Get("Amount"); v != "2.5" {
		t.Errorf("Amount = %q, want 2.5", v)
	}
	if v, _ := r.Values.Get("Title"); v != "a" {
		t.Errorf("Title changed to %q", v)
	}

	r, err = f.svc.UpdateCell(ctx, owner, r.ID, core.UpdateCellRequest{Column: "status", Value: "in progress", Version: r.Version})
	if err != nil {
		t.Fatalf("UpdateCell(status) error = %v", err)
	}
	if r.Status != core.StatusInProgress {
		t.Errorf("Status = %q, want In Progress", r.Status)
	}

	tests := []struct {
		name string
		req  core.UpdateCellRequest
		kind core.ErrorKind
	}{
		{"bad number", core.UpdateCellRequest{Column: "Amount", Value: "x", Version: r.Version}, core.KindValidation},
		{"blank required", core.UpdateCellRequest{Column: "Title", Value: " ", Version: r.Version}, core.KindValidation},
		{"unknown column", core.UpdateCellRequest{Column: "Nope", Value: "1", Version: r.Version}, core.KindValidation},
		{"bad status", core.UpdateCellRequest{Column: "status", Value: "later", Version: r.Version}, core.KindValidation},
		{"stale version", core.UpdateCellRequest{Column: "Amount", Value: "3", Version: 1}, core.KindConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpdateCell(ctx, owner, r.ID, tt.req)
			if got := core.KindOf(err); got != tt.kind {
				t.Errorf("UpdateCell error = %v (kind %v), want kind %v", err, got, tt.kind)
			}
		})
	}
}

func TestUpdateCell_AuditsStoredValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	r, err := f.svc.CreateRow(ctx, owner, f.grid.ID, row("Title", "a", "Amount", "1"))
	if err != nil {
		t.Fatalf("CreateRow error = %v", err)
	}
	r, err = f.svc.UpdateCell(ctx, owner, r.ID, core.UpdateCellRequest{Column: "Amount", Value: " 7 ", Version: r.Version})
	if err != nil {
		t.Fatalf("UpdateCell(Amount) error = %v", err)
	}
	if _, err := f.svc.UpdateCell(ctx, owner, r.ID, core.UpdateCellRequest{Column: "status", Value: "done", Version: r.Version}); err != nil {
		t.Fatalf("UpdateCell(status) error = %v", err)
	}

	entries, err := f.svc.AuditLog(ctx, admin, core.AuditFilter{GridID: f.grid.ID, Action: core.ActionCellEdit})
	if err != nil {
		t.Fatalf("AuditLog error = %v", err)
	}
	want := map[string][2]string{
		"Amount": {"1", "7"},
		"status": {string(core.StatusToDo), string(core.StatusFinished)},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d cell edit entries, want %d", len(entries), len(want))
	}
	for _, e := range entries {
		w, ok := want[e.ColumnName]
		if !ok {
			t.Errorf("unexpected entry for column %q", e.ColumnName)
			continue
		}
		if e.OldValue != w[0] || e.NewValue != w[1] {
			t.Errorf("%s: old/new = %q/%q, want %q/%q", e.ColumnName, e.OldValue, e.NewValue, w[0], w[1])
		}
	}
}

func TestDeleteRows_UnknownIDDeletesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	rows, err := f.svc.CreateRows(ctx, owner, f.grid.ID, []core.RowInput{row("Title", "a"), row("Title", "b")})
	if err != nil {
		t.Fatalf("CreateRows error = %v", err)
	}

	_, err = f.svc.DeleteRows(ctx, owner, f.grid.ID, []uuid.UUID{rows[0].ID, uuid.New()})
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteRows error = %v, want ErrNotFound", err)
	}

	n, err := f.svc.DeleteRows(ctx, owner, f.grid.ID, []uuid.UUID{rows[0].ID, rows[1].ID, rows[0].ID})
	if err != nil {
		t.Fatalf("DeleteRows error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d rows, want 2", n)
	}
}

// ---- Import Tests ----

type fakeSource struct {
	rows []core.RowInput
	err  error
}

func (f fakeSource) Format() string { return "csv" }

func (f fakeSource) Rows(context.Context, []core.Column) ([]core.RowInput, error) {
	return f.rows, f.err
}

func TestImportRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	src := fakeSource{rows: []core.RowInput{row("Title", "a"), row("Title", "", "Amount", "1")}}

	dry, err := f.svc.ImportRows(ctx, owner, f.grid.ID, src, true)
	if err != nil {
		t.Fatalf("dry run error = %v", err)
	}
	if !dry.DryRun || dry.Report.Invalid != 1 || dry.Imported != 0 {
		t.Errorf("dry run result = %+v", dry)
	}

	if _, err := f.svc.ImportRows(ctx, owner, f.grid.ID, src, false); core.KindOf(err) != core.KindValidation {
		t.Errorf("import error = %v, want validation", err)
	}

	good := fakeSource{rows: []core.RowInput{row("Title", "a"), row("Title", "b", "Amount", "2")}}
	res, err := f.svc.ImportRows(ctx, owner, f.grid.ID, good, false)
	if err != nil {
		t.Fatalf("import error = %v", err)
	}
	if res.Imported != 2 {
		t.Errorf("Imported = %d, want 2", res.Imported)
	}
}

func TestImportRows_RowLimit(t *testing.T) {
	f := newFixture(t, core.WithImportLimits(1, 0))

	src := fakeSource{rows: []core.RowInput{row("Title", "a"), row("Title", "b")}}
	_, err := f.svc.ImportRows(context.Background(), owner, f.grid.ID, src, false)
	if !errors.Is(err, core.ErrTooManyRows) {
		t.Errorf("import error = %v, want ErrTooManyRows", err)
	}
}

func TestImportRows_LimiterFull(t *testing.T) {
	limiter := core.NewImportLimiter(1, 10*time.Millisecond)
	f := newFixture(t, core.WithImportLimiter(limiter))

	release, ok := limiter.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire failed on empty limiter")
	}
	defer release()

	_, err := f.svc.ImportRows(context.Background(), owner, f.grid.ID, fakeSource{}, false)
	if !errors.Is(err, core.ErrTooManyImports) {
		t.Errorf("import error = %v, want ErrTooManyImports", err)
	}
}

// ---- Audit Tests ----

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.svc.CreateRow(ctx, owner, f.grid.ID, row("Title", "a")); err != nil {
		t.Fatalf("CreateRow error = %v", err)
	}

	if _, err := f.svc.AuditLog(ctx, owner, core.AuditFilter{}); !errors.Is(err, core.ErrForbidden) {
		t.Errorf("owner AuditLog error = %v, want ErrForbidden", err)
	}

	entries, err := f.svc.AuditLog(ctx, admin, core.AuditFilter{GridID: f.grid.ID, Action: core.ActionRowCreate})
	if err != nil {
		t.Fatalf("AuditLog error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d row_create entries, want 1", len(entries))
	}
	if entries[0].UserID != owner.UserID || entries[0].Severity != core.SeverityMedium {
		t.Errorf("entry = %+v", entries[0])
	}
}
