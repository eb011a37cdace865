package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/JonMunkholm/datagrid/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	assert.NoError(t, classifyError("grid", nil))

	err := classifyError("grid 1", pgx.ErrNoRows)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	dup := classifyError("column \"A\"", &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "grid_columns_name_unique"})
	assert.Equal(t, core.KindUnknown, core.KindOf(dup))
	assert.Contains(t, dup.Error(), "duplicate key")
	assert.Equal(t, "DB001", core.MapError(dup).Code)

	fk := classifyError("insert row", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: codeForeignKeyViolation}))
	assert.ErrorIs(t, fk, core.ErrNotFound)

	boom := errors.New("connection refused")
	other := classifyError("list grids", boom)
	assert.ErrorIs(t, other, boom)
	assert.Equal(t, "list grids: connection refused", other.Error())
}

func TestWhereBuilder(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		where, args := newWhereBuilder().build()
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("equality and range", func(t *testing.T) {
		wb := newWhereBuilder()
		wb.add("grid_id", uuid.Nil)
		wb.add("action", "import")
		wb.addTimestampRange("created_at", time.Unix(0, 0), time.Time{})

		where, args := wb.build()
		assert.Equal(t, " WHERE grid_id = $1 AND action = $2 AND created_at >= $3", where)
		require.Len(t, args, 3)
		assert.Equal(t, 4, wb.nextArg())
	})
}

func TestConvertHelpers(t *testing.T) {
	assert.False(t, toPgText("  ").Valid)
	assert.Equal(t, "x", toPgText("x").String)

	assert.False(t, toPgUUID(uuid.Nil).Valid)
	id := uuid.New()
	assert.Equal(t, id, fromPgUUID(toPgUUID(id)))

	assert.False(t, toPgInt4(0).Valid)
	assert.Equal(t, int32(3), toPgInt4(3).Int32)

	assert.Nil(t, toInet("not-an-ip"))
	require.NotNil(t, toInet("10.0.0.1"))
	assert.Equal(t, "10.0.0.1", toInet(" 10.0.0.1 ").String())
}

func TestEncodeValuesKeepsOrder(t *testing.T) {
	s, err := encodeValues(core.NewValues("Zeta", "1", "Alpha", "2"))
	require.NoError(t, err)
	assert.Equal(t, `{"Zeta":"1","Alpha":"2"}`, s)
}
