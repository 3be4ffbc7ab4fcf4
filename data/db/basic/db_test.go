package basic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "ormcore/data/db"
	"ormcore/data/db/dialect"
	dbsql "ormcore/data/db/sql"
)

func newMemoryDB(t *testing.T) *DB {
	t.Helper()
	d, err := New(core.DBConfig{Driver: "sqlite", Database: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	db := d.(*DB)
	require.NoError(t, db.ExecScript(context.Background(), `
		CREATE TABLE o_country (code TEXT PRIMARY KEY, name TEXT);
		CREATE TABLE counter (id INTEGER PRIMARY KEY, n INTEGER NOT NULL);
	`))
	return db
}

func TestDB_DialectAndPing(t *testing.T) {
	db := newMemoryDB(t)
	assert.Equal(t, dialect.NameSQLite, dialect.FromDatabase(db).Name())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestInTx_CommitAndRollback(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)

	err := core.InTx(ctx, db, func(tx core.IDatabase) error {
		_, err := tx.Exec(ctx, "INSERT INTO counter (id, n) VALUES (?, ?)", 1, 10)
		return err
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = core.InTx(ctx, db, func(tx core.IDatabase) error {
		if _, err := tx.Exec(ctx, "UPDATE counter SET n = ? WHERE id = ?", 99, 1); err != nil {
			return err
		}
		// 已在事务中时复用
		return core.InTx(ctx, tx, func(inner core.IDatabase) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, db.QueryRow(ctx, "SELECT n FROM counter WHERE id = ?", 1).Scan(&n))
	assert.Equal(t, 10, n)
}

func TestTx_NestedBeginUnsupported(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	tx, err := db.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Begin(ctx)
	assert.ErrorIs(t, err, ErrNestedTx)
	assert.Equal(t, "sqlite", tx.(core.IDialectNameProvider).GetDialectName())
}

func TestBuilder_ExecAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	s := dbsql.New(db)

	_, err := s.InsertInto("o_country").Columns("code", "name").Values("DE", "Germany").Values("FR", "France").Exec(ctx)
	require.NoError(t, err)
	res, err := s.Update("o_country").Set("name", "Deutschland").Where(dbsql.Eq(s.Dialect(), "code"), "DE").Exec(ctx)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var name string
	require.NoError(t, s.Select("name").From("o_country").Where(dbsql.Eq(s.Dialect(), "code"), "DE").QueryRow(ctx).Scan(&name))
	assert.Equal(t, "Deutschland", name)

	cond, args := dbsql.NotIn(s.Dialect(), "code", []any{"DE"})
	_, err = s.DeleteFrom("o_country").Where(cond, args...).Exec(ctx)
	require.NoError(t, err)
	rows, err := s.Select("code").From("o_country").Query(ctx)
	require.NoError(t, err)
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var c string
		require.NoError(t, rows.Scan(&c))
		codes = append(codes, c)
	}
	assert.Equal(t, []string{"DE"}, codes)
}

func TestRows_Columns(t *testing.T) {
	ctx := context.Background()
	db := newMemoryDB(t)
	_, err := db.Exec(ctx, "INSERT INTO o_country (code, name) VALUES (?, ?)", "NZ", "New Zealand")
	require.NoError(t, err)

	rows, err := db.Query(ctx, "SELECT code, name FROM o_country")
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "name"}, cols)
	require.True(t, rows.Next())
	var code, name string
	require.NoError(t, rows.Scan(&code, &name))
	assert.Equal(t, "NZ", code)
	assert.NoError(t, rows.Err())
}
