package basic

import (
	"context"
	"database/sql"
	"errors"

	core "ormcore/data/db"
	"ormcore/data/db/dialect"
)

// ErrNestedTx 事务内再次 Begin；嵌套由 core.InTx 复用外层事务处理
var ErrNestedTx = errors.New("basic: nested transactions are not supported")

// querier *sql.DB 与 *sql.Tx 共有的方法
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// runner 按方言改写占位符后执行
type runner struct {
	q       querier
	driver  string
	dialect dialect.Dialect
}

func (r runner) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	rows, err := r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (r runner) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	return &Row{row: r.q.QueryRowContext(ctx, r.dialect.Rebind(query), args...)}
}

func (r runner) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

// GetDialectName 实现 core.IDialectNameProvider，返回底层 driver 名
func (r runner) GetDialectName() string { return r.driver }

// Tx 同时实现 core.ITransaction 与 core.IDatabase，执行器在事务内外使用同一套接口
type Tx struct {
	runner
	db *sql.DB
	tx *sql.Tx
}

func (t *Tx) Begin(context.Context) (core.ITransaction, error) { return nil, ErrNestedTx }

func (t *Tx) BeginTx(context.Context, *sql.TxOptions) (core.ITransaction, error) {
	return nil, ErrNestedTx
}

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }

// Close 不结束事务，由 Commit 或 Rollback 结束
func (t *Tx) Close() error { return nil }
func (t *Tx) Raw() any     { return t.tx }

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }
