package sql

import (
	"context"
	"database/sql"
	"strings"

	core "ormcore/data/db"
	"ormcore/data/db/dialect"
)

// base 各构建器共享的目标表与 WHERE 条件
type base struct {
	db      core.IDatabase
	dialect dialect.Dialect
	table   string

	conds    []string
	condArgs []any
}

func (b *base) where(cond string, args []any) {
	if cond == "" {
		return
	}
	b.conds = append(b.conds, cond)
	b.condArgs = append(b.condArgs, args...)
}

func (b *base) writeTable(sb *strings.Builder) {
	mustSafe("table", b.table)
	sb.WriteString(b.dialect.QuoteIdentifier(b.table))
}

func (b *base) writeWhere(sb *strings.Builder, args []any) []any {
	if len(b.conds) == 0 {
		return args
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(b.conds, " AND "))
	return append(args, b.condArgs...)
}

func (b *base) exec(ctx context.Context, q string, args []any) (sql.Result, error) {
	if b.db == nil {
		return nil, ErrNoDatabase
	}
	return b.db.Exec(ctx, q, args...)
}

type selectBuilder struct {
	base
	cols  []string
	limit int
}

func (b *selectBuilder) From(table string) ISelectBuilder {
	b.table = table
	return b
}

func (b *selectBuilder) Where(cond string, args ...any) ISelectBuilder {
	b.where(cond, args)
	return b
}

func (b *selectBuilder) Limit(n int) ISelectBuilder {
	b.limit = n
	return b
}

func (b *selectBuilder) Build() (string, []any) {
	cols := make([]string, len(b.cols))
	for i, c := range b.cols {
		// 表达式（COUNT(*) 等）原样保留
		if isSafeIdentifier(c) {
			c = b.dialect.QuoteIdentifier(c)
		}
		cols[i] = c
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(" FROM ")
	b.writeTable(&sb)
	args := b.writeWhere(&sb, make([]any, 0, len(b.condArgs)+1))
	if b.limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, b.limit)
	}
	return sb.String(), args
}

func (b *selectBuilder) Query(ctx context.Context) (core.IRows, error) {
	if b.db == nil {
		return nil, ErrNoDatabase
	}
	q, args := b.Build()
	return b.db.Query(ctx, q, args...)
}

func (b *selectBuilder) QueryRow(ctx context.Context) core.IRow {
	q, args := b.Build()
	return b.db.QueryRow(ctx, q, args...)
}

type insertBuilder struct {
	base
	columns   []string
	rows      [][]any
	returning string
}

func (b *insertBuilder) Columns(cols ...string) IInsertBuilder {
	b.columns = cols
	return b
}

func (b *insertBuilder) Values(vals ...any) IInsertBuilder {
	if len(vals) > 0 {
		b.rows = append(b.rows, vals)
	}
	return b
}

func (b *insertBuilder) Returning(col string) IInsertBuilder {
	if b.dialect.SupportsReturning() {
		mustSafe("column", col)
		b.returning = col
	}
	return b
}

func (b *insertBuilder) Build() (string, []any) {
	if len(b.columns) == 0 || len(b.rows) == 0 {
		panic("sql: insert into " + b.table + " needs columns and at least one row")
	}

	quoted := make([]string, len(b.columns))
	for i, col := range b.columns {
		mustSafe("column", col)
		quoted[i] = b.dialect.QuoteIdentifier(col)
	}
	row := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(b.columns)), ", ") + ")"

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	b.writeTable(&sb)
	sb.WriteString(" (" + strings.Join(quoted, ", ") + ") VALUES ")

	args := make([]any, 0, len(b.rows)*len(b.columns))
	for i, vals := range b.rows {
		if len(vals) != len(b.columns) {
			panic("sql: insert into " + b.table + " has a row whose length differs from columns")
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(row)
		args = append(args, vals...)
	}
	if b.returning != "" {
		sb.WriteString(" RETURNING ")
		sb.WriteString(b.dialect.QuoteIdentifier(b.returning))
	}
	return sb.String(), args
}

func (b *insertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.exec(ctx, q, args)
}

type updateBuilder struct {
	base
	sets    []string
	setArgs []any
}

func (b *updateBuilder) Set(col string, val any) IUpdateBuilder {
	if col == "" {
		return b
	}
	return b.SetExpr(Eq(b.dialect, col), val)
}

func (b *updateBuilder) SetExpr(expr string, args ...any) IUpdateBuilder {
	if expr != "" {
		b.sets = append(b.sets, expr)
		b.setArgs = append(b.setArgs, args...)
	}
	return b
}

func (b *updateBuilder) Where(cond string, args ...any) IUpdateBuilder {
	b.where(cond, args)
	return b
}

func (b *updateBuilder) Empty() bool { return len(b.sets) == 0 }

func (b *updateBuilder) Build() (string, []any) {
	if b.Empty() {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("UPDATE ")
	b.writeTable(&sb)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(b.sets, ", "))

	args := make([]any, 0, len(b.setArgs)+len(b.condArgs))
	args = b.writeWhere(&sb, append(args, b.setArgs...))
	return sb.String(), args
}

func (b *updateBuilder) Exec(ctx context.Context) (sql.Result, error) {
	if b.Empty() {
		return nil, ErrEmptyUpdate
	}
	q, args := b.Build()
	return b.exec(ctx, q, args)
}

type deleteBuilder struct {
	base
}

func (b *deleteBuilder) Where(cond string, args ...any) IDeleteBuilder {
	b.where(cond, args)
	return b
}

func (b *deleteBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	b.writeTable(&sb)
	args := b.writeWhere(&sb, make([]any, 0, len(b.condArgs)))
	return sb.String(), args
}

func (b *deleteBuilder) Exec(ctx context.Context) (sql.Result, error) {
	q, args := b.Build()
	return b.exec(ctx, q, args)
}
