// Package sql 方言感知的 SQL 语句构建器
//
// 构建器只负责拼接语句与参数，占位符统一为 "?"，执行前由方言 Rebind。
// 通过 ForDialect 创建的实例只能 Build，不能 Exec。
package sql

import (
	"context"
	"database/sql"
	"errors"

	core "ormcore/data/db"
	"ormcore/data/db/dialect"
)

var (
	// ErrEmptyUpdate UPDATE 没有任何 SET 片段
	ErrEmptyUpdate = errors.New("sql: update has no assignments")
	// ErrNoDatabase 构建器未绑定数据库
	ErrNoDatabase = errors.New("sql: builder has no database")
)

// ISql 语句构建入口
type ISql interface {
	Select(columns ...string) ISelectBuilder
	InsertInto(table string) IInsertBuilder
	Update(table string) IUpdateBuilder
	DeleteFrom(table string) IDeleteBuilder

	Dialect() dialect.Dialect
}

// ISelectBuilder 单表 SELECT，条件以 AND 连接
type ISelectBuilder interface {
	From(table string) ISelectBuilder
	Where(cond string, args ...any) ISelectBuilder
	Limit(n int) ISelectBuilder
	Build() (query string, args []any)
	Query(ctx context.Context) (core.IRows, error)
	QueryRow(ctx context.Context) core.IRow
}

// IInsertBuilder 单行或多行 INSERT
type IInsertBuilder interface {
	Columns(cols ...string) IInsertBuilder
	Values(vals ...any) IInsertBuilder
	// Returning 方言支持时追加 RETURNING 子句，否则忽略
	Returning(col string) IInsertBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

// IUpdateBuilder 构建 UPDATE 语句
type IUpdateBuilder interface {
	Set(column string, val any) IUpdateBuilder
	// SetExpr 追加原始 SET 片段（例如 "version" = "version" + 1），表达式由调用方保证
	SetExpr(expr string, args ...any) IUpdateBuilder
	Where(cond string, args ...any) IUpdateBuilder
	Empty() bool
	// Build 没有 SET 片段时返回空语句
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

// IDeleteBuilder 构建 DELETE 语句
type IDeleteBuilder interface {
	Where(cond string, args ...any) IDeleteBuilder
	Build() (query string, args []any)
	Exec(ctx context.Context) (sql.Result, error)
}

type sqlImpl struct {
	db      core.IDatabase
	dialect dialect.Dialect
}

// New 创建绑定数据库的 ISql，方言从数据库推断
func New(db core.IDatabase) ISql {
	return &sqlImpl{db: db, dialect: dialect.FromDatabase(db)}
}

// ForDialect 创建只用于构建语句的 ISql
func ForDialect(d dialect.Dialect) ISql {
	return &sqlImpl{dialect: d}
}

func (s *sqlImpl) Dialect() dialect.Dialect { return s.dialect }

func (s *sqlImpl) base(table string) base {
	return base{db: s.db, dialect: s.dialect, table: table}
}

func (s *sqlImpl) Select(columns ...string) ISelectBuilder {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &selectBuilder{base: s.base(""), cols: columns}
}

func (s *sqlImpl) InsertInto(table string) IInsertBuilder {
	return &insertBuilder{base: s.base(table)}
}

func (s *sqlImpl) Update(table string) IUpdateBuilder {
	return &updateBuilder{base: s.base(table)}
}

func (s *sqlImpl) DeleteFrom(table string) IDeleteBuilder {
	return &deleteBuilder{base: s.base(table)}
}
