// Package basic 基于 database/sql 的 IDatabase 实现
package basic

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	core "ormcore/data/db"
	"ormcore/data/db/dialect"
)

// DB 基于 database/sql 的最小实现，满足 core.IDatabase 抽象
type DB struct {
	runner
	db *sql.DB
}

// New 根据 core.DBConfig 创建基础数据库实例
//
// 调用方必须确保所配置的 Driver 已通过空导入注册（例如 `_ "modernc.org/sqlite"`），
// sqlite 场景下 Database 即 DSN（":memory:" 或文件路径）。
func New(config core.DBConfig) (core.IDatabase, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}
	return Open(driver, config.Database, config)
}

// Open 使用显式 DSN 打开连接并应用连接池配置
func Open(driver, dsn string, config core.DBConfig) (*DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	d := Wrap(db, driver, config)
	if d.dialect.Name() == dialect.NameSQLite && isMemoryDSN(dsn) {
		// 内存库每个连接各自独立，只能使用单连接
		db.SetMaxOpenConns(1)
	}
	return d, nil
}

// Wrap 包装已打开的 *sql.DB（例如 pgx stdlib.OpenDB 的返回值）
func Wrap(db *sql.DB, driver string, config core.DBConfig) *DB {
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}
	return &DB{runner: runner{q: db, driver: driver, dialect: dialect.New(driver)}, db: db}
}

func isMemoryDSN(dsn string) bool {
	return dsn == "" || strings.Contains(dsn, ":memory:")
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{runner: runner{q: tx, driver: d.driver, dialect: d.dialect}, db: d.db, tx: tx}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// ExecScript 依次执行以分号分隔的 DDL（用于测试环境建表）
func (d *DB) ExecScript(ctx context.Context, script string) error {
	if d.db == nil {
		return fmt.Errorf("db is nil")
	}
	for _, stmt := range splitStatements(script) {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
