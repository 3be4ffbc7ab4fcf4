// Package db 执行器依赖的数据库抽象。
//
// 驱动接入在子包中：basic 基于 database/sql，postgres 走 pgx，mysql 走
// go-sql-driver；测试使用内存 sqlite。
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// IDatabase 连接或事务上的语句执行。语句使用 ? 占位符，由实现按方言改写。
type IDatabase interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	Ping(ctx context.Context) error
	Close() error

	// Raw 底层 *sql.DB 或 *sql.Tx
	Raw() any
}

// IDialectNameProvider 可选，dialect.FromDatabase 据此推断方言
type IDialectNameProvider interface {
	GetDialectName() string
}

type ITransaction interface {
	IDatabase
	Commit() error
	Rollback() error
}

type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
	Columns() ([]string, error)
	ColumnTypes() ([]*sql.ColumnType, error)
}

type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 连接配置，Driver 取 sqlite、pgx 或 mysql。
// sqlite 下 Database 直接作为 DSN。
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// NewDatabaseFunc 由驱动子包提供
type NewDatabaseFunc func(config DBConfig) (IDatabase, error)

// InTx 在事务中执行 fn，fn 出错或 panic 时回滚，否则提交。
// d 本身已是事务时直接复用。
func InTx(ctx context.Context, d IDatabase, fn func(tx IDatabase) error) (err error) {
	if _, ok := d.(ITransaction); ok {
		return fn(d)
	}
	tx, err := d.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}
