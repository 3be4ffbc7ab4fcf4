// Package postgres 通过 pgx 的 database/sql 适配接入 Postgres。
package postgres

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	core "ormcore/data/db"
	"ormcore/data/db/basic"
)

// DriverName pgx stdlib 注册的 driver 名
const DriverName = "pgx"

// DSN 由配置拼出 postgres:// 连接串
func DSN(config core.DBConfig) string {
	host := config.Host
	if host == "" {
		host = "localhost"
	}
	port := config.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + config.Database,
	}
	if config.Username != "" {
		u.User = url.UserPassword(config.Username, config.Password)
	}
	q := url.Values{}
	if config.SSLMode != "" {
		q.Set("sslmode", config.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseConfig 解析连接配置但不建立连接
func ParseConfig(config core.DBConfig) (*pgx.ConnConfig, error) {
	cc, err := pgx.ParseConfig(DSN(config))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	return cc, nil
}

// New 打开 Postgres 连接池，返回的 IDatabase 方言为 postgres（? 占位符自动改写为 $n）
func New(config core.DBConfig) (core.IDatabase, error) {
	cc, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	return basic.Wrap(stdlib.OpenDB(*cc), DriverName, config), nil
}

var _ core.NewDatabaseFunc = New
