// Package mysql 接入 MySQL：database/sql 连接（go-sql-driver）与 gorm 方言。
package mysql

import (
	"context"
	"net"
	"strconv"
	"time"

	driver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	core "ormcore/data/db"
	"ormcore/data/db/basic"
	"ormcore/logging"
)

// DriverName go-sql-driver 注册的 driver 名
const DriverName = "mysql"

// DSN 由配置拼出连接串，时间列按 UTC 解析为 time.Time。
// RowsAffected 返回匹配行数而不是实际改变的行数，写入相同值的 UPDATE 不会被当作行不存在
func DSN(config core.DBConfig) string {
	host := config.Host
	if host == "" {
		host = "localhost"
	}
	port := config.Port
	if port == 0 {
		port = 3306
	}
	c := driver.NewConfig()
	c.User = config.Username
	c.Passwd = config.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.DBName = config.Database
	c.ParseTime = true
	c.Loc = time.UTC
	c.ClientFoundRows = true
	return c.FormatDSN()
}

// New 打开 database/sql 连接池
func New(config core.DBConfig) (core.IDatabase, error) {
	return basic.Open(DriverName, DSN(config), config)
}

var _ core.NewDatabaseFunc = New

// OpenGorm 打开 gorm 连接并应用连接池配置
func OpenGorm(config core.DBConfig, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(gormmysql.Open(DSN(config)), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	logging.GetLogger().Info(context.Background(), "open db success",
		logging.String("host", config.Host),
		logging.Int("port", config.Port),
		logging.String("db", config.Database),
		logging.String("user", config.Username))
	return db, nil
}

// GormDialector 在已有连接上构造 MySQL 方言，不查询服务端版本
func GormDialector(conn gorm.ConnPool) gorm.Dialector {
	return gormmysql.New(gormmysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	})
}
