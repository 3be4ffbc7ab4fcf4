// Package config 加载 ormcore 的分层配置：默认值、配置文件、ORMCORE_ 前缀环境变量。
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	dbcore "ormcore/data/db"
	"ormcore/data/db/basic"
	"ormcore/data/db/mysql"
	"ormcore/data/db/postgres"
	"ormcore/data/orm"
	"ormcore/data/orm/path"
	"ormcore/data/orm/scalar"
	"ormcore/data/orm/server"
	"ormcore/logging"
)

// EnvPrefix 环境变量前缀，键中的 "." 替换为 "_"，例如 ORMCORE_ORM_COMPARE_DETACHED
const EnvPrefix = "ORMCORE"

// Config 顶层配置
type Config struct {
	ORM        ORMConfig        `mapstructure:"orm"`
	Database   dbcore.DBConfig  `mapstructure:"database"`
	Log        logging.Config   `mapstructure:"log"`
	ChangeFeed ChangeFeedConfig `mapstructure:"changefeed"`
}

// ORMConfig 部分更新的默认行为
type ORMConfig struct {
	UpdateNullProperties  bool           `mapstructure:"update_null_properties"`
	DeleteMissingChildren bool           `mapstructure:"delete_missing_children"`
	InsertIfNew           bool           `mapstructure:"insert_if_new"`
	CompareDetached       bool           `mapstructure:"compare_detached"`
	PathCacheSize         int            `mapstructure:"path_cache_size"`
	TimeZone              *time.Location `mapstructure:"time_zone"`
}

// UpdateOptions 转换为显式的 orm.UpdateOptions
func (c ORMConfig) UpdateOptions() orm.UpdateOptions {
	return orm.UpdateOptions{
		UpdateNullProperties:  c.UpdateNullProperties,
		DeleteMissingChildren: c.DeleteMissingChildren,
		InsertIfNew:           c.InsertIfNew,
	}
}

// Timestamp 以配置时区解释的时间戳类型，声明模型属性时使用
func (c ORMConfig) Timestamp() scalar.DateTimeType {
	return scalar.NewTimestamp(c.TimeZone)
}

// Date 以配置时区解释的日期类型
func (c ORMConfig) Date() scalar.DateTimeType {
	return scalar.NewDate(c.TimeZone)
}

// ServerOptions 部分更新服务的默认选项与游离实例比较开关
func (c ORMConfig) ServerOptions() []server.Option {
	return []server.Option{
		server.WithDefaultOptions(c.UpdateOptions()),
		server.WithCompareDetached(c.CompareDetached),
	}
}

// PathCache 按配置容量创建路径缓存
func (c ORMConfig) PathCache() *path.Cache {
	return path.NewCache(c.PathCacheSize)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("orm.update_null_properties", false)
	v.SetDefault("orm.delete_missing_children", true)
	v.SetDefault("orm.insert_if_new", false)
	v.SetDefault("orm.compare_detached", true)
	v.SetDefault("orm.path_cache_size", 1024)
	v.SetDefault("orm.time_zone", "UTC")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.database", ":memory:")
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")
	v.SetDefault("database.conn_max_idle_time", "0s")
	v.SetDefault("database.ssl_mode", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("log.dev", false)

	v.SetDefault("changefeed.driver", DriverNone)
	v.SetDefault("changefeed.nats.url", "")
	v.SetDefault("changefeed.nats.stream", "")
	v.SetDefault("changefeed.nats.subject_prefix", "")
	v.SetDefault("changefeed.redis.addr", "")
	v.SetDefault("changefeed.redis.username", "")
	v.SetDefault("changefeed.redis.password", "")
	v.SetDefault("changefeed.redis.db", 0)
	v.SetDefault("changefeed.redis.stream", "")
	v.SetDefault("changefeed.redis.max_len", 0)
}

// Load 读取配置；file 为空时只使用默认值与环境变量
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		stringToLocationHook(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func stringToLocationHook() mapstructure.DecodeHookFuncType {
	locType := reflect.TypeOf(&time.Location{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != locType {
			return data, nil
		}
		name := strings.TrimSpace(data.(string))
		if name == "" {
			return time.UTC, nil
		}
		return time.LoadLocation(name)
	}
}

// Validate 检查取值范围
func (c *Config) Validate() error {
	var errs []error
	if c.ORM.PathCacheSize < 0 {
		errs = append(errs, fmt.Errorf("orm.path_cache_size must be >= 0, got %d", c.ORM.PathCacheSize))
	}
	if c.ORM.TimeZone == nil {
		c.ORM.TimeZone = time.UTC
	}
	switch c.Database.Driver {
	case "sqlite", postgres.DriverName, mysql.DriverName:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q not supported", c.Database.Driver))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.ChangeFeed.Driver {
	case DriverNone, DriverNATS, DriverRedis:
	default:
		errs = append(errs, fmt.Errorf("changefeed.driver %q not supported", c.ChangeFeed.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// OpenDatabase 按 database.driver 打开连接
func (c *Config) OpenDatabase() (dbcore.IDatabase, error) {
	switch c.Database.Driver {
	case postgres.DriverName:
		return postgres.New(c.Database)
	case mysql.DriverName:
		return mysql.New(c.Database)
	default:
		return basic.New(c.Database)
	}
}

// NewLogger 按 log 配置创建 zap 日志
func (c *Config) NewLogger(name string) (*logging.ZapLogger, error) {
	return logging.NewZap(name, c.Log)
}
