package config

import (
	"ormcore/changefeed"
	"ormcore/logging"
)

// 变更通知驱动
const (
	DriverNone  = "none"
	DriverNATS  = "nats"
	DriverRedis = "redis"
)

// ChangeFeedConfig 更新提交后的变更通知
type ChangeFeedConfig struct {
	Driver string      `mapstructure:"driver"`
	NATS   NATSConfig  `mapstructure:"nats"`
	Redis  RedisConfig `mapstructure:"redis"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Stream        string `mapstructure:"stream"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// Publisher 按驱动创建发布者；none 返回 NoopPublisher
func (c ChangeFeedConfig) Publisher(logger logging.Logger) (changefeed.IPublisher, error) {
	switch c.Driver {
	case DriverNATS:
		return changefeed.NewNATSPublisher(changefeed.NATSConfig{
			URL:           c.NATS.URL,
			Stream:        c.NATS.Stream,
			SubjectPrefix: c.NATS.SubjectPrefix,
			Logger:        logger,
		})
	case DriverRedis:
		return changefeed.NewRedisStreamPublisher(changefeed.RedisConfig{
			Addr:     c.Redis.Addr,
			Username: c.Redis.Username,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			Stream:   c.Redis.Stream,
			MaxLen:   c.Redis.MaxLen,
			Logger:   logger,
		})
	default:
		return changefeed.NoopPublisher{}, nil
	}
}
