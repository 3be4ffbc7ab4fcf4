package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"ormcore/logging"
)

// streamClient 发布所需的 go-redis 命令子集，便于测试替换
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// RedisConfig Redis Streams 发布配置
type RedisConfig struct {
	Client   redis.UniversalClient
	Addr     string
	Username string
	Password string
	DB       int
	Stream   string
	// MaxLen 流的近似最大长度，0 表示不裁剪
	MaxLen int64
	Logger logging.Logger
}

// RedisStreamPublisher 以 XADD 写入变更事件
type RedisStreamPublisher struct {
	cfg       RedisConfig
	client    streamClient
	ownClient bool
	logger    logging.Logger
}

// NewRedisStreamPublisher 创建 Redis Streams 发布者
func NewRedisStreamPublisher(cfg RedisConfig) (*RedisStreamPublisher, error) {
	var cl streamClient
	own := false
	if cfg.Client != nil {
		cl = cfg.Client
	} else {
		if cfg.Addr == "" {
			return nil, errors.New("changefeed: redis addr or client required")
		}
		cl = redis.NewClient(&redis.Options{Addr: cfg.Addr, Username: cfg.Username, Password: cfg.Password, DB: cfg.DB})
		own = true
	}
	p := newRedisStreamPublisher(cfg, cl)
	p.ownClient = own
	return p, nil
}

func newRedisStreamPublisher(cfg RedisConfig, cl streamClient) *RedisStreamPublisher {
	if cfg.Stream == "" {
		cfg.Stream = "orm:changes"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "changefeed.redis"))
	}
	return &RedisStreamPublisher{cfg: cfg, client: cl, logger: cfg.Logger}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, e Event) error {
	values, err := encodeValues(e)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: p.cfg.Stream, Values: values}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return err
	}
	p.logger.Debug(ctx, "change published",
		logging.String("stream", p.cfg.Stream),
		logging.String("entry_id", id),
		logging.String("event_id", e.ID))
	return nil
}

func (p *RedisStreamPublisher) Close() error {
	if p.ownClient {
		return p.client.Close()
	}
	return nil
}

// encodeValues 流条目字段：subject 便于消费端过滤，payload 为完整事件
func encodeValues(e Event) (map[string]any, error) {
	payload, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":        e.ID,
		"subject":   e.Subject(),
		"timestamp": e.Timestamp.UnixNano(),
		"payload":   string(payload),
	}, nil
}

// DecodeEntry 从流条目还原事件，供消费端使用
func DecodeEntry(msg redis.XMessage) (Event, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return Event{}, fmt.Errorf("changefeed: entry %s has no payload", msg.ID)
	}
	e, err := Decode([]byte(raw))
	if err != nil {
		return Event{}, err
	}
	if e.Timestamp.IsZero() {
		if ts, ok := msg.Values["timestamp"].(string); ok {
			if n, err := strconv.ParseInt(ts, 10, 64); err == nil {
				e.Timestamp = time.Unix(0, n).UTC()
			}
		}
	}
	return e, nil
}
