package changefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"

	"ormcore/logging"
)

// jetStream 发布所需的 JetStream 子集，便于测试替换
type jetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// streamManager 流管理所需的 JetStream 子集
type streamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// NATSConfig NATS JetStream 发布配置
type NATSConfig struct {
	URL           string
	Conn          *nats.Conn
	Stream        string
	SubjectPrefix string
	Logger        logging.Logger
}

// NATSPublisher 以 JetStream 发布变更事件，事件 ID 作为去重 MsgId
type NATSPublisher struct {
	cfg      NATSConfig
	js       jetStream
	conn     *nats.Conn
	ownsConn bool
	logger   logging.Logger
}

func (c *NATSConfig) defaults() {
	if c.Stream == "" {
		c.Stream = "ORM_CHANGES"
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "orm.changes."
	}
	if !strings.HasSuffix(c.SubjectPrefix, ".") {
		c.SubjectPrefix += "."
	}
	if c.Logger == nil {
		c.Logger = logging.GetLogger().WithFields(logging.String("component", "changefeed.nats"))
	}
}

// NewNATSPublisher 连接 NATS 并确保流存在
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	cfg.defaults()
	conn := cfg.Conn
	owns := false
	if conn == nil {
		if cfg.URL == "" {
			return nil, errors.New("changefeed: nats url or conn required")
		}
		var err error
		conn, err = nats.Connect(cfg.URL, nats.Name("ormcore-changefeed"))
		if err != nil {
			return nil, err
		}
		owns = true
	}
	js, err := conn.JetStream()
	if err != nil {
		if owns {
			conn.Close()
		}
		return nil, err
	}
	if err := ensureStream(js, cfg); err != nil {
		if owns {
			conn.Close()
		}
		return nil, err
	}
	p := newNATSPublisher(cfg, js)
	p.conn = conn
	p.ownsConn = owns
	return p, nil
}

// ensureStream 流不存在时创建；其余查询错误（JetStream 未启用、超时等）直接返回
func ensureStream(js streamManager, cfg NATSConfig) error {
	_, err := js.StreamInfo(cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("changefeed: stream %s info: %w", cfg.Stream, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  []string{cfg.SubjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
	})
	if err != nil {
		return fmt.Errorf("changefeed: add stream %s: %w", cfg.Stream, err)
	}
	return nil
}

func newNATSPublisher(cfg NATSConfig, js jetStream) *NATSPublisher {
	cfg.defaults()
	return &NATSPublisher{cfg: cfg, js: js, logger: cfg.Logger}
}

func (p *NATSPublisher) subject(e Event) string {
	return p.cfg.SubjectPrefix + e.Subject()
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	data, err := Encode(e)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(p.subject(e), data, nats.Context(ctx), nats.MsgId(e.ID))
	if err != nil {
		return err
	}
	p.logger.Debug(ctx, "change published",
		logging.String("subject", p.subject(e)),
		logging.String("event_id", e.ID))
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.ownsConn && p.conn != nil {
		return p.conn.Drain()
	}
	return nil
}
