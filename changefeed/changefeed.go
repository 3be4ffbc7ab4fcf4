// Package changefeed 发布已持久化变更的通知。
//
// 更新成功提交后由 server 发布一条 Event；发布失败只记录日志，不影响已提交的写入。
package changefeed

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind 变更类型
type Kind string

const (
	KindUpdate Kind = "update"
	KindInsert Kind = "insert"
)

// Event 一次已提交的写入
type Event struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Model    string `json:"model"`
	Table    string `json:"table"`
	Identity any    `json:"identity"`
	// Columns 写入的数据列，不含版本列
	Columns []string `json:"columns,omitempty"`
	Version any      `json:"version,omitempty"`
	// Children 有子记录写入或删除的一对多属性
	Children  []string  `json:"children,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent 生成带唯一 ID 与当前时间的事件
func NewEvent(kind Kind, model, table string, identity any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Model:     model,
		Table:     table,
		Identity:  identity,
		Timestamp: time.Now().UTC(),
	}
}

// Subject 事件主题后缀，形如 customer.update
func (e Event) Subject() string {
	return strings.ToLower(e.Model) + "." + string(e.Kind)
}

// Encode 序列化事件
func Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode 反序列化事件；数字主键解码为 json.Number 以免精度丢失
func Decode(data []byte) (Event, error) {
	var e Event
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// IPublisher 变更通知发布者
type IPublisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NoopPublisher 丢弃所有事件
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

// MemoryPublisher 在内存中记录事件，用于测试与嵌入式场景，可并发使用
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

// NewMemoryPublisher 创建内存发布者；err 非 nil 时每次发布都返回该错误
func NewMemoryPublisher(err error) *MemoryPublisher {
	return &MemoryPublisher{err: err}
}

func (p *MemoryPublisher) Publish(_ context.Context, e Event) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events 已发布事件的副本
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}
