// Package codec 实体的 JSON 编解码。
//
// 只输出已加载的属性；带继承的模型写入鉴别值，解码时按鉴别值选择具体子类型。
// 时间戳类属性编码为 epoch 毫秒，解码时经路径的 ParseDateTime 还原；
// 日期与时刻编码为字符串。
package codec

import (
	"bytes"
	stdjson "encoding/json"
	"time"

	jsoniter "github.com/json-iterator/go"

	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/path"
	"ormcore/data/orm/scalar"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultDiscriminatorKey 鉴别值在 JSON 中的键名
const DefaultDiscriminatorKey = "dtype"

// Codec 实体 JSON 编解码器，可并发使用
type Codec struct {
	paths            *path.Cache
	discriminatorKey string
}

// Option 配置 Codec
type Option func(*Codec)

// WithPathCache 共享路径缓存
func WithPathCache(c *path.Cache) Option {
	return func(codec *Codec) {
		if c != nil {
			codec.paths = c
		}
	}
}

// WithDiscriminatorKey 自定义鉴别值键名
func WithDiscriminatorKey(key string) Option {
	return func(codec *Codec) {
		if key != "" {
			codec.discriminatorKey = key
		}
	}
}

// New 创建 Codec
func New(opts ...Option) *Codec {
	c := &Codec{discriminatorKey: DefaultDiscriminatorKey}
	for _, opt := range opts {
		opt(c)
	}
	if c.paths == nil {
		c.paths = path.NewCache(1024)
	}
	return c
}

// Marshal 编码单个实例
func (c *Codec) Marshal(b bean.IBean) ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)
	c.writeBean(stream, b, map[bean.IBean]bool{})
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// MarshalList 编码实例列表
func (c *Codec) MarshalList(list []bean.IBean) ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)
	stream.WriteArrayStart()
	for i, b := range list {
		if i > 0 {
			stream.WriteMore()
		}
		c.writeBean(stream, b, map[bean.IBean]bool{})
	}
	stream.WriteArrayEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// writeBean 已在当前路径上出现的实例只写主键，避免双向关联无限展开
func (c *Codec) writeBean(stream *jsoniter.Stream, b bean.IBean, visiting map[bean.IBean]bool) {
	if scalar.IsNil(b) {
		stream.WriteNil()
		return
	}
	model := b.Model()
	stream.WriteObjectStart()
	first := true
	field := func(name string) {
		if !first {
			stream.WriteMore()
		}
		first = false
		stream.WriteObjectField(name)
	}

	if model.DiscriminatorColumn != "" {
		field(c.discriminatorKey)
		stream.WriteString(model.DiscriminatorValue)
	}
	if visiting[b] {
		if id := model.Identity(); id != nil {
			field(id.Name)
			writeScalar(stream, b.PropertyValue(id))
		}
		stream.WriteObjectEnd()
		return
	}
	visiting[b] = true
	defer delete(visiting, b)

	state := b.LoadState()
	for _, p := range model.Properties() {
		if !state.IsLoadedIndex(p.Index()) {
			continue
		}
		v := b.PropertyValue(p)
		field(p.Name)
		switch p.Kind {
		case orm.KindScalar:
			writeScalar(stream, v)
		case orm.KindToOne:
			ref, _ := v.(bean.IBean)
			c.writeBean(stream, ref, visiting)
		case orm.KindToMany:
			coll, _ := v.(*bean.Collection)
			if coll == nil {
				stream.WriteNil()
				continue
			}
			stream.WriteArrayStart()
			for i, item := range coll.Items() {
				if i > 0 {
					stream.WriteMore()
				}
				c.writeBean(stream, item, visiting)
			}
			stream.WriteArrayEnd()
		}
	}
	stream.WriteObjectEnd()
}

func writeScalar(stream *jsoniter.Stream, v any) {
	if scalar.IsNil(v) {
		stream.WriteNil()
		return
	}
	switch x := v.(type) {
	case time.Time:
		stream.WriteInt64(x.UnixMilli())
	case scalar.CivilDate:
		stream.WriteString(x.String())
	case scalar.CivilTime:
		stream.WriteString(x.String())
	default:
		stream.WriteVal(v)
	}
}

// Unmarshal 解码单个实例；root 带继承时按鉴别值选择子类型
func (c *Codec) Unmarshal(root *orm.ModelMeta, data []byte) (*bean.Bean, error) {
	var raw map[string]any
	if err := decode(data, &raw); err != nil {
		return nil, err
	}
	return c.decodeBean(root, raw)
}

// UnmarshalList 解码实例列表，每个元素独立按鉴别值分派
func (c *Codec) UnmarshalList(root *orm.ModelMeta, data []byte) ([]*bean.Bean, error) {
	var raws []map[string]any
	if err := decode(data, &raws); err != nil {
		return nil, err
	}
	out := make([]*bean.Bean, 0, len(raws))
	for _, raw := range raws {
		b, err := c.decodeBean(root, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// concrete 按鉴别值确定具体模型；缺少鉴别值时使用 root
func (c *Codec) concrete(root *orm.ModelMeta, raw map[string]any) (*orm.ModelMeta, error) {
	if root.DiscriminatorColumn == "" {
		return root, nil
	}
	dv, ok := raw[c.discriminatorKey]
	if !ok || dv == nil {
		return root, nil
	}
	s, ok := dv.(string)
	if !ok {
		return nil, &orm.ConversionError{Value: dv, Target: root.Name + " discriminator"}
	}
	m, ok := root.ForDiscriminator(s)
	if !ok {
		return nil, &orm.ConversionError{Value: s, Target: root.Name + " discriminator"}
	}
	return m, nil
}

func (c *Codec) decodeBean(root *orm.ModelMeta, raw map[string]any) (*bean.Bean, error) {
	model, err := c.concrete(root, raw)
	if err != nil {
		return nil, err
	}
	b := bean.New(model)

	// 按声明顺序写入，结果与输入键顺序无关
	for _, p := range model.Properties() {
		v, ok := raw[p.Name]
		if !ok {
			continue
		}
		ep, err := c.paths.Resolve(model, p.Name)
		if err != nil {
			return nil, err
		}
		if err := c.setValue(b, ep, v); err != nil {
			return nil, err
		}
	}
	for key := range raw {
		if key == c.discriminatorKey && model.DiscriminatorColumn != "" {
			continue
		}
		if _, ok := model.Property(key); !ok {
			return nil, &orm.UnknownPropertyError{Model: model.Name, Property: key, Path: key}
		}
	}
	return b, nil
}

func (c *Codec) setValue(b *bean.Bean, ep *path.ExpressionPath, v any) error {
	leaf := ep.Leaf()
	switch leaf.Kind {
	case orm.KindToOne:
		if nested, ok := v.(map[string]any); ok {
			ref, err := c.decodeBean(leaf.Target, nested)
			if err != nil {
				return err
			}
			return ep.PathSet(b, ref)
		}
		return ep.PathSet(b, v)
	case orm.KindToMany:
		if v == nil {
			return b.SetMany(leaf.Name, nil)
		}
		items, ok := v.([]any)
		if !ok {
			return &orm.ConversionError{Value: v, Target: "collection of " + leaf.Target.Name}
		}
		children := make([]bean.IBean, 0, len(items))
		for _, item := range items {
			nested, ok := item.(map[string]any)
			if !ok {
				return &orm.ConversionError{Value: item, Target: leaf.Target.Name}
			}
			child, err := c.decodeBean(leaf.Target, nested)
			if err != nil {
				return err
			}
			children = append(children, child)
		}
		// 调用方提交的集合：空数组表示清空关联
		return b.SetMany(leaf.Name, bean.NewPlain(children...))
	}

	if n, ok := v.(stdjson.Number); ok && ep.IsDateTimeCapable() {
		ms, err := n.Int64()
		if err != nil {
			return &orm.ConversionError{Value: v, Target: leaf.Type.Name(), Err: err}
		}
		t, err := ep.ParseDateTime(ms)
		if err != nil {
			return err
		}
		return ep.PathSet(b, t)
	}
	return ep.PathSet(b, v)
}
