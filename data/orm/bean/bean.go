// Package bean 实体实例与属性加载状态。
//
// 所有属性赋值都经过 Bean 的 setter，由 setter 负责记录加载状态；
// 不依赖反射推断“哪些字段被调用方修改过”。
package bean

import (
	"fmt"
	"reflect"

	"ormcore/data/orm"
)

// IBean 实体实例。
//
// 路径解析、差异比较与更新构建只通过该接口访问实例。
type IBean interface {
	// Model 实例的具体模型
	Model() *orm.ModelMeta
	// LoadState 属性加载状态
	LoadState() *LoadState
	// PropertyValue 读取属性原生值，不适用于该模型的属性返回 nil
	PropertyValue(p *orm.PropertyMeta) any
	// SetPropertyValue 写入已转换的原生值并标记加载
	SetPropertyValue(p *orm.PropertyMeta, v any)
	// Original 从存储加载或上次写入成功时的快照，可能为 nil
	Original() IBean
	// MarkClean 以当前值作为新的快照
	MarkClean()
}

// Bean 基于模型元数据的通用实体实例。不可在更新过程中跨 goroutine 共享。
type Bean struct {
	model    *orm.ModelMeta
	values   []any
	state    *LoadState
	original *Bean
}

// New 创建未加载任何属性的实例
func New(model *orm.ModelMeta) *Bean {
	b := &Bean{
		model:  model,
		values: make([]any, len(model.Properties())),
	}
	b.state = NewLoadState(model, b)
	return b
}

// Reference 创建只设置了主键的引用实例
func Reference(model *orm.ModelMeta, id any) (*Bean, error) {
	b := New(model)
	if err := b.SetID(id); err != nil {
		return nil, err
	}
	return b, nil
}

// Loaded 模拟从存储加载：写入值、标记加载并生成快照
func Loaded(model *orm.ModelMeta, values map[string]any) (*Bean, error) {
	b := New(model)
	for _, p := range model.Properties() {
		v, ok := values[p.Name]
		if !ok {
			continue
		}
		if err := b.Set(p.Name, v); err != nil {
			return nil, err
		}
	}
	for name := range values {
		if _, ok := model.Property(name); !ok {
			return nil, &orm.UnknownPropertyError{Model: model.Name, Property: name, Path: name}
		}
	}
	b.MarkClean()
	return b, nil
}

func (b *Bean) Model() *orm.ModelMeta { return b.model }
func (b *Bean) LoadState() *LoadState { return b.state }

func (b *Bean) Original() IBean {
	if b.original == nil {
		return nil
	}
	return b.original
}

func (b *Bean) PropertyValue(p *orm.PropertyMeta) any {
	if !b.model.Has(p) {
		return nil
	}
	return b.values[p.Index()]
}

func (b *Bean) SetPropertyValue(p *orm.PropertyMeta, v any) {
	if !b.model.Has(p) {
		return
	}
	b.values[p.Index()] = v
	b.state.MarkLoadedIndex(p.Index())
}

// MarkClean 复制当前值作为快照；一对多关联不进入快照
func (b *Bean) MarkClean() {
	snap := &Bean{
		model:  b.model,
		values: make([]any, len(b.values)),
		state:  b.state.Clone(),
	}
	for _, p := range b.model.Properties() {
		if p.Kind == orm.KindToMany {
			continue
		}
		snap.values[p.Index()] = b.values[p.Index()]
	}
	snap.state.owner = snap
	b.original = snap
}

// Set 按属性名赋值。
//
// 标量值经属性类型转换；一对一关联接受 IBean、nil 或目标主键值；
// 一对多关联接受 *Collection、[]IBean（视为普通集合）或 nil。
func (b *Bean) Set(name string, v any) error {
	p, err := b.property(name)
	if err != nil {
		return err
	}

	switch p.Kind {
	case orm.KindScalar:
		converted, err := p.Type.Convert(v)
		if err != nil {
			return err
		}
		b.SetPropertyValue(p, converted)
	case orm.KindToOne:
		ref, err := toReference(p, v)
		if err != nil {
			return err
		}
		b.SetPropertyValue(p, ref)
	case orm.KindToMany:
		switch x := v.(type) {
		case nil:
			b.SetPropertyValue(p, nil)
		case *Collection:
			if x == nil {
				b.SetPropertyValue(p, nil)
			} else {
				b.SetPropertyValue(p, x)
			}
		case []IBean:
			b.SetPropertyValue(p, NewPlain(x...))
		default:
			return &orm.ConversionError{Value: v, Target: "collection of " + p.Target.Name}
		}
	}
	return nil
}

// MustSet 同 Set，失败时 panic，便于链式构造
func (b *Bean) MustSet(name string, v any) *Bean {
	if err := b.Set(name, v); err != nil {
		panic(err)
	}
	return b
}

// Get 读取属性值，不区分是否已加载
func (b *Bean) Get(name string) (any, error) {
	p, err := b.property(name)
	if err != nil {
		return nil, err
	}
	return b.values[p.Index()], nil
}

// One 读取一对一关联
func (b *Bean) One(name string) (IBean, error) {
	p, err := b.relationship(name, orm.KindToOne)
	if err != nil {
		return nil, err
	}
	ref, _ := b.values[p.Index()].(IBean)
	return ref, nil
}

// SetOne 设置一对一关联，typed-nil 视为 nil
func (b *Bean) SetOne(name string, ref IBean) error {
	p, err := b.relationship(name, orm.KindToOne)
	if err != nil {
		return err
	}
	if isNilBean(ref) {
		b.SetPropertyValue(p, nil)
		return nil
	}
	b.SetPropertyValue(p, ref)
	return nil
}

// Many 读取一对多关联；尚未赋值时创建空的托管集合并标记加载（懒加载语义）
func (b *Bean) Many(name string) (*Collection, error) {
	p, err := b.relationship(name, orm.KindToMany)
	if err != nil {
		return nil, err
	}
	if c, ok := b.values[p.Index()].(*Collection); ok && c != nil {
		return c, nil
	}
	c := NewManaged()
	b.SetPropertyValue(p, c)
	return c, nil
}

// SetMany 设置一对多关联
func (b *Bean) SetMany(name string, c *Collection) error {
	p, err := b.relationship(name, orm.KindToMany)
	if err != nil {
		return err
	}
	if c == nil {
		b.SetPropertyValue(p, nil)
		return nil
	}
	b.SetPropertyValue(p, c)
	return nil
}

// ID 主键值
func (b *Bean) ID() any { return b.values[b.model.Identity().Index()] }

// SetID 设置主键
func (b *Bean) SetID(v any) error { return b.Set(b.model.Identity().Name, v) }

// Version 版本属性值，模型无版本属性时为 nil
func (b *Bean) Version() any {
	if vp := b.model.VersionProperty(); vp != nil {
		return b.values[vp.Index()]
	}
	return nil
}

func (b *Bean) String() string {
	return fmt.Sprintf("%s(id=%v)", b.model.Name, b.ID())
}

func (b *Bean) property(name string) (*orm.PropertyMeta, error) {
	p, ok := b.model.Property(name)
	if !ok {
		return nil, &orm.UnknownPropertyError{Model: b.model.Name, Property: name, Path: name}
	}
	return p, nil
}

func (b *Bean) relationship(name string, kind orm.PropertyKind) (*orm.PropertyMeta, error) {
	p, err := b.property(name)
	if err != nil {
		return nil, err
	}
	if p.Kind != kind {
		return nil, &orm.UnknownPropertyError{Model: b.model.Name, Property: name, Path: name}
	}
	return p, nil
}

func toReference(p *orm.PropertyMeta, v any) (IBean, error) {
	if isNilValue(v) {
		return nil, nil
	}
	if ref, ok := v.(IBean); ok {
		if !ref.Model().IsSubtypeOf(p.Target) {
			return nil, &orm.ConversionError{Value: v, Target: p.Target.Name}
		}
		return ref, nil
	}
	return Reference(p.Target, v)
}

// IdentityOf 读取任意实例的主键值
func IdentityOf(b IBean) any {
	if isNilBean(b) {
		return nil
	}
	return b.PropertyValue(b.Model().Identity())
}

// IsZeroIdentity 主键为 nil 或类型零值（0、""、uuid.Nil）时视为尚未持久化
func IsZeroIdentity(id any) bool {
	if isNilValue(id) {
		return true
	}
	return reflect.ValueOf(id).IsZero()
}

func isNilBean(b IBean) bool { return isNilValue(b) }

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil()
	default:
		return false
	}
}
