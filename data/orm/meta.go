package orm

import (
	"sort"

	"ormcore/data/orm/scalar"
)

// PropertyKind 属性种类。
type PropertyKind int

const (
	KindScalar PropertyKind = iota
	KindToOne
	KindToMany
)

func (k PropertyKind) String() string {
	switch k {
	case KindToOne:
		return "to_one"
	case KindToMany:
		return "to_many"
	default:
		return "scalar"
	}
}

// PropertyMeta 描述一个声明属性。
//
// 继承来的属性与父模型共享同一个 *PropertyMeta，下标在整个继承层次中保持稳定。
type PropertyMeta struct {
	Name   string
	Column string
	Kind   PropertyKind
	// Type 标量类型；一对一关联为目标主键的类型，一对多关联为 nil
	Type       scalar.Type
	PrimaryKey bool
	Version    bool
	Nullable   bool
	// Target 关联目标模型
	Target *ModelMeta
	// ForeignKey 一对一时为本表外键列，一对多时为子表指向本表的外键列
	ForeignKey string
	Tags       map[string]string

	owner      *ModelMeta
	index      int
	targetName string
}

// Index 属性在模型声明顺序中的下标。
func (p *PropertyMeta) Index() int { return p.index }

// Owner 声明该属性的模型。
func (p *PropertyMeta) Owner() *ModelMeta { return p.owner }

func (p *PropertyMeta) IsScalar() bool       { return p.Kind == KindScalar }
func (p *PropertyMeta) IsRelationship() bool { return p.Kind != KindScalar }

// ModelMeta 描述模型级别元信息。
// Tags 可用于存放原始 orm/gorm 等标签内容。
type ModelMeta struct {
	Name  string
	Table string
	// DiscriminatorColumn 继承层次共用，取自根模型
	DiscriminatorColumn string
	DiscriminatorValue  string
	Parent              *ModelMeta
	Tags                map[string]string

	subtypes []*ModelMeta
	props    []*PropertyMeta
	byName   map[string]*PropertyMeta
	id       *PropertyMeta
	version  *PropertyMeta
}

// Properties 按声明顺序返回全部属性（继承的在前）。
func (m *ModelMeta) Properties() []*PropertyMeta { return m.props }

// Property 按名称查找属性。
func (m *ModelMeta) Property(name string) (*PropertyMeta, bool) {
	p, ok := m.byName[name]
	return p, ok
}

// Has 判断 p 是否适用于该模型（由该模型或其祖先声明）。
func (m *ModelMeta) Has(p *PropertyMeta) bool {
	if p == nil {
		return false
	}
	return m.IsSubtypeOf(p.owner)
}

// Identity 主键属性。
func (m *ModelMeta) Identity() *PropertyMeta { return m.id }

// VersionProperty 乐观锁版本属性，可能为 nil。
func (m *ModelMeta) VersionProperty() *PropertyMeta { return m.version }

// Subtypes 直接子类型。
func (m *ModelMeta) Subtypes() []*ModelMeta { return m.subtypes }

// Root 继承层次的根模型。
func (m *ModelMeta) Root() *ModelMeta {
	for m.Parent != nil {
		m = m.Parent
	}
	return m
}

// IsSubtypeOf 判断 m 是否为 other 本身或其后代。
func (m *ModelMeta) IsSubtypeOf(other *ModelMeta) bool {
	for cur := m; cur != nil; cur = cur.Parent {
		if cur == other {
			return true
		}
	}
	return false
}

// DescendantsDeclaring 返回声明了 name 属性的后代模型，按名称排序。
func (m *ModelMeta) DescendantsDeclaring(name string) []*ModelMeta {
	var out []*ModelMeta
	var walk func(*ModelMeta)
	walk = func(cur *ModelMeta) {
		for _, sub := range cur.subtypes {
			if p, ok := sub.byName[name]; ok && p.owner == sub {
				out = append(out, sub)
			}
			walk(sub)
		}
	}
	walk(m)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ForDiscriminator 在 m 及其后代中查找鉴别值对应的模型。
func (m *ModelMeta) ForDiscriminator(value string) (*ModelMeta, bool) {
	if m.DiscriminatorValue == value {
		return m, true
	}
	for _, sub := range m.subtypes {
		if found, ok := sub.ForDiscriminator(value); ok {
			return found, true
		}
	}
	return nil, false
}

// ManyProperties 全部一对多关联属性。
func (m *ModelMeta) ManyProperties() []*PropertyMeta {
	var out []*PropertyMeta
	for _, p := range m.props {
		if p.Kind == KindToMany {
			out = append(out, p)
		}
	}
	return out
}

// Tag 返回模型级别的标签内容。
func (m *ModelMeta) Tag(key string) string {
	if m == nil || m.Tags == nil {
		return ""
	}
	return m.Tags[key]
}

func (m *ModelMeta) String() string { return m.Name }
