package orm

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"ormcore/data/orm/scalar"
)

// Catalog 模型元数据目录。
//
// 模型之间按名称互相引用，关联目标与父模型在 Build 时统一解析，
// 因此声明顺序无关，双向关联（Customer ↔ Contact）也可直接声明。
// Build 之后目录只读，可在多个 goroutine 间共享。
type Catalog struct {
	mu       sync.RWMutex
	builders []*ModelBuilder
	models   map[string]*ModelMeta
	built    bool
}

// NewCatalog 创建空目录。
func NewCatalog() *Catalog {
	return &Catalog{models: make(map[string]*ModelMeta)}
}

// Model 开始声明一个模型。子类型的 table 可留空，沿用根模型的表。
func (c *Catalog) Model(name, table string) *ModelBuilder {
	b := &ModelBuilder{name: name, table: table}
	c.mu.Lock()
	c.builders = append(c.builders, b)
	c.mu.Unlock()
	return b
}

// Get 按名称获取已构建的模型。
func (c *Catalog) Get(name string) (*ModelMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[name]
	return m, ok
}

// MustGet 同 Get，模型不存在时 panic，供测试与初始化代码使用。
func (c *Catalog) MustGet(name string) *ModelMeta {
	m, ok := c.Get(name)
	if !ok {
		panic("orm: model not found: " + name)
	}
	return m
}

// Models 按名称排序返回全部模型。
func (c *Catalog) Models() []*ModelMeta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*ModelMeta, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Build 解析继承与关联，校验元数据。失败时返回包装 ErrInvalidModel 的错误。
func (c *Catalog) Build() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return invalidModel("catalog already built")
	}

	models := make(map[string]*ModelMeta, len(c.builders))
	for _, b := range c.builders {
		if b.name == "" {
			return invalidModel("model without name")
		}
		if _, dup := models[b.name]; dup {
			return invalidModel("duplicate model %s", b.name)
		}
		models[b.name] = &ModelMeta{
			Name:   b.name,
			Table:  b.table,
			Tags:   b.tags,
			byName: make(map[string]*PropertyMeta),
		}
	}

	// 父模型
	for _, b := range c.builders {
		if b.parent == "" {
			continue
		}
		parent, ok := models[b.parent]
		if !ok {
			return invalidModel("%s extends unknown model %s", b.name, b.parent)
		}
		models[b.name].Parent = parent
	}
	for _, m := range models {
		seen := map[*ModelMeta]bool{}
		for cur := m; cur != nil; cur = cur.Parent {
			if seen[cur] {
				return invalidModel("inheritance cycle at %s", m.Name)
			}
			seen[cur] = true
		}
	}

	// 按深度排序，保证父模型先于子类型展开属性
	ordered := make([]*ModelBuilder, len(c.builders))
	copy(ordered, c.builders)
	sort.SliceStable(ordered, func(i, j int) bool {
		return depth(models[ordered[i].name]) < depth(models[ordered[j].name])
	})

	for _, b := range ordered {
		m := models[b.name]
		if err := expand(m, b); err != nil {
			return err
		}
		if m.Parent != nil {
			m.Parent.subtypes = append(m.Parent.subtypes, m)
		}
	}

	// 关联目标
	for _, m := range models {
		for _, p := range m.props {
			if p.owner != m || p.Kind == KindScalar {
				continue
			}
			target, ok := models[p.targetName]
			if !ok {
				return invalidModel("%s.%s targets unknown model %s", m.Name, p.Name, p.targetName)
			}
			p.Target = target
			if target.Root().id == nil {
				return invalidModel("%s.%s targets %s which has no identity", m.Name, p.Name, target.Name)
			}
			if p.Kind == KindToOne {
				p.Type = target.Root().id.Type
			}
		}
	}

	for _, m := range models {
		sort.Slice(m.subtypes, func(i, j int) bool { return m.subtypes[i].Name < m.subtypes[j].Name })
	}

	c.models = models
	c.built = true
	return nil
}

func depth(m *ModelMeta) int {
	d := 0
	for cur := m.Parent; cur != nil; cur = cur.Parent {
		d++
	}
	return d
}

// expand 继承父模型属性并追加自身声明的属性
func expand(m *ModelMeta, b *ModelBuilder) error {
	if parent := m.Parent; parent != nil {
		if m.Table == "" {
			m.Table = parent.Table
		}
		m.DiscriminatorColumn = parent.DiscriminatorColumn
		m.props = append(m.props, parent.props...)
		for _, p := range parent.props {
			m.byName[p.Name] = p
		}
		m.id = parent.id
		m.version = parent.version
	} else {
		m.DiscriminatorColumn = b.discriminatorColumn
	}
	m.DiscriminatorValue = b.discriminatorValue
	if m.Table == "" {
		return invalidModel("%s has no table", m.Name)
	}

	for _, spec := range b.props {
		p := spec
		if p.Name == "" || strings.Contains(p.Name, ".") {
			return invalidModel("%s declares invalid property name %q", m.Name, p.Name)
		}
		if _, dup := m.byName[p.Name]; dup {
			return invalidModel("%s declares %s more than once", m.Name, p.Name)
		}
		if p.Kind == KindScalar && p.Type == nil {
			return invalidModel("%s.%s has no scalar type", m.Name, p.Name)
		}
		if p.PrimaryKey {
			if m.id != nil {
				return invalidModel("%s declares more than one identity", m.Name)
			}
			m.id = p
		}
		if p.Version {
			if m.version != nil {
				return invalidModel("%s declares more than one version property", m.Name)
			}
			m.version = p
		}
		p.owner = m
		p.index = len(m.props)
		m.props = append(m.props, p)
		m.byName[p.Name] = p
	}

	if m.id == nil {
		return invalidModel("%s has no identity property", m.Name)
	}
	return nil
}

// PropertyOption 调整单个属性的声明。
type PropertyOption func(*PropertyMeta)

// Column 指定列名，默认取属性名的 snake_case。
func Column(name string) PropertyOption {
	return func(p *PropertyMeta) { p.Column = name }
}

// NotNull 标记属性不可为空。
func NotNull() PropertyOption {
	return func(p *PropertyMeta) { p.Nullable = false }
}

// WithTag 附加标签。
func WithTag(key, value string) PropertyOption {
	return func(p *PropertyMeta) {
		if p.Tags == nil {
			p.Tags = make(map[string]string)
		}
		p.Tags[key] = value
	}
}

// ModelBuilder 声明一个模型的属性。
type ModelBuilder struct {
	name                string
	table               string
	parent              string
	discriminatorColumn string
	discriminatorValue  string
	tags                map[string]string
	props               []*PropertyMeta
}

// Extends 声明父模型与本模型的鉴别值。
func (b *ModelBuilder) Extends(parent, discriminatorValue string) *ModelBuilder {
	b.parent = parent
	b.discriminatorValue = discriminatorValue
	return b
}

// Discriminator 在根模型上声明鉴别列与根模型自身的鉴别值。
func (b *ModelBuilder) Discriminator(column, value string) *ModelBuilder {
	b.discriminatorColumn = column
	b.discriminatorValue = value
	return b
}

// Tag 附加模型级别标签。
func (b *ModelBuilder) Tag(key, value string) *ModelBuilder {
	if b.tags == nil {
		b.tags = make(map[string]string)
	}
	b.tags[key] = value
	return b
}

// ID 声明主键属性。
func (b *ModelBuilder) ID(name string, t scalar.Type, opts ...PropertyOption) *ModelBuilder {
	return b.add(&PropertyMeta{Name: name, Kind: KindScalar, Type: t, PrimaryKey: true}, opts)
}

// Version 声明乐观锁版本属性，类型为整数或时间戳。
func (b *ModelBuilder) Version(name string, t scalar.Type, opts ...PropertyOption) *ModelBuilder {
	return b.add(&PropertyMeta{Name: name, Kind: KindScalar, Type: t, Version: true}, opts)
}

// Scalar 声明可空标量属性。
func (b *ModelBuilder) Scalar(name string, t scalar.Type, opts ...PropertyOption) *ModelBuilder {
	return b.add(&PropertyMeta{Name: name, Kind: KindScalar, Type: t, Nullable: true}, opts)
}

// ToOne 声明一对一（多对一）关联，fk 为本表外键列，留空时为 <name>_id。
func (b *ModelBuilder) ToOne(name, target, fk string, opts ...PropertyOption) *ModelBuilder {
	if fk == "" {
		fk = toSnakeCase(name) + "_id"
	}
	return b.add(&PropertyMeta{Name: name, Kind: KindToOne, Column: fk, ForeignKey: fk, Nullable: true, targetName: target}, opts)
}

// ToMany 声明一对多关联，fk 为子表中指向本模型的外键列，留空时为 <model>_id。
func (b *ModelBuilder) ToMany(name, target, fk string, opts ...PropertyOption) *ModelBuilder {
	if fk == "" {
		fk = toSnakeCase(b.name) + "_id"
	}
	return b.add(&PropertyMeta{Name: name, Kind: KindToMany, ForeignKey: fk, targetName: target}, opts)
}

func (b *ModelBuilder) add(p *PropertyMeta, opts []PropertyOption) *ModelBuilder {
	for _, opt := range opts {
		opt(p)
	}
	switch {
	case p.Kind == KindScalar && p.Column == "":
		p.Column = toSnakeCase(p.Name)
	case p.Kind == KindToOne:
		p.ForeignKey = p.Column
	}
	b.props = append(b.props, p)
	return b
}

// toSnakeCase CustomerID -> customer_id，连续大写视为一个缩写
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
