package bean

// Origin 集合的来源。
type Origin int

const (
	// OriginPlain 调用方显式赋值的普通集合
	OriginPlain Origin = iota
	// OriginManaged 框架创建的托管集合（懒加载或从存储加载）
	OriginManaged
)

func (o Origin) String() string {
	if o == OriginManaged {
		return "managed"
	}
	return "plain"
}

// Collection 一对多关联的值，携带显式的来源标记。
type Collection struct {
	origin Origin
	items  []IBean
}

// NewPlain 调用方构造的普通集合；赋值一个空的普通集合表示清空关联。
func NewPlain(items ...IBean) *Collection {
	return &Collection{origin: OriginPlain, items: append([]IBean(nil), items...)}
}

// NewManaged 框架构造的托管集合。
func NewManaged(items ...IBean) *Collection {
	return &Collection{origin: OriginManaged, items: append([]IBean(nil), items...)}
}

func (c *Collection) Origin() Origin { return c.origin }

func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}

// Items 元素切片的副本
func (c *Collection) Items() []IBean {
	if c == nil {
		return nil
	}
	return append([]IBean(nil), c.items...)
}

// Add 追加元素，nil 忽略
func (c *Collection) Add(items ...IBean) {
	for _, it := range items {
		if !isNilBean(it) {
			c.items = append(c.items, it)
		}
	}
}
