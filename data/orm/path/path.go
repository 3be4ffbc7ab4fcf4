// Package path 解析点号分隔的属性路径（如 "customer.billingAddress.city"），
// 并在实例图上执行读取、写入、类型转换与时间解码。
//
// 解析结果不可变，可在多个 goroutine 间共享；解析代价较高，调用方应通过 Cache 复用。
package path

import (
	"strings"

	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/scalar"
)

// MaxDepth 单条路径允许的最大段数
const MaxDepth = 32

// Segment 路径中的一段：所在模型与该段属性
type Segment struct {
	Model    *orm.ModelMeta
	Property *orm.PropertyMeta
}

// ExpressionPath 已解析的属性路径
type ExpressionPath struct {
	root         *orm.ModelMeta
	path         string
	segments     []Segment
	containsMany bool
}

// Resolve 以 root 为起点逐段解析 dotPath。
//
// 失败情形：
//   - 某段不是当前模型声明的属性：UnknownPropertyError
//   - 某段只在当前模型的部分子类型上声明：AmbiguousPolymorphicPathError，需以子类型为根
//   - 同一关联属性在路径中出现两次，或段数超过 MaxDepth：CyclicPathError
func Resolve(root *orm.ModelMeta, dotPath string) (*ExpressionPath, error) {
	names := strings.Split(dotPath, ".")
	if len(names) > MaxDepth {
		return nil, &orm.CyclicPathError{Path: dotPath, Depth: MaxDepth}
	}

	ep := &ExpressionPath{root: root, path: dotPath, segments: make([]Segment, 0, len(names))}
	visited := make(map[*orm.PropertyMeta]bool)
	cur := root

	for i, name := range names {
		p, ok := cur.Property(name)
		if !ok {
			if declaring := cur.DescendantsDeclaring(name); len(declaring) > 0 {
				on := make([]string, len(declaring))
				for j, m := range declaring {
					on[j] = m.Name
				}
				return nil, &orm.AmbiguousPolymorphicPathError{Model: cur.Name, Property: name, Path: dotPath, DeclaredOn: on}
			}
			return nil, &orm.UnknownPropertyError{Model: cur.Name, Property: name, Path: dotPath}
		}

		ep.segments = append(ep.segments, Segment{Model: cur, Property: p})
		last := i == len(names)-1
		if last {
			break
		}

		if p.IsScalar() {
			// 标量之后不能再有路径段
			return nil, &orm.UnknownPropertyError{Model: cur.Name + "." + name, Property: names[i+1], Path: dotPath}
		}
		if visited[p] {
			return nil, &orm.CyclicPathError{Path: dotPath, Property: p.Owner().Name + "." + p.Name}
		}
		visited[p] = true
		if p.Kind == orm.KindToMany {
			ep.containsMany = true
		}
		cur = p.Target
	}
	return ep, nil
}

func (e *ExpressionPath) Root() *orm.ModelMeta    { return e.root }
func (e *ExpressionPath) String() string          { return e.path }
func (e *ExpressionPath) Segments() []Segment     { return append([]Segment(nil), e.segments...) }
func (e *ExpressionPath) Leaf() *orm.PropertyMeta { return e.segments[len(e.segments)-1].Property }

// ContainsMany 除末段外是否经过一对多关联
func (e *ExpressionPath) ContainsMany() bool { return e.containsMany }

// PathGet 沿路径读取值。
//
// 中间关联为 nil，或实例的具体类型不含某段属性时返回 (nil, false)。
// 经过一对多关联时返回各元素叶子值组成的 []any，仅用于只读场景。
func (e *ExpressionPath) PathGet(b bean.IBean) (any, bool) {
	return e.get(b, 0)
}

func (e *ExpressionPath) get(cur bean.IBean, i int) (any, bool) {
	if isNil(cur) {
		return nil, false
	}
	p := e.segments[i].Property
	if !cur.Model().Has(p) {
		return nil, false
	}
	v := cur.PropertyValue(p)
	if i == len(e.segments)-1 {
		return v, true
	}

	switch p.Kind {
	case orm.KindToOne:
		ref, _ := v.(bean.IBean)
		return e.get(ref, i+1)
	case orm.KindToMany:
		c, _ := v.(*bean.Collection)
		if c == nil {
			return nil, false
		}
		out := make([]any, 0, c.Len())
		for _, item := range c.Items() {
			leaf, ok := e.get(item, i+1)
			if !ok {
				continue
			}
			if nested, isSlice := leaf.([]any); isSlice && e.segmentsAfterContainMany(i+1) {
				out = append(out, nested...)
				continue
			}
			out = append(out, leaf)
		}
		return out, true
	}
	return nil, false
}

func (e *ExpressionPath) segmentsAfterContainMany(from int) bool {
	for j := from; j < len(e.segments)-1; j++ {
		if e.segments[j].Property.Kind == orm.KindToMany {
			return true
		}
	}
	return false
}

// PathSet 沿路径写入经 Convert 转换后的值
func (e *ExpressionPath) PathSet(b bean.IBean, v any) error {
	if e.containsMany {
		return &orm.UnsupportedPathOperationError{Path: e.path, Operation: "set"}
	}
	if isNil(b) {
		return &orm.NullIntermediateError{Path: e.path}
	}
	converted, err := e.Convert(v)
	if err != nil {
		return err
	}

	cur := b
	for i, seg := range e.segments {
		p := seg.Property
		if !cur.Model().Has(p) {
			return &orm.UnknownPropertyError{Model: cur.Model().Name, Property: p.Name, Path: e.path}
		}
		if i == len(e.segments)-1 {
			cur.SetPropertyValue(p, converted)
			return nil
		}
		next, _ := cur.PropertyValue(p).(bean.IBean)
		if isNil(next) {
			return &orm.NullIntermediateError{Path: e.path, Segment: e.prefix(i)}
		}
		cur = next
	}
	return nil
}

func (e *ExpressionPath) prefix(i int) string {
	names := make([]string, i+1)
	for j := 0; j <= i; j++ {
		names[j] = e.segments[j].Property.Name
	}
	return strings.Join(names, ".")
}

// Convert 将输入转换为叶子属性的原生值；一对一叶子接受实例或目标主键
func (e *ExpressionPath) Convert(v any) (any, error) {
	leaf := e.Leaf()
	switch leaf.Kind {
	case orm.KindScalar:
		return leaf.Type.Convert(v)
	case orm.KindToOne:
		if isNil(v) {
			return nil, nil
		}
		if ref, ok := v.(bean.IBean); ok {
			if !ref.Model().IsSubtypeOf(leaf.Target) {
				return nil, &orm.ConversionError{Value: v, Target: leaf.Target.Name}
			}
			return ref, nil
		}
		return bean.Reference(leaf.Target, v)
	default:
		if isNil(v) {
			return nil, nil
		}
		if c, ok := v.(*bean.Collection); ok {
			return c, nil
		}
		return nil, &orm.ConversionError{Value: v, Target: "collection of " + leaf.Target.Name}
	}
}

// StringParser 叶子值的字符串解析器；一对一叶子解析目标主键，一对多叶子为 nil
func (e *ExpressionPath) StringParser() scalar.StringParser {
	leaf := e.Leaf()
	if leaf.Kind == orm.KindToMany || leaf.Type == nil {
		return nil
	}
	return scalar.ParserOf(leaf.Type)
}

// IsDateTimeCapable 叶子是否为可从毫秒时间戳解码的时间类型
func (e *ExpressionPath) IsDateTimeCapable() bool {
	leaf := e.Leaf()
	return leaf.Kind == orm.KindScalar && scalar.IsDateTime(leaf.Type)
}

// ParseDateTime 将 epoch 毫秒解码为叶子的原生时间值
func (e *ExpressionPath) ParseDateTime(epochMillis int64) (any, error) {
	if !e.IsDateTimeCapable() {
		return nil, &orm.UnsupportedPathOperationError{Path: e.path, Operation: "parseDateTime"}
	}
	return e.Leaf().Type.(scalar.DateTimeType).ParseDateTime(epochMillis), nil
}

// JdbcType 叶子标量的存储类型码；关联叶子返回 scalar.TypeNotScalar
func (e *ExpressionPath) JdbcType() int {
	leaf := e.Leaf()
	if leaf.Kind != orm.KindScalar {
		return scalar.TypeNotScalar
	}
	return leaf.Type.JdbcType()
}

func isNil(v any) bool { return scalar.IsNil(v) }
