package scalar

import (
	"fmt"
	"strings"
)

// EnumOption 枚举类型选项
type EnumOption func(*enumType)

// EnumOrdinal 以序号而非名称存储
func EnumOrdinal() EnumOption {
	return func(e *enumType) { e.ordinal = true }
}

// enumType 原生值为枚举常量名，输入可以是名称或序号
type enumType struct {
	name    string
	values  []string
	index   map[string]int
	ordinal bool
}

// NewEnum 创建枚举类型，values 的顺序即序号
func NewEnum(name string, values []string, opts ...EnumOption) Type {
	e := &enumType{
		name:   name,
		values: append([]string(nil), values...),
		index:  make(map[string]int, len(values)),
	}
	for i, v := range values {
		e.index[v] = i
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *enumType) Name() string { return e.name }

func (e *enumType) JdbcType() int {
	if e.ordinal {
		return TypeInteger
	}
	return TypeVarchar
}

func (e *enumType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	v = deref(v)
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if _, found := e.index[s]; found {
			return s, nil
		}
	}
	n, err := toInt64(v)
	if err != nil {
		return nil, conversionError(e, v, fmt.Errorf("not a constant of %s", e.name))
	}
	if n < 0 || n >= int64(len(e.values)) {
		return nil, conversionError(e, v, fmt.Errorf("ordinal %d out of range", n))
	}
	return e.values[n], nil
}

func (e *enumType) Parse(s string) (any, error) { return e.Convert(s) }

func (e *enumType) Bind(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, conversionError(e, v, nil)
	}
	i, found := e.index[s]
	if !found {
		return nil, conversionError(e, v, nil)
	}
	if e.ordinal {
		return int64(i), nil
	}
	return s, nil
}

func (e *enumType) Equal(a, b any) bool { return equalComparable(a, b) }

// Values 枚举常量名，按序号排列
func (e *enumType) Values() []string {
	return append([]string(nil), e.values...)
}
