package scalar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// 内置标量类型
var (
	String  Type = stringType{}
	Int64   Type = int64Type{}
	Int32   Type = int32Type{}
	Float64 Type = float64Type{}
	Bool    Type = boolType{}
	Bytes   Type = bytesType{}
	UUID    Type = uuidType{}
)

type stringType struct{}

func (stringType) Name() string  { return "string" }
func (stringType) JdbcType() int { return TypeVarchar }

func (t stringType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	s, err := cast.ToStringE(deref(v))
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	return s, nil
}

func (stringType) Parse(s string) (any, error) { return s, nil }
func (stringType) Bind(v any) (any, error)     { return v, nil }
func (stringType) Equal(a, b any) bool         { return equalComparable(a, b) }

type int64Type struct{}

func (int64Type) Name() string  { return "int64" }
func (int64Type) JdbcType() int { return TypeBigInt }

func (t int64Type) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	n, err := toInt64(deref(v))
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	return n, nil
}

func (t int64Type) Parse(s string) (any, error) { return t.Convert(s) }
func (int64Type) Bind(v any) (any, error)       { return v, nil }
func (int64Type) Equal(a, b any) bool           { return equalComparable(a, b) }

type int32Type struct{}

func (int32Type) Name() string  { return "int32" }
func (int32Type) JdbcType() int { return TypeInteger }

func (t int32Type) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	n, err := toInt64(deref(v))
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, conversionError(t, v, fmt.Errorf("value %d overflows int32", n))
	}
	return int32(n), nil
}

func (t int32Type) Parse(s string) (any, error) { return t.Convert(s) }
func (int32Type) Bind(v any) (any, error)       { return v, nil }
func (int32Type) Equal(a, b any) bool           { return equalComparable(a, b) }

type float64Type struct{}

func (float64Type) Name() string  { return "float64" }
func (float64Type) JdbcType() int { return TypeDouble }

func (t float64Type) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(deref(v))
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	return f, nil
}

func (t float64Type) Parse(s string) (any, error) { return t.Convert(s) }
func (float64Type) Bind(v any) (any, error)       { return v, nil }
func (float64Type) Equal(a, b any) bool           { return equalComparable(a, b) }

type boolType struct{}

func (boolType) Name() string  { return "bool" }
func (boolType) JdbcType() int { return TypeBoolean }

func (t boolType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	b, err := cast.ToBoolE(deref(v))
	if err != nil {
		return nil, conversionError(t, v, err)
	}
	return b, nil
}

func (t boolType) Parse(s string) (any, error) { return t.Convert(s) }
func (boolType) Bind(v any) (any, error)       { return v, nil }
func (boolType) Equal(a, b any) bool           { return equalComparable(a, b) }

type bytesType struct{}

func (bytesType) Name() string  { return "bytes" }
func (bytesType) JdbcType() int { return TypeVarbinary }

func (t bytesType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	switch x := deref(v).(type) {
	case []byte:
		return append([]byte(nil), x...), nil
	case string:
		return []byte(x), nil
	default:
		return nil, conversionError(t, v, nil)
	}
}

func (bytesType) Parse(s string) (any, error) { return []byte(s), nil }
func (bytesType) Bind(v any) (any, error)     { return v, nil }

func (bytesType) Equal(a, b any) bool {
	ba, okA := a.([]byte)
	bb, okB := b.([]byte)
	if !okA || !okB {
		return equalComparable(a, b)
	}
	return bytes.Equal(ba, bb)
}

type uuidType struct{}

func (uuidType) Name() string  { return "uuid" }
func (uuidType) JdbcType() int { return TypeVarchar }

func (t uuidType) Convert(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	switch x := deref(v).(type) {
	case uuid.UUID:
		return x, nil
	case [16]byte:
		return uuid.UUID(x), nil
	case string:
		id, err := uuid.Parse(strings.TrimSpace(x))
		if err != nil {
			return nil, conversionError(t, v, err)
		}
		return id, nil
	case []byte:
		if len(x) == 16 {
			id, err := uuid.FromBytes(x)
			if err != nil {
				return nil, conversionError(t, v, err)
			}
			return id, nil
		}
		id, err := uuid.ParseBytes(x)
		if err != nil {
			return nil, conversionError(t, v, err)
		}
		return id, nil
	default:
		return nil, conversionError(t, v, nil)
	}
}

func (t uuidType) Parse(s string) (any, error) { return t.Convert(s) }

func (t uuidType) Bind(v any) (any, error) {
	if IsNil(v) {
		return nil, nil
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil, conversionError(t, v, nil)
	}
	return id.String(), nil
}

func (uuidType) Equal(a, b any) bool { return equalComparable(a, b) }

// toInt64 字符串一律按十进制解析（允许 "12.0" 这类整数值小数）。
// 小数部分非零或超出 int64 范围时报错，不截断也不回绕。
func toInt64(v any) (int64, error) {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case json.Number:
		s = string(x)
	case []byte:
		s = string(x)
	case float64:
		return floatToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case uint:
		return uintToInt64(uint64(x))
	case uint64:
		return uintToInt64(x)
	case uintptr:
		return uintToInt64(uint64(x))
	default:
		return cast.ToInt64E(v)
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return floatToInt64(f)
}

func floatToInt64(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	// 2^63 可被 float64 精确表示，int64 的上界是开区间
	if f < -(1<<63) || f >= 1<<63 {
		return 0, fmt.Errorf("%v overflows int64", f)
	}
	return int64(f), nil
}

func uintToInt64(n uint64) (int64, error) {
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", n)
	}
	return int64(n), nil
}
