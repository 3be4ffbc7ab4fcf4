package scalar

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

var (
	timeType      = reflect.TypeOf(time.Time{})
	uuidGoType    = reflect.TypeOf(uuid.UUID{})
	civilDateType = reflect.TypeOf(CivilDate{})
	civilTimeType = reflect.TypeOf(CivilTime{})
)

// ForGoType 根据 Go 字段类型推断标量类型，指针按其元素类型处理
//
// 无法推断（结构体、映射等）时返回 false。
func ForGoType(t reflect.Type) (Type, bool) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case timeType:
		return Timestamp, true
	case uuidGoType:
		return UUID, true
	case civilDateType:
		return Date, true
	case civilTimeType:
		return TimeOfDay, true
	}

	switch t.Kind() {
	case reflect.String:
		return String, true
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return Int64, true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return Int32, true
	case reflect.Float32, reflect.Float64:
		return Float64, true
	case reflect.Bool:
		return Bool, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return Bytes, true
		}
	}
	return nil, false
}
