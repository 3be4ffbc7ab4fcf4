// Package scalar 定义实体标量属性的类型描述：存储类型码、字符串/数字到原生值的转换、
// 绑定到驱动参数的值，以及时间类型的毫秒时间戳解码。
//
// 类型描述是无状态的，可在多个模型、多个 goroutine 间共享。
package scalar

import (
	"errors"
	"fmt"
	"reflect"
)

// 存储类型码，取值与 JDBC java.sql.Types 保持一致，便于与外部元数据对齐。
const (
	// TypeNotScalar 表示路径末端不是标量（例如关联属性）
	TypeNotScalar = 0

	TypeBit         = -7
	TypeTinyInt     = -6
	TypeBigInt      = -5
	TypeVarbinary   = -3
	TypeBinary      = -2
	TypeChar        = 1
	TypeDecimal     = 3
	TypeInteger     = 4
	TypeSmallInt    = 5
	TypeReal        = 7
	TypeDouble      = 8
	TypeVarchar     = 12
	TypeBoolean     = 16
	TypeDate        = 91
	TypeTime        = 92
	TypeTimestamp   = 93
	TypeOther       = 1111
	TypeTimestampTZ = 2014
)

// ErrConversion 值无法转换为目标类型
var ErrConversion = errors.New("orm: conversion failed")

// ConversionError 携带原始值与目标类型
type ConversionError struct {
	Value  any
	Target string
	Err    error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("orm: cannot convert %v (%T) to %s: %v", e.Value, e.Value, e.Target, e.Err)
	}
	return fmt.Sprintf("orm: cannot convert %v (%T) to %s", e.Value, e.Value, e.Target)
}

func (e *ConversionError) Unwrap() error { return ErrConversion }

// Details 供错误规范化时提取上下文
func (e *ConversionError) Details() map[string]any {
	return map[string]any{"value": e.Value, "target": e.Target}
}

func conversionError(t Type, v any, err error) error {
	return &ConversionError{Value: v, Target: t.Name(), Err: err}
}

// StringParser 将字符串解析为标量原生值
type StringParser func(s string) (any, error)

// Type 描述一种标量类型。
//
// 所有方法对 nil 输入保持 nil（空值不是转换错误）。
type Type interface {
	// Name 类型名称，用于错误信息
	Name() string
	// JdbcType 底层存储类型码
	JdbcType() int
	// Convert 将任意输入（字符串、数字、驱动扫描值等）转换为原生值
	Convert(v any) (any, error)
	// Parse 将字符串解析为原生值
	Parse(s string) (any, error)
	// Bind 将原生值转换为可直接传给 database/sql 的参数
	Bind(v any) (any, error)
	// Equal 按值语义比较两个原生值
	Equal(a, b any) bool
}

// DateTimeType 支持从毫秒时间戳解码的时间类型
type DateTimeType interface {
	Type
	// ParseDateTime 将 epoch 毫秒解码为该类型的原生值
	ParseDateTime(epochMillis int64) any
}

// IsDateTime 判断类型是否支持毫秒时间戳解码
func IsDateTime(t Type) bool {
	_, ok := t.(DateTimeType)
	return ok
}

// ParserOf 返回类型的字符串解析器
func ParserOf(t Type) StringParser {
	return t.Parse
}

// equalComparable 对可比较类型使用 ==，不可比较类型退化为 DeepEqual
func equalComparable(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// IsNil 判断 v 是否为 nil 或 nil 指针/切片/映射
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

// deref 解引用非 nil 指针，使 *int64、*string 等输入与值类型一致处理
func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}
