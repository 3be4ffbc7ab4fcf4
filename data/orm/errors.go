package orm

import (
	"errors"
	"fmt"
	"strings"

	"ormcore/data/orm/scalar"
)

var (
	// ErrNotFound 表示记录未找到。
	ErrNotFound = errors.New("orm: record not found")
	// ErrUnsupported 表示当前执行器不支持请求的能力。
	ErrUnsupported = errors.New("orm: capability unsupported")
	// ErrVersionConflict 乐观锁条件下没有行被更新。
	ErrVersionConflict = errors.New("orm: version conflict")
	// ErrInvalidModel 模型元数据不完整或自相矛盾。
	ErrInvalidModel = errors.New("orm: invalid model")

	ErrUnknownProperty          = errors.New("orm: unknown property")
	ErrAmbiguousPolymorphicPath = errors.New("orm: property only declared on subtypes")
	ErrUnsupportedPathOperation = errors.New("orm: unsupported path operation")
	ErrNullIntermediate         = errors.New("orm: null intermediate on path")
	ErrCyclicPath               = errors.New("orm: cyclic property path")
	ErrMissingIdentity          = errors.New("orm: entity has no identity")

	// ErrConversion 值无法转换为属性类型。
	ErrConversion = scalar.ErrConversion
)

// ConversionError 携带原始值与目标类型
type ConversionError = scalar.ConversionError

// UnknownPropertyError 路径段不是当前模型声明的属性，或标量属性后仍有路径段
type UnknownPropertyError struct {
	Model    string
	Property string
	Path     string
}

func (e *UnknownPropertyError) Error() string {
	if e.Path != "" && e.Path != e.Property {
		return fmt.Sprintf("orm: unknown property %q on %s (path %q)", e.Property, e.Model, e.Path)
	}
	return fmt.Sprintf("orm: unknown property %q on %s", e.Property, e.Model)
}

func (e *UnknownPropertyError) Unwrap() error { return ErrUnknownProperty }

func (e *UnknownPropertyError) Details() map[string]any {
	return map[string]any{"model": e.Model, "property": e.Property, "path": e.Path}
}

// AmbiguousPolymorphicPathError 属性只在部分子类型上声明，需要以子类型为根解析
type AmbiguousPolymorphicPathError struct {
	Model      string
	Property   string
	Path       string
	DeclaredOn []string
}

func (e *AmbiguousPolymorphicPathError) Error() string {
	return fmt.Sprintf("orm: property %q is not declared on %s, only on subtypes [%s] (path %q)",
		e.Property, e.Model, strings.Join(e.DeclaredOn, ", "), e.Path)
}

func (e *AmbiguousPolymorphicPathError) Unwrap() error { return ErrAmbiguousPolymorphicPath }

func (e *AmbiguousPolymorphicPathError) Details() map[string]any {
	return map[string]any{"model": e.Model, "property": e.Property, "path": e.Path, "declared_on": e.DeclaredOn}
}

// UnsupportedPathOperationError 经过一对多关联的路径不支持写入
type UnsupportedPathOperationError struct {
	Path      string
	Operation string
}

func (e *UnsupportedPathOperationError) Error() string {
	return fmt.Sprintf("orm: %s is not supported on path %q which traverses a to-many relationship", e.Operation, e.Path)
}

func (e *UnsupportedPathOperationError) Unwrap() error { return ErrUnsupportedPathOperation }

func (e *UnsupportedPathOperationError) Details() map[string]any {
	return map[string]any{"path": e.Path, "operation": e.Operation}
}

// NullIntermediateError 写入路径时中间关联为空
type NullIntermediateError struct {
	Path    string
	Segment string
}

func (e *NullIntermediateError) Error() string {
	return fmt.Sprintf("orm: %q is null while setting path %q", e.Segment, e.Path)
}

func (e *NullIntermediateError) Unwrap() error { return ErrNullIntermediate }

func (e *NullIntermediateError) Details() map[string]any {
	return map[string]any{"path": e.Path, "segment": e.Segment}
}

// CyclicPathError 同一路径重复经过同一关联属性，或超出最大深度
type CyclicPathError struct {
	Path     string
	Property string
	Depth    int
}

func (e *CyclicPathError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("orm: path %q traverses %q twice", e.Path, e.Property)
	}
	return fmt.Sprintf("orm: path %q exceeds max depth %d", e.Path, e.Depth)
}

func (e *CyclicPathError) Unwrap() error { return ErrCyclicPath }

func (e *CyclicPathError) Details() map[string]any {
	return map[string]any{"path": e.Path, "property": e.Property, "depth": e.Depth}
}

// MissingIdentityError 实体没有可用的主键值
type MissingIdentityError struct {
	Model string
}

func (e *MissingIdentityError) Error() string {
	return fmt.Sprintf("orm: %s has no identity value", e.Model)
}

func (e *MissingIdentityError) Unwrap() error { return ErrMissingIdentity }

func (e *MissingIdentityError) Details() map[string]any {
	return map[string]any{"model": e.Model}
}

// VersionConflictError 携带冲突行的主键与期望版本
type VersionConflictError struct {
	Table           string
	ID              any
	ExpectedVersion any
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("orm: %s id=%v was modified concurrently (expected version %v)", e.Table, e.ID, e.ExpectedVersion)
}

func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

func (e *VersionConflictError) Details() map[string]any {
	return map[string]any{"table": e.Table, "id": e.ID, "expected_version": e.ExpectedVersion}
}

func invalidModel(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidModel, fmt.Sprintf(format, args...))
}
