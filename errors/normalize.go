package errors

import (
	stdErrors "errors"

	"ormcore/data/orm"
)

// detailer 由 orm 包中携带上下文（模型、路径、原始值）的错误类型实现
type detailer interface {
	Details() map[string]any
}

// Normalize 将 orm 层错误规范化为 AppError。
//
// 约定：
//   - 已经是 IError 的错误原样返回；
//   - 路径解析/类型转换错误归为 INVALID_INPUT，缺少主键归为 VALIDATION_ERROR，
//     乐观锁冲突归为 CONCURRENCY_ERROR；
//   - orm 错误携带的模型、路径、原始值等信息复制到 Details；
//   - 未识别的错误保持原样，由调用方决定是否 Wrap。
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(IError); ok {
		return err
	}

	var normalized IError
	switch {
	case stdErrors.Is(err, orm.ErrUnknownProperty):
		normalized = WrapError(err, ErrCodeInvalidInput, "unknown property")
	case stdErrors.Is(err, orm.ErrAmbiguousPolymorphicPath):
		normalized = WrapError(err, ErrCodeInvalidInput, "property only declared on subtypes")
	case stdErrors.Is(err, orm.ErrUnsupportedPathOperation):
		normalized = WrapError(err, ErrCodeInvalidInput, "unsupported path operation")
	case stdErrors.Is(err, orm.ErrNullIntermediate):
		normalized = WrapError(err, ErrCodeInvalidInput, "null intermediate on path")
	case stdErrors.Is(err, orm.ErrConversion):
		normalized = WrapError(err, ErrCodeInvalidInput, "value conversion failed")
	case stdErrors.Is(err, orm.ErrCyclicPath):
		normalized = WrapError(err, ErrCodeInvalidInput, "cyclic property path")
	case stdErrors.Is(err, orm.ErrMissingIdentity):
		normalized = WrapError(err, ErrCodeValidation, "entity has no identity")
	case stdErrors.Is(err, orm.ErrVersionConflict):
		normalized = WrapError(err, ErrCodeConcurrency, "optimistic lock conflict")
	case stdErrors.Is(err, orm.ErrNotFound):
		normalized = WrapError(err, ErrCodeNotFound, "entity not found")
	case stdErrors.Is(err, orm.ErrUnsupported):
		normalized = WrapError(err, ErrCodeUnsupported, "capability unsupported")
	case stdErrors.Is(err, orm.ErrInvalidModel):
		normalized = WrapError(err, ErrCodeSchema, "invalid model metadata")
	default:
		return err
	}

	var d detailer
	if stdErrors.As(err, &d) {
		normalized = normalized.WithDetails(d.Details())
	}
	return normalized
}
