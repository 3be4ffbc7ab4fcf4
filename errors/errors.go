// Package errors 带错误码的应用错误，以及 orm 错误到错误码的映射。
package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
)

// ErrorCode 错误代码
type ErrorCode string

const (
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeUnsupported  ErrorCode = "UNSUPPORTED"

	// 持久化相关
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeConcurrency ErrorCode = "CONCURRENCY_ERROR"
	ErrCodeSchema      ErrorCode = "SCHEMA_ERROR"
	ErrCodeDatabase    ErrorCode = "DATABASE_ERROR"
	ErrCodePublish     ErrorCode = "PUBLISH_ERROR"
)

// IError 带错误码的错误，With* 方法返回副本
type IError interface {
	error

	Code() ErrorCode
	Message() string
	Cause() error
	// Details 模型、路径、原始值等上下文
	Details() map[string]any
	// Stack 创建位置的调用栈
	Stack() string

	Is(target error) bool
	Wrap(msg string) IError
	WithDetails(details map[string]any) IError
	WithContext(key string, value any) IError
}

// AppError IError 的实现
type AppError struct {
	code    ErrorCode
	message string
	cause   error
	details map[string]any
	pcs     []uintptr
}

// NewError 创建新错误
func NewError(code ErrorCode, message string) IError {
	return &AppError{code: code, message: message, pcs: callers()}
}

// WrapError 包装错误，err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) IError {
	if err == nil {
		return nil
	}
	return &AppError{code: code, message: message, cause: err, pcs: callers()}
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

func (e *AppError) Code() ErrorCode { return e.code }
func (e *AppError) Message() string { return e.message }
func (e *AppError) Cause() error    { return e.cause }
func (e *AppError) Unwrap() error   { return e.cause }

// Details 返回副本，从不为 nil
func (e *AppError) Details() map[string]any {
	if e.details == nil {
		return map[string]any{}
	}
	return maps.Clone(e.details)
}

// Stack 格式化为 "file:line function" 每帧一行
func (e *AppError) Stack() string {
	if len(e.pcs) == 0 {
		return ""
	}
	var sb strings.Builder
	frames := runtime.CallersFrames(e.pcs)
	for {
		f, more := frames.Next()
		fmt.Fprintf(&sb, "%s:%d %s\n", f.File, f.Line, f.Function)
		if !more {
			break
		}
	}
	return sb.String()
}

// Is 同错误码的 AppError 视为相等，否则比较 cause 链
func (e *AppError) Is(target error) bool {
	if target == nil {
		return false
	}
	if other, ok := target.(*AppError); ok {
		return e.code == other.code
	}
	return e.cause != nil && stdErrors.Is(e.cause, target)
}

// Wrap 以当前错误为 cause 生成新的错误，错误码保持不变
func (e *AppError) Wrap(msg string) IError {
	return &AppError{
		code:    e.code,
		message: msg + ": " + e.message,
		cause:   e,
		details: maps.Clone(e.details),
		pcs:     callers(),
	}
}

func (e *AppError) WithDetails(details map[string]any) IError {
	c := e.clone()
	maps.Copy(c.details, details)
	return c
}

func (e *AppError) WithContext(key string, value any) IError {
	c := e.clone()
	c.details[key] = value
	return c
}

func (e *AppError) clone() *AppError {
	c := *e
	c.details = make(map[string]any, len(e.details)+1)
	maps.Copy(c.details, e.details)
	return &c
}

// IsNotFound 是否为未找到错误
func IsNotFound(err error) bool {
	return IsErrorCode(err, ErrCodeNotFound)
}

// IsConcurrency 是否为乐观锁冲突
func IsConcurrency(err error) bool {
	return IsErrorCode(err, ErrCodeConcurrency)
}

// IsErrorCode 错误链上第一个 AppError 的错误码是否为 code
func IsErrorCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stdErrors.As(err, &appErr) && appErr.code == code
}

// GetErrorCode 获取错误代码，非 AppError 一律视为内部错误
func GetErrorCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stdErrors.As(err, &appErr) {
		return appErr.code
	}
	return ErrCodeInternal
}

// callers 跳过 runtime.Callers、callers 与构造函数本身
func callers() []uintptr {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n:n]
}
