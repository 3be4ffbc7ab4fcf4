package errors

import (
	"context"
	"runtime"
	"strconv"

	"ormcore/logging"
)

// Wrap 附加错误码，调用位置以 Debug 级别记录
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	logging.GetLogger().Debug(ctx, "error wrapped",
		logging.String("message", msg),
		logging.String("location", location(2)))
	return WrapError(err, code, msg)
}

// WrapWithLog 附加错误码并以 Warn 级别记录
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}
	warn(ctx, err, code, msg, location(2), fields)
	return WrapError(err, code, msg)
}

// WrapDatabaseError 包装执行器返回的数据库错误。
//
// orm 已知错误（未找到、乐观锁冲突等）按 Normalize 归类，不记录日志；
// 其余归为 DATABASE_ERROR。
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	if normalized := Normalize(err); normalized != err {
		return normalized
	}
	msg := "database operation failed: " + operation
	warn(ctx, err, ErrCodeDatabase, msg, location(2), []logging.Field{logging.String("operation", operation)})
	return WrapError(err, ErrCodeDatabase, msg)
}

func warn(ctx context.Context, err error, code ErrorCode, msg, loc string, extra []logging.Field) {
	fields := make([]logging.Field, 0, 3+len(extra))
	fields = append(fields,
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", loc))
	logging.GetLogger().Warn(ctx, msg, append(fields, extra...)...)
}

// location 返回 skip 层之上调用方的 file:line
func location(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}
