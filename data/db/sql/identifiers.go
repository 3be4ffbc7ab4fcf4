package sql

import (
	"strings"

	"ormcore/data/db/dialect"
)

// isSafeIdentifier 判断标识符是否为“安全的数据库标识符”。
//
// 允许单一标识符（foo, bar_1）或带点的限定名（schema.table）；
// 每段非空，首字符为字母或下划线，后续为字母、数字或下划线。
func isSafeIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i := 0; i < len(part); i++ {
			ch := part[i]
			letter := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
			if i == 0 && !letter {
				return false
			}
			if i > 0 && !letter && !(ch >= '0' && ch <= '9') {
				return false
			}
		}
	}
	return true
}

// Eq 生成 `col = ?` 条件
func Eq(d dialect.Dialect, col string) string {
	mustSafe("column", col)
	return d.QuoteIdentifier(col) + " = ?"
}

// In 生成 `col IN (?, ...)` 条件；vals 为空时返回恒假条件
func In(d dialect.Dialect, col string, vals []any) (string, []any) {
	return in(d, col, vals, "IN", "1 = 0")
}

// NotIn 生成 `col NOT IN (?, ...)` 条件；vals 为空时返回恒真条件
func NotIn(d dialect.Dialect, col string, vals []any) (string, []any) {
	return in(d, col, vals, "NOT IN", "1 = 1")
}

func in(d dialect.Dialect, col string, vals []any, op, empty string) (string, []any) {
	mustSafe("column", col)
	if len(vals) == 0 {
		return empty, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
	args := make([]any, len(vals))
	copy(args, vals)
	return d.QuoteIdentifier(col) + " " + op + " (" + placeholders + ")", args
}

func mustSafe(kind, name string) {
	if !isSafeIdentifier(name) {
		panic("sql: unsafe " + kind + " name " + name)
	}
}
