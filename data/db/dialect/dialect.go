// Package dialect 数据库方言差异：标识符引号、占位符、RETURNING 与唯一键冲突识别。
package dialect

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	core "ormcore/data/db"
)

// Name 标准化的方言名
type Name string

const (
	NameMySQL    Name = "mysql"
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

const (
	mysqlDupEntry     = 1062
	pgUniqueViolation = "23505"
)

// traits 单个方言的差异
type traits struct {
	quote     [2]string
	dollar    bool
	returning bool
	// dupMarkers 错误消息中表示唯一键冲突的关键字（小写）
	dupMarkers []string
}

var table = map[Name]traits{
	NameMySQL: {
		quote:      [2]string{"`", "`"},
		dupMarkers: []string{"duplicate entry", "duplicate key"},
	},
	NameSQLite: {
		quote:      [2]string{`"`, `"`},
		returning:  true,
		dupMarkers: []string{"unique constraint failed"},
	},
	NamePostgres: {
		quote:      [2]string{`"`, `"`},
		dollar:     true,
		returning:  true,
		dupMarkers: []string{"duplicate key", "unique constraint", "sqlstate 23505"},
	},
	NameUnknown: {
		dupMarkers: []string{"duplicate key", "unique constraint"},
	},
}

// Dialect 值类型，可直接比较
type Dialect struct {
	name Name
}

var (
	MySQL    = Dialect{name: NameMySQL}
	SQLite   = Dialect{name: NameSQLite}
	Postgres = Dialect{name: NamePostgres}
)

var aliases = map[string]Name{
	"mysql":      NameMySQL,
	"sqlite":     NameSQLite,
	"sqlite3":    NameSQLite,
	"postgres":   NamePostgres,
	"postgresql": NamePostgres,
	"pgx":        NamePostgres,
	"pgx/v5":     NamePostgres,
}

// New 按 driver 名或方言名构造，大小写不敏感；无法识别时为 Unknown
func New(name string) Dialect {
	return Dialect{name: aliases[strings.ToLower(strings.TrimSpace(name))]}
}

// FromDatabase db 需实现 core.IDialectNameProvider，否则为 Unknown
func FromDatabase(db core.IDatabase) Dialect {
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{}
}

func (d Dialect) Name() Name { return d.name }

func (d Dialect) String() string {
	if d.name == NameUnknown {
		return "unknown"
	}
	return string(d.name)
}

func (d Dialect) traits() traits { return table[d.name] }

// QuoteIdentifier 限定名逐段加引号，未知方言原样返回；不校验标识符语法
func (d Dialect) QuoteIdentifier(name string) string {
	q := d.traits().quote
	if name == "" || q[0] == "" {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = q[0] + p + q[1]
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将 ? 改写为方言占位符；只有 Postgres 需要改写为 $n。
// 单引号字面量内的 ? 保持原样。
func (d Dialect) Rebind(query string) string {
	if !d.traits().dollar || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n, quoted := 0, false
	for _, r := range query {
		switch {
		case r == '\'':
			quoted = !quoted
		case r == '?' && !quoted:
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// SupportsReturning 是否支持 INSERT ... RETURNING
func (d Dialect) SupportsReturning() bool { return d.traits().returning }

// IsUniqueViolation 唯一键或主键冲突。优先识别驱动的结构化错误，
// 其余按消息关键字判断。
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDupEntry
	}
	msg := strings.ToLower(err.Error())
	for _, m := range d.traits().dupMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
