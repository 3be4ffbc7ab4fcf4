package orm

import (
	"reflect"
	"strings"
	"time"

	"gorm.io/gorm/schema"

	"ormcore/data/orm/scalar"
)

var timeType = reflect.TypeOf(time.Time{})

// ModelFromStruct 按结构体字段声明标量属性，模型名为类型名。
//
// 列名依次取 gorm 的 column 设置、db 标签、json 标签，最后是字段名的 snake_case；
// gorm 的 primaryKey、not null 设置生效，orm:"version" 标记版本字段，
// gorm:"-" 或 orm:"-" 跳过字段。列名为 id 的字段视为主键。
// 表名取 schema.Tabler，否则为类型名的 snake_case。
//
// 关联无法从字段推断，调用方在返回的 builder 上继续声明。
func (c *Catalog) ModelFromStruct(v any) *ModelBuilder {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return c.Model("", "")
	}

	b := c.Model(t.Name(), tableName(t))
	declareFields(b, t)
	return b
}

func declareFields(b *ModelBuilder, t reflect.Type) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Type != timeType {
			declareFields(b, f.Type)
			continue
		}
		gormTag := schema.ParseTagSetting(f.Tag.Get("gorm"), ";")
		ormTag := schema.ParseTagSetting(f.Tag.Get("orm"), ",")
		if _, skip := gormTag["-"]; skip {
			continue
		}
		if _, skip := ormTag["-"]; skip {
			continue
		}
		typ, ok := scalar.ForGoType(f.Type)
		if !ok {
			continue
		}

		col := columnName(f, gormTag)
		opts := []PropertyOption{Column(col)}
		if _, ok := gormTag["NOT NULL"]; ok {
			opts = append(opts, NotNull())
		}
		_, pk := gormTag["PRIMARYKEY"]
		if _, ok := gormTag["PRIMARY_KEY"]; ok {
			pk = true
		}
		_, version := ormTag["VERSION"]

		switch {
		case pk || col == "id":
			b.ID(f.Name, typ, opts...)
		case version:
			b.Version(f.Name, typ, opts...)
		default:
			b.Scalar(f.Name, typ, opts...)
		}
	}
}

func columnName(f reflect.StructField, gormTag map[string]string) string {
	if col := gormTag["COLUMN"]; col != "" {
		return col
	}
	if col := f.Tag.Get("db"); col != "" {
		return col
	}
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return toSnakeCase(f.Name)
}

func tableName(t reflect.Type) string {
	if tb, ok := reflect.New(t).Interface().(schema.Tabler); ok {
		return tb.TableName()
	}
	return toSnakeCase(t.Name())
}
