// Package update 把差异结果与集合处理动作组装为一次部分更新。
//
// 只有变更的列出现在 SET 中；没有任何变更与子记录动作时返回 NoOp，
// 此时版本列不递增，也不访问存储。
package update

import (
	"fmt"
	"time"

	"github.com/spf13/cast"

	"ormcore/data/db/dialect"
	dbsql "ormcore/data/db/sql"
	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/diff"
	"ormcore/data/orm/reconcile"
	"ormcore/data/orm/scalar"
)

// now 时间型版本列的取值来源
var now = time.Now

// Assignment 一个 SET 列
type Assignment struct {
	Property *orm.PropertyMeta
	Column   string
	// Value 已绑定的驱动参数
	Value    any
	JdbcType int
}

// ChildOp 一个一对多关联上的子表操作
type ChildOp struct {
	Property       *orm.PropertyMeta
	Kind           reconcile.ActionKind
	Table          string
	ForeignKey     string
	IdentityColumn string
	// Keep 保留的已有子记录主键（已绑定）
	Keep []any
	// Delete 是否删除 Keep 之外的子记录
	Delete   bool
	Children []bean.IBean
}

// Operation 部分更新操作，零值即 NoOp
type Operation struct {
	Model          *orm.ModelMeta
	Table          string
	IdentityColumn string
	Identity       any
	Sets           []Assignment

	// VersionColumn 为空表示模型无版本列
	VersionColumn string
	// ExpectedVersion、NextVersion 为版本属性的原生值
	ExpectedVersion any
	NextVersion     any
	// VersionIncrement 原版本未知时以 `version = version + 1` 递增且不加版本条件
	VersionIncrement bool

	Children []ChildOp

	op          bool
	expectedArg any
	nextArg     any
}

// NoOp 无需任何写入的操作
var NoOp = Operation{}

// IsNoOp 没有任何需要执行的语句
func (o Operation) IsNoOp() bool { return !o.op }

// Columns SET 中的数据列（不含版本列）
func (o Operation) Columns() []string {
	cols := make([]string, len(o.Sets))
	for i, s := range o.Sets {
		cols[i] = s.Column
	}
	return cols
}

// Versioned 更新带乐观锁条件
func (o Operation) Versioned() bool {
	return o.VersionColumn != "" && !o.VersionIncrement
}

// HasRowUpdate 是否需要对主表执行 UPDATE
func (o Operation) HasRowUpdate() bool {
	return len(o.Sets) > 0 || o.VersionColumn != ""
}

// Build 组装部分更新。
//
// identity 为 nil 或零值时返回 MissingIdentityError；version 为 nil 表示原版本未知。
// 版本列只在存在列变更或子记录动作时递增。
func Build(model *orm.ModelMeta, identity, version any, changes diff.Result, actions []reconcile.Action) (Operation, error) {
	if model == nil {
		return NoOp, fmt.Errorf("%w: nil model", orm.ErrInvalidModel)
	}
	idProp := model.Identity()
	if idProp == nil || bean.IsZeroIdentity(identity) {
		return NoOp, &orm.MissingIdentityError{Model: model.Name}
	}
	if changes.IsEmpty() && len(actions) == 0 {
		return NoOp, nil
	}

	boundID, err := idProp.Type.Bind(identity)
	if err != nil {
		return NoOp, err
	}
	op := Operation{
		Model:          model,
		Table:          model.Table,
		IdentityColumn: idProp.Column,
		Identity:       boundID,
		op:             true,
	}

	for _, e := range changes.Entries {
		v, err := e.Property.Type.Bind(e.New)
		if err != nil {
			return NoOp, err
		}
		op.Sets = append(op.Sets, Assignment{
			Property: e.Property,
			Column:   e.Column(),
			Value:    v,
			JdbcType: e.JdbcType,
		})
	}

	if vp := model.VersionProperty(); vp != nil {
		op.VersionColumn = vp.Column
		if scalar.IsNil(version) {
			op.VersionIncrement = true
		} else {
			expected, err := vp.Type.Convert(version)
			if err != nil {
				return NoOp, err
			}
			next, err := nextVersion(vp, expected)
			if err != nil {
				return NoOp, err
			}
			if op.expectedArg, err = vp.Type.Bind(expected); err != nil {
				return NoOp, err
			}
			if op.nextArg, err = vp.Type.Bind(next); err != nil {
				return NoOp, err
			}
			op.ExpectedVersion = expected
			op.NextVersion = next
		}
	}

	for _, a := range actions {
		child, err := childOp(a)
		if err != nil {
			return NoOp, err
		}
		op.Children = append(op.Children, child)
	}
	return op, nil
}

// BuildFor 以实例当前的主键与版本组装部分更新
func BuildFor(b bean.IBean, changes diff.Result, actions []reconcile.Action) (Operation, error) {
	model := b.Model()
	var version any
	if vp := model.VersionProperty(); vp != nil {
		version = b.PropertyValue(vp)
	}
	return Build(model, bean.IdentityOf(b), version, changes, actions)
}

// nextVersion 整数版本加一，时间版本取当前时间；返回原生值
func nextVersion(vp *orm.PropertyMeta, current any) (any, error) {
	switch vp.Type.JdbcType() {
	case scalar.TypeTimestamp, scalar.TypeTimestampTZ:
		return vp.Type.Convert(now().UTC().Truncate(time.Millisecond))
	default:
		n, err := cast.ToInt64E(current)
		if err != nil {
			return nil, &orm.ConversionError{Value: current, Target: vp.Type.Name(), Err: err}
		}
		return vp.Type.Convert(n + 1)
	}
}

func childOp(a reconcile.Action) (ChildOp, error) {
	target := a.Property.Target
	if target == nil || target.Identity() == nil {
		return ChildOp{}, fmt.Errorf("%w: %s has no target identity", orm.ErrInvalidModel, a.Property.Name)
	}
	idProp := target.Identity()
	keep := make([]any, 0, len(a.Keep))
	for _, id := range a.Keep {
		v, err := idProp.Type.Bind(id)
		if err != nil {
			return ChildOp{}, err
		}
		keep = append(keep, v)
	}
	return ChildOp{
		Property:       a.Property,
		Kind:           a.Kind,
		Table:          target.Table,
		ForeignKey:     a.Property.ForeignKey,
		IdentityColumn: idProp.Column,
		Keep:           keep,
		Delete:         a.DeleteMissing,
		Children:       a.Children,
	}, nil
}

// Statement 一条可执行语句
type Statement struct {
	Query string
	Args  []any
	// Versioned 影响行数为 0 时表示乐观锁冲突
	Versioned bool
}

// RowUpdate 主表 UPDATE 语句；不需要更新主表时返回 false
func (o Operation) RowUpdate(d dialect.Dialect) (Statement, bool) {
	if o.IsNoOp() || !o.HasRowUpdate() {
		return Statement{}, false
	}
	b := dbsql.ForDialect(d).Update(o.Table)
	for _, s := range o.Sets {
		b.Set(s.Column, s.Value)
	}
	if o.VersionColumn != "" {
		if o.VersionIncrement {
			col := d.QuoteIdentifier(o.VersionColumn)
			b.SetExpr(col + " = " + col + " + 1")
		} else {
			b.Set(o.VersionColumn, o.nextArg)
		}
	}
	b.Where(dbsql.Eq(d, o.IdentityColumn), o.Identity)
	if o.Versioned() {
		b.Where(dbsql.Eq(d, o.VersionColumn), o.expectedArg)
	}
	q, args := b.Build()
	return Statement{Query: q, Args: args, Versioned: o.Versioned()}, true
}

// ChildDeletes 删除子记录的语句，按关联声明顺序
func (o Operation) ChildDeletes(d dialect.Dialect) []Statement {
	var out []Statement
	for _, c := range o.Children {
		if !c.Delete {
			continue
		}
		b := dbsql.ForDialect(d).DeleteFrom(c.Table).Where(dbsql.Eq(d, c.ForeignKey), o.Identity)
		if c.Kind == reconcile.ActionSync && len(c.Keep) > 0 {
			cond, args := dbsql.NotIn(d, c.IdentityColumn, c.Keep)
			b.Where(cond, args...)
		}
		q, args := b.Build()
		out = append(out, Statement{Query: q, Args: args})
	}
	return out
}

// SQL 主表 UPDATE 与子记录删除语句，按执行顺序
func (o Operation) SQL(d dialect.Dialect) []Statement {
	var out []Statement
	if st, ok := o.RowUpdate(d); ok {
		out = append(out, st)
	}
	return append(out, o.ChildDeletes(d)...)
}
