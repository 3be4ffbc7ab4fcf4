// Package diff 比较实例与其原始快照，得出需要写入的标量属性。
package diff

import (
	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/scalar"
)

// Entry 一个需要写入的属性
type Entry struct {
	Property *orm.PropertyMeta
	// Old 原始值，仅 HasOld 为 true 时有意义
	Old    any
	HasOld bool
	New    any
	// JdbcType 写入值的存储类型码，一对一关联为目标主键的类型码
	JdbcType int
}

func (e Entry) Name() string   { return e.Property.Name }
func (e Entry) Column() string { return e.Property.Column }

// Result 按模型声明顺序排列的差异
type Result struct {
	Entries []Entry
}

// IsEmpty 没有任何属性需要写入
func (r Result) IsEmpty() bool { return len(r.Entries) == 0 }

// Names 属性名列表
func (r Result) Names() []string {
	names := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		names[i] = e.Property.Name
	}
	return names
}

// Diff 计算 updated 相对 original 的差异，original 可为 nil。
//
// 候选属性：updated 上已加载的标量属性与一对一关联（主键、版本、一对多除外）；
// 指定了显式变更集时候选集为该集合，且不要求已加载。
//
// 模式：
//   - 仅变更（默认）：无原始值，或原始值与新值按类型语义不相等时写入；
//     新值为空时，只有原始值存在且非空才写入
//   - UpdateNullProperties：已加载的空值属性也写入
//   - UpdateAllLoaded：忽略比较，写入全部候选属性
func Diff(original, updated bean.IBean, opts orm.UpdateOptions) Result {
	var res Result
	if isNil(updated) {
		return res
	}
	if isNil(original) {
		original = nil
	}

	state := updated.LoadState()
	explicit := opts.Restricted()

	for _, p := range updated.Model().Properties() {
		if p.PrimaryKey || p.Version || p.Kind == orm.KindToMany {
			continue
		}
		if explicit {
			if !opts.Includes(p.Name) {
				continue
			}
		} else if !state.IsLoadedIndex(p.Index()) {
			continue
		}

		newV := valueOf(updated, p)

		var oldV any
		hasOld := false
		if original != nil && original.Model().Has(p) && original.LoadState().IsLoadedIndex(p.Index()) {
			oldV = valueOf(original, p)
			hasOld = true
		}

		if newV == nil && !opts.UpdateNullProperties && !opts.UpdateAllLoaded && !explicit {
			// 原始值缺失时空值无从比较，跳过
			if !hasOld || oldV == nil {
				continue
			}
		}
		if !opts.UpdateAllLoaded && hasOld && p.Type.Equal(oldV, newV) {
			continue
		}

		res.Entries = append(res.Entries, Entry{
			Property: p,
			Old:      oldV,
			HasOld:   hasOld,
			New:      newV,
			JdbcType: p.Type.JdbcType(),
		})
	}
	return res
}

// valueOf 标量取原生值，一对一关联取目标主键
func valueOf(b bean.IBean, p *orm.PropertyMeta) any {
	v := b.PropertyValue(p)
	if p.Kind == orm.KindToOne {
		ref, _ := v.(bean.IBean)
		return bean.IdentityOf(ref)
	}
	return v
}

func isNil(b bean.IBean) bool { return scalar.IsNil(b) }
