// Package reconcile 对一对多关联做分类，并决定是否删除已持久化的子记录。
//
// 分类依据只有两点：加载状态中是否有该属性的条目，以及赋值集合的来源标记。
// 分类结果是正常的控制流，不产生错误。
package reconcile

import (
	"ormcore/data/orm"
	"ormcore/data/orm/bean"
)

// Tag 关联集合的状态
type Tag int

const (
	// TagAbsent 从未读取或赋值
	TagAbsent Tag = iota
	// TagManagedEmpty 框架懒加载出的空集合，不代表调用方意图
	TagManagedEmpty
	// TagPlainEmpty 调用方显式赋值的空集合，表示清空关联
	TagPlainEmpty
	// TagPopulated 含至少一个元素
	TagPopulated
)

func (t Tag) String() string {
	switch t {
	case TagManagedEmpty:
		return "managed-empty"
	case TagPlainEmpty:
		return "plain-empty"
	case TagPopulated:
		return "populated"
	default:
		return "absent"
	}
}

// ActionKind 子记录处理方式
type ActionKind int

const (
	// ActionDeleteAll 删除全部已持久化子记录
	ActionDeleteAll ActionKind = iota + 1
	// ActionSync 保存提供的子记录，并按开关删除其余子记录
	ActionSync
)

func (k ActionKind) String() string {
	if k == ActionDeleteAll {
		return "delete_all"
	}
	return "sync"
}

// Action 一个一对多关联上的处理动作
type Action struct {
	Property *orm.PropertyMeta
	Tag      Tag
	Kind     ActionKind
	// Children 需要保存的子实例（ActionSync）
	Children []bean.IBean
	// Keep 保留的已有子记录主键；新建的子实例没有主键，不在其中
	Keep []any
	// DeleteMissing 是否删除不在 Keep 中的子记录
	DeleteMissing bool
}

// Classify 对实例上的一对多属性分类。已加载但值为 nil 视为 absent。
func Classify(b bean.IBean, p *orm.PropertyMeta) Tag {
	if p.Kind != orm.KindToMany || !b.Model().Has(p) {
		return TagAbsent
	}
	if !b.LoadState().IsLoadedIndex(p.Index()) {
		return TagAbsent
	}
	c, _ := b.PropertyValue(p).(*bean.Collection)
	if c == nil {
		return TagAbsent
	}
	if c.Len() > 0 {
		return TagPopulated
	}
	if c.Origin() == bean.OriginManaged {
		return TagManagedEmpty
	}
	return TagPlainEmpty
}

// Plan 按声明顺序为每个一对多属性生成动作，absent 与 managed-empty 不产生动作。
//
// 关闭 DeleteMissingChildren 时 plain-empty 不产生动作，populated 仍保存子实例但不删除。
func Plan(b bean.IBean, opts orm.UpdateOptions) []Action {
	var actions []Action
	for _, p := range b.Model().ManyProperties() {
		if opts.Restricted() && !opts.Includes(p.Name) {
			continue
		}
		tag := Classify(b, p)
		switch tag {
		case TagPlainEmpty:
			if opts.DeleteMissingChildren {
				actions = append(actions, Action{Property: p, Tag: tag, Kind: ActionDeleteAll, DeleteMissing: true})
			}
		case TagPopulated:
			c := b.PropertyValue(p).(*bean.Collection)
			children := c.Items()
			var keep []any
			for _, child := range children {
				if id := bean.IdentityOf(child); !bean.IsZeroIdentity(id) {
					keep = append(keep, id)
				}
			}
			actions = append(actions, Action{
				Property:      p,
				Tag:           tag,
				Kind:          ActionSync,
				Children:      children,
				Keep:          keep,
				DeleteMissing: opts.DeleteMissingChildren,
			})
		}
	}
	return actions
}
