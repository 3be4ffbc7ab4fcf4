package orm

// UpdateOptions 控制一次部分更新的比较与级联行为。
//
// 作为显式参数贯穿 diff / reconcile / update 各阶段，不依赖进程级全局状态。
type UpdateOptions struct {
	// UpdateNullProperties 已加载的空值属性在“仅变更”模式下也写入
	UpdateNullProperties bool
	// DeleteMissingChildren 一对多关联同步时删除新集合中不存在的已持久化子记录；
	// 关闭后 plain-empty 与 populated 都不会删除任何子记录
	DeleteMissingChildren bool
	// UpdateAllLoaded 忽略值比较，写入全部已加载属性
	UpdateAllLoaded bool
	// InsertIfNew 主键为空时转为插入
	InsertIfNew bool
	// Include 非空时只考虑这些属性（显式变更集），且不要求其已加载
	Include []string
}

// DefaultUpdateOptions 默认选项：仅写变更、删除缺失子记录。
func DefaultUpdateOptions() UpdateOptions {
	return UpdateOptions{DeleteMissingChildren: true}
}

// Restricted 是否指定了显式变更集。
func (o UpdateOptions) Restricted() bool { return o.Include != nil }

// Includes 判断属性是否在显式变更集中；未指定变更集时总为 true。
func (o UpdateOptions) Includes(name string) bool {
	if o.Include == nil {
		return true
	}
	for _, n := range o.Include {
		if n == name {
			return true
		}
	}
	return false
}

// UpdateOption 用于配置 UpdateOptions。
type UpdateOption func(*UpdateOptions)

// WithUpdateNullProperties 设置是否写入空值属性。
func WithUpdateNullProperties(enabled bool) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.UpdateNullProperties = enabled
	}
}

// WithDeleteMissingChildren 设置是否删除缺失的子记录。
func WithDeleteMissingChildren(enabled bool) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.DeleteMissingChildren = enabled
	}
}

// WithUpdateAllLoaded 写入全部已加载属性。
func WithUpdateAllLoaded() UpdateOption {
	return func(opts *UpdateOptions) {
		opts.UpdateAllLoaded = true
	}
}

// WithInsertIfNew 主键为空时转为插入。
func WithInsertIfNew() UpdateOption {
	return func(opts *UpdateOptions) {
		opts.InsertIfNew = true
	}
}

// WithInclude 指定显式变更集。
func WithInclude(properties ...string) UpdateOption {
	return func(opts *UpdateOptions) {
		opts.Include = append(make([]string, 0, len(opts.Include)+len(properties)), opts.Include...)
		opts.Include = append(opts.Include, properties...)
	}
}

// CollectUpdateOptions 在 base 上依次应用 UpdateOption。
func CollectUpdateOptions(base UpdateOptions, options ...UpdateOption) UpdateOptions {
	opts := base
	for _, opt := range options {
		if opt != nil {
			opt(&opts)
		}
	}
	return opts
}
