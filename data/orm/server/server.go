// Package server 部分更新的入口。
//
// 一次 Update 依次经过：差异比较（diff）、一对多关联分类（reconcile）、
// 组装操作（update），然后在事务中交给 IExecutor 执行并保存子记录。
// 事务提交后刷新实例快照、发布变更通知并记录指标。
package server

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"ormcore/changefeed"
	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/diff"
	"ormcore/data/orm/reconcile"
	"ormcore/data/orm/scalar"
	"ormcore/data/orm/update"
	"ormcore/logging"
)

// Result 一次写入的结果
type Result struct {
	// Op 主实例上组装的操作，插入时为 NoOp
	Op update.Operation
	// Executed 是否执行了写语句
	Executed bool
	// Inserted 主键为空且按 InsertIfNew 转为插入
	Inserted bool
}

// Server 部分更新服务
type Server struct {
	exec            IExecutor
	logger          logging.Logger
	metrics         *Metrics
	publisher       changefeed.IPublisher
	defaults        orm.UpdateOptions
	compareDetached bool
}

// Option 配置 Server
type Option func(*Server)

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics 设置指标
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithPublisher 设置变更通知发布者
func WithPublisher(p changefeed.IPublisher) Option {
	return func(s *Server) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithDefaultOptions 设置 Update 使用的默认选项
func WithDefaultOptions(opts orm.UpdateOptions) Option {
	return func(s *Server) { s.defaults = opts }
}

// WithCompareDetached 实例没有快照时是否读取已持久化的行作为比较基准，默认开启。
// 关闭后游离实例的已加载属性都视为变更
func WithCompareDetached(enabled bool) Option {
	return func(s *Server) { s.compareDetached = enabled }
}

// New 创建 Server
func New(exec IExecutor, opts ...Option) *Server {
	s := &Server{
		exec:      exec,
		logger:    logging.GetLogger().WithFields(logging.String("component", "orm.server")),
		publisher: changefeed.NoopPublisher{},
		defaults:  orm.DefaultUpdateOptions(),

		compareDetached: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update 以默认选项更新实例，可追加 UpdateOption
func (s *Server) Update(ctx context.Context, b bean.IBean, opts ...orm.UpdateOption) (Result, error) {
	return s.UpdateWithOptions(ctx, b, orm.CollectUpdateOptions(s.defaults, opts...))
}

// UpdateExplicit 只考虑 changed 中的属性；updateAllLoaded 为 true 时忽略值比较。
// changed 为 nil 时候选集为全部已加载属性。
func (s *Server) UpdateExplicit(ctx context.Context, b bean.IBean, changed []string, updateAllLoaded bool) (Result, error) {
	if scalar.IsNil(b) {
		return Result{}, fmt.Errorf("%w: nil entity", orm.ErrInvalidModel)
	}
	opts := s.defaults
	opts.UpdateAllLoaded = updateAllLoaded
	if changed != nil {
		for _, name := range changed {
			if _, ok := b.Model().Property(name); !ok {
				return Result{}, &orm.UnknownPropertyError{Model: b.Model().Name, Property: name, Path: name}
			}
		}
		opts.Include = append([]string{}, changed...)
	}
	return s.UpdateWithOptions(ctx, b, opts)
}

// UpdateWithOptions 按 opts 更新实例。
//
// 没有任何变更与子记录动作时不执行写语句，版本列保持不变。
// 主键为空时返回 MissingIdentityError，开启 InsertIfNew 时转为插入。
func (s *Server) UpdateWithOptions(ctx context.Context, b bean.IBean, opts orm.UpdateOptions) (Result, error) {
	if scalar.IsNil(b) {
		return Result{}, fmt.Errorf("%w: nil entity", orm.ErrInvalidModel)
	}
	model := b.Model()
	if bean.IsZeroIdentity(bean.IdentityOf(b)) {
		if opts.InsertIfNew {
			return s.Insert(ctx, b)
		}
		s.metrics.report(model.Name, OutcomeError, time.Time{})
		return Result{}, &orm.MissingIdentityError{Model: model.Name}
	}
	if err := s.require(orm.CapabilityBasicCRUD); err != nil {
		return Result{}, err
	}

	start := time.Now()
	w := &work{}
	var res Result
	err := s.inTx(ctx, w, func(exec IExecutor) error {
		var err error
		res, err = s.update(ctx, exec, w, b, opts)
		return err
	})
	if err != nil {
		s.metrics.report(model.Name, outcomeOf(err, OutcomeError), start)
		s.logger.Warn(ctx, "update failed",
			logging.String("model", model.Name),
			logging.Any("id", bean.IdentityOf(b)),
			logging.Error(err))
		return Result{}, err
	}
	if !res.Executed {
		s.metrics.report(model.Name, OutcomeNoop, start)
		s.logger.Debug(ctx, "nothing to update",
			logging.String("model", model.Name),
			logging.Any("id", bean.IdentityOf(b)))
		return res, nil
	}

	w.commit()
	s.metrics.report(model.Name, OutcomeUpdated, start)
	s.logger.Info(ctx, "entity updated",
		logging.String("model", model.Name),
		logging.Any("id", bean.IdentityOf(b)),
		logging.Any("columns", res.Op.Columns()),
		logging.Int("children", len(res.Op.Children)),
		logging.Duration("elapsed", time.Since(start)))

	e := changefeed.NewEvent(changefeed.KindUpdate, model.Name, model.Table, bean.IdentityOf(b))
	e.Columns = res.Op.Columns()
	e.Version = res.Op.NextVersion
	for _, c := range res.Op.Children {
		e.Children = append(e.Children, c.Property.Name)
	}
	s.publish(ctx, e)
	return res, nil
}

// Insert 插入实例及其一对多关联中的子实例
func (s *Server) Insert(ctx context.Context, b bean.IBean) (Result, error) {
	if scalar.IsNil(b) {
		return Result{}, fmt.Errorf("%w: nil entity", orm.ErrInvalidModel)
	}
	if err := s.require(orm.CapabilityBasicCRUD); err != nil {
		return Result{}, err
	}
	model := b.Model()
	start := time.Now()
	w := &work{}
	err := s.inTx(ctx, w, func(exec IExecutor) error {
		return s.insert(ctx, exec, w, b, nil)
	})
	if err != nil {
		s.metrics.report(model.Name, outcomeOf(err, OutcomeError), start)
		s.logger.Warn(ctx, "insert failed",
			logging.String("model", model.Name),
			logging.Error(err))
		return Result{}, err
	}

	w.commit()
	s.metrics.report(model.Name, OutcomeInserted, start)
	s.logger.Info(ctx, "entity inserted",
		logging.String("model", model.Name),
		logging.Any("id", bean.IdentityOf(b)),
		logging.Duration("elapsed", time.Since(start)))

	e := changefeed.NewEvent(changefeed.KindInsert, model.Name, model.Table, bean.IdentityOf(b))
	if vp := model.VersionProperty(); vp != nil {
		e.Version = b.PropertyValue(vp)
	}
	s.publish(ctx, e)
	return Result{Op: update.NoOp, Executed: true, Inserted: true}, nil
}

func (s *Server) update(ctx context.Context, exec IExecutor, w *work, b bean.IBean, opts orm.UpdateOptions) (Result, error) {
	model := b.Model()
	caps := exec.Capabilities()

	original := b.Original()
	if original == nil && s.compareDetached && !opts.UpdateAllLoaded {
		if err := caps.Require(orm.CapabilitySnapshot); err != nil {
			return Result{}, err
		}
		snap, err := exec.Snapshot(ctx, model, bean.IdentityOf(b))
		if err != nil {
			return Result{}, err
		}
		original = snap
	}

	changes := diff.Diff(original, b, opts)
	actions := reconcile.Plan(b, opts)
	if len(actions) > 0 {
		if err := caps.Require(orm.CapabilityAssociationWrite); err != nil {
			return Result{}, err
		}
	}

	version := versionOf(b)
	if version == nil && original != nil {
		version = versionOf(original)
	}
	op, err := update.Build(model, bean.IdentityOf(b), version, changes, actions)
	if err != nil {
		return Result{}, err
	}
	if op.IsNoOp() {
		return Result{Op: op}, nil
	}
	if op.Versioned() {
		if err := caps.Require(orm.CapabilityOptimisticLock); err != nil {
			return Result{}, err
		}
	}

	if err := exec.Apply(ctx, op); err != nil {
		return Result{}, err
	}
	w.add(b, op.NextVersion, op.Children, !opts.Restricted())

	childOpts := opts
	childOpts.Include = nil
	childOpts.InsertIfNew = false
	for _, c := range op.Children {
		for _, child := range c.Children {
			if err := s.saveChild(ctx, exec, w, b, c.Property, child, childOpts); err != nil {
				return Result{}, err
			}
		}
	}
	return Result{Op: op, Executed: true}, nil
}

func (s *Server) insert(ctx context.Context, exec IExecutor, w *work, b bean.IBean, extra []Column) error {
	// 执行器回写生成的主键与初始版本
	model := b.Model()
	w.remember(b, model.Identity(), model.VersionProperty())
	if err := exec.Insert(ctx, b, extra...); err != nil {
		return err
	}
	var saved []update.ChildOp
	for _, p := range b.Model().ManyProperties() {
		if reconcile.Classify(b, p) != reconcile.TagPopulated {
			continue
		}
		c := b.PropertyValue(p).(*bean.Collection)
		children := c.Items()
		for _, child := range children {
			if err := s.saveChild(ctx, exec, w, b, p, child, s.defaults); err != nil {
				return err
			}
		}
		saved = append(saved, update.ChildOp{Property: p, Children: children})
	}
	w.add(b, nil, saved, true)
	return nil
}

// saveChild 设置子实例指向父实例的外键，主键为空时插入，否则按差异更新
func (s *Server) saveChild(ctx context.Context, exec IExecutor, w *work, parent bean.IBean, p *orm.PropertyMeta, child bean.IBean, opts orm.UpdateOptions) error {
	var extra []Column
	if back := backReference(p, child.Model()); back != nil {
		if ref, _ := child.PropertyValue(back).(bean.IBean); ref != parent {
			w.remember(child, back)
			child.SetPropertyValue(back, parent)
		}
	} else {
		id, err := parent.Model().Identity().Type.Bind(bean.IdentityOf(parent))
		if err != nil {
			return err
		}
		extra = append(extra, Column{Name: p.ForeignKey, Value: id})
	}

	if bean.IsZeroIdentity(bean.IdentityOf(child)) {
		return s.insert(ctx, exec, w, child, extra)
	}
	_, err := s.update(ctx, exec, w, child, opts)
	return err
}

// backReference 子模型上与一对多外键相同的一对一关联
func backReference(p *orm.PropertyMeta, child *orm.ModelMeta) *orm.PropertyMeta {
	for _, cp := range child.Properties() {
		if cp.Kind == orm.KindToOne && cp.ForeignKey == p.ForeignKey {
			return cp
		}
	}
	return nil
}

// inTx 事务回滚时撤销写入期间对实例的修改；
// 不支持事务时已执行的语句不会回滚，实例保持与存储一致
func (s *Server) inTx(ctx context.Context, w *work, fn func(IExecutor) error) error {
	if !s.exec.Capabilities().Supports(orm.CapabilityTransaction) {
		return fn(s.exec)
	}
	err := s.exec.InTx(ctx, fn)
	if err != nil {
		w.rollback()
	}
	return err
}

func (s *Server) require(c orm.Capability) error {
	return s.exec.Capabilities().Require(c)
}

// publish 发布失败只记录日志，写入已提交
func (s *Server) publish(ctx context.Context, e changefeed.Event) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn(ctx, "publish change event failed",
			logging.String("subject", e.Subject()),
			logging.String("event_id", e.ID),
			logging.Error(err))
	}
}

func versionOf(b bean.IBean) any {
	vp := b.Model().VersionProperty()
	if vp == nil || !b.LoadState().IsLoadedIndex(vp.Index()) {
		return nil
	}
	return b.PropertyValue(vp)
}

// IsConflict 判断错误是否为乐观锁冲突
func IsConflict(err error) bool {
	return stdErrors.Is(err, orm.ErrVersionConflict)
}

// written 本次成功写入的实例
type written struct {
	b        bean.IBean
	version  any
	children []update.ChildOp
	// clean 显式变更集之外的修改仍需保留为未写入状态
	clean bool
}

// undo 属性在写入前的值与加载状态
type undo struct {
	b      bean.IBean
	p      *orm.PropertyMeta
	value  any
	loaded bool
}

// work 事务内的写入记录，提交后统一刷新实例
type work struct {
	items []written
	undos []undo
}

func (w *work) remember(b bean.IBean, props ...*orm.PropertyMeta) {
	for _, p := range props {
		if p == nil {
			continue
		}
		w.undos = append(w.undos, undo{
			b:      b,
			p:      p,
			value:  b.PropertyValue(p),
			loaded: b.LoadState().IsLoadedIndex(p.Index()),
		})
	}
}

// rollback 逆序恢复，同一属性多次修改时回到最早的值
func (w *work) rollback() {
	for i := len(w.undos) - 1; i >= 0; i-- {
		u := w.undos[i]
		u.b.SetPropertyValue(u.p, u.value)
		if !u.loaded {
			u.b.LoadState().UnmarkLoadedIndex(u.p.Index())
		}
	}
	w.items, w.undos = nil, nil
}

func (w *work) add(b bean.IBean, version any, children []update.ChildOp, clean bool) {
	w.items = append(w.items, written{b: b, version: version, children: children, clean: clean})
}

// commit 写入新版本并以当前值作为快照；已保存的集合转为托管集合，
// 再次更新时空集合不会重复删除子记录
func (w *work) commit() {
	for _, it := range w.items {
		model := it.b.Model()
		if vp := model.VersionProperty(); vp != nil && it.version != nil {
			it.b.SetPropertyValue(vp, it.version)
		}
		for _, c := range it.children {
			it.b.SetPropertyValue(c.Property, bean.NewManaged(c.Children...))
		}
		if it.clean {
			it.b.MarkClean()
		}
	}
}
