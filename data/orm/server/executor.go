package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbcore "ormcore/data/db"
	"ormcore/data/db/dialect"
	dbsql "ormcore/data/db/sql"
	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/scalar"
	"ormcore/data/orm/update"
	"ormcore/errors"
	"ormcore/logging"
)

// Column 插入时附加的列，例如单向一对多关联的外键
type Column struct {
	Name  string
	Value any
}

// IExecutor 会话执行器：执行已组装的操作，插入新行，读取已持久化的行。
type IExecutor interface {
	Capabilities() orm.Capabilities
	// Apply 执行主表 UPDATE 与子记录删除；乐观锁条件不满足时返回 VersionConflictError，
	// 无版本条件且行不存在时返回 ErrNotFound
	Apply(ctx context.Context, op update.Operation) error
	// Insert 插入实例已加载的属性，生成的主键与初始版本回写到实例
	Insert(ctx context.Context, b bean.IBean, extra ...Column) error
	// Snapshot 按主键读取行并构造干净的实例，不存在时返回 ErrNotFound
	Snapshot(ctx context.Context, model *orm.ModelMeta, id any) (bean.IBean, error)
	// InTx 在事务中执行 fn，已在事务中时复用
	InTx(ctx context.Context, fn func(IExecutor) error) error
}

// conn 执行器核心需要的最小连接能力
type conn interface {
	exec(ctx context.Context, q string, args []any) (sql.Result, error)
	query(ctx context.Context, q string, args []any) (rows, error)
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// core 方言感知的语句执行，SQLExecutor 与 GormExecutor 共用
type core struct {
	conn    conn
	dialect dialect.Dialect
	logger  logging.Logger
}

func (c *core) apply(ctx context.Context, op update.Operation) error {
	if op.IsNoOp() {
		return nil
	}
	if st, ok := op.RowUpdate(c.dialect); ok {
		res, err := c.conn.exec(ctx, st.Query, st.Args)
		if err != nil {
			return errors.WrapDatabaseError(ctx, err, "update "+op.Table)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.WrapDatabaseError(ctx, err, "update "+op.Table)
		}
		if n == 0 {
			if st.Versioned {
				return &orm.VersionConflictError{Table: op.Table, ID: op.Identity, ExpectedVersion: op.ExpectedVersion}
			}
			return fmt.Errorf("%w: %s id=%v", orm.ErrNotFound, op.Table, op.Identity)
		}
		c.logger.Debug(ctx, "row updated",
			logging.String("table", op.Table),
			logging.Any("id", op.Identity),
			logging.Any("columns", op.Columns()))
	}

	for _, st := range op.ChildDeletes(c.dialect) {
		res, err := c.conn.exec(ctx, st.Query, st.Args)
		if err != nil {
			return errors.WrapDatabaseError(ctx, err, "delete children")
		}
		n, _ := res.RowsAffected()
		c.logger.Debug(ctx, "children deleted",
			logging.String("sql", st.Query),
			logging.Int64("rows", n))
	}
	return nil
}

func (c *core) insert(ctx context.Context, b bean.IBean, extra []Column) error {
	model := b.Model()
	idProp := model.Identity()
	if idProp == nil {
		return &orm.MissingIdentityError{Model: model.Name}
	}
	state := b.LoadState()

	var cols []string
	var vals []any
	add := func(col string, v any) {
		for i, c := range cols {
			if c == col {
				vals[i] = v
				return
			}
		}
		cols = append(cols, col)
		vals = append(vals, v)
	}

	generated := bean.IsZeroIdentity(bean.IdentityOf(b))
	for _, p := range model.Properties() {
		switch {
		case p.Kind == orm.KindToMany:
			continue
		case p.PrimaryKey && generated:
			continue
		case p.Version:
			if v := b.PropertyValue(p); v == nil || !state.IsLoadedIndex(p.Index()) {
				initial, err := initialVersion(p)
				if err != nil {
					return err
				}
				b.SetPropertyValue(p, initial)
			}
		case !state.IsLoadedIndex(p.Index()):
			continue
		}
		v := b.PropertyValue(p)
		if p.Kind == orm.KindToOne {
			ref, _ := v.(bean.IBean)
			v = bean.IdentityOf(ref)
		}
		bound, err := p.Type.Bind(v)
		if err != nil {
			return err
		}
		add(p.Column, bound)
	}
	if model.DiscriminatorColumn != "" {
		add(model.DiscriminatorColumn, model.DiscriminatorValue)
	}
	for _, e := range extra {
		add(e.Name, e.Value)
	}
	if len(cols) == 0 {
		return fmt.Errorf("%w: %s has nothing to insert", orm.ErrInvalidModel, model.Name)
	}

	ins := dbsql.ForDialect(c.dialect).InsertInto(model.Table).Columns(cols...).Values(vals...)

	// pgx 不支持 LastInsertId
	if generated && c.dialect.Name() == dialect.NamePostgres {
		q, args := ins.Returning(idProp.Column).Build()
		rs, err := c.conn.query(ctx, q, args)
		if err != nil {
			return c.insertError(ctx, err, model.Table)
		}
		defer rs.Close()
		var id any
		if rs.Next() {
			if err := rs.Scan(&id); err != nil {
				return errors.WrapDatabaseError(ctx, err, "insert "+model.Table)
			}
		}
		if err := rs.Err(); err != nil {
			return errors.WrapDatabaseError(ctx, err, "insert "+model.Table)
		}
		return setIdentity(b, id)
	}

	q, args := ins.Build()
	res, err := c.conn.exec(ctx, q, args)
	if err != nil {
		return c.insertError(ctx, err, model.Table)
	}
	if generated {
		id, err := res.LastInsertId()
		if err != nil {
			return errors.WrapDatabaseError(ctx, err, "insert "+model.Table)
		}
		if err := setIdentity(b, id); err != nil {
			return err
		}
	}
	c.logger.Debug(ctx, "row inserted",
		logging.String("table", model.Table),
		logging.Any("id", bean.IdentityOf(b)),
		logging.Any("columns", cols))
	return nil
}

// insertError 主键或唯一键冲突归为 CONFLICT
func (c *core) insertError(ctx context.Context, err error, table string) error {
	if c.dialect.IsUniqueViolation(err) {
		return errors.Wrap(ctx, err, errors.ErrCodeConflict, "insert "+table+": duplicate key")
	}
	return errors.WrapDatabaseError(ctx, err, "insert "+table)
}

func setIdentity(b bean.IBean, id any) error {
	idProp := b.Model().Identity()
	v, err := idProp.Type.Convert(id)
	if err != nil {
		return err
	}
	b.SetPropertyValue(idProp, v)
	return nil
}

// initialVersion 整数版本从 1 开始，时间版本取当前时间
func initialVersion(p *orm.PropertyMeta) (any, error) {
	switch p.Type.JdbcType() {
	case scalar.TypeTimestamp, scalar.TypeTimestampTZ:
		return p.Type.Convert(time.Now().UTC().Truncate(time.Millisecond))
	default:
		return p.Type.Convert(1)
	}
}

func (c *core) snapshot(ctx context.Context, model *orm.ModelMeta, id any) (bean.IBean, error) {
	idProp := model.Identity()
	if idProp == nil || bean.IsZeroIdentity(id) {
		return nil, &orm.MissingIdentityError{Model: model.Name}
	}
	boundID, err := idProp.Type.Bind(id)
	if err != nil {
		return nil, err
	}

	var props []*orm.PropertyMeta
	var cols []string
	for _, p := range model.Properties() {
		if p.Kind == orm.KindToMany {
			continue
		}
		props = append(props, p)
		cols = append(cols, p.Column)
	}

	q, args := dbsql.ForDialect(c.dialect).Select(cols...).
		From(model.Table).
		Where(dbsql.Eq(c.dialect, idProp.Column), boundID).
		Build()
	rs, err := c.conn.query(ctx, q, args)
	if err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "select "+model.Table)
	}
	defer rs.Close()

	if !rs.Next() {
		if err := rs.Err(); err != nil {
			return nil, errors.WrapDatabaseError(ctx, err, "select "+model.Table)
		}
		return nil, fmt.Errorf("%w: %s id=%v", orm.ErrNotFound, model.Table, id)
	}
	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rs.Scan(dest...); err != nil {
		return nil, errors.WrapDatabaseError(ctx, err, "scan "+model.Table)
	}

	values := make(map[string]any, len(props))
	for i, p := range props {
		v := raw[i]
		// 部分驱动以 []byte 返回文本列
		if bs, ok := v.([]byte); ok && p.Type.JdbcType() != scalar.TypeVarbinary {
			v = string(bs)
		}
		values[p.Name] = v
	}
	return bean.Loaded(model, values)
}

// SQLExecutor 基于 data/db.IDatabase 的执行器
type SQLExecutor struct {
	db dbcore.IDatabase
	core
}

// NewSQLExecutor 方言从数据库推断
func NewSQLExecutor(db dbcore.IDatabase, logger logging.Logger) *SQLExecutor {
	if logger == nil {
		logger = logging.GetLogger().WithFields(logging.String("component", "orm.executor"))
	}
	return &SQLExecutor{
		db: db,
		core: core{
			conn:    dbConn{db: db},
			dialect: dialect.FromDatabase(db),
			logger:  logger,
		},
	}
}

func (e *SQLExecutor) Capabilities() orm.Capabilities {
	caps := orm.NewCapabilities(
		orm.CapabilityBasicCRUD,
		orm.CapabilityAssociationWrite,
		orm.CapabilityTransaction,
		orm.CapabilityOptimisticLock,
		orm.CapabilitySnapshot,
	)
	if e.dialect.SupportsReturning() {
		caps = caps.With(orm.CapabilityReturning)
	}
	return caps
}

func (e *SQLExecutor) Apply(ctx context.Context, op update.Operation) error {
	return e.apply(ctx, op)
}

func (e *SQLExecutor) Insert(ctx context.Context, b bean.IBean, extra ...Column) error {
	return e.insert(ctx, b, extra)
}

func (e *SQLExecutor) Snapshot(ctx context.Context, model *orm.ModelMeta, id any) (bean.IBean, error) {
	return e.snapshot(ctx, model, id)
}

func (e *SQLExecutor) InTx(ctx context.Context, fn func(IExecutor) error) error {
	return dbcore.InTx(ctx, e.db, func(tx dbcore.IDatabase) error {
		return fn(&SQLExecutor{
			db:   tx,
			core: core{conn: dbConn{db: tx}, dialect: e.dialect, logger: e.logger},
		})
	})
}

type dbConn struct{ db dbcore.IDatabase }

func (c dbConn) exec(ctx context.Context, q string, args []any) (sql.Result, error) {
	return c.db.Exec(ctx, q, args...)
}

func (c dbConn) query(ctx context.Context, q string, args []any) (rows, error) {
	return c.db.Query(ctx, q, args...)
}
