package server

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"ormcore/data/db/dialect"
	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/update"
	"ormcore/logging"
)

// GormExecutor 在 *gorm.DB 的连接池上执行部分更新。
//
// 语句由 update 包按 gorm 方言渲染，直接交给 ConnPool 执行，不经过 gorm 的回调链。
type GormExecutor struct {
	db   *gorm.DB
	inTx bool
	core
}

// NewGormExecutor 方言取自 gorm Dialector 名称
func NewGormExecutor(db *gorm.DB, logger logging.Logger) *GormExecutor {
	if logger == nil {
		logger = logging.GetLogger().WithFields(logging.String("component", "orm.executor.gorm"))
	}
	d := dialect.New(db.Dialector.Name())
	return &GormExecutor{
		db:   db,
		core: core{conn: gormConn{db: db, dialect: d}, dialect: d, logger: logger},
	}
}

func (e *GormExecutor) Capabilities() orm.Capabilities {
	return orm.NewCapabilities(
		orm.CapabilityBasicCRUD,
		orm.CapabilityAssociationWrite,
		orm.CapabilityTransaction,
		orm.CapabilityOptimisticLock,
		orm.CapabilitySnapshot,
	)
}

func (e *GormExecutor) Apply(ctx context.Context, op update.Operation) error {
	return e.apply(ctx, op)
}

func (e *GormExecutor) Insert(ctx context.Context, b bean.IBean, extra ...Column) error {
	return e.insert(ctx, b, extra)
}

func (e *GormExecutor) Snapshot(ctx context.Context, model *orm.ModelMeta, id any) (bean.IBean, error) {
	return e.snapshot(ctx, model, id)
}

func (e *GormExecutor) InTx(ctx context.Context, fn func(IExecutor) error) error {
	if e.inTx {
		return fn(e)
	}
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormExecutor{
			db:   tx,
			inTx: true,
			core: core{conn: gormConn{db: tx, dialect: e.dialect}, dialect: e.dialect, logger: e.logger},
		})
	})
}

// gormConn 通过 Statement.ConnPool 执行，事务内即为 *sql.Tx
type gormConn struct {
	db      *gorm.DB
	dialect dialect.Dialect
}

func (c gormConn) exec(ctx context.Context, q string, args []any) (sql.Result, error) {
	return c.db.WithContext(ctx).Statement.ConnPool.ExecContext(ctx, c.dialect.Rebind(q), args...)
}

func (c gormConn) query(ctx context.Context, q string, args []any) (rows, error) {
	return c.db.WithContext(ctx).Statement.ConnPool.QueryContext(ctx, c.dialect.Rebind(q), args...)
}
