package server

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"ormcore/changefeed"
	dbcore "ormcore/data/db"
	"ormcore/data/db/basic"
	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/internal/ormtest"
	apperrors "ormcore/errors"
	"ormcore/logging"
)

const seed = `
INSERT INTO o_customer (id, version, name, status) VALUES (5, 3, 'x', 'ACTIVE');
INSERT INTO o_customer (id, version, name, status) VALUES (6, 1, 'other', 'ACTIVE');
INSERT INTO contact (id, first_name, customer_id) VALUES (10, 'a', 5);
INSERT INTO contact (id, first_name, customer_id) VALUES (11, 'b', 5);
INSERT INTO contact (id, first_name, customer_id) VALUES (20, 'c', 6);
`

type fixture struct {
	ctx  context.Context
	cat  *orm.Catalog
	db   *basic.DB
	exec *SQLExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := basic.Open("sqlite", ":memory:", dbcore.DBConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ExecScript(ctx, ormtest.Schema))
	require.NoError(t, db.ExecScript(ctx, seed))
	return &fixture{
		ctx:  ctx,
		cat:  ormtest.Catalog(),
		db:   db,
		exec: NewSQLExecutor(db, logging.NewNoopLogger()),
	}
}

func (f *fixture) server(opts ...Option) *Server {
	return New(f.exec, append([]Option{WithLogger(logging.NewNoopLogger())}, opts...)...)
}

func (f *fixture) load(t *testing.T, model string, id any) *bean.Bean {
	t.Helper()
	b, err := f.exec.Snapshot(f.ctx, f.cat.MustGet(model), id)
	require.NoError(t, err)
	return b.(*bean.Bean)
}

func (f *fixture) queryInt(t *testing.T, q string, args ...any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.QueryRow(f.ctx, q, args...).Scan(&n))
	return n
}

func (f *fixture) queryString(t *testing.T, q string, args ...any) string {
	t.Helper()
	var s string
	require.NoError(t, f.db.QueryRow(f.ctx, q, args...).Scan(&s))
	return s
}

func (f *fixture) contactIDs(t *testing.T, customerID int64) []int64 {
	t.Helper()
	rows, err := f.db.Query(f.ctx, "SELECT id FROM contact WHERE customer_id = ? ORDER BY id", customerID)
	require.NoError(t, err)
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func (f *fixture) version(t *testing.T, id int64) int64 {
	return f.queryInt(t, "SELECT version FROM o_customer WHERE id = ?", id)
}

func TestUpdate_IdentityOnlyIsNoOp(t *testing.T) {
	f := newFixture(t)
	srv := f.server()

	b := bean.New(f.cat.MustGet("Customer")).MustSet("id", 5)
	res, err := srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Op.IsNoOp())
	assert.False(t, res.Executed)
	assert.Equal(t, int64(3), f.version(t, 5))
}

func TestUpdate_DetachedUnchangedIsNoOp(t *testing.T) {
	f := newFixture(t)

	b := bean.New(f.cat.MustGet("Customer")).MustSet("id", 5).MustSet("name", "x")
	res, err := f.server().Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Op.IsNoOp())
	assert.False(t, res.Executed)
	assert.Equal(t, int64(3), f.version(t, 5))

	// 关闭比较后已加载属性都视为变更，版本未知时在 SQL 中递增
	b = bean.New(f.cat.MustGet("Customer")).MustSet("id", 5).MustSet("name", "x")
	res, err = f.server(WithCompareDetached(false)).Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.True(t, res.Op.VersionIncrement)
	assert.Equal(t, int64(4), f.version(t, 5))
	assert.Nil(t, b.Version())
}

func TestUpdate_OnlyChangedColumns(t *testing.T) {
	f := newFixture(t)
	srv := f.server()

	b := f.load(t, "Customer", 5)
	b.MustSet("name", "y")

	res, err := srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, []string{"name"}, res.Op.Columns())
	assert.Equal(t, "y", f.queryString(t, "SELECT name FROM o_customer WHERE id = ?", 5))
	assert.Equal(t, "ACTIVE", f.queryString(t, "SELECT status FROM o_customer WHERE id = ?", 5))
	assert.Equal(t, int64(4), f.version(t, 5))
	assert.Equal(t, int64(4), b.Version())

	// 提交后快照刷新，再次更新为空操作
	res, err = srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Op.IsNoOp())
	assert.Equal(t, int64(4), f.version(t, 5))
}

func TestUpdate_AbsentCollectionLeavesChildren(t *testing.T) {
	f := newFixture(t)

	b := f.load(t, "Customer", 5)
	b.MustSet("status", "INACTIVE")
	_, err := f.server().Update(f.ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, f.contactIDs(t, 5))
}

func TestUpdate_ManagedEmptyLeavesChildren(t *testing.T) {
	f := newFixture(t)
	srv := f.server()

	b := f.load(t, "Customer", 5)
	contacts, err := b.Many("contacts")
	require.NoError(t, err)
	assert.Equal(t, 0, contacts.Len())

	res, err := srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Op.IsNoOp())
	assert.Equal(t, int64(3), f.version(t, 5))

	b.MustSet("status", "INACTIVE")
	_, err = srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, f.contactIDs(t, 5))
}

func TestUpdate_PlainEmptyDeletesAllChildren(t *testing.T) {
	f := newFixture(t)
	srv := f.server()

	b := f.load(t, "Customer", 5)
	require.NoError(t, b.SetMany("contacts", bean.NewPlain()))

	res, err := srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Empty(t, res.Op.Columns())
	assert.Empty(t, f.contactIDs(t, 5))
	assert.Equal(t, []int64{20}, f.contactIDs(t, 6))
	assert.Equal(t, int64(4), f.version(t, 5))

	// 已保存的集合转为托管集合，不再重复删除
	res, err = srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Op.IsNoOp())
	assert.Equal(t, int64(4), f.version(t, 5))
}

func TestUpdate_PopulatedSynchronizesChildren(t *testing.T) {
	f := newFixture(t)
	contact := f.cat.MustGet("Contact")

	b := f.load(t, "Customer", 5)
	kept := bean.New(contact).MustSet("id", 10).MustSet("firstName", "a2")
	fresh := bean.New(contact).MustSet("firstName", "new")
	require.NoError(t, b.SetMany("contacts", bean.NewPlain(kept, fresh)))

	res, err := f.server().Update(f.ctx, b)
	require.NoError(t, err)
	require.Len(t, res.Op.Children, 1)

	newID, ok := fresh.ID().(int64)
	require.True(t, ok)
	assert.NotZero(t, newID)
	assert.Equal(t, []int64{10, newID}, f.contactIDs(t, 5))
	assert.Equal(t, "a2", f.queryString(t, "SELECT first_name FROM contact WHERE id = ?", 10))
	assert.Equal(t, "new", f.queryString(t, "SELECT first_name FROM contact WHERE id = ?", newID))
	assert.Equal(t, []int64{20}, f.contactIDs(t, 6))
	assert.Equal(t, int64(4), f.version(t, 5))
}

func TestUpdate_FailedChildRestoresEntitiesForRetry(t *testing.T) {
	f := newFixture(t)
	srv := f.server()
	contact := f.cat.MustGet("Contact")
	customerProp, _ := contact.Property("customer")

	b := f.load(t, "Customer", 5)
	fresh := bean.New(contact).MustSet("firstName", "new")
	ghost := bean.New(contact).MustSet("id", 999).MustSet("firstName", "g")
	require.NoError(t, b.SetMany("contacts", bean.NewPlain(fresh, ghost)))

	_, err := srv.Update(f.ctx, b)
	require.ErrorIs(t, err, orm.ErrNotFound)

	// 回滚后实例回到写入前的状态
	assert.Nil(t, fresh.ID())
	assert.False(t, fresh.LoadState().IsLoaded("id"))
	assert.False(t, fresh.LoadState().IsLoadedIndex(customerProp.Index()))
	assert.Equal(t, int64(3), b.Version())
	assert.Equal(t, []int64{10, 11}, f.contactIDs(t, 5))
	assert.Equal(t, int64(3), f.version(t, 5))

	require.NoError(t, b.SetMany("contacts", bean.NewPlain(fresh)))
	res, err := srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Executed)

	newID, ok := fresh.ID().(int64)
	require.True(t, ok)
	assert.Equal(t, []int64{newID}, f.contactIDs(t, 5))
	assert.Equal(t, "new", f.queryString(t, "SELECT first_name FROM contact WHERE id = ?", newID))
	assert.Equal(t, int64(4), f.version(t, 5))
}

func TestInsert_FailureRestoresIdentityAndVersion(t *testing.T) {
	f := newFixture(t)
	contact := f.cat.MustGet("Contact")

	b := bean.New(f.cat.MustGet("Customer")).MustSet("name", "n")
	ghost := bean.New(contact).MustSet("id", 999).MustSet("firstName", "g")
	require.NoError(t, b.SetMany("contacts", bean.NewPlain(ghost)))

	_, err := f.server().Insert(f.ctx, b)
	require.ErrorIs(t, err, orm.ErrNotFound)

	assert.Nil(t, b.ID())
	assert.Nil(t, b.Version())
	assert.False(t, b.LoadState().IsLoaded("version"))
	assert.Nil(t, b.Original())
	assert.Equal(t, int64(2), f.queryInt(t, "SELECT COUNT(*) FROM o_customer"))
}

func TestUpdate_DeleteMissingChildrenDisabled(t *testing.T) {
	f := newFixture(t)
	srv := f.server()
	contact := f.cat.MustGet("Contact")

	b := f.load(t, "Customer", 5)
	require.NoError(t, b.SetMany("contacts", bean.NewPlain(bean.New(contact).MustSet("id", 10).MustSet("firstName", "a2"))))
	_, err := srv.Update(f.ctx, b, orm.WithDeleteMissingChildren(false))
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, f.contactIDs(t, 5))
	assert.Equal(t, "a2", f.queryString(t, "SELECT first_name FROM contact WHERE id = ?", 10))

	b = f.load(t, "Customer", 5)
	require.NoError(t, b.SetMany("contacts", bean.NewPlain()))
	res, err := srv.Update(f.ctx, b, orm.WithDeleteMissingChildren(false))
	require.NoError(t, err)
	assert.True(t, res.Op.IsNoOp())
	assert.Equal(t, []int64{10, 11}, f.contactIDs(t, 5))
}

func TestUpdate_VersionConflict(t *testing.T) {
	f := newFixture(t)

	b := f.load(t, "Customer", 5)
	_, err := f.db.Exec(f.ctx, "UPDATE o_customer SET version = 9 WHERE id = 5")
	require.NoError(t, err)

	b.MustSet("name", "y")
	_, err = f.server().Update(f.ctx, b)
	require.Error(t, err)
	assert.True(t, IsConflict(err))

	var vce *orm.VersionConflictError
	require.True(t, errors.As(err, &vce))
	assert.Equal(t, int64(3), vce.ExpectedVersion)
	assert.Equal(t, "x", f.queryString(t, "SELECT name FROM o_customer WHERE id = ?", 5))
	assert.Equal(t, int64(3), b.Version())
}

func TestUpdate_ConflictLeavesChildren(t *testing.T) {
	f := newFixture(t)

	b := f.load(t, "Customer", 5)
	_, err := f.db.Exec(f.ctx, "UPDATE o_customer SET version = 9 WHERE id = 5")
	require.NoError(t, err)

	require.NoError(t, b.SetMany("contacts", bean.NewPlain()))
	_, err = f.server().Update(f.ctx, b)
	assert.ErrorIs(t, err, orm.ErrVersionConflict)
	assert.Equal(t, []int64{10, 11}, f.contactIDs(t, 5))
}

func TestUpdate_NotFound(t *testing.T) {
	f := newFixture(t)
	srv := f.server()

	c := bean.New(f.cat.MustGet("Contact")).MustSet("id", 999).MustSet("firstName", "z")
	_, err := srv.Update(f.ctx, c)
	assert.ErrorIs(t, err, orm.ErrNotFound)

	_, err = f.server(WithCompareDetached(false)).Update(f.ctx, c)
	assert.ErrorIs(t, err, orm.ErrNotFound)
}

func TestUpdate_MissingIdentity(t *testing.T) {
	f := newFixture(t)

	b := bean.New(f.cat.MustGet("Customer")).MustSet("name", "n")
	_, err := f.server().Update(f.ctx, b)
	var mie *orm.MissingIdentityError
	require.True(t, errors.As(err, &mie))
	assert.Equal(t, "Customer", mie.Model)
}

func TestUpdate_InsertIfNew(t *testing.T) {
	f := newFixture(t)
	contact := f.cat.MustGet("Contact")

	b := bean.New(f.cat.MustGet("Customer")).MustSet("name", "n")
	require.NoError(t, b.SetMany("contacts", bean.NewPlain(bean.New(contact).MustSet("firstName", "k"))))

	res, err := f.server().Update(f.ctx, b, orm.WithInsertIfNew())
	require.NoError(t, err)
	assert.True(t, res.Inserted)

	id, ok := b.ID().(int64)
	require.True(t, ok)
	assert.NotZero(t, id)
	assert.Equal(t, int64(1), b.Version())
	assert.Equal(t, int64(1), f.version(t, id))
	assert.Len(t, f.contactIDs(t, id), 1)
	assert.NotNil(t, b.Original())
}

func TestInsert_DuplicateKeyIsConflict(t *testing.T) {
	f := newFixture(t)
	b := bean.New(f.cat.MustGet("Contact")).MustSet("id", 10).MustSet("firstName", "dup").MustSet("customer", 5)

	_, err := f.server().Insert(f.ctx, b)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorCode(err, apperrors.ErrCodeConflict))
	assert.Equal(t, "a", f.queryString(t, "SELECT first_name FROM contact WHERE id = ?", 10))
}

func TestUpdateExplicit(t *testing.T) {
	f := newFixture(t)
	srv := f.server()

	b := f.load(t, "Customer", 5)
	b.MustSet("name", "y").MustSet("status", "Z")

	res, err := srv.UpdateExplicit(f.ctx, b, []string{"status"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"status"}, res.Op.Columns())
	assert.Equal(t, "x", f.queryString(t, "SELECT name FROM o_customer WHERE id = ?", 5))
	assert.Equal(t, "Z", f.queryString(t, "SELECT status FROM o_customer WHERE id = ?", 5))

	// 变更集之外的修改保留，之后的更新仍会写入
	res, err = srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.Contains(t, res.Op.Columns(), "name")
	assert.Equal(t, "y", f.queryString(t, "SELECT name FROM o_customer WHERE id = ?", 5))

	_, err = srv.UpdateExplicit(f.ctx, b, []string{"nope"}, false)
	assert.ErrorIs(t, err, orm.ErrUnknownProperty)

	// 忽略值比较，写入全部已加载属性
	b = f.load(t, "Customer", 5)
	res, err = srv.UpdateExplicit(f.ctx, b, nil, true)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Subset(t, res.Op.Columns(), []string{"name", "status"})
}

func TestUpdate_PublishesChangeEvent(t *testing.T) {
	f := newFixture(t)
	pub := changefeed.NewMemoryPublisher(nil)
	srv := f.server(WithPublisher(pub))

	b := f.load(t, "Customer", 5)
	b.MustSet("name", "y")
	require.NoError(t, b.SetMany("contacts", bean.NewPlain()))
	_, err := srv.Update(f.ctx, b)
	require.NoError(t, err)

	// 空操作不发布
	_, err = srv.Update(f.ctx, b)
	require.NoError(t, err)

	events := pub.Events()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, changefeed.KindUpdate, e.Kind)
	assert.Equal(t, "Customer", e.Model)
	assert.Equal(t, "o_customer", e.Table)
	assert.Equal(t, []string{"name"}, e.Columns)
	assert.Equal(t, int64(4), e.Version)
	assert.Equal(t, []string{"contacts"}, e.Children)
	assert.Equal(t, "customer.update", e.Subject())
}

func TestUpdate_PublishFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	rec := &recordingLogger{}
	srv := New(f.exec, WithLogger(rec), WithPublisher(changefeed.NewMemoryPublisher(errors.New("broker down"))))

	b := f.load(t, "Customer", 5)
	b.MustSet("name", "y")
	res, err := srv.Update(f.ctx, b)
	require.NoError(t, err)
	assert.True(t, res.Executed)
	assert.Equal(t, "y", f.queryString(t, "SELECT name FROM o_customer WHERE id = ?", 5))
	assert.Contains(t, rec.warnings(), "publish change event failed")
}

func TestUpdate_Metrics(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	again, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, m.writes, again.writes)

	srv := f.server(WithMetrics(m))
	b := f.load(t, "Customer", 5)
	_, err = srv.Update(f.ctx, b)
	require.NoError(t, err)
	b.MustSet("name", "y")
	_, err = srv.Update(f.ctx, b)
	require.NoError(t, err)

	stale := f.load(t, "Customer", 6)
	_, err = f.db.Exec(f.ctx, "UPDATE o_customer SET version = 7 WHERE id = 6")
	require.NoError(t, err)
	stale.MustSet("name", "z")
	_, err = srv.Update(f.ctx, stale)
	require.Error(t, err)

	assert.Equal(t, float64(1), counterValue(t, reg, "Customer", OutcomeNoop))
	assert.Equal(t, float64(1), counterValue(t, reg, "Customer", OutcomeUpdated))
	assert.Equal(t, float64(1), counterValue(t, reg, "Customer", OutcomeConflict))
}

func TestUpdate_UnsupportedCapability(t *testing.T) {
	f := newFixture(t)
	srv := New(limitedExecutor{f.exec}, WithLogger(logging.NewNoopLogger()))

	b := f.load(t, "Customer", 5)
	require.NoError(t, b.SetMany("contacts", bean.NewPlain()))
	_, err := srv.Update(f.ctx, b)
	assert.ErrorIs(t, err, orm.ErrUnsupported)
	assert.Equal(t, []int64{10, 11}, f.contactIDs(t, 5))
}

// limitedExecutor 不支持关联写入与事务
type limitedExecutor struct{ *SQLExecutor }

func (limitedExecutor) Capabilities() orm.Capabilities {
	return orm.NewCapabilities(orm.CapabilityBasicCRUD, orm.CapabilityOptimisticLock)
}

func counterValue(t *testing.T, reg *prometheus.Registry, model, outcome string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "ormcore_orm_writes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["model"] == model && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

type recordingLogger struct {
	mu   sync.Mutex
	warn []string
}

func (l *recordingLogger) Debug(context.Context, string, ...logging.Field) {}
func (l *recordingLogger) Info(context.Context, string, ...logging.Field)  {}
func (l *recordingLogger) Error(context.Context, string, ...logging.Field) {}

func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warn = append(l.warn, msg)
}

func (l *recordingLogger) WithFields(...logging.Field) logging.Logger { return l }

func (l *recordingLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warn...)
}
