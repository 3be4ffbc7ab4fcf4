package path

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/internal/ormtest"
	"ormcore/data/orm/scalar"
)

func TestResolve_NestedScalar(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")

	ep, err := Resolve(customer, "billingAddress.country.name")
	require.NoError(t, err)
	assert.False(t, ep.ContainsMany())
	assert.Equal(t, scalar.TypeVarchar, ep.JdbcType())
	assert.Equal(t, "name", ep.Leaf().Name)
	assert.Len(t, ep.Segments(), 3)
	assert.Equal(t, "billingAddress.country.name", ep.String())
	assert.False(t, ep.IsDateTimeCapable())
}

func TestResolve_Errors(t *testing.T) {
	cat := ormtest.Catalog()

	tests := []struct {
		name   string
		root   string
		path   string
		target error
	}{
		{"未知属性", "Customer", "nope", orm.ErrUnknownProperty},
		{"嵌套未知属性", "Customer", "billingAddress.zip", orm.ErrUnknownProperty},
		{"标量后继续", "Customer", "name.first", orm.ErrUnknownProperty},
		{"空段", "Customer", "billingAddress..city", orm.ErrUnknownProperty},
		{"仅子类型声明", "Vehicle", "owner.name", orm.ErrAmbiguousPolymorphicPath},
		{"经由关联的仅子类型声明", "VehicleLease", "vehicle.owner.name", orm.ErrAmbiguousPolymorphicPath},
		{"循环", "Customer", "contacts.customer.contacts.firstName", orm.ErrCyclicPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(cat.MustGet(tt.root), tt.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), err.Error())
		})
	}
}

func TestResolve_AmbiguousCarriesSubtypes(t *testing.T) {
	cat := ormtest.Catalog()

	_, err := Resolve(cat.MustGet("Vehicle"), "owner.name")
	var ambiguous *orm.AmbiguousPolymorphicPathError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, "Vehicle", ambiguous.Model)
	assert.Equal(t, "owner", ambiguous.Property)
	assert.Equal(t, []string{"Car"}, ambiguous.DeclaredOn)

	// 以具体子类型为根即可解析
	ep, err := Resolve(cat.MustGet("Car"), "owner.name")
	require.NoError(t, err)
	assert.Equal(t, scalar.TypeVarchar, ep.JdbcType())
}

func TestResolve_MaxDepth(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")
	long := strings.Repeat("billingAddress.", MaxDepth) + "city"

	_, err := Resolve(customer, long)
	var cyclic *orm.CyclicPathError
	require.True(t, errors.As(err, &cyclic))
	assert.Equal(t, MaxDepth, cyclic.Depth)
}

func TestPath_RoundTrip(t *testing.T) {
	cat := ormtest.Catalog()
	order := bean.New(cat.MustGet("Order"))
	customer := bean.New(cat.MustGet("Customer"))
	address := bean.New(cat.MustGet("Address"))
	require.NoError(t, customer.SetOne("billingAddress", address))
	require.NoError(t, order.SetOne("customer", customer))

	tests := []struct {
		path  string
		value any
	}{
		{"customer.billingAddress.city", "Auckland"},
		{"customer.id", "17"},
		{"customer.birthDate", "1999-12-31"},
		{"customer.updatedAt", int64(1700000000000)},
		{"status", 2},
		{"customer.name", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ep, err := Resolve(order.Model(), tt.path)
			require.NoError(t, err)

			want, err := ep.Convert(tt.value)
			require.NoError(t, err)

			require.NoError(t, ep.PathSet(order, tt.value))
			got, ok := ep.PathGet(order)
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}

	assert.True(t, address.LoadState().IsLoaded("city"))
	assert.True(t, order.LoadState().IsLoaded("status"))
}

func TestPath_NullIntermediate(t *testing.T) {
	cat := ormtest.Catalog()
	order := bean.New(cat.MustGet("Order"))

	ep, err := Resolve(order.Model(), "customer.billingAddress.city")
	require.NoError(t, err)

	got, ok := ep.PathGet(order)
	assert.False(t, ok)
	assert.Nil(t, got)

	err = ep.PathSet(order, "x")
	var nullErr *orm.NullIntermediateError
	require.True(t, errors.As(err, &nullErr))
	assert.Equal(t, "customer", nullErr.Segment)

	require.NoError(t, order.SetOne("customer", bean.New(cat.MustGet("Customer"))))
	err = ep.PathSet(order, "x")
	require.True(t, errors.As(err, &nullErr))
	assert.Equal(t, "customer.billingAddress", nullErr.Segment)
}

func TestPath_ContainsMany(t *testing.T) {
	cat := ormtest.Catalog()
	customer := bean.New(cat.MustGet("Customer"))
	contact := cat.MustGet("Contact")
	require.NoError(t, customer.SetMany("contacts", bean.NewPlain(
		bean.New(contact).MustSet("firstName", "Jim"),
		bean.New(contact).MustSet("firstName", "Fiona"),
	)))

	ep, err := Resolve(customer.Model(), "contacts.firstName")
	require.NoError(t, err)
	assert.True(t, ep.ContainsMany())

	got, ok := ep.PathGet(customer)
	require.True(t, ok)
	assert.Equal(t, []any{"Jim", "Fiona"}, got)

	err = ep.PathSet(customer, "Bob")
	assert.True(t, errors.Is(err, orm.ErrUnsupportedPathOperation))

	// 末段为一对多不算 containsMany
	leafMany, err := Resolve(customer.Model(), "contacts")
	require.NoError(t, err)
	assert.False(t, leafMany.ContainsMany())
	assert.Equal(t, scalar.TypeNotScalar, leafMany.JdbcType())
	assert.Nil(t, leafMany.StringParser())
}

func TestPath_PolymorphicInstances(t *testing.T) {
	cat := ormtest.Catalog()
	car := bean.New(cat.MustGet("Car")).MustSet("licenseNumber", "C-1").MustSet("driver", "Ann")
	truck := bean.New(cat.MustGet("Truck")).MustSet("licenseNumber", "T-1")

	// 在父类型上解析的路径适用于任意子类型实例
	license, err := Resolve(cat.MustGet("Vehicle"), "licenseNumber")
	require.NoError(t, err)
	for want, b := range map[string]bean.IBean{"C-1": car, "T-1": truck} {
		got, ok := license.PathGet(b)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}

	driver, err := Resolve(cat.MustGet("Car"), "driver")
	require.NoError(t, err)
	_, ok := driver.PathGet(truck)
	assert.False(t, ok)
	assert.True(t, errors.Is(driver.PathSet(truck, "x"), orm.ErrUnknownProperty))

	lease := bean.New(cat.MustGet("VehicleLease"))
	require.NoError(t, lease.SetOne("vehicle", car))
	viaLease, err := Resolve(lease.Model(), "vehicle.licenseNumber")
	require.NoError(t, err)
	got, ok := viaLease.PathGet(lease)
	require.True(t, ok)
	assert.Equal(t, "C-1", got)
}

func TestPath_DateTimeAndParsers(t *testing.T) {
	orderModel := ormtest.Catalog().MustGet("Order")

	orderDate, err := Resolve(orderModel, "orderDate")
	require.NoError(t, err)
	assert.True(t, orderDate.IsDateTimeCapable())
	assert.Equal(t, scalar.TypeDate, orderDate.JdbcType())

	ms := time.Date(2023, 7, 1, 22, 15, 0, 0, time.UTC).UnixMilli()
	v, err := orderDate.ParseDateTime(ms)
	require.NoError(t, err)
	assert.Equal(t, scalar.CivilDate{Year: 2023, Month: time.July, Day: 1}, v)

	status, err := Resolve(orderModel, "status")
	require.NoError(t, err)
	assert.False(t, status.IsDateTimeCapable())
	_, err = status.ParseDateTime(ms)
	assert.True(t, errors.Is(err, orm.ErrUnsupportedPathOperation))

	parsed, err := status.StringParser()("1")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", parsed)

	_, err = status.Convert("UNKNOWN")
	var convErr *orm.ConversionError
	require.True(t, errors.As(err, &convErr))
	assert.Equal(t, "UNKNOWN", convErr.Value)
	assert.Equal(t, "OrderStatus", convErr.Target)

	customer, err := Resolve(orderModel, "customer")
	require.NoError(t, err)
	assert.Equal(t, scalar.TypeNotScalar, customer.JdbcType())
	id, err := customer.StringParser()("12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	ref, err := customer.Convert(12)
	require.NoError(t, err)
	assert.Equal(t, int64(12), bean.IdentityOf(ref.(bean.IBean)))
}

func TestCache_ResolveOnce(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")
	c := NewCache(16)

	first, err := c.Resolve(customer, "billingAddress.city")
	require.NoError(t, err)
	second, err := c.Resolve(customer, "billingAddress.city")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = c.Resolve(customer, "nope")
	assert.Error(t, err)
	_, err = c.Resolve(customer, "nope")
	assert.Error(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestCache_ConcurrentResolve(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")
	c := NewCache(0)

	var wg sync.WaitGroup
	results := make([]*ExpressionPath, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ep, err := c.Resolve(customer, "billingAddress.country.name")
			assert.NoError(t, err)
			results[i] = ep
		}(i)
	}
	wg.Wait()
	for _, ep := range results {
		assert.Same(t, results[0], ep)
	}
}
