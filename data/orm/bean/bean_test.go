package bean

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ormcore/data/orm"
	"ormcore/data/orm/internal/ormtest"
	"ormcore/data/orm/scalar"
)

func TestLoadState_MarkAndQuery(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")
	s := NewLoadState(customer, nil)

	assert.False(t, s.IsLoaded("name"))
	s.MarkLoaded("name")
	s.MarkLoaded("name")
	s.MarkLoaded("id")
	assert.True(t, s.IsLoaded("name"))

	// 未声明的属性不会进入条目集合
	s.MarkLoaded("noSuchProperty")
	assert.False(t, s.IsLoaded("noSuchProperty"))

	assert.Equal(t, []string{"id", "name"}, s.LoadedProperties())

	clone := s.Clone()
	s.Reset()
	assert.Empty(t, s.LoadedProperties())
	assert.Equal(t, []string{"id", "name"}, clone.LoadedProperties())

	assert.False(t, s.IsLoadedIndex(-1))
	assert.False(t, s.IsLoadedIndex(1000))
	s.MarkLoadedIndex(1000)
	assert.Empty(t, s.LoadedProperties())

	clone.UnmarkLoadedIndex(0)
	clone.UnmarkLoadedIndex(-1)
	clone.UnmarkLoadedIndex(1000)
	assert.Equal(t, []string{"name"}, clone.LoadedProperties())
}

func TestBean_SetMarksLoaded(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")
	b := New(customer)
	assert.Same(t, b, b.LoadState().Owner())

	require.NoError(t, b.Set("name", "Rob"))
	require.NoError(t, b.Set("id", "5"))
	require.NoError(t, b.Set("status", nil))

	assert.Equal(t, int64(5), b.ID())
	assert.Equal(t, []string{"id", "name", "status"}, b.LoadState().LoadedProperties())

	v, err := b.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "Rob", v)
}

func TestBean_SetErrors(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")
	b := New(customer)

	err := b.Set("nope", 1)
	assert.True(t, errors.Is(err, orm.ErrUnknownProperty))

	err = b.Set("id", "abc")
	assert.True(t, errors.Is(err, orm.ErrConversion))
	assert.False(t, b.LoadState().IsLoaded("id"))

	err = b.Set("contacts", "x")
	assert.True(t, errors.Is(err, orm.ErrConversion))

	_, err = b.Many("name")
	assert.True(t, errors.Is(err, orm.ErrUnknownProperty))
}

func TestBean_LazyManyIsManaged(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")
	b := New(customer)

	contacts, err := b.Many("contacts")
	require.NoError(t, err)
	assert.Equal(t, OriginManaged, contacts.Origin())
	assert.Equal(t, 0, contacts.Len())
	assert.True(t, b.LoadState().IsLoaded("contacts"))

	again, err := b.Many("contacts")
	require.NoError(t, err)
	assert.Same(t, contacts, again)

	require.NoError(t, b.SetMany("contacts", NewPlain()))
	replaced, _ := b.Many("contacts")
	assert.Equal(t, OriginPlain, replaced.Origin())
}

func TestBean_ToOne(t *testing.T) {
	cat := ormtest.Catalog()
	customer := cat.MustGet("Customer")
	address := cat.MustGet("Address")

	b := New(customer)
	require.NoError(t, b.Set("billingAddress", 10))
	ref, err := b.One("billingAddress")
	require.NoError(t, err)
	assert.Equal(t, int64(10), IdentityOf(ref))
	assert.Equal(t, address, ref.Model())

	var typedNil *Bean
	require.NoError(t, b.SetOne("billingAddress", typedNil))
	ref, _ = b.One("billingAddress")
	assert.Nil(t, ref)
	assert.True(t, b.LoadState().IsLoaded("billingAddress"))

	// 目标类型不匹配
	err = b.Set("billingAddress", New(customer))
	assert.True(t, errors.Is(err, orm.ErrConversion))
}

func TestBean_LoadedSnapshot(t *testing.T) {
	customer := ormtest.Catalog().MustGet("Customer")
	b, err := Loaded(customer, map[string]any{
		"id":        5,
		"version":   1,
		"name":      "x",
		"birthDate": "2001-02-03",
	})
	require.NoError(t, err)

	orig := b.Original()
	require.NotNil(t, orig)
	name, _ := customer.Property("name")
	assert.Equal(t, "x", orig.PropertyValue(name))
	assert.Equal(t, scalar.CivilDate{Year: 2001, Month: time.February, Day: 3}, mustGet(t, b, "birthDate"))

	b.MustSet("name", "y")
	assert.Equal(t, "x", orig.PropertyValue(name))
	assert.Equal(t, int64(1), b.Version())

	b.MarkClean()
	assert.Equal(t, "y", b.Original().PropertyValue(name))

	_, err = Loaded(customer, map[string]any{"id": 1, "bogus": 2})
	assert.True(t, errors.Is(err, orm.ErrUnknownProperty))
}

func TestBean_PropertyOfOtherSubtype(t *testing.T) {
	cat := ormtest.Catalog()
	car := cat.MustGet("Car")
	truck := New(cat.MustGet("Truck"))

	driver, _ := car.Property("driver")
	truck.SetPropertyValue(driver, "bob")
	assert.Nil(t, truck.PropertyValue(driver))
	assert.Empty(t, truck.LoadState().LoadedProperties())
}

func mustGet(t *testing.T, b *Bean, name string) any {
	v, err := b.Get(name)
	require.NoError(t, err)
	return v
}
