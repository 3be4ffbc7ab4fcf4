package codec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ormcore/data/orm"
	"ormcore/data/orm/bean"
	"ormcore/data/orm/internal/ormtest"
	"ormcore/data/orm/path"
	"ormcore/data/orm/reconcile"
	"ormcore/data/orm/scalar"
)

func TestVehicleListRoundTrip(t *testing.T) {
	cat := ormtest.Catalog()
	vehicle := cat.MustGet("Vehicle")
	serviced := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	car := bean.New(cat.MustGet("Car")).
		MustSet("id", 1).
		MustSet("licenseNumber", "C6788").
		MustSet("driver", "CarDriver").
		MustSet("lastService", serviced).
		MustSet("registrationDate", "2020-01-02")
	truck := bean.New(cat.MustGet("Truck")).
		MustSet("id", 2).
		MustSet("licenseNumber", "T1098").
		MustSet("capacity", 20.0)

	cache := path.NewCache(16)
	c := New(WithPathCache(cache))
	data, err := c.MarshalList([]bean.IBean{car, truck})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"dtype":"C"`)
	assert.Contains(t, string(data), `"dtype":"T"`)
	assert.Contains(t, string(data), `"lastService":1714979289000`)
	assert.Contains(t, string(data), `"registrationDate":"2020-01-02"`)

	list, err := c.UnmarshalList(vehicle, data)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, "Car", list[0].Model().Name)
	assert.Equal(t, "Truck", list[1].Model().Name)

	driver, err := list[0].Get("driver")
	require.NoError(t, err)
	assert.Equal(t, "CarDriver", driver)
	last, err := list[0].Get("lastService")
	require.NoError(t, err)
	assert.True(t, serviced.Equal(last.(time.Time)))
	reg, err := list[0].Get("registrationDate")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02", reg.(scalar.CivilDate).String())

	capacity, err := list[1].Get("capacity")
	require.NoError(t, err)
	assert.Equal(t, 20.0, capacity)
	assert.Equal(t, int64(2), list[1].ID())

	// 未出现在 JSON 中的属性保持未加载
	assert.False(t, list[1].LoadState().IsLoaded("lastService"))
	assert.Greater(t, cache.Stats().Misses, int64(0))
}

func TestUnmarshal_UnknownDiscriminator(t *testing.T) {
	cat := ormtest.Catalog()
	_, err := New().Unmarshal(cat.MustGet("Vehicle"), []byte(`{"dtype":"X","id":1}`))
	assert.ErrorIs(t, err, orm.ErrConversion)
}

func TestUnmarshal_UnknownProperty(t *testing.T) {
	cat := ormtest.Catalog()
	_, err := New().Unmarshal(cat.MustGet("Truck"), []byte(`{"dtype":"T","id":1,"driver":"x"}`))
	var upe *orm.UnknownPropertyError
	require.ErrorAs(t, err, &upe)
	assert.Equal(t, "driver", upe.Property)
}

func TestUnmarshal_Associations(t *testing.T) {
	cat := ormtest.Catalog()
	c := New()

	b, err := c.Unmarshal(cat.MustGet("Customer"), []byte(`{
		"id": 5,
		"name": "x",
		"billingAddress": 7,
		"contacts": []
	}`))
	require.NoError(t, err)

	addr, err := b.One("billingAddress")
	require.NoError(t, err)
	assert.Equal(t, int64(7), bean.IdentityOf(addr))

	contacts, _ := cat.MustGet("Customer").Property("contacts")
	assert.Equal(t, reconcile.TagPlainEmpty, reconcile.Classify(b, contacts))
	assert.Nil(t, b.Original())

	b, err = c.Unmarshal(cat.MustGet("Customer"), []byte(`{"id":5,"contacts":[{"id":10,"firstName":"a"},{"firstName":"b"}]}`))
	require.NoError(t, err)
	assert.Equal(t, reconcile.TagPopulated, reconcile.Classify(b, contacts))
	assert.False(t, b.LoadState().IsLoaded("name"))
}

func TestMarshal_BidirectionalReference(t *testing.T) {
	cat := ormtest.Catalog()
	customer := bean.New(cat.MustGet("Customer")).MustSet("id", 5).MustSet("name", "x")
	contact := bean.New(cat.MustGet("Contact")).MustSet("id", 10).MustSet("customer", customer)
	require.NoError(t, customer.SetMany("contacts", bean.NewPlain(contact)))

	data, err := New().Marshal(customer)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"name":"x","contacts":[{"id":10,"customer":{"id":5}}]}`, string(data))
}
