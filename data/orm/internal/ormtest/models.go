// Package ormtest 提供各包测试共用的模型目录与建表语句。
package ormtest

import (
	"ormcore/data/orm"
	"ormcore/data/orm/scalar"
)

// OrderStatus 订单状态枚举
var OrderStatus = scalar.NewEnum("OrderStatus", []string{"NEW", "APPROVED", "SHIPPED", "COMPLETE"})

// Catalog 构建测试模型：
//
//	Customer 1-n Contact（双向，用于循环路径检测）
//	Customer n-1 Address n-1 Country
//	Order n-1 Customer, Order 1-n OrderDetail
//	Vehicle <- Car(owner -> Customer) / Truck，单表继承，鉴别列 dtype
//	VehicleLease n-1 Vehicle
func Catalog() *orm.Catalog {
	cat := orm.NewCatalog()

	cat.Model("Country", "o_country").
		ID("code", scalar.String).
		Scalar("name", scalar.String)

	cat.Model("Address", "o_address").
		ID("id", scalar.Int64).
		Scalar("line1", scalar.String).
		Scalar("city", scalar.String).
		ToOne("country", "Country", "country_code")

	cat.Model("Customer", "o_customer").
		ID("id", scalar.Int64).
		Version("version", scalar.Int64).
		Scalar("name", scalar.String, orm.NotNull()).
		Scalar("status", scalar.String).
		Scalar("birthDate", scalar.Date).
		Scalar("updatedAt", scalar.Timestamp).
		ToOne("billingAddress", "Address", "billing_address_id").
		ToMany("contacts", "Contact", "customer_id")

	cat.Model("Contact", "contact").
		ID("id", scalar.Int64).
		Scalar("firstName", scalar.String).
		Scalar("lastName", scalar.String).
		Scalar("email", scalar.String).
		ToOne("customer", "Customer", "customer_id")

	cat.Model("Order", "o_order").
		ID("id", scalar.Int64).
		Version("version", scalar.Int64).
		Scalar("status", OrderStatus).
		Scalar("orderDate", scalar.Date).
		Scalar("shipDate", scalar.Date).
		ToOne("customer", "Customer", "kcustomer_id").
		ToMany("details", "OrderDetail", "order_id")

	cat.Model("OrderDetail", "o_order_detail").
		ID("id", scalar.Int64).
		Scalar("productName", scalar.String).
		Scalar("orderQty", scalar.Int32).
		Scalar("unitPrice", scalar.Float64).
		ToOne("order", "Order", "order_id")

	cat.Model("Vehicle", "vehicle").
		Discriminator("dtype", "V").
		ID("id", scalar.Int64).
		Version("version", scalar.Int64).
		Scalar("licenseNumber", scalar.String).
		Scalar("registrationDate", scalar.Date).
		Scalar("lastService", scalar.Timestamp)

	cat.Model("Car", "").
		Extends("Vehicle", "C").
		Scalar("driver", scalar.String).
		Scalar("notes", scalar.String).
		ToOne("owner", "Customer", "owner_id")

	cat.Model("Truck", "").
		Extends("Vehicle", "T").
		Scalar("capacity", scalar.Float64)

	cat.Model("VehicleLease", "vehicle_lease").
		ID("id", scalar.Int64).
		Scalar("name", scalar.String).
		ToOne("vehicle", "Vehicle", "vehicle_id")

	if err := cat.Build(); err != nil {
		panic(err)
	}
	return cat
}

// Schema SQLite 建表语句，与 Catalog 对应
const Schema = `
CREATE TABLE o_country (
    code TEXT PRIMARY KEY,
    name TEXT
);
CREATE TABLE o_address (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    line1 TEXT,
    city TEXT,
    country_code TEXT
);
CREATE TABLE o_customer (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version INTEGER NOT NULL DEFAULT 1,
    name TEXT NOT NULL,
    status TEXT,
    birth_date TEXT,
    updated_at DATETIME,
    billing_address_id INTEGER
);
CREATE TABLE contact (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    first_name TEXT,
    last_name TEXT,
    email TEXT,
    customer_id INTEGER
);
CREATE TABLE o_order (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    version INTEGER NOT NULL DEFAULT 1,
    status TEXT,
    order_date TEXT,
    ship_date TEXT,
    kcustomer_id INTEGER
);
CREATE TABLE o_order_detail (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    product_name TEXT,
    order_qty INTEGER,
    unit_price REAL,
    order_id INTEGER
);
CREATE TABLE vehicle (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    dtype TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    license_number TEXT,
    registration_date TEXT,
    last_service DATETIME,
    driver TEXT,
    notes TEXT,
    owner_id INTEGER,
    capacity REAL
);
`
