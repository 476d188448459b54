// Package dbtest opens throwaway sqlite databases carrying the full schema and
// seeds the rows most tests need.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nokasa/pickup-backend/pkg/db/models"
	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// AllModels lists every table the service owns, in creation order.
func AllModels() []any {
	return []any{
		&models.Entity{},
		&models.Admin{},
		&models.User{},
		&models.Vendor{},
		&models.Agent{},
		&models.VendorHistory{},
		&models.Address{},
		&models.WasteType{},
		&models.VendorPricing{},
		&models.Order{},
		&models.Transaction{},
		&models.TaxDetails{},
		&models.OrderCancelAndRejectHistory{},
		&models.Notification{},
		&models.OTP{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// Open returns an isolated in-memory database with every table migrated.
// The pool is pinned to one connection so transactions never see lock errors.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// Fixtures seeds rows with sensible defaults.
type Fixtures struct {
	t  testing.TB
	db *gorm.DB
	n  int
}

func NewFixtures(t testing.TB, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

func (f *Fixtures) nextPhone() string {
	f.n++
	return fmt.Sprintf("98%08d", f.n)
}

func (f *Fixtures) create(v any) {
	f.t.Helper()
	if err := f.db.Create(v).Error; err != nil {
		f.t.Fatalf("seed %T: %v", v, err)
	}
}

func (f *Fixtures) Entity(kind enums.EntityType) *models.Entity {
	f.t.Helper()
	e := &models.Entity{Phone: f.nextPhone(), Type: kind, IsActive: true}
	f.create(e)
	return e
}

func (f *Fixtures) Vendor(name string, rating float64) *models.Vendor {
	f.t.Helper()
	e := f.Entity(enums.EntityTypeVendor)
	v := &models.Vendor{EntityID: e.ID, Name: name, BusinessName: name + " Recyclers", Rating: decimal.NewFromFloat(rating)}
	f.create(v)
	return v
}

func (f *Fixtures) Agent(vendorID int64, name string) *models.Agent {
	f.t.Helper()
	e := f.Entity(enums.EntityTypeAgent)
	a := &models.Agent{
		EntityID:      e.ID,
		VendorID:      vendorID,
		Name:          name,
		VehicleType:   enums.VehicleTypeBike,
		VehicleNumber: "KA01AB1234",
		Status:        enums.AgentStatusAvailable,
	}
	f.create(a)
	return a
}

func (f *Fixtures) User(name string) *models.User {
	f.t.Helper()
	e := f.Entity(enums.EntityTypeUser)
	u := &models.User{EntityID: e.ID, Name: name}
	f.create(u)
	return u
}

func (f *Fixtures) Admin(name string) *models.Admin {
	f.t.Helper()
	e := f.Entity(enums.EntityTypeAdmin)
	a := &models.Admin{EntityID: e.ID, Name: name}
	f.create(a)
	return a
}

func (f *Fixtures) WasteType(name string) *models.WasteType {
	f.t.Helper()
	var wt models.WasteType
	if err := f.db.Where("name = ?", name).First(&wt).Error; err == nil {
		return &wt
	}
	wt = models.WasteType{Name: name}
	f.create(&wt)
	return &wt
}

func (f *Fixtures) Price(vendorID int64, wasteType, postalCode, price string) *models.VendorPricing {
	f.t.Helper()
	wt := f.WasteType(wasteType)
	p := &models.VendorPricing{
		VendorID:    vendorID,
		WasteTypeID: wt.ID,
		PostalCode:  postalCode,
		Price:       decimal.RequireFromString(price),
	}
	f.create(p)
	return p
}

func (f *Fixtures) Address(entityID int64, postalCode string) *models.Address {
	f.t.Helper()
	a := &models.Address{
		EntityID:   entityID,
		Street:     "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: postalCode,
		Country:    "IN",
		Type:       enums.AddressTypeHome,
	}
	f.create(a)
	return a
}

// OrderSpec overrides the defaults used by Order.
type OrderSpec struct {
	UserID    int64
	VendorID  *int64
	AgentID   *int64
	Status    enums.OrderStatus
	OTP       string
	Items     models.LineItems
	Estimated string
	Scheduled time.Time
}

func (f *Fixtures) Order(spec OrderSpec) *models.Order {
	f.t.Helper()
	if spec.Status == "" {
		spec.Status = enums.OrderStatusNew
	}
	if spec.Estimated == "" {
		spec.Estimated = "5"
	}
	if spec.Scheduled.IsZero() {
		spec.Scheduled = time.Now().Add(24 * time.Hour)
	}
	if spec.Items == nil {
		spec.Items = models.LineItems{{WasteType: "PAPER", Quantity: decimal.NewFromInt(5)}}
	}
	addr := f.Address(0, "560001")
	o := &models.Order{
		UserID:              spec.UserID,
		VendorID:            spec.VendorID,
		AgentID:             spec.AgentID,
		Status:              spec.Status,
		PickupAddressID:     addr.ID,
		ScheduledPickupTime: spec.Scheduled,
		EstimatedWeight:     decimal.RequireFromString(spec.Estimated),
		Items:               spec.Items,
	}
	if spec.OTP != "" {
		otp := spec.OTP
		o.OTP = &otp
	}
	f.create(o)
	return o
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
