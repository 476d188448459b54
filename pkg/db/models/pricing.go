package models

import "github.com/shopspring/decimal"

// WasteType is a named category of scrap, matched case-insensitively.
type WasteType struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;not null;uniqueIndex"`
}

func (WasteType) TableName() string { return "waste_types" }

// VendorPricing is a per-vendor, per-postal-code unit price for a waste type.
type VendorPricing struct {
	ID          int64           `gorm:"column:id;primaryKey;autoIncrement"`
	VendorID    int64           `gorm:"column:vendor_id;not null;uniqueIndex:ux_vendor_pricing_triple"`
	WasteTypeID int64           `gorm:"column:waste_type_id;not null;uniqueIndex:ux_vendor_pricing_triple"`
	PostalCode  string          `gorm:"column:postal_code;not null;uniqueIndex:ux_vendor_pricing_triple"`
	Price       decimal.Decimal `gorm:"column:price;type:numeric(10,2);not null"`
}

func (VendorPricing) TableName() string { return "vendor_pricings" }
