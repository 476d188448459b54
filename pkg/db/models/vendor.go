package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vendor is a collection business that owns agents and receives orders.
type Vendor struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	EntityID      int64           `gorm:"column:entity_id;not null;uniqueIndex"`
	Name          string          `gorm:"column:name;not null"`
	BusinessName  string          `gorm:"column:business_name;not null"`
	GSTIN         *string         `gorm:"column:gstin"`
	BankName      *string         `gorm:"column:bank_name"`
	AccountName   *string         `gorm:"column:account_name"`
	AccountNumber *string         `gorm:"column:account_number"`
	Rating        decimal.Decimal `gorm:"column:rating;type:numeric(3,2);not null;default:0"`
	IsDeleted     bool            `gorm:"column:is_deleted;not null;default:false"`
	DeletedAt     *time.Time      `gorm:"column:deleted_at"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Vendor) TableName() string { return "vendors" }
