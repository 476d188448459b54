package models

import (
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Transaction records what is owed for an order. Created PENDING with the order.
type Transaction struct {
	ID            int64                   `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID       int64                   `gorm:"column:order_id;not null;index"`
	EntityID      int64                   `gorm:"column:entity_id;not null"`
	InvoiceNumber string                  `gorm:"column:invoice_number;not null;uniqueIndex"`
	Amount        decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Type          enums.TransactionType   `gorm:"column:type;not null"`
	Status        enums.TransactionStatus `gorm:"column:status;not null"`
	PaymentMethod enums.PaymentMethod     `gorm:"column:payment_method;not null"`
	Date          time.Time               `gorm:"column:date;not null"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (Transaction) TableName() string { return "transactions" }

// TaxDetails is the tax snapshot for a single transaction.
type TaxDetails struct {
	ID                int64           `gorm:"column:id;primaryKey;autoIncrement"`
	TransactionID     int64           `gorm:"column:transaction_id;not null;uniqueIndex"`
	GSTRate           decimal.Decimal `gorm:"column:gst_rate;type:numeric(5,2);not null"`
	CGST              decimal.Decimal `gorm:"column:cgst;type:numeric(12,2);not null"`
	SGST              decimal.Decimal `gorm:"column:sgst;type:numeric(12,2);not null"`
	IGST              decimal.Decimal `gorm:"column:igst;type:numeric(12,2);not null"`
	TotalTaxableValue decimal.Decimal `gorm:"column:total_taxable_value;type:numeric(12,2);not null"`
}

func (TaxDetails) TableName() string { return "tax_details" }
