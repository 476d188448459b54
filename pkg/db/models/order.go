package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// LineItem is one requested waste type and its quantity in kilograms.
type LineItem struct {
	WasteType string          `json:"wasteType"`
	Quantity  decimal.Decimal `json:"quantity"`
}

// LineItems is stored as an ordered JSON array on the order row.
type LineItems []LineItem

func (LineItems) GormDataType() string { return "jsonb" }

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]LineItem(l))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (l *LineItems) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = LineItems{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("line items: unsupported scan type %T", src)
	}
	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("line items: %w", err)
	}
	*l = items
	return nil
}

// Order is a scheduled pickup request.
type Order struct {
	ID                  int64               `gorm:"column:id;primaryKey;autoIncrement"`
	UserID              int64               `gorm:"column:user_id;not null;index"`
	VendorID            *int64              `gorm:"column:vendor_id;index:idx_orders_vendor_status"`
	AgentID             *int64              `gorm:"column:agent_id;index:idx_orders_agent_status"`
	ApplicationID       *int64              `gorm:"column:application_id"`
	Status              enums.OrderStatus   `gorm:"column:status;not null;index:idx_orders_vendor_status;index:idx_orders_agent_status"`
	PickupAddressID     int64               `gorm:"column:pickup_address_id;not null"`
	ScheduledPickupTime time.Time           `gorm:"column:scheduled_pickup_time;not null"`
	ActualPickupTime    *time.Time          `gorm:"column:actual_pickup_time"`
	EstimatedWeight     decimal.Decimal     `gorm:"column:estimated_weight;type:numeric(10,2);not null"`
	ActualWeight        decimal.NullDecimal `gorm:"column:actual_weight;type:numeric(10,2)"`
	Items               LineItems           `gorm:"column:items;not null"`
	OTP                 *string             `gorm:"column:otp"`
	Rating              *int                `gorm:"column:rating"`
	Review              *string             `gorm:"column:review"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
