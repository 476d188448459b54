package models

import "time"

// OrderCancelAndRejectHistory is an append-only audit row. Exactly one of
// CancelledAt or RejectedAt is set. Reasons are joined with "#%#%".
type OrderCancelAndRejectHistory struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID     int64      `gorm:"column:order_id;not null;index"`
	EntityID    int64      `gorm:"column:entity_id;not null"`
	Reasons     string     `gorm:"column:reasons;not null"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	RejectedAt  *time.Time `gorm:"column:rejected_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (OrderCancelAndRejectHistory) TableName() string { return "order_cancel_and_reject_histories" }
