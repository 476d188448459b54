package models

import (
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// Agent is a field worker currently assigned to one vendor.
type Agent struct {
	ID            int64             `gorm:"column:id;primaryKey;autoIncrement"`
	EntityID      int64             `gorm:"column:entity_id;not null;uniqueIndex"`
	VendorID      int64             `gorm:"column:vendor_id;not null;index:idx_agents_vendor_status"`
	Name          string            `gorm:"column:name;not null"`
	VehicleType   enums.VehicleType `gorm:"column:vehicle_type;not null"`
	VehicleNumber string            `gorm:"column:vehicle_number;not null"`
	Status        enums.AgentStatus `gorm:"column:status;not null;index:idx_agents_vendor_status"`
	Rating        decimal.Decimal   `gorm:"column:rating;type:numeric(3,2);not null;default:0"`
	IsDeleted     bool              `gorm:"column:is_deleted;not null;default:false"`
	DeletedAt     *time.Time        `gorm:"column:deleted_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Agent) TableName() string { return "agents" }

// VendorHistory is the append-only log of an agent's vendor assignments.
type VendorHistory struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement"`
	AgentID   int64      `gorm:"column:agent_id;not null;index"`
	VendorID  int64      `gorm:"column:vendor_id;not null"`
	StartDate time.Time  `gorm:"column:start_date;not null"`
	EndDate   *time.Time `gorm:"column:end_date"`
}

func (VendorHistory) TableName() string { return "vendor_histories" }
