package agents

import (
	"github.com/nokasa/pickup-backend/pkg/auth"
	"github.com/nokasa/pickup-backend/pkg/enums"
)

// AgentSummary is one row of a vendor's agent list.
type AgentSummary struct {
	ID    int64  `gorm:"column:id" json:"id"`
	Name  string `gorm:"column:name" json:"name"`
	Phone string `gorm:"column:phone" json:"phone"`
}

// AgentList wraps the vendor's agents.
type AgentList struct {
	Agents []AgentSummary `json:"agents"`
}

// AgentDetail is the full agent view shown to its vendor.
type AgentDetail struct {
	ID            int64             `gorm:"column:id" json:"id"`
	EntityID      int64             `gorm:"column:entity_id" json:"entityId"`
	Name          string            `gorm:"column:name" json:"name"`
	Phone         string            `gorm:"column:phone" json:"phone"`
	VehicleType   enums.VehicleType `gorm:"column:vehicle_type" json:"vehicleType"`
	VehicleNumber string            `gorm:"column:vehicle_number" json:"vehicleNumber"`
	Status        enums.AgentStatus `gorm:"column:status" json:"status"`
}

// CreateRequest is the body of POST /vendor/agents.
type CreateRequest struct {
	Name          string            `json:"name" validate:"required"`
	Phone         string            `json:"phone" validate:"required"`
	VehicleType   enums.VehicleType `json:"vehicleType" validate:"required"`
	VehicleNumber string            `json:"vehicleNumber" validate:"required"`
	Status        enums.AgentStatus `json:"status" validate:"required"`
}

// UpdateRequest is the body of PATCH /vendor/agents/{id}. Nil fields are left as is.
type UpdateRequest struct {
	Name          *string            `json:"name,omitempty"`
	Phone         *string            `json:"phone,omitempty"`
	VehicleType   *enums.VehicleType `json:"vehicleType,omitempty"`
	VehicleNumber *string            `json:"vehicleNumber,omitempty"`
	Status        *enums.AgentStatus `json:"status,omitempty"`
}

// CreateInput is a vendor creating one of its agents.
type CreateInput struct {
	Principal auth.Principal
	CreateRequest
}

// UpdateInput is a vendor editing one of its agents.
type UpdateInput struct {
	Principal auth.Principal
	AgentID   int64
	UpdateRequest
}
