package models

import (
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
)

// Notification is an in-app message addressed to an entity.
type Notification struct {
	ID        int64                  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EntityID  int64                  `gorm:"column:entity_id;not null;index" json:"entityId"`
	Type      enums.NotificationType `gorm:"column:type;not null" json:"type"`
	Message   string                 `gorm:"column:message;not null" json:"message"`
	IsRead    bool                   `gorm:"column:is_read;not null;default:false" json:"isRead"`
	ReadAt    *time.Time             `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Notification) TableName() string { return "notifications" }
