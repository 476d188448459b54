package models

import (
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
)

// Entity is the principal behind every actor profile. Phone and type are unique together.
type Entity struct {
	ID        int64            `gorm:"column:id;primaryKey;autoIncrement"`
	Phone     string           `gorm:"column:phone;not null;uniqueIndex:ux_entities_phone_type"`
	Type      enums.EntityType `gorm:"column:type;not null;uniqueIndex:ux_entities_phone_type"`
	IsActive  bool             `gorm:"column:is_active;not null;default:true"`
	DeletedAt *time.Time       `gorm:"column:deleted_at"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Entity) TableName() string { return "entities" }

// Admin marks an entity as a platform administrator.
type Admin struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	EntityID  int64     `gorm:"column:entity_id;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Admin) TableName() string { return "admins" }

// User is an end customer requesting pickups.
type User struct {
	ID        int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EntityID  int64      `gorm:"column:entity_id;not null;uniqueIndex"`
	Name      string     `gorm:"column:name;not null"`
	Email     *string    `gorm:"column:email"`
	IsDeleted bool       `gorm:"column:is_deleted;not null;default:false"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (User) TableName() string { return "users" }
