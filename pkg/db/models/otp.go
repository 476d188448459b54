package models

import "time"

// OTP is a login code issued to an entity. Only the argon2id hash is stored.
type OTP struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EntityID   int64      `gorm:"column:entity_id;not null;index"`
	CodeHash   string     `gorm:"column:code_hash;not null"`
	Attempts   int        `gorm:"column:attempts;not null;default:0"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	ConsumedAt *time.Time `gorm:"column:consumed_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (OTP) TableName() string { return "otps" }
