package models

import (
	"time"

	"github.com/nokasa/pickup-backend/pkg/enums"
)

// Address is a pickup location. Orders own theirs; users may share a saved one by reference.
type Address struct {
	ID         int64             `gorm:"column:id;primaryKey;autoIncrement"`
	EntityID   int64             `gorm:"column:entity_id;not null;index"`
	Street     string            `gorm:"column:street;not null"`
	City       string            `gorm:"column:city;not null"`
	State      string            `gorm:"column:state;not null"`
	PostalCode string            `gorm:"column:postal_code;not null"`
	Country    string            `gorm:"column:country;not null"`
	Latitude   *float64          `gorm:"column:latitude"`
	Longitude  *float64          `gorm:"column:longitude"`
	Type       enums.AddressType `gorm:"column:type;not null"`
	IsPrimary  bool              `gorm:"column:is_primary;not null;default:false"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (Address) TableName() string { return "addresses" }
