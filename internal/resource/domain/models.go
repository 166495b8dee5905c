package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Resource is a capacity-bounded asset billed per minute of use.
type Resource struct {
	ID             snowflake.ID    `json:"id" gorm:"primaryKey"`
	Name           string          `json:"name" gorm:"type:varchar(100);not null;uniqueIndex:ux_resources_name"`
	Description    *string         `json:"description" gorm:"type:text"`
	Capacity       int             `json:"capacity" gorm:"not null;check:ck_resources_capacity,capacity > 0"`
	PricePerMinute decimal.Decimal `json:"price_per_minute" gorm:"type:numeric(20,6);not null;check:ck_resources_price,price_per_minute > 0"`
	CreatedAt      time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time       `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Resource) TableName() string { return "resources" }
