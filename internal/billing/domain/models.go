package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Record is the immutable charge derived from one closed usage session. The
// price is captured at close time so later price changes never alter it.
type Record struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	UsageSessionID  snowflake.ID    `json:"usage_session_id" gorm:"not null;uniqueIndex:ux_billing_records_session"`
	ResourceID      snowflake.ID    `json:"resource_id" gorm:"not null;index:ix_billing_records_resource"`
	UserID          string          `json:"user_id" gorm:"type:varchar(255);not null;index:ix_billing_records_user"`
	DurationMinutes decimal.Decimal `json:"duration_minutes" gorm:"type:numeric(20,6);not null;check:ck_billing_records_duration,duration_minutes >= 0"`
	PricePerMinute  decimal.Decimal `json:"price_per_minute" gorm:"type:numeric(20,6);not null;check:ck_billing_records_price,price_per_minute > 0"`
	TotalCost       decimal.Decimal `json:"total_cost" gorm:"type:numeric(30,12);not null;check:ck_billing_records_total_cost,total_cost >= 0"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "billing_records" }
