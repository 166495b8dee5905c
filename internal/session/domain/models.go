package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// UsageSession is one user's occupancy of a resource. EndTime, DurationMinutes
// and Cost are set together when the session closes and never change again.
type UsageSession struct {
	ID              snowflake.ID        `json:"id" gorm:"primaryKey"`
	ResourceID      snowflake.ID        `json:"resource_id" gorm:"not null;index:ix_usage_sessions_resource_active,priority:1"`
	UserID          string              `json:"user_id" gorm:"type:varchar(255);not null;index:ix_usage_sessions_user"`
	StartTime       time.Time           `json:"start_time" gorm:"not null"`
	EndTime         *time.Time          `json:"end_time"`
	IsActive        bool                `json:"is_active" gorm:"not null;index:ix_usage_sessions_resource_active,priority:2;check:ck_usage_sessions_closed_state,(is_active AND end_time IS NULL AND duration_minutes IS NULL AND cost IS NULL) OR (NOT is_active AND end_time IS NOT NULL AND duration_minutes >= 0 AND cost >= 0)"`
	DurationMinutes decimal.NullDecimal `json:"duration_minutes" gorm:"type:numeric(20,6)"`
	Cost            decimal.NullDecimal `json:"cost" gorm:"type:numeric(30,12)"`
	CreatedAt       time.Time           `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (UsageSession) TableName() string { return "usage_sessions" }

// DurationScale is the number of decimal places kept for session minutes.
const DurationScale = 6

// DurationMinutes returns the elapsed minutes between start and end rounded to
// DurationScale places. A negative interval yields zero.
func DurationMinutes(start, end time.Time) decimal.Decimal {
	elapsed := end.Sub(start)
	if elapsed <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(elapsed.Nanoseconds()).
		Div(decimal.NewFromInt(int64(time.Minute))).
		Round(DurationScale)
}
