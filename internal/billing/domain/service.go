package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	// Append writes a record on tx so it commits or rolls back with the
	// session close. A nil tx uses the service's own handle.
	Append(ctx context.Context, tx *gorm.DB, req AppendRequest) (*Record, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	TotalSpent(ctx context.Context, userID string) (decimal.Decimal, error)
	GetBySession(ctx context.Context, sessionID string) (*Response, error)
	UserSummary(ctx context.Context, userID string) (*UserSummary, error)
}

type AppendRequest struct {
	SessionID       snowflake.ID
	ResourceID      snowflake.ID
	UserID          string
	DurationMinutes decimal.Decimal
	PricePerMinute  decimal.Decimal
	TotalCost       decimal.Decimal
}

type ListRequest struct {
	UserID     string
	ResourceID string
}

type Response struct {
	ID              string    `json:"id"`
	UsageSessionID  string    `json:"usage_session_id"`
	ResourceID      string    `json:"resource_id"`
	UserID          string    `json:"user_id"`
	DurationMinutes float64   `json:"duration_minutes"`
	PricePerMinute  float64   `json:"price_per_minute"`
	TotalCost       float64   `json:"total_cost"`
	CreatedAt       time.Time `json:"created_at"`
}

type UserSummary struct {
	UserID       string  `json:"user_id"`
	RecordCount  int     `json:"record_count"`
	TotalMinutes float64 `json:"total_minutes"`
	TotalSpent   float64 `json:"total_spent"`
}

var (
	ErrInvalidSession  = errors.New("invalid_usage_session_id")
	ErrInvalidResource = errors.New("invalid_resource_id")
	ErrInvalidUser     = errors.New("invalid_user_id")
	ErrInvalidDuration = errors.New("invalid_duration_minutes")
	ErrInvalidPrice    = errors.New("invalid_price_per_minute")
	ErrCostMismatch    = errors.New("invalid_total_cost")
	ErrDuplicateRecord = errors.New("billing_record_exists")
	ErrNotFound        = errors.New("billing_record_not_found")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
