package domain

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

const (
	MaxNameLength = 100
	// MaxCapacity matches the integer column type on every supported dialect.
	MaxCapacity = math.MaxInt32
	// PriceScale is the number of decimal places kept for prices. Prices are
	// rounded half away from zero, so the smallest accepted price is 0.000001
	// and anything below 0.0000005 is rejected as zero.
	PriceScale = 6
)

// MaxPricePerMinute is the exclusive upper bound of numeric(20,6).
var MaxPricePerMinute = decimal.New(1, 14)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	List(ctx context.Context) ([]Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
}

type CreateRequest struct {
	Name           string          `json:"name"`
	Description    *string         `json:"description"`
	Capacity       int             `json:"capacity"`
	PricePerMinute decimal.Decimal `json:"price_per_minute"`
}

type UpdateRequest struct {
	ID             string           `json:"id"`
	Name           *string          `json:"name,omitempty"`
	Description    *string          `json:"description,omitempty"`
	Capacity       *int             `json:"capacity,omitempty"`
	PricePerMinute *decimal.Decimal `json:"price_per_minute,omitempty"`
}

type Response struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    *string   `json:"description"`
	Capacity       int       `json:"capacity"`
	PricePerMinute float64   `json:"price_per_minute"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

var (
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidCapacity = errors.New("invalid_capacity")
	ErrInvalidPrice    = errors.New("invalid_price_per_minute")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("not_found")
	ErrNameTaken       = errors.New("resource_name_taken")
	ErrResourceInUse   = errors.New("resource_in_use")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
