package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
)

const MaxUserIDLength = 255

type Service interface {
	Start(ctx context.Context, req StartRequest) (*Response, error)
	Stop(ctx context.Context, id string) (*Response, error)
	GetByID(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type StartRequest struct {
	ResourceID string `json:"resource_id"`
	UserID     string `json:"user_id"`
}

type StopRequest struct {
	SessionID string `json:"session_id"`
}

type ListRequest struct {
	ResourceID string
	UserID     string
	Active     *bool
}

type Response struct {
	ID              string     `json:"id"`
	ResourceID      string     `json:"resource_id"`
	UserID          string     `json:"user_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	IsActive        bool       `json:"is_active"`
	DurationMinutes *float64   `json:"duration_minutes"`
	Cost            *float64   `json:"cost"`
	CreatedAt       time.Time  `json:"created_at"`
}

var (
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidResource       = errors.New("invalid_resource_id")
	ErrInvalidUser           = errors.New("invalid_user_id")
	ErrResourceNotFound      = errors.New("resource_not_found")
	ErrSessionNotFound       = errors.New("session_not_found")
	ErrActiveSessionNotFound = errors.New("active_session_not_found")
	ErrCapacityExceeded      = errors.New("capacity_exceeded")
)

// CapacityExceededError reports a refused admission together with the count
// and limit observed at decision time.
type CapacityExceededError struct {
	ResourceID snowflake.ID
	Active     int64
	Capacity   int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity_exceeded: resource %s has %d/%d active sessions", e.ResourceID, e.Active, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
