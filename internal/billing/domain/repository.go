package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	UserID     string
	ResourceID snowflake.ID
}

// Repository has no update or delete: records are append-only.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	FindBySessionID(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*Record, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Record, error)
}
