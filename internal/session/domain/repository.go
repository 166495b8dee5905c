package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	ResourceID snowflake.ID
	UserID     string
	Active     *bool
}

//go:generate mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks
type Repository interface {
	// InsertIfBelowCapacity inserts session only while the resource has fewer
	// active sessions than its capacity. It reports whether a row was written.
	InsertIfBelowCapacity(ctx context.Context, db *gorm.DB, session *UsageSession) (bool, error)
	CountActive(ctx context.Context, db *gorm.DB, resourceID snowflake.ID) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UsageSession, error)
	FindActiveForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UsageSession, error)
	// Close persists the closing fields and returns the number of rows moved
	// out of the active state.
	Close(ctx context.Context, db *gorm.DB, session *UsageSession) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]UsageSession, error)
}
