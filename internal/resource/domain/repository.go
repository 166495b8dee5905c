package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, resource *Resource) error
	Update(ctx context.Context, db *gorm.DB, resource *Resource) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Resource, error)
	// FindByIDForUpdate locks the resource row until the surrounding
	// transaction ends. db must be a transaction handle.
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Resource, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Resource, error)
	List(ctx context.Context, db *gorm.DB) ([]Resource, error)
	CountActiveSessions(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}
