package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	resourcedomain "github.com/smallbiznis/slotmeter/internal/resource/domain"
	"github.com/smallbiznis/slotmeter/pkg/db"
	"gorm.io/gorm"
)

const resourceColumns = `id, name, description, capacity, price_per_minute, created_at, updated_at`

type repo struct{}

func Provide() resourcedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, res *resourcedomain.Resource) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO resources (`+resourceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID,
		res.Name,
		res.Description,
		res.Capacity,
		res.PricePerMinute,
		res.CreatedAt,
		res.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, res *resourcedomain.Resource) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE resources
		 SET name = ?, description = ?, capacity = ?, price_per_minute = ?, updated_at = ?
		 WHERE id = ?`,
		res.Name,
		res.Description,
		res.Capacity,
		res.PricePerMinute,
		res.UpdatedAt,
		res.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	return conn.WithContext(ctx).Exec(`DELETE FROM resources WHERE id = ?`, id).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*resourcedomain.Resource, error) {
	return r.findOne(ctx, conn, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*resourcedomain.Resource, error) {
	return r.findOne(ctx, conn, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`+db.ForUpdate(conn), id)
}

func (r *repo) FindByName(ctx context.Context, conn *gorm.DB, name string) (*resourcedomain.Resource, error) {
	return r.findOne(ctx, conn, `SELECT `+resourceColumns+` FROM resources WHERE name = ?`, name)
}

func (r *repo) List(ctx context.Context, conn *gorm.DB) ([]resourcedomain.Resource, error) {
	var items []resourcedomain.Resource
	err := conn.WithContext(ctx).Raw(
		`SELECT ` + resourceColumns + ` FROM resources ORDER BY created_at ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountActiveSessions(ctx context.Context, conn *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM usage_sessions WHERE resource_id = ? AND is_active = ?`,
		id,
		true,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...interface{}) (*resourcedomain.Resource, error) {
	var res resourcedomain.Resource
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&res).Error; err != nil {
		return nil, err
	}
	if res.ID == 0 {
		return nil, nil
	}
	return &res, nil
}
