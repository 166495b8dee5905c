package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/slotmeter/internal/billing/domain"
	"gorm.io/gorm"
)

const recordColumns = `id, usage_session_id, resource_id, user_id, duration_minutes, price_per_minute, total_cost, created_at`

type repo struct{}

func Provide() billingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rec *billingdomain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UsageSessionID,
		rec.ResourceID,
		rec.UserID,
		rec.DurationMinutes,
		rec.PricePerMinute,
		rec.TotalCost,
		rec.CreatedAt,
	).Error
}

func (r *repo) FindBySessionID(ctx context.Context, db *gorm.DB, sessionID snowflake.ID) (*billingdomain.Record, error) {
	var rec billingdomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT `+recordColumns+` FROM billing_records WHERE usage_session_id = ?`,
		sessionID,
	).Scan(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter billingdomain.ListFilter) ([]billingdomain.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM billing_records`
	var (
		conds []string
		args  []interface{}
	)
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ResourceID != 0 {
		conds = append(conds, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	var items []billingdomain.Record
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
