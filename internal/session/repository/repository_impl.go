package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	sessiondomain "github.com/smallbiznis/slotmeter/internal/session/domain"
	"github.com/smallbiznis/slotmeter/pkg/db"
	"gorm.io/gorm"
)

const sessionColumns = `id, resource_id, user_id, start_time, end_time, is_active, duration_minutes, cost, created_at`

// The capacity guard reads the live count and the resource's capacity in the
// same statement as the insert. Postgres cannot infer parameter types in an
// INSERT ... SELECT list, so its variant casts them.
const (
	insertIfBelowCapacity = `INSERT INTO usage_sessions (id, resource_id, user_id, start_time, is_active, created_at)
		 SELECT ?, r.id, ?, ?, TRUE, ?
		 FROM resources r
		 WHERE r.id = ?
		   AND (SELECT COUNT(1) FROM usage_sessions s WHERE s.resource_id = r.id AND s.is_active = ?) < r.capacity`

	insertIfBelowCapacityPostgres = `INSERT INTO usage_sessions (id, resource_id, user_id, start_time, is_active, created_at)
		 SELECT CAST(? AS BIGINT), r.id, CAST(? AS TEXT), CAST(? AS TIMESTAMPTZ), TRUE, CAST(? AS TIMESTAMPTZ)
		 FROM resources r
		 WHERE r.id = ?
		   AND (SELECT COUNT(1) FROM usage_sessions s WHERE s.resource_id = r.id AND s.is_active = ?) < r.capacity`
)

type repo struct{}

func Provide() sessiondomain.Repository {
	return &repo{}
}

func (r *repo) InsertIfBelowCapacity(ctx context.Context, conn *gorm.DB, s *sessiondomain.UsageSession) (bool, error) {
	stmt := insertIfBelowCapacity
	if strings.EqualFold(conn.Dialector.Name(), "postgres") {
		stmt = insertIfBelowCapacityPostgres
	}

	result := conn.WithContext(ctx).Exec(stmt,
		s.ID,
		s.UserID,
		s.StartTime,
		s.CreatedAt,
		s.ResourceID,
		true,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) CountActive(ctx context.Context, conn *gorm.DB, resourceID snowflake.ID) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM usage_sessions WHERE resource_id = ? AND is_active = ?`,
		resourceID,
		true,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*sessiondomain.UsageSession, error) {
	return r.findOne(ctx, conn, `SELECT `+sessionColumns+` FROM usage_sessions WHERE id = ?`, id)
}

func (r *repo) FindActiveForUpdate(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*sessiondomain.UsageSession, error) {
	return r.findOne(ctx, conn,
		`SELECT `+sessionColumns+` FROM usage_sessions WHERE id = ? AND is_active = ?`+db.ForUpdate(conn),
		id,
		true,
	)
}

func (r *repo) Close(ctx context.Context, conn *gorm.DB, s *sessiondomain.UsageSession) (int64, error) {
	result := conn.WithContext(ctx).Exec(
		`UPDATE usage_sessions
		 SET end_time = ?, is_active = ?, duration_minutes = ?, cost = ?
		 WHERE id = ? AND is_active = ?`,
		s.EndTime,
		false,
		s.DurationMinutes,
		s.Cost,
		s.ID,
		true,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) List(ctx context.Context, conn *gorm.DB, filter sessiondomain.ListFilter) ([]sessiondomain.UsageSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM usage_sessions`
	var (
		conds []string
		args  []interface{}
	)
	if filter.ResourceID != 0 {
		conds = append(conds, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Active != nil {
		conds = append(conds, "is_active = ?")
		args = append(args, *filter.Active)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY start_time ASC, id ASC"

	var items []sessiondomain.UsageSession
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...interface{}) (*sessiondomain.UsageSession, error) {
	var item sessiondomain.UsageSession
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
