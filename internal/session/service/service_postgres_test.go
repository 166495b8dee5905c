package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	billingrepo "github.com/smallbiznis/slotmeter/internal/billing/repository"
	billingservice "github.com/smallbiznis/slotmeter/internal/billing/service"
	"github.com/smallbiznis/slotmeter/internal/clock"
	resourcerepo "github.com/smallbiznis/slotmeter/internal/resource/repository"
	sessiondomain "github.com/smallbiznis/slotmeter/internal/session/domain"
	"github.com/smallbiznis/slotmeter/internal/session/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	sessionCols  = []string{"id", "resource_id", "user_id", "start_time", "end_time", "is_active", "duration_minutes", "cost", "created_at"}
	resourceCols = []string{"id", "name", "description", "capacity", "price_per_minute", "created_at", "updated_at"}
)

func TestStopOnPostgresRollsBackWhenBillingInsertFails(t *testing.T) {
	svc, mock, fake := setupMockedSessionService(t)
	start := fake.Now()
	fake.Advance(10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM usage_sessions WHERE id = $1 AND is_active = $2 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(int64(11), int64(7), "alice", start, nil, true, nil, nil, start))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM resources WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow(int64(7), "lab-3", nil, 1, "3", start, start))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE usage_sessions`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM billing_records WHERE usage_session_id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO billing_records`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := svc.Stop(context.Background(), snowflake.ID(11).String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append billing record")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStopOnPostgresReportsMissingActiveSession(t *testing.T) {
	svc, mock, _ := setupMockedSessionService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM usage_sessions WHERE id = $1 AND is_active = $2 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows(sessionCols))
	mock.ExpectRollback()

	_, err := svc.Stop(context.Background(), snowflake.ID(11).String())
	assert.ErrorIs(t, err, sessiondomain.ErrActiveSessionNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartOnPostgresLocksResourceAndRejectsAtCapacity(t *testing.T) {
	svc, mock, fake := setupMockedSessionService(t)
	now := fake.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM resources WHERE id = $1 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow(int64(7), "desk-1", nil, 1, "2", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(1) FROM usage_sessions WHERE resource_id = $1 AND is_active = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectRollback()

	_, err := svc.Start(context.Background(), sessiondomain.StartRequest{
		ResourceID: snowflake.ID(7).String(),
		UserID:     "bob",
	})
	var capErr *sessiondomain.CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, int64(1), capErr.Active)
	assert.Equal(t, 1, capErr.Capacity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStartOnPostgresUsesTypedConditionalInsert(t *testing.T) {
	svc, mock, fake := setupMockedSessionService(t)
	now := fake.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM resources WHERE id = $1 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow(int64(7), "desk-1", nil, 2, "2", now, now))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(1) FROM usage_sessions`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta(`SELECT CAST($1 AS BIGINT), r.id, CAST($2 AS TEXT)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Start(context.Background(), sessiondomain.StartRequest{
		ResourceID: snowflake.ID(7).String(),
		UserID:     "bob",
	})
	assert.ErrorIs(t, err, sessiondomain.ErrCapacityExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func setupMockedSessionService(t *testing.T) (sessiondomain.Service, sqlmock.Sqlmock, *clock.FakeClock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	billing := billingservice.New(billingservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  billingrepo.Provide(),
	})

	svc := New(Params{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     fake,
		Repo:      repository.Provide(),
		Resources: resourcerepo.Provide(),
		Billing:   billing,
	})
	return svc, mock, fake
}
