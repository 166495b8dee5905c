package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/slotmeter/internal/clock"
	resourcedomain "github.com/smallbiznis/slotmeter/internal/resource/domain"
	"github.com/smallbiznis/slotmeter/internal/resource/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var resourceCols = []string{"id", "name", "description", "capacity", "price_per_minute", "created_at", "updated_at"}

func TestUpdateOnPostgresLocksRowBeforeWriting(t *testing.T) {
	svc, mock := setupMockedResourceService(t)
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM resources WHERE id = $1 FOR UPDATE`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow(int64(7), "lab-3", nil, 2, "3", created, created))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE resources`)).
		WithArgs("lab-3", nil, 5, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	capacity := 5
	resp, err := svc.Update(context.Background(), resourcedomain.UpdateRequest{
		ID:       snowflake.ID(7).String(),
		Capacity: &capacity,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, resp.Capacity)
	assert.Equal(t, 3.0, resp.PricePerMinute)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOnPostgresRollsBackOnWriteFailure(t *testing.T) {
	svc, mock := setupMockedResourceService(t)
	created := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM resources WHERE id = $1 FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows(resourceCols).
			AddRow(int64(7), "lab-3", nil, 2, "3", created, created))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE resources`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	capacity := 5
	_, err := svc.Update(context.Background(), resourcedomain.UpdateRequest{
		ID:       snowflake.ID(7).String(),
		Capacity: &capacity,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update resource")
	require.NoError(t, mock.ExpectationsWereMet())
}

func setupMockedResourceService(t *testing.T) (resourcedomain.Service, sqlmock.Sqlmock) {
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

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, mock
}
