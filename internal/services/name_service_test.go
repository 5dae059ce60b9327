package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const getNameSQL = `SELECT name FROM names WHERE user_id = \$1`

func newTestNameService(t *testing.T, resolver NameResolver) (*NameService, sqlmock.Sqlmock, redismock.ClientMock) {
	t.Helper()
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	redisClient, redisMock := redismock.NewClientMock()
	logger, _ := test.NewNullLogger()
	return NewNameService(NewAccountStore(db), redisClient, resolver, time.Hour, logger), dbMock, redisMock
}

func TestNameService_DisplayName(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit", func(t *testing.T) {
		names, dbMock, redisMock := newTestNameService(t, StaticResolver{})
		redisMock.ExpectGet("tigris:name:100").SetVal("Alice")

		assert.Equal(t, "Alice", names.DisplayName(ctx, "100"))
		assert.NoError(t, redisMock.ExpectationsWereMet())
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("cache miss falls back to the names table", func(t *testing.T) {
		names, dbMock, redisMock := newTestNameService(t, StaticResolver{})
		redisMock.ExpectGet("tigris:name:100").RedisNil()
		dbMock.ExpectQuery(getNameSQL).
			WithArgs("100").
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))
		redisMock.ExpectSet("tigris:name:100", "Alice", time.Hour).SetVal("OK")

		assert.Equal(t, "Alice", names.DisplayName(ctx, "100"))
		assert.NoError(t, redisMock.ExpectationsWereMet())
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown name uses the placeholder without asking the resolver", func(t *testing.T) {
		resolver := &MockNameResolver{}
		names, dbMock, redisMock := newTestNameService(t, resolver)
		redisMock.ExpectGet("tigris:name:300").SetErr(errors.New("redis down"))
		dbMock.ExpectQuery(getNameSQL).
			WithArgs("300").
			WillReturnRows(sqlmock.NewRows([]string{"name"}))

		assert.Equal(t, "<300>", names.DisplayName(ctx, "300"))
		resolver.AssertNotCalled(t, "ResolveName", mock.Anything, mock.Anything)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestNameService_RefreshName(t *testing.T) {
	ctx := context.Background()

	t.Run("stores and caches the resolved name", func(t *testing.T) {
		names, dbMock, redisMock := newTestNameService(t, StaticResolver{"100": "  Alice "})
		dbMock.ExpectExec(setNameSQL).
			WithArgs("100", "Alice", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		redisMock.ExpectSet("tigris:name:100", "Alice", time.Hour).SetVal("OK")

		name, err := names.RefreshName(ctx, "100")
		assert.NoError(t, err)
		assert.Equal(t, "Alice", name)
		assert.NoError(t, redisMock.ExpectationsWereMet())
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("blank or unknown names are not stored", func(t *testing.T) {
		names, dbMock, _ := newTestNameService(t, StaticResolver{"100": "   "})

		_, err := names.RefreshName(ctx, "100")
		assert.ErrorIs(t, err, ErrNameNotFound)

		_, err = names.RefreshName(ctx, "200")
		assert.ErrorIs(t, err, ErrNameNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("resolver outage is reported as directory unavailable", func(t *testing.T) {
		resolver := &MockNameResolver{}
		resolver.On("ResolveName", mock.Anything, "100").Return("", errors.New("dial tcp: connection refused")).Once()
		names, dbMock, redisMock := newTestNameService(t, resolver)

		_, err := names.RefreshName(ctx, "100")
		assert.ErrorIs(t, err, ErrDirectoryUnavailable)
		assert.NotErrorIs(t, err, ErrNameNotFound)
		assert.Equal(t, StatusDirectoryUnavailable, StatusOf(err))
		assert.NoError(t, dbMock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
		resolver.AssertExpectations(t)
	})
}

func TestNameService_Invalidate(t *testing.T) {
	names, _, redisMock := newTestNameService(t, StaticResolver{})
	redisMock.ExpectDel("tigris:name:100").SetVal(1)

	assert.NoError(t, names.Invalidate(context.Background(), "100"))
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestNameService_WithoutRedis(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger, _ := test.NewNullLogger()
	names := NewNameService(NewAccountStore(db), nil, StaticResolver{}, time.Hour, logger)
	dbMock.ExpectQuery(getNameSQL).
		WithArgs("100").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))

	assert.Equal(t, "Alice", names.DisplayName(context.Background(), "100"))
	assert.NoError(t, names.Invalidate(context.Background(), "100"))
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "<42>", Placeholder("42"))
}
