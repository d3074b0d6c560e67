package kv

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLoadSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, err := store.Load(ctx, "user_role")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, Entry{Key: "user_role", Value: "manager"}, Entry{Key: "other", Value: "x"}))
	v, err := store.Load(ctx, "user_role")
	require.NoError(t, err)
	assert.Equal(t, "manager", v)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedis(client, "odyssey:rbac:")

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Load(ctx, "role_permissions_v2")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("batch write uses prefix", func(t *testing.T) {
		require.NoError(t, store.Save(ctx,
			Entry{Key: "role_permissions_v2", Value: `{"admin":{}}`},
			Entry{Key: "user_role", Value: "user"},
		))
		raw, err := mr.Get("odyssey:rbac:user_role")
		require.NoError(t, err)
		assert.Equal(t, "user", raw)

		v, err := store.Load(ctx, "role_permissions_v2")
		require.NoError(t, err)
		assert.JSONEq(t, `{"admin":{}}`, v)
	})

	t.Run("empty batch", func(t *testing.T) {
		require.NoError(t, store.Save(ctx))
	})

	t.Run("server failure", func(t *testing.T) {
		mr.SetError("boom")
		defer mr.SetError("")
		_, err := store.Load(ctx, "user_role")
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrNotFound))
	})
}

func TestSQLStoreLoad(t *testing.T) {
	ctx := context.Background()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	store := NewSQL(conn)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT kv_value FROM rbac_kv WHERE kv_key = $1")).
		WithArgs("user_role").
		WillReturnRows(sqlmock.NewRows([]string{"kv_value"}).AddRow("manager"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT kv_value FROM rbac_kv")).
		WithArgs("role_permissions_v2").
		WillReturnError(sql.ErrNoRows)

	v, err := store.Load(ctx, "user_role")
	require.NoError(t, err)
	assert.Equal(t, "manager", v)

	_, err = store.Load(ctx, "role_permissions_v2")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSaveIsTransactional(t *testing.T) {
	ctx := context.Background()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	store := NewSQL(conn)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS rbac_kv").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.EnsureSchema(ctx))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rbac_kv").WithArgs("role_permissions_v2", "{}").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO rbac_kv").WithArgs("user_role", "admin").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Save(ctx,
		Entry{Key: "role_permissions_v2", Value: "{}"},
		Entry{Key: "user_role", Value: "admin"},
	))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSaveRollsBack(t *testing.T) {
	ctx := context.Background()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()
	store := NewSQL(conn)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rbac_kv").WithArgs("role_permissions_v2", "{}").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO rbac_kv").WithArgs("user_role", "admin").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = store.Save(ctx,
		Entry{Key: "role_permissions_v2", Value: "{}"},
		Entry{Key: "user_role", Value: "admin"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
