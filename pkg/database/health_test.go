package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	t.Run("healthy pool reports statistics", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		mock.ExpectPing()

		health, err := NewClientFromDB(db).Health(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "healthy", health.Status)
		assert.GreaterOrEqual(t, health.OpenConnections, 0)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed ping is unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		health, err := Health(context.Background(), db)
		require.Error(t, err)
		assert.Equal(t, "unhealthy", health.Status)
	})
}
