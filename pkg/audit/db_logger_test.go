package audit

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNewDBLogger(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnResult(sqlmock.NewResult(0, 0))

		logger, err := NewDBLogger(db)
		require.NoError(t, err)
		assert.NotNil(t, logger)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil database", func(t *testing.T) {
		logger, err := NewDBLogger(nil)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "database connection is required")
	})

	t.Run("table creation error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_logs").WillReturnError(errors.New("table creation failed"))

		logger, err := NewDBLogger(db)
		assert.Error(t, err)
		assert.Nil(t, logger)
		assert.Contains(t, err.Error(), "failed to ensure audit_logs table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDBLogger_Log(t *testing.T) {
	userID := uuid.New()
	ctx := observability.WithRequestID(context.Background(), "req-42")

	t.Run("authentication event", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		logger := &DBLogger{db: db}

		event := NewAuthenticationEvent(ctx, EventTypeAuthLogin, &userID, "ada@example.com", EventStatusSuccess, "User logged in")

		mock.ExpectQuery("INSERT INTO audit_logs").
			WithArgs(
				sqlmock.AnyArg(), EventTypeAuthLogin, EventStatusSuccess,
				userID, "ada@example.com", nil, nil,
				ResourceTypeUser, userID.String(), "req-42",
				"User logged in", "", sqlmock.AnyArg(), sqlmock.AnyArg(),
			).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

		require.NoError(t, logger.Log(ctx, event))
		assert.Equal(t, int64(7), event.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("event with metadata and changes", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		logger := &DBLogger{db: db}

		event := NewAuthenticationEvent(ctx, EventTypeAuthLoginFailed, nil, "ada@example.com", EventStatusFailure, "Login failed").
			WithMetadata("reason", "credentials_invalid")
		event.Changes = &ChangeDetails{After: map[string]interface{}{"role": "editor"}}

		mock.ExpectQuery("INSERT INTO audit_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))

		require.NoError(t, logger.Log(ctx, event))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert error", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()
		logger := &DBLogger{db: db}

		mock.ExpectQuery("INSERT INTO audit_logs").WillReturnError(errors.New("database error"))

		err := logger.Log(ctx, NewAuthenticationEvent(ctx, EventTypeAuthLogout, &userID, "", EventStatusSuccess, ""))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert audit log")
	})

	t.Run("unmarshalable metadata", func(t *testing.T) {
		db, _ := setupMockDB(t)
		defer db.Close()
		logger := &DBLogger{db: db}

		event := NewAuthenticationEvent(ctx, EventTypeAuthLogin, nil, "", EventStatusSuccess, "").
			WithMetadata("bad", make(chan int))

		err := logger.Log(ctx, event)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to marshal metadata")
	})
}

func TestDBLogger_Cleanup(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	logger := &DBLogger{db: db}

	mock.ExpectExec(`DELETE FROM audit_logs WHERE timestamp < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))

	n, err := logger.Cleanup(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
