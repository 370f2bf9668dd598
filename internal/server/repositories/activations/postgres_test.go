package activations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresRepository(db), mock
}

var activationCols = []string{"id", "user_id", "activation_code", "expires_at", "is_activated",
	"activated_at", "device_name", "device_info", "created_at"}

const insertQ = `(?s)INSERT\s+INTO\s+device_activations\s*\(user_id,\s*activation_code,\s*expires_at\).*RETURNING\s+id,\s*created_at`

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	exp := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs("u-1", "ab12cd34", exp).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("a-1", exp.Add(-30*24*time.Hour)))

	got, err := repo.Create(context.Background(), &models.Activation{UserID: "u-1", ActivationCode: "ab12cd34", ExpiresAt: exp})
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.ID)
}

func TestCreate_DuplicateCode(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(insertQ).WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.Activation{UserID: "u-1", ActivationCode: "ab12cd34"})
	assert.ErrorIs(t, err, common.ErrConflict)
}

const lockQ = `(?s)SELECT\s+id,\s*user_id,.*FROM\s+device_activations\s+WHERE\s+activation_code\s*=\s*\$1\s+FOR\s+UPDATE`

func TestGetByCodeForUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	exp := time.Now().Add(time.Hour)
	mock.ExpectQuery(lockQ).
		WithArgs("ab12cd34").
		WillReturnRows(sqlmock.NewRows(activationCols).
			AddRow("a-1", "u-1", "ab12cd34", exp, false, nil, nil, nil, time.Now()))

	a, err := repo.GetByCodeForUpdate(context.Background(), "ab12cd34")
	require.NoError(t, err)
	assert.Equal(t, "u-1", a.UserID)
	assert.False(t, a.IsActivated)
	assert.Nil(t, a.ActivatedAt)
	assert.Nil(t, a.DeviceInfo)
}

func TestGetByCodeForUpdate_Activated(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	at := time.Now()
	mock.ExpectQuery(lockQ).
		WithArgs("ab12cd34").
		WillReturnRows(sqlmock.NewRows(activationCols).
			AddRow("a-1", "u-1", "ab12cd34", at.Add(time.Hour), true, at, "Pixel 8", []byte(`{"platform":"Android"}`), at))

	a, err := repo.GetByCodeForUpdate(context.Background(), "ab12cd34")
	require.NoError(t, err)
	require.NotNil(t, a.ActivatedAt)
	assert.Equal(t, "Pixel 8", a.DeviceName)
	assert.JSONEq(t, `{"platform":"Android"}`, string(a.DeviceInfo))
}

func TestGetByCodeForUpdate_Errors(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(lockQ).WithArgs("zzzz").WillReturnError(sql.ErrNoRows)
	_, err := repo.GetByCodeForUpdate(context.Background(), "zzzz")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	mock.ExpectQuery(lockQ).WithArgs("zzzz").WillReturnError(errors.New("db err"))
	_, err = repo.GetByCodeForUpdate(context.Background(), "zzzz")
	assert.Regexp(t, `db error: .*db err`, err.Error())
}

func TestMarkActivated(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	at := time.Now()
	q := `(?s)UPDATE\s+device_activations\s+SET\s+is_activated\s*=\s*true`
	mock.ExpectExec(q).
		WithArgs("a-1", at, "Pixel 8", `{"platform":"Android"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkActivated(context.Background(), "a-1", "Pixel 8", json.RawMessage(`{"platform":"Android"}`), at)
	require.NoError(t, err)

	mock.ExpectExec(q).
		WithArgs("a-2", at, nil, nil).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkActivated(context.Background(), "a-2", "", nil, at), common.ErrorNotFound)
}

func TestListByUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM\s+device_activations\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC`).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(activationCols).
			AddRow("a-2", "u-1", "zzzz0000", now, false, nil, nil, nil, now).
			AddRow("a-1", "u-1", "ab12cd34", now, true, now, "Pixel", []byte(`{}`), now))

	list, err := repo.ListByUser(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-2", list[0].ID)
	assert.True(t, list[1].IsActivated)
}
