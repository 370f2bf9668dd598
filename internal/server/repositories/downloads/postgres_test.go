package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/dmitrijs2005/clearhuma/internal/common"
	"github.com/dmitrijs2005/clearhuma/internal/server/models"
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

func TestCreate(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	at := time.Now()
	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+apk_downloads.*RETURNING\s+id,\s*created_at`).
		WithArgs("u-1", "v-1", "tok-uuid", `{"model":"Pixel"}`, at).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow("d-1", at))

	d, err := repo.Create(context.Background(), &models.ApkDownload{
		UserID: "u-1", ApkVersionID: "v-1", DownloadToken: "tok-uuid",
		DeviceInfo: json.RawMessage(`{"model":"Pixel"}`), DownloadedAt: at,
	})
	require.NoError(t, err)
	assert.Equal(t, "d-1", d.ID)
}

func TestCreate_DBError(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+apk_downloads`).WillReturnError(errors.New("db err"))

	_, err := repo.Create(context.Background(), &models.ApkDownload{UserID: "u-1"})
	assert.Regexp(t, `db error: .*db err`, err.Error())
}

func TestCreate_UnknownVersion(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+apk_downloads`).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "apk_downloads_apk_version_id_fkey"})

	_, err := repo.Create(context.Background(), &models.ApkDownload{UserID: "u-1", ApkVersionID: "v-gone"})
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestMarkInstalled(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	at := time.Now()
	q := `(?s)UPDATE\s+apk_downloads\s+SET\s+installed_at\s*=\s*\$3\s+WHERE\s+download_token\s*=\s*\$2\s+AND\s+user_id\s*=\s*\$1`

	mock.ExpectExec(q).WithArgs("u-1", "tok", at).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkInstalled(context.Background(), "u-1", "tok", at))

	mock.ExpectExec(q).WithArgs("u-2", "tok", at).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkInstalled(context.Background(), "u-2", "tok", at), common.ErrorNotFound)
}

func TestList(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	now := time.Now()
	mock.ExpectQuery(`(?s)FROM\s+apk_downloads\s+ORDER\s+BY\s+downloaded_at\s+DESC\s+LIMIT\s+\$1`).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "apk_version_id", "download_token", "device_info",
			"downloaded_at", "installed_at", "created_at"}).
			AddRow("d-1", "u-1", "v-1", "tok", []byte(`{}`), now, now, now).
			AddRow("d-2", "u-2", nil, "tok2", nil, now, nil, now))

	list, err := repo.List(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].InstalledAt)
	assert.Nil(t, list[1].InstalledAt)
	assert.Empty(t, list[1].ApkVersionID)
}
