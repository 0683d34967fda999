package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachlab/campaign-server-go/internal/model"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func credentialColumns() []string {
	return []string{
		"id", "platform", "platform_user_id", "username", "access_token",
		"refresh_token", "token_expires_at", "profile", "created_at", "updated_at",
	}
}

func TestCredentialRepository_Upsert(t *testing.T) {
	t.Run("writes a single ON CONFLICT statement", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCredentialRepository(db)

		now := time.Now()
		mock.ExpectQuery(`INSERT INTO provider_credentials.*ON CONFLICT \(platform, platform_user_id\) DO UPDATE.*RETURNING \*`).
			WithArgs(model.PlatformInstagram, "17841400000000000", "creator", "tok", nil, nil, []byte(`{"followers":10}`)).
			WillReturnRows(sqlmock.NewRows(credentialColumns()).AddRow(
				"cred-1", model.PlatformInstagram, "17841400000000000", "creator", "tok",
				nil, nil, []byte(`{"followers":10}`), now, now,
			))

		cred, err := repo.Upsert(context.Background(), model.UpsertCredentialParams{
			Platform:       model.PlatformInstagram,
			PlatformUserID: "17841400000000000",
			Username:       "creator",
			AccessToken:    "tok",
			Profile:        []byte(`{"followers":10}`),
		})

		require.NoError(t, err)
		assert.Equal(t, "cred-1", cred.ID)
		assert.Equal(t, "creator", cred.Username)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("re-link returns the updated row, never a second one", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCredentialRepository(db)

		now := time.Now()
		refresh := "refresh-tok"
		mock.ExpectQuery(`INSERT INTO provider_credentials.*ON CONFLICT`).
			WithArgs(model.PlatformX, "1234", "creator", "tok2", &refresh, sqlmock.AnyArg(), []byte(`{}`)).
			WillReturnRows(sqlmock.NewRows(credentialColumns()).AddRow(
				"cred-1", model.PlatformX, "1234", "creator", "tok2",
				&refresh, now.Add(2*time.Hour), []byte(`{}`), now.Add(-time.Hour), now,
			))

		expires := now.Add(2 * time.Hour)
		cred, err := repo.Upsert(context.Background(), model.UpsertCredentialParams{
			Platform:       model.PlatformX,
			PlatformUserID: "1234",
			Username:       "creator",
			AccessToken:    "tok2",
			RefreshToken:   &refresh,
			TokenExpiresAt: &expires,
			Profile:        []byte(`{}`),
		})

		require.NoError(t, err)
		assert.Equal(t, "cred-1", cred.ID)
		assert.True(t, cred.UpdatedAt.After(cred.CreatedAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCredentialRepository_FindByPlatformUser(t *testing.T) {
	t.Run("returns nil without error when missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCredentialRepository(db)

		mock.ExpectQuery(`SELECT \* FROM provider_credentials`).
			WithArgs(model.PlatformTikTok, "open-id").
			WillReturnRows(sqlmock.NewRows(credentialColumns()))

		cred, err := repo.FindByPlatformUser(context.Background(), model.PlatformTikTok, "open-id")
		require.NoError(t, err)
		assert.Nil(t, cred)
	})

	t.Run("returns the row when present", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewCredentialRepository(db)

		now := time.Now()
		mock.ExpectQuery(`SELECT \* FROM provider_credentials`).
			WithArgs(model.PlatformTikTok, "open-id").
			WillReturnRows(sqlmock.NewRows(credentialColumns()).AddRow(
				"cred-9", model.PlatformTikTok, "open-id", "dancer", "tok",
				nil, nil, []byte(`{}`), now, now,
			))

		cred, err := repo.FindByPlatformUser(context.Background(), model.PlatformTikTok, "open-id")
		require.NoError(t, err)
		require.NotNil(t, cred)
		assert.Equal(t, "dancer", cred.Username)
	})
}

func TestCredentialRepository_FindExpiring(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCredentialRepository(db)

	now := time.Now()
	refresh := "r"
	soon := now.Add(time.Hour)
	mock.ExpectQuery(`SELECT \* FROM provider_credentials.*refresh_token IS NOT NULL`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(credentialColumns()).AddRow(
			"cred-2", model.PlatformTikTok, "open-id", "dancer", "tok",
			&refresh, &soon, []byte(`{}`), now, now,
		))

	creds, err := repo.FindExpiring(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "cred-2", creds[0].ID)
}

func TestCredentialRepository_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCredentialRepository(db)

	mock.ExpectExec(`DELETE FROM provider_credentials`).
		WithArgs(model.PlatformX, "1234").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Delete(context.Background(), model.PlatformX, "1234")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
