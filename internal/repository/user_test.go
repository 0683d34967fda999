package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachlab/campaign-server-go/internal/model"
)

func userColumns() []string {
	return []string{
		"id", "email", "password_hash", "name", "address", "bank_account",
		"linked_accounts", "created_at", "updated_at",
	}
}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("new@example.com", "hash", "New User", nil, nil).
		WillReturnRows(sqlmock.NewRows(userColumns()).AddRow(
			"user-1", "new@example.com", "hash", "New User", nil, nil,
			[]byte(`[]`), now, now,
		))

	user, err := repo.Create(context.Background(), model.CreateUserParams{
		Email:        "new@example.com",
		PasswordHash: "hash",
		Name:         "New User",
	})

	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
	assert.Empty(t, user.LinkedAccounts)
}

func TestUserRepository_FindByEmail(t *testing.T) {
	t.Run("returns nil without error when missing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`SELECT \* FROM users WHERE email`).
			WithArgs("ghost@example.com").
			WillReturnRows(sqlmock.NewRows(userColumns()))

		user, err := repo.FindByEmail(context.Background(), "ghost@example.com")
		require.NoError(t, err)
		assert.Nil(t, user)
	})
}

func TestUserRepository_FindByLinkedAccount(t *testing.T) {
	t.Run("matches on platform and platform user id", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		now := time.Now()
		mock.ExpectQuery(`SELECT \* FROM users\s+WHERE linked_accounts @>`).
			WithArgs(model.PlatformX, "9001").
			WillReturnRows(sqlmock.NewRows(userColumns()).AddRow(
				"user-1", "u@example.com", "hash", "User", nil, nil,
				[]byte(`[{"platform":"x","platformUserId":"9001","username":"creator","profilePictureUrl":"","connected":true,"followers":1200,"following":300,"mediaCount":4500,"updatedAt":"0001-01-01T00:00:00Z"}]`),
				now, now,
			))

		user, err := repo.FindByLinkedAccount(context.Background(), model.PlatformX, "9001")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "user-1", user.ID)
	})

	t.Run("returns nil without error when no user owns the slot", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewUserRepository(db)

		mock.ExpectQuery(`SELECT \* FROM users\s+WHERE linked_accounts @>`).
			WithArgs(model.PlatformX, "ghost").
			WillReturnRows(sqlmock.NewRows(userColumns()))

		user, err := repo.FindByLinkedAccount(context.Background(), model.PlatformX, "ghost")
		require.NoError(t, err)
		assert.Nil(t, user)
	})
}

func TestUserRepository_ReplaceLinkedAccounts(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	accounts := model.SocialAccounts{
		{Platform: model.PlatformX, Username: "creator", Connected: true},
	}

	now := time.Now()
	mock.ExpectQuery(`UPDATE users SET linked_accounts`).
		WithArgs("user-1", accounts).
		WillReturnRows(sqlmock.NewRows(userColumns()).AddRow(
			"user-1", "u@example.com", "hash", "User", nil, nil,
			[]byte(`[{"platform":"x","username":"creator","profilePictureUrl":"","connected":true,"followers":0,"following":0,"mediaCount":0,"updatedAt":"0001-01-01T00:00:00Z"}]`),
			now, now,
		))

	user, err := repo.ReplaceLinkedAccounts(context.Background(), "user-1", accounts)
	require.NoError(t, err)
	require.Len(t, user.LinkedAccounts, 1)
	assert.Equal(t, model.PlatformX, user.LinkedAccounts[0].Platform)
	assert.True(t, user.LinkedAccounts[0].Connected)
}

func TestUserRepository_UpdateProfile(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	name := "Renamed"
	now := time.Now()
	mock.ExpectQuery(`UPDATE users`).
		WithArgs("user-1", &name, nil, nil).
		WillReturnRows(sqlmock.NewRows(userColumns()).AddRow(
			"user-1", "u@example.com", "hash", "Renamed", nil, nil,
			[]byte(`[]`), now, now,
		))

	user, err := repo.UpdateProfile(context.Background(), "user-1", model.UpdateUserParams{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", user.Name)
}
