package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/reachlab/campaign-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByLinkedAccount(ctx context.Context, platform, platformUserID string) (*model.User, error)
	Create(ctx context.Context, params model.CreateUserParams) (*model.User, error)
	UpdateProfile(ctx context.Context, id string, params model.UpdateUserParams) (*model.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	ReplaceLinkedAccounts(ctx context.Context, id string, accounts model.SocialAccounts) (*model.User, error)
	Delete(ctx context.Context, id string) error
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = $1`, email)
	return HandleNotFound(&user, err)
}

// FindByLinkedAccount resolves the user owning a platform slot. Matches on
// the platform and platform user id keys only, ignoring cached metrics.
func (r *userRepo) FindByLinkedAccount(ctx context.Context, platform, platformUserID string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM users
		WHERE linked_accounts @> jsonb_build_array(
			jsonb_build_object('platform', $1::text, 'platformUserId', $2::text)
		)
		LIMIT 1
	`, platform, platformUserID)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO users (email, password_hash, name, address, bank_account, linked_accounts)
		VALUES ($1, $2, $3, $4, $5, '[]')
		RETURNING *
	`, params.Email, params.PasswordHash, params.Name, params.Address, params.BankAccount)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) UpdateProfile(ctx context.Context, id string, params model.UpdateUserParams) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		UPDATE users
		SET name = COALESCE($2, name),
		    address = COALESCE($3, address),
		    bank_account = COALESCE($4, bank_account),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, params.Name, params.Address, params.BankAccount)
	return HandleNotFound(&user, err)
}

func (r *userRepo) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, id, passwordHash)
	return err
}

// ReplaceLinkedAccounts overwrites the whole linked_accounts array.
// Last writer wins; there is no merge.
func (r *userRepo) ReplaceLinkedAccounts(ctx context.Context, id string, accounts model.SocialAccounts) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		UPDATE users SET linked_accounts = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, accounts)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}
