package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/reachlab/campaign-server-go/internal/model"
)

type CredentialRepository interface {
	FindByPlatformUser(ctx context.Context, platform, platformUserID string) (*model.ProviderCredential, error)
	FindByPlatformUsername(ctx context.Context, platform, username string) (*model.ProviderCredential, error)
	Upsert(ctx context.Context, params model.UpsertCredentialParams) (*model.ProviderCredential, error)
	FindExpiring(ctx context.Context, within time.Duration) ([]*model.ProviderCredential, error)
	Delete(ctx context.Context, platform, platformUserID string) error
}

type credentialRepo struct {
	db *sqlx.DB
}

func NewCredentialRepository(db *sqlx.DB) CredentialRepository {
	return &credentialRepo{db: db}
}

func (r *credentialRepo) FindByPlatformUser(ctx context.Context, platform, platformUserID string) (*model.ProviderCredential, error) {
	var cred model.ProviderCredential
	err := r.db.GetContext(ctx, &cred, `
		SELECT * FROM provider_credentials
		WHERE platform = $1 AND platform_user_id = $2
	`, platform, platformUserID)
	return HandleNotFound(&cred, err)
}

func (r *credentialRepo) FindByPlatformUsername(ctx context.Context, platform, username string) (*model.ProviderCredential, error) {
	var cred model.ProviderCredential
	err := r.db.GetContext(ctx, &cred, `
		SELECT * FROM provider_credentials
		WHERE platform = $1 AND username = $2
	`, platform, username)
	return HandleNotFound(&cred, err)
}

// Upsert writes the credential in a single statement so concurrent callbacks
// for the same platform user cannot create duplicate rows. Relies on the
// unique index on (platform, platform_user_id).
func (r *credentialRepo) Upsert(ctx context.Context, params model.UpsertCredentialParams) (*model.ProviderCredential, error) {
	var cred model.ProviderCredential
	err := r.db.GetContext(ctx, &cred, `
		INSERT INTO provider_credentials
			(platform, platform_user_id, username, access_token, refresh_token, token_expires_at, profile)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (platform, platform_user_id) DO UPDATE SET
			username = EXCLUDED.username,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, provider_credentials.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			profile = EXCLUDED.profile,
			updated_at = NOW()
		RETURNING *
	`, params.Platform, params.PlatformUserID, params.Username, params.AccessToken,
		params.RefreshToken, params.TokenExpiresAt, params.Profile)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepo) FindExpiring(ctx context.Context, within time.Duration) ([]*model.ProviderCredential, error) {
	var creds []*model.ProviderCredential
	err := r.db.SelectContext(ctx, &creds, `
		SELECT * FROM provider_credentials
		WHERE refresh_token IS NOT NULL
		  AND token_expires_at IS NOT NULL
		  AND token_expires_at < $1
		ORDER BY token_expires_at ASC
	`, time.Now().Add(within))
	if err != nil {
		return nil, err
	}
	return creds, nil
}

func (r *credentialRepo) Delete(ctx context.Context, platform, platformUserID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM provider_credentials
		WHERE platform = $1 AND platform_user_id = $2
	`, platform, platformUserID)
	return err
}
