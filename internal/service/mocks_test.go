package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/reachlab/campaign-server-go/internal/model"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) FindByLinkedAccount(ctx context.Context, platform, platformUserID string) (*model.User, error) {
	args := m.Called(ctx, platform, platformUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, id string, params model.UpdateUserParams) (*model.User, error) {
	args := m.Called(ctx, id, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockUserRepo) ReplaceLinkedAccounts(ctx context.Context, id string, accounts model.SocialAccounts) (*model.User, error) {
	args := m.Called(ctx, id, accounts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type mockCredentialRepo struct {
	mock.Mock
}

func (m *mockCredentialRepo) FindByPlatformUser(ctx context.Context, platform, platformUserID string) (*model.ProviderCredential, error) {
	args := m.Called(ctx, platform, platformUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderCredential), args.Error(1)
}

func (m *mockCredentialRepo) FindByPlatformUsername(ctx context.Context, platform, username string) (*model.ProviderCredential, error) {
	args := m.Called(ctx, platform, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderCredential), args.Error(1)
}

func (m *mockCredentialRepo) Upsert(ctx context.Context, params model.UpsertCredentialParams) (*model.ProviderCredential, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ProviderCredential), args.Error(1)
}

func (m *mockCredentialRepo) FindExpiring(ctx context.Context, within time.Duration) ([]*model.ProviderCredential, error) {
	args := m.Called(ctx, within)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ProviderCredential), args.Error(1)
}

func (m *mockCredentialRepo) Delete(ctx context.Context, platform, platformUserID string) error {
	args := m.Called(ctx, platform, platformUserID)
	return args.Error(0)
}
