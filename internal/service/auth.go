package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/repository"
	"github.com/reachlab/campaign-server-go/internal/util"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrDuplicatePlatform  = errors.New("linked accounts carry duplicate platforms")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

type AuthService struct {
	userRepo   repository.UserRepository
	credRepo   repository.CredentialRepository
	jwtSecret  []byte
	sessionTTL time.Duration
}

func NewAuthService(
	userRepo repository.UserRepository,
	credRepo repository.CredentialRepository,
	jwtSecret string,
	sessionTTL time.Duration,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		credRepo:   credRepo,
		jwtSecret:  []byte(jwtSecret),
		sessionTTL: sessionTTL,
	}
}

// EmailAvailable reports whether no account exists for the address.
func (s *AuthService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	user, err := s.userRepo.FindByEmail(ctx, util.NormalizeEmail(email))
	if err != nil {
		return false, err
	}
	return user == nil, nil
}

type SignupParams struct {
	Email       string
	Password    string
	Name        string
	Address     *string
	BankAccount *string
}

func (s *AuthService) Signup(ctx context.Context, params SignupParams) (*model.User, string, error) {
	email := util.NormalizeEmail(params.Email)

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		return nil, "", ErrEmailTaken
	}

	hash, err := util.HashPassword(params.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.userRepo.Create(ctx, model.CreateUserParams{
		Email:        email,
		PasswordHash: hash,
		Name:         params.Name,
		Address:      params.Address,
		BankAccount:  params.BankAccount,
	})
	if err != nil {
		return nil, "", err
	}

	token, err := s.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}

	log.Info().
		Str("userId", user.ID).
		Str("email", user.Email).
		Msg("user signed up")

	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmail(ctx, util.NormalizeEmail(email))
	if err != nil {
		return nil, "", err
	}
	if user == nil || !util.CheckPasswordHash(password, user.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueSession(user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// IssueSession mints a signed session token for the user.
func (s *AuthService) IssueSession(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.sessionTTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// ValidateSession returns the user for a session token, or ErrInvalidSession.
func (s *AuthService) ValidateSession(ctx context.Context, token string) (*model.User, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	user, err := s.userRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidSession
	}
	return user, nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.userRepo.FindByID(ctx, userID)
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, params model.UpdateUserParams) (*model.User, error) {
	return s.userRepo.UpdateProfile(ctx, userID, params)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil || !util.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := util.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	log.Info().Str("userId", userID).Msg("password changed")
	return nil
}

// ReplaceLinkedAccounts swaps the full linked-accounts array. Last writer
// wins; the only server-side check is one slot per platform.
func (s *AuthService) ReplaceLinkedAccounts(ctx context.Context, userID string, accounts model.SocialAccounts) (*model.User, error) {
	seen := make(map[string]bool, len(accounts))
	for _, acc := range accounts {
		if !model.IsValidPlatform(acc.Platform) {
			return nil, fmt.Errorf("unknown platform %q", acc.Platform)
		}
		if seen[acc.Platform] {
			return nil, ErrDuplicatePlatform
		}
		seen[acc.Platform] = true
	}

	return s.userRepo.ReplaceLinkedAccounts(ctx, userID, accounts)
}

// DeleteUser removes the user and every provider credential referenced by
// their linked accounts.
func (s *AuthService) DeleteUser(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	for _, acc := range user.LinkedAccounts {
		if acc.PlatformUserID == "" {
			continue
		}
		if err := s.credRepo.Delete(ctx, acc.Platform, acc.PlatformUserID); err != nil {
			log.Warn().
				Err(err).
				Str("userId", userID).
				Str("platform", acc.Platform).
				Msg("failed to delete provider credential during account deletion")
		}
	}

	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return err
	}

	log.Info().Str("userId", userID).Msg("user deleted")
	return nil
}
