package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/config"
	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/repository"
	"github.com/reachlab/campaign-server-go/internal/sse"
	"github.com/reachlab/campaign-server-go/internal/util"
)

// LinkService orchestrates the connect flow: state handling, code exchange,
// profile fetch, credential upsert and the user's linked-accounts slot.
type LinkService struct {
	cfg        *config.Config
	providers  map[string]ProviderClient
	stateStore *StateStore
	userRepo   repository.UserRepository
	credRepo   repository.CredentialRepository
	broker     *sse.Broker
}

func NewLinkService(
	cfg *config.Config,
	providers []ProviderClient,
	stateStore *StateStore,
	userRepo repository.UserRepository,
	credRepo repository.CredentialRepository,
	broker *sse.Broker,
) *LinkService {
	byPlatform := make(map[string]ProviderClient, len(providers))
	for _, p := range providers {
		byPlatform[p.Platform()] = p
	}
	return &LinkService{
		cfg:        cfg,
		providers:  byPlatform,
		stateStore: stateStore,
		userRepo:   userRepo,
		credRepo:   credRepo,
		broker:     broker,
	}
}

func (s *LinkService) Provider(platform string) (ProviderClient, error) {
	client, ok := s.providers[platform]
	if !ok {
		return nil, fmt.Errorf("unknown platform: %s", platform)
	}
	return client, nil
}

// LinkStart is a prepared authorize redirect. State is empty for Instagram
// (no state parameter) and, for TikTok, is returned so the handler can set
// the csrf cookie instead of the redis store.
type LinkStart struct {
	URL   string
	State string
}

func (s *LinkService) GetAuthURL(ctx context.Context, platform string) (*LinkStart, error) {
	client, err := s.Provider(platform)
	if err != nil {
		return nil, err
	}

	switch platform {
	case model.PlatformX:
		// State and PKCE verifier go to redis together; the callback gets
		// both back in one consume.
		state, err := util.GenerateToken()
		if err != nil {
			return nil, err
		}
		req, err := client.AuthorizationURL(state)
		if err != nil {
			return nil, err
		}
		if err := s.stateStore.Save(ctx, platform, state, req.CodeVerifier); err != nil {
			return nil, err
		}
		return &LinkStart{URL: req.URL, State: state}, nil

	case model.PlatformTikTok:
		state, err := util.GenerateToken()
		if err != nil {
			return nil, err
		}
		req, err := client.AuthorizationURL(state)
		if err != nil {
			return nil, err
		}
		return &LinkStart{URL: req.URL, State: state}, nil

	default:
		req, err := client.AuthorizationURL("")
		if err != nil {
			return nil, err
		}
		return &LinkStart{URL: req.URL}, nil
	}
}

// CompleteLink runs the callback leg: validate state where the platform uses
// the redis store, exchange the code, fetch the profile and upsert the
// credential. If userID is set the user's platform slot is overwritten too.
// An invalid state aborts before anything is written.
func (s *LinkService) CompleteLink(ctx context.Context, platform, code, state, userID string) (*model.User, *Profile, error) {
	client, err := s.Provider(platform)
	if err != nil {
		return nil, nil, err
	}

	codeVerifier := ""
	if platform == model.PlatformX {
		entry, err := s.stateStore.Consume(ctx, platform, state)
		if err != nil {
			return nil, nil, err
		}
		if entry == nil {
			return nil, nil, ErrInvalidState
		}
		codeVerifier = entry.CodeVerifier
	}

	tokens, err := client.ExchangeCode(ctx, code, codeVerifier)
	if err != nil {
		return nil, nil, err
	}

	profile, err := client.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.storeCredential(ctx, platform, tokens, profile); err != nil {
		return nil, nil, err
	}

	var user *model.User
	if userID != "" {
		user, err = s.attachToUser(ctx, userID, platform, profile)
		if err != nil {
			return nil, nil, err
		}
	}

	log.Info().
		Str("platform", platform).
		Str("platformUserId", profile.PlatformUserID).
		Str("username", profile.Username).
		Bool("attached", userID != "").
		Msg("account linked")

	return user, profile, nil
}

func (s *LinkService) storeCredential(ctx context.Context, platform string, tokens *TokenSet, profile *Profile) (*model.ProviderCredential, error) {
	accessToken, err := s.sealToken(tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	var refreshToken *string
	if tokens.RefreshToken != nil {
		sealed, err := s.sealToken(*tokens.RefreshToken)
		if err != nil {
			return nil, err
		}
		refreshToken = &sealed
	}

	return s.credRepo.Upsert(ctx, model.UpsertCredentialParams{
		Platform:       platform,
		PlatformUserID: profile.PlatformUserID,
		Username:       profile.Username,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiresAt: tokens.ExpiresAt,
		Profile:        profile.Raw,
	})
}

func (s *LinkService) attachToUser(ctx context.Context, userID, platform string, profile *Profile) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	slot := model.SocialAccount{
		Platform:          platform,
		PlatformUserID:    profile.PlatformUserID,
		Username:          profile.Username,
		ProfilePictureURL: profile.AvatarURL,
		Connected:         true,
		Followers:         profile.Followers,
		Following:         profile.Following,
		MediaCount:        profile.MediaCount,
		UpdatedAt:         time.Now(),
	}

	accounts := user.LinkedAccounts
	if i := accounts.FindPlatform(platform); i >= 0 {
		accounts[i] = slot
	} else {
		accounts = append(accounts, slot)
	}

	updated, err := s.userRepo.ReplaceLinkedAccounts(ctx, userID, accounts)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, userID, sse.EventAccountLinked, slot)
	return updated, nil
}

// Unlink clears the platform slot and deletes the stored credential.
func (s *LinkService) Unlink(ctx context.Context, userID, platform string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	i := user.LinkedAccounts.FindPlatform(platform)
	if i < 0 {
		return nil, ErrNotLinked
	}
	slot := user.LinkedAccounts[i]

	if slot.PlatformUserID != "" {
		if err := s.credRepo.Delete(ctx, platform, slot.PlatformUserID); err != nil {
			return nil, err
		}
	}

	accounts := append(user.LinkedAccounts[:i:i], user.LinkedAccounts[i+1:]...)
	updated, err := s.userRepo.ReplaceLinkedAccounts(ctx, userID, accounts)
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, userID, sse.EventAccountUnlinked, map[string]string{"platform": platform})

	log.Info().
		Str("userId", userID).
		Str("platform", platform).
		Msg("account unlinked")

	return updated, nil
}

// Credential returns the stored row with tokens opened for use.
func (s *LinkService) Credential(ctx context.Context, platform, platformUserID string) (*model.ProviderCredential, error) {
	cred, err := s.credRepo.FindByPlatformUser(ctx, platform, platformUserID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNotLinked
	}
	return s.openCredential(cred)
}

// CredentialByUsername resolves a credential by the provider username.
func (s *LinkService) CredentialByUsername(ctx context.Context, platform, username string) (*model.ProviderCredential, error) {
	cred, err := s.credRepo.FindByPlatformUsername(ctx, platform, username)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrNotLinked
	}
	return s.openCredential(cred)
}

// RefreshCredential refreshes the provider tokens for a stored credential and
// re-fetches profile metrics. The passed credential must have open tokens.
func (s *LinkService) RefreshCredential(ctx context.Context, cred *model.ProviderCredential) (*model.ProviderCredential, error) {
	client, err := s.Provider(cred.Platform)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == nil {
		return nil, fmt.Errorf("%s credential %s has no refresh token", cred.Platform, cred.ID)
	}

	tokens, err := client.RefreshToken(ctx, *cred.RefreshToken)
	if err != nil {
		return nil, err
	}

	profile, err := client.FetchProfile(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	updated, err := s.storeCredential(ctx, cred.Platform, tokens, profile)
	if err != nil {
		return nil, err
	}

	s.refreshOwnerMetrics(ctx, cred.Platform, profile)

	log.Info().
		Str("platform", cred.Platform).
		Str("platformUserId", cred.PlatformUserID).
		Msg("credential refreshed")

	return updated, nil
}

// refreshOwnerMetrics pushes re-fetched metrics onto the owning user's slot
// and notifies open SSE streams. Best effort: a failure here never fails the
// refresh itself.
func (s *LinkService) refreshOwnerMetrics(ctx context.Context, platform string, profile *Profile) {
	user, err := s.userRepo.FindByLinkedAccount(ctx, platform, profile.PlatformUserID)
	if err != nil {
		log.Warn().Err(err).
			Str("platform", platform).
			Str("platformUserId", profile.PlatformUserID).
			Msg("failed to resolve user for metrics update")
		return
	}
	if user == nil {
		return
	}

	accounts := user.LinkedAccounts
	i := accounts.FindPlatform(platform)
	if i < 0 {
		return
	}

	slot := accounts[i]
	slot.Username = profile.Username
	slot.ProfilePictureURL = profile.AvatarURL
	slot.Followers = profile.Followers
	slot.Following = profile.Following
	slot.MediaCount = profile.MediaCount
	slot.UpdatedAt = time.Now()
	accounts[i] = slot

	if _, err := s.userRepo.ReplaceLinkedAccounts(ctx, user.ID, accounts); err != nil {
		log.Warn().Err(err).
			Str("userId", user.ID).
			Str("platform", platform).
			Msg("failed to update slot metrics")
		return
	}

	s.publishEvent(ctx, user.ID, sse.EventMetricsUpdated, slot)
}

// HandleDeauthorize removes the credential after a provider-side revoke.
func (s *LinkService) HandleDeauthorize(ctx context.Context, platform, platformUserID string) error {
	if err := s.credRepo.Delete(ctx, platform, platformUserID); err != nil {
		return err
	}
	log.Info().
		Str("platform", platform).
		Str("platformUserId", platformUserID).
		Msg("credential removed after provider deauthorize")
	return nil
}

// OpenCredential decrypts the token columns of a repository row.
func (s *LinkService) OpenCredential(cred *model.ProviderCredential) (*model.ProviderCredential, error) {
	return s.openCredential(cred)
}

func (s *LinkService) openCredential(cred *model.ProviderCredential) (*model.ProviderCredential, error) {
	opened := *cred

	token, err := s.unsealToken(cred.AccessToken)
	if err != nil {
		return nil, err
	}
	opened.AccessToken = token

	if cred.RefreshToken != nil {
		refresh, err := s.unsealToken(*cred.RefreshToken)
		if err != nil {
			return nil, err
		}
		opened.RefreshToken = &refresh
	}

	return &opened, nil
}

func (s *LinkService) sealToken(token string) (string, error) {
	if s.cfg.EncryptionKey == "" {
		return token, nil
	}
	return util.Encrypt(s.cfg.EncryptionKey, token)
}

func (s *LinkService) unsealToken(token string) (string, error) {
	if s.cfg.EncryptionKey == "" {
		return token, nil
	}
	return util.Decrypt(s.cfg.EncryptionKey, token)
}

func (s *LinkService) publishEvent(ctx context.Context, userID, eventType string, payload interface{}) {
	if s.broker == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.broker.Publish(ctx, userID, sse.Event{Type: eventType, Data: data}); err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("failed to publish link event")
	}
}
