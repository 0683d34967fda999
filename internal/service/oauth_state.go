package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/reachlab/campaign-server-go/internal/redis"
	"github.com/reachlab/campaign-server-go/internal/util"
)

// OAuthState is the transient correlation between an authorize redirect and
// its callback. Held in redis with a TTL so in-flight logins survive process
// restarts and horizontally-scaled instances see each other's states.
type OAuthState struct {
	Platform     string    `json:"platform"`
	CodeVerifier string    `json:"codeVerifier,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type StateStore struct {
	redis *redisclient.Client
	ttl   time.Duration
}

func NewStateStore(redisClient *redisclient.Client, ttl time.Duration) *StateStore {
	return &StateStore{redis: redisClient, ttl: ttl}
}

// Issue creates a fresh random state and stores it with the given verifier
// (empty for providers without PKCE).
func (s *StateStore) Issue(ctx context.Context, platform, codeVerifier string) (string, error) {
	state, err := util.GenerateToken()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := s.Save(ctx, platform, state, codeVerifier); err != nil {
		return "", err
	}
	return state, nil
}

// Save stores a caller-chosen state value with its verifier.
func (s *StateStore) Save(ctx context.Context, platform, state, codeVerifier string) error {
	entry := OAuthState{
		Platform:     platform,
		CodeVerifier: codeVerifier,
		CreatedAt:    time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	key := redisclient.StateKey(platform, state)
	if err := s.redis.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store state: %w", err)
	}

	log.Debug().
		Str("platform", platform).
		Dur("ttl", s.ttl).
		Msg("oauth state issued")

	return nil
}

// Consume atomically fetches and deletes a state entry. Each state is
// single-use; a second consume of the same value returns nil.
func (s *StateStore) Consume(ctx context.Context, platform, state string) (*OAuthState, error) {
	key := redisclient.StateKey(platform, state)
	data, err := s.redis.GetDel(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("consume state: %w", err)
	}

	var entry OAuthState
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if entry.Platform != platform {
		return nil, nil
	}

	return &entry, nil
}
