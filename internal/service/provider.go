package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reachlab/campaign-server-go/internal/config"
)

var (
	ErrInvalidState          = errors.New("invalid or expired OAuth state")
	ErrProviderError         = errors.New("provider returned an error")
	ErrProviderNotConfigured = errors.New("OAuth provider not configured")
	ErrNotLinked             = errors.New("no credential stored for this platform user")
)

// TokenSet is the normalized result of a code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken *string
	ExpiresAt    *time.Time
}

// Profile is a provider profile normalized across platforms. MediaCount
// carries the platform-specific secondary metric (media, tweets or videos).
type Profile struct {
	PlatformUserID string
	Username       string
	AvatarURL      string
	Followers      int64
	Following      int64
	MediaCount     int64
	Raw            json.RawMessage
}

// AuthRequest is a prepared authorization redirect. CodeVerifier is set only
// for providers using PKCE and must be retrievable when the callback arrives.
type AuthRequest struct {
	URL          string
	CodeVerifier string
}

// ProviderClient is the shape shared by the three platform OAuth clients.
type ProviderClient interface {
	Platform() string
	Configured() bool
	AuthorizationURL(state string) (*AuthRequest, error)
	// ExchangeCode trades an authorization code for tokens. codeVerifier is
	// ignored by providers that do not use PKCE.
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}

func newProviderHTTPClient() *http.Client {
	return &http.Client{Timeout: config.ProviderHTTPTimeout}
}

// postForm sends a URL-encoded POST and returns the body for 2xx responses.
// Upstream rejections are logged with whatever detail the provider gave and
// surfaced as ErrProviderError.
func postForm(ctx context.Context, client *http.Client, platform, endpoint string, data url.Values, basicAuthUser, basicAuthPass string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuthUser != "" {
		req.SetBasicAuth(basicAuthUser, basicAuthPass)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("platform", platform).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("provider token endpoint rejected request")
		return nil, ErrProviderError
	}

	return body, nil
}

// getJSON performs a GET with optional bearer auth and the same upstream
// error discipline as postForm.
func getJSON(ctx context.Context, client *http.Client, platform, endpoint, bearerToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("platform", platform).
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("provider API call failed")
		return nil, ErrProviderError
	}

	return body, nil
}

func expiryFromSeconds(seconds int64) *time.Time {
	if seconds <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(seconds) * time.Second)
	return &t
}
