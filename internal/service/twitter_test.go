package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachlab/campaign-server-go/internal/config"
	"github.com/reachlab/campaign-server-go/internal/util"
)

func TestXClient_AuthorizationURL(t *testing.T) {
	client := NewXClient(testConfig())

	req, err := client.AuthorizationURL("the-state")
	require.NoError(t, err)
	require.NotEmpty(t, req.CodeVerifier)

	parsed, err := url.Parse(req.URL)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "the-state", q.Get("state"))
	assert.Equal(t, util.CodeChallengeS256(req.CodeVerifier), q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Contains(t, q.Get("scope"), "offline.access")
}

func TestXClient_AuthorizationURL_FreshVerifierPerRequest(t *testing.T) {
	client := NewXClient(testConfig())

	first, err := client.AuthorizationURL("s1")
	require.NoError(t, err)
	second, err := client.AuthorizationURL("s2")
	require.NoError(t, err)
	assert.NotEqual(t, first.CodeVerifier, second.CodeVerifier)
}

func TestXClient_RefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "x-client-id", user)
		assert.Equal(t, "x-client-secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "rotated-access",
			"refresh_token": "rotated-refresh",
			"expires_in":    7200,
		})
	}))
	defer server.Close()

	client := NewXClient(testConfig())
	client.apiBaseURL = server.URL

	tokens, err := client.RefreshToken(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "rotated-access", tokens.AccessToken)
	require.NotNil(t, tokens.RefreshToken)
	assert.Equal(t, "rotated-refresh", *tokens.RefreshToken)
}

func TestXClient_FetchUserByUsername(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/users/by/username/rival", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer x-access-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":       "7777",
				"name":     "Rival",
				"username": "rival",
				"public_metrics": map[string]any{
					"followers_count": 100000,
					"following_count": 5,
					"tweet_count":     20000,
				},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewXClient(testConfig())
	client.apiBaseURL = server.URL

	profile, err := client.FetchUserByUsername(context.Background(), "x-access-token", "rival")
	require.NoError(t, err)
	assert.Equal(t, "7777", profile.PlatformUserID)
	assert.Equal(t, int64(100000), profile.Followers)
	assert.Equal(t, int64(20000), profile.MediaCount)
}

func TestXClient_ExchangeCode_RequiresVerifier(t *testing.T) {
	client := NewXClient(testConfig())
	_, err := client.ExchangeCode(context.Background(), "code", "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestXClient_Unconfigured(t *testing.T) {
	client := NewXClient(&config.Config{})
	_, err := client.AuthorizationURL("s")
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}
