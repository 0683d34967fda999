package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/reachlab/campaign-server-go/internal/config"
	"github.com/reachlab/campaign-server-go/internal/model"
)

// TikTokClient implements the TikTok OAuth flow. State travels in a
// short-lived cookie rather than the redis store, so the handler validates it
// before calling into the service.
type TikTokClient struct {
	cfg        *config.Config
	httpClient *http.Client

	authBaseURL string
	apiBaseURL  string
}

func NewTikTokClient(cfg *config.Config) *TikTokClient {
	return &TikTokClient{
		cfg:         cfg,
		httpClient:  newProviderHTTPClient(),
		authBaseURL: "https://www.tiktok.com",
		apiBaseURL:  "https://open.tiktokapis.com",
	}
}

func (c *TikTokClient) Platform() string { return model.PlatformTikTok }

func (c *TikTokClient) Configured() bool {
	return c.cfg.TikTokClientKey != "" && c.cfg.TikTokClientSecret != ""
}

func (c *TikTokClient) AuthorizationURL(state string) (*AuthRequest, error) {
	if !c.Configured() {
		return nil, ErrProviderNotConfigured
	}

	params := url.Values{
		"client_key":    {c.cfg.TikTokClientKey},
		"scope":         {"user.info.basic,user.info.stats"},
		"response_type": {"code"},
		"redirect_uri":  {c.cfg.TikTokRedirect()},
		"state":         {state},
	}

	return &AuthRequest{URL: c.authBaseURL + "/v2/auth/authorize/?" + params.Encode()}, nil
}

func (c *TikTokClient) ExchangeCode(ctx context.Context, code, _ string) (*TokenSet, error) {
	if !c.Configured() {
		return nil, ErrProviderNotConfigured
	}

	data := url.Values{
		"client_key":    {c.cfg.TikTokClientKey},
		"client_secret": {c.cfg.TikTokClientSecret},
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.cfg.TikTokRedirect()},
	}

	return c.requestToken(ctx, data)
}

func (c *TikTokClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{
		"client_key":    {c.cfg.TikTokClientKey},
		"client_secret": {c.cfg.TikTokClientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	return c.requestToken(ctx, data)
}

func (c *TikTokClient) requestToken(ctx context.Context, data url.Values) (*TokenSet, error) {
	body, err := postForm(ctx, c.httpClient, c.Platform(), c.apiBaseURL+"/v2/oauth/token/", data, "", "")
	if err != nil {
		return nil, err
	}

	// TikTok reports grant failures with 200 and an error field.
	var resp struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int64  `json:"expires_in"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if resp.Error != "" || resp.AccessToken == "" {
		return nil, ErrProviderError
	}

	tokens := &TokenSet{
		AccessToken: resp.AccessToken,
		ExpiresAt:   expiryFromSeconds(resp.ExpiresIn),
	}
	if resp.RefreshToken != "" {
		tokens.RefreshToken = &resp.RefreshToken
	}
	return tokens, nil
}

func (c *TikTokClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	params := url.Values{
		"fields": {"open_id,union_id,avatar_url,display_name,follower_count,following_count,video_count"},
	}

	body, err := getJSON(ctx, c.httpClient, c.Platform(), c.apiBaseURL+"/v2/user/info/?"+params.Encode(), accessToken)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			User struct {
				OpenID         string `json:"open_id"`
				UnionID        string `json:"union_id"`
				AvatarURL      string `json:"avatar_url"`
				DisplayName    string `json:"display_name"`
				FollowerCount  int64  `json:"follower_count"`
				FollowingCount int64  `json:"following_count"`
				VideoCount     int64  `json:"video_count"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse user info response: %w", err)
	}
	if resp.Data.User.OpenID == "" {
		return nil, ErrProviderError
	}

	u := resp.Data.User
	return &Profile{
		PlatformUserID: u.OpenID,
		Username:       u.DisplayName,
		AvatarURL:      u.AvatarURL,
		Followers:      u.FollowerCount,
		Following:      u.FollowingCount,
		MediaCount:     u.VideoCount,
		Raw:            body,
	}, nil
}
