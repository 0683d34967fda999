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

// InstagramClient implements the Instagram login flow. The code exchange is
// two hops: a short-lived token from the auth host, then a long-lived token
// from the graph host. The long-lived token doubles as the refresh credential
// because Instagram refreshes by presenting the token itself.
type InstagramClient struct {
	cfg        *config.Config
	httpClient *http.Client

	authBaseURL  string
	graphBaseURL string
}

func NewInstagramClient(cfg *config.Config) *InstagramClient {
	return &InstagramClient{
		cfg:          cfg,
		httpClient:   newProviderHTTPClient(),
		authBaseURL:  "https://api.instagram.com",
		graphBaseURL: "https://graph.instagram.com",
	}
}

func (c *InstagramClient) Platform() string { return model.PlatformInstagram }

func (c *InstagramClient) Configured() bool {
	return c.cfg.InstagramClientID != "" && c.cfg.InstagramClientSecret != ""
}

// AuthorizationURL builds the authorize redirect. Instagram callbacks are
// correlated by redirect URI alone; the state argument is ignored.
func (c *InstagramClient) AuthorizationURL(_ string) (*AuthRequest, error) {
	if !c.Configured() {
		return nil, ErrProviderNotConfigured
	}

	params := url.Values{
		"client_id":     {c.cfg.InstagramClientID},
		"redirect_uri":  {c.cfg.InstagramRedirect()},
		"scope":         {"instagram_business_basic"},
		"response_type": {"code"},
	}

	return &AuthRequest{URL: c.authBaseURL + "/oauth/authorize?" + params.Encode()}, nil
}

func (c *InstagramClient) ExchangeCode(ctx context.Context, code, _ string) (*TokenSet, error) {
	if !c.Configured() {
		return nil, ErrProviderNotConfigured
	}

	data := url.Values{
		"client_id":     {c.cfg.InstagramClientID},
		"client_secret": {c.cfg.InstagramClientSecret},
		"grant_type":    {"authorization_code"},
		"redirect_uri":  {c.cfg.InstagramRedirect()},
		"code":          {code},
	}

	body, err := postForm(ctx, c.httpClient, c.Platform(), c.authBaseURL+"/oauth/access_token", data, "", "")
	if err != nil {
		return nil, err
	}

	var shortLived struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &shortLived); err != nil {
		return nil, fmt.Errorf("parse short-lived token response: %w", err)
	}
	if shortLived.AccessToken == "" {
		return nil, ErrProviderError
	}

	return c.exchangeLongLived(ctx, shortLived.AccessToken)
}

func (c *InstagramClient) exchangeLongLived(ctx context.Context, shortToken string) (*TokenSet, error) {
	params := url.Values{
		"grant_type":    {"ig_exchange_token"},
		"client_secret": {c.cfg.InstagramClientSecret},
		"access_token":  {shortToken},
	}

	body, err := getJSON(ctx, c.httpClient, c.Platform(), c.graphBaseURL+"/access_token?"+params.Encode(), "")
	if err != nil {
		return nil, err
	}

	return c.parseLongLived(body)
}

// RefreshToken extends a long-lived token. Instagram takes the current token
// as the grant, so refreshToken here is the stored long-lived access token.
func (c *InstagramClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	params := url.Values{
		"grant_type":   {"ig_refresh_token"},
		"access_token": {refreshToken},
	}

	body, err := getJSON(ctx, c.httpClient, c.Platform(), c.graphBaseURL+"/refresh_access_token?"+params.Encode(), "")
	if err != nil {
		return nil, err
	}

	return c.parseLongLived(body)
}

func (c *InstagramClient) parseLongLived(body []byte) (*TokenSet, error) {
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse long-lived token response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, ErrProviderError
	}

	token := resp.AccessToken
	return &TokenSet{
		AccessToken:  token,
		RefreshToken: &token,
		ExpiresAt:    expiryFromSeconds(resp.ExpiresIn),
	}, nil
}

func (c *InstagramClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	params := url.Values{
		"fields":       {"id,username,profile_picture_url,followers_count,follows_count,media_count"},
		"access_token": {accessToken},
	}

	body, err := getJSON(ctx, c.httpClient, c.Platform(), c.graphBaseURL+"/me?"+params.Encode(), "")
	if err != nil {
		return nil, err
	}

	var info struct {
		ID                string `json:"id"`
		Username          string `json:"username"`
		ProfilePictureURL string `json:"profile_picture_url"`
		FollowersCount    int64  `json:"followers_count"`
		FollowsCount      int64  `json:"follows_count"`
		MediaCount        int64  `json:"media_count"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parse profile response: %w", err)
	}
	if info.ID == "" {
		return nil, ErrProviderError
	}

	return &Profile{
		PlatformUserID: info.ID,
		Username:       info.Username,
		AvatarURL:      info.ProfilePictureURL,
		Followers:      info.FollowersCount,
		Following:      info.FollowsCount,
		MediaCount:     info.MediaCount,
		Raw:            body,
	}, nil
}

// FetchMedia returns the user's recent media list as raw provider JSON; the
// SPA renders it unmodified.
func (c *InstagramClient) FetchMedia(ctx context.Context, accessToken string) (json.RawMessage, error) {
	params := url.Values{
		"fields":       {"id,caption,media_type,media_url,permalink,thumbnail_url,timestamp,like_count,comments_count"},
		"access_token": {accessToken},
	}
	return getJSON(ctx, c.httpClient, c.Platform(), c.graphBaseURL+"/me/media?"+params.Encode(), "")
}

// FetchTaggedMedia returns media the user is tagged in.
func (c *InstagramClient) FetchTaggedMedia(ctx context.Context, accessToken string) (json.RawMessage, error) {
	params := url.Values{
		"fields":       {"id,caption,media_type,media_url,permalink,timestamp,username"},
		"access_token": {accessToken},
	}
	return getJSON(ctx, c.httpClient, c.Platform(), c.graphBaseURL+"/me/tags?"+params.Encode(), "")
}
