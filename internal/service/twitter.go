package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/reachlab/campaign-server-go/internal/config"
	"github.com/reachlab/campaign-server-go/internal/model"
	"github.com/reachlab/campaign-server-go/internal/util"
)

// XClient implements the X (Twitter) OAuth 2.0 flow with PKCE. The verifier
// rides in the state store between the authorize redirect and the callback.
type XClient struct {
	cfg        *config.Config
	httpClient *http.Client

	authBaseURL string
	apiBaseURL  string
}

func NewXClient(cfg *config.Config) *XClient {
	return &XClient{
		cfg:         cfg,
		httpClient:  newProviderHTTPClient(),
		authBaseURL: "https://twitter.com",
		apiBaseURL:  "https://api.twitter.com",
	}
}

func (c *XClient) Platform() string { return model.PlatformX }

func (c *XClient) Configured() bool {
	return c.cfg.XClientID != "" && c.cfg.XClientSecret != ""
}

func (c *XClient) AuthorizationURL(state string) (*AuthRequest, error) {
	if !c.Configured() {
		return nil, ErrProviderNotConfigured
	}

	verifier, err := util.GenerateCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("generate code verifier: %w", err)
	}

	params := url.Values{
		"response_type":         {"code"},
		"client_id":             {c.cfg.XClientID},
		"redirect_uri":          {c.cfg.XRedirect()},
		"scope":                 {"users.read tweet.read offline.access"},
		"state":                 {state},
		"code_challenge":        {util.CodeChallengeS256(verifier)},
		"code_challenge_method": {"S256"},
	}

	return &AuthRequest{
		URL:          c.authBaseURL + "/i/oauth2/authorize?" + params.Encode(),
		CodeVerifier: verifier,
	}, nil
}

func (c *XClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	if !c.Configured() {
		return nil, ErrProviderNotConfigured
	}
	if codeVerifier == "" {
		return nil, ErrInvalidState
	}

	data := url.Values{
		"code":          {code},
		"grant_type":    {"authorization_code"},
		"client_id":     {c.cfg.XClientID},
		"redirect_uri":  {c.cfg.XRedirect()},
		"code_verifier": {codeVerifier},
	}

	return c.requestToken(ctx, data)
}

func (c *XClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.cfg.XClientID},
	}

	return c.requestToken(ctx, data)
}

func (c *XClient) requestToken(ctx context.Context, data url.Values) (*TokenSet, error) {
	body, err := postForm(ctx, c.httpClient, c.Platform(), c.apiBaseURL+"/2/oauth2/token", data,
		c.cfg.XClientID, c.cfg.XClientSecret)
	if err != nil {
		return nil, err
	}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if resp.AccessToken == "" {
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

type xUserData struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url"`
	PublicMetrics   struct {
		FollowersCount int64 `json:"followers_count"`
		FollowingCount int64 `json:"following_count"`
		TweetCount     int64 `json:"tweet_count"`
	} `json:"public_metrics"`
}

const xUserFields = "user.fields=public_metrics,profile_image_url"

func (c *XClient) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	body, err := getJSON(ctx, c.httpClient, c.Platform(), c.apiBaseURL+"/2/users/me?"+xUserFields, accessToken)
	if err != nil {
		return nil, err
	}
	return parseXUser(body)
}

// FetchUserByUsername looks up any public X account, used for competitor and
// campaign-target metrics rather than the linked account itself.
func (c *XClient) FetchUserByUsername(ctx context.Context, accessToken, username string) (*Profile, error) {
	endpoint := c.apiBaseURL + "/2/users/by/username/" + url.PathEscape(username) + "?" + xUserFields
	body, err := getJSON(ctx, c.httpClient, c.Platform(), endpoint, accessToken)
	if err != nil {
		return nil, err
	}
	return parseXUser(body)
}

func parseXUser(body []byte) (*Profile, error) {
	var resp struct {
		Data xUserData `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse user response: %w", err)
	}
	if resp.Data.ID == "" {
		return nil, ErrProviderError
	}

	return &Profile{
		PlatformUserID: resp.Data.ID,
		Username:       resp.Data.Username,
		AvatarURL:      resp.Data.ProfileImageURL,
		Followers:      resp.Data.PublicMetrics.FollowersCount,
		Following:      resp.Data.PublicMetrics.FollowingCount,
		MediaCount:     resp.Data.PublicMetrics.TweetCount,
		Raw:            body,
	}, nil
}
