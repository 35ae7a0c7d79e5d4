package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"leavedesk/backend/config"
)

// Zoho 未返回 expires_in 时按一小时计
const defaultTokenLifetime = time.Hour

// TokenGrant token 端点返回的授权结果
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	ExpiresAt    time.Time
	APIDomain    string
}

// OAuthClient 封装 Zoho accounts 的授权 URL 构造、授权码换取与 refresh_token 换取
// client secret 只在服务端表单中发送
type OAuthClient struct {
	clientID     string
	clientSecret string
	redirectURI  string
	scopes       []string
	httpClient   *http.Client
	now          func() time.Time
}

// NewOAuthClient 创建 OAuthClient，httpClient 需自带超时
func NewOAuthClient(cfg *config.ZohoConfig, httpClient *http.Client) *OAuthClient {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &OAuthClient{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURI,
		scopes:       scopes,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// WithClock 替换时钟（测试用）
func (c *OAuthClient) WithClock(now func() time.Time) *OAuthClient {
	c.now = now
	return c
}

// RedirectURI 已登记的回调地址
func (c *OAuthClient) RedirectURI() string { return c.redirectURI }

func (c *OAuthClient) config(accountsBaseURL, redirectURI string) *oauth2.Config {
	base := strings.TrimRight(accountsBaseURL, "/")
	return &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   base + PathAuthorize,
			TokenURL:  base + PathToken,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *OAuthClient) withHTTPClient(ctx context.Context) context.Context {
	if c.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthCodeURL 构造浏览器跳转的授权地址；Zoho 要求 scope 以逗号分隔
func (c *OAuthClient) AuthCodeURL(accountsBaseURL, state string) string {
	return c.config(accountsBaseURL, c.redirectURI).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("scope", strings.Join(c.scopes, ",")),
	)
}

// Exchange 以 authorization_code 换取 access/refresh token
func (c *OAuthClient) Exchange(ctx context.Context, accountsBaseURL, code, redirectURI string) (*TokenGrant, error) {
	if redirectURI == "" {
		redirectURI = c.redirectURI
	}
	tok, err := c.config(accountsBaseURL, redirectURI).Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	return c.grantFrom(tok), nil
}

// Refresh 以 refresh_token 换取新的 access token
func (c *OAuthClient) Refresh(ctx context.Context, accountsBaseURL, refreshToken string) (*TokenGrant, error) {
	src := c.config(accountsBaseURL, "").TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	return c.grantFrom(tok), nil
}

func (c *OAuthClient) grantFrom(tok *oauth2.Token) *TokenGrant {
	now := c.now()
	expiresIn := expiresInOf(tok, now)
	grant := &TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
		ExpiresAt:    now.Add(expiresIn),
	}
	if v, ok := tok.Extra("api_domain").(string); ok {
		grant.APIDomain = v
	}
	return grant
}

// expiresInOf 优先读取响应中的原始 expires_in 秒数
func expiresInOf(tok *oauth2.Token, now time.Time) time.Duration {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	if !tok.Expiry.IsZero() && tok.Expiry.After(now) {
		return tok.Expiry.Sub(now).Round(time.Second)
	}
	return defaultTokenLifetime
}
