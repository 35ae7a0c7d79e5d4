package zoho

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxResponseBody = 8 << 20

// Request 发往 Zoho People 的一次请求（Path 相对于连接的 people_base_url）
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

// Response 远端原始响应
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK 是否 2xx
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

type callState int

const (
	stateAttempt callState = iota
	stateRefresh
	stateReissue
)

// Caller 携带当前 access token 调用 Zoho People
// 每次调用都从存储读取最新 token；整个调用至多刷新一次、重发一次
type Caller struct {
	store      ConnectionStore
	refresher  TokenRefresher
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
	logger     *zap.Logger
}

// NewCaller 创建 Caller；limiter 为 nil 时不限流
func NewCaller(store ConnectionStore, refresher TokenRefresher, httpClient *http.Client, limiter *rate.Limiter, logger *zap.Logger) *Caller {
	return &Caller{
		store:      store,
		refresher:  refresher,
		httpClient: httpClient,
		limiter:    limiter,
		now:        time.Now,
		logger:     logger,
	}
}

// WithClock 替换时钟（测试用）
func (c *Caller) WithClock(now func() time.Time) *Caller {
	c.now = now
	return c
}

// Do 执行请求：attempt → (401) refresh → reissue → 返回
// 刷新失败时返回原始 401 响应与 ErrAuthFailed；重发结果无论成功与否原样返回
func (c *Caller) Do(ctx context.Context, orgID string, req *Request) (*Response, error) {
	conn, err := LoadConnection(ctx, c.store, orgID)
	if err != nil {
		return nil, err
	}

	refreshBudget := 1

	// 已过期的 token 先刷新，占用本次调用唯一的刷新机会
	if !conn.ExpiresAt.After(c.now()) {
		refreshBudget--
		if conn, err = c.refresher.Refresh(ctx, conn); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
	}

	var resp *Response
	state := stateAttempt
	for {
		switch state {
		case stateAttempt:
			resp, err = c.send(ctx, orgID, conn.PeopleBaseURL, conn.AccessToken, req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusUnauthorized || refreshBudget == 0 {
				return resp, nil
			}
			state = stateRefresh

		case stateRefresh:
			refreshBudget--
			if _, err := c.refresher.Refresh(ctx, conn); err != nil {
				return resp, fmt.Errorf("%w: %w", ErrAuthFailed, err)
			}
			state = stateReissue

		case stateReissue:
			if conn, err = LoadConnection(ctx, c.store, orgID); err != nil {
				return nil, err
			}
			return c.send(ctx, orgID, conn.PeopleBaseURL, conn.AccessToken, req)
		}
	}
}

func (c *Caller) send(ctx context.Context, orgID, baseURL, accessToken string, r *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	target := strings.TrimRight(baseURL, "/") + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var body io.Reader
	if r.Form != nil {
		body = strings.NewReader(r.Form.Encode())
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("构造 Zoho 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Zoho-oauthtoken "+accessToken)
	httpReq.Header.Set("Accept", "application/json")
	if r.Form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("Zoho 请求失败",
			zap.String("org_id", orgID),
			zap.String("method", method),
			zap.String("path", r.Path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %v", ErrUpstreamUnavailable, err)
	}

	c.logger.Debug("Zoho 请求完成",
		zap.String("org_id", orgID),
		zap.String("method", method),
		zap.String("path", r.Path),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       bytes.TrimSpace(data),
	}, nil
}
