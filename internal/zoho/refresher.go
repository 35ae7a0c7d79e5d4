package zoho

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"leavedesk/backend/internal/model"
)

// ConnectionStore Zoho 连接的持久化读写（由 repository.ZohoConnectionRepository 实现）
type ConnectionStore interface {
	GetByOrgID(ctx context.Context, orgID string) (*model.ZohoConnection, error)
	UpdateAccessToken(ctx context.Context, orgID, accessToken string, expiresAt time.Time, rotatedRefreshToken string) error
}

// LoadConnection 读取最新持久化的连接，不存在时返回 ErrNotConnected
func LoadConnection(ctx context.Context, store ConnectionStore, orgID string) (*model.ZohoConnection, error) {
	conn, err := store.GetByOrgID(ctx, orgID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	return conn, nil
}

// TokenRefresher 刷新一次 access token 并持久化
type TokenRefresher interface {
	Refresh(ctx context.Context, conn *model.ZohoConnection) (*model.ZohoConnection, error)
}

// Refresher 基于 refresh_token 的刷新器
// 同一 org 的并发刷新合并为一次远端调用；对单个调用方而言仍是恰好一次刷新
type Refresher struct {
	oauth  *OAuthClient
	store  ConnectionStore
	group  singleflight.Group
	logger *zap.Logger
}

// NewRefresher 创建刷新器
func NewRefresher(oauth *OAuthClient, store ConnectionStore, logger *zap.Logger) *Refresher {
	return &Refresher{oauth: oauth, store: store, logger: logger}
}

// Refresh 成功时只持久化 access_token 与 expires_at（远端显式轮换时一并更新 refresh_token）
// 任何失败都返回 ErrRefreshFailed 且不写库
func (r *Refresher) Refresh(ctx context.Context, conn *model.ZohoConnection) (*model.ZohoConnection, error) {
	ch := r.group.DoChan(conn.OrgID, func() (interface{}, error) {
		// 合并后的刷新不随任一调用方取消，耗时由 HTTP 客户端超时约束
		return r.refresh(context.WithoutCancel(ctx), conn)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, ctx.Err())
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		r.logger.Debug("Zoho token 刷新已合并", zap.String("org_id", conn.OrgID))
	}
	updated := *res.Val.(*model.ZohoConnection)
	return &updated, nil
}

func (r *Refresher) refresh(ctx context.Context, conn *model.ZohoConnection) (*model.ZohoConnection, error) {
	grant, err := r.oauth.Refresh(ctx, conn.AccountsBaseURL, conn.RefreshToken)
	if err != nil {
		r.logger.Warn("Zoho token 刷新失败",
			zap.String("org_id", conn.OrgID),
			zap.String("accounts_base_url", conn.AccountsBaseURL),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	rotated := ""
	if grant.RefreshToken != "" && grant.RefreshToken != conn.RefreshToken {
		rotated = grant.RefreshToken
	}

	if err := r.store.UpdateAccessToken(ctx, conn.OrgID, grant.AccessToken, grant.ExpiresAt, rotated); err != nil {
		r.logger.Error("持久化 Zoho token 失败", zap.String("org_id", conn.OrgID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	updated := *conn
	updated.AccessToken = grant.AccessToken
	updated.ExpiresAt = grant.ExpiresAt
	if rotated != "" {
		updated.RefreshToken = rotated
	}

	r.logger.Info("Zoho token 已刷新",
		zap.String("org_id", conn.OrgID),
		zap.Time("expires_at", grant.ExpiresAt),
		zap.Bool("refresh_token_rotated", rotated != ""),
	)
	return &updated, nil
}
