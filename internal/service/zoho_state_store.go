package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
	"leavedesk/backend/pkg/redis"
)

// ErrStateNotFound nonce 不存在、已过期或已被消费
var ErrStateNotFound = errors.New("oauth state 不存在或已失效")

// PendingAuthorization 发起授权时记录、回调时一次性取回的上下文
type PendingAuthorization struct {
	OrgID       string    `json:"org_id"`
	UserID      string    `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// StateStore 一次性 OAuth state 存储
type StateStore interface {
	Save(ctx context.Context, nonce string, p PendingAuthorization) error
	// Take 读取并删除；不存在或已过期返回 ErrStateNotFound
	Take(ctx context.Context, nonce string) (*PendingAuthorization, error)
}

// ── Redis 实现 ──

type redisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore 基于 GETDEL 的一次性存储，过期由 key TTL 保证
func NewRedisStateStore(client *redis.Client) StateStore {
	return &redisStateStore{client: client}
}

func (s *redisStateStore) Save(ctx context.Context, nonce string, p PendingAuthorization) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.SaveOAuthState(ctx, nonce, payload, time.Until(p.ExpiresAt))
}

func (s *redisStateStore) Take(ctx context.Context, nonce string) (*PendingAuthorization, error) {
	payload, err := s.client.TakeOAuthState(ctx, nonce)
	if err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	var p PendingAuthorization
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, ErrStateNotFound
	}
	if !p.ExpiresAt.After(time.Now()) {
		return nil, ErrStateNotFound
	}
	return &p, nil
}

// ── 数据库实现 ──

type dbStateStore struct {
	repo repository.OAuthStateRepository
	now  func() time.Time
}

// NewDBStateStore 未配置 Redis 时使用 oauth_states 表
func NewDBStateStore(repo repository.OAuthStateRepository) StateStore {
	return &dbStateStore{repo: repo, now: time.Now}
}

func (s *dbStateStore) Save(ctx context.Context, nonce string, p PendingAuthorization) error {
	return s.repo.Create(ctx, &model.OAuthState{
		Nonce:       nonce,
		OrgID:       p.OrgID,
		UserID:      p.UserID,
		RedirectURI: p.RedirectURI,
		ExpiresAt:   p.ExpiresAt,
	})
}

func (s *dbStateStore) Take(ctx context.Context, nonce string) (*PendingAuthorization, error) {
	st, err := s.repo.Take(ctx, nonce)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	if !st.ExpiresAt.After(s.now()) {
		return nil, ErrStateNotFound
	}
	return &PendingAuthorization{
		OrgID:       st.OrgID,
		UserID:      st.UserID,
		RedirectURI: st.RedirectURI,
		ExpiresAt:   st.ExpiresAt,
	}, nil
}
