package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"leavedesk/backend/internal/repository"
	"leavedesk/backend/internal/zoho"
)

// TokenRefreshJob 定时刷新即将过期的 Zoho access token，并清理过期的 OAuth state
type TokenRefreshJob struct {
	cron      *cron.Cron
	spec      string
	ahead     time.Duration
	repo      *repository.Repository
	refresher zoho.TokenRefresher
	logger    *zap.Logger
	now       func() time.Time
	mu        sync.Mutex // 防止上一轮未结束时重入
}

// NewTokenRefreshJob spec 为 cron 表达式（如 "@every 5m"），ahead 为提前刷新窗口
func NewTokenRefreshJob(spec string, ahead time.Duration, repo *repository.Repository, refresher zoho.TokenRefresher, logger *zap.Logger) *TokenRefreshJob {
	return &TokenRefreshJob{
		cron:      cron.New(),
		spec:      spec,
		ahead:     ahead,
		repo:      repo,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// Start 注册任务并启动调度
func (j *TokenRefreshJob) Start() error {
	_, err := j.cron.AddFunc(j.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		j.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("Zoho token 刷新任务已启动", zap.String("schedule", j.spec), zap.Duration("ahead", j.ahead))
	return nil
}

// Stop 等待正在执行的任务结束
func (j *TokenRefreshJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("Zoho token 刷新任务已停止")
}

// RunOnce 执行一轮；返回成功刷新的连接数
func (j *TokenRefreshJob) RunOnce(ctx context.Context) int {
	if !j.mu.TryLock() {
		j.logger.Debug("上一轮 token 刷新尚未结束，跳过")
		return 0
	}
	defer j.mu.Unlock()

	now := j.now()
	conns, err := j.repo.ZohoConnection.ListExpiringBefore(ctx, now.Add(j.ahead))
	if err != nil {
		j.logger.Error("查询待刷新的 Zoho 连接失败", zap.Error(err))
		return 0
	}

	refreshed := 0
	for i := range conns {
		if _, err := j.refresher.Refresh(ctx, &conns[i]); err != nil {
			j.logger.Warn("定时刷新 Zoho token 失败", zap.String("org_id", conns[i].OrgID), zap.Error(err))
			continue
		}
		refreshed++
	}

	if purged, err := j.repo.OAuthState.DeleteExpired(ctx, now); err != nil {
		j.logger.Warn("清理过期 OAuth state 失败", zap.Error(err))
	} else if purged > 0 {
		j.logger.Info("已清理过期 OAuth state", zap.Int64("count", purged))
	}

	if len(conns) > 0 {
		j.logger.Info("Zoho token 定时刷新完成", zap.Int("due", len(conns)), zap.Int("refreshed", refreshed))
	}
	return refreshed
}
