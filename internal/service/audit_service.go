package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
)

// ── 请求元信息 ──

type requestMetaKey struct{}

// RequestMeta 写入审计日志的客户端信息
type RequestMeta struct {
	IP        string
	UserAgent string
}

// WithRequestMeta 由 Handler 层注入客户端信息
func WithRequestMeta(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, RequestMeta{IP: ip, UserAgent: userAgent})
}

func requestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// newAuditLog 构造审计日志条目
func newAuditLog(ctx context.Context, actorID, action, table, recordID string, oldValues, newValues map[string]interface{}) *model.AuditLog {
	meta := requestMetaFrom(ctx)
	entry := &model.AuditLog{
		UserID:    model.StrPtr(actorID),
		Action:    action,
		Table:     table,
		RecordID:  model.StrPtr(recordID),
		IPAddress: model.StrPtr(meta.IP),
		UserAgent: model.StrPtr(meta.UserAgent),
	}
	if oldValues != nil {
		entry.OldValues = datatypes.JSONMap(oldValues)
	}
	if newValues != nil {
		entry.NewValues = datatypes.JSONMap(newValues)
	}
	return entry
}

// ── 审计日志查询 ──

// AuditService 审计日志查询（仅管理员）
type AuditService interface {
	List(ctx context.Context, req *dto.AuditLogListRequest) ([]dto.AuditLogResponse, int64, error)
}

type auditService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewAuditService 创建 AuditService 实例
func NewAuditService(repo *repository.Repository, logger *zap.Logger) AuditService {
	return &auditService{repo: repo, logger: logger}
}

func (s *auditService) List(ctx context.Context, req *dto.AuditLogListRequest) ([]dto.AuditLogResponse, int64, error) {
	filter := repository.AuditLogFilter{
		UserID:   req.UserID,
		Action:   req.Action,
		Table:    req.Table,
		RecordID: req.RecordID,
	}

	logs, total, err := s.repo.AuditLog.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("查询审计日志失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		result = append(result, dto.AuditLogResponse{
			ID:        l.AuditLogID,
			UserID:    l.UserID,
			Action:    l.Action,
			Table:     l.Table,
			RecordID:  l.RecordID,
			OldValues: l.OldValues,
			NewValues: l.NewValues,
			IPAddress: l.IPAddress,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		})
	}
	return result, total, nil
}
