package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
	"leavedesk/backend/internal/zoho"
)

var (
	ErrZohoSyncForbidden = errors.New("无权查看或代为提交该员工的 Zoho 数据")
	ErrZohoIdentityField = errors.New("extra 中不允许指定员工标识字段")
)

// PeopleAPI Zoho People 数据接口（由 zoho.PeopleClient 实现）
type PeopleAPI interface {
	GetAttendance(ctx context.Context, orgID string, id zoho.Identity, date time.Time) (*zoho.ListResult[zoho.AttendanceEntry], error)
	GetHolidays(ctx context.Context, orgID string, q zoho.HolidayQuery) (*zoho.ListResult[zoho.Holiday], error)
	GetLeaveRecords(ctx context.Context, orgID string, id *zoho.Identity, from, to time.Time) (*zoho.ListResult[zoho.LeaveRecord], error)
	InsertLeaveRecord(ctx context.Context, orgID string, id zoho.Identity, formLinkName string, fields map[string]interface{}) (*zoho.FormInsertResult, error)
}

// Caller 当前登录用户
type Caller struct {
	UserID string
	Role   string
	OrgID  string
}

// ZohoSyncService Zoho People 数据透传
//
// 员工只能访问自己的数据；经理可访问直属下属；管理员可访问本组织全部。
type ZohoSyncService interface {
	Attendance(ctx context.Context, caller Caller, q *dto.AttendanceQuery) (*zoho.ListResult[zoho.AttendanceEntry], error)
	Holidays(ctx context.Context, caller Caller, q *dto.HolidayQuery) (*zoho.ListResult[zoho.Holiday], error)
	LeaveRecords(ctx context.Context, caller Caller, q *dto.LeaveRecordsQuery) (*zoho.ListResult[zoho.LeaveRecord], error)
	CreateLeave(ctx context.Context, caller Caller, req *dto.CreateZohoLeaveRequest) (*zoho.FormInsertResult, error)
}

type zohoSyncService struct {
	cfg     *config.Config
	repo    *repository.Repository
	mapping ZohoMappingService
	people  PeopleAPI
	logger  *zap.Logger
}

// NewZohoSyncService 创建 ZohoSyncService 实例
func NewZohoSyncService(cfg *config.Config, repo *repository.Repository, mapping ZohoMappingService, people PeopleAPI, logger *zap.Logger) ZohoSyncService {
	return &zohoSyncService{cfg: cfg, repo: repo, mapping: mapping, people: people, logger: logger}
}

// ────────────────────── Attendance ──────────────────────

func (s *zohoSyncService) Attendance(ctx context.Context, caller Caller, q *dto.AttendanceQuery) (*zoho.ListResult[zoho.AttendanceEntry], error) {
	if !s.cfg.Feature.ZohoIntegrationEnabled {
		return nil, ErrZohoDisabled
	}
	date, err := zoho.ParseDate(q.Date)
	if err != nil {
		return nil, err
	}
	id, err := s.identityFor(ctx, caller, q.UserID)
	if err != nil {
		return nil, err
	}
	return s.people.GetAttendance(ctx, caller.OrgID, id, date)
}

// ────────────────────── Holidays ──────────────────────

func (s *zohoSyncService) Holidays(ctx context.Context, caller Caller, q *dto.HolidayQuery) (*zoho.ListResult[zoho.Holiday], error) {
	if !s.cfg.Feature.ZohoIntegrationEnabled {
		return nil, ErrZohoDisabled
	}
	hq := zoho.HolidayQuery{Location: q.Location, Shift: q.Shift, Employee: q.Employee}
	if q.From != "" {
		from, err := zoho.ParseDate(q.From)
		if err != nil {
			return nil, err
		}
		hq.From = &from
	}
	if q.To != "" {
		to, err := zoho.ParseDate(q.To)
		if err != nil {
			return nil, err
		}
		hq.To = &to
	}
	if hq.From != nil && hq.To != nil && hq.To.Before(*hq.From) {
		return nil, ErrInvalidDateRange
	}
	return s.people.GetHolidays(ctx, caller.OrgID, hq)
}

// ────────────────────── LeaveRecords ──────────────────────

// LeaveRecords 管理员不指定 user_id 时查询全员
func (s *zohoSyncService) LeaveRecords(ctx context.Context, caller Caller, q *dto.LeaveRecordsQuery) (*zoho.ListResult[zoho.LeaveRecord], error) {
	if !s.cfg.Feature.ZohoIntegrationEnabled {
		return nil, ErrZohoDisabled
	}
	from, err := zoho.ParseDate(q.From)
	if err != nil {
		return nil, err
	}
	to, err := zoho.ParseDate(q.To)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}

	var id *zoho.Identity
	if q.UserID != "" || caller.Role != model.RoleAdmin {
		resolved, err := s.identityFor(ctx, caller, q.UserID)
		if err != nil {
			return nil, err
		}
		id = &resolved
	}
	return s.people.GetLeaveRecords(ctx, caller.OrgID, id, from, to)
}

// ────────────────────── CreateLeave ──────────────────────

func (s *zohoSyncService) CreateLeave(ctx context.Context, caller Caller, req *dto.CreateZohoLeaveRequest) (*zoho.FormInsertResult, error) {
	if !s.cfg.Feature.ZohoIntegrationEnabled {
		return nil, ErrZohoDisabled
	}
	from, err := zoho.ParseDate(req.From)
	if err != nil {
		return nil, err
	}
	to, err := zoho.ParseDate(req.To)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}
	for k := range req.Extra {
		if zoho.IsIdentityField(k) {
			return nil, fmt.Errorf("%w: %s", ErrZohoIdentityField, k)
		}
	}

	id, err := s.identityFor(ctx, caller, req.UserID)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]interface{}, len(req.Extra)+4)
	for k, v := range req.Extra {
		fields[k] = v
	}
	fields["Leavetype"] = req.LeaveType
	fields["From"] = zoho.FormatZohoDate(from)
	fields["To"] = zoho.FormatZohoDate(to)
	if req.Reason != "" {
		fields["Reasonforleave"] = req.Reason
	}

	result, err := s.people.InsertLeaveRecord(ctx, caller.OrgID, id, req.FormLinkName, fields)
	if err != nil {
		s.logger.Warn("向 Zoho 提交请假失败", zap.String("org_id", caller.OrgID), zap.Error(err))
		return nil, err
	}

	target := req.UserID
	if target == "" {
		target = caller.UserID
	}
	entry := newAuditLog(ctx, caller.UserID, "zoho_leave_created", "users", target, nil,
		map[string]interface{}{
			"leave_type": req.LeaveType,
			"from":       zoho.FormatISODate(from),
			"to":         zoho.FormatISODate(to),
			"record_id":  result.RecordID,
		})
	if err := s.repo.AuditLog.Create(ctx, entry); err != nil {
		s.logger.Error("写入审计日志失败", zap.Error(err))
	}
	return result, nil
}

// ── 内部辅助方法 ──

// identityFor 校验调用者对目标用户的访问权后解析其 Zoho 标识；targetID 为空表示本人
func (s *zohoSyncService) identityFor(ctx context.Context, caller Caller, targetID string) (zoho.Identity, error) {
	if targetID == "" || targetID == caller.UserID {
		return s.mapping.Resolve(ctx, caller.UserID)
	}

	target, err := s.repo.User.GetByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zoho.Identity{}, ErrUserNotFound
		}
		return zoho.Identity{}, err
	}
	if target.OrgID != caller.OrgID {
		return zoho.Identity{}, ErrUserNotFound
	}

	switch caller.Role {
	case model.RoleAdmin:
	case model.RoleManager:
		if target.ManagerID == nil || *target.ManagerID != caller.UserID {
			return zoho.Identity{}, ErrZohoSyncForbidden
		}
	default:
		return zoho.Identity{}, ErrZohoSyncForbidden
	}
	return s.mapping.Resolve(ctx, targetID)
}
