package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
	pkgerrors "leavedesk/backend/pkg/errors"
)

// ── 请假模块业务错误 ──

var (
	ErrLeaveAccessDenied  = errors.New("无权查看该请假申请")
	ErrLeaveNotOwner      = errors.New("只能撤回自己的请假申请")
	ErrLeaveNotCancelable = errors.New("只有待审批的申请可以撤回")
)

// FeasibilityError 提交时可行性校验未通过，携带完整校验结果
type FeasibilityError struct {
	Validation dto.FeasibilityValidation
}

func (e *FeasibilityError) Error() string { return ErrLeaveNotFeasible.Error() }

func (e *FeasibilityError) Unwrap() error { return ErrLeaveNotFeasible }

// LeaveService 请假申请业务接口
type LeaveService interface {
	Submit(ctx context.Context, userID string, req *dto.SubmitLeaveRequest) (*dto.SubmitLeaveResponse, error)
	List(ctx context.Context, req *dto.LeaveListRequest, callerID, callerRole string) ([]dto.LeaveRequestResponse, int64, error)
	GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.LeaveRequestDetailResponse, error)
	Cancel(ctx context.Context, id, callerID string) (*dto.LeaveRequestResponse, error)
	MyBalances(ctx context.Context, userID string) ([]dto.LeaveBalanceResponse, error)
}

type leaveService struct {
	repo        *repository.Repository
	feasibility FeasibilityService
	dispatcher  NotificationDispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// NewLeaveService 创建 LeaveService 实例
func NewLeaveService(repo *repository.Repository, feasibility FeasibilityService, dispatcher NotificationDispatcher, logger *zap.Logger) LeaveService {
	return &leaveService{repo: repo, feasibility: feasibility, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// ────────────────────── Submit ──────────────────────

func (s *leaveService) Submit(ctx context.Context, userID string, req *dto.SubmitLeaveRequest) (*dto.SubmitLeaveResponse, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return nil, err
	}

	result, err := s.feasibility.Evaluate(ctx, userID, req.LeaveType, start, end)
	if err != nil {
		return nil, err
	}
	if !result.Validation.IsValid {
		return nil, &FeasibilityError{Validation: result.Validation}
	}

	leave := &model.LeaveRequest{
		UserID:      userID,
		LeaveType:   req.LeaveType,
		StartDate:   start,
		EndDate:     end,
		TotalDays:   result.WorkingDays,
		BalanceYear: result.BalanceYear,
		Status:      model.LeaveStatusPending,
		Reason:      model.StrPtr(req.Reason),
		Version:     1,
		BaseModel:   model.BaseModel{CreatedBy: &userID},
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.LeaveRequest.Create(ctx, leave); err != nil {
			return err
		}
		entry := newAuditLog(ctx, userID, "leave_request_created", "leave_requests", leave.LeaveRequestID, nil,
			map[string]interface{}{
				"leave_type": leave.LeaveType,
				"start_date": req.StartDate,
				"end_date":   req.EndDate,
				"total_days": leave.TotalDays,
				"status":     leave.Status,
			})
		return tx.AuditLog.Create(ctx, entry)
	})
	if err != nil {
		s.logger.Error("创建请假申请失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, NotificationEvent{
		Type:           model.NotificationSubmitted,
		LeaveRequestID: leave.LeaveRequestID,
		ActorID:        userID,
	})

	return &dto.SubmitLeaveResponse{
		LeaveRequest: toLeaveRequestResponse(leave),
		Warnings:     result.Validation.Warnings,
	}, nil
}

// ────────────────────── List ──────────────────────

// List employee 仅本人；manager 本人或直属下属；admin 全部
func (s *leaveService) List(ctx context.Context, req *dto.LeaveListRequest, callerID, callerRole string) ([]dto.LeaveRequestResponse, int64, error) {
	filter := repository.LeaveRequestFilter{
		UserID:    req.UserID,
		Status:    req.Status,
		LeaveType: req.LeaveType,
	}
	if req.From != "" {
		from, err := parseDate(req.From)
		if err != nil {
			return nil, 0, err
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := parseDate(req.To)
		if err != nil {
			return nil, 0, err
		}
		filter.To = &to
	}

	switch callerRole {
	case model.RoleAdmin:
	case model.RoleManager:
		if filter.UserID != callerID {
			filter.ManagerID = callerID
		}
	default:
		filter.UserID = callerID
	}

	items, total, err := s.repo.LeaveRequest.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出请假申请失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.LeaveRequestResponse, 0, len(items))
	for i := range items {
		result = append(result, *toLeaveRequestResponse(&items[i]))
	}
	return result, total, nil
}

// ────────────────────── GetByID ──────────────────────

func (s *leaveService) GetByID(ctx context.Context, id, callerID, callerRole string) (*dto.LeaveRequestDetailResponse, error) {
	req, err := s.repo.LeaveRequest.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeaveRequestNotFound
		}
		s.logger.Error("查询请假申请失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	if callerRole != model.RoleAdmin && req.UserID != callerID {
		if req.User == nil || req.User.ManagerID == nil || *req.User.ManagerID != callerID {
			return nil, ErrLeaveAccessDenied
		}
	}

	approvals, err := s.repo.LeaveApproval.ListByRequest(ctx, id)
	if err != nil {
		s.logger.Error("查询审批记录失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	detail := &dto.LeaveRequestDetailResponse{
		LeaveRequestResponse: *toLeaveRequestResponse(req),
		Approvals:            make([]dto.ApprovalRecordResponse, 0, len(approvals)),
	}
	for _, a := range approvals {
		detail.Approvals = append(detail.Approvals, dto.ApprovalRecordResponse{
			ID:         a.ApprovalID,
			ApproverID: a.ApproverID,
			Status:     a.Status,
			Comments:   a.Comments,
			ApprovedAt: a.ApprovedAt.Format(time.RFC3339),
		})
	}
	return detail, nil
}

// ────────────────────── Cancel ──────────────────────

func (s *leaveService) Cancel(ctx context.Context, id, callerID string) (*dto.LeaveRequestResponse, error) {
	req, err := s.repo.LeaveRequest.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeaveRequestNotFound
		}
		s.logger.Error("查询请假申请失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if req.UserID != callerID {
		return nil, ErrLeaveNotOwner
	}
	if req.Status != model.LeaveStatusPending {
		return nil, ErrLeaveNotCancelable
	}

	req.Status = model.LeaveStatusCancelled
	req.UpdatedBy = &callerID
	req.UpdatedAt = s.now()

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.LeaveRequest.UpdateStatus(ctx, req, model.LeaveStatusPending); err != nil {
			return err
		}
		entry := newAuditLog(ctx, callerID, "leave_request_cancelled", "leave_requests", req.LeaveRequestID,
			map[string]interface{}{"status": model.LeaveStatusPending},
			map[string]interface{}{"status": model.LeaveStatusCancelled})
		return tx.AuditLog.Create(ctx, entry)
	})
	if err != nil {
		if pkgerrors.IsOptimisticLock(err) {
			return nil, ErrLeaveNotCancelable
		}
		s.logger.Error("撤回请假申请失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	s.dispatcher.Dispatch(ctx, NotificationEvent{
		Type:           model.NotificationCancelled,
		LeaveRequestID: req.LeaveRequestID,
		ActorID:        callerID,
	})

	return toLeaveRequestResponse(req), nil
}

// ────────────────────── MyBalances ──────────────────────

func (s *leaveService) MyBalances(ctx context.Context, userID string) ([]dto.LeaveBalanceResponse, error) {
	balances, err := s.repo.LeaveBalance.ListByUser(ctx, userID, s.now().Year())
	if err != nil {
		s.logger.Error("查询假期余额失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.LeaveBalanceResponse, 0, len(balances))
	for _, b := range balances {
		result = append(result, dto.LeaveBalanceResponse{
			LeaveType:     b.LeaveType,
			Year:          b.Year,
			TotalDays:     b.TotalDays,
			UsedDays:      b.UsedDays,
			AvailableDays: b.AvailableDays,
		})
	}
	return result, nil
}

// ── 内部辅助方法 ──

func toLeaveRequestResponse(req *model.LeaveRequest) *dto.LeaveRequestResponse {
	resp := &dto.LeaveRequestResponse{
		ID:        req.LeaveRequestID,
		UserID:    req.UserID,
		LeaveType: req.LeaveType,
		StartDate: req.StartDate.Format(DateLayout),
		EndDate:   req.EndDate.Format(DateLayout),
		TotalDays: req.TotalDays,
		Status:    req.Status,
		Reason:    req.Reason,
		Comments:  req.Comments,
		CreatedAt: req.CreatedAt.Format(time.RFC3339),
		UpdatedAt: req.UpdatedAt.Format(time.RFC3339),
	}
	if req.User != nil {
		resp.User = toUserBrief(req.User)
	}
	return resp
}

func toUserBrief(u *model.User) *dto.UserBrief {
	return &dto.UserBrief{ID: u.UserID, FullName: u.FullName(), Email: u.Email}
}
