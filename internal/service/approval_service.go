package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/config"
	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
	pkgerrors "leavedesk/backend/pkg/errors"
)

// ── 审批模块业务错误 ──

var (
	ErrApproverNotFound     = errors.New("审批人不存在")
	ErrLeaveRequestNotFound = errors.New("请假申请不存在")
	ErrLeaveNotPending      = errors.New("请假申请已处理，不能重复审批")
	ErrApprovalForbidden    = errors.New("仅申请人的直属经理或管理员可以审批")
	ErrInvalidDecision      = errors.New("审批结果只能是 approved 或 rejected")
)

// ApprovalService 请假审批
//
// 状态机：pending → approved | rejected（终态）。
// 状态更新、审批记录、审计日志与余额扣减在同一事务内完成；
// 通知在事务提交后投递，失败只记录日志。
type ApprovalService interface {
	Decide(ctx context.Context, leaveRequestID, approverID, decision, comments string) (*dto.LeaveRequestResponse, error)
}

type approvalService struct {
	cfg        *config.Config
	repo       *repository.Repository
	dispatcher NotificationDispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewApprovalService 创建 ApprovalService 实例
func NewApprovalService(cfg *config.Config, repo *repository.Repository, dispatcher NotificationDispatcher, logger *zap.Logger) ApprovalService {
	return &approvalService{cfg: cfg, repo: repo, dispatcher: dispatcher, logger: logger, now: time.Now}
}

// ────────────────────── Decide ──────────────────────

func (s *approvalService) Decide(ctx context.Context, leaveRequestID, approverID, decision, comments string) (*dto.LeaveRequestResponse, error) {
	if decision != model.LeaveStatusApproved && decision != model.LeaveStatusRejected {
		return nil, ErrInvalidDecision
	}

	// 1. 审批人
	approver, err := s.repo.User.GetByID(ctx, approverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrApproverNotFound
		}
		s.logger.Error("查询审批人失败", zap.String("approver_id", approverID), zap.Error(err))
		return nil, err
	}

	// 2. 请假申请及申请人（含直属经理引用）
	req, err := s.repo.LeaveRequest.GetByID(ctx, leaveRequestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLeaveRequestNotFound
		}
		s.logger.Error("查询请假申请失败", zap.String("id", leaveRequestID), zap.Error(err))
		return nil, err
	}
	requester := req.User
	if requester == nil {
		if requester, err = s.repo.User.GetByID(ctx, req.UserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrLeaveRequestNotFound
			}
			return nil, err
		}
	}

	// 3. 只允许从 pending 迁移
	if req.Status != model.LeaveStatusPending {
		return nil, ErrLeaveNotPending
	}

	// 4. 管理员或直属经理
	isAdmin := approver.Role == model.RoleAdmin && approver.OrgID == requester.OrgID
	if !isAdmin && !approver.IsManagerOf(requester) {
		return nil, ErrApprovalForbidden
	}

	now := s.now()
	req.Status = decision
	req.Comments = model.StrPtr(comments)
	req.UpdatedBy = &approverID
	req.UpdatedAt = now

	// 5-7. 状态、审批记录、审计日志（及余额扣减）同一事务
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.LeaveRequest.UpdateStatus(ctx, req, model.LeaveStatusPending); err != nil {
			return err
		}

		if err := tx.LeaveApproval.Create(ctx, &model.LeaveApproval{
			LeaveRequestID: req.LeaveRequestID,
			ApproverID:     approverID,
			Status:         decision,
			Comments:       model.StrPtr(comments),
			ApprovedAt:     now,
		}); err != nil {
			return err
		}

		entry := newAuditLog(ctx, approverID, "leave_request_"+decision, "leave_requests", req.LeaveRequestID,
			map[string]interface{}{"status": model.LeaveStatusPending},
			map[string]interface{}{"status": decision, "comments": comments, "approver_id": approverID})
		if err := tx.AuditLog.Create(ctx, entry); err != nil {
			return err
		}

		if decision == model.LeaveStatusApproved && s.cfg.Feature.DeductBalanceOnApprove {
			return s.deductBalance(ctx, tx, req)
		}
		return nil
	})
	if err != nil {
		if pkgerrors.IsOptimisticLock(err) {
			return nil, ErrLeaveNotPending
		}
		s.logger.Error("保存审批结果失败", zap.String("id", leaveRequestID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("请假申请已审批",
		zap.String("id", req.LeaveRequestID),
		zap.String("decision", decision),
		zap.String("approver_id", approverID),
	)

	// 8. 尽力而为的通知
	s.dispatcher.Dispatch(ctx, NotificationEvent{
		Type:           decision,
		LeaveRequestID: req.LeaveRequestID,
		ActorID:        approverID,
	})

	req.User = requester
	return toLeaveRequestResponse(req), nil
}

// deductBalance 从提交时校验的余额年度扣减；无余额行时只记录日志
func (s *approvalService) deductBalance(ctx context.Context, tx *repository.Repository, req *model.LeaveRequest) error {
	balance, err := tx.LeaveBalance.Get(ctx, req.UserID, req.LeaveType, req.BalanceYear)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("未找到余额行，跳过扣减",
				zap.String("user_id", req.UserID), zap.String("leave_type", req.LeaveType), zap.Int("year", req.BalanceYear))
			return nil
		}
		return err
	}
	return tx.LeaveBalance.Deduct(ctx, balance.LeaveBalanceID, float64(req.TotalDays))
}
