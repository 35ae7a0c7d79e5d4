package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
)

// ── 可行性评估业务错误 ──

var (
	ErrInvalidDateRange  = errors.New("结束日期不能早于开始日期")
	ErrInvalidLeaveType  = errors.New("假期类型无效")
	ErrBalanceNotFound   = errors.New("未找到本年度该类型的假期余额")
	ErrPolicyNotFound    = errors.New("未找到该假期类型的有效政策")
	ErrLeaveNotFeasible  = errors.New("请假申请未通过校验")
	ErrFeasibilityAccess = errors.New("无权评估该员工的请假")
)

// FeasibilityService 请假可行性评估
type FeasibilityService interface {
	Evaluate(ctx context.Context, userID, leaveType string, start, end time.Time) (*dto.FeasibilityResponse, error)
}

type feasibilityService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewFeasibilityService 创建 FeasibilityService 实例
func NewFeasibilityService(repo *repository.Repository, logger *zap.Logger) FeasibilityService {
	return &feasibilityService{repo: repo, logger: logger, now: time.Now}
}

// ────────────────────── Evaluate ──────────────────────

func (s *feasibilityService) Evaluate(ctx context.Context, userID, leaveType string, start, end time.Time) (*dto.FeasibilityResponse, error) {
	if !model.ValidLeaveType(leaveType) {
		return nil, ErrInvalidLeaveType
	}
	start, end = dateOnly(start), dateOnly(end)
	if end.Before(start) {
		return nil, ErrInvalidDateRange
	}

	today := dateOnly(s.now())
	workingDays := CountWorkingDays(start, end)

	// 1. 本年度余额
	balance, err := s.repo.LeaveBalance.Get(ctx, userID, leaveType, today.Year())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		s.logger.Error("查询假期余额失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	// 2. 生效中的政策
	policy, err := s.repo.LeavePolicy.GetActiveByType(ctx, leaveType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		s.logger.Error("查询假期政策失败", zap.String("leave_type", leaveType), zap.Error(err))
		return nil, err
	}

	// 3. 与待审批 / 已批准申请的重叠
	overlapping, err := s.repo.LeaveRequest.FindOverlapping(ctx, userID, start, end)
	if err != nil {
		s.logger.Error("查询重叠申请失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	result := &dto.FeasibilityResponse{
		WorkingDays:           workingDays,
		BalanceYear:           balance.Year,
		AvailableBalance:      balance.AvailableDays,
		RemainingBalance:      balance.AvailableDays - float64(workingDays),
		RequiresApproval:      policy.RequiresApproval,
		RequiresDocumentation: policy.RequiresDocumentation,
		Validation: dto.FeasibilityValidation{
			Errors:   []string{},
			Warnings: []string{},
		},
	}
	v := &result.Validation

	if float64(workingDays) > balance.AvailableDays {
		v.Errors = append(v.Errors, fmt.Sprintf("余额不足：需要 %d 天，可用 %.1f 天", workingDays, balance.AvailableDays))
	}
	if policy.MaxConsecutiveDays != nil && workingDays > *policy.MaxConsecutiveDays {
		v.Errors = append(v.Errors, fmt.Sprintf("超过连续请假上限 %d 天", *policy.MaxConsecutiveDays))
	}
	if len(overlapping) > 0 {
		v.Errors = append(v.Errors, fmt.Sprintf("与已有的 %d 条待审批或已批准申请时间重叠", len(overlapping)))
	}

	if start.Before(today) && leaveType != model.LeaveTypeSick {
		v.Warnings = append(v.Warnings, "开始日期早于今天")
	}
	if workingDays == 0 {
		v.Warnings = append(v.Warnings, "所选日期均为周末")
	}

	v.IsValid = len(v.Errors) == 0
	return result, nil
}
