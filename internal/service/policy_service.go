package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
)

var ErrPolicyIDNotFound = errors.New("假期政策不存在")

// PolicyService 假期政策管理
type PolicyService interface {
	List(ctx context.Context, activeOnly bool) ([]model.LeavePolicy, error)
	Create(ctx context.Context, req *dto.CreatePolicyRequest, callerID string) (*model.LeavePolicy, error)
	Update(ctx context.Context, id string, req *dto.UpdatePolicyRequest, callerID string) (*model.LeavePolicy, error)
}

type policyService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewPolicyService 创建 PolicyService 实例
func NewPolicyService(repo *repository.Repository, logger *zap.Logger) PolicyService {
	return &policyService{repo: repo, logger: logger}
}

func (s *policyService) List(ctx context.Context, activeOnly bool) ([]model.LeavePolicy, error) {
	policies, err := s.repo.LeavePolicy.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("查询假期政策失败", zap.Error(err))
		return nil, err
	}
	return policies, nil
}

func (s *policyService) Create(ctx context.Context, req *dto.CreatePolicyRequest, callerID string) (*model.LeavePolicy, error) {
	policy := &model.LeavePolicy{
		Name:                  req.Name,
		LeaveType:             req.LeaveType,
		DaysPerYear:           req.DaysPerYear,
		MaxConsecutiveDays:    req.MaxConsecutiveDays,
		RequiresApproval:      true,
		RequiresDocumentation: req.RequiresDocumentation,
		CarryoverDays:         req.CarryoverDays,
		IsActive:              true,
		BaseModel:             model.BaseModel{CreatedBy: &callerID},
	}
	if req.RequiresApproval != nil {
		policy.RequiresApproval = *req.RequiresApproval
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}

	if err := s.repo.LeavePolicy.Create(ctx, policy); err != nil {
		s.logger.Error("创建假期政策失败", zap.Error(err))
		return nil, err
	}

	s.audit(ctx, callerID, "leave_policy_created", policy.LeavePolicyID, nil, policySnapshot(policy))
	return policy, nil
}

func (s *policyService) Update(ctx context.Context, id string, req *dto.UpdatePolicyRequest, callerID string) (*model.LeavePolicy, error) {
	policy, err := s.repo.LeavePolicy.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyIDNotFound
		}
		s.logger.Error("查询假期政策失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	before := policySnapshot(policy)

	if req.Name != nil {
		policy.Name = *req.Name
	}
	if req.DaysPerYear != nil {
		policy.DaysPerYear = *req.DaysPerYear
	}
	if req.MaxConsecutiveDays != nil {
		if *req.MaxConsecutiveDays == 0 {
			policy.MaxConsecutiveDays = nil
		} else {
			v := *req.MaxConsecutiveDays
			policy.MaxConsecutiveDays = &v
		}
	}
	if req.RequiresApproval != nil {
		policy.RequiresApproval = *req.RequiresApproval
	}
	if req.RequiresDocumentation != nil {
		policy.RequiresDocumentation = *req.RequiresDocumentation
	}
	if req.CarryoverDays != nil {
		policy.CarryoverDays = *req.CarryoverDays
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	policy.UpdatedBy = &callerID

	if err := s.repo.LeavePolicy.Update(ctx, policy); err != nil {
		s.logger.Error("更新假期政策失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	s.audit(ctx, callerID, "leave_policy_updated", policy.LeavePolicyID, before, policySnapshot(policy))
	return policy, nil
}

func (s *policyService) audit(ctx context.Context, callerID, action, recordID string, before, after map[string]interface{}) {
	if err := s.repo.AuditLog.Create(ctx, newAuditLog(ctx, callerID, action, "leave_policies", recordID, before, after)); err != nil {
		s.logger.Error("写入审计日志失败", zap.String("action", action), zap.Error(err))
	}
}

func policySnapshot(p *model.LeavePolicy) map[string]interface{} {
	m := map[string]interface{}{
		"name":                   p.Name,
		"leave_type":             p.LeaveType,
		"days_per_year":          p.DaysPerYear,
		"requires_approval":      p.RequiresApproval,
		"requires_documentation": p.RequiresDocumentation,
		"carryover_days":         p.CarryoverDays,
		"is_active":              p.IsActive,
	}
	if p.MaxConsecutiveDays != nil {
		m["max_consecutive_days"] = *p.MaxConsecutiveDays
	}
	return m
}
