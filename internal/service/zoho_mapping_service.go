package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
	"leavedesk/backend/internal/zoho"
)

var ErrEmployeeNotMapped = errors.New("该用户尚未映射到 Zoho 员工")

// ZohoMappingService 本地用户与 Zoho 员工的映射
type ZohoMappingService interface {
	// Resolve 按 员工 ID > erecno > 邮箱 解析远端标识；无映射返回 ErrEmployeeNotMapped
	Resolve(ctx context.Context, userID string) (zoho.Identity, error)
	List(ctx context.Context, orgID string) ([]dto.MappingResponse, error)
	Upsert(ctx context.Context, userID string, req *dto.UpsertMappingRequest, callerID, orgID string) (*dto.MappingResponse, error)
	Delete(ctx context.Context, userID, callerID, orgID string) error
}

type zohoMappingService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewZohoMappingService 创建 ZohoMappingService 实例
func NewZohoMappingService(repo *repository.Repository, logger *zap.Logger) ZohoMappingService {
	return &zohoMappingService{repo: repo, logger: logger}
}

func (s *zohoMappingService) Resolve(ctx context.Context, userID string) (zoho.Identity, error) {
	m, err := s.repo.ZohoEmployeeMap.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zoho.Identity{}, ErrEmployeeNotMapped
		}
		s.logger.Error("查询员工映射失败", zap.String("user_id", userID), zap.Error(err))
		return zoho.Identity{}, err
	}
	if !m.IsComplete() {
		s.logger.Debug("员工映射仅有邮箱", zap.String("user_id", userID))
	}
	return zoho.IdentityFromMapping(m), nil
}

func (s *zohoMappingService) List(ctx context.Context, orgID string) ([]dto.MappingResponse, error) {
	list, err := s.repo.ZohoEmployeeMap.ListByOrg(ctx, orgID)
	if err != nil {
		s.logger.Error("列出员工映射失败", zap.String("org_id", orgID), zap.Error(err))
		return nil, err
	}
	result := make([]dto.MappingResponse, 0, len(list))
	for i := range list {
		result = append(result, toMappingResponse(&list[i]))
	}
	return result, nil
}

func (s *zohoMappingService) Upsert(ctx context.Context, userID string, req *dto.UpsertMappingRequest, callerID, orgID string) (*dto.MappingResponse, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.OrgID != orgID {
		return nil, ErrUserNotFound
	}

	m := &model.ZohoEmployeeMap{
		OrgID:     orgID,
		AppUserID: userID,
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
	}
	if req.ZohoEmpID != nil {
		m.ZohoEmpID = model.StrPtr(strings.TrimSpace(*req.ZohoEmpID))
	}
	if req.Erecno != nil {
		m.Erecno = model.StrPtr(strings.TrimSpace(*req.Erecno))
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.ZohoEmployeeMap.Upsert(ctx, m); err != nil {
			return err
		}
		after := map[string]interface{}{"email": m.Email, "complete": m.IsComplete()}
		if m.ZohoEmpID != nil {
			after["zoho_emp_id"] = *m.ZohoEmpID
		}
		if m.Erecno != nil {
			after["erecno"] = *m.Erecno
		}
		return tx.AuditLog.Create(ctx, newAuditLog(ctx, callerID, "zoho_mapping_upserted", "zoho_employee_map", userID, nil, after))
	})
	if err != nil {
		s.logger.Error("保存员工映射失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	resp := toMappingResponse(m)
	return &resp, nil
}

func (s *zohoMappingService) Delete(ctx context.Context, userID, callerID, orgID string) error {
	m, err := s.repo.ZohoEmployeeMap.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmployeeNotMapped
		}
		return err
	}
	if m.OrgID != orgID {
		return ErrEmployeeNotMapped
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.ZohoEmployeeMap.DeleteByUserID(ctx, userID); err != nil {
			return err
		}
		return tx.AuditLog.Create(ctx, newAuditLog(ctx, callerID, "zoho_mapping_deleted", "zoho_employee_map", userID,
			map[string]interface{}{"email": m.Email}, nil))
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmployeeNotMapped
		}
		s.logger.Error("删除员工映射失败", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

func toMappingResponse(m *model.ZohoEmployeeMap) dto.MappingResponse {
	resp := dto.MappingResponse{
		ID:        m.MappingID,
		AppUserID: m.AppUserID,
		ZohoEmpID: m.ZohoEmpID,
		Erecno:    m.Erecno,
		Email:     m.Email,
		Complete:  m.IsComplete(),
	}
	if !m.UpdatedAt.IsZero() {
		resp.UpdatedAt = m.UpdatedAt.Format(time.RFC3339)
	}
	return resp
}
