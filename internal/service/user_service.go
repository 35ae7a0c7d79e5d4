package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"leavedesk/backend/internal/dto"
	"leavedesk/backend/internal/model"
	"leavedesk/backend/internal/repository"
)

// ── 用户模块业务错误 ──

var (
	ErrEmailExists             = errors.New("邮箱已被使用")
	ErrManagerNotFound         = errors.New("直属经理不存在")
	ErrManagerOnlyForEmployees = errors.New("只有 employee 角色可以设置直属经理")
	ErrManagerSelf             = errors.New("不能将自己设为直属经理")
	ErrNoPermission            = errors.New("无权操作")
	ErrUserSelfDeactivate      = errors.New("不能停用自己的账号")
)

// UserService 用户业务接口
type UserService interface {
	CreateUser(ctx context.Context, req *dto.CreateUserRequest, callerID, orgID string) (*dto.CreateUserResponse, error)
	GetByID(ctx context.Context, id, callerID, callerRole, orgID string) (*dto.UserResponse, error)
	List(ctx context.Context, req *dto.UserListRequest, orgID string) ([]dto.UserResponse, int64, error)
	// Team manager 返回直属下属；admin 可按 manager_id 查看任意团队
	Team(ctx context.Context, req *dto.UserListRequest, callerID, callerRole, orgID string) ([]dto.UserResponse, int64, error)
	Update(ctx context.Context, id string, req *dto.UpdateUserRequest, callerID, callerRole, orgID string) (*dto.UserResponse, error)
	ParseImportFile(reader io.Reader) ([]ImportUserRow, error)
	ImportUsers(ctx context.Context, rows []ImportUserRow, callerID, orgID string) (*dto.ImportUserResponse, error)
}

// ImportUserRow Excel 导入解析后的单行数据
type ImportUserRow struct {
	Row          int
	Email        string
	FirstName    string
	LastName     string
	Role         string
	Department   string
	EmployeeID   string
	ManagerEmail string
}

type userService struct {
	repo   *repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService 创建 UserService 实例
func NewUserService(repo *repository.Repository, logger *zap.Logger) UserService {
	return &userService{repo: repo, logger: logger, now: time.Now}
}

// ────────────────────── CreateUser ──────────────────────

func (s *userService) CreateUser(ctx context.Context, req *dto.CreateUserRequest, callerID, orgID string) (*dto.CreateUserResponse, error) {
	if _, err := s.repo.User.GetByEmail(ctx, req.Email); err == nil {
		return nil, ErrEmailExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var managerID *string
	if req.ManagerID != nil && *req.ManagerID != "" {
		if req.Role != model.RoleEmployee {
			return nil, ErrManagerOnlyForEmployees
		}
		if err := s.checkManager(ctx, *req.ManagerID, orgID); err != nil {
			return nil, err
		}
		managerID = req.ManagerID
	}

	var hireDate *time.Time
	if req.HireDate != nil && *req.HireDate != "" {
		d, err := parseDate(*req.HireDate)
		if err != nil {
			return nil, err
		}
		hireDate = &d
	}

	// 未指定密码时生成临时密码，首次登录须修改
	password, tempPassword := req.Password, ""
	if password == "" {
		generated, err := generateTempPassword(10)
		if err != nil {
			s.logger.Error("生成临时密码失败", zap.Error(err))
			return nil, err
		}
		password, tempPassword = generated, generated
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("密码哈希失败", zap.Error(err))
		return nil, err
	}

	user := &model.User{
		OrgID:              orgID,
		Email:              strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash:       string(hash),
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		EmployeeID:         req.EmployeeID,
		Department:         req.Department,
		Position:           req.Position,
		ManagerID:          managerID,
		Role:               req.Role,
		IsActive:           true,
		HireDate:           hireDate,
		MustChangePassword: tempPassword != "",
		SoftDeleteModel:    model.SoftDeleteModel{BaseModel: model.BaseModel{CreatedBy: &callerID}},
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.User.Create(ctx, user); err != nil {
			return err
		}
		entry := newAuditLog(ctx, callerID, "user_created", "users", user.UserID, nil, userSnapshot(user))
		return tx.AuditLog.Create(ctx, entry)
	})
	if err != nil {
		s.logger.Error("创建用户失败", zap.Error(err))
		return nil, err
	}

	s.createDefaultBalances(ctx, user.UserID)

	created, err := s.repo.User.GetByID(ctx, user.UserID)
	if err != nil {
		return nil, err
	}

	return &dto.CreateUserResponse{
		User:         toUserResponse(created),
		TempPassword: tempPassword,
	}, nil
}

// ────────────────────── GetByID ──────────────────────

func (s *userService) GetByID(ctx context.Context, id, callerID, callerRole, orgID string) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if user.OrgID != orgID {
		return nil, ErrUserNotFound
	}

	// admin 可查看全部；manager 可查看直属下属；其余仅本人
	if callerRole != model.RoleAdmin && id != callerID {
		if user.ManagerID == nil || *user.ManagerID != callerID {
			return nil, ErrNoPermission
		}
	}

	return toUserResponse(user), nil
}

// ────────────────────── List / Team ──────────────────────

func (s *userService) List(ctx context.Context, req *dto.UserListRequest, orgID string) ([]dto.UserResponse, int64, error) {
	return s.list(ctx, repository.UserFilter{
		OrgID:     orgID,
		Role:      req.Role,
		ManagerID: req.ManagerID,
		Keyword:   req.Keyword,
	}, req)
}

func (s *userService) Team(ctx context.Context, req *dto.UserListRequest, callerID, callerRole, orgID string) ([]dto.UserResponse, int64, error) {
	filter := repository.UserFilter{OrgID: orgID, Role: req.Role, Keyword: req.Keyword, ManagerID: callerID}
	if callerRole == model.RoleAdmin && req.ManagerID != "" {
		filter.ManagerID = req.ManagerID
	}
	return s.list(ctx, filter, req)
}

func (s *userService) list(ctx context.Context, filter repository.UserFilter, req *dto.UserListRequest) ([]dto.UserResponse, int64, error) {
	users, total, err := s.repo.User.List(ctx, filter, req.GetOffset(), req.GetPageSize())
	if err != nil {
		s.logger.Error("列出用户失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		result = append(result, *toUserResponse(&users[i]))
	}
	return result, total, nil
}

// ────────────────────── Update ──────────────────────

func (s *userService) Update(ctx context.Context, id string, req *dto.UpdateUserRequest, callerID, callerRole, orgID string) (*dto.UserResponse, error) {
	user, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	if user.OrgID != orgID {
		return nil, ErrUserNotFound
	}

	// 非管理员只能修改自己的姓名
	if callerRole != model.RoleAdmin {
		if callerID != id {
			return nil, ErrNoPermission
		}
		if req.Email != nil || req.Role != nil || req.ManagerID != nil || req.IsActive != nil ||
			req.EmployeeID != nil || req.Department != nil || req.Position != nil {
			return nil, ErrNoPermission
		}
	}
	before := userSnapshot(user)

	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Email != nil {
		existing, err := s.repo.User.GetByEmail(ctx, *req.Email)
		if err == nil && existing.UserID != id {
			return nil, ErrEmailExists
		} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.EmployeeID != nil {
		user.EmployeeID = model.StrPtr(*req.EmployeeID)
	}
	if req.Department != nil {
		user.Department = model.StrPtr(*req.Department)
	}
	if req.Position != nil {
		user.Position = model.StrPtr(*req.Position)
	}
	if req.Role != nil {
		user.Role = *req.Role
	}
	if req.IsActive != nil {
		if !*req.IsActive && id == callerID {
			return nil, ErrUserSelfDeactivate
		}
		user.IsActive = *req.IsActive
	}
	if req.ManagerID != nil {
		if *req.ManagerID == "" {
			user.ManagerID = nil
		} else {
			if *req.ManagerID == id {
				return nil, ErrManagerSelf
			}
			if err := s.checkManager(ctx, *req.ManagerID, orgID); err != nil {
				return nil, err
			}
			user.ManagerID = req.ManagerID
		}
	}
	if user.ManagerID != nil && user.Role != model.RoleEmployee {
		return nil, ErrManagerOnlyForEmployees
	}

	user.UpdatedBy = &callerID
	user.Manager = nil

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.User.Update(ctx, user); err != nil {
			return err
		}
		entry := newAuditLog(ctx, callerID, "user_updated", "users", user.UserID, before, userSnapshot(user))
		return tx.AuditLog.Create(ctx, entry)
	})
	if err != nil {
		s.logger.Error("更新用户失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	updated, err := s.repo.User.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toUserResponse(updated), nil
}

// ────────────────────── ParseImportFile ──────────────────────

const maxImportRows = 1000

var (
	ErrImportNoData      = errors.New("Excel文件无数据行（第一行为表头）")
	ErrImportTooManyRows = fmt.Errorf("数据行数超过上限 %d 行", maxImportRows)
	ErrImportBadHeader   = errors.New("Excel表头缺少必要列（邮箱/名）")
)

// importColumns 表头别名 → 字段
var importColumns = map[string]string{
	"email":         "email",
	"邮箱":            "email",
	"first_name":    "first_name",
	"名":             "first_name",
	"last_name":     "last_name",
	"姓":             "last_name",
	"role":          "role",
	"角色":            "role",
	"department":    "department",
	"部门":            "department",
	"employee_id":   "employee_id",
	"工号":            "employee_id",
	"manager_email": "manager_email",
	"经理邮箱":          "manager_email",
}

// ParseImportFile 解析导入 Excel 文件，返回解析后的行数据
func (s *userService) ParseImportFile(reader io.Reader) ([]ImportUserRow, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("无法解析Excel文件: %w", err)
	}
	defer f.Close()

	excelRows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(excelRows) < 2 {
		return nil, ErrImportNoData
	}

	colIndex := parseHeaderIndex(excelRows[0])
	if colIndex["email"] < 0 || colIndex["first_name"] < 0 {
		return nil, ErrImportBadHeader
	}

	value := func(row []string, key string) string {
		idx := colIndex[key]
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var rows []ImportUserRow
	for i := 1; i < len(excelRows); i++ {
		row := excelRows[i]
		item := ImportUserRow{
			Row:          i + 1,
			Email:        strings.ToLower(value(row, "email")),
			FirstName:    value(row, "first_name"),
			LastName:     value(row, "last_name"),
			Role:         strings.ToLower(value(row, "role")),
			Department:   value(row, "department"),
			EmployeeID:   value(row, "employee_id"),
			ManagerEmail: strings.ToLower(value(row, "manager_email")),
		}
		if strings.Join(row, "") == "" || (item.Email == "" && item.FirstName == "") {
			continue
		}
		rows = append(rows, item)
	}

	if len(rows) == 0 {
		return nil, ErrImportNoData
	}
	if len(rows) > maxImportRows {
		return nil, ErrImportTooManyRows
	}
	return rows, nil
}

// parseHeaderIndex 解析 Excel 表头，返回字段 -> 列索引映射（缺失为 -1）
func parseHeaderIndex(header []string) map[string]int {
	idx := make(map[string]int, len(importColumns))
	for _, field := range importColumns {
		idx[field] = -1
	}
	for i, h := range header {
		if field, ok := importColumns[strings.ToLower(strings.TrimSpace(h))]; ok && idx[field] < 0 {
			idx[field] = i
		}
	}
	return idx
}

// ────────────────────── ImportUsers ──────────────────────

// ImportUsers 两阶段导入：先逐行校验，再在单个事务中写入全部合法行
func (s *userService) ImportUsers(ctx context.Context, rows []ImportUserRow, callerID, orgID string) (*dto.ImportUserResponse, error) {
	resp := &dto.ImportUserResponse{Total: len(rows)}

	type validatedRow struct {
		row       ImportUserRow
		managerID *string
		hash      []byte
		password  string
	}
	var validRows []validatedRow
	seen := make(map[string]bool, len(rows))

	fail := func(row int, reason string) {
		resp.Failed++
		resp.Errors = append(resp.Errors, dto.ImportUserError{Row: row, Reason: reason})
	}

	// 第一阶段：数据预校验
	for _, row := range rows {
		if row.Email == "" || row.FirstName == "" {
			fail(row.Row, "必填字段为空")
			continue
		}
		if row.Role == "" {
			row.Role = model.RoleEmployee
		}
		if !model.ValidRole(row.Role) {
			fail(row.Row, fmt.Sprintf("角色无效: %s", row.Role))
			continue
		}
		if seen[row.Email] {
			fail(row.Row, fmt.Sprintf("文件内邮箱重复: %s", row.Email))
			continue
		}
		if _, err := s.repo.User.GetByEmail(ctx, row.Email); err == nil {
			fail(row.Row, fmt.Sprintf("邮箱已存在: %s", row.Email))
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		var managerID *string
		if row.ManagerEmail != "" {
			if row.Role != model.RoleEmployee {
				fail(row.Row, ErrManagerOnlyForEmployees.Error())
				continue
			}
			manager, err := s.repo.User.GetByEmail(ctx, row.ManagerEmail)
			if err != nil || manager.OrgID != orgID || manager.Role == model.RoleEmployee {
				fail(row.Row, fmt.Sprintf("直属经理不存在: %s", row.ManagerEmail))
				continue
			}
			managerID = &manager.UserID
		}

		password, err := generateTempPassword(10)
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			fail(row.Row, "密码哈希失败")
			continue
		}

		seen[row.Email] = true
		validRows = append(validRows, validatedRow{row: row, managerID: managerID, hash: hash, password: password})
	}

	if len(validRows) == 0 {
		return resp, nil
	}

	// 第二阶段：单事务写入，任一失败全部回滚
	created := make([]string, 0, len(validRows))
	err := s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		for _, vr := range validRows {
			user := &model.User{
				OrgID:              orgID,
				Email:              vr.row.Email,
				PasswordHash:       string(vr.hash),
				FirstName:          vr.row.FirstName,
				LastName:           vr.row.LastName,
				EmployeeID:         model.StrPtr(vr.row.EmployeeID),
				Department:         model.StrPtr(vr.row.Department),
				ManagerID:          vr.managerID,
				Role:               vr.row.Role,
				IsActive:           true,
				MustChangePassword: true,
				SoftDeleteModel:    model.SoftDeleteModel{BaseModel: model.BaseModel{CreatedBy: &callerID}},
			}
			if err := tx.User.Create(ctx, user); err != nil {
				s.logger.Error("导入用户写入失败，事务回滚", zap.Int("row", vr.row.Row), zap.Error(err))
				return fmt.Errorf("第 %d 行写入数据库失败，已回滚全部导入: %w", vr.row.Row, err)
			}
			created = append(created, user.UserID)
		}
		return tx.AuditLog.Create(ctx, newAuditLog(ctx, callerID, "users_imported", "users", "", nil,
			map[string]interface{}{"count": len(validRows)}))
	})
	if err != nil {
		return nil, err
	}

	for i, vr := range validRows {
		s.createDefaultBalances(ctx, created[i])
		resp.Success++
		resp.Accounts = append(resp.Accounts, dto.ImportedAccount{
			Row:          vr.row.Row,
			Email:        vr.row.Email,
			TempPassword: vr.password,
		})
	}
	return resp, nil
}

// ── 内部辅助方法 ──

// checkManager 经理须存在于同一组织，且角色为 manager 或 admin
func (s *userService) checkManager(ctx context.Context, managerID, orgID string) error {
	manager, err := s.repo.User.GetByID(ctx, managerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrManagerNotFound
		}
		return err
	}
	if manager.OrgID != orgID || manager.Role == model.RoleEmployee || !manager.IsActive {
		return ErrManagerNotFound
	}
	return nil
}

// createDefaultBalances 按启用中的假期政策初始化当年余额；失败只记录日志
func (s *userService) createDefaultBalances(ctx context.Context, userID string) {
	policies, err := s.repo.LeavePolicy.List(ctx, true)
	if err != nil {
		s.logger.Warn("加载假期政策失败，跳过余额初始化", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if len(policies) == 0 {
		return
	}

	year := s.now().Year()
	balances := make([]model.LeaveBalance, 0, len(policies))
	for _, p := range policies {
		days := float64(p.DaysPerYear)
		balances = append(balances, model.LeaveBalance{
			UserID:        userID,
			LeaveType:     p.LeaveType,
			Year:          year,
			TotalDays:     days,
			AvailableDays: days,
		})
	}
	if err := s.repo.LeaveBalance.BatchCreate(ctx, balances); err != nil {
		s.logger.Warn("初始化假期余额失败", zap.String("user_id", userID), zap.Error(err))
	}
}

// toUserResponse 将 model.User 转换为 dto.UserResponse
func toUserResponse(user *model.User) *dto.UserResponse {
	resp := &dto.UserResponse{
		ID:                 user.UserID,
		OrgID:              user.OrgID,
		Email:              user.Email,
		FirstName:          user.FirstName,
		LastName:           user.LastName,
		FullName:           user.FullName(),
		EmployeeID:         user.EmployeeID,
		Department:         user.Department,
		Position:           user.Position,
		Role:               user.Role,
		IsActive:           user.IsActive,
		MustChangePassword: user.MustChangePassword,
	}
	if user.HireDate != nil {
		resp.HireDate = user.HireDate.Format(DateLayout)
	}
	if user.Manager != nil {
		resp.Manager = toUserBrief(user.Manager)
	}
	if !user.CreatedAt.IsZero() {
		resp.CreatedAt = user.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func userSnapshot(u *model.User) map[string]interface{} {
	m := map[string]interface{}{
		"email":      u.Email,
		"first_name": u.FirstName,
		"last_name":  u.LastName,
		"role":       u.Role,
		"is_active":  u.IsActive,
	}
	if u.ManagerID != nil {
		m["manager_id"] = *u.ManagerID
	}
	if u.Department != nil {
		m["department"] = *u.Department
	}
	return m
}

// generateTempPassword 生成指定长度的临时密码（保证包含字母和数字）
func generateTempPassword(length int) (string, error) {
	const letters = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"
	const digits = "23456789"
	const all = letters + digits

	if length < 8 {
		length = 8
	}

	pick := func(set string) (byte, error) {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
		if err != nil {
			return 0, err
		}
		return set[n.Int64()], nil
	}

	result := make([]byte, length)
	var err error
	if result[0], err = pick(letters); err != nil {
		return "", err
	}
	if result[1], err = pick(digits); err != nil {
		return "", err
	}
	for i := 2; i < length; i++ {
		if result[i], err = pick(all); err != nil {
			return "", err
		}
	}

	// Fisher-Yates 洗牌
	for i := length - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		result[i], result[j.Int64()] = result[j.Int64()], result[i]
	}

	return string(result), nil
}
