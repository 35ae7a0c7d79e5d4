package dto

// ── 用户模块 DTO ──

// UserListRequest 用户列表查询参数
type UserListRequest struct {
	PaginationRequest
	Role      string `form:"role"       binding:"omitempty,oneof=employee manager admin"`
	ManagerID string `form:"manager_id" binding:"omitempty,uuid"`
	Keyword   string `form:"keyword"    binding:"omitempty,max=50"`
}

// CreateUserRequest 管理员创建用户请求
type CreateUserRequest struct {
	Email      string  `json:"email"       binding:"required,email"`
	FirstName  string  `json:"first_name"  binding:"required,max=100"`
	LastName   string  `json:"last_name"   binding:"omitempty,max=100"`
	Password   string  `json:"password"    binding:"omitempty,min=8,max=64"` // 为空时生成临时密码
	Role       string  `json:"role"        binding:"required,oneof=employee manager admin"`
	EmployeeID *string `json:"employee_id" binding:"omitempty,max=50"`
	Department *string `json:"department"  binding:"omitempty,max=100"`
	Position   *string `json:"position"    binding:"omitempty,max=100"`
	ManagerID  *string `json:"manager_id"  binding:"omitempty,uuid"`
	HireDate   *string `json:"hire_date"   binding:"omitempty,datetime=2006-01-02"`
}

// CreateUserResponse 创建用户响应
type CreateUserResponse struct {
	User         *UserResponse `json:"user"`
	TempPassword string        `json:"temp_password,omitempty"`
}

// UpdateUserRequest 更新用户信息请求，仅更新非 nil 字段
type UpdateUserRequest struct {
	FirstName  *string `json:"first_name"  binding:"omitempty,min=1,max=100"`
	LastName   *string `json:"last_name"   binding:"omitempty,max=100"`
	Email      *string `json:"email"       binding:"omitempty,email"`
	Role       *string `json:"role"        binding:"omitempty,oneof=employee manager admin"`
	EmployeeID *string `json:"employee_id" binding:"omitempty,max=50"`
	Department *string `json:"department"  binding:"omitempty,max=100"`
	Position   *string `json:"position"    binding:"omitempty,max=100"`
	ManagerID  *string `json:"manager_id"  binding:"omitempty"` // 空字符串表示清除
	IsActive   *bool   `json:"is_active"`
}

// ImportUserResponse 批量导入用户响应
type ImportUserResponse struct {
	Total    int               `json:"total"`
	Success  int               `json:"success"`
	Failed   int               `json:"failed"`
	Errors   []ImportUserError `json:"errors,omitempty"`
	Accounts []ImportedAccount `json:"accounts,omitempty"`
}

// ImportedAccount 导入成功的账号及其临时密码（仅返回一次）
type ImportedAccount struct {
	Row          int    `json:"row"`
	Email        string `json:"email"`
	TempPassword string `json:"temp_password"`
}

// ImportUserError 导入错误详情
type ImportUserError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}
