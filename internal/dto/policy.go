package dto

// ── 假期政策 DTO ──

// CreatePolicyRequest 创建假期政策
type CreatePolicyRequest struct {
	Name                  string `json:"name"                   binding:"required,max=100"`
	LeaveType             string `json:"leave_type"             binding:"required,oneof=annual sick maternity paternity emergency unpaid"`
	DaysPerYear           int    `json:"days_per_year"          binding:"min=0,max=366"`
	MaxConsecutiveDays    *int   `json:"max_consecutive_days"   binding:"omitempty,min=1,max=366"`
	RequiresApproval      *bool  `json:"requires_approval"`
	RequiresDocumentation bool   `json:"requires_documentation"`
	CarryoverDays         int    `json:"carryover_days"         binding:"min=0,max=366"`
	IsActive              *bool  `json:"is_active"`
}

// UpdatePolicyRequest 更新假期政策，仅更新非 nil 字段
type UpdatePolicyRequest struct {
	Name                  *string `json:"name"                   binding:"omitempty,max=100"`
	DaysPerYear           *int    `json:"days_per_year"          binding:"omitempty,min=0,max=366"`
	MaxConsecutiveDays    *int    `json:"max_consecutive_days"   binding:"omitempty,min=0,max=366"` // 0 表示取消上限
	RequiresApproval      *bool   `json:"requires_approval"`
	RequiresDocumentation *bool   `json:"requires_documentation"`
	CarryoverDays         *int    `json:"carryover_days"         binding:"omitempty,min=0,max=366"`
	IsActive              *bool   `json:"is_active"`
}

// PolicyListRequest 政策列表参数
type PolicyListRequest struct {
	ActiveOnly bool `form:"active_only"`
}
