package zoho

import (
	"strings"

	"leavedesk/backend/internal/model"
)

// IdentityKind 远端员工标识的类型
type IdentityKind string

const (
	IdentityEmployeeID IdentityKind = "zoho_emp_id"
	IdentityErecno     IdentityKind = "erecno"
	IdentityEmail      IdentityKind = "email"
)

// Identity 本地用户在 Zoho 侧的标识（三选一）
type Identity struct {
	Kind  IdentityKind `json:"kind"`
	Value string       `json:"value"`
}

// IdentityFromMapping 按 员工 ID > erecno > 邮箱 的优先级选取标识
func IdentityFromMapping(m *model.ZohoEmployeeMap) Identity {
	if m.ZohoEmpID != nil && *m.ZohoEmpID != "" {
		return Identity{Kind: IdentityEmployeeID, Value: *m.ZohoEmpID}
	}
	if m.Erecno != nil && *m.Erecno != "" {
		return Identity{Kind: IdentityErecno, Value: *m.Erecno}
	}
	return Identity{Kind: IdentityEmail, Value: m.Email}
}

// 各接口对同一标识使用不同的参数名
var (
	attendanceKeys = map[IdentityKind]string{
		IdentityEmployeeID: "empId",
		IdentityErecno:     "erecno",
		IdentityEmail:      "emailId",
	}
	leaveRecordKeys = map[IdentityKind]string{
		IdentityEmployeeID: "employeeId",
		IdentityErecno:     "userId",
		IdentityEmail:      "email",
	}
	formInsertKeys = map[IdentityKind]string{
		IdentityEmployeeID: "employeeId",
		IdentityErecno:     "erecno",
		IdentityEmail:      "email",
	}
)

// AttendanceParam 考勤接口查询参数名
func (i Identity) AttendanceParam() string { return attendanceKeys[i.Kind] }

// LeaveRecordsParam 请假记录接口查询参数名
func (i Identity) LeaveRecordsParam() string { return leaveRecordKeys[i.Kind] }

// FormField 表单提交时的字段名
func (i Identity) FormField() string { return formInsertKeys[i.Kind] }

// identityFields 各接口中可用于指定员工的字段名（小写）
var identityFields = map[string]struct{}{
	"employeeid": {},
	"empid":      {},
	"erecno":     {},
	"email":      {},
	"emailid":    {},
	"userid":     {},
}

// IsIdentityField 字段名是否指定了员工身份（不区分大小写）
func IsIdentityField(key string) bool {
	_, ok := identityFields[strings.ToLower(strings.TrimSpace(key))]
	return ok
}
