package zoho

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// Zoho 各地区返回的字段名大小写与命名并不一致，这里按端点建模为显式类型，
// 解码时按候选字段名宽松读取，缺少必填字段的条目计入 Skipped。

var (
	ErrUnexpectedPayload = errors.New("Zoho 响应结构无法识别")
	errMissingField      = errors.New("缺少必填字段")
)

// ── 考勤 ──

// AttendanceStatus 考勤状态
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "Present"
	AttendanceAbsent  AttendanceStatus = "Absent"
	AttendanceHalfDay AttendanceStatus = "Half Day"
	AttendanceHoliday AttendanceStatus = "Holiday"
	AttendanceWeekend AttendanceStatus = "Weekend"
	AttendanceUnknown AttendanceStatus = "Unknown"
)

// AttendanceEntry 考勤记录；Date 必填
type AttendanceEntry struct {
	EmployeeID   string           `json:"employee_id,omitempty"`
	EmployeeName string           `json:"employee_name,omitempty"`
	Date         string           `json:"date"`
	CheckIn      string           `json:"check_in,omitempty"`
	CheckOut     string           `json:"check_out,omitempty"`
	TotalHours   string           `json:"total_hours,omitempty"`
	Status       AttendanceStatus `json:"status"`
}

func (e *AttendanceEntry) UnmarshalJSON(b []byte) error {
	r, err := newRecord(b)
	if err != nil {
		return err
	}
	e.EmployeeID = r.str("employeeId", "empId", "employee_id", "erecno")
	e.EmployeeName = r.str("employeeName", "name", "employee_name")
	e.Date = r.str("date", "attendanceDate", "workDate", "orgdate")
	e.CheckIn = r.str("checkIn", "firstIn", "check_in")
	e.CheckOut = r.str("checkOut", "lastOut", "check_out")
	e.TotalHours = r.str("totalHours", "totalHrs", "hours", "total_hours")
	e.Status = normalizeAttendanceStatus(r.str("status", "attendanceStatus"))
	if e.Date == "" {
		return fmt.Errorf("attendance: %w date", errMissingField)
	}
	return nil
}

func normalizeAttendanceStatus(s string) AttendanceStatus {
	l := strings.ToLower(s)
	switch {
	case strings.Contains(l, "half"):
		return AttendanceHalfDay
	case strings.Contains(l, "absent"):
		return AttendanceAbsent
	case strings.Contains(l, "present"):
		return AttendancePresent
	case strings.Contains(l, "holiday"):
		return AttendanceHoliday
	case strings.Contains(l, "weekend"):
		return AttendanceWeekend
	}
	return AttendanceUnknown
}

// ── 节假日 ──

// HolidayType 节假日类型
type HolidayType string

const (
	HolidayNational HolidayType = "National"
	HolidayRegional HolidayType = "Regional"
	HolidayOptional HolidayType = "Optional"
)

// Holiday 节假日；Name 与 Date 必填
type Holiday struct {
	ID          string      `json:"id,omitempty"`
	Name        string      `json:"name"`
	Date        string      `json:"date"`
	Type        HolidayType `json:"type"`
	Description string      `json:"description,omitempty"`
}

func (h *Holiday) UnmarshalJSON(b []byte) error {
	r, err := newRecord(b)
	if err != nil {
		return err
	}
	h.ID = r.str("id", "holidayId")
	h.Name = r.str("name", "holidayName")
	h.Date = r.str("date", "holidayDate")
	h.Description = r.str("description", "remarks")

	switch t := strings.ToLower(r.str("type", "holidayType")); {
	case r.str("isRestrictedHoliday") == "true" || strings.Contains(t, "optional") || strings.Contains(t, "restricted"):
		h.Type = HolidayOptional
	case strings.Contains(t, "regional"):
		h.Type = HolidayRegional
	default:
		h.Type = HolidayNational
	}

	if h.Name == "" || h.Date == "" {
		return fmt.Errorf("holiday: %w name/date", errMissingField)
	}
	return nil
}

// ── 请假记录 ──

// LeaveRecordStatus Zoho 侧请假状态
type LeaveRecordStatus string

const (
	LeaveRecordApplied   LeaveRecordStatus = "Applied"
	LeaveRecordApproved  LeaveRecordStatus = "Approved"
	LeaveRecordRejected  LeaveRecordStatus = "Rejected"
	LeaveRecordCancelled LeaveRecordStatus = "Cancelled"
)

// LeaveRecord Zoho 请假记录；FromDate 与 ToDate 必填
type LeaveRecord struct {
	RecordID     string            `json:"record_id,omitempty"`
	EmployeeID   string            `json:"employee_id,omitempty"`
	EmployeeName string            `json:"employee_name,omitempty"`
	LeaveType    string            `json:"leave_type,omitempty"`
	FromDate     string            `json:"from_date"`
	ToDate       string            `json:"to_date"`
	Duration     float64           `json:"duration"`
	Status       LeaveRecordStatus `json:"status"`
	Reason       string            `json:"reason,omitempty"`
	AppliedDate  string            `json:"applied_date,omitempty"`
	ApprovedBy   string            `json:"approved_by,omitempty"`
	RejectedBy   string            `json:"rejected_by,omitempty"`
}

func (l *LeaveRecord) UnmarshalJSON(b []byte) error {
	r, err := newRecord(b)
	if err != nil {
		return err
	}
	l.RecordID = r.str("recordId", "id", "zoho.id", "leaveId")
	l.EmployeeID = r.str("employeeId", "employee_id", "empId")
	l.EmployeeName = r.str("employeeName", "employee", "name")
	l.LeaveType = r.str("leaveType", "leavetype", "leave_type", "type")
	l.FromDate = r.str("fromDate", "from", "startDate")
	l.ToDate = r.str("toDate", "to", "endDate")
	l.Reason = r.str("reason")
	l.AppliedDate = r.str("appliedDate", "dateOfRequest")
	l.ApprovedBy = r.str("approvedBy")
	l.RejectedBy = r.str("rejectedBy")
	if d := r.str("duration", "days", "daysTaken"); d != "" {
		l.Duration, _ = strconv.ParseFloat(d, 64)
	}

	switch s := strings.ToLower(r.str("status", "approvalStatus")); {
	case strings.Contains(s, "approv"):
		l.Status = LeaveRecordApproved
	case strings.Contains(s, "reject"):
		l.Status = LeaveRecordRejected
	case strings.Contains(s, "cancel"):
		l.Status = LeaveRecordCancelled
	default:
		l.Status = LeaveRecordApplied
	}

	if l.FromDate == "" || l.ToDate == "" {
		return fmt.Errorf("leave record: %w fromDate/toDate", errMissingField)
	}
	return nil
}

// ── 表单提交 ──

// FormInsertResult 表单插入结果
type FormInsertResult struct {
	RecordID string          `json:"record_id,omitempty"`
	Message  string          `json:"message,omitempty"`
	Raw      json.RawMessage `json:"raw"`
}

// ── 列表解码 ──

// ListResult 某端点解码后的条目
type ListResult[T any] struct {
	Items   []T `json:"items"`
	Skipped int `json:"skipped"`
}

// 依次尝试的信封字段
var envelopeKeys = []string{"data", "entries", "records", "result", "response"}

func decodeList[T any](body []byte) (*ListResult[T], error) {
	if err := envelopeError(body); err != nil {
		return nil, err
	}
	raws, err := extractItems(body, 0)
	if err != nil {
		return nil, err
	}
	out := &ListResult[T]{Items: make([]T, 0, len(raws))}
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			out.Skipped++
			continue
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

// envelopeError 识别 HTTP 200 下的业务错误信封，如 {"response":{"status":1,"errors":{...}}}
func envelopeError(body []byte) error {
	var envelope struct {
		Response *struct {
			Status json.RawMessage `json:"status"`
			Errors json.RawMessage `json:"errors"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Response == nil {
		return nil
	}
	if statusFailed(envelope.Response.Status) || hasContent(envelope.Response.Errors) {
		return &UpstreamError{Status: http.StatusUnprocessableEntity, Body: truncateBody(body)}
	}
	return nil
}

// statusFailed Zoho 以 0 表示成功
func statusFailed(raw json.RawMessage) bool {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return false
	}
	v, err := n.Int64()
	return err == nil && v != 0
}

func hasContent(raw json.RawMessage) bool {
	switch t := string(bytes.TrimSpace(raw)); t {
	case "", "null", "{}", "[]", `""`:
		return false
	default:
		return true
	}
}

func extractItems(body []byte, depth int) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	if body[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(body, &arr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
		}
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	if depth > 3 {
		return nil, ErrUnexpectedPayload
	}

	lower := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		lower[strings.ToLower(k)] = v
	}
	for _, key := range envelopeKeys {
		if v, ok := lower[key]; ok {
			return extractItems(v, depth+1)
		}
	}

	// 以记录 ID 为键的对象：取全部值
	if depth > 0 {
		keys := make([]string, 0, len(obj))
		for k, v := range obj {
			if t := bytes.TrimSpace(v); len(t) == 0 || t[0] != '{' {
				return nil, ErrUnexpectedPayload
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]json.RawMessage, 0, len(keys))
		for _, k := range keys {
			items = append(items, obj[k])
		}
		return items, nil
	}
	return nil, ErrUnexpectedPayload
}

// record 大小写不敏感的字段读取
type record map[string]json.RawMessage

func newRecord(b []byte) (record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	r := make(record, len(raw))
	for k, v := range raw {
		r[strings.ToLower(k)] = v
	}
	return r, nil
}

// str 返回第一个非空候选字段的文本值，数字与布尔按字面量返回
func (r record) str(keys ...string) string {
	for _, k := range keys {
		v, ok := r[strings.ToLower(k)]
		if !ok {
			continue
		}
		v = bytes.TrimSpace(v)
		if len(v) == 0 || bytes.Equal(v, []byte("null")) {
			continue
		}
		if v[0] == '"' {
			var s string
			if err := json.Unmarshal(v, &s); err == nil && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
			continue
		}
		if v[0] == '{' || v[0] == '[' {
			continue
		}
		return string(v)
	}
	return ""
}
