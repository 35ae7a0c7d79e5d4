package dto

// LeaveReportRequest 请假报表导出参数
type LeaveReportRequest struct {
	Status    string `form:"status"     binding:"omitempty,oneof=pending approved rejected cancelled"`
	LeaveType string `form:"leave_type" binding:"omitempty,oneof=annual sick maternity paternity emergency unpaid"`
	From      string `form:"from"       binding:"omitempty,datetime=2006-01-02"`
	To        string `form:"to"         binding:"omitempty,datetime=2006-01-02"`
}
