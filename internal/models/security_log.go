package models

import "time"

// SecurityLog 安全审计日志
// 说明：只追加不修改，每条对应一次安全相关的状态变更，与该变更在同一事务内落库。
// 登录失败不在本表，见 LoginAttempt。
type SecurityLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`                     // 主键
	UserID    *uint     `gorm:"index" json:"user_id"`                     // 关联用户ID（可为空）
	Event     string    `gorm:"type:varchar(64);index;not null" json:"event"` // 事件枚举
	ClientIP  string    `gorm:"type:varchar(64);index" json:"client_ip"`  // 客户端IP
	UserAgent string    `gorm:"type:text" json:"user_agent"`              // 客户端UA
	Metadata  string    `gorm:"type:text" json:"metadata"`                // 事件附加信息（JSON 文本）
	RequestID string    `gorm:"type:varchar(64);index" json:"request_id"` // 请求追踪ID
	CreatedAt time.Time `gorm:"index" json:"created_at"`                  // 记录时间
}

// TableName 指定表名
func (SecurityLog) TableName() string {
	return "security_logs"
}
