package models

import "time"

// LoginAttempt 登录尝试记录
// 说明：只追加不修改，记录凭证或第三方登录的成败，供滚动窗口锁定计数与个人安全中心展示。
type LoginAttempt struct {
	ID         uint      `gorm:"primarykey" json:"id"`                     // 主键
	UserID     uint      `gorm:"index" json:"user_id"`                     // 用户ID（失败时可为0）
	Email      string    `gorm:"index;not null" json:"email"`              // 登录尝试邮箱
	Provider   string    `gorm:"type:varchar(32);index" json:"provider"`   // 登录方式（credential/apple/google/kakao/naver）
	Status     string    `gorm:"index;not null" json:"status"`             // 登录结果（success/failed）
	FailReason string    `gorm:"index" json:"fail_reason"`                 // 失败原因枚举
	ClientIP   string    `gorm:"type:varchar(64);index" json:"client_ip"`  // 客户端IP
	UserAgent  string    `gorm:"type:text" json:"user_agent"`              // 客户端UA
	RequestID  string    `gorm:"type:varchar(64);index" json:"request_id"` // 请求追踪ID
	CreatedAt  time.Time `gorm:"index" json:"created_at"`                  // 记录时间
}

// TableName 指定表名
func (LoginAttempt) TableName() string {
	return "login_attempts"
}
