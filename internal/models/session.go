package models

import "time"

// Session 登录会话表
// 一行对应一台设备的一次持续登录，刷新轮换只原地更新本行，从不删除。
// token_version 从 1 开始严格递增，轮换通过乐观并发更新保证同一刷新令牌只能兑换一次。
type Session struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                // 主键
	UserID            uint       `gorm:"index;not null" json:"user_id"`                       // 所属用户ID
	TokenFamily       string     `gorm:"type:varchar(64);index;not null" json:"-"`            // 令牌族标识（会话生命周期内不变）
	TokenVersion      uint64     `gorm:"not null;default:1" json:"-"`                         // 令牌版本（每次轮换 +1）
	RefreshTokenHash  string     `gorm:"type:varchar(128);index;default:''" json:"-"`         // 当前刷新令牌哈希
	PreviousTokenHash string     `gorm:"type:varchar(128);index;default:''" json:"-"`         // 上一枚刷新令牌哈希（仅用于重放检测）
	DeviceFingerprint string     `gorm:"type:varchar(128);index;default:''" json:"device_fingerprint"` // 设备指纹
	IPAddress         string     `gorm:"type:varchar(64)" json:"ip_address"`                  // 客户端IP
	UserAgent         string     `gorm:"type:text" json:"user_agent"`                         // 客户端UA
	LastUsedAt        time.Time  `gorm:"index" json:"last_used_at"`                           // 最近使用时间
	ExpiresAt         time.Time  `gorm:"index" json:"expires_at"`                             // 过期时间
	RevokedAt         *time.Time `gorm:"index" json:"revoked_at"`                             // 撤销时间
	RevokeReason      string     `gorm:"type:varchar(64);default:''" json:"revoke_reason"`    // 撤销原因
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt         time.Time  `gorm:"index" json:"updated_at"`                             // 更新时间
}

// TableName 指定表名
func (Session) TableName() string {
	return "sessions"
}

// IsRevoked 会话是否已撤销
func (s *Session) IsRevoked() bool {
	return s != nil && s.RevokedAt != nil
}

// IsExpired 会话在给定时间点是否已过期
func (s *Session) IsExpired(now time.Time) bool {
	return s != nil && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// IsActive 会话是否仍然有效
func (s *Session) IsActive(now time.Time) bool {
	return s != nil && !s.IsRevoked() && !s.IsExpired(now)
}
