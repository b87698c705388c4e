package models

import "time"

// Account 登录账号表
// 一个用户可绑定多条账号记录：一条 credential（邮箱密码）与若干第三方身份。
// (provider, provider_account_id) 全局唯一；用户至少保留一条账号记录。
type Account struct {
	ID                uint      `gorm:"primarykey" json:"id"`                                                             // 主键
	UserID            uint      `gorm:"index;not null" json:"user_id"`                                                    // 所属用户ID
	Provider          string    `gorm:"type:varchar(32);uniqueIndex:idx_accounts_provider_account;not null" json:"provider"` // 提供方（credential/apple/google/kakao/naver）
	ProviderAccountID string    `gorm:"type:varchar(191);uniqueIndex:idx_accounts_provider_account;not null" json:"provider_account_id"` // 提供方账号ID（credential 为邮箱）
	PasswordHash      string    `gorm:"default:''" json:"-"`                                                              // 密码哈希（仅 credential，不返回给前端）
	ProviderEmail     string    `gorm:"default:''" json:"provider_email"`                                                 // 提供方返回的邮箱
	CreatedAt         time.Time `gorm:"index" json:"created_at"`                                                          // 创建时间
	UpdatedAt         time.Time `gorm:"index" json:"updated_at"`                                                          // 更新时间
}

// TableName 指定表名
func (Account) TableName() string {
	return "accounts"
}
