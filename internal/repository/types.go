package repository

import "time"

// LoginAttemptListFilter 查询登录尝试记录的过滤条件
type LoginAttemptListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Email       string
	Provider    string
	Status      string
	FailReason  string
	ClientIP    string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// SecurityLogListFilter 查询安全审计日志的过滤条件
type SecurityLogListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Event       string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
