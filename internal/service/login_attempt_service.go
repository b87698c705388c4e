package service

import (
	"strings"
	"time"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/repository"
)

// LoginAttemptService 登录尝试记录服务
// 追加式记录每次登录结果，并基于滚动失败窗口判定账号临时锁定。
type LoginAttemptService struct {
	repo    repository.LoginAttemptRepository
	lockout config.LoginLockoutConfig
}

// NewLoginAttemptService 创建登录尝试记录服务
func NewLoginAttemptService(repo repository.LoginAttemptRepository, lockout config.LoginLockoutConfig) *LoginAttemptService {
	return &LoginAttemptService{repo: repo, lockout: lockout}
}

// RecordLoginAttemptInput 登录尝试记录输入
type RecordLoginAttemptInput struct {
	UserID     uint
	Email      string
	Provider   string
	Status     string
	FailReason string
	ClientIP   string
	UserAgent  string
	RequestID  string
}

// Record 记录一次登录尝试
func (s *LoginAttemptService) Record(input RecordLoginAttemptInput) error {
	if s == nil || s.repo == nil {
		return nil
	}

	email := strings.TrimSpace(input.Email)
	if normalized, err := NormalizeEmail(email); err == nil {
		email = normalized
	}

	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status != constants.LoginAttemptStatusSuccess {
		status = constants.LoginAttemptStatusFailed
	}

	failReason := strings.ToLower(strings.TrimSpace(input.FailReason))
	if status == constants.LoginAttemptStatusSuccess {
		failReason = ""
	} else if failReason == "" {
		failReason = constants.LoginFailReasonInternalError
	}

	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	if provider == "" {
		provider = constants.AccountProviderCredential
	}

	return s.repo.Create(&models.LoginAttempt{
		UserID:     input.UserID,
		Email:      email,
		Provider:   provider,
		Status:     status,
		FailReason: failReason,
		ClientIP:   strings.TrimSpace(input.ClientIP),
		UserAgent:  strings.TrimSpace(input.UserAgent),
		RequestID:  strings.TrimSpace(input.RequestID),
		CreatedAt:  time.Now(),
	})
}

// IsLockedOut 判断邮箱是否处于失败锁定窗口内
// 登录成功不清零窗口，旧失败随时间滑出窗口后自然解锁。
func (s *LoginAttemptService) IsLockedOut(email string) (bool, error) {
	if s == nil || s.repo == nil {
		return false, nil
	}
	window := s.lockoutWindow()
	failures, err := s.repo.CountFailuresSince(email, time.Now().Add(-window))
	if err != nil {
		return false, err
	}
	return failures >= int64(s.lockoutMaxFailures()), nil
}

// CountRecentFailures 统计窗口内的失败次数
func (s *LoginAttemptService) CountRecentFailures(email string, since time.Time) (int64, error) {
	if s == nil || s.repo == nil {
		return 0, nil
	}
	return s.repo.CountFailuresSince(email, since)
}

// ListByUser 用户侧查询自己的登录记录
func (s *LoginAttemptService) ListByUser(userID uint, page, pageSize int) ([]models.LoginAttempt, int64, error) {
	if s == nil || s.repo == nil || userID == 0 {
		return []models.LoginAttempt{}, 0, nil
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return s.repo.ListByUser(userID, page, pageSize)
}

func (s *LoginAttemptService) lockoutWindow() time.Duration {
	minutes := s.lockout.WindowMinutes
	if minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}

func (s *LoginAttemptService) lockoutMaxFailures() int {
	if s.lockout.MaxFailures <= 0 {
		return 5
	}
	return s.lockout.MaxFailures
}
