package service

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tasknest-next/internal/logger"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/repository"

	"gorm.io/gorm"
)

// SecurityLogService 安全审计日志服务
// 审计写入与其记录的状态变更在同一事务内完成，RecordTx 为事务内入口。
type SecurityLogService struct {
	repo repository.SecurityLogRepository
}

// NewSecurityLogService 创建安全审计日志服务
func NewSecurityLogService(repo repository.SecurityLogRepository) *SecurityLogService {
	return &SecurityLogService{repo: repo}
}

// SecurityEventInput 审计事件输入
type SecurityEventInput struct {
	UserID    *uint
	Event     string
	ClientIP  string
	UserAgent string
	Metadata  map[string]interface{}
	RequestID string
}

// RecordTx 在给定事务内追加一条审计日志
func (s *SecurityLogService) RecordTx(tx *gorm.DB, input SecurityEventInput) error {
	if s == nil || s.repo == nil {
		return nil
	}
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	return repo.Create(buildSecurityLog(input))
}

// Record 追加一条审计日志（独立写入）
// 本方法吞掉错误只记日志：审计失败不应让已完成的业务动作回滚或报错。
func (s *SecurityLogService) Record(input SecurityEventInput) {
	if s == nil || s.repo == nil {
		return
	}
	if err := s.repo.Create(buildSecurityLog(input)); err != nil {
		logger.Errorw("security_log_write_failed", "event", input.Event, "error", err)
	}
}

// ListByUser 用户侧查询自己的安全日志
func (s *SecurityLogService) ListByUser(userID uint, page, pageSize int) ([]models.SecurityLog, int64, error) {
	if s == nil || s.repo == nil || userID == 0 {
		return []models.SecurityLog{}, 0, nil
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

func buildSecurityLog(input SecurityEventInput) *models.SecurityLog {
	entry := &models.SecurityLog{
		UserID:    input.UserID,
		Event:     strings.TrimSpace(input.Event),
		ClientIP:  strings.TrimSpace(input.ClientIP),
		UserAgent: strings.TrimSpace(input.UserAgent),
		RequestID: strings.TrimSpace(input.RequestID),
		CreatedAt: time.Now(),
	}
	if len(input.Metadata) > 0 {
		if raw, err := json.Marshal(input.Metadata); err == nil {
			entry.Metadata = string(raw)
		}
	}
	return entry
}
