package repository

import (
	"time"

	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/models"

	"gorm.io/gorm"
)

// LoginAttemptRepository 登录尝试记录数据访问接口
type LoginAttemptRepository interface {
	Create(attempt *models.LoginAttempt) error
	CountFailuresSince(email string, since time.Time) (int64, error)
	ListByUser(userID uint, page, pageSize int) ([]models.LoginAttempt, int64, error)
	List(filter LoginAttemptListFilter) ([]models.LoginAttempt, int64, error)
}

// GormLoginAttemptRepository GORM 实现
type GormLoginAttemptRepository struct {
	db *gorm.DB
}

// NewLoginAttemptRepository 创建登录尝试记录仓库
func NewLoginAttemptRepository(db *gorm.DB) *GormLoginAttemptRepository {
	return &GormLoginAttemptRepository{db: db}
}

// Create 追加一条登录尝试记录
func (r *GormLoginAttemptRepository) Create(attempt *models.LoginAttempt) error {
	if attempt == nil {
		return nil
	}
	return r.db.Create(attempt).Error
}

// CountFailuresSince 统计某邮箱在给定时间之后的失败次数（滚动窗口锁定用）
func (r *GormLoginAttemptRepository) CountFailuresSince(email string, since time.Time) (int64, error) {
	var total int64
	if err := r.db.Model(&models.LoginAttempt{}).
		Where("email = ? AND status = ? AND created_at > ?", email, constants.LoginAttemptStatusFailed, since).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// ListByUser 用户侧查询自己的登录记录
func (r *GormLoginAttemptRepository) ListByUser(userID uint, page, pageSize int) ([]models.LoginAttempt, int64, error) {
	query := r.db.Model(&models.LoginAttempt{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, page, pageSize)

	var attempts []models.LoginAttempt
	if err := query.Order("id desc").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}

// List 按过滤条件查询登录记录
func (r *GormLoginAttemptRepository) List(filter LoginAttemptListFilter) ([]models.LoginAttempt, int64, error) {
	query := r.db.Model(&models.LoginAttempt{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Email != "" {
		query = query.Where("email = ?", filter.Email)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.FailReason != "" {
		query = query.Where("fail_reason = ?", filter.FailReason)
	}
	if filter.ClientIP != "" {
		query = query.Where("client_ip = ?", filter.ClientIP)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var attempts []models.LoginAttempt
	if err := query.Order("id desc").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}
	return attempts, total, nil
}
