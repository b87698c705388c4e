package repository

import (
	"github.com/tasknest-next/internal/models"

	"gorm.io/gorm"
)

// SecurityLogRepository 安全审计日志数据访问接口
type SecurityLogRepository interface {
	WithTx(tx *gorm.DB) SecurityLogRepository
	Create(entry *models.SecurityLog) error
	ListByUser(userID uint, page, pageSize int) ([]models.SecurityLog, int64, error)
	List(filter SecurityLogListFilter) ([]models.SecurityLog, int64, error)
}

// GormSecurityLogRepository GORM 实现
type GormSecurityLogRepository struct {
	db *gorm.DB
}

// NewSecurityLogRepository 创建安全审计日志仓库
func NewSecurityLogRepository(db *gorm.DB) *GormSecurityLogRepository {
	return &GormSecurityLogRepository{db: db}
}

// WithTx 绑定事务
// 审计写入通常与其记录的状态变更同事务落库。
func (r *GormSecurityLogRepository) WithTx(tx *gorm.DB) SecurityLogRepository {
	if tx == nil {
		return r
	}
	return &GormSecurityLogRepository{db: tx}
}

// Create 追加一条审计日志
func (r *GormSecurityLogRepository) Create(entry *models.SecurityLog) error {
	if entry == nil {
		return nil
	}
	return r.db.Create(entry).Error
}

// ListByUser 用户侧查询自己的安全日志
func (r *GormSecurityLogRepository) ListByUser(userID uint, page, pageSize int) ([]models.SecurityLog, int64, error) {
	query := r.db.Model(&models.SecurityLog{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, page, pageSize)

	var entries []models.SecurityLog
	if err := query.Order("id desc").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// List 按过滤条件查询安全日志
func (r *GormSecurityLogRepository) List(filter SecurityLogListFilter) ([]models.SecurityLog, int64, error) {
	query := r.db.Model(&models.SecurityLog{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Event != "" {
		query = query.Where("event = ?", filter.Event)
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

	var entries []models.SecurityLog
	if err := query.Order("id desc").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
