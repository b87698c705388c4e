package repository

import (
	"errors"
	"time"

	"github.com/tasknest-next/internal/models"

	"gorm.io/gorm"
)

// SessionRotateParams 会话轮换参数
// ExpectedVersion 为调用方读到的当前版本，轮换仅在存储中的版本仍等于该值时生效。
type SessionRotateParams struct {
	NewTokenHash      string
	PreviousTokenHash string
	ExpectedVersion   uint64
	LastUsedAt        time.Time
}

// SessionRepository 登录会话数据访问接口
type SessionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) SessionRepository
	Create(session *models.Session) error
	SetRefreshTokenHash(id uint, hash string) error
	GetByID(id uint) (*models.Session, error)
	FindByCurrentHash(hash string) (*models.Session, error)
	FindByPreviousHash(hash string) (*models.Session, error)
	FindActiveByUser(userID uint, now time.Time) ([]models.Session, error)
	Rotate(id uint, params SessionRotateParams) (bool, error)
	Revoke(id uint, reason string, at time.Time) error
	RevokeAllByUser(userID uint, reason string, at time.Time, excludeID uint) ([]uint, error)
	RevokeByTokenFamily(family, reason string, at time.Time) ([]uint, error)
	DeleteExpiredBefore(cutoff time.Time) (int64, error)
}

// GormSessionRepository GORM 实现
type GormSessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository 创建登录会话仓库
func NewSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

// Transaction 在事务内执行
func (r *GormSessionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if r == nil || r.db == nil {
		return errors.New("session repository not initialized")
	}
	return r.db.Transaction(fn)
}

// WithTx 绑定事务
func (r *GormSessionRepository) WithTx(tx *gorm.DB) SessionRepository {
	if tx == nil {
		return r
	}
	return &GormSessionRepository{db: tx}
}

// Create 创建会话行
// 行先落库拿到主键，令牌签出后再回填哈希，两步必须在同一事务内完成。
func (r *GormSessionRepository) Create(session *models.Session) error {
	return r.db.Create(session).Error
}

// SetRefreshTokenHash 回填刷新令牌哈希（建会话第二步）
func (r *GormSessionRepository) SetRefreshTokenHash(id uint, hash string) error {
	return r.db.Model(&models.Session{}).
		Where("id = ?", id).
		Update("refresh_token_hash", hash).Error
}

// GetByID 根据 ID 获取会话
func (r *GormSessionRepository) GetByID(id uint) (*models.Session, error) {
	var session models.Session
	if err := r.db.First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// FindByCurrentHash 根据当前刷新令牌哈希查找会话
func (r *GormSessionRepository) FindByCurrentHash(hash string) (*models.Session, error) {
	if hash == "" {
		return nil, nil
	}
	var session models.Session
	if err := r.db.Where("refresh_token_hash = ?", hash).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// FindByPreviousHash 根据上一枚刷新令牌哈希查找会话（重放检测）
func (r *GormSessionRepository) FindByPreviousHash(hash string) (*models.Session, error) {
	if hash == "" {
		return nil, nil
	}
	var session models.Session
	if err := r.db.Where("previous_token_hash = ?", hash).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

// FindActiveByUser 获取用户当前有效的会话列表
func (r *GormSessionRepository) FindActiveByUser(userID uint, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	if err := r.db.Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, now).
		Order("last_used_at desc").
		Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// Rotate 乐观并发轮换
// 仅当存储中的 token_version 仍等于 ExpectedVersion 且会话未撤销时更新；
// 返回 false 表示并发轮换已经先行成功，本次请求落败。
func (r *GormSessionRepository) Rotate(id uint, params SessionRotateParams) (bool, error) {
	result := r.db.Model(&models.Session{}).
		Where("id = ? AND token_version = ? AND revoked_at IS NULL", id, params.ExpectedVersion).
		Updates(map[string]interface{}{
			"token_version":       params.ExpectedVersion + 1,
			"refresh_token_hash":  params.NewTokenHash,
			"previous_token_hash": params.PreviousTokenHash,
			"last_used_at":        params.LastUsedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Revoke 撤销单个会话
func (r *GormSessionRepository) Revoke(id uint, reason string, at time.Time) error {
	return r.db.Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]interface{}{
			"revoked_at":    at,
			"revoke_reason": reason,
		}).Error
}

// RevokeAllByUser 撤销用户全部未撤销会话，excludeID 不为 0 时保留该会话
// 返回被撤销的会话 ID 列表，供调用方逐一失效缓存。
func (r *GormSessionRepository) RevokeAllByUser(userID uint, reason string, at time.Time, excludeID uint) ([]uint, error) {
	query := r.db.Model(&models.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var ids []uint
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []uint{}, nil
	}
	if err := r.db.Model(&models.Session{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"revoked_at":    at,
			"revoke_reason": reason,
		}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// DeleteExpiredBefore 物理清理早已过期的会话行，返回删除条数
// 过期会话轮换必然失败，历史行仅占存储，定期由 worker 清理。
func (r *GormSessionRepository) DeleteExpiredBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("expires_at < ?", cutoff).Delete(&models.Session{})
	return result.RowsAffected, result.Error
}

// RevokeByTokenFamily 按令牌族撤销（仅用于重放响应）
func (r *GormSessionRepository) RevokeByTokenFamily(family, reason string, at time.Time) ([]uint, error) {
	if family == "" {
		return []uint{}, nil
	}
	var ids []uint
	if err := r.db.Model(&models.Session{}).
		Where("token_family = ? AND revoked_at IS NULL", family).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []uint{}, nil
	}
	if err := r.db.Model(&models.Session{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"revoked_at":    at,
			"revoke_reason": reason,
		}).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
