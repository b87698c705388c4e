package repository

import (
	"errors"

	"github.com/tasknest-next/internal/models"

	"gorm.io/gorm"
)

// AccountRepository 登录账号数据访问接口
type AccountRepository interface {
	WithTx(tx *gorm.DB) AccountRepository
	GetByProviderAccountID(provider, providerAccountID string) (*models.Account, error)
	GetByUserAndProvider(userID uint, provider string) (*models.Account, error)
	ListByUser(userID uint) ([]models.Account, error)
	CountByUser(userID uint) (int64, error)
	Create(account *models.Account) error
	UpdatePasswordHash(id uint, hash string) error
	Delete(id uint) error
}

// GormAccountRepository GORM 实现
type GormAccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建登录账号仓库
func NewAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// WithTx 绑定事务
func (r *GormAccountRepository) WithTx(tx *gorm.DB) AccountRepository {
	if tx == nil {
		return r
	}
	return &GormAccountRepository{db: tx}
}

// GetByProviderAccountID 根据提供方与提供方账号ID获取账号
func (r *GormAccountRepository) GetByProviderAccountID(provider, providerAccountID string) (*models.Account, error) {
	var account models.Account
	if err := r.db.Where("provider = ? AND provider_account_id = ?", provider, providerAccountID).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetByUserAndProvider 获取用户在某提供方下的账号
func (r *GormAccountRepository) GetByUserAndProvider(userID uint, provider string) (*models.Account, error) {
	var account models.Account
	if err := r.db.Where("user_id = ? AND provider = ?", userID, provider).
		First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ListByUser 获取用户的全部账号
func (r *GormAccountRepository) ListByUser(userID uint) ([]models.Account, error) {
	var accounts []models.Account
	if err := r.db.Where("user_id = ?", userID).Order("id asc").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// CountByUser 统计用户的账号数量
func (r *GormAccountRepository) CountByUser(userID uint) (int64, error) {
	var total int64
	if err := r.db.Model(&models.Account{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// Create 创建账号
func (r *GormAccountRepository) Create(account *models.Account) error {
	return r.db.Create(account).Error
}

// UpdatePasswordHash 更新密码哈希
func (r *GormAccountRepository) UpdatePasswordHash(id uint, hash string) error {
	return r.db.Model(&models.Account{}).
		Where("id = ?", id).
		Update("password_hash", hash).Error
}

// Delete 删除账号（解绑）
func (r *GormAccountRepository) Delete(id uint) error {
	return r.db.Delete(&models.Account{}, id).Error
}
