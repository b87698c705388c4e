package service

import (
	"strings"
	"time"

	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/oauth"
	"github.com/tasknest-next/internal/repository"

	"gorm.io/gorm"
)

// RequestMeta 请求侧元信息，贯穿登录/绑定链路用于审计与登录记录
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	RequestID string
}

// AccountLinkingService 第三方账号关联策略
// 可信平台（邮箱所有权由平台核实）允许按邮箱自动关联到已有用户，
// 不可信平台一律要求用户先登录再手动绑定。
type AccountLinkingService struct {
	userRepo       repository.UserRepository
	accountRepo    repository.AccountRepository
	securityLogSvc *SecurityLogService
	trusted        map[string]struct{}
}

// NewAccountLinkingService 创建账号关联服务
func NewAccountLinkingService(
	userRepo repository.UserRepository,
	accountRepo repository.AccountRepository,
	securityLogSvc *SecurityLogService,
	trustedProviders []string,
) *AccountLinkingService {
	if len(trustedProviders) == 0 {
		trustedProviders = constants.TrustedOAuthProviders
	}
	trusted := make(map[string]struct{}, len(trustedProviders))
	for _, provider := range trustedProviders {
		trusted[strings.ToLower(strings.TrimSpace(provider))] = struct{}{}
	}
	return &AccountLinkingService{
		userRepo:       userRepo,
		accountRepo:    accountRepo,
		securityLogSvc: securityLogSvc,
		trusted:        trusted,
	}
}

// IsTrusted 判断平台是否在可信集合内
func (s *AccountLinkingService) IsTrusted(provider string) bool {
	_, ok := s.trusted[provider]
	return ok
}

// ResolveOAuthLogin 把一份已核实的第三方画像解析为可登录的用户
// 三种结局：命中已绑定账号直接登录、按邮箱自动注册/自动关联、或要求手动绑定。
func (s *AccountLinkingService) ResolveOAuthLogin(profile *oauth.Profile, meta RequestMeta) (*models.User, error) {
	if profile == nil || profile.Provider == "" || profile.ProviderAccountID == "" {
		return nil, ErrOAuthTokenInvalid
	}

	account, err := s.accountRepo.GetByProviderAccountID(profile.Provider, profile.ProviderAccountID)
	if err != nil {
		return nil, err
	}
	if account != nil {
		user, err := s.userRepo.GetByID(account.UserID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrNotFound
		}
		if err := checkUserLoginable(user); err != nil {
			return nil, err
		}
		return user, nil
	}

	email := strings.ToLower(strings.TrimSpace(profile.Email))
	if email == "" {
		// 平台未返回邮箱时无法注册也无法按邮箱关联
		return nil, ErrInvalidEmail
	}

	existing, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return s.registerFromProfile(profile, email, meta)
	}

	// 已有同邮箱用户：先做状态门禁，再按平台可信度决定是否自动关联
	if err := checkUserLoginable(existing); err != nil {
		return nil, err
	}
	if !s.IsTrusted(profile.Provider) || !profile.EmailVerified {
		s.securityLogSvc.Record(SecurityEventInput{
			UserID:    &existing.ID,
			Event:     constants.SecurityEventOAuthLinkRequired,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
			Metadata:  map[string]interface{}{"provider": profile.Provider},
		})
		return nil, ErrOAuthLinkRequired
	}

	// 同平台已有其它身份绑定在该用户上时不做自动关联，避免串号
	bound, err := s.accountRepo.GetByUserAndProvider(existing.ID, profile.Provider)
	if err != nil {
		return nil, err
	}
	if bound != nil {
		s.securityLogSvc.Record(SecurityEventInput{
			UserID:    &existing.ID,
			Event:     constants.SecurityEventOAuthLinkRequired,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
			Metadata:  map[string]interface{}{"provider": profile.Provider, "reason": "provider_already_bound"},
		})
		return nil, ErrOAuthLinkRequired
	}

	err = s.userRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.WithTx(tx).Create(&models.Account{
			UserID:            existing.ID,
			Provider:          profile.Provider,
			ProviderAccountID: profile.ProviderAccountID,
			ProviderEmail:     email,
		}); err != nil {
			return err
		}
		// 可信平台核实过邮箱所有权，等待验证中的用户顺带完成验证
		if existing.Status == constants.UserStatusPendingVerify {
			now := time.Now()
			existing.Status = constants.UserStatusActive
			existing.EmailVerifiedAt = &now
			if err := s.userRepo.WithTx(tx).Update(existing); err != nil {
				return err
			}
		}
		return s.securityLogSvc.RecordTx(tx, SecurityEventInput{
			UserID:    &existing.ID,
			Event:     constants.SecurityEventOAuthAutoLinked,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
			Metadata:  map[string]interface{}{"provider": profile.Provider},
		})
	})
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// registerFromProfile 首次见到的第三方身份直接注册新用户
func (s *AccountLinkingService) registerFromProfile(profile *oauth.Profile, email string, meta RequestMeta) (*models.User, error) {
	displayName := strings.TrimSpace(profile.Name)
	if displayName == "" {
		displayName = resolveNicknameFromEmail(email)
	}

	user := &models.User{
		Email:       email,
		DisplayName: displayName,
		AvatarURL:   profile.Picture,
		Status:      constants.UserStatusActive,
	}
	if profile.EmailVerified {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}

	err := s.userRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(user); err != nil {
			return err
		}
		if err := s.accountRepo.WithTx(tx).Create(&models.Account{
			UserID:            user.ID,
			Provider:          profile.Provider,
			ProviderAccountID: profile.ProviderAccountID,
			ProviderEmail:     email,
		}); err != nil {
			return err
		}
		return s.securityLogSvc.RecordTx(tx, SecurityEventInput{
			UserID:    &user.ID,
			Event:     constants.SecurityEventRegister,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
			Metadata:  map[string]interface{}{"provider": profile.Provider},
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Link 已登录用户手动绑定第三方身份
func (s *AccountLinkingService) Link(userID uint, profile *oauth.Profile, meta RequestMeta) (*models.Account, error) {
	if profile == nil || profile.Provider == "" || profile.ProviderAccountID == "" {
		return nil, ErrOAuthTokenInvalid
	}

	existing, err := s.accountRepo.GetByProviderAccountID(profile.Provider, profile.ProviderAccountID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAccountAlreadyLinked
	}

	bound, err := s.accountRepo.GetByUserAndProvider(userID, profile.Provider)
	if err != nil {
		return nil, err
	}
	if bound != nil {
		return nil, ErrAccountAlreadyLinked
	}

	account := &models.Account{
		UserID:            userID,
		Provider:          profile.Provider,
		ProviderAccountID: profile.ProviderAccountID,
		ProviderEmail:     strings.ToLower(strings.TrimSpace(profile.Email)),
	}
	err = s.userRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.WithTx(tx).Create(account); err != nil {
			return err
		}
		return s.securityLogSvc.RecordTx(tx, SecurityEventInput{
			UserID:    &userID,
			Event:     constants.SecurityEventOAuthLinked,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
			Metadata:  map[string]interface{}{"provider": profile.Provider},
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Unlink 解绑第三方身份，最后一条登录方式不允许解绑
func (s *AccountLinkingService) Unlink(userID uint, provider string, meta RequestMeta) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	account, err := s.accountRepo.GetByUserAndProvider(userID, provider)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrNotFound
	}

	total, err := s.accountRepo.CountByUser(userID)
	if err != nil {
		return err
	}
	if total <= 1 {
		return ErrCannotUnlinkLastAccount
	}

	return s.userRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.WithTx(tx).Delete(account.ID); err != nil {
			return err
		}
		return s.securityLogSvc.RecordTx(tx, SecurityEventInput{
			UserID:    &userID,
			Event:     constants.SecurityEventOAuthUnlinked,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
			Metadata:  map[string]interface{}{"provider": provider},
		})
	})
}

// ListAccounts 列出用户绑定的账号
func (s *AccountLinkingService) ListAccounts(userID uint) ([]models.Account, error) {
	return s.accountRepo.ListByUser(userID)
}

// checkUserLoginable 登录前的用户状态门禁
func checkUserLoginable(user *models.User) error {
	switch user.Status {
	case constants.UserStatusLocked:
		return ErrAccountLocked
	case constants.UserStatusSuspended:
		return ErrAccountSuspended
	}
	return nil
}
