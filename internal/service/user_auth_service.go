package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/logger"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/oauth"
	"github.com/tasknest-next/internal/queue"
	"github.com/tasknest-next/internal/repository"

	"gorm.io/gorm"
)

// UserAuthService 用户认证编排服务
// 串联注册、登录、令牌刷新、第三方登录与密码找回等入口；
// 登录尝试与安全审计由各入口自行落库，调用方无需补记。
type UserAuthService struct {
	cfg             *config.Config
	userRepo        repository.UserRepository
	accountRepo     repository.AccountRepository
	codeRepo        repository.EmailVerifyCodeRepository
	tokenSvc        *TokenService
	sessionSvc      *SessionService
	loginAttemptSvc *LoginAttemptService
	securityLogSvc  *SecurityLogService
	linkingSvc      *AccountLinkingService
	oauthRegistry   *oauth.Registry
	captchaSvc      *CaptchaService
	emailSvc        *EmailService
	queueClient     *queue.Client
}

// NewUserAuthService 创建用户认证服务
func NewUserAuthService(
	cfg *config.Config,
	userRepo repository.UserRepository,
	accountRepo repository.AccountRepository,
	codeRepo repository.EmailVerifyCodeRepository,
	tokenSvc *TokenService,
	sessionSvc *SessionService,
	loginAttemptSvc *LoginAttemptService,
	securityLogSvc *SecurityLogService,
	linkingSvc *AccountLinkingService,
	oauthRegistry *oauth.Registry,
	captchaSvc *CaptchaService,
	emailSvc *EmailService,
	queueClient *queue.Client,
) *UserAuthService {
	return &UserAuthService{
		cfg:             cfg,
		userRepo:        userRepo,
		accountRepo:     accountRepo,
		codeRepo:        codeRepo,
		tokenSvc:        tokenSvc,
		sessionSvc:      sessionSvc,
		loginAttemptSvc: loginAttemptSvc,
		securityLogSvc:  securityLogSvc,
		linkingSvc:      linkingSvc,
		oauthRegistry:   oauthRegistry,
		captchaSvc:      captchaSvc,
		emailSvc:        emailSvc,
		queueClient:     queueClient,
	}
}

// RegisterInput 注册入参
type RegisterInput struct {
	Email             string
	Password          string
	DisplayName       string
	Locale            string
	AgreementAccepted bool
	Captcha           CaptchaVerifyPayload
	Meta              RequestMeta
}

// LoginInput 凭证登录入参
type LoginInput struct {
	Email             string
	Password          string
	DeviceFingerprint string
	Captcha           CaptchaVerifyPayload
	Meta              RequestMeta
}

// OAuthLoginInput 第三方登录入参
type OAuthLoginInput struct {
	Provider          string
	Token             string
	DeviceFingerprint string
	Meta              RequestMeta
}

// LoginResult 登录或刷新成功后的会话与令牌
type LoginResult struct {
	User    *models.User
	Session *models.Session
	Tokens  *TokenPair
}

// UpdateProfileInput 资料更新入参，nil 字段表示不修改
type UpdateProfileInput struct {
	DisplayName *string
	AvatarURL   *string
	Locale      *string
}

// Register 注册邮箱密码账号
// 注册即建档（pending_verify），验证码邮件异步投递，验证完成后才能登录。
func (s *UserAuthService) Register(input RegisterInput) (*models.User, error) {
	if !input.AgreementAccepted {
		return nil, ErrAgreementRequired
	}

	email, err := NormalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := s.captchaSvc.Verify(constants.CaptchaSceneRegisterSendCode, input.Captcha); err != nil {
		return nil, err
	}
	if err := validatePassword(s.cfg.Security.PasswordPolicy, input.Password); err != nil {
		return nil, err
	}

	existing, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = resolveNicknameFromEmail(email)
	}
	user := &models.User{
		Email:       email,
		DisplayName: displayName,
		Locale:      strings.TrimSpace(input.Locale),
		Status:      constants.UserStatusPendingVerify,
	}

	if err := s.userRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Create(user); err != nil {
			return err
		}
		account := &models.Account{
			UserID:            user.ID,
			Provider:          constants.AccountProviderCredential,
			ProviderAccountID: email,
			PasswordHash:      hash,
			ProviderEmail:     email,
		}
		if err := s.accountRepo.WithTx(tx).Create(account); err != nil {
			return err
		}
		return s.securityLogSvc.RecordTx(tx, SecurityEventInput{
			UserID:    &user.ID,
			Event:     constants.SecurityEventRegister,
			ClientIP:  input.Meta.ClientIP,
			UserAgent: input.Meta.UserAgent,
			RequestID: input.Meta.RequestID,
			Metadata:  map[string]interface{}{"provider": constants.AccountProviderCredential},
		})
	}); err != nil {
		return nil, err
	}

	// 注册已落库，验证码失败可通过重发补救
	if err := s.sendVerifyCode(email, constants.VerifyPurposeRegister, user.Locale); err != nil {
		logger.Warnw("register_verify_code_send_failed", "email", email, "error", err)
	}
	return user, nil
}

// VerifyEmail 校验注册验证码并激活账号
func (s *UserAuthService) VerifyEmail(email, code string, meta RequestMeta) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	if user.EmailVerifiedAt != nil {
		return nil
	}
	if err := s.verifyCode(normalized, constants.VerifyPurposeRegister, code); err != nil {
		return err
	}

	now := time.Now()
	user.EmailVerifiedAt = &now
	if user.Status == constants.UserStatusPendingVerify {
		user.Status = constants.UserStatusActive
	}
	return s.userRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.userRepo.WithTx(tx).Update(user); err != nil {
			return err
		}
		return s.securityLogSvc.RecordTx(tx, SecurityEventInput{
			UserID:    &user.ID,
			Event:     constants.SecurityEventEmailVerified,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
		})
	})
}

// Login 邮箱密码登录
// 锁定窗口在密码校验之前判断；密码错误与账号不存在统一返回，避免枚举邮箱。
func (s *UserAuthService) Login(input LoginInput) (*LoginResult, error) {
	email, err := NormalizeEmail(input.Email)
	if err != nil {
		s.recordLoginFailure(0, strings.TrimSpace(input.Email), constants.AccountProviderCredential, constants.LoginFailReasonInvalidEmail, input.Meta)
		return nil, err
	}

	if err := s.captchaSvc.Verify(constants.CaptchaSceneLogin, input.Captcha); err != nil {
		reason := constants.LoginFailReasonCaptchaInvalid
		if errors.Is(err, ErrCaptchaRequired) {
			reason = constants.LoginFailReasonCaptchaRequired
		}
		s.recordLoginFailure(0, email, constants.AccountProviderCredential, reason, input.Meta)
		return nil, err
	}

	locked, err := s.loginAttemptSvc.IsLockedOut(email)
	if err != nil {
		return nil, err
	}
	if locked {
		s.recordLoginFailure(0, email, constants.AccountProviderCredential, constants.LoginFailReasonAccountLocked, input.Meta)
		return nil, ErrAccountLocked
	}

	user, err := s.userRepo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	var account *models.Account
	if user != nil {
		account, err = s.accountRepo.GetByUserAndProvider(user.ID, constants.AccountProviderCredential)
		if err != nil {
			return nil, err
		}
	}
	if user == nil || account == nil {
		var userID uint
		if user != nil {
			userID = user.ID
		}
		s.recordLoginFailure(userID, email, constants.AccountProviderCredential, constants.LoginFailReasonInvalidCredentials, input.Meta)
		return nil, ErrInvalidCredentials
	}

	if err := checkUserLoginable(user); err != nil {
		reason := constants.LoginFailReasonAccountLocked
		if errors.Is(err, ErrAccountSuspended) {
			reason = constants.LoginFailReasonAccountSuspended
		}
		s.recordLoginFailure(user.ID, email, constants.AccountProviderCredential, reason, input.Meta)
		return nil, err
	}
	if user.EmailVerifiedAt == nil {
		s.recordLoginFailure(user.ID, email, constants.AccountProviderCredential, constants.LoginFailReasonEmailNotVerified, input.Meta)
		return nil, ErrEmailNotVerified
	}

	if !VerifyPassword(account.PasswordHash, input.Password) {
		s.recordLoginFailure(user.ID, email, constants.AccountProviderCredential, constants.LoginFailReasonInvalidCredentials, input.Meta)
		return nil, ErrInvalidCredentials
	}

	return s.establishSession(user, constants.AccountProviderCredential, input.DeviceFingerprint, input.Meta)
}

// RefreshTokens 刷新令牌（轮换）
// 呈上的令牌命中 previous_token_hash 视为重放，对应令牌族整体吊销。
func (s *UserAuthService) RefreshTokens(refreshToken string, meta RequestMeta) (*LoginResult, error) {
	claims, err := s.tokenSvc.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, ErrSessionExpired
	}

	hash := s.tokenSvc.HashRefreshToken(refreshToken)
	session, err := s.sessionSvc.FindByCurrentHash(hash)
	if err != nil {
		return nil, err
	}
	if session == nil {
		reused, err := s.sessionSvc.FindByPreviousHash(hash)
		if err != nil {
			return nil, err
		}
		if reused == nil {
			return nil, ErrSessionNotFound
		}
		return nil, s.handleRefreshTokenReuse(reused, meta)
	}

	if session.ID != claims.SessionID || session.UserID != claims.UserID || session.TokenFamily != claims.TokenFamily {
		return nil, ErrSessionNotFound
	}
	if session.IsRevoked() {
		return nil, ErrSessionRevoked
	}
	if session.IsExpired(time.Now()) {
		return nil, ErrSessionExpired
	}

	user, err := s.userRepo.GetByID(session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrSessionNotFound
	}
	if err := checkUserLoginable(user); err != nil {
		return nil, err
	}

	pair, err := s.sessionSvc.Rotate(session, user, claims.TokenVersion)
	if err != nil {
		return nil, err
	}

	s.securityLogSvc.Record(SecurityEventInput{
		UserID:    &user.ID,
		Event:     constants.SecurityEventTokenRefresh,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
		Metadata:  map[string]interface{}{"session_id": session.ID},
	})
	return &LoginResult{User: user, Session: session, Tokens: pair}, nil
}

// handleRefreshTokenReuse 处理刷新令牌重放：吊销令牌族、审计并通知用户
func (s *UserAuthService) handleRefreshTokenReuse(session *models.Session, meta RequestMeta) error {
	logger.Warnw("refresh_token_reuse_detected",
		"session_id", session.ID,
		"user_id", session.UserID,
		"token_family", session.TokenFamily,
		"client_ip", meta.ClientIP,
	)

	if err := s.sessionSvc.RevokeFamily(session.TokenFamily, constants.SessionRevokeReasonTokenReuse); err != nil {
		return err
	}

	s.securityLogSvc.Record(SecurityEventInput{
		UserID:    &session.UserID,
		Event:     constants.SecurityEventSuspicious,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
		Metadata: map[string]interface{}{
			"reason":       "refresh_token_reuse",
			"session_id":   session.ID,
			"token_family": session.TokenFamily,
		},
	})

	if user, err := s.userRepo.GetByID(session.UserID); err != nil {
		logger.Warnw("security_alert_user_lookup_failed", "user_id", session.UserID, "error", err)
	} else if user != nil {
		s.dispatchSecurityAlert(user, constants.SecurityEventSuspicious, meta)
	}
	return ErrTokenReuseDetected
}

// Logout 登出当前会话，对已吊销或不存在的会话幂等
func (s *UserAuthService) Logout(sessionID uint, meta RequestMeta) error {
	session, err := s.sessionSvc.GetByID(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if session.IsRevoked() {
		return nil
	}
	if err := s.sessionSvc.Revoke(session.ID, constants.SessionRevokeReasonLogout); err != nil {
		return err
	}
	s.securityLogSvc.Record(SecurityEventInput{
		UserID:    &session.UserID,
		Event:     constants.SecurityEventLogout,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
		Metadata:  map[string]interface{}{"session_id": session.ID},
	})
	return nil
}

// LogoutAll 登出该用户的全部会话（含当前会话）
func (s *UserAuthService) LogoutAll(userID uint, meta RequestMeta) error {
	if err := s.sessionSvc.RevokeAllByUser(userID, constants.SessionRevokeReasonLogoutAll, 0); err != nil {
		return err
	}
	s.securityLogSvc.Record(SecurityEventInput{
		UserID:    &userID,
		Event:     constants.SecurityEventLogoutAll,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
	})
	return nil
}

// RevokeOtherSessions 吊销除当前会话外的全部会话
func (s *UserAuthService) RevokeOtherSessions(userID, currentSessionID uint, meta RequestMeta) error {
	if err := s.sessionSvc.RevokeAllByUser(userID, constants.SessionRevokeReasonUserRevoked, currentSessionID); err != nil {
		return err
	}
	s.securityLogSvc.Record(SecurityEventInput{
		UserID:    &userID,
		Event:     constants.SecurityEventSessionRevokedAll,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
		Metadata:  map[string]interface{}{"current_session_id": currentSessionID},
	})
	return nil
}

// RevokeSession 吊销指定会话，仅限本人会话
func (s *UserAuthService) RevokeSession(userID, sessionID uint, meta RequestMeta) error {
	session, err := s.sessionSvc.GetByID(sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	if session.IsRevoked() {
		return nil
	}
	if err := s.sessionSvc.Revoke(session.ID, constants.SessionRevokeReasonUserRevoked); err != nil {
		return err
	}
	s.securityLogSvc.Record(SecurityEventInput{
		UserID:    &userID,
		Event:     constants.SecurityEventSessionRevoked,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
		Metadata:  map[string]interface{}{"session_id": session.ID},
	})
	return nil
}

// ListSessions 列出该用户当前有效的会话
func (s *UserAuthService) ListSessions(userID uint) ([]models.Session, error) {
	return s.sessionSvc.ListActive(userID)
}

// OAuthLogin 第三方令牌登录
// 令牌校验通过后由关联策略决定：命中绑定直接登录、可信平台自动关联、否则要求手动绑定。
func (s *UserAuthService) OAuthLogin(ctx context.Context, input OAuthLoginInput) (*LoginResult, error) {
	provider := strings.ToLower(strings.TrimSpace(input.Provider))
	verifier, err := s.oauthRegistry.Resolve(provider)
	if err != nil {
		return nil, ErrOAuthProviderUnknown
	}

	profile, err := verifier.Verify(ctx, input.Token)
	if err != nil {
		logger.Warnw("oauth_token_verify_failed", "provider", provider, "error", err)
		s.recordLoginFailure(0, "", provider, constants.LoginFailReasonOAuthTokenInvalid, input.Meta)
		return nil, ErrOAuthTokenInvalid
	}

	user, err := s.linkingSvc.ResolveOAuthLogin(profile, input.Meta)
	if err != nil {
		s.recordLoginFailure(0, profile.Email, provider, oauthLoginFailReason(err), input.Meta)
		return nil, err
	}

	return s.establishSession(user, provider, input.DeviceFingerprint, input.Meta)
}

// LinkOAuthAccount 为已登录用户绑定第三方账号
func (s *UserAuthService) LinkOAuthAccount(ctx context.Context, userID uint, provider, token string, meta RequestMeta) (*models.Account, error) {
	verifier, err := s.oauthRegistry.Resolve(strings.ToLower(strings.TrimSpace(provider)))
	if err != nil {
		return nil, ErrOAuthProviderUnknown
	}
	profile, err := verifier.Verify(ctx, token)
	if err != nil {
		logger.Warnw("oauth_token_verify_failed", "provider", provider, "error", err)
		return nil, ErrOAuthTokenInvalid
	}
	return s.linkingSvc.Link(userID, profile, meta)
}

// UnlinkOAuthAccount 解绑第三方账号，最后一条登录方式不允许解绑
func (s *UserAuthService) UnlinkOAuthAccount(userID uint, provider string, meta RequestMeta) error {
	return s.linkingSvc.Unlink(userID, strings.ToLower(strings.TrimSpace(provider)), meta)
}

// ListLinkedAccounts 列出该用户的全部账号绑定
func (s *UserAuthService) ListLinkedAccounts(userID uint) ([]models.Account, error) {
	return s.linkingSvc.ListAccounts(userID)
}

// ChangePassword 修改密码
// 修改成功后吊销除当前会话外的全部会话，并发送安全提醒。
func (s *UserAuthService) ChangePassword(userID, currentSessionID uint, oldPassword, newPassword string, meta RequestMeta) error {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	account, err := s.accountRepo.GetByUserAndProvider(userID, constants.AccountProviderCredential)
	if err != nil {
		return err
	}
	if account == nil || !VerifyPassword(account.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	if err := validatePassword(s.cfg.Security.PasswordPolicy, newPassword); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.WithTx(tx).UpdatePasswordHash(account.ID, hash); err != nil {
			return err
		}
		return s.securityLogSvc.RecordTx(tx, SecurityEventInput{
			UserID:    &user.ID,
			Event:     constants.SecurityEventPasswordChanged,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
		})
	}); err != nil {
		return err
	}

	if err := s.sessionSvc.RevokeAllByUser(userID, constants.SessionRevokeReasonPasswordChanged, currentSessionID); err != nil {
		logger.Errorw("password_change_session_revoke_failed", "user_id", userID, "error", err)
		return err
	}
	s.dispatchSecurityAlert(user, constants.SecurityEventPasswordChanged, meta)
	return nil
}

// ResetPassword 通过邮箱验证码重置密码
// 重置成功后吊销该用户全部会话；仅第三方登录的用户由此补建凭证账号。
func (s *UserAuthService) ResetPassword(email, code, newPassword string, meta RequestMeta) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	if err := validatePassword(s.cfg.Security.PasswordPolicy, newPassword); err != nil {
		return err
	}
	if err := s.verifyCode(normalized, constants.VerifyPurposeReset, code); err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	account, err := s.accountRepo.GetByUserAndProvider(user.ID, constants.AccountProviderCredential)
	if err != nil {
		return err
	}

	if err := s.userRepo.Transaction(func(tx *gorm.DB) error {
		txAccounts := s.accountRepo.WithTx(tx)
		if account == nil {
			created := &models.Account{
				UserID:            user.ID,
				Provider:          constants.AccountProviderCredential,
				ProviderAccountID: normalized,
				PasswordHash:      hash,
				ProviderEmail:     normalized,
			}
			if err := txAccounts.Create(created); err != nil {
				return err
			}
		} else if err := txAccounts.UpdatePasswordHash(account.ID, hash); err != nil {
			return err
		}

		// 验证码本身证明了邮箱所有权
		if user.EmailVerifiedAt == nil {
			now := time.Now()
			user.EmailVerifiedAt = &now
			if user.Status == constants.UserStatusPendingVerify {
				user.Status = constants.UserStatusActive
			}
			if err := s.userRepo.WithTx(tx).Update(user); err != nil {
				return err
			}
		}

		return s.securityLogSvc.RecordTx(tx, SecurityEventInput{
			UserID:    &user.ID,
			Event:     constants.SecurityEventPasswordReset,
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
			RequestID: meta.RequestID,
		})
	}); err != nil {
		return err
	}

	if err := s.sessionSvc.RevokeAllByUser(user.ID, constants.SessionRevokeReasonPasswordReset, 0); err != nil {
		logger.Errorw("password_reset_session_revoke_failed", "user_id", user.ID, "error", err)
		return err
	}
	s.dispatchSecurityAlert(user, constants.SecurityEventPasswordReset, meta)
	return nil
}

// SendVerifyCode 发送邮箱验证码（注册重发/找回密码）
func (s *UserAuthService) SendVerifyCode(email, purpose, locale string, captcha CaptchaVerifyPayload) error {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return err
	}

	var scene string
	switch strings.ToLower(strings.TrimSpace(purpose)) {
	case constants.VerifyPurposeRegister:
		purpose = constants.VerifyPurposeRegister
		scene = constants.CaptchaSceneRegisterSendCode
	case constants.VerifyPurposeReset:
		purpose = constants.VerifyPurposeReset
		scene = constants.CaptchaSceneResetSendCode
	default:
		return ErrInvalidVerifyPurpose
	}
	if err := s.captchaSvc.Verify(scene, captcha); err != nil {
		return err
	}

	user, err := s.userRepo.GetByEmail(normalized)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrNotFound
	}
	if purpose == constants.VerifyPurposeRegister && user.EmailVerifiedAt != nil {
		return ErrEmailExists
	}
	if strings.TrimSpace(locale) == "" {
		locale = user.Locale
	}
	return s.sendVerifyCode(normalized, purpose, locale)
}

// GetProfile 获取用户资料
func (s *UserAuthService) GetProfile(userID uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// UpdateProfile 更新用户资料
func (s *UserAuthService) UpdateProfile(userID uint, input UpdateProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}

	changed := false
	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, ErrProfileEmpty
		}
		user.DisplayName = name
		changed = true
	}
	if input.AvatarURL != nil {
		user.AvatarURL = strings.TrimSpace(*input.AvatarURL)
		changed = true
	}
	if input.Locale != nil {
		if locale := strings.TrimSpace(*input.Locale); locale != "" {
			user.Locale = locale
			changed = true
		}
	}
	if !changed {
		return user, nil
	}
	if err := s.userRepo.Update(user); err != nil {
		return nil, err
	}
	return user, nil
}

// ListSecurityLogs 列出该用户的安全审计记录
func (s *UserAuthService) ListSecurityLogs(userID uint, page, pageSize int) ([]models.SecurityLog, int64, error) {
	return s.securityLogSvc.ListByUser(userID, page, pageSize)
}

// ListLoginHistory 列出该用户的登录历史
func (s *UserAuthService) ListLoginHistory(userID uint, page, pageSize int) ([]models.LoginAttempt, int64, error) {
	return s.loginAttemptSvc.ListByUser(userID, page, pageSize)
}

// establishSession 创建会话并记录成功登录
func (s *UserAuthService) establishSession(user *models.User, provider, deviceFingerprint string, meta RequestMeta) (*LoginResult, error) {
	session, pair, err := s.sessionSvc.Create(SessionCreateInput{
		User:              user,
		DeviceFingerprint: deviceFingerprint,
		IPAddress:         meta.ClientIP,
		UserAgent:         meta.UserAgent,
	})
	if err != nil {
		s.recordLoginFailure(user.ID, user.Email, provider, constants.LoginFailReasonInternalError, meta)
		return nil, err
	}

	if err := s.loginAttemptSvc.Record(RecordLoginAttemptInput{
		UserID:    user.ID,
		Email:     user.Email,
		Provider:  provider,
		Status:    constants.LoginAttemptStatusSuccess,
		ClientIP:  meta.ClientIP,
		UserAgent: meta.UserAgent,
		RequestID: meta.RequestID,
	}); err != nil {
		logger.Warnw("login_attempt_record_failed", "user_id", user.ID, "error", err)
	}
	if err := s.userRepo.TouchLastLogin(user.ID, time.Now()); err != nil {
		logger.Warnw("touch_last_login_failed", "user_id", user.ID, "error", err)
	}
	return &LoginResult{User: user, Session: session, Tokens: pair}, nil
}

// recordLoginFailure 记录失败的登录尝试，落库失败仅告警
func (s *UserAuthService) recordLoginFailure(userID uint, email, provider, failReason string, meta RequestMeta) {
	if err := s.loginAttemptSvc.Record(RecordLoginAttemptInput{
		UserID:     userID,
		Email:      email,
		Provider:   provider,
		Status:     constants.LoginAttemptStatusFailed,
		FailReason: failReason,
		ClientIP:   meta.ClientIP,
		UserAgent:  meta.UserAgent,
		RequestID:  meta.RequestID,
	}); err != nil {
		logger.Warnw("login_attempt_record_failed", "email", email, "reason", failReason, "error", err)
	}
}

// oauthLoginFailReason 第三方登录失败原因归类
func oauthLoginFailReason(err error) string {
	switch {
	case errors.Is(err, ErrOAuthLinkRequired):
		return constants.LoginFailReasonOAuthLinkRequired
	case errors.Is(err, ErrAccountLocked):
		return constants.LoginFailReasonAccountLocked
	case errors.Is(err, ErrAccountSuspended):
		return constants.LoginFailReasonAccountSuspended
	case errors.Is(err, ErrInvalidEmail):
		return constants.LoginFailReasonInvalidEmail
	default:
		return constants.LoginFailReasonInternalError
	}
}

// verifyCode 校验最近一条验证码记录
func (s *UserAuthService) verifyCode(email, purpose, code string) error {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return ErrVerifyCodeInvalid
	}
	latest, err := s.codeRepo.GetLatest(email, purpose)
	if err != nil {
		return err
	}
	if latest == nil || latest.VerifiedAt != nil {
		return ErrVerifyCodeInvalid
	}
	if time.Now().After(latest.ExpiresAt) {
		return ErrVerifyCodeExpired
	}
	if latest.AttemptCount >= s.resolveMaxAttempts() {
		return ErrVerifyCodeAttemptsExceeded
	}
	if latest.Code != trimmed {
		if err := s.codeRepo.IncrementAttempt(latest.ID); err != nil {
			logger.Warnw("verify_code_attempt_increment_failed", "id", latest.ID, "error", err)
		}
		return ErrVerifyCodeInvalid
	}
	return s.codeRepo.MarkVerified(latest.ID, time.Now())
}

// sendVerifyCode 生成验证码并投递邮件，含发送频率限制
func (s *UserAuthService) sendVerifyCode(email, purpose, locale string) error {
	interval := time.Duration(s.resolveSendIntervalSeconds()) * time.Second
	latest, err := s.codeRepo.GetLatest(email, purpose)
	if err != nil {
		return err
	}
	if latest != nil && interval > 0 && time.Since(latest.SentAt) < interval {
		return ErrVerifyCodeTooFrequent
	}

	code, err := randomNumericCode(s.resolveCodeLength())
	if err != nil {
		return err
	}
	now := time.Now()
	record := &models.EmailVerifyCode{
		Email:     email,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: now.Add(time.Duration(s.resolveExpireMinutes()) * time.Minute),
		SentAt:    now,
	}
	if err := s.codeRepo.Create(record); err != nil {
		return err
	}

	s.dispatchVerifyCodeEmail(email, code, purpose, locale)
	return nil
}

// dispatchVerifyCodeEmail 验证码邮件投递：队列优先，未启用或入队失败时降级为同步发送
func (s *UserAuthService) dispatchVerifyCodeEmail(email, code, purpose, locale string) {
	if s.queueClient != nil && s.queueClient.Enabled() {
		err := s.queueClient.EnqueueVerifyCodeEmail(queue.VerifyCodeEmailPayload{
			Email:   email,
			Code:    code,
			Purpose: purpose,
			Locale:  locale,
		})
		if err == nil {
			return
		}
		logger.Warnw("verify_code_email_enqueue_failed", "email", email, "purpose", purpose, "error", err)
	}
	if err := s.emailSvc.SendVerifyCode(email, code, purpose, locale); err != nil {
		logger.Warnw("verify_code_email_send_failed", "email", email, "purpose", purpose, "error", err)
	}
}

// dispatchSecurityAlert 安全提醒邮件，失败仅告警不阻断主流程
func (s *UserAuthService) dispatchSecurityAlert(user *models.User, event string, meta RequestMeta) {
	if user == nil || user.Email == "" {
		return
	}
	if s.queueClient != nil && s.queueClient.Enabled() {
		err := s.queueClient.EnqueueSecurityAlertEmail(queue.SecurityAlertEmailPayload{
			Email:      user.Email,
			Event:      event,
			ClientIP:   meta.ClientIP,
			OccurredAt: time.Now().Unix(),
			Locale:     user.Locale,
		})
		if err == nil {
			return
		}
		logger.Warnw("security_alert_enqueue_failed", "user_id", user.ID, "event", event, "error", err)
	}
	if err := s.emailSvc.SendSecurityAlert(user.Email, SecurityAlertInput{
		Event:      event,
		ClientIP:   meta.ClientIP,
		OccurredAt: time.Now(),
	}, user.Locale); err != nil {
		logger.Warnw("security_alert_send_failed", "user_id", user.ID, "event", event, "error", err)
	}
}

// NormalizeEmail 规范化邮箱：去空白、小写化并做格式校验
func NormalizeEmail(email string) (string, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(trimmed), nil
}

// resolveNicknameFromEmail 从邮箱推导默认昵称
func resolveNicknameFromEmail(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

// randomNumericCode 生成指定位数的数字验证码
func randomNumericCode(length int) (string, error) {
	if length <= 0 {
		length = 6
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func (s *UserAuthService) verifyCodeConfig() config.VerifyCodeConfig {
	if s.cfg == nil {
		return config.VerifyCodeConfig{}
	}
	return s.cfg.Email.VerifyCode
}

func (s *UserAuthService) resolveExpireMinutes() int {
	if v := s.verifyCodeConfig().ExpireMinutes; v > 0 {
		return v
	}
	return 10
}

func (s *UserAuthService) resolveSendIntervalSeconds() int {
	if v := s.verifyCodeConfig().SendIntervalSeconds; v > 0 {
		return v
	}
	return 60
}

func (s *UserAuthService) resolveMaxAttempts() int {
	if v := s.verifyCodeConfig().MaxAttempts; v > 0 {
		return v
	}
	return 5
}

func (s *UserAuthService) resolveCodeLength() int {
	if v := s.verifyCodeConfig().Length; v > 0 {
		return v
	}
	return 6
}
