package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/oauth"
	"github.com/tasknest-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type authTestEnv struct {
	svc      *UserAuthService
	tokenSvc *TokenService
	db       *gorm.DB
}

func setupUserAuthTest(t *testing.T) *authTestEnv {
	return setupUserAuthTestWithOAuth(t, oauth.NewRegistry(nil))
}

func setupUserAuthTestWithOAuth(t *testing.T, registry *oauth.Registry) *authTestEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Account{}, &models.Session{},
		&models.LoginAttempt{}, &models.SecurityLog{}, &models.EmailVerifyCode{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{
		JWT: config.JWTConfig{
			SecretKey:           "auth-test-secret",
			AccessExpireMinutes: 15,
			RefreshExpireHours:  24,
		},
		Security: config.SecurityConfig{
			LoginLockout: config.LoginLockoutConfig{WindowMinutes: 15, MaxFailures: 5},
			PasswordPolicy: config.PasswordPolicyConfig{
				MinLength:     8,
				RequireUpper:  true,
				RequireLower:  true,
				RequireNumber: true,
			},
		},
		Email: config.EmailConfig{
			VerifyCode: config.VerifyCodeConfig{
				ExpireMinutes:       10,
				SendIntervalSeconds: 60,
				MaxAttempts:         5,
				Length:              6,
			},
		},
		Captcha: config.CaptchaConfig{Provider: constants.CaptchaProviderNone},
	}

	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	codeRepo := repository.NewEmailVerifyCodeRepository(db)
	tokenSvc := NewTokenService(cfg)
	sessionSvc := NewSessionService(repository.NewSessionRepository(db), tokenSvc)
	loginAttemptSvc := NewLoginAttemptService(repository.NewLoginAttemptRepository(db), cfg.Security.LoginLockout)
	securityLogSvc := NewSecurityLogService(repository.NewSecurityLogRepository(db))
	linkingSvc := NewAccountLinkingService(userRepo, accountRepo, securityLogSvc, cfg.OAuth.TrustedProviders)
	captchaSvc := NewCaptchaService(cfg.Captcha)
	emailSvc := NewEmailService(&cfg.Email)

	svc := NewUserAuthService(cfg,
		userRepo, accountRepo, codeRepo,
		tokenSvc, sessionSvc, loginAttemptSvc, securityLogSvc,
		linkingSvc, registry, captchaSvc, emailSvc, nil)
	return &authTestEnv{svc: svc, tokenSvc: tokenSvc, db: db}
}

// latestVerifyCode 从库里捞最近一条验证码，测试环境没有真实邮箱收件箱
func latestVerifyCode(t *testing.T, db *gorm.DB, email, purpose string) string {
	t.Helper()
	var record models.EmailVerifyCode
	if err := db.Where("email = ? AND purpose = ?", email, purpose).
		Order("id DESC").First(&record).Error; err != nil {
		t.Fatalf("load verify code failed: %v", err)
	}
	return record.Code
}

func registerActiveUser(t *testing.T, env *authTestEnv, email, password string) *models.User {
	t.Helper()
	if _, err := env.svc.Register(RegisterInput{
		Email:             email,
		Password:          password,
		AgreementAccepted: true,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	code := latestVerifyCode(t, env.db, email, constants.VerifyPurposeRegister)
	if err := env.svc.VerifyEmail(email, code, RequestMeta{}); err != nil {
		t.Fatalf("verify email failed: %v", err)
	}
	var user models.User
	if err := env.db.Where("email = ?", email).First(&user).Error; err != nil {
		t.Fatalf("load user failed: %v", err)
	}
	return &user
}

func TestRegisterValidation(t *testing.T) {
	env := setupUserAuthTest(t)

	if _, err := env.svc.Register(RegisterInput{
		Email:    "noagree@example.com",
		Password: "Sunny#Day42",
	}); !errors.Is(err, ErrAgreementRequired) {
		t.Fatalf("missing agreement should be rejected, got %v", err)
	}

	if _, err := env.svc.Register(RegisterInput{
		Email:             "not-an-email",
		Password:          "Sunny#Day42",
		AgreementAccepted: true,
	}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("malformed email should be rejected, got %v", err)
	}

	if _, err := env.svc.Register(RegisterInput{
		Email:             "weak@example.com",
		Password:          "short",
		AgreementAccepted: true,
	}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password should be rejected, got %v", err)
	}
}

func TestRegisterCreatesPendingUser(t *testing.T) {
	env := setupUserAuthTest(t)

	user, err := env.svc.Register(RegisterInput{
		Email:             "Alice@Example.COM",
		Password:          "Sunny#Day42",
		AgreementAccepted: true,
		Meta:              RequestMeta{ClientIP: "203.0.113.10"},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email should be normalized, got %s", user.Email)
	}
	if user.DisplayName != "alice" {
		t.Fatalf("display name should default to the mailbox local part, got %s", user.DisplayName)
	}
	if user.Status != constants.UserStatusPendingVerify || user.EmailVerifiedAt != nil {
		t.Fatalf("new user must wait for verification, status=%s", user.Status)
	}

	var account models.Account
	if err := env.db.Where("user_id = ? AND provider = ?",
		user.ID, constants.AccountProviderCredential).First(&account).Error; err != nil {
		t.Fatalf("credential account missing: %v", err)
	}
	if !VerifyPassword(account.PasswordHash, "Sunny#Day42") {
		t.Fatal("stored hash should match the registered password")
	}

	if code := latestVerifyCode(t, env.db, "alice@example.com", constants.VerifyPurposeRegister); len(code) != 6 {
		t.Fatalf("verify code should be issued, got %q", code)
	}
	if countSecurityEvents(t, env.db, constants.SecurityEventRegister) != 1 {
		t.Fatal("registration should be audited")
	}

	if _, err := env.svc.Register(RegisterInput{
		Email:             "alice@example.com",
		Password:          "Sunny#Day42",
		AgreementAccepted: true,
	}); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("duplicate email should be rejected, got %v", err)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	env := setupUserAuthTest(t)
	const email = "verify@example.com"
	if _, err := env.svc.Register(RegisterInput{
		Email: email, Password: "Sunny#Day42", AgreementAccepted: true,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := env.svc.VerifyEmail(email, "000000", RequestMeta{}); !errors.Is(err, ErrVerifyCodeInvalid) {
		t.Fatalf("wrong code should fail, got %v", err)
	}
	var record models.EmailVerifyCode
	if err := env.db.Where("email = ?", email).Order("id DESC").First(&record).Error; err != nil {
		t.Fatalf("load verify code failed: %v", err)
	}
	if record.AttemptCount != 1 {
		t.Fatalf("failed attempt should be counted, got %d", record.AttemptCount)
	}

	if err := env.svc.VerifyEmail(email, record.Code, RequestMeta{}); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	var user models.User
	if err := env.db.Where("email = ?", email).First(&user).Error; err != nil {
		t.Fatalf("load user failed: %v", err)
	}
	if user.Status != constants.UserStatusActive || user.EmailVerifiedAt == nil {
		t.Fatalf("verification should activate the user, status=%s", user.Status)
	}
	if countSecurityEvents(t, env.db, constants.SecurityEventEmailVerified) != 1 {
		t.Fatal("verification should be audited")
	}

	// 已验证用户重复提交按成功处理
	if err := env.svc.VerifyEmail(email, "whatever", RequestMeta{}); err != nil {
		t.Fatalf("verified user should be a no-op, got %v", err)
	}

	if err := env.svc.VerifyEmail("ghost@example.com", "123456", RequestMeta{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown email should report not found, got %v", err)
	}
}

func TestLoginFailures(t *testing.T) {
	env := setupUserAuthTest(t)

	if _, err := env.svc.Login(LoginInput{Email: "not-an-email", Password: "x"}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("malformed email should be rejected, got %v", err)
	}

	// 不存在的账号与密码错误统一口径，防止邮箱枚举
	if _, err := env.svc.Login(LoginInput{
		Email: "ghost@example.com", Password: "Sunny#Day42",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account should look like bad credentials, got %v", err)
	}

	registerActiveUser(t, env, "real@example.com", "Sunny#Day42")
	if _, err := env.svc.Login(LoginInput{
		Email: "real@example.com", Password: "Wrong#Pass1",
	}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password should be rejected, got %v", err)
	}

	if _, err := env.svc.Register(RegisterInput{
		Email: "pending@example.com", Password: "Sunny#Day42", AgreementAccepted: true,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := env.svc.Login(LoginInput{
		Email: "pending@example.com", Password: "Sunny#Day42",
	}); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("unverified user cannot log in, got %v", err)
	}

	var failures int64
	if err := env.db.Model(&models.LoginAttempt{}).
		Where("status = ?", constants.LoginAttemptStatusFailed).
		Count(&failures).Error; err != nil {
		t.Fatalf("count attempts failed: %v", err)
	}
	if failures != 4 {
		t.Fatalf("every failure should be recorded, got %d", failures)
	}
}

func TestLoginSuccessEstablishesSession(t *testing.T) {
	env := setupUserAuthTest(t)
	user := registerActiveUser(t, env, "login@example.com", "Sunny#Day42")

	result, err := env.svc.Login(LoginInput{
		Email:             "login@example.com",
		Password:          "Sunny#Day42",
		DeviceFingerprint: "fp-phone",
		Meta:              RequestMeta{ClientIP: "198.51.100.3", UserAgent: "tasknest-android/3.0"},
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.Session == nil || result.Session.UserID != user.ID {
		t.Fatalf("session should belong to the user: %+v", result.Session)
	}

	claims, err := env.tokenSvc.VerifyAccessToken(result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify access token failed: %v", err)
	}
	if claims.UserID != user.ID || claims.SessionID != result.Session.ID {
		t.Fatalf("unexpected access claims: %+v", claims)
	}

	var attempt models.LoginAttempt
	if err := env.db.Where("user_id = ? AND status = ?",
		user.ID, constants.LoginAttemptStatusSuccess).First(&attempt).Error; err != nil {
		t.Fatalf("success attempt missing: %v", err)
	}
	if attempt.Provider != constants.AccountProviderCredential || attempt.ClientIP != "198.51.100.3" {
		t.Fatalf("unexpected attempt row: %+v", attempt)
	}

	profile, err := env.svc.GetProfile(user.ID)
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if profile.LastLoginAt == nil {
		t.Fatal("last login time should be touched")
	}
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	env := setupUserAuthTest(t)
	registerActiveUser(t, env, "lockout@example.com", "Sunny#Day42")

	for i := 0; i < 5; i++ {
		if _, err := env.svc.Login(LoginInput{
			Email: "lockout@example.com", Password: "Wrong#Pass1",
		}); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: want invalid credentials, got %v", i, err)
		}
	}

	// 窗口内失败达到上限后，即使密码正确也拒绝
	if _, err := env.svc.Login(LoginInput{
		Email: "lockout@example.com", Password: "Sunny#Day42",
	}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked out account must be rejected, got %v", err)
	}

	var lockedAttempts int64
	if err := env.db.Model(&models.LoginAttempt{}).
		Where("email = ? AND fail_reason = ?", "lockout@example.com", constants.LoginFailReasonAccountLocked).
		Count(&lockedAttempts).Error; err != nil {
		t.Fatalf("count attempts failed: %v", err)
	}
	if lockedAttempts != 1 {
		t.Fatalf("lockout rejection should be recorded, got %d", lockedAttempts)
	}
}

func TestLoginRejectsBlockedStatuses(t *testing.T) {
	env := setupUserAuthTest(t)
	user := registerActiveUser(t, env, "blocked@example.com", "Sunny#Day42")

	if err := env.db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("status", constants.UserStatusLocked).Error; err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if _, err := env.svc.Login(LoginInput{
		Email: "blocked@example.com", Password: "Sunny#Day42",
	}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked user must be rejected, got %v", err)
	}

	if err := env.db.Model(&models.User{}).Where("id = ?", user.ID).
		Update("status", constants.UserStatusSuspended).Error; err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if _, err := env.svc.Login(LoginInput{
		Email: "blocked@example.com", Password: "Sunny#Day42",
	}); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("suspended user must be rejected, got %v", err)
	}

	var suspended int64
	if err := env.db.Model(&models.LoginAttempt{}).
		Where("fail_reason = ?", constants.LoginFailReasonAccountSuspended).
		Count(&suspended).Error; err != nil {
		t.Fatalf("count attempts failed: %v", err)
	}
	if suspended != 1 {
		t.Fatalf("suspension rejection should be recorded, got %d", suspended)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	env := setupUserAuthTest(t)
	registerActiveUser(t, env, "rotate@example.com", "Sunny#Day42")
	login, err := env.svc.Login(LoginInput{Email: "rotate@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	second, err := env.svc.RefreshTokens(login.Tokens.RefreshToken, RequestMeta{})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if second.Tokens.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("refresh must rotate the token")
	}
	claims, err := env.tokenSvc.VerifyRefreshToken(second.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("verify rotated token failed: %v", err)
	}
	if claims.TokenVersion != 2 || claims.SessionID != login.Session.ID {
		t.Fatalf("unexpected rotated claims: %+v", claims)
	}

	// 轮换链可以继续推进
	third, err := env.svc.RefreshTokens(second.Tokens.RefreshToken, RequestMeta{})
	if err != nil {
		t.Fatalf("second refresh failed: %v", err)
	}
	claims, err = env.tokenSvc.VerifyRefreshToken(third.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("verify third token failed: %v", err)
	}
	if claims.TokenVersion != 3 {
		t.Fatalf("version should advance per rotation, got %d", claims.TokenVersion)
	}
	if countSecurityEvents(t, env.db, constants.SecurityEventTokenRefresh) != 2 {
		t.Fatal("every refresh should be audited")
	}
}

func TestRefreshTokenReuseRevokesFamily(t *testing.T) {
	env := setupUserAuthTest(t)
	user := registerActiveUser(t, env, "reuse@example.com", "Sunny#Day42")
	login, err := env.svc.Login(LoginInput{Email: "reuse@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	rotated, err := env.svc.RefreshTokens(login.Tokens.RefreshToken, RequestMeta{})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	// 已被轮换掉的令牌再次呈上即视为重放
	if _, err := env.svc.RefreshTokens(login.Tokens.RefreshToken, RequestMeta{ClientIP: "203.0.113.9"}); !errors.Is(err, ErrTokenReuseDetected) {
		t.Fatalf("replayed token must trip reuse detection, got %v", err)
	}

	// 整个令牌族被吊销，最新一代令牌同样失效
	if _, err := env.svc.RefreshTokens(rotated.Tokens.RefreshToken, RequestMeta{}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("family revocation should kill the latest token, got %v", err)
	}

	sessions, err := env.svc.ListSessions(user.ID)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("no session may survive reuse detection, got %d", len(sessions))
	}
	if countSecurityEvents(t, env.db, constants.SecurityEventSuspicious) != 1 {
		t.Fatal("reuse should leave a suspicious-activity record")
	}
}

func TestRefreshTokenEdgeCases(t *testing.T) {
	env := setupUserAuthTest(t)
	registerActiveUser(t, env, "edge@example.com", "Sunny#Day42")

	if _, err := env.svc.RefreshTokens("garbage.token.value", RequestMeta{}); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("unparseable token should read as expired, got %v", err)
	}

	login, err := env.svc.Login(LoginInput{Email: "edge@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := env.db.Delete(&models.Session{}, login.Session.ID).Error; err != nil {
		t.Fatalf("delete session failed: %v", err)
	}
	if _, err := env.svc.RefreshTokens(login.Tokens.RefreshToken, RequestMeta{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("vanished session should report not found, got %v", err)
	}

	again, err := env.svc.Login(LoginInput{Email: "edge@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("second login failed: %v", err)
	}
	if err := env.svc.Logout(again.Session.ID, RequestMeta{}); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if _, err := env.svc.RefreshTokens(again.Tokens.RefreshToken, RequestMeta{}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("logged-out session must not refresh, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	env := setupUserAuthTest(t)
	registerActiveUser(t, env, "logout@example.com", "Sunny#Day42")
	login, err := env.svc.Login(LoginInput{Email: "logout@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.svc.Logout(login.Session.ID, RequestMeta{}); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if err := env.svc.Logout(login.Session.ID, RequestMeta{}); err != nil {
		t.Fatalf("repeated logout should be a no-op, got %v", err)
	}
	if err := env.svc.Logout(login.Session.ID+100, RequestMeta{}); err != nil {
		t.Fatalf("unknown session logout should be a no-op, got %v", err)
	}

	if countSecurityEvents(t, env.db, constants.SecurityEventLogout) != 1 {
		t.Fatal("only the effective logout should be audited")
	}
}

func TestRevokeOtherSessionsAndLogoutAll(t *testing.T) {
	env := setupUserAuthTest(t)
	user := registerActiveUser(t, env, "devices@example.com", "Sunny#Day42")

	var current *LoginResult
	for i := 0; i < 3; i++ {
		result, err := env.svc.Login(LoginInput{Email: "devices@example.com", Password: "Sunny#Day42"})
		if err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
		current = result
	}

	if err := env.svc.RevokeOtherSessions(user.ID, current.Session.ID, RequestMeta{}); err != nil {
		t.Fatalf("revoke others failed: %v", err)
	}
	sessions, err := env.svc.ListSessions(user.ID)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != current.Session.ID {
		t.Fatalf("only the current session should remain, got %+v", sessions)
	}

	if err := env.svc.LogoutAll(user.ID, RequestMeta{}); err != nil {
		t.Fatalf("logout all failed: %v", err)
	}
	sessions, err = env.svc.ListSessions(user.ID)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("logout all should clear every session, got %d", len(sessions))
	}

	if countSecurityEvents(t, env.db, constants.SecurityEventSessionRevokedAll) != 1 ||
		countSecurityEvents(t, env.db, constants.SecurityEventLogoutAll) != 1 {
		t.Fatal("both bulk operations should be audited")
	}
}

func TestRevokeSessionOwnership(t *testing.T) {
	env := setupUserAuthTest(t)
	owner := registerActiveUser(t, env, "owner@example.com", "Sunny#Day42")
	intruder := registerActiveUser(t, env, "intruder@example.com", "Sunny#Day42")

	login, err := env.svc.Login(LoginInput{Email: "owner@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	// 他人会话对外视同不存在
	if err := env.svc.RevokeSession(intruder.ID, login.Session.ID, RequestMeta{}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign session must be invisible, got %v", err)
	}

	if err := env.svc.RevokeSession(owner.ID, login.Session.ID, RequestMeta{}); err != nil {
		t.Fatalf("revoke own session failed: %v", err)
	}
	if err := env.svc.RevokeSession(owner.ID, login.Session.ID, RequestMeta{}); err != nil {
		t.Fatalf("repeated revoke should be a no-op, got %v", err)
	}

	sessions, err := env.svc.ListSessions(owner.ID)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("revoked session should disappear, got %d", len(sessions))
	}
}

func TestChangePasswordFlow(t *testing.T) {
	env := setupUserAuthTest(t)
	user := registerActiveUser(t, env, "changepw@example.com", "Sunny#Day42")

	other, err := env.svc.Login(LoginInput{Email: "changepw@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	current, err := env.svc.Login(LoginInput{Email: "changepw@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.svc.ChangePassword(user.ID, current.Session.ID, "Wrong#Pass1", "Rainy#Day43", RequestMeta{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong old password should be rejected, got %v", err)
	}
	if err := env.svc.ChangePassword(user.ID, current.Session.ID, "Sunny#Day42", "short", RequestMeta{}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak new password should be rejected, got %v", err)
	}

	if err := env.svc.ChangePassword(user.ID, current.Session.ID, "Sunny#Day42", "Rainy#Day43", RequestMeta{}); err != nil {
		t.Fatalf("change password failed: %v", err)
	}

	// 当前会话保留，其它设备全部下线
	sessions, err := env.svc.ListSessions(user.ID)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != current.Session.ID {
		t.Fatalf("only the current session should survive, got %+v", sessions)
	}
	if _, err := env.svc.RefreshTokens(other.Tokens.RefreshToken, RequestMeta{}); !errors.Is(err, ErrSessionRevoked) {
		t.Fatalf("other device tokens should be dead, got %v", err)
	}

	if _, err := env.svc.Login(LoginInput{Email: "changepw@example.com", Password: "Sunny#Day42"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := env.svc.Login(LoginInput{Email: "changepw@example.com", Password: "Rainy#Day43"}); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
	if countSecurityEvents(t, env.db, constants.SecurityEventPasswordChanged) != 1 {
		t.Fatal("password change should be audited")
	}
}

func TestResetPasswordFlow(t *testing.T) {
	env := setupUserAuthTest(t)
	user := registerActiveUser(t, env, "resetpw@example.com", "Sunny#Day42")
	if _, err := env.svc.Login(LoginInput{Email: "resetpw@example.com", Password: "Sunny#Day42"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if err := env.svc.SendVerifyCode("resetpw@example.com", constants.VerifyPurposeReset, "", CaptchaVerifyPayload{}); err != nil {
		t.Fatalf("send reset code failed: %v", err)
	}
	if err := env.svc.SendVerifyCode("resetpw@example.com", constants.VerifyPurposeReset, "", CaptchaVerifyPayload{}); !errors.Is(err, ErrVerifyCodeTooFrequent) {
		t.Fatalf("immediate resend should be throttled, got %v", err)
	}

	if err := env.svc.ResetPassword("resetpw@example.com", "000000", "Rainy#Day43", RequestMeta{}); !errors.Is(err, ErrVerifyCodeInvalid) {
		t.Fatalf("wrong code should be rejected, got %v", err)
	}

	code := latestVerifyCode(t, env.db, "resetpw@example.com", constants.VerifyPurposeReset)
	if err := env.svc.ResetPassword("resetpw@example.com", code, "Rainy#Day43", RequestMeta{}); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	// 重置后全部会话下线，新密码立即生效
	sessions, err := env.svc.ListSessions(user.ID)
	if err != nil {
		t.Fatalf("list sessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("reset should revoke every session, got %d", len(sessions))
	}
	if _, err := env.svc.Login(LoginInput{Email: "resetpw@example.com", Password: "Rainy#Day43"}); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
	if countSecurityEvents(t, env.db, constants.SecurityEventPasswordReset) != 1 {
		t.Fatal("password reset should be audited")
	}

	if err := env.svc.ResetPassword("ghost@example.com", "123456", "Rainy#Day43", RequestMeta{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown email should report not found, got %v", err)
	}
}

func TestResetPasswordCreatesCredentialForOAuthUser(t *testing.T) {
	env := setupUserAuthTest(t)
	now := time.Now()
	user := &models.User{
		Email:           "oauthonly@example.com",
		DisplayName:     "oauth only",
		Status:          constants.UserStatusActive,
		EmailVerifiedAt: &now,
	}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if err := env.db.Create(&models.Account{
		UserID:            user.ID,
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-reset",
	}).Error; err != nil {
		t.Fatalf("create account failed: %v", err)
	}

	if err := env.svc.SendVerifyCode("oauthonly@example.com", constants.VerifyPurposeReset, "", CaptchaVerifyPayload{}); err != nil {
		t.Fatalf("send reset code failed: %v", err)
	}
	code := latestVerifyCode(t, env.db, "oauthonly@example.com", constants.VerifyPurposeReset)
	if err := env.svc.ResetPassword("oauthonly@example.com", code, "Rainy#Day43", RequestMeta{}); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	// 纯第三方用户由重置流程补建凭证账号
	if _, err := env.svc.Login(LoginInput{Email: "oauthonly@example.com", Password: "Rainy#Day43"}); err != nil {
		t.Fatalf("credential login should now work: %v", err)
	}
}

func TestSendVerifyCodePurposeRules(t *testing.T) {
	env := setupUserAuthTest(t)
	registerActiveUser(t, env, "rules@example.com", "Sunny#Day42")

	if err := env.svc.SendVerifyCode("rules@example.com", "magic-link", "", CaptchaVerifyPayload{}); !errors.Is(err, ErrInvalidVerifyPurpose) {
		t.Fatalf("unsupported purpose should be rejected, got %v", err)
	}
	if err := env.svc.SendVerifyCode("ghost@example.com", constants.VerifyPurposeRegister, "", CaptchaVerifyPayload{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown email should report not found, got %v", err)
	}
	// 已验证用户不再需要注册验证码
	if err := env.svc.SendVerifyCode("rules@example.com", constants.VerifyPurposeRegister, "", CaptchaVerifyPayload{}); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("verified user register resend should conflict, got %v", err)
	}

	// 注册后立即重发撞上发送间隔
	if _, err := env.svc.Register(RegisterInput{
		Email: "fresh@example.com", Password: "Sunny#Day42", AgreementAccepted: true,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := env.svc.SendVerifyCode("fresh@example.com", constants.VerifyPurposeRegister, "", CaptchaVerifyPayload{}); !errors.Is(err, ErrVerifyCodeTooFrequent) {
		t.Fatalf("resend inside the interval should be throttled, got %v", err)
	}
}

func TestVerifyCodeAttemptAndExpiryLimits(t *testing.T) {
	env := setupUserAuthTest(t)
	const email = "limits@example.com"
	if _, err := env.svc.Register(RegisterInput{
		Email: email, Password: "Sunny#Day42", AgreementAccepted: true,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	code := latestVerifyCode(t, env.db, email, constants.VerifyPurposeRegister)

	for i := 0; i < 5; i++ {
		if err := env.svc.VerifyEmail(email, "999999", RequestMeta{}); !errors.Is(err, ErrVerifyCodeInvalid) {
			t.Fatalf("attempt %d: want invalid, got %v", i, err)
		}
	}
	// 错误次数耗尽后正确验证码也不再被接受
	if err := env.svc.VerifyEmail(email, code, RequestMeta{}); !errors.Is(err, ErrVerifyCodeAttemptsExceeded) {
		t.Fatalf("exhausted code must be rejected, got %v", err)
	}

	if _, err := env.svc.Register(RegisterInput{
		Email: "expired@example.com", Password: "Sunny#Day42", AgreementAccepted: true,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	expiredCode := latestVerifyCode(t, env.db, "expired@example.com", constants.VerifyPurposeRegister)
	if err := env.db.Model(&models.EmailVerifyCode{}).
		Where("email = ?", "expired@example.com").
		Update("expires_at", time.Now().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("backdate code failed: %v", err)
	}
	if err := env.svc.VerifyEmail("expired@example.com", expiredCode, RequestMeta{}); !errors.Is(err, ErrVerifyCodeExpired) {
		t.Fatalf("expired code must be rejected, got %v", err)
	}
}

// newOAuthTestServer 模拟 Google tokeninfo 与 Kakao 用户信息接口
func newOAuthTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/google", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("id_token") {
		case "google-existing":
			writeJSON(w, map[string]interface{}{
				"sub": "google-sub-10", "email": "member@example.com",
				"email_verified": "true", "name": "Member",
			})
		case "google-fresh":
			writeJSON(w, map[string]interface{}{
				"sub": "google-sub-11", "email": "newcomer@example.com",
				"email_verified": "true", "name": "Newcomer",
			})
		default:
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]interface{}{"error": "invalid_token"})
		}
	})
	mux.HandleFunc("/kakao", func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		switch token {
		case "kakao-collision":
			writeJSON(w, map[string]interface{}{
				"id": 99001,
				"kakao_account": map[string]interface{}{
					"email": "member@example.com", "is_email_verified": true, "is_email_valid": true,
					"profile": map[string]interface{}{"nickname": "회원"},
				},
			})
		case "kakao-fresh":
			writeJSON(w, map[string]interface{}{
				"id": 99002,
				"kakao_account": map[string]interface{}{
					"email": "kakaoer@example.com", "is_email_verified": true, "is_email_valid": true,
					"profile": map[string]interface{}{"nickname": "kakaoer"},
				},
			})
		default:
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]interface{}{"msg": "invalid token", "code": -401})
		}
	})
	return httptest.NewServer(mux)
}

func newOAuthTestRegistry(server *httptest.Server) *oauth.Registry {
	return oauth.NewRegistry(&config.OAuthConfig{
		Google: config.OAuthProviderConfig{Enabled: true, UserInfoURL: server.URL + "/google"},
		Kakao:  config.OAuthProviderConfig{Enabled: true, UserInfoURL: server.URL + "/kakao"},
	})
}

func TestOAuthLoginFlows(t *testing.T) {
	server := newOAuthTestServer(t)
	defer server.Close()
	env := setupUserAuthTestWithOAuth(t, newOAuthTestRegistry(server))
	ctx := context.Background()

	user := registerActiveUser(t, env, "member@example.com", "Sunny#Day42")

	// 可信平台 + 平台已核实邮箱：自动关联并直接建会话
	result, err := env.svc.OAuthLogin(ctx, OAuthLoginInput{Provider: "google", Token: "google-existing"})
	if err != nil {
		t.Fatalf("google login failed: %v", err)
	}
	if result.User.ID != user.ID {
		t.Fatalf("should log into the linked user, want %d got %d", user.ID, result.User.ID)
	}
	if result.Session == nil || result.Tokens == nil {
		t.Fatal("oauth login should establish a session")
	}

	// 不可信平台撞上已有邮箱：拒绝并要求手动绑定
	if _, err := env.svc.OAuthLogin(ctx, OAuthLoginInput{Provider: "kakao", Token: "kakao-collision"}); !errors.Is(err, ErrOAuthLinkRequired) {
		t.Fatalf("untrusted provider should require manual link, got %v", err)
	}
	var linkRequired int64
	if err := env.db.Model(&models.LoginAttempt{}).
		Where("fail_reason = ?", constants.LoginFailReasonOAuthLinkRequired).
		Count(&linkRequired).Error; err != nil {
		t.Fatalf("count attempts failed: %v", err)
	}
	if linkRequired != 1 {
		t.Fatalf("link-required rejection should be recorded, got %d", linkRequired)
	}

	// 全新邮箱的不可信平台身份允许直接注册
	fresh, err := env.svc.OAuthLogin(ctx, OAuthLoginInput{Provider: "kakao", Token: "kakao-fresh"})
	if err != nil {
		t.Fatalf("kakao register failed: %v", err)
	}
	if fresh.User.Email != "kakaoer@example.com" || fresh.User.Status != constants.UserStatusActive {
		t.Fatalf("unexpected registered user: %+v", fresh.User)
	}

	if _, err := env.svc.OAuthLogin(ctx, OAuthLoginInput{Provider: "github", Token: "x"}); !errors.Is(err, ErrOAuthProviderUnknown) {
		t.Fatalf("unsupported provider should be rejected, got %v", err)
	}
	if _, err := env.svc.OAuthLogin(ctx, OAuthLoginInput{Provider: "naver", Token: "x"}); !errors.Is(err, ErrOAuthProviderUnknown) {
		t.Fatalf("disabled provider should be rejected, got %v", err)
	}

	if _, err := env.svc.OAuthLogin(ctx, OAuthLoginInput{Provider: "google", Token: "bad-token"}); !errors.Is(err, ErrOAuthTokenInvalid) {
		t.Fatalf("rejected token should map to invalid, got %v", err)
	}
	var tokenInvalid int64
	if err := env.db.Model(&models.LoginAttempt{}).
		Where("fail_reason = ?", constants.LoginFailReasonOAuthTokenInvalid).
		Count(&tokenInvalid).Error; err != nil {
		t.Fatalf("count attempts failed: %v", err)
	}
	if tokenInvalid != 1 {
		t.Fatalf("token rejection should be recorded, got %d", tokenInvalid)
	}
}

func TestLinkAndUnlinkOAuthAccounts(t *testing.T) {
	server := newOAuthTestServer(t)
	defer server.Close()
	env := setupUserAuthTestWithOAuth(t, newOAuthTestRegistry(server))
	ctx := context.Background()

	user := registerActiveUser(t, env, "linker@example.com", "Sunny#Day42")

	account, err := env.svc.LinkOAuthAccount(ctx, user.ID, "google", "google-fresh", RequestMeta{})
	if err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if account.Provider != constants.AccountProviderGoogle || account.ProviderAccountID != "google-sub-11" {
		t.Fatalf("unexpected linked account: %+v", account)
	}

	accounts, err := env.svc.ListLinkedAccounts(user.ID)
	if err != nil {
		t.Fatalf("list accounts failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("credential plus google expected, got %d", len(accounts))
	}

	if _, err := env.svc.LinkOAuthAccount(ctx, user.ID, "google", "bad-token", RequestMeta{}); !errors.Is(err, ErrOAuthTokenInvalid) {
		t.Fatalf("bad token should fail linking, got %v", err)
	}

	if err := env.svc.UnlinkOAuthAccount(user.ID, "google", RequestMeta{}); err != nil {
		t.Fatalf("unlink failed: %v", err)
	}
	accounts, err = env.svc.ListLinkedAccounts(user.ID)
	if err != nil {
		t.Fatalf("list accounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Provider != constants.AccountProviderCredential {
		t.Fatalf("only the credential account should remain, got %+v", accounts)
	}

	// 仅剩一条登录方式时不允许解绑
	if err := env.svc.UnlinkOAuthAccount(user.ID, "credential", RequestMeta{}); !errors.Is(err, ErrCannotUnlinkLastAccount) {
		t.Fatalf("last account must not be unlinkable, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	env := setupUserAuthTest(t)
	user := registerActiveUser(t, env, "profile@example.com", "Sunny#Day42")

	if _, err := env.svc.GetProfile(user.ID + 100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user should report not found, got %v", err)
	}
	if _, err := env.svc.UpdateProfile(user.ID+100, UpdateProfileInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user should report not found, got %v", err)
	}

	unchanged, err := env.svc.UpdateProfile(user.ID, UpdateProfileInput{})
	if err != nil {
		t.Fatalf("empty update failed: %v", err)
	}
	if unchanged.DisplayName != "profile" {
		t.Fatalf("empty update must not change anything, got %s", unchanged.DisplayName)
	}

	blank := "   "
	if _, err := env.svc.UpdateProfile(user.ID, UpdateProfileInput{DisplayName: &blank}); !errors.Is(err, ErrProfileEmpty) {
		t.Fatalf("blank display name should be rejected, got %v", err)
	}

	name := "  Night Owl  "
	avatar := "https://cdn.example.com/a.png"
	emptyLocale := ""
	updated, err := env.svc.UpdateProfile(user.ID, UpdateProfileInput{
		DisplayName: &name,
		AvatarURL:   &avatar,
		Locale:      &emptyLocale,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.DisplayName != "Night Owl" || updated.AvatarURL != avatar {
		t.Fatalf("update not applied: %+v", updated)
	}

	profile, err := env.svc.GetProfile(user.ID)
	if err != nil {
		t.Fatalf("get profile failed: %v", err)
	}
	if profile.DisplayName != "Night Owl" {
		t.Fatalf("update should persist, got %s", profile.DisplayName)
	}

	locale := "ko-KR"
	updated, err = env.svc.UpdateProfile(user.ID, UpdateProfileInput{Locale: &locale})
	if err != nil {
		t.Fatalf("locale update failed: %v", err)
	}
	if updated.Locale != "ko-KR" {
		t.Fatalf("locale not applied, got %s", updated.Locale)
	}
}

func TestListSecurityLogsAndLoginHistory(t *testing.T) {
	env := setupUserAuthTest(t)
	user := registerActiveUser(t, env, "history@example.com", "Sunny#Day42")
	login, err := env.svc.Login(LoginInput{Email: "history@example.com", Password: "Sunny#Day42"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := env.svc.Logout(login.Session.ID, RequestMeta{}); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	logs, total, err := env.svc.ListSecurityLogs(user.ID, 1, 10)
	if err != nil {
		t.Fatalf("list security logs failed: %v", err)
	}
	// 注册、邮箱验证、登出各一条
	if total != 3 || len(logs) != 3 {
		t.Fatalf("want 3 audit records, got total=%d len=%d", total, len(logs))
	}
	if logs[0].Event != constants.SecurityEventLogout {
		t.Fatalf("records should be newest first, got %s", logs[0].Event)
	}

	history, total, err := env.svc.ListLoginHistory(user.ID, 1, 10)
	if err != nil {
		t.Fatalf("list login history failed: %v", err)
	}
	if total != 1 || len(history) != 1 || history[0].Status != constants.LoginAttemptStatusSuccess {
		t.Fatalf("want the single successful login, got total=%d %+v", total, history)
	}
}
