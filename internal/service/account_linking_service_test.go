package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/oauth"
	"github.com/tasknest-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupAccountLinkingTest(t *testing.T) (*AccountLinkingService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Account{}, &models.SecurityLog{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	securityLogSvc := NewSecurityLogService(repository.NewSecurityLogRepository(db))
	return NewAccountLinkingService(userRepo, accountRepo, securityLogSvc, nil), db
}

func createLinkTestUser(t *testing.T, db *gorm.DB, email, status string, verified bool) *models.User {
	t.Helper()
	user := &models.User{
		Email:       email,
		DisplayName: resolveNicknameFromEmail(email),
		Status:      status,
	}
	if verified {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func createLinkTestAccount(t *testing.T, db *gorm.DB, userID uint, provider, sub string) *models.Account {
	t.Helper()
	account := &models.Account{
		UserID:            userID,
		Provider:          provider,
		ProviderAccountID: sub,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("create account failed: %v", err)
	}
	return account
}

func countSecurityEvents(t *testing.T, db *gorm.DB, event string) int64 {
	t.Helper()
	var total int64
	if err := db.Model(&models.SecurityLog{}).Where("event = ?", event).Count(&total).Error; err != nil {
		t.Fatalf("count security logs failed: %v", err)
	}
	return total
}

func TestResolveOAuthLoginExistingBinding(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)
	user := createLinkTestUser(t, db, "bound@example.com", constants.UserStatusActive, true)
	createLinkTestAccount(t, db, user.ID, constants.AccountProviderGoogle, "google-sub-1")

	got, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-1",
		Email:             "bound@example.com",
		EmailVerified:     true,
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("resolved user want %d got %d", user.ID, got.ID)
	}
}

func TestResolveOAuthLoginRegistersNewUser(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)

	got, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-new",
		Email:             "Fresh@Example.com",
		EmailVerified:     true,
		Name:              "Fresh User",
	}, RequestMeta{ClientIP: "203.0.113.5"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.Email != "fresh@example.com" {
		t.Fatalf("email should be normalized, got %s", got.Email)
	}
	if got.Status != constants.UserStatusActive {
		t.Fatalf("oauth-registered user should be active, got %s", got.Status)
	}
	if got.EmailVerifiedAt == nil {
		t.Fatal("verified platform email should mark the user verified")
	}

	var account models.Account
	if err := db.Where("user_id = ?", got.ID).First(&account).Error; err != nil {
		t.Fatalf("load account failed: %v", err)
	}
	if account.Provider != constants.AccountProviderGoogle || account.ProviderAccountID != "google-sub-new" {
		t.Fatalf("unexpected account binding: %+v", account)
	}
	if countSecurityEvents(t, db, constants.SecurityEventRegister) != 1 {
		t.Fatal("registration should be audited")
	}
}

func TestResolveOAuthLoginTrustedAutoLink(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)
	user := createLinkTestUser(t, db, "linkme@example.com", constants.UserStatusPendingVerify, false)
	createLinkTestAccount(t, db, user.ID, constants.AccountProviderCredential, "linkme@example.com")

	got, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderApple,
		ProviderAccountID: "apple-sub-1",
		Email:             "linkme@example.com",
		EmailVerified:     true,
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.ID != user.ID {
		t.Fatalf("should link to existing user %d, got %d", user.ID, got.ID)
	}
	// 可信平台核实过邮箱，顺带完成邮箱验证
	if got.Status != constants.UserStatusActive || got.EmailVerifiedAt == nil {
		t.Fatalf("auto-link should activate pending user, status=%s verified=%v", got.Status, got.EmailVerifiedAt)
	}

	var total int64
	if err := db.Model(&models.Account{}).Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		t.Fatalf("count accounts failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("user should now have 2 accounts, got %d", total)
	}
	if countSecurityEvents(t, db, constants.SecurityEventOAuthAutoLinked) != 1 {
		t.Fatal("auto-link should be audited")
	}
}

func TestResolveOAuthLoginUntrustedRequiresLink(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)
	user := createLinkTestUser(t, db, "korean@example.com", constants.UserStatusActive, true)
	createLinkTestAccount(t, db, user.ID, constants.AccountProviderCredential, "korean@example.com")

	_, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderKakao,
		ProviderAccountID: "kakao-sub-1",
		Email:             "korean@example.com",
		EmailVerified:     true,
	}, RequestMeta{})
	if !errors.Is(err, ErrOAuthLinkRequired) {
		t.Fatalf("untrusted provider must require manual link, got %v", err)
	}

	var total int64
	if err := db.Model(&models.Account{}).Where("user_id = ?", user.ID).Count(&total).Error; err != nil {
		t.Fatalf("count accounts failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("no account may be created, got %d", total)
	}
	if countSecurityEvents(t, db, constants.SecurityEventOAuthLinkRequired) != 1 {
		t.Fatal("link-required decision should be audited")
	}
}

func TestResolveOAuthLoginUnverifiedEmailRequiresLink(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)
	user := createLinkTestUser(t, db, "claimed@example.com", constants.UserStatusActive, true)
	createLinkTestAccount(t, db, user.ID, constants.AccountProviderCredential, "claimed@example.com")

	// 可信平台但邮箱未经平台核实，同样不允许自动关联
	_, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-unverified",
		Email:             "claimed@example.com",
		EmailVerified:     false,
	}, RequestMeta{})
	if !errors.Is(err, ErrOAuthLinkRequired) {
		t.Fatalf("unverified platform email must require manual link, got %v", err)
	}
}

func TestResolveOAuthLoginProviderAlreadyBound(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)
	user := createLinkTestUser(t, db, "dup@example.com", constants.UserStatusActive, true)
	createLinkTestAccount(t, db, user.ID, constants.AccountProviderGoogle, "google-sub-original")

	_, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-different",
		Email:             "dup@example.com",
		EmailVerified:     true,
	}, RequestMeta{})
	if !errors.Is(err, ErrOAuthLinkRequired) {
		t.Fatalf("second identity on an already-bound provider must not auto-link, got %v", err)
	}
}

func TestResolveOAuthLoginMissingEmail(t *testing.T) {
	svc, _ := setupAccountLinkingTest(t)

	_, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderKakao,
		ProviderAccountID: "kakao-no-email",
	}, RequestMeta{})
	if !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("profile without email cannot log in, got %v", err)
	}
}

func TestResolveOAuthLoginBlockedUser(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)
	locked := createLinkTestUser(t, db, "locked@example.com", constants.UserStatusLocked, true)
	createLinkTestAccount(t, db, locked.ID, constants.AccountProviderGoogle, "google-sub-locked")

	if _, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-locked",
	}, RequestMeta{}); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("locked user must not log in via oauth, got %v", err)
	}

	createLinkTestUser(t, db, "suspended@example.com", constants.UserStatusSuspended, true)
	if _, err := svc.ResolveOAuthLogin(&oauth.Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-suspended",
		Email:             "suspended@example.com",
		EmailVerified:     true,
	}, RequestMeta{}); !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("suspended user must not auto-link, got %v", err)
	}
}

func TestLinkRejectsConflicts(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)
	owner := createLinkTestUser(t, db, "owner@example.com", constants.UserStatusActive, true)
	createLinkTestAccount(t, db, owner.ID, constants.AccountProviderGoogle, "google-sub-owned")
	other := createLinkTestUser(t, db, "other@example.com", constants.UserStatusActive, true)
	createLinkTestAccount(t, db, other.ID, constants.AccountProviderCredential, "other@example.com")

	// 身份已绑定在别的用户上
	if _, err := svc.Link(other.ID, &oauth.Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-owned",
	}, RequestMeta{}); !errors.Is(err, ErrAccountAlreadyLinked) {
		t.Fatalf("identity owned by another user must conflict, got %v", err)
	}

	// 同平台只允许绑定一个身份
	if _, err := svc.Link(owner.ID, &oauth.Profile{
		Provider:          constants.AccountProviderGoogle,
		ProviderAccountID: "google-sub-second",
	}, RequestMeta{}); !errors.Is(err, ErrAccountAlreadyLinked) {
		t.Fatalf("second identity on the same provider must conflict, got %v", err)
	}

	account, err := svc.Link(other.ID, &oauth.Profile{
		Provider:          constants.AccountProviderNaver,
		ProviderAccountID: "naver-sub-1",
		Email:             "Other@Example.com",
	}, RequestMeta{})
	if err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if account.ProviderEmail != "other@example.com" {
		t.Fatalf("provider email should be normalized, got %s", account.ProviderEmail)
	}
	if countSecurityEvents(t, db, constants.SecurityEventOAuthLinked) != 1 {
		t.Fatal("manual link should be audited")
	}
}

func TestUnlinkKeepsLastAccount(t *testing.T) {
	svc, db := setupAccountLinkingTest(t)
	user := createLinkTestUser(t, db, "solo@example.com", constants.UserStatusActive, true)
	createLinkTestAccount(t, db, user.ID, constants.AccountProviderGoogle, "google-sub-solo")

	if err := svc.Unlink(user.ID, constants.AccountProviderGoogle, RequestMeta{}); !errors.Is(err, ErrCannotUnlinkLastAccount) {
		t.Fatalf("last login method must not be removable, got %v", err)
	}

	if err := svc.Unlink(user.ID, constants.AccountProviderKakao, RequestMeta{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unbound provider should report not found, got %v", err)
	}

	createLinkTestAccount(t, db, user.ID, constants.AccountProviderCredential, "solo@example.com")
	if err := svc.Unlink(user.ID, constants.AccountProviderGoogle, RequestMeta{}); err != nil {
		t.Fatalf("unlink failed: %v", err)
	}

	accounts, err := svc.ListAccounts(user.ID)
	if err != nil {
		t.Fatalf("list accounts failed: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Provider != constants.AccountProviderCredential {
		t.Fatalf("only the credential account should remain, got %+v", accounts)
	}
	if countSecurityEvents(t, db, constants.SecurityEventOAuthUnlinked) != 1 {
		t.Fatal("unlink should be audited")
	}
}

func TestIsTrustedDefaults(t *testing.T) {
	svc, _ := setupAccountLinkingTest(t)

	if !svc.IsTrusted(constants.AccountProviderApple) || !svc.IsTrusted(constants.AccountProviderGoogle) {
		t.Fatal("apple and google are trusted by default")
	}
	if svc.IsTrusted(constants.AccountProviderKakao) || svc.IsTrusted(constants.AccountProviderNaver) {
		t.Fatal("kakao and naver are untrusted by default")
	}

	custom := NewAccountLinkingService(nil, nil, nil, []string{" Kakao "})
	if !custom.IsTrusted(constants.AccountProviderKakao) {
		t.Fatal("configured providers should be normalized and trusted")
	}
	if custom.IsTrusted(constants.AccountProviderGoogle) {
		t.Fatal("explicit trust list replaces the default")
	}
}
