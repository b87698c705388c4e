package service

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupSessionServiceTest(t *testing.T) (*SessionService, *TokenService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Session{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	tokenSvc := newTokenTestService("session-test-secret")
	return NewSessionService(repository.NewSessionRepository(db), tokenSvc), tokenSvc, db
}

func createSessionTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	now := time.Now()
	user := &models.User{
		Email:           email,
		DisplayName:     "session tester",
		Status:          constants.UserStatusActive,
		EmailVerifiedAt: &now,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return user
}

func TestSessionServiceCreateIssuesFirstPair(t *testing.T) {
	svc, tokenSvc, db := setupSessionServiceTest(t)
	user := createSessionTestUser(t, db, "create@example.com")

	session, pair, err := svc.Create(SessionCreateInput{
		User:              user,
		DeviceFingerprint: "fp-abc",
		IPAddress:         "198.51.100.7",
		UserAgent:         "tasknest-ios/2.1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if session.ID == 0 {
		t.Fatal("session id should be assigned")
	}
	if session.TokenVersion != 1 {
		t.Fatalf("first generation version want 1 got %d", session.TokenVersion)
	}

	// 刷新令牌里嵌的必须是回填后的会话 ID 与族标识
	claims, err := tokenSvc.VerifyRefreshToken(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh token failed: %v", err)
	}
	if claims.SessionID != session.ID || claims.TokenFamily != session.TokenFamily || claims.TokenVersion != 1 {
		t.Fatalf("unexpected refresh claims: %+v", claims)
	}

	var stored models.Session
	if err := db.First(&stored, session.ID).Error; err != nil {
		t.Fatalf("load session failed: %v", err)
	}
	if stored.RefreshTokenHash != tokenSvc.HashRefreshToken(pair.RefreshToken) {
		t.Fatal("stored hash should match the issued refresh token")
	}
	if stored.DeviceFingerprint != "fp-abc" || stored.IPAddress != "198.51.100.7" {
		t.Fatalf("device metadata not persisted: %+v", stored)
	}
	if !stored.ExpiresAt.After(time.Now()) {
		t.Fatal("fresh session must not be expired")
	}
}

func TestSessionServiceCreateRequiresUser(t *testing.T) {
	svc, _, _ := setupSessionServiceTest(t)

	if _, _, err := svc.Create(SessionCreateInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("nil user should be rejected, got %v", err)
	}
}

func TestSessionServiceRotateAdvancesGeneration(t *testing.T) {
	svc, tokenSvc, db := setupSessionServiceTest(t)
	user := createSessionTestUser(t, db, "rotate@example.com")
	session, first, err := svc.Create(SessionCreateInput{User: user})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	second, err := svc.Rotate(session, user, session.TokenVersion)
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation must issue a new refresh token")
	}
	claims, err := tokenSvc.VerifyRefreshToken(second.RefreshToken)
	if err != nil {
		t.Fatalf("verify rotated token failed: %v", err)
	}
	if claims.TokenVersion != 2 || claims.TokenFamily != session.TokenFamily {
		t.Fatalf("unexpected rotated claims: %+v", claims)
	}

	var stored models.Session
	if err := db.First(&stored, session.ID).Error; err != nil {
		t.Fatalf("load session failed: %v", err)
	}
	if stored.TokenVersion != 2 {
		t.Fatalf("stored version want 2 got %d", stored.TokenVersion)
	}
	if stored.RefreshTokenHash != tokenSvc.HashRefreshToken(second.RefreshToken) {
		t.Fatal("current hash should point at the new token")
	}
	if stored.PreviousTokenHash != tokenSvc.HashRefreshToken(first.RefreshToken) {
		t.Fatal("previous hash should keep the rotated-out token for reuse detection")
	}
}

func TestSessionServiceRotateStaleVersionLoses(t *testing.T) {
	svc, _, db := setupSessionServiceTest(t)
	user := createSessionTestUser(t, db, "stale@example.com")
	session, _, err := svc.Create(SessionCreateInput{User: user})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.Rotate(session, user, 1); err != nil {
		t.Fatalf("first rotate failed: %v", err)
	}

	// 过期版本号竞争失败，存储状态保持第二代
	if _, err := svc.Rotate(session, user, 1); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("stale rotation should lose, got %v", err)
	}

	var stored models.Session
	if err := db.First(&stored, session.ID).Error; err != nil {
		t.Fatalf("load session failed: %v", err)
	}
	if stored.TokenVersion != 2 {
		t.Fatalf("losing rotation must not change state, version=%d", stored.TokenVersion)
	}
}

func TestSessionServiceRotateRevokedSession(t *testing.T) {
	svc, _, db := setupSessionServiceTest(t)
	user := createSessionTestUser(t, db, "revoked@example.com")
	session, _, err := svc.Create(SessionCreateInput{User: user})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := svc.Revoke(session.ID, constants.SessionRevokeReasonLogout); err != nil {
		t.Fatalf("revoke failed: %v", err)
	}

	if _, err := svc.Rotate(session, user, session.TokenVersion); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("revoked session must not rotate, got %v", err)
	}

	var stored models.Session
	if err := db.First(&stored, session.ID).Error; err != nil {
		t.Fatalf("load session failed: %v", err)
	}
	if stored.RevokedAt == nil || stored.RevokeReason != constants.SessionRevokeReasonLogout {
		t.Fatalf("revocation not persisted: %+v", stored)
	}
}

func TestSessionServiceRevokeFamily(t *testing.T) {
	svc, _, db := setupSessionServiceTest(t)
	user := createSessionTestUser(t, db, "family@example.com")
	session, _, err := svc.Create(SessionCreateInput{User: user})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// 同族的历史行在真实链路中来自重放窗口，这里直接落一条
	sibling := &models.Session{
		UserID:           user.ID,
		TokenFamily:      session.TokenFamily,
		TokenVersion:     1,
		RefreshTokenHash: "sibling-hash",
		LastUsedAt:       time.Now(),
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	if err := db.Create(sibling).Error; err != nil {
		t.Fatalf("create sibling failed: %v", err)
	}
	outsider, _, err := svc.Create(SessionCreateInput{User: user})
	if err != nil {
		t.Fatalf("create outsider failed: %v", err)
	}

	if err := svc.RevokeFamily(session.TokenFamily, constants.SessionRevokeReasonTokenReuse); err != nil {
		t.Fatalf("revoke family failed: %v", err)
	}

	var revoked int64
	if err := db.Model(&models.Session{}).
		Where("token_family = ? AND revoked_at IS NOT NULL AND revoke_reason = ?",
			session.TokenFamily, constants.SessionRevokeReasonTokenReuse).
		Count(&revoked).Error; err != nil {
		t.Fatalf("count revoked failed: %v", err)
	}
	if revoked != 2 {
		t.Fatalf("whole family should be revoked, got %d", revoked)
	}

	active, err := svc.ListActive(user.ID)
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != outsider.ID {
		t.Fatalf("unrelated session should survive, got %+v", active)
	}
}

func TestSessionServiceRevokeAllByUserKeepsExcluded(t *testing.T) {
	svc, _, db := setupSessionServiceTest(t)
	user := createSessionTestUser(t, db, "revokeall@example.com")

	var ids []uint
	for i := 0; i < 3; i++ {
		session, _, err := svc.Create(SessionCreateInput{User: user})
		if err != nil {
			t.Fatalf("create session %d failed: %v", i, err)
		}
		ids = append(ids, session.ID)
	}
	keep := ids[2]

	if err := svc.RevokeAllByUser(user.ID, constants.SessionRevokeReasonUserRevoked, keep); err != nil {
		t.Fatalf("revoke all failed: %v", err)
	}

	active, err := svc.ListActive(user.ID)
	if err != nil {
		t.Fatalf("list active failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != keep {
		t.Fatalf("only the excluded session should stay, got %+v", active)
	}
}

func TestSessionServiceGetByID(t *testing.T) {
	svc, _, db := setupSessionServiceTest(t)
	user := createSessionTestUser(t, db, "getbyid@example.com")
	session, _, err := svc.Create(SessionCreateInput{User: user})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := svc.GetByID(session.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.ID != session.ID {
		t.Fatalf("want session %d got %d", session.ID, got.ID)
	}

	if _, err := svc.GetByID(session.ID + 100); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session should report not found, got %v", err)
	}
}
