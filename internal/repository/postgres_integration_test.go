//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.Session{},
		&models.User{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(
		&models.User{},
		&models.Session{},
	); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func createPostgresSession(t *testing.T, db *gorm.DB, userID uint, family, hash string) *models.Session {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	session := &models.Session{
		UserID:           userID,
		TokenFamily:      family,
		TokenVersion:     1,
		RefreshTokenHash: hash,
		LastUsedAt:       now,
		ExpiresAt:        now.Add(24 * time.Hour),
	}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	return session
}

func TestPostgresSessionRotateOptimisticConcurrency(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewSessionRepository(db)

	session := createPostgresSession(t, db, 1, "pg-family-cas", "hash-v1")

	rotated, err := repo.Rotate(session.ID, SessionRotateParams{
		NewTokenHash:      "hash-v2",
		PreviousTokenHash: "hash-v1",
		ExpectedVersion:   1,
		LastUsedAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("rotate failed: %v", err)
	}
	if !rotated {
		t.Fatal("first rotation with matching version should succeed")
	}

	// 同一版本再轮换一次必须落败，这是同一刷新令牌只能兑换一次的保证
	rotated, err = repo.Rotate(session.ID, SessionRotateParams{
		NewTokenHash:      "hash-v2-replay",
		PreviousTokenHash: "hash-v1",
		ExpectedVersion:   1,
		LastUsedAt:        time.Now(),
	})
	if err != nil {
		t.Fatalf("stale rotate failed: %v", err)
	}
	if rotated {
		t.Fatal("rotation with stale version must lose")
	}

	stored, err := repo.GetByID(session.ID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.TokenVersion != 2 {
		t.Fatalf("token version want 2 got %d", stored.TokenVersion)
	}
	if stored.RefreshTokenHash != "hash-v2" {
		t.Fatalf("refresh token hash want hash-v2 got %s", stored.RefreshTokenHash)
	}
	if stored.PreviousTokenHash != "hash-v1" {
		t.Fatalf("previous token hash want hash-v1 got %s", stored.PreviousTokenHash)
	}
}

func TestPostgresSessionRotateConcurrentSingleWinner(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewSessionRepository(db)

	session := createPostgresSession(t, db, 2, "pg-family-race", "race-v1")

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			rotated, err := repo.Rotate(session.ID, SessionRotateParams{
				NewTokenHash:      "race-v2",
				PreviousTokenHash: "race-v1",
				ExpectedVersion:   1,
				LastUsedAt:        time.Now(),
			})
			if err != nil {
				t.Errorf("worker %d rotate failed: %v", n, err)
				return
			}
			if rotated {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	winners := 0
	for range wins {
		winners++
	}
	if winners != 1 {
		t.Fatalf("concurrent rotation winners want 1 got %d", winners)
	}

	stored, err := repo.GetByID(session.ID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if stored.TokenVersion != 2 {
		t.Fatalf("token version want 2 got %d", stored.TokenVersion)
	}
}

func TestPostgresSessionFamilyRevocationAndCleanup(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewSessionRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	first := createPostgresSession(t, db, 3, "pg-family-revoke", "revoke-a")
	second := createPostgresSession(t, db, 3, "pg-family-revoke", "revoke-b")
	other := createPostgresSession(t, db, 3, "pg-family-other", "other-a")

	ids, err := repo.RevokeByTokenFamily("pg-family-revoke", constants.SessionRevokeReasonTokenReuse, now)
	if err != nil {
		t.Fatalf("revoke family failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("revoked ids want 2 got %d", len(ids))
	}

	for _, id := range []uint{first.ID, second.ID} {
		stored, err := repo.GetByID(id)
		if err != nil {
			t.Fatalf("get session %d failed: %v", id, err)
		}
		if !stored.IsRevoked() {
			t.Fatalf("session %d should be revoked", id)
		}
		if stored.RevokeReason != constants.SessionRevokeReasonTokenReuse {
			t.Fatalf("session %d revoke reason want %s got %s", id, constants.SessionRevokeReasonTokenReuse, stored.RevokeReason)
		}
	}

	untouched, err := repo.GetByID(other.ID)
	if err != nil {
		t.Fatalf("get other session failed: %v", err)
	}
	if untouched.IsRevoked() {
		t.Fatal("session outside the family must stay active")
	}

	expired := createPostgresSession(t, db, 3, "pg-family-expired", "expired-a")
	if err := db.Model(&models.Session{}).
		Where("id = ?", expired.ID).
		Update("expires_at", now.Add(-48*time.Hour)).Error; err != nil {
		t.Fatalf("backdate session failed: %v", err)
	}

	deleted, err := repo.DeleteExpiredBefore(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted rows want 1 got %d", deleted)
	}

	gone, err := repo.GetByID(expired.ID)
	if err != nil {
		t.Fatalf("get expired session failed: %v", err)
	}
	if gone != nil {
		t.Fatal("expired session should be physically removed")
	}
}
