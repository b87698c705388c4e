package service

import (
	"context"
	"time"

	"github.com/tasknest-next/internal/cache"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/repository"

	"gorm.io/gorm"
)

// SessionCreateInput 会话创建入参
type SessionCreateInput struct {
	User              *models.User
	DeviceFingerprint string
	IPAddress         string
	UserAgent         string
}

// SessionService 会话生命周期服务
// 负责会话的创建、轮换与各类撤销，撤销路径同步失效缓存快照。
type SessionService struct {
	sessionRepo repository.SessionRepository
	tokenSvc    *TokenService
}

// NewSessionService 创建会话服务
func NewSessionService(sessionRepo repository.SessionRepository, tokenSvc *TokenService) *SessionService {
	return &SessionService{sessionRepo: sessionRepo, tokenSvc: tokenSvc}
}

// Create 创建会话并签发首对令牌
// 两段式写入：先插入占位行拿到会话 ID，再把嵌入该 ID 的刷新令牌哈希回填，
// 两步在同一事务内完成，不会留下缺哈希的会话行。
func (s *SessionService) Create(input SessionCreateInput) (*models.Session, *TokenPair, error) {
	if input.User == nil {
		return nil, nil, ErrNotFound
	}
	now := time.Now()
	session := &models.Session{
		UserID:            input.User.ID,
		TokenFamily:       s.tokenSvc.GenerateTokenFamily(),
		TokenVersion:      1,
		DeviceFingerprint: input.DeviceFingerprint,
		IPAddress:         input.IPAddress,
		UserAgent:         input.UserAgent,
		LastUsedAt:        now,
		ExpiresAt:         now.Add(s.tokenSvc.RefreshTokenTTL()),
	}

	var pair *TokenPair
	err := s.sessionRepo.Transaction(func(tx *gorm.DB) error {
		txRepo := s.sessionRepo.WithTx(tx)
		if err := txRepo.Create(session); err != nil {
			return err
		}
		generated, err := s.tokenSvc.GenerateTokenPair(
			input.User.ID, input.User.Email, session.ID, session.TokenFamily, session.TokenVersion)
		if err != nil {
			return err
		}
		hash := s.tokenSvc.HashRefreshToken(generated.RefreshToken)
		if err := txRepo.SetRefreshTokenHash(session.ID, hash); err != nil {
			return err
		}
		session.RefreshTokenHash = hash
		pair = generated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	_ = cache.SetSessionState(context.Background(), cache.BuildSessionState(session, input.User))
	return session, pair, nil
}

// Rotate 轮换会话的刷新令牌
// 单条带版本条件的 UPDATE 做乐观并发控制：并发轮换同一代令牌时恰有一个成功，
// 失败方返回 ErrSessionExpired，不重试。
func (s *SessionService) Rotate(session *models.Session, user *models.User, expectedVersion uint64) (*TokenPair, error) {
	if session == nil || user == nil {
		return nil, ErrSessionNotFound
	}
	pair, err := s.tokenSvc.GenerateTokenPair(
		user.ID, user.Email, session.ID, session.TokenFamily, expectedVersion+1)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	rotated, err := s.sessionRepo.Rotate(session.ID, repository.SessionRotateParams{
		NewTokenHash:      s.tokenSvc.HashRefreshToken(pair.RefreshToken),
		PreviousTokenHash: session.RefreshTokenHash,
		ExpectedVersion:   expectedVersion,
		LastUsedAt:        now,
	})
	if err != nil {
		return nil, err
	}
	if !rotated {
		return nil, ErrSessionExpired
	}

	session.TokenVersion = expectedVersion + 1
	session.LastUsedAt = now
	_ = cache.SetSessionState(context.Background(), cache.BuildSessionState(session, user))
	return pair, nil
}

// Revoke 撤销单个会话
func (s *SessionService) Revoke(sessionID uint, reason string) error {
	if err := s.sessionRepo.Revoke(sessionID, reason, time.Now()); err != nil {
		return err
	}
	_ = cache.DelSessionState(context.Background(), sessionID)
	return nil
}

// RevokeAllByUser 撤销用户全部会话，excludeID 非零时保留该会话
func (s *SessionService) RevokeAllByUser(userID uint, reason string, excludeID uint) error {
	revoked, err := s.sessionRepo.RevokeAllByUser(userID, reason, time.Now(), excludeID)
	if err != nil {
		return err
	}
	_ = cache.DelSessionStates(context.Background(), revoked)
	return nil
}

// RevokeFamily 撤销同一令牌族的全部会话（检测到令牌重用时调用）
func (s *SessionService) RevokeFamily(family, reason string) error {
	revoked, err := s.sessionRepo.RevokeByTokenFamily(family, reason, time.Now())
	if err != nil {
		return err
	}
	_ = cache.DelSessionStates(context.Background(), revoked)
	return nil
}

// GetByID 按 ID 查询会话
func (s *SessionService) GetByID(sessionID uint) (*models.Session, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// FindByCurrentHash 按当前刷新令牌哈希查询会话
func (s *SessionService) FindByCurrentHash(hash string) (*models.Session, error) {
	return s.sessionRepo.FindByCurrentHash(hash)
}

// FindByPreviousHash 按上一代刷新令牌哈希查询会话
func (s *SessionService) FindByPreviousHash(hash string) (*models.Session, error) {
	return s.sessionRepo.FindByPreviousHash(hash)
}

// ListActive 列出用户当前有效的会话
func (s *SessionService) ListActive(userID uint) ([]models.Session, error) {
	return s.sessionRepo.FindActiveByUser(userID, time.Now())
}
