package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tasknest-next/internal/models"
)

// 会话快照 TTL 刻意取短：显式撤销会同步删除缓存，
// 其余路径（如用户被停用）最多容忍 TTL 内的旧状态
const sessionStateCacheTTL = 30 * time.Second

// SessionState 会话鉴权快照
// expires_at / revoked 来自会话行，user_status 来自用户行
// 该结构仅用于服务端 Redis 缓存，避免每个请求都查询数据库
type SessionState struct {
	SessionID    uint   `json:"session_id"`
	UserID       uint   `json:"user_id"`
	UserStatus   string `json:"user_status"`
	TokenVersion uint64 `json:"token_version"`
	ExpiresAt    int64  `json:"expires_at"`
	Revoked      bool   `json:"revoked"`
	UpdatedAt    int64  `json:"updated_at"`
}

func sessionStateKey(sessionID uint) string {
	return fmt.Sprintf("auth:session:%d", sessionID)
}

// Expired 判断快照对应会话是否已过期
func (s *SessionState) Expired(now time.Time) bool {
	return s.ExpiresAt > 0 && now.Unix() >= s.ExpiresAt
}

// BuildSessionState 从会话与用户模型构建鉴权快照
func BuildSessionState(session *models.Session, user *models.User) *SessionState {
	if session == nil || user == nil {
		return nil
	}
	return &SessionState{
		SessionID:    session.ID,
		UserID:       session.UserID,
		UserStatus:   user.Status,
		TokenVersion: session.TokenVersion,
		ExpiresAt:    session.ExpiresAt.Unix(),
		Revoked:      session.IsRevoked(),
		UpdatedAt:    time.Now().Unix(),
	}
}

// GetSessionState 获取会话鉴权快照
func GetSessionState(ctx context.Context, sessionID uint) (*SessionState, bool, error) {
	if sessionID == 0 {
		return nil, false, nil
	}
	var state SessionState
	hit, err := GetJSON(ctx, sessionStateKey(sessionID), &state)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &state, true, nil
}

// SetSessionState 写入会话鉴权快照
func SetSessionState(ctx context.Context, state *SessionState) error {
	if state == nil || state.SessionID == 0 {
		return nil
	}
	return SetJSON(ctx, sessionStateKey(state.SessionID), state, sessionStateCacheTTL)
}

// DelSessionState 删除会话鉴权快照
func DelSessionState(ctx context.Context, sessionID uint) error {
	if sessionID == 0 {
		return nil
	}
	return Del(ctx, sessionStateKey(sessionID))
}

// DelSessionStates 批量删除会话鉴权快照（撤销全部会话时使用）
func DelSessionStates(ctx context.Context, sessionIDs []uint) error {
	for _, id := range sessionIDs {
		if err := DelSessionState(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
