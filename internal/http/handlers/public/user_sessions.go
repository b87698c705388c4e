package public

import (
	"errors"
	"strconv"

	"github.com/tasknest-next/internal/http/response"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/service"

	"github.com/gin-gonic/gin"
)

func sessionView(session *models.Session, currentSessionID uint) gin.H {
	return gin.H{
		"id":                 session.ID,
		"device_fingerprint": session.DeviceFingerprint,
		"ip_address":         session.IPAddress,
		"user_agent":         session.UserAgent,
		"created_at":         session.CreatedAt,
		"last_used_at":       session.LastUsedAt,
		"expires_at":         session.ExpiresAt,
		"current":            session.ID == currentSessionID,
	}
}

// ListUserSessions 列出当前用户的活跃会话
func (h *Handler) ListUserSessions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	sessionID, ok := getSessionID(c)
	if !ok {
		return
	}

	sessions, err := h.UserAuthService.ListSessions(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.session_list_failed", err)
		return
	}

	views := make([]gin.H, 0, len(sessions))
	for i := range sessions {
		views = append(views, sessionView(&sessions[i], sessionID))
	}
	response.Success(c, gin.H{"sessions": views})
}

// RevokeUserSession 撤销指定会话（仅限本人名下）
func (h *Handler) RevokeUserSession(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	targetID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || targetID == 0 {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	if err := h.UserAuthService.RevokeSession(userID, uint(targetID), requestMeta(c)); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			respondError(c, response.CodeNotFound, "error.session_not_found", nil)
			return
		}
		respondError(c, response.CodeInternal, "error.session_revoke_failed", err)
		return
	}

	response.Success(c, gin.H{"revoked": true})
}

// RevokeOtherUserSessions 撤销除当前会话外的全部会话
func (h *Handler) RevokeOtherUserSessions(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	sessionID, ok := getSessionID(c)
	if !ok {
		return
	}

	if err := h.UserAuthService.RevokeOtherSessions(userID, sessionID, requestMeta(c)); err != nil {
		respondError(c, response.CodeInternal, "error.session_revoke_failed", err)
		return
	}

	response.Success(c, gin.H{"revoked": true})
}

// UserLogout 登出当前会话
func (h *Handler) UserLogout(c *gin.Context) {
	sessionID, ok := getSessionID(c)
	if !ok {
		return
	}

	if err := h.UserAuthService.Logout(sessionID, requestMeta(c)); err != nil {
		respondError(c, response.CodeInternal, "error.logout_failed", err)
		return
	}

	response.Success(c, gin.H{"logged_out": true})
}

// UserLogoutAll 登出全部会话（含当前）
func (h *Handler) UserLogoutAll(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	if err := h.UserAuthService.LogoutAll(userID, requestMeta(c)); err != nil {
		respondError(c, response.CodeInternal, "error.logout_failed", err)
		return
	}

	response.Success(c, gin.H{"logged_out": true})
}
