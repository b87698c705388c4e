package public

import (
	"github.com/tasknest-next/internal/http/response"
	"github.com/tasknest-next/internal/models"

	"github.com/gin-gonic/gin"
)

func accountView(account *models.Account) gin.H {
	return gin.H{
		"provider":       account.Provider,
		"provider_email": account.ProviderEmail,
		"created_at":     account.CreatedAt,
	}
}

// LinkOAuthAccountRequest 绑定第三方账号请求
type LinkOAuthAccountRequest struct {
	Provider string `json:"provider" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

// LinkOAuthAccount 绑定第三方账号到当前用户
func (h *Handler) LinkOAuthAccount(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req LinkOAuthAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	account, err := h.UserAuthService.LinkOAuthAccount(c.Request.Context(), userID, req.Provider, req.Token, requestMeta(c))
	if err != nil {
		respondWithMappedError(c, err, oauthLinkErrorRules, response.CodeInternal, "error.oauth_link_failed")
		return
	}

	response.Success(c, gin.H{"account": accountView(account)})
}

// UnlinkOAuthAccountRequest 解绑第三方账号请求
type UnlinkOAuthAccountRequest struct {
	Provider string `json:"provider" binding:"required"`
}

// UnlinkOAuthAccount 解绑第三方账号
func (h *Handler) UnlinkOAuthAccount(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	var req UnlinkOAuthAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	if err := h.UserAuthService.UnlinkOAuthAccount(userID, req.Provider, requestMeta(c)); err != nil {
		respondWithMappedError(c, err, oauthUnlinkErrorRules, response.CodeInternal, "error.oauth_unlink_failed")
		return
	}

	response.Success(c, gin.H{"unlinked": true})
}

// ListLinkedAccounts 列出当前用户绑定的全部账号
func (h *Handler) ListLinkedAccounts(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	accounts, err := h.UserAuthService.ListLinkedAccounts(userID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.account_list_failed", err)
		return
	}

	views := make([]gin.H, 0, len(accounts))
	for i := range accounts {
		views = append(views, accountView(&accounts[i]))
	}
	response.Success(c, gin.H{"accounts": views})
}
