package public

import (
	"strconv"

	"github.com/tasknest-next/internal/http/response"

	"github.com/gin-gonic/gin"
)

// ListUserSecurityLogs 当前用户的安全审计日志（倒序分页）
func (h *Handler) ListUserSecurityLogs(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	logs, total, err := h.UserAuthService.ListSecurityLogs(userID, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "error.security_log_list_failed", err)
		return
	}

	response.SuccessWithPage(c, logs, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

// ListUserLoginHistory 当前用户的登录历史（倒序分页）
func (h *Handler) ListUserLoginHistory(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	attempts, total, err := h.UserAuthService.ListLoginHistory(userID, page, pageSize)
	if err != nil {
		respondError(c, response.CodeInternal, "error.login_history_list_failed", err)
		return
	}

	response.SuccessWithPage(c, attempts, response.Pagination{
		Page:      page,
		PageSize:  pageSize,
		Total:     total,
		TotalPage: (total + int64(pageSize) - 1) / int64(pageSize),
	})
}
