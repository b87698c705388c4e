package public

import (
	"errors"
	"strings"

	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/http/response"
	"github.com/tasknest-next/internal/i18n"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/service"

	"github.com/gin-gonic/gin"
)

const timeLayoutRFC3339 = "2006-01-02T15:04:05Z07:00"

func userView(user *models.User) gin.H {
	return gin.H{
		"id":                user.ID,
		"email":             user.Email,
		"display_name":      user.DisplayName,
		"avatar_url":        user.AvatarURL,
		"locale":            user.Locale,
		"status":            user.Status,
		"email_verified_at": user.EmailVerifiedAt,
		"last_login_at":     user.LastLoginAt,
		"created_at":        user.CreatedAt,
	}
}

func tokenPairView(pair *service.TokenPair) gin.H {
	return gin.H{
		"access_token":       pair.AccessToken,
		"access_expires_at":  pair.AccessExpiresAt.Format(timeLayoutRFC3339),
		"refresh_token":      pair.RefreshToken,
		"refresh_expires_at": pair.RefreshExpiresAt.Format(timeLayoutRFC3339),
	}
}

func loginResultView(result *service.LoginResult) gin.H {
	return gin.H{
		"user":       userView(result.User),
		"session_id": result.Session.ID,
		"tokens":     tokenPairView(result.Tokens),
	}
}

// UserRegisterRequest 注册请求
type UserRegisterRequest struct {
	Email             string                `json:"email" binding:"required"`
	Password          string                `json:"password" binding:"required"`
	DisplayName       string                `json:"display_name"`
	AgreementAccepted bool                  `json:"agreement_accepted"`
	CaptchaPayload    CaptchaPayloadRequest `json:"captcha_payload"`
}

// UserRegister 用户注册
func (h *Handler) UserRegister(c *gin.Context) {
	var req UserRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	user, err := h.UserAuthService.Register(service.RegisterInput{
		Email:             req.Email,
		Password:          req.Password,
		DisplayName:       req.DisplayName,
		Locale:            i18n.ResolveLocale(c),
		AgreementAccepted: req.AgreementAccepted,
		Captcha:           req.CaptchaPayload.toServicePayload(),
		Meta:              requestMeta(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAgreementRequired):
			respondError(c, response.CodeBadRequest, "error.agreement_required", nil)
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(c, response.CodeBadRequest, "error.email_invalid", nil)
		case errors.Is(err, service.ErrEmailExists):
			respondError(c, response.CodeBadRequest, "error.email_exists", nil)
		case errors.Is(err, service.ErrCaptchaRequired):
			respondError(c, response.CodeBadRequest, "error.captcha_required", nil)
		case errors.Is(err, service.ErrCaptchaInvalid):
			respondError(c, response.CodeBadRequest, "error.captcha_invalid", nil)
		case errors.Is(err, service.ErrCaptchaConfigInvalid):
			respondError(c, response.CodeInternal, "error.captcha_config_invalid", err)
		case errors.Is(err, service.ErrWeakPassword):
			locale := i18n.ResolveLocale(c)
			if perr, ok := err.(interface {
				Key() string
				Args() []interface{}
			}); ok {
				msg := i18n.Sprintf(locale, perr.Key(), perr.Args()...)
				respondErrorWithMsg(c, response.CodeBadRequest, msg, nil)
				return
			}
			respondError(c, response.CodeBadRequest, "error.weak_password", nil)
		default:
			respondError(c, response.CodeInternal, "error.register_failed", err)
		}
		return
	}

	response.Success(c, gin.H{
		"user":            userView(user),
		"verify_required": true,
	})
}

// VerifyEmailRequest 邮箱验证请求
type VerifyEmailRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// UserVerifyEmail 校验注册验证码并激活账号
func (h *Handler) UserVerifyEmail(c *gin.Context) {
	var req VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	if err := h.UserAuthService.VerifyEmail(req.Email, req.Code, requestMeta(c)); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(c, response.CodeBadRequest, "error.email_invalid", nil)
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "error.not_found", nil)
		case errors.Is(err, service.ErrVerifyCodeInvalid):
			respondError(c, response.CodeBadRequest, "error.verify_code_invalid", nil)
		case errors.Is(err, service.ErrVerifyCodeExpired):
			respondError(c, response.CodeBadRequest, "error.verify_code_expired", nil)
		case errors.Is(err, service.ErrVerifyCodeAttemptsExceeded):
			respondError(c, response.CodeBadRequest, "error.verify_code_attempts_exceeded", nil)
		default:
			respondError(c, response.CodeInternal, "error.verify_email_failed", err)
		}
		return
	}

	response.Success(c, gin.H{"verified": true})
}

// SendVerifyCodeRequest 发送验证码请求
type SendVerifyCodeRequest struct {
	Email          string                `json:"email" binding:"required"`
	CaptchaPayload CaptchaPayloadRequest `json:"captcha_payload"`
}

// ResendVerifyEmail 重发注册验证码
func (h *Handler) ResendVerifyEmail(c *gin.Context) {
	var req SendVerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	locale := i18n.ResolveLocale(c)
	if err := h.UserAuthService.SendVerifyCode(req.Email, constants.VerifyPurposeRegister, locale, req.CaptchaPayload.toServicePayload()); err != nil {
		respondSendVerifyCodeError(c, err)
		return
	}
	response.Success(c, gin.H{"sent": true})
}

// ForgotPassword 发送找回密码验证码
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req SendVerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	locale := i18n.ResolveLocale(c)
	if err := h.UserAuthService.SendVerifyCode(req.Email, constants.VerifyPurposeReset, locale, req.CaptchaPayload.toServicePayload()); err != nil {
		respondSendVerifyCodeError(c, err)
		return
	}
	response.Success(c, gin.H{"sent": true})
}

// ResetPasswordRequest 重置密码请求
type ResetPasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ResetPassword 验证码重置密码
func (h *Handler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	if err := h.UserAuthService.ResetPassword(req.Email, req.Code, req.NewPassword, requestMeta(c)); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			respondError(c, response.CodeBadRequest, "error.email_invalid", nil)
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "error.not_found", nil)
		case errors.Is(err, service.ErrVerifyCodeInvalid):
			respondError(c, response.CodeBadRequest, "error.verify_code_invalid", nil)
		case errors.Is(err, service.ErrVerifyCodeExpired):
			respondError(c, response.CodeBadRequest, "error.verify_code_expired", nil)
		case errors.Is(err, service.ErrVerifyCodeAttemptsExceeded):
			respondError(c, response.CodeBadRequest, "error.verify_code_attempts_exceeded", nil)
		case errors.Is(err, service.ErrWeakPassword):
			locale := i18n.ResolveLocale(c)
			if perr, ok := err.(interface {
				Key() string
				Args() []interface{}
			}); ok {
				msg := i18n.Sprintf(locale, perr.Key(), perr.Args()...)
				respondErrorWithMsg(c, response.CodeBadRequest, msg, nil)
				return
			}
			respondError(c, response.CodeBadRequest, "error.weak_password", nil)
		default:
			respondError(c, response.CodeInternal, "error.reset_failed", err)
		}
		return
	}

	response.Success(c, gin.H{"reset": true})
}

// UserLoginRequest 登录请求
type UserLoginRequest struct {
	Email             string                `json:"email" binding:"required"`
	Password          string                `json:"password" binding:"required"`
	DeviceFingerprint string                `json:"device_fingerprint"`
	CaptchaPayload    CaptchaPayloadRequest `json:"captcha_payload"`
}

// UserLogin 邮箱密码登录
func (h *Handler) UserLogin(c *gin.Context) {
	var req UserLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	result, err := h.UserAuthService.Login(service.LoginInput{
		Email:             req.Email,
		Password:          req.Password,
		DeviceFingerprint: strings.TrimSpace(req.DeviceFingerprint),
		Captcha:           req.CaptchaPayload.toServicePayload(),
		Meta:              requestMeta(c),
	})
	if err != nil {
		respondLoginError(c, err)
		return
	}

	response.Success(c, loginResultView(result))
}

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshToken 刷新令牌（轮换）
func (h *Handler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	result, err := h.UserAuthService.RefreshTokens(strings.TrimSpace(req.RefreshToken), requestMeta(c))
	if err != nil {
		respondRefreshError(c, err)
		return
	}

	response.Success(c, loginResultView(result))
}

// OAuthLoginRequest 第三方登录请求
type OAuthLoginRequest struct {
	Provider          string `json:"provider" binding:"required"`
	Token             string `json:"token" binding:"required"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

// UserOAuthLogin 第三方令牌登录
func (h *Handler) UserOAuthLogin(c *gin.Context) {
	var req OAuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}

	result, err := h.UserAuthService.OAuthLogin(c.Request.Context(), service.OAuthLoginInput{
		Provider:          req.Provider,
		Token:             req.Token,
		DeviceFingerprint: strings.TrimSpace(req.DeviceFingerprint),
		Meta:              requestMeta(c),
	})
	if err != nil {
		respondOAuthLoginError(c, err)
		return
	}

	response.Success(c, loginResultView(result))
}
