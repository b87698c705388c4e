package service

import "errors"

// 认证与会话相关的业务错误
// handler 层通过 errors.Is 将其映射为响应码与文案，不在 service 层自动重试。
var (
	// 凭证登录：密码错误与账号不存在统一返回，避免枚举邮箱
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrEmailNotVerified   = errors.New("email not verified")

	// 会话与刷新令牌
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
	ErrSessionRevoked     = errors.New("session revoked")
	ErrTokenReuseDetected = errors.New("token reuse detected")

	// 第三方登录与账号关联
	ErrOAuthTokenInvalid       = errors.New("oauth token invalid")
	ErrOAuthLinkRequired       = errors.New("oauth link required")
	ErrOAuthProviderUnknown    = errors.New("oauth provider unknown")
	ErrAccountAlreadyLinked    = errors.New("account already linked")
	ErrCannotUnlinkLastAccount = errors.New("cannot unlink last account")

	// 注册与资料
	ErrEmailExists       = errors.New("email exists")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrWeakPassword      = errors.New("weak password")
	ErrAgreementRequired = errors.New("agreement required")
	ErrProfileEmpty      = errors.New("profile empty")
	ErrNotFound          = errors.New("not found")

	// 邮箱验证码
	ErrInvalidVerifyPurpose       = errors.New("invalid verify purpose")
	ErrVerifyCodeInvalid          = errors.New("verify code invalid")
	ErrVerifyCodeExpired          = errors.New("verify code expired")
	ErrVerifyCodeTooFrequent      = errors.New("verify code too frequent")
	ErrVerifyCodeAttemptsExceeded = errors.New("verify code attempts exceeded")

	// 图形验证码
	ErrCaptchaRequired      = errors.New("captcha required")
	ErrCaptchaInvalid       = errors.New("captcha invalid")
	ErrCaptchaConfigInvalid = errors.New("captcha config invalid")

	// 邮件发送
	ErrEmailServiceDisabled      = errors.New("email service disabled")
	ErrEmailServiceNotConfigured = errors.New("email service not configured")
	ErrEmailRecipientRejected    = errors.New("email recipient rejected")
)
