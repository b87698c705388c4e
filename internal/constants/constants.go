package constants

// 用户状态常量
const (
	UserStatusActive        = "active"
	UserStatusLocked        = "locked"
	UserStatusSuspended     = "suspended"
	UserStatusPendingVerify = "pending_verify"
)

// 账号提供方常量
const (
	AccountProviderCredential = "credential"
	AccountProviderApple      = "apple"
	AccountProviderGoogle     = "google"
	AccountProviderKakao      = "kakao"
	AccountProviderNaver      = "naver"
)

// 默认可自动关联的提供方（邮箱由提供方本身核实）
var TrustedOAuthProviders = []string{AccountProviderApple, AccountProviderGoogle}

// 会话撤销原因常量
const (
	SessionRevokeReasonLogout          = "logout"
	SessionRevokeReasonLogoutAll       = "logout_all"
	SessionRevokeReasonUserRevoked     = "user_revoked"
	SessionRevokeReasonPasswordChanged = "password_changed"
	SessionRevokeReasonPasswordReset   = "password_reset"
	SessionRevokeReasonTokenReuse      = "token_reuse"
)

// 登录记录状态常量
const (
	LoginAttemptStatusSuccess = "success"
	LoginAttemptStatusFailed  = "failed"
)

// 登录记录失败原因常量
const (
	LoginFailReasonBadRequest         = "bad_request"
	LoginFailReasonCaptchaRequired    = "captcha_required"
	LoginFailReasonCaptchaInvalid     = "captcha_invalid"
	LoginFailReasonInvalidEmail       = "invalid_email"
	LoginFailReasonInvalidCredentials = "invalid_credentials"
	LoginFailReasonEmailNotVerified   = "email_not_verified"
	LoginFailReasonAccountLocked      = "account_locked"
	LoginFailReasonAccountSuspended   = "account_suspended"
	LoginFailReasonOAuthTokenInvalid  = "oauth_token_invalid"
	LoginFailReasonOAuthLinkRequired  = "oauth_link_required"
	LoginFailReasonInternalError      = "internal_error"
)

// 安全审计事件常量
const (
	SecurityEventRegister          = "register"
	SecurityEventEmailVerified     = "email_verified"
	SecurityEventLogout            = "logout"
	SecurityEventLogoutAll         = "logout_all"
	SecurityEventSessionRevoked    = "session_revoked"
	SecurityEventSessionRevokedAll = "session_revoked_all"
	SecurityEventPasswordChanged   = "password_changed"
	SecurityEventPasswordReset     = "password_reset"
	SecurityEventTokenRefresh      = "token_refresh"
	SecurityEventSuspicious        = "suspicious_activity"
	SecurityEventOAuthAutoLinked   = "oauth_auto_linked"
	SecurityEventOAuthLinkRequired = "oauth_link_required"
	SecurityEventOAuthLinked       = "oauth_linked"
	SecurityEventOAuthUnlinked     = "oauth_unlinked"
)

// 验证码用途常量
const (
	VerifyPurposeRegister = "register"
	VerifyPurposeReset    = "reset"
)

// 图形验证码提供方常量
const (
	CaptchaProviderNone  = "none"
	CaptchaProviderImage = "image"
)

// 图形验证码校验场景常量
const (
	CaptchaSceneLogin            = "login"
	CaptchaSceneRegisterSendCode = "register_send_code"
	CaptchaSceneResetSendCode    = "reset_send_code"
)

// 队列常量
const (
	QueueDefault           = "default"
	TaskVerifyCodeEmail    = "auth:verify_code_email"
	TaskSecurityAlertEmail = "auth:security_alert_email"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "tn"
)

// 站点语言常量
const (
	LocaleZhCN = "zh-CN"
	LocaleEnUS = "en-US"
)

// 支持的站点语言顺序（含回退顺序）
var SupportedLocales = []string{LocaleZhCN, LocaleEnUS}
