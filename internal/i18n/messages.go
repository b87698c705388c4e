package i18n

// messages 文案表，按语言分组；新增键时两种语言都要补齐
var messages = map[string]map[string]string{
	LocaleZH: {
		// 通用
		"error.bad_request":            "请求参数错误",
		"error.unauthorized":           "未登录或登录已过期",
		"error.forbidden":              "无权访问",
		"error.not_found":              "资源不存在",
		"error.internal":               "服务器内部错误",
		"error.rate_limited":           "请求过于频繁，请稍后再试",
		"error.rate_limit_unavailable": "服务繁忙，请稍后再试",
		"error.login_too_many":         "操作过于频繁，请稍后再试",

		// 上下文取值
		"error.user_id_invalid":         "用户标识无效",
		"error.user_id_type_invalid":    "用户标识类型错误",
		"error.session_id_invalid":      "会话标识无效",
		"error.session_id_type_invalid": "会话标识类型错误",

		// 认证头与令牌
		"error.auth_header_missing": "缺少认证信息",
		"error.auth_header_invalid": "认证信息格式错误",
		"error.jwt_secret_missing":  "服务端未配置签名密钥",
		"error.token_invalid":       "令牌无效",
		"error.token_expired":       "令牌已过期",
		"error.token_revoked":       "登录状态已失效，请重新登录",
		"error.user_disabled":       "账号不可用",

		// 登录与注册
		"error.invalid_credentials": "邮箱或密码错误",
		"error.account_locked":      "登录失败次数过多，账号已临时锁定",
		"error.account_suspended":   "账号已被停用",
		"error.email_not_verified":  "邮箱尚未验证，请先完成验证",
		"error.email_exists":        "该邮箱已注册",
		"error.email_invalid":       "邮箱格式不正确",
		"error.agreement_required":  "请先同意用户协议",

		// 密码策略
		"error.weak_password":            "密码强度不足",
		"error.password_min_length":      "密码长度不能少于 %d 位",
		"error.password_require_upper":   "密码需包含大写字母",
		"error.password_require_lower":   "密码需包含小写字母",
		"error.password_require_number":  "密码需包含数字",
		"error.password_require_special": "密码需包含特殊字符",

		// 会话
		"error.session_not_found":    "会话不存在",
		"error.session_expired":      "会话已过期，请重新登录",
		"error.session_revoked":      "会话已被撤销",
		"error.token_reuse_detected": "检测到令牌异常使用，相关会话已全部下线",

		// 第三方登录
		"error.oauth_token_invalid":        "第三方登录凭证无效",
		"error.oauth_provider_unknown":     "不支持的第三方登录方式",
		"error.oauth_link_required":        "该邮箱已注册，请先登录后在安全设置中绑定",
		"error.account_already_linked":     "该第三方账号已被绑定",
		"error.cannot_unlink_last_account": "不能解绑唯一的登录方式",

		// 邮箱验证码
		"error.verify_code_invalid":           "验证码错误",
		"error.verify_code_expired":           "验证码已过期，请重新获取",
		"error.verify_code_too_frequent":      "验证码发送过于频繁，请稍后再试",
		"error.verify_code_attempts_exceeded": "验证码尝试次数过多，请重新获取",
		"error.verify_purpose_invalid":        "验证码用途无效",

		// 图形验证码
		"error.captcha_required":         "请完成图形验证码",
		"error.captcha_invalid":          "图形验证码错误",
		"error.captcha_config_invalid":   "验证码配置无效",
		"error.captcha_unavailable":      "图形验证码服务不可用",
		"error.captcha_generate_failed":  "图形验证码生成失败",

		// 邮件
		"error.email_service_disabled":   "邮件服务未启用",
		"error.email_not_configured":     "邮件服务未配置",
		"error.email_recipient_rejected": "收件地址不可用，请检查邮箱是否正确",

		// 操作兜底
		"error.register_failed":          "注册失败，请稍后再试",
		"error.verify_email_failed":      "邮箱验证失败，请稍后再试",
		"error.send_verify_code_failed":  "验证码发送失败，请稍后再试",
		"error.login_failed":             "登录失败，请稍后再试",
		"error.refresh_failed":           "令牌刷新失败，请重新登录",
		"error.reset_failed":             "密码重置失败，请稍后再试",
		"error.password_change_failed":   "密码修改失败，请稍后再试",
		"error.logout_failed":            "退出登录失败，请稍后再试",
		"error.profile_empty":            "昵称不能为空",
		"error.user_fetch_failed":        "用户信息获取失败",
		"error.user_update_failed":       "用户信息更新失败",
		"error.session_list_failed":      "会话列表获取失败",
		"error.session_revoke_failed":    "会话撤销失败，请稍后再试",
		"error.oauth_link_failed":        "第三方账号绑定失败，请稍后再试",
		"error.oauth_unlink_failed":      "第三方账号解绑失败，请稍后再试",
		"error.account_list_failed":      "绑定账号列表获取失败",
		"error.security_log_list_failed": "安全日志获取失败",
		"error.login_history_list_failed": "登录历史获取失败",
	},
	LocaleEN: {
		// 通用
		"error.bad_request":            "Invalid request parameters",
		"error.unauthorized":           "Not signed in or session expired",
		"error.forbidden":              "Access denied",
		"error.not_found":              "Resource not found",
		"error.internal":               "Internal server error",
		"error.rate_limited":           "Too many requests, please try again later",
		"error.rate_limit_unavailable": "Service busy, please try again later",
		"error.login_too_many":         "Too many attempts, please try again later",

		// 上下文取值
		"error.user_id_invalid":         "Invalid user identity",
		"error.user_id_type_invalid":    "Unexpected user identity type",
		"error.session_id_invalid":      "Invalid session identity",
		"error.session_id_type_invalid": "Unexpected session identity type",

		// 认证头与令牌
		"error.auth_header_missing": "Missing authorization header",
		"error.auth_header_invalid": "Malformed authorization header",
		"error.jwt_secret_missing":  "Signing secret not configured",
		"error.token_invalid":       "Invalid token",
		"error.token_expired":       "Token expired",
		"error.token_revoked":       "Sign-in state no longer valid, please sign in again",
		"error.user_disabled":       "Account unavailable",

		// 登录与注册
		"error.invalid_credentials": "Incorrect email or password",
		"error.account_locked":      "Too many failed attempts, account temporarily locked",
		"error.account_suspended":   "Account suspended",
		"error.email_not_verified":  "Email not verified yet",
		"error.email_exists":        "Email already registered",
		"error.email_invalid":       "Invalid email address",
		"error.agreement_required":  "Please accept the user agreement first",

		// 密码策略
		"error.weak_password":            "Password too weak",
		"error.password_min_length":      "Password must be at least %d characters",
		"error.password_require_upper":   "Password must contain an uppercase letter",
		"error.password_require_lower":   "Password must contain a lowercase letter",
		"error.password_require_number":  "Password must contain a digit",
		"error.password_require_special": "Password must contain a special character",

		// 会话
		"error.session_not_found":    "Session not found",
		"error.session_expired":      "Session expired, please sign in again",
		"error.session_revoked":      "Session revoked",
		"error.token_reuse_detected": "Token reuse detected, all related sessions signed out",

		// 第三方登录
		"error.oauth_token_invalid":        "Invalid third-party credential",
		"error.oauth_provider_unknown":     "Unsupported sign-in provider",
		"error.oauth_link_required":        "Email already registered, sign in and link this provider in security settings",
		"error.account_already_linked":     "This third-party account is already linked",
		"error.cannot_unlink_last_account": "Cannot unlink the only sign-in method",

		// 邮箱验证码
		"error.verify_code_invalid":           "Incorrect verification code",
		"error.verify_code_expired":           "Verification code expired, please request a new one",
		"error.verify_code_too_frequent":      "Verification codes sent too frequently, please try again later",
		"error.verify_code_attempts_exceeded": "Too many attempts, please request a new code",
		"error.verify_purpose_invalid":        "Invalid verification purpose",

		// 图形验证码
		"error.captcha_required":         "Please complete the captcha challenge",
		"error.captcha_invalid":          "Incorrect captcha answer",
		"error.captcha_config_invalid":   "Captcha configuration invalid",
		"error.captcha_unavailable":      "Captcha service unavailable",
		"error.captcha_generate_failed":  "Failed to generate captcha",

		// 邮件
		"error.email_service_disabled":   "Email service disabled",
		"error.email_not_configured":     "Email service not configured",
		"error.email_recipient_rejected": "Recipient address rejected, please check the email",

		// 操作兜底
		"error.register_failed":          "Registration failed, please try again later",
		"error.verify_email_failed":      "Email verification failed, please try again later",
		"error.send_verify_code_failed":  "Failed to send verification code, please try again later",
		"error.login_failed":             "Sign-in failed, please try again later",
		"error.refresh_failed":           "Token refresh failed, please sign in again",
		"error.reset_failed":             "Password reset failed, please try again later",
		"error.password_change_failed":   "Password change failed, please try again later",
		"error.logout_failed":            "Sign-out failed, please try again later",
		"error.profile_empty":            "Display name cannot be empty",
		"error.user_fetch_failed":        "Failed to load user profile",
		"error.user_update_failed":       "Failed to update user profile",
		"error.session_list_failed":      "Failed to load sessions",
		"error.session_revoke_failed":    "Failed to revoke session, please try again later",
		"error.oauth_link_failed":        "Failed to link third-party account, please try again later",
		"error.oauth_unlink_failed":      "Failed to unlink third-party account, please try again later",
		"error.account_list_failed":      "Failed to load linked accounts",
		"error.security_log_list_failed": "Failed to load security logs",
		"error.login_history_list_failed": "Failed to load login history",
	},
}
