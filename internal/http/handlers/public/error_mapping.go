package public

import (
	"errors"

	"github.com/tasknest-next/internal/http/response"
	"github.com/tasknest-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	key    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackKey string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.key, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackKey, err)
}

func concatMappedHandlerErrors(groups ...[]mappedHandlerError) []mappedHandlerError {
	total := 0
	for _, group := range groups {
		total += len(group)
	}
	result := make([]mappedHandlerError, 0, total)
	for _, group := range groups {
		result = append(result, group...)
	}
	return result
}

var captchaErrorRules = []mappedHandlerError{
	{target: service.ErrCaptchaRequired, code: response.CodeBadRequest, key: "error.captcha_required"},
	{target: service.ErrCaptchaInvalid, code: response.CodeBadRequest, key: "error.captcha_invalid"},
	{target: service.ErrCaptchaConfigInvalid, code: response.CodeInternal, key: "error.captcha_config_invalid"},
}

var verifyCodeErrorRules = []mappedHandlerError{
	{target: service.ErrVerifyCodeInvalid, code: response.CodeBadRequest, key: "error.verify_code_invalid"},
	{target: service.ErrVerifyCodeExpired, code: response.CodeBadRequest, key: "error.verify_code_expired"},
	{target: service.ErrVerifyCodeAttemptsExceeded, code: response.CodeBadRequest, key: "error.verify_code_attempts_exceeded"},
	{target: service.ErrVerifyCodeTooFrequent, code: response.CodeTooManyRequests, key: "error.verify_code_too_frequent"},
}

var userStateErrorRules = []mappedHandlerError{
	{target: service.ErrAccountLocked, code: response.CodeLocked, key: "error.account_locked"},
	{target: service.ErrAccountSuspended, code: response.CodeForbidden, key: "error.account_suspended"},
}

var credentialLoginErrorRules = concatMappedHandlerErrors(
	captchaErrorRules,
	userStateErrorRules,
	[]mappedHandlerError{
		{target: service.ErrInvalidEmail, code: response.CodeBadRequest, key: "error.email_invalid"},
		{target: service.ErrInvalidCredentials, code: response.CodeUnauthorized, key: "error.invalid_credentials"},
		{target: service.ErrEmailNotVerified, code: response.CodeUnauthorized, key: "error.email_not_verified"},
	},
)

var refreshErrorRules = concatMappedHandlerErrors(
	userStateErrorRules,
	[]mappedHandlerError{
		{target: service.ErrTokenReuseDetected, code: response.CodeUnauthorized, key: "error.token_reuse_detected"},
		{target: service.ErrSessionRevoked, code: response.CodeUnauthorized, key: "error.session_revoked"},
		{target: service.ErrSessionExpired, code: response.CodeUnauthorized, key: "error.session_expired"},
		{target: service.ErrSessionNotFound, code: response.CodeUnauthorized, key: "error.session_not_found"},
	},
)

var oauthLoginErrorRules = concatMappedHandlerErrors(
	userStateErrorRules,
	[]mappedHandlerError{
		{target: service.ErrOAuthProviderUnknown, code: response.CodeBadRequest, key: "error.oauth_provider_unknown"},
		{target: service.ErrOAuthTokenInvalid, code: response.CodeUnauthorized, key: "error.oauth_token_invalid"},
		{target: service.ErrOAuthLinkRequired, code: response.CodeConflict, key: "error.oauth_link_required"},
		{target: service.ErrInvalidEmail, code: response.CodeBadRequest, key: "error.email_invalid"},
	},
)

var oauthLinkErrorRules = []mappedHandlerError{
	{target: service.ErrOAuthProviderUnknown, code: response.CodeBadRequest, key: "error.oauth_provider_unknown"},
	{target: service.ErrOAuthTokenInvalid, code: response.CodeUnauthorized, key: "error.oauth_token_invalid"},
	{target: service.ErrAccountAlreadyLinked, code: response.CodeConflict, key: "error.account_already_linked"},
	{target: service.ErrInvalidEmail, code: response.CodeBadRequest, key: "error.email_invalid"},
	{target: service.ErrNotFound, code: response.CodeNotFound, key: "error.not_found"},
}

var oauthUnlinkErrorRules = []mappedHandlerError{
	{target: service.ErrCannotUnlinkLastAccount, code: response.CodeBadRequest, key: "error.cannot_unlink_last_account"},
	{target: service.ErrNotFound, code: response.CodeNotFound, key: "error.not_found"},
}

var sendVerifyCodeErrorRules = concatMappedHandlerErrors(
	captchaErrorRules,
	verifyCodeErrorRules,
	[]mappedHandlerError{
		{target: service.ErrInvalidEmail, code: response.CodeBadRequest, key: "error.email_invalid"},
		{target: service.ErrInvalidVerifyPurpose, code: response.CodeBadRequest, key: "error.verify_purpose_invalid"},
		{target: service.ErrEmailExists, code: response.CodeBadRequest, key: "error.email_exists"},
		{target: service.ErrNotFound, code: response.CodeNotFound, key: "error.not_found"},
		{target: service.ErrEmailRecipientRejected, code: response.CodeBadRequest, key: "error.email_recipient_rejected"},
		{target: service.ErrEmailServiceDisabled, code: response.CodeInternal, key: "error.email_service_disabled"},
		{target: service.ErrEmailServiceNotConfigured, code: response.CodeInternal, key: "error.email_not_configured"},
	},
)

func respondLoginError(c *gin.Context, err error) {
	respondWithMappedError(c, err, credentialLoginErrorRules, response.CodeInternal, "error.login_failed")
}

func respondRefreshError(c *gin.Context, err error) {
	respondWithMappedError(c, err, refreshErrorRules, response.CodeInternal, "error.refresh_failed")
}

func respondOAuthLoginError(c *gin.Context, err error) {
	respondWithMappedError(c, err, oauthLoginErrorRules, response.CodeInternal, "error.login_failed")
}

func respondSendVerifyCodeError(c *gin.Context, err error) {
	respondWithMappedError(c, err, sendVerifyCodeErrorRules, response.CodeInternal, "error.send_verify_code_failed")
}
