package router

import (
	"fmt"
	"strings"

	"github.com/tasknest-next/internal/cache"
	"github.com/tasknest-next/internal/config"
	publichandlers "github.com/tasknest-next/internal/http/handlers/public"
	"github.com/tasknest-next/internal/logger"
	"github.com/tasknest-next/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "tn"
	}
	redisClient := cache.Client()
	loginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		MessageKey:    "error.login_too_many",
	}
	refreshRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:refresh", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		MessageKey:    "error.login_too_many",
	}
	sendCodeRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:send_code", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		MessageKey:    "error.login_too_many",
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 公开接口
		public := apiV1.Group("/public")
		{
			public.GET("/captcha/image", publicHandler.GetImageCaptcha)
		}

		// 认证接口（无需登录态）
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.UserRegister)
			auth.POST("/email/verify", publicHandler.UserVerifyEmail)
			auth.POST("/email/resend", RateLimitMiddleware(redisClient, sendCodeRule, KeyByIPAndJSONField("email")), publicHandler.ResendVerifyEmail)
			auth.POST("/login", RateLimitMiddleware(redisClient, loginRule, KeyByIPAndJSONField("email")), publicHandler.UserLogin)
			auth.POST("/refresh", RateLimitMiddleware(redisClient, refreshRule, KeyByIP), publicHandler.RefreshToken)
			auth.POST("/oauth/login", RateLimitMiddleware(redisClient, loginRule, KeyByIP), publicHandler.UserOAuthLogin)
			auth.POST("/password/forgot", RateLimitMiddleware(redisClient, sendCodeRule, KeyByIPAndJSONField("email")), publicHandler.ForgotPassword)
			auth.POST("/password/reset", publicHandler.ResetPassword)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(c.TokenService, c.SessionRepo, c.UserRepo))
		{
			user.GET("/me", publicHandler.GetCurrentUser)
			user.PUT("/me/profile", publicHandler.UpdateUserProfile)
			user.PUT("/me/password", publicHandler.ChangeUserPassword)
			user.POST("/me/logout", publicHandler.UserLogout)
			user.POST("/me/logout-all", publicHandler.UserLogoutAll)
			user.GET("/me/sessions", publicHandler.ListUserSessions)
			user.DELETE("/me/sessions", publicHandler.RevokeOtherUserSessions)
			user.DELETE("/me/sessions/:id", publicHandler.RevokeUserSession)
			user.GET("/me/accounts", publicHandler.ListLinkedAccounts)
			user.POST("/me/oauth/link", publicHandler.LinkOAuthAccount)
			user.POST("/me/oauth/unlink", publicHandler.UnlinkOAuthAccount)
			user.GET("/me/security-logs", publicHandler.ListUserSecurityLogs)
			user.GET("/me/login-history", publicHandler.ListUserLoginHistory)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
