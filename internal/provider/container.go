package provider

import (
	"github.com/tasknest-next/internal/cache"
	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/logger"
	"github.com/tasknest-next/internal/models"
	"github.com/tasknest-next/internal/oauth"
	"github.com/tasknest-next/internal/queue"
	"github.com/tasknest-next/internal/repository"
	"github.com/tasknest-next/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	UserRepo            repository.UserRepository
	AccountRepo         repository.AccountRepository
	SessionRepo         repository.SessionRepository
	LoginAttemptRepo    repository.LoginAttemptRepository
	SecurityLogRepo     repository.SecurityLogRepository
	EmailVerifyCodeRepo repository.EmailVerifyCodeRepository

	// Services
	TokenService          *service.TokenService
	SessionService        *service.SessionService
	LoginAttemptService   *service.LoginAttemptService
	SecurityLogService    *service.SecurityLogService
	AccountLinkingService *service.AccountLinkingService
	CaptchaService        *service.CaptchaService
	EmailService          *service.EmailService
	UserAuthService       *service.UserAuthService

	// OAuth
	OAuthRegistry *oauth.Registry
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.UserRepo = repository.NewUserRepository(db)
	c.AccountRepo = repository.NewAccountRepository(db)
	c.SessionRepo = repository.NewSessionRepository(db)
	c.LoginAttemptRepo = repository.NewLoginAttemptRepository(db)
	c.SecurityLogRepo = repository.NewSecurityLogRepository(db)
	c.EmailVerifyCodeRepo = repository.NewEmailVerifyCodeRepository(db)
}

func (c *Container) initServices() {
	c.TokenService = service.NewTokenService(c.Config)
	c.SessionService = service.NewSessionService(c.SessionRepo, c.TokenService)
	c.LoginAttemptService = service.NewLoginAttemptService(c.LoginAttemptRepo, c.Config.Security.LoginLockout)
	c.SecurityLogService = service.NewSecurityLogService(c.SecurityLogRepo)
	c.AccountLinkingService = service.NewAccountLinkingService(
		c.UserRepo,
		c.AccountRepo,
		c.SecurityLogService,
		c.Config.OAuth.TrustedProviders,
	)
	c.CaptchaService = service.NewCaptchaService(c.Config.Captcha)
	c.EmailService = service.NewEmailService(&c.Config.Email)
	c.OAuthRegistry = oauth.NewRegistry(&c.Config.OAuth)
	c.UserAuthService = service.NewUserAuthService(
		c.Config,
		c.UserRepo,
		c.AccountRepo,
		c.EmailVerifyCodeRepo,
		c.TokenService,
		c.SessionService,
		c.LoginAttemptService,
		c.SecurityLogService,
		c.AccountLinkingService,
		c.OAuthRegistry,
		c.CaptchaService,
		c.EmailService,
		c.QueueClient,
	)
}
