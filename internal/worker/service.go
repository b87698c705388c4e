package worker

import (
	"context"
	"errors"
	"time"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/logger"
	"github.com/tasknest-next/internal/queue"

	"github.com/hibiken/asynq"
)

const (
	sessionCleanupInterval = time.Hour
	// 过期会话保留 30 天供安全排查，之后物理清理
	sessionRetention = 30 * 24 * time.Hour
	// 验证码过期 24 小时后即无排查价值
	verifyCodeRetention = 24 * time.Hour
)

// Service 异步队列服务
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:     "worker",
		server:   server,
		mux:      mux,
		consumer: consumer,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.Container != nil {
		go s.runSessionCleanupLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runSessionCleanupLoop 周期清理早已过期的会话与验证码记录
func (s *Service) runSessionCleanupLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.Container == nil {
		return
	}
	runOnce := func() {
		now := time.Now()
		if repo := s.consumer.SessionRepo; repo != nil {
			if purged, err := repo.DeleteExpiredBefore(now.Add(-sessionRetention)); err != nil {
				logger.Warnw("worker_session_cleanup_failed", "error", err)
			} else if purged > 0 {
				logger.Infow("worker_session_cleanup_done", "purged", purged)
			}
		}
		if repo := s.consumer.EmailVerifyCodeRepo; repo != nil {
			if purged, err := repo.DeleteExpiredBefore(now.Add(-verifyCodeRetention)); err != nil {
				logger.Warnw("worker_verify_code_cleanup_failed", "error", err)
			} else if purged > 0 {
				logger.Infow("worker_verify_code_cleanup_done", "purged", purged)
			}
		}
	}
	runOnce()

	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
