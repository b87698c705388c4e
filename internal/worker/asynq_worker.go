package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tasknest-next/internal/logger"
	"github.com/tasknest-next/internal/provider"
	"github.com/tasknest-next/internal/queue"
	"github.com/tasknest-next/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskVerifyCodeEmail, c.handleVerifyCodeEmail)
	mux.HandleFunc(queue.TaskSecurityAlertEmail, c.handleSecurityAlertEmail)
}

func (c *Consumer) handleVerifyCodeEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_verify_code_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.VerifyCodeEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_verify_code_email_unmarshal_failed", "error", err)
		return err
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" || strings.TrimSpace(payload.Code) == "" {
		logger.Debugw("worker_verify_code_email_skip_invalid_payload", "email", email, "purpose", payload.Purpose)
		return nil
	}
	if c.EmailService == nil {
		logger.Warnw("worker_verify_code_email_skip_email_service_nil", "email", email)
		return nil
	}
	if err := c.EmailService.SendVerifyCode(email, payload.Code, payload.Purpose, payload.Locale); err != nil {
		if isPermanentEmailError(err) {
			logger.Debugw("worker_verify_code_email_skip_unsendable", "email", email, "purpose", payload.Purpose, "error", err)
			return nil
		}
		logger.Warnw("worker_verify_code_email_send_failed", "email", email, "purpose", payload.Purpose, "error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleSecurityAlertEmail(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_security_alert_email_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SecurityAlertEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_security_alert_email_unmarshal_failed", "error", err)
		return err
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" || strings.TrimSpace(payload.Event) == "" {
		logger.Debugw("worker_security_alert_email_skip_invalid_payload", "email", email, "event", payload.Event)
		return nil
	}
	if c.EmailService == nil {
		logger.Warnw("worker_security_alert_email_skip_email_service_nil", "email", email)
		return nil
	}
	occurredAt := time.Now()
	if payload.OccurredAt > 0 {
		occurredAt = time.Unix(payload.OccurredAt, 0)
	}
	input := service.SecurityAlertInput{
		Event:      payload.Event,
		ClientIP:   payload.ClientIP,
		OccurredAt: occurredAt,
	}
	if err := c.EmailService.SendSecurityAlert(email, input, payload.Locale); err != nil {
		if isPermanentEmailError(err) {
			logger.Debugw("worker_security_alert_email_skip_unsendable", "email", email, "event", payload.Event, "error", err)
			return nil
		}
		logger.Warnw("worker_security_alert_email_send_failed", "email", email, "event", payload.Event, "error", err)
		return err
	}
	return nil
}

// isPermanentEmailError 重试也无法成功的发送错误，直接丢弃任务
func isPermanentEmailError(err error) bool {
	return errors.Is(err, service.ErrEmailServiceDisabled) ||
		errors.Is(err, service.ErrEmailServiceNotConfigured) ||
		errors.Is(err, service.ErrEmailRecipientRejected) ||
		errors.Is(err, service.ErrInvalidEmail)
}
