package queue

import (
	"encoding/json"

	"github.com/tasknest-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskVerifyCodeEmail 邮箱验证码发送任务
	TaskVerifyCodeEmail = constants.TaskVerifyCodeEmail
	// TaskSecurityAlertEmail 安全提醒邮件任务
	TaskSecurityAlertEmail = constants.TaskSecurityAlertEmail
)

// VerifyCodeEmailPayload 验证码邮件任务载荷
type VerifyCodeEmailPayload struct {
	Email   string `json:"email"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
	Locale  string `json:"locale"`
}

// SecurityAlertEmailPayload 安全提醒邮件任务载荷
type SecurityAlertEmailPayload struct {
	Email      string `json:"email"`
	Event      string `json:"event"`
	ClientIP   string `json:"client_ip"`
	OccurredAt int64  `json:"occurred_at"` // Unix 秒
	Locale     string `json:"locale"`
}

// NewVerifyCodeEmailTask 创建验证码邮件任务
func NewVerifyCodeEmailTask(payload VerifyCodeEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskVerifyCodeEmail, body), nil
}

// NewSecurityAlertEmailTask 创建安全提醒邮件任务
func NewSecurityAlertEmailTask(payload SecurityAlertEmailPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSecurityAlertEmail, body), nil
}
