package service

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/tasknest-next/internal/config"
	"github.com/tasknest-next/internal/constants"
	"github.com/tasknest-next/internal/i18n"
)

// EmailService 邮件发送服务
// 只发纯文本：验证码邮件与安全提醒邮件。发送均走异步队列，这里是同步实现。
type EmailService struct {
	cfg *config.EmailConfig
}

// NewEmailService 创建邮件服务
func NewEmailService(cfg *config.EmailConfig) *EmailService {
	return &EmailService{cfg: cfg}
}

// SendVerifyCode 发送邮箱验证码
func (s *EmailService) SendVerifyCode(toEmail, code, purpose, locale string) error {
	subject, body := buildVerifyCodeContent(code, purpose, locale)
	return s.sendTextEmail(toEmail, subject, body)
}

// SecurityAlertInput 安全提醒邮件输入
type SecurityAlertInput struct {
	Event      string
	ClientIP   string
	OccurredAt time.Time
}

// SendSecurityAlert 发送安全提醒邮件（令牌异常使用、密码变更等）
func (s *EmailService) SendSecurityAlert(toEmail string, input SecurityAlertInput, locale string) error {
	subject, body := buildSecurityAlertContent(input, locale)
	return s.sendTextEmail(toEmail, subject, body)
}

func (s *EmailService) sendTextEmail(toEmail, subject, body string) error {
	if s.cfg == nil || !s.cfg.Enabled {
		return ErrEmailServiceDisabled
	}
	if s.cfg.Host == "" || s.cfg.Port == 0 || s.cfg.From == "" {
		return ErrEmailServiceNotConfigured
	}
	if _, err := mail.ParseAddress(toEmail); err != nil {
		return ErrInvalidEmail
	}

	from := buildFromAddress(s.cfg.From, s.cfg.FromName)
	msg := buildEmailMessage(from, toEmail, subject, body)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" || s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	if s.cfg.UseSSL {
		return normalizeEmailSendError(sendMailWithSSL(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg)))
	}
	if s.cfg.UseTLS {
		return normalizeEmailSendError(sendMailWithStartTLS(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg)))
	}
	return normalizeEmailSendError(sendMailPlain(addr, auth, s.cfg.Host, s.cfg.From, []string{toEmail}, []byte(msg)))
}

func buildVerifyCodeContent(code, purpose, locale string) (string, string) {
	purposeKey := strings.ToLower(strings.TrimSpace(purpose))
	switch i18n.Normalize(locale) {
	case i18n.LocaleEN:
		subject := "Email Verification Code"
		purposeText := "email verification"
		switch purposeKey {
		case constants.VerifyPurposeRegister:
			subject = "Registration Code"
			purposeText = "registration"
		case constants.VerifyPurposeReset:
			subject = "Password Reset Code"
			purposeText = "password reset"
		}
		body := fmt.Sprintf("Your verification code is: %s\n\nThis code is for %s. Do not share it.", code, purposeText)
		return subject, body
	default:
		subject := "邮箱验证码"
		purposeText := "邮箱验证"
		switch purposeKey {
		case constants.VerifyPurposeRegister:
			subject = "注册验证码"
			purposeText = "注册"
		case constants.VerifyPurposeReset:
			subject = "重置密码验证码"
			purposeText = "重置密码"
		}
		body := fmt.Sprintf("您的验证码是：%s\n\n该验证码用于 %s，请勿泄露。", code, purposeText)
		return subject, body
	}
}

func buildSecurityAlertContent(input SecurityAlertInput, locale string) (string, string) {
	at := input.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	when := at.Format("2006-01-02 15:04:05")
	ip := strings.TrimSpace(input.ClientIP)

	switch i18n.Normalize(locale) {
	case i18n.LocaleEN:
		if ip == "" {
			ip = "unknown"
		}
		switch input.Event {
		case constants.SecurityEventSuspicious:
			return "Security Alert: Unusual Token Activity",
				fmt.Sprintf("We detected unusual refresh token activity on your account at %s (IP: %s). All related sessions were signed out. If this was not you, please reset your password immediately.", when, ip)
		case constants.SecurityEventPasswordChanged:
			return "Security Alert: Password Changed",
				fmt.Sprintf("Your password was changed at %s (IP: %s). Other devices were signed out. If this was not you, please reset your password immediately.", when, ip)
		case constants.SecurityEventPasswordReset:
			return "Security Alert: Password Reset",
				fmt.Sprintf("Your password was reset at %s (IP: %s). All devices were signed out. If this was not you, please contact support.", when, ip)
		default:
			return "Security Alert",
				fmt.Sprintf("A security event (%s) occurred on your account at %s (IP: %s). If this was not you, please reset your password.", input.Event, when, ip)
		}
	default:
		if ip == "" {
			ip = "未知"
		}
		switch input.Event {
		case constants.SecurityEventSuspicious:
			return "安全提醒：检测到令牌异常使用",
				fmt.Sprintf("我们于 %s 检测到您的账号存在异常的刷新令牌使用（IP：%s），相关登录会话已全部下线。如非本人操作，请立即重置密码。", when, ip)
		case constants.SecurityEventPasswordChanged:
			return "安全提醒：密码已修改",
				fmt.Sprintf("您的账号密码于 %s 被修改（IP：%s），其他设备已退出登录。如非本人操作，请立即重置密码。", when, ip)
		case constants.SecurityEventPasswordReset:
			return "安全提醒：密码已重置",
				fmt.Sprintf("您的账号密码于 %s 被重置（IP：%s），所有设备已退出登录。如非本人操作，请联系客服。", when, ip)
		default:
			return "安全提醒",
				fmt.Sprintf("您的账号于 %s 发生安全事件（%s，IP：%s）。如非本人操作，请尽快重置密码。", when, input.Event, ip)
		}
	}
}

func buildFromAddress(from, name string) string {
	if strings.TrimSpace(name) == "" {
		return from
	}
	encoded := mime.QEncoding.Encode("UTF-8", name)
	return (&mail.Address{Name: encoded, Address: from}).String()
}

func buildEmailMessage(from, to, subject, body string) string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("From: %s\r\n", from))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", to))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", subject)))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)
	return buf.String()
}

func sendMailWithSSL(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

func sendMailWithStartTLS(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return err
	}

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

func sendMailPlain(addr string, auth smtp.Auth, host, from string, to []string, msg []byte) error {
	client, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(auth); err != nil {
				return err
			}
		}
	}

	return sendSMTPData(client, from, to, msg)
}

func sendSMTPData(client *smtp.Client, from string, to []string, msg []byte) error {
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func normalizeEmailSendError(err error) error {
	if err == nil {
		return nil
	}
	if isEmailRecipientRejected(err) {
		return ErrEmailRecipientRejected
	}
	return err
}

func isEmailRecipientRejected(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	if message == "" {
		return false
	}
	directKeywords := []string{
		"no such recipient",
		"no such user",
		"recipient not found",
		"recipient address rejected",
		"invalid recipient",
		"user unknown",
		"unknown user",
		"unknown mailbox",
		"mailbox unavailable",
	}
	for _, keyword := range directKeywords {
		if strings.Contains(message, keyword) {
			return true
		}
	}
	if strings.Contains(message, "550") {
		hints := []string{"recipient", "user", "mailbox", "address", "rcpt"}
		for _, hint := range hints {
			if strings.Contains(message, hint) {
				return true
			}
		}
	}
	return false
}
