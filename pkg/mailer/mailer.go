package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"leavedesk/backend/config"
)

// Sender 邮件发送接口
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// NewSender 根据配置创建发送器；未配置 SMTP 时返回只记录日志的 noopSender
func NewSender(cfg *config.MailConfig, logger *zap.Logger) Sender {
	if !cfg.Enabled() {
		logger.Warn("未配置 SMTP，通知邮件将只记录日志")
		return &noopSender{logger: logger}
	}
	return &smtpSender{cfg: cfg, logger: logger}
}

// ── SMTP 实现 ──

type smtpSender struct {
	cfg    *config.MailConfig
	logger *zap.Logger
}

func (s *smtpSender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return fmt.Errorf("发件人地址无效: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("收件人地址无效: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(timeout),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.SMTPHost, opts...)
	if err != nil {
		return fmt.Errorf("创建 SMTP 客户端失败: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}

	s.logger.Info("通知邮件已发送", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// ── 未配置 SMTP 时的实现 ──

type noopSender struct {
	logger *zap.Logger
}

func (s *noopSender) Send(_ context.Context, to, subject, _ string) error {
	s.logger.Info("SMTP 未启用，跳过邮件发送", zap.String("to", to), zap.String("subject", subject))
	return nil
}
