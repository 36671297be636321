// Package mail はメール送信を提供する。
package mail

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
)

// Sender はメール送信のインターフェース。
// 送信は1回のみ試行し、失敗はerrorで返す。
type Sender interface {
	SendMail(ctx context.Context, to, subject, body string, isHTML bool) error
}

// SMTPConfig はSMTP接続の設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender はSMTPでメールを送信する。
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// buildMessage は送信メッセージを組み立てる。
func (s *SMTPSender) buildMessage(to, subject, body string, isHTML bool) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(s.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}
	msg.Subject(subject)

	contentType := gomail.TypeTextPlain
	if isHTML {
		contentType = gomail.TypeTextHTML
	}
	msg.SetBodyString(contentType, body)
	return msg, nil
}

// SendMail はメールを1通送信する。
func (s *SMTPSender) SendMail(ctx context.Context, to, subject, body string, isHTML bool) error {
	msg, err := s.buildMessage(to, subject, body, isHTML)
	if err != nil {
		return err
	}

	opts := []gomail.Option{
		gomail.WithPort(s.cfg.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.cfg.Username),
			gomail.WithPassword(s.cfg.Password),
		)
	}

	client, err := gomail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// LogSender はメールを送信せずログに出力する。SMTP未設定の開発環境向け。
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender はLogSenderを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// SendMail は宛先と件名をログに出力する。
// 本文には確認トークンが含まれるため、長さのみを記録する。
func (s *LogSender) SendMail(ctx context.Context, to, subject, body string, isHTML bool) error {
	s.logger.InfoContext(ctx, "メール送信（ログ出力のみ）",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.Bool("html", isHTML),
		slog.Int("body_bytes", len(body)),
	)
	return nil
}

// compile-time interface check
var (
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*LogSender)(nil)
)
