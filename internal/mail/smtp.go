// Package mail はメール送信を提供する。
package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Sender はメール送信のインターフェース。
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMTPConfig はSMTP接続設定を保持する。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Auth     bool          // PLAIN認証を行うか
	StartTLS bool          // STARTTLSを要求するか
	Timeout  time.Duration // 接続から送信完了までのタイムアウト
}

// SMTPSender はSMTPサーバー経由でプレーンテキストメールを送信する。
type SMTPSender struct {
	config SMTPConfig
	logger *slog.Logger
}

// NewSMTPSender はSMTPSenderを生成する。
func NewSMTPSender(config SMTPConfig, logger *slog.Logger) *SMTPSender {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &SMTPSender{
		config: config,
		logger: logger,
	}
}

// Send は1通のメールを送信する。
// ctxのキャンセルまたはタイムアウトで接続を打ち切る。
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	// 1. TCP接続
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect smtp server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create smtp client: %w", err)
	}
	defer c.Close()

	// 2. STARTTLS
	if s.config.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp server %s does not support STARTTLS", addr)
		}
		if err := c.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}

	// 3. 認証
	if s.config.Auth && s.config.Username != "" {
		auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate smtp: %w", err)
		}
	}

	// 4. エンベロープと本文
	if err := c.Mail(s.config.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("failed to open data writer: %w", err)
	}
	if _, err := w.Write(buildMessage(s.config.From, to, subject, body)); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		s.logger.Warn("smtp quit failed", slog.String("error", err.Error()))
	}

	s.logger.Info("mail sent", slog.String("to", to), slog.String("subject", subject))
	return nil
}

// buildMessage はヘッダーと本文からRFC 5322形式のメッセージを組み立てる。
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

var _ Sender = (*SMTPSender)(nil)
