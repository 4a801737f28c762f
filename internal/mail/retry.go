package mail

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/textproto"
	"time"
)

// DeliveryResult はSMTP送信エラーの分類。
type DeliveryResult int

const (
	// DeliveryOK は送信成功。
	DeliveryOK DeliveryResult = iota
	// DeliveryRetry は一時的な失敗（4xx応答・ネットワークエラー）。
	DeliveryRetry
	// DeliveryStop は恒久的な失敗（5xx応答など）。再送しない。
	DeliveryStop
)

const (
	// initialBackoff は再送の初回待機時間。
	initialBackoff = 500 * time.Millisecond
	// maxBackoff は再送待機時間の上限。
	maxBackoff = 4 * time.Second
)

// ClassifyDeliveryError は送信エラーを再送可否で分類する。
func ClassifyDeliveryError(err error) DeliveryResult {
	if err == nil {
		return DeliveryOK
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return DeliveryStop
	}

	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 400 && protoErr.Code < 500 {
			return DeliveryRetry
		}
		return DeliveryStop
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return DeliveryRetry
	}
	return DeliveryStop
}

// CalculateBackoff は再送回数に応じた指数バックオフの待機時間を返す。
// 初回500ms、2倍ずつ増加、最大4秒。
func CalculateBackoff(retries int) time.Duration {
	delay := initialBackoff
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// RetryingSender は一時的な送信失敗を指数バックオフで再送するSender。
type RetryingSender struct {
	next        Sender
	maxAttempts int
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewRetryingSender はRetryingSenderを生成する。maxAttemptsは初回を含む試行回数で、1未満は1とする。
func NewRetryingSender(next Sender, maxAttempts int, logger *slog.Logger) *RetryingSender {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingSender{
		next:        next,
		maxAttempts: maxAttempts,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Send はメールを送信し、一時的な失敗であれば再送する。
// 最後に発生したエラーを返す。
func (s *RetryingSender) Send(ctx context.Context, to, subject, body string) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = s.next.Send(ctx, to, subject, body)
		if ClassifyDeliveryError(err) != DeliveryRetry || attempt == s.maxAttempts {
			return err
		}

		delay := CalculateBackoff(attempt - 1)
		s.logger.Warn("mail delivery failed, retrying",
			slog.String("to", to),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
		if sleepErr := s.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Sender = (*RetryingSender)(nil)
