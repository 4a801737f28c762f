package mail

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"testing"
	"time"
)

type stubSender struct {
	errs  []error
	calls int
}

func (s *stubSender) Send(ctx context.Context, to, subject, body string) error {
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func newTestRetryingSender(next Sender, attempts int) (*RetryingSender, *[]time.Duration) {
	var slept []time.Duration
	s := NewRetryingSender(next, attempts, newDiscardLogger())
	s.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return s, &slept
}

func TestClassifyDeliveryError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want DeliveryResult
	}{
		{"nil", nil, DeliveryOK},
		{"mailbox busy", fmt.Errorf("failed to set recipient: %w", &textproto.Error{Code: 450, Msg: "mailbox busy"}), DeliveryRetry},
		{"no such user", fmt.Errorf("failed to set recipient: %w", &textproto.Error{Code: 550, Msg: "no such user"}), DeliveryStop},
		{"connection refused", fmt.Errorf("failed to connect smtp server: %w", &net.OpError{Op: "dial", Err: errors.New("connection refused")}), DeliveryRetry},
		{"canceled", fmt.Errorf("failed to connect smtp server: %w", context.Canceled), DeliveryStop},
		{"starttls unsupported", errors.New("smtp server does not support STARTTLS"), DeliveryStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyDeliveryError(tt.err); got != tt.want {
				t.Errorf("ClassifyDeliveryError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCalculateBackoff_DoublesUpToMax(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 4 * time.Second},
	}

	for _, tt := range tests {
		if got := CalculateBackoff(tt.retries); got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.retries, got, tt.want)
		}
	}
}

func TestRetryingSender_RetriesTransientFailure(t *testing.T) {
	next := &stubSender{errs: []error{&textproto.Error{Code: 421, Msg: "try again later"}}}
	s, slept := newTestRetryingSender(next, 3)

	if err := s.Send(context.Background(), "jane@example.com", "subject", "body"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if next.calls != 2 {
		t.Errorf("calls = %d, want 2", next.calls)
	}
	if len(*slept) != 1 || (*slept)[0] != initialBackoff {
		t.Errorf("slept = %v, want [%v]", *slept, initialBackoff)
	}
}

func TestRetryingSender_PermanentFailure_NoRetry(t *testing.T) {
	permanent := &textproto.Error{Code: 550, Msg: "no such user"}
	next := &stubSender{errs: []error{permanent}}
	s, slept := newTestRetryingSender(next, 3)

	err := s.Send(context.Background(), "ghost@example.com", "subject", "body")
	if !errors.Is(err, permanent) {
		t.Errorf("error = %v, want %v", err, permanent)
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept = %v, want none", *slept)
	}
}

func TestRetryingSender_GivesUpAfterMaxAttempts(t *testing.T) {
	transient := &textproto.Error{Code: 451, Msg: "local error"}
	next := &stubSender{errs: []error{transient, transient, transient, transient}}
	s, _ := newTestRetryingSender(next, 3)

	err := s.Send(context.Background(), "jane@example.com", "subject", "body")
	if !errors.Is(err, transient) {
		t.Errorf("error = %v, want %v", err, transient)
	}
	if next.calls != 3 {
		t.Errorf("calls = %d, want 3", next.calls)
	}
}

func TestRetryingSender_StopsWhenContextCanceled(t *testing.T) {
	next := &stubSender{errs: []error{&textproto.Error{Code: 421}, &textproto.Error{Code: 421}}}
	s, _ := newTestRetryingSender(next, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Send(ctx, "jane@example.com", "subject", "body"); err == nil {
		t.Fatal("Send() should return the delivery error")
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
}

func TestNewRetryingSender_MinimumOneAttempt(t *testing.T) {
	next := &stubSender{errs: []error{&textproto.Error{Code: 421}}}
	s, _ := newTestRetryingSender(next, 0)

	if err := s.Send(context.Background(), "jane@example.com", "subject", "body"); err == nil {
		t.Fatal("Send() should return the delivery error")
	}
	if next.calls != 1 {
		t.Errorf("calls = %d, want 1", next.calls)
	}
}
