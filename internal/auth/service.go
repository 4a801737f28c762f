// Package auth はアカウント登録、メールアドレス検証、パスワードログインを提供する。
//
// アカウントは Unregistered → PendingVerification → Verified の順に遷移する。
// 検証済みになったアカウントが未検証に戻ることはない。
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/budgetauth/internal/mail"
	"github.com/hitoshi/budgetauth/internal/metrics"
	"github.com/hitoshi/budgetauth/internal/model"
	"github.com/hitoshi/budgetauth/internal/repository"
	"github.com/hitoshi/budgetauth/internal/verification"
)

const (
	verificationSubject = "Account Verification"
	verificationBody    = "Your verification code is %s."
)

// RegisterInput はアカウント登録の入力値。
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	hasher   PasswordHasher
	codes    verification.Generator
	mailer   mail.Sender
	metrics  metrics.MetricsCollector
	locks    *keyedMutex
	now      func() time.Time
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	accounts repository.AccountRepository,
	hasher PasswordHasher,
	codes verification.Generator,
	mailer mail.Sender,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		codes:    codes,
		mailer:   mailer,
		metrics:  collector,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Register は未検証アカウントを作成し、検証コードをメールで送信する。
// メール送信に失敗した場合はアカウントを保存せずEMAIL_DELIVERY_FAILEDを返す。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	account, err := s.register(ctx, in)
	s.metrics.RecordRegistration(outcomeOf(err))
	return account, err
}

func (s *Service) register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	// 1. メールアドレスの重複確認
	existing, err := s.accounts.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEmailError(in.Email)
	}

	// 2. パスワードのハッシュ化
	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	// 3. 検証コードの発行
	code, expiresAt := verification.NewCode(s.codes, s.now())
	account := &model.Account{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: passwordHash,
		Enabled:      false,
	}
	account.SetVerificationCode(code, expiresAt)

	// 4. 検証メールの送信（失敗時は保存しない）
	if err := s.sendVerificationEmail(ctx, account.Email, code); err != nil {
		return nil, err
	}

	// 5. 保存（同時登録による一意制約違反はDUPLICATE_EMAILとして返る）
	if err := s.accounts.Create(ctx, account); err != nil {
		if model.IsCode(err, model.ErrCodeDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("account registered",
		slog.String("account_id", account.ID),
		slog.String("email", account.Email),
	)
	return account, nil
}

// Login はメールアドレスとパスワードでアカウントを認証する。
// 未検証アカウントはパスワードの正否に関わらずACCOUNT_NOT_VERIFIEDとなる。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Account, error) {
	account, err := s.login(ctx, email, password)
	s.metrics.RecordLogin(outcomeOf(err))
	return account, err
}

func (s *Service) login(ctx context.Context, email, password string) (*model.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewNotFoundError()
	}
	if !account.Enabled {
		return nil, model.NewAccountNotVerifiedError()
	}

	ok, err := s.hasher.Compare(account.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.Warn("login rejected", slog.String("email", email), slog.String("reason", "password mismatch"))
		return nil, model.NewInvalidCredentialsError()
	}

	return account, nil
}

// Verify は検証コードを照合し、一致すればアカウントを有効化する。
// 期限切れはコード照合より先に判定する。
func (s *Service) Verify(ctx context.Context, email, code string) error {
	err := s.verify(ctx, email, code)
	s.metrics.RecordVerification(outcomeOf(err))
	return err
}

func (s *Service) verify(ctx context.Context, email, code string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return model.NewNotFoundError()
	}

	// 検証済み（コードがクリア済み）の場合はコード不一致として扱う
	if !account.HasPendingCode() {
		return model.NewInvalidCodeError()
	}
	if s.now().After(*account.VerificationExpiresAt) {
		return model.NewCodeExpiredError()
	}
	if subtle.ConstantTimeCompare([]byte(*account.VerificationCode), []byte(code)) != 1 {
		return model.NewInvalidCodeError()
	}

	account.Enabled = true
	account.ClearVerificationCode()
	if err := s.accounts.Save(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	slog.Info("account verified", slog.String("email", email))
	return nil
}

// ResendVerificationCode は検証コードを再発行してメールで送信する。
// メール送信に失敗した場合は新しいコードを保存しない。
func (s *Service) ResendVerificationCode(ctx context.Context, email string) error {
	err := s.resend(ctx, email)
	s.metrics.RecordResend(outcomeOf(err))
	return err
}

func (s *Service) resend(ctx context.Context, email string) error {
	unlock := s.locks.Lock(email)
	defer unlock()

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return model.NewNotFoundError()
	}
	if account.Enabled {
		return model.NewAlreadyVerifiedError()
	}

	code, expiresAt := verification.NewCode(s.codes, s.now())
	account.SetVerificationCode(code, expiresAt)

	if err := s.sendVerificationEmail(ctx, account.Email, code); err != nil {
		return err
	}

	if err := s.accounts.Save(ctx, account); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	slog.Info("verification code resent", slog.String("email", email))
	return nil
}

// sendVerificationEmail は検証コードを含むメールを送信する。
func (s *Service) sendVerificationEmail(ctx context.Context, to, code string) error {
	err := s.mailer.Send(ctx, to, verificationSubject, fmt.Sprintf(verificationBody, code))
	s.metrics.RecordEmailSend(err == nil)
	if err != nil {
		slog.Error("failed to send verification email",
			slog.String("email", to),
			slog.String("error", err.Error()),
		)
		return model.NewEmailDeliveryError(err)
	}
	return nil
}

// outcomeOf はメトリクス用の結果ラベルを返す。
func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return "INTERNAL_ERROR"
}
