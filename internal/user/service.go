// Package user は認証済みユーザー向けのアカウント参照機能を提供する。
package user

import (
	"context"
	"fmt"

	"github.com/hitoshi/budgetauth/internal/model"
)

// AccountReader はアカウント参照のインターフェース。
type AccountReader interface {
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindAll(ctx context.Context) ([]*model.Account, error)
}

// Service はユーザー参照のサービス層。
type Service struct {
	accounts AccountReader
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accounts AccountReader) *Service {
	return &Service{accounts: accounts}
}

// Current は認証主体に対応するアカウントを返す。
// フィルタ通過後にアカウントが削除された場合はNOT_FOUNDとなる。
func (s *Service) Current(ctx context.Context, identity *model.Identity) (*model.Account, error) {
	if identity == nil {
		return nil, model.NewUnauthorizedError()
	}
	account, err := s.accounts.FindByEmail(ctx, identity.Subject)
	if err != nil {
		return nil, fmt.Errorf("failed to find current account: %w", err)
	}
	if account == nil {
		return nil, model.NewNotFoundError()
	}
	return account, nil
}

// List は全アカウントを返す。ページングは行わない。
func (s *Service) List(ctx context.Context) ([]*model.Account, error) {
	accounts, err := s.accounts.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	if accounts == nil {
		accounts = []*model.Account{}
	}
	return accounts, nil
}
