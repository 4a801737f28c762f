// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/budgetauth/internal/model"
)

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByVerificationCode は未使用の検証コードでアカウントを検索する。見つからない場合はnilを返す。
	FindByVerificationCode(ctx context.Context, code string) (*model.Account, error)

	// FindAll は全アカウントを作成日時の昇順で返す。
	FindAll(ctx context.Context) ([]*model.Account, error)

	// Create はアカウントを新規作成する。
	// IDが空の場合は採番し、CreatedAtとUpdatedAtを現在時刻で設定する。
	// メールアドレスが重複している場合はDUPLICATE_EMAILのAPIErrorを返す。
	Create(ctx context.Context, account *model.Account) error

	// Save は既存アカウントを上書き更新する。UpdatedAtを現在時刻で設定する。
	// 対象が存在しない場合はNOT_FOUNDのAPIErrorを返す。
	Save(ctx context.Context, account *model.Account) error
}
