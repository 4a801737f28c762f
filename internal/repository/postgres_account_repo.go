package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/budgetauth/internal/model"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

const accountColumns = `id, first_name, last_name, email, password_hash, enabled,
	verification_code, verification_expires_at, created_at, updated_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE email = $1`,
		email,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by email: %w", err)
	}
	return account, nil
}

// FindByVerificationCode は未使用の検証コードでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByVerificationCode(ctx context.Context, code string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM users WHERE verification_code = $1`,
		code,
	)
	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find account by verification code: %w", err)
	}
	return account, nil
}

// FindAll は全アカウントを作成日時の昇順で返す。
func (r *PostgresAccountRepo) FindAll(ctx context.Context) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM users ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*model.Account{}
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}
	return accounts, nil
}

// Create はアカウントを新規作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := r.now()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, account.FirstName, account.LastName, account.Email, account.PasswordHash,
		account.Enabled, nullString(account.VerificationCode), nullTime(account.VerificationExpiresAt),
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.NewDuplicateEmailError(account.Email)
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

// Save は既存アカウントを上書き更新する。
func (r *PostgresAccountRepo) Save(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = r.now()

	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET first_name = $2, last_name = $3, email = $4, password_hash = $5, enabled = $6,
		     verification_code = $7, verification_expires_at = $8, updated_at = $9
		 WHERE id = $1`,
		account.ID, account.FirstName, account.LastName, account.Email, account.PasswordHash,
		account.Enabled, nullString(account.VerificationCode), nullTime(account.VerificationExpiresAt),
		account.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return model.NewDuplicateEmailError(account.Email)
		}
		return fmt.Errorf("failed to update account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewNotFoundError()
	}
	return nil
}

// scanAccount は1行分のカラムをAccountに読み込む。
func scanAccount(s rowScanner) (*model.Account, error) {
	account := &model.Account{}
	var code sql.NullString
	var expiresAt sql.NullTime

	err := s.Scan(
		&account.ID, &account.FirstName, &account.LastName, &account.Email, &account.PasswordHash,
		&account.Enabled, &code, &expiresAt, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if code.Valid {
		account.VerificationCode = &code.String
	}
	if expiresAt.Valid {
		account.VerificationExpiresAt = &expiresAt.Time
	}
	return account, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
