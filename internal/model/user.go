// Package model はドメインモデルを定義する。
package model

import "time"

// Account は登録済みのユーザーアカウントを表す。
// Emailがログイン識別子（トークンのsubject）となる。
// VerificationCodeとVerificationExpiresAtは常に両方セットか両方nilのいずれか。
type Account struct {
	ID                    string
	FirstName             string
	LastName              string
	Email                 string
	PasswordHash          string
	Enabled               bool
	VerificationCode      *string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// FullName は姓名を連結した表示名を返す。
func (a *Account) FullName() string {
	return a.FirstName + " " + a.LastName
}

// HasPendingCode は未使用の検証コードが存在するかを返す。
func (a *Account) HasPendingCode() bool {
	return a.VerificationCode != nil && a.VerificationExpiresAt != nil
}

// SetVerificationCode は検証コードと有効期限を同時に設定する。
func (a *Account) SetVerificationCode(code string, expiresAt time.Time) {
	a.VerificationCode = &code
	a.VerificationExpiresAt = &expiresAt
}

// ClearVerificationCode は検証コードと有効期限を同時にクリアする。
func (a *Account) ClearVerificationCode() {
	a.VerificationCode = nil
	a.VerificationExpiresAt = nil
}

// Identity は認証済みリクエストの主体を表す。
// Accountから生成される読み取り専用の射影であり、永続化はしない。
type Identity struct {
	Subject     string
	Authorities []string
	Enabled     bool
}

// ToIdentity はAccountから認証主体を生成する。
// 権限は現状付与しないため常に空スライスとなる。
func ToIdentity(a *Account) *Identity {
	return &Identity{
		Subject:     a.Email,
		Authorities: []string{},
		Enabled:     a.Enabled,
	}
}
