// Package token はJWT（HS256）の発行と検証を提供する。
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/budgetauth/internal/model"
)

// 発行時に予約されているクレーム名。追加クレームで上書きできない。
var reservedClaims = map[string]struct{}{
	"sub": {},
	"iat": {},
	"exp": {},
}

// Service はトークンの発行・検証を行う。
// 秘密鍵と有効期間は生成後に変更しない。
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option はServiceの生成オプション。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。テストで時刻を固定するために使用する。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// MinSecretLength はHS256の秘密鍵として受け付ける最小バイト数（256ビット）。
const MinSecretLength = 32

// New は秘密鍵と有効期間からServiceを生成する。
func New(secret []byte, ttl time.Duration, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes: got %d", MinSecretLength, len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive: %v", ttl)
	}

	s := &Service{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromBase64 はBase64エンコードされた秘密鍵からServiceを生成する。
func NewFromBase64(encodedSecret string, ttl time.Duration, opts ...Option) (*Service, error) {
	secret, err := base64.StdEncoding.DecodeString(encodedSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to decode token secret: %w", err)
	}
	return New(secret, ttl, opts...)
}

// TTL はトークンの有効期間を返す。
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue はsubjectと追加クレームを含む署名済みトークンを発行する。
// iatは現在時刻、expは現在時刻+TTLとなる。
func (s *Service) Issue(subject string, extraClaims map[string]any) (string, error) {
	now := s.now()

	claims := jwt.MapClaims{}
	for k, v := range extraClaims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		claims[k] = v
	}
	claims["sub"] = subject
	claims["iat"] = jwt.NewNumericDate(now)
	claims["exp"] = jwt.NewNumericDate(now.Add(s.ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ExtractSubject は署名を検証したうえでsubjectを取り出す。
// 有効期限は検証しない。解析に失敗した場合はTOKEN_DECODINGのAPIErrorを返す。
func (s *Service) ExtractSubject(tokenString string) (string, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return "", model.NewTokenDecodingError(err)
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return "", model.NewTokenDecodingError(err)
	}
	return sub, nil
}

// Validate はトークンが有効かを判定する。
// 署名が正しく、expが現在時刻より厳密に後で、subjectがexpectedSubjectと一致する場合のみtrueを返す。
func (s *Service) Validate(tokenString, expectedSubject string) bool {
	claims, err := s.parse(tokenString)
	if err != nil {
		return false
	}

	sub, err := claims.GetSubject()
	if err != nil || sub != expectedSubject {
		return false
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.After(s.now())
}

// parse は署名とアルゴリズムのみを検証してクレームを返す。
// 時刻系クレームの検証は呼び出し側で明示的に行う。
func (s *Service) parse(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
