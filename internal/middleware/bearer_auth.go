// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/budgetauth/internal/metrics"
	"github.com/hitoshi/budgetauth/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証主体を格納するためのキー。
var identityContextKey = contextKey("identity")

// TokenVerifier はBearerトークンの検証に必要なインターフェース。
// token.Serviceが実装する。
type TokenVerifier interface {
	ExtractSubject(token string) (string, error)
	Validate(token, expectedSubject string) bool
}

// AccountFinder はトークンのsubjectからアカウントを引くためのインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountFinder interface {
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
}

// ErrorResponder はトークンのデコード失敗時にレスポンスを書き込む関数。
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// BearerAuthOption はBearer認証ミドルウェアのオプション。
type BearerAuthOption func(*bearerAuth)

// WithTokenMetrics はトークン検証結果をcollectorに記録する。
func WithTokenMetrics(collector metrics.MetricsCollector) BearerAuthOption {
	return func(b *bearerAuth) {
		b.metrics = collector
	}
}

type bearerAuth struct {
	tokens   TokenVerifier
	accounts AccountFinder
	onError  ErrorResponder
	metrics  metrics.MetricsCollector
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 有効であれば認証主体をリクエストコンテキストに注入するミドルウェアを返す。
//
// ヘッダーがない、またはBearer形式でない場合は未認証のまま後続へ渡す。
// トークンがデコードできない場合はonErrorに委譲してチェーンを中断する。
// 拒否するかどうかの判断は後段のRequireIdentityが行う。
func NewBearerAuthMiddleware(tokens TokenVerifier, accounts AccountFinder, onError ErrorResponder, opts ...BearerAuthOption) func(next http.Handler) http.Handler {
	b := &bearerAuth{
		tokens:   tokens,
		accounts: accounts,
		onError:  onError,
		metrics:  metrics.NopCollector{},
	}
	if b.onError == nil {
		b.onError = WriteTokenDecodingError
	}
	for _, opt := range opts {
		opt(b)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. Authorizationヘッダーからトークンを取得
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimPrefix(header, bearerPrefix)

			// 2. subjectを取り出す（署名と構造のみ検証）
			subject, err := b.tokens.ExtractSubject(token)
			if err != nil {
				b.metrics.RecordTokenValidation(false)
				b.onError(w, r, err)
				return
			}

			// 3. 未認証ならアカウントを引いてトークンを検証
			if _, ok := IdentityFromContext(r.Context()); subject != "" && !ok {
				if identity := b.authenticate(r.Context(), token, subject); identity != nil {
					r = r.WithContext(ContextWithIdentity(r.Context(), identity))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authenticate はトークンとアカウントを照合し、有効であれば認証主体を返す。
func (b *bearerAuth) authenticate(ctx context.Context, token, subject string) *model.Identity {
	account, err := b.accounts.FindByEmail(ctx, subject)
	if err != nil {
		slog.Error("failed to find account for token",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
		b.metrics.RecordTokenValidation(false)
		return nil
	}
	if account == nil {
		b.metrics.RecordTokenValidation(false)
		return nil
	}

	valid := b.tokens.Validate(token, account.Email)
	b.metrics.RecordTokenValidation(valid)
	if !valid {
		slog.Debug("token rejected", slog.String("subject", subject))
		return nil
	}
	return model.ToIdentity(account)
}

// RequireIdentity は認証主体がないリクエストを401で拒否するミドルウェアを返す。
// NewBearerAuthMiddlewareの後に配置する。
func RequireIdentity() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteTokenDecodingError はトークンのデコード失敗を401で返すErrorResponder。
func WriteTokenDecodingError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewTokenDecodingError(err)
	}
	slog.Warn("token decoding failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
}

// IdentityFromContext はリクエストコンテキストから認証主体を取得する。
// Bearer認証ミドルウェアで認証されたリクエストでのみ値が入る。
func IdentityFromContext(ctx context.Context) (*model.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// ContextWithIdentity はコンテキストに認証主体を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
