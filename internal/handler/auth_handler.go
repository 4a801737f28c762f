// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/hitoshi/budgetauth/internal/auth"
	"github.com/hitoshi/budgetauth/internal/model"
)

const (
	verifiedMessage = "Account verified successfully."
	resentMessage   = "Verification code sent."
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (*model.Account, error)
	Login(ctx context.Context, email, password string) (*model.Account, error)
	Verify(ctx context.Context, email, code string) error
	ResendVerificationCode(ctx context.Context, email string) error
}

// TokenIssuer はログイン成功時のトークン発行インターフェース。
type TokenIssuer interface {
	Issue(subject string, extraClaims map[string]any) (string, error)
	TTL() time.Duration
}

// AuthHandler は登録・ログイン・メール検証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	tokens  TokenIssuer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{
		service: service,
		tokens:  tokens,
	}
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email            string `json:"email"`
	VerificationCode string `json:"verificationCode"`
}

type resendRequest struct {
	Email string `json:"email"`
}

// loginResponse はログイン成功時のレスポンス。expiresInはミリ秒。
type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// accountResponse はアカウント情報のAPIレスポンス。
// パスワードハッシュと検証コードは含めない。
type accountResponse struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	FullName  string    `json:"fullName"`
	Email     string    `json:"email"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		FullName:  a.FullName(),
		Email:     a.Email,
		Enabled:   a.Enabled,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// Register はアカウント登録を処理する。
// POST /v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if err := validateEmail(req.Email); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, err)
		return
	}
	if req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("password is required"))
		return
	}

	account, err := h.service.Register(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// Login はパスワード認証を行い、Bearerトークンを発行する。
// POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
		return
	}

	account, err := h.service.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	token, err := h.tokens.Issue(account.Email, nil)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresIn: h.tokens.TTL().Milliseconds(),
	})
}

// Verify はメールアドレス検証コードを照合する。
// POST /v1/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body").Message)
		return
	}

	if err := h.service.Verify(r.Context(), strings.TrimSpace(req.Email), strings.TrimSpace(req.VerificationCode)); err != nil {
		handleTextError(w, err)
		return
	}

	writeText(w, http.StatusOK, verifiedMessage)
}

// ResendVerification は検証コードを再送する。
// メールアドレスはクエリパラメータ（?email=）またはJSONボディで受け付ける。
// POST /v1/auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" && r.Body != nil {
		// 空ボディ（chunkedでContentLengthが-1の場合を含む）はメール未指定として扱う
		var req resendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeText(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body").Message)
			return
		}
		email = req.Email
	}
	email = strings.TrimSpace(email)
	if email == "" {
		writeText(w, http.StatusBadRequest, model.NewInvalidRequestError("email is required").Message)
		return
	}

	if err := h.service.ResendVerificationCode(r.Context(), email); err != nil {
		handleTextError(w, err)
		return
	}

	writeText(w, http.StatusOK, resentMessage)
}

// validateEmail はメールアドレスの形式を検証する。表示名付きの形式は受け付けない。
func validateEmail(email string) *model.APIError {
	if email == "" {
		return model.NewInvalidRequestError("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return model.NewInvalidRequestError("email is not a valid address")
	}
	return nil
}
