package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/budgetauth/internal/middleware"
	"github.com/hitoshi/budgetauth/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Current は認証主体に対応するアカウントを返す。
	Current(ctx context.Context, identity *model.Identity) (*model.Account, error)
	// List は全アカウントを返す。
	List(ctx context.Context) ([]*model.Account, error)
}

// UserHandler はユーザー参照のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Me は認証済みユーザー自身のアカウント情報を返す。
// GET /v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	account, err := h.service.Current(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

// List は全アカウントを返す。
// GET /v1/users/
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, toAccountResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}
