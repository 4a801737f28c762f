package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/budgetauth/internal/middleware"
	"github.com/hitoshi/budgetauth/internal/model"
)

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse = middleware.ErrorResponseBody

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, statusCode, apiErr)
}

// internalError はAPIError以外のエラーに対して返す汎用エラー。
func internalError() *model.APIError {
	return &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "An internal error occurred.",
		Category: "system",
		Action:   "Please try again later.",
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Error("service error", slog.String("code", apiErr.Code), slog.String("error", err.Error()))
		}
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, internalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateEmail:
		return http.StatusConflict
	case model.ErrCodeAccountNotVerified:
		return http.StatusForbidden
	case model.ErrCodeInvalidCredentials, model.ErrCodeTokenDecoding, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeCodeExpired, model.ErrCodeInvalidCode, model.ErrCodeAlreadyVerified, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeEmailDeliveryFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeText はプレーンテキストのレスポンスを書き込む。
func writeText(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	w.Write([]byte(message))
}

// handleTextError は検証・再送エンドポイント用に、エラーメッセージを400のテキストで返す。
// APIError以外のエラーは内部情報を含み得るため500の汎用メッセージとする。
func handleTextError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeText(w, http.StatusBadRequest, apiErr.Message)
		return
	}
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeText(w, http.StatusInternalServerError, internalError().Message)
}
