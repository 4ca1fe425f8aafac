package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/essaybinder/internal/middleware"
	"github.com/hitoshi/essaybinder/internal/model"
)

// maxRequestBodyBytes はリクエストボディの上限（1 MiB）。
const maxRequestBodyBytes = 1 << 20

// successResponse は {success, message} 形式のレスポンス。
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// messageResponse は {message} 形式のレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// decodeJSON はリクエストボディを厳格にデコードする。
// 未知のフィールド、複数のJSON値、上限超過はエラーとする。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// writeInvalidBody はボディのデコード失敗を400で返す。
func writeInvalidBody(w http.ResponseWriter, err error) {
	slog.Debug("rejected request body", slog.String("error", err.Error()))
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("Invalid request body"))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuthRequired:
		return http.StatusUnauthorized
	case model.ErrCodeNotFound, model.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case model.ErrCodeDocumentForbidden:
		return http.StatusForbidden
	case model.ErrCodeInvalidInput, model.ErrCodeInvalidURL, model.ErrCodeWrongType,
		model.ErrCodeDuplicate, model.ErrCodeExchangeFailed:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeUpstreamUnavailable, model.ErrCodeIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health はプロセスの稼働を返す。認証不要。
// GET /health, GET /essays/health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, healthResponse{Status: "OK", Message: "online"})
}
