package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/essaybinder/internal/middleware"
	"github.com/hitoshi/essaybinder/internal/model"
)

// PositionServiceInterface はカード位置ハンドラーが必要とするサービスインターフェース。
type PositionServiceInterface interface {
	Get(ctx context.Context, userID string) (model.Positions, error)
	Save(ctx context.Context, userID string, positions model.Positions) error
}

// PositionHandler はキャンバス上のカード位置のHTTPハンドラー。
type PositionHandler struct {
	service PositionServiceInterface
}

// NewPositionHandler はPositionHandlerを生成する。
func NewPositionHandler(service PositionServiceInterface) *PositionHandler {
	return &PositionHandler{service: service}
}

type positionsBody struct {
	Positions model.Positions `json:"positions"`
}

// Get は保存済みの位置を返す。未保存なら空のマップ。
// GET /positions
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	positions, err := h.service.Get(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, positionsBody{Positions: positions})
}

// Save は位置マップ全体を上書き保存する。
// PUT /positions
func (h *PositionHandler) Save(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req positionsBody
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("Invalid positions data"))
		return
	}
	if err := h.service.Save(r.Context(), uid, req.Positions); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true})
}
