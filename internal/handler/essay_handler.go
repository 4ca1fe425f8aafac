package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/essaybinder/internal/docs"
	"github.com/hitoshi/essaybinder/internal/essay"
	"github.com/hitoshi/essaybinder/internal/middleware"
	"github.com/hitoshi/essaybinder/internal/model"
)

// EssayHandler はエッセイカタログのHTTPハンドラー。
type EssayHandler struct {
	catalog   essay.Catalog
	providers docs.Factory
}

// NewEssayHandler はEssayHandlerを生成する。
func NewEssayHandler(catalog essay.Catalog, providers docs.Factory) *EssayHandler {
	return &EssayHandler{catalog: catalog, providers: providers}
}

type addEssayRequest struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type addByFileRequest struct {
	FileID      string `json:"fileId"`
	Description string `json:"description"`
}

type addEssayResponse struct {
	Message string       `json:"message"`
	Essay   *model.Essay `json:"essay"`
}

type listEssaysResponse struct {
	Essays    []*model.Essay `json:"essays"`
	FromCache bool           `json:"fromCache,omitempty"`
}

type tagRequest struct {
	Tag string `json:"tag"`
}

type themeRequest struct {
	Theme *string `json:"theme"`
}

type applicationRequest struct {
	ApplicationFor    *string                  `json:"applicationFor"`
	ApplicationStatus *model.ApplicationStatus `json:"applicationStatus"`
}

type notesRequest struct {
	Notes *string `json:"notes"`
}

// provider はaccess_token Cookieからリクエスト単位のドキュメントプロバイダを構築する。
// Cookieが無い場合や構築に失敗した場合はnilを返し、呼び出し側はエンリッチなしで続行する。
func (h *EssayHandler) provider(r *http.Request) docs.Provider {
	cookie, err := r.Cookie(middleware.AccessTokenCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	p, err := h.providers.ForAccessToken(r.Context(), cookie.Value)
	if err != nil {
		slog.Warn("failed to build document provider", slog.String("error", err.Error()))
		return nil
	}
	return p
}

// userID はセッションミドルウェアが設定したユーザーIDを返す。取得できなければ401を書き込む。
func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthRequiredError("No session"))
		return "", false
	}
	return id, true
}

// List はユーザーのエッセイ一覧を返す。
// GET /essays
func (h *EssayHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}

	result, err := h.catalog.List(r.Context(), uid, h.provider(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, listEssaysResponse{Essays: result.Essays, FromCache: result.FromCache})
}

// AddByURL はGoogleドキュメントのURLからエッセイを登録する。
// POST /essays/add
func (h *EssayHandler) AddByURL(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req addEssayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w, err)
		return
	}

	e, err := h.catalog.AddByURL(r.Context(), uid, req.URL, req.Description, h.provider(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, addEssayResponse{Message: "Essay added successfully", Essay: e})
}

// AddByFileID はファイルピッカーで選択されたドキュメントを登録する。
// POST /essays/add-by-file
func (h *EssayHandler) AddByFileID(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req addByFileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w, err)
		return
	}

	e, err := h.catalog.AddByFileID(r.Context(), uid, req.FileID, req.Description, h.provider(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, addEssayResponse{Message: "Essay added successfully", Essay: e})
}

// Remove はエッセイをカタログから外す。
// DELETE /essays/{essayId}
func (h *EssayHandler) Remove(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.catalog.Remove(r.Context(), uid, chi.URLParam(r, "essayId")); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: "Essay removed from catalog"})
}

// AddTag はタグを追加する。
// POST /essays/{essayId}/tags
func (h *EssayHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w, err)
		return
	}
	if err := h.catalog.AddTag(r.Context(), uid, chi.URLParam(r, "essayId"), req.Tag); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: "Tag added successfully"})
}

// RemoveTag はタグを削除する。
// DELETE /essays/{essayId}/tags
func (h *EssayHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w, err)
		return
	}
	if err := h.catalog.RemoveTag(r.Context(), uid, chi.URLParam(r, "essayId"), req.Tag); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: "Tag removed successfully"})
}

// UpdateTheme はカードのテーマを更新する。
// PUT /essays/{essayId}/theme
func (h *EssayHandler) UpdateTheme(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req themeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w, err)
		return
	}
	if req.Theme == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("Theme is required"))
		return
	}
	if err := h.catalog.UpdateTheme(r.Context(), uid, chi.URLParam(r, "essayId"), *req.Theme); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, successResponse{Success: true, Message: "Theme updated successfully"})
}

// UpdateApplication は応募先と応募ステータスを部分更新する。
// PUT /essays/{essayId}/application
func (h *EssayHandler) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req applicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w, err)
		return
	}
	if err := h.catalog.UpdateApplication(r.Context(), uid, chi.URLParam(r, "essayId"), req.ApplicationFor, req.ApplicationStatus); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Essay application info updated successfully"})
}

// UpdateNotes はメモを上書きする。
// PUT /essays/{essayId}/notes
func (h *EssayHandler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req notesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeInvalidBody(w, err)
		return
	}
	if req.Notes == nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("Notes are required"))
		return
	}
	if err := h.catalog.UpdateNotes(r.Context(), uid, chi.URLParam(r, "essayId"), *req.Notes); err != nil {
		handleServiceError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, messageResponse{Message: "Notes updated successfully"})
}
