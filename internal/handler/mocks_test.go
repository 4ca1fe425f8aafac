package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/essaybinder/internal/auth"
	"github.com/hitoshi/essaybinder/internal/docs"
	"github.com/hitoshi/essaybinder/internal/essay"
	"github.com/hitoshi/essaybinder/internal/middleware"
	"github.com/hitoshi/essaybinder/internal/model"
)

// --- モック ---

type mockAuthService struct {
	exchangeCodeFn       func(ctx context.Context, code, codeVerifier, redirectURI string) (*auth.LoginResult, error)
	refreshAccessTokenFn func(ctx context.Context, userID string) (string, error)
}

func (m *mockAuthService) ExchangeCode(ctx context.Context, code, codeVerifier, redirectURI string) (*auth.LoginResult, error) {
	return m.exchangeCodeFn(ctx, code, codeVerifier, redirectURI)
}

func (m *mockAuthService) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	return m.refreshAccessTokenFn(ctx, userID)
}

type mockSessionVerifier struct {
	verifyFn func(token string) (model.Identity, error)
}

func (m *mockSessionVerifier) Verify(token string) (model.Identity, error) {
	return m.verifyFn(token)
}

type mockCatalog struct {
	listFn              func(ctx context.Context, userID string, provider docs.Provider) (*essay.ListResult, error)
	addByURLFn          func(ctx context.Context, userID, rawURL, description string, provider docs.Provider) (*model.Essay, error)
	addByFileIDFn       func(ctx context.Context, userID, fileID, description string, provider docs.Provider) (*model.Essay, error)
	removeFn            func(ctx context.Context, userID, essayID string) error
	addTagFn            func(ctx context.Context, userID, essayID, tag string) error
	removeTagFn         func(ctx context.Context, userID, essayID, tag string) error
	updateApplicationFn func(ctx context.Context, userID, essayID string, applicationFor *string, status *model.ApplicationStatus) error
	updateNotesFn       func(ctx context.Context, userID, essayID, notes string) error
	updateThemeFn       func(ctx context.Context, userID, essayID, theme string) error
}

func (m *mockCatalog) List(ctx context.Context, userID string, provider docs.Provider) (*essay.ListResult, error) {
	return m.listFn(ctx, userID, provider)
}

func (m *mockCatalog) AddByURL(ctx context.Context, userID, rawURL, description string, provider docs.Provider) (*model.Essay, error) {
	return m.addByURLFn(ctx, userID, rawURL, description, provider)
}

func (m *mockCatalog) AddByFileID(ctx context.Context, userID, fileID, description string, provider docs.Provider) (*model.Essay, error) {
	return m.addByFileIDFn(ctx, userID, fileID, description, provider)
}

func (m *mockCatalog) Remove(ctx context.Context, userID, essayID string) error {
	return m.removeFn(ctx, userID, essayID)
}

func (m *mockCatalog) AddTag(ctx context.Context, userID, essayID, tag string) error {
	return m.addTagFn(ctx, userID, essayID, tag)
}

func (m *mockCatalog) RemoveTag(ctx context.Context, userID, essayID, tag string) error {
	return m.removeTagFn(ctx, userID, essayID, tag)
}

func (m *mockCatalog) UpdateApplication(ctx context.Context, userID, essayID string, applicationFor *string, status *model.ApplicationStatus) error {
	return m.updateApplicationFn(ctx, userID, essayID, applicationFor, status)
}

func (m *mockCatalog) UpdateNotes(ctx context.Context, userID, essayID, notes string) error {
	return m.updateNotesFn(ctx, userID, essayID, notes)
}

func (m *mockCatalog) UpdateTheme(ctx context.Context, userID, essayID, theme string) error {
	return m.updateThemeFn(ctx, userID, essayID, theme)
}

func (m *mockCatalog) Resync(ctx context.Context, userID string, provider docs.Provider) (int, error) {
	return 0, errors.New("not used")
}

// stubProvider はハンドラーがプロバイダを渡したかどうかの識別にだけ使う。
type stubProvider struct {
	token string
}

func (p *stubProvider) GetFile(ctx context.Context, fileID string) (*docs.FileMeta, error) {
	return nil, errors.New("not used")
}

func (p *stubProvider) GetStats(ctx context.Context, documentID string) (*docs.Stats, error) {
	return nil, errors.New("not used")
}

type mockFactory struct {
	forAccessTokenFn func(ctx context.Context, accessToken string) (docs.Provider, error)
}

func (m *mockFactory) ForAccessToken(ctx context.Context, accessToken string) (docs.Provider, error) {
	return m.forAccessTokenFn(ctx, accessToken)
}

func stubFactory() *mockFactory {
	return &mockFactory{
		forAccessTokenFn: func(ctx context.Context, accessToken string) (docs.Provider, error) {
			if accessToken == "" {
				return nil, docs.ErrNoAccessToken
			}
			return &stubProvider{token: accessToken}, nil
		},
	}
}

type mockPositionService struct {
	getFn  func(ctx context.Context, userID string) (model.Positions, error)
	saveFn func(ctx context.Context, userID string, positions model.Positions) error
}

func (m *mockPositionService) Get(ctx context.Context, userID string) (model.Positions, error) {
	return m.getFn(ctx, userID)
}

func (m *mockPositionService) Save(ctx context.Context, userID string, positions model.Positions) error {
	return m.saveFn(ctx, userID, positions)
}

// --- ヘルパー ---

var testIdentity = model.Identity{
	ID:      "sub-123",
	Email:   "student@example.com",
	Name:    "Student",
	Picture: "https://example.com/p.png",
}

func validSessionVerifier() *mockSessionVerifier {
	return &mockSessionVerifier{
		verifyFn: func(token string) (model.Identity, error) {
			if token == "valid-session" {
				return testIdentity, nil
			}
			return model.Identity{}, errors.New("invalid")
		},
	}
}

// authedRequest はセッションミドルウェアを通過した状態のリクエストを作る。
func authedRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	return req.WithContext(middleware.ContextWithIdentity(req.Context(), testIdentity))
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v (body=%q)", err, w.Body.String())
	}
	return v
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	return decodeBody[middleware.ErrorResponseBody](t, w)
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
