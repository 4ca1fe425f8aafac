// Package docs はGoogle Drive/Docs APIからドキュメントのメタ情報と統計を取得する。
// 本文は統計の計算にのみ使い、保持しない。
package docs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gdocs "google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// MimeTypeDocument はGoogleドキュメントのMIMEタイプ。
const MimeTypeDocument = "application/vnd.google-apps.document"

const (
	fileFields = "id,name,mimeType,createdTime,modifiedTime"
	bodyFields = "body.content(paragraph(elements(textRun(content))))"
)

var (
	// ErrNoAccessToken はアクセストークンが無くプロバイダを構築できない場合のエラー。
	ErrNoAccessToken = errors.New("docs: access token is required")
	// ErrNotFound はGoogle側でドキュメントが見つからない場合のエラー。
	ErrNotFound = errors.New("docs: document not found")
	// ErrForbidden はGoogle側でアクセスが拒否された場合のエラー。
	ErrForbidden = errors.New("docs: access denied")
	// ErrUnauthorized はアクセストークンが失効・無効な場合のエラー。
	ErrUnauthorized = errors.New("docs: access token rejected")
)

// FileMeta はDriveのファイルメタ情報。
type FileMeta struct {
	ID           string
	Name         string
	MimeType     string
	CreatedTime  string
	ModifiedTime string
}

// IsDocument はGoogleドキュメントかどうかを返す。
func (f *FileMeta) IsDocument() bool {
	return f.MimeType == MimeTypeDocument
}

// Provider はリクエスト単位のドキュメントプロバイダ。
type Provider interface {
	GetFile(ctx context.Context, fileID string) (*FileMeta, error)
	GetStats(ctx context.Context, documentID string) (*Stats, error)
}

// Factory はアクセストークンからProviderを構築する。
type Factory interface {
	ForAccessToken(ctx context.Context, accessToken string) (Provider, error)
}

// GoogleFactory はGoogle APIクライアントを用いたFactory実装。
type GoogleFactory struct {
	timeout time.Duration
	opts    []option.ClientOption
}

// NewGoogleFactory はGoogleFactoryを生成する。
// optsはテストでエンドポイントやHTTPクライアントを差し替えるために使う。
func NewGoogleFactory(timeout time.Duration, opts ...option.ClientOption) *GoogleFactory {
	return &GoogleFactory{timeout: timeout, opts: opts}
}

// ForAccessToken はアクセストークンを持つDrive/Docsクライアントを構築する。
func (f *GoogleFactory) ForAccessToken(ctx context.Context, accessToken string) (Provider, error) {
	if accessToken == "" {
		return nil, ErrNoAccessToken
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, f.opts...)

	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	docsSvc, err := gdocs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docs service: %w", err)
	}

	return &googleProvider{drive: driveSvc, docs: docsSvc, timeout: f.timeout}, nil
}

type googleProvider struct {
	drive   *drive.Service
	docs    *gdocs.Service
	timeout time.Duration
}

func (p *googleProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

// GetFile はDriveからファイルメタ情報を取得する。
func (p *googleProvider) GetFile(ctx context.Context, fileID string) (*FileMeta, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	f, err := p.drive.Files.Get(fileID).
		Fields(fileFields).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "get file")
	}

	return &FileMeta{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		CreatedTime:  f.CreatedTime,
		ModifiedTime: f.ModifiedTime,
	}, nil
}

// GetStats はドキュメント本文を取得し、文字数と単語数を計算する。
func (p *googleProvider) GetStats(ctx context.Context, documentID string) (*Stats, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	doc, err := p.docs.Documents.Get(documentID).
		Fields(bodyFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classify(err, "get document")
	}

	stats := ComputeStats(doc)
	return &stats, nil
}

// classify はGoogle APIのエラーをパッケージのエラーに分類する。
func classify(err error, op string) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		case http.StatusForbidden:
			return fmt.Errorf("%s: %w", op, ErrForbidden)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", op, ErrUnauthorized)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

var _ Factory = (*GoogleFactory)(nil)
var _ Provider = (*googleProvider)(nil)
