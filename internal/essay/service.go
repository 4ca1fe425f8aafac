// Package essay はエッセイカタログのビジネスロジックを提供する。
// 永続化されたレコードをGoogleドキュメントのメタ情報でエンリッチし、
// キャッシュ層はCachedCatalogデコレータとして外側に置く。
package essay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/essaybinder/internal/cache"
	"github.com/hitoshi/essaybinder/internal/docs"
	"github.com/hitoshi/essaybinder/internal/metrics"
	"github.com/hitoshi/essaybinder/internal/model"
	"github.com/hitoshi/essaybinder/internal/repository"
	"github.com/hitoshi/essaybinder/internal/security"
)

// 入力値の上限（文字数）
const (
	maxTagLength            = 50
	maxDescriptionLength    = 1000
	maxNotesLength          = 10000
	maxApplicationForLength = 200
	maxThemeLength          = 50
)

// lastModifiedLayout はDrive APIのmodifiedTimeと同じ形式。
const lastModifiedLayout = "2006-01-02T15:04:05.000Z07:00"

// DefaultMetaTTL はエッセイ単位のメタ情報キャッシュのTTL。
const DefaultMetaTTL = 300 * time.Second

// ListResult はList操作の結果。
type ListResult struct {
	Essays    []*model.Essay `json:"essays"`
	Enriched  bool           `json:"enriched"`
	FromCache bool           `json:"fromCache"`
}

// Catalog はエッセイカタログの操作を定義する。
// providerはリクエスト単位のドキュメントプロバイダで、アクセストークンが無い場合はnil。
type Catalog interface {
	List(ctx context.Context, userID string, provider docs.Provider) (*ListResult, error)
	AddByURL(ctx context.Context, userID, rawURL, description string, provider docs.Provider) (*model.Essay, error)
	AddByFileID(ctx context.Context, userID, fileID, description string, provider docs.Provider) (*model.Essay, error)
	Remove(ctx context.Context, userID, essayID string) error
	AddTag(ctx context.Context, userID, essayID, tag string) error
	RemoveTag(ctx context.Context, userID, essayID, tag string) error
	UpdateApplication(ctx context.Context, userID, essayID string, applicationFor *string, status *model.ApplicationStatus) error
	UpdateNotes(ctx context.Context, userID, essayID, notes string) error
	UpdateTheme(ctx context.Context, userID, essayID, theme string) error
	Resync(ctx context.Context, userID string, provider docs.Provider) (int, error)
}

// Config はServiceの設定。
type Config struct {
	// MaxConcurrent はList時のエンリッチメント並行数の上限。
	MaxConcurrent int
	// MetaTTL はエッセイ単位のメタ情報キャッシュのTTL。
	MetaTTL time.Duration
}

// Service はCatalogの実装。
type Service struct {
	repo      repository.EssayRepository
	metaCache *cache.Cache
	sanitizer security.Sanitizer
	metrics   metrics.MetricsCollector
	config    Config
	nowFn     func() time.Time
}

// NewService はServiceを生成する。metaCacheがnilまたは無効の場合はメタ情報をキャッシュしない。
func NewService(
	repo repository.EssayRepository,
	metaCache *cache.Cache,
	sanitizer security.Sanitizer,
	m metrics.MetricsCollector,
	config Config,
) *Service {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 8
	}
	if config.MetaTTL <= 0 {
		config.MetaTTL = DefaultMetaTTL
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		metaCache: metaCache,
		sanitizer: sanitizer,
		metrics:   m,
		config:    config,
		nowFn:     time.Now,
	}
}

// List はユーザーのエッセイ一覧をdateAdded降順で返す。
// providerがnilの場合はエンリッチせずに保存済みの値を返す。
// エンリッチはエッセイごとに独立しており、失敗したエッセイは保存済みの値のまま返す。
func (s *Service) List(ctx context.Context, userID string, provider docs.Provider) (*ListResult, error) {
	essays, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list essays: %w", err)
	}
	if essays == nil {
		essays = []*model.Essay{}
	}
	if provider == nil {
		return &ListResult{Essays: essays}, nil
	}

	enriched, _ := s.enrichAll(ctx, userID, essays, provider, true)
	return &ListResult{Essays: enriched, Enriched: true}, nil
}

// Resync はメタ情報キャッシュを使わずに全エッセイを再取得し、保存済みの値を更新する。
// 同期ワーカーから呼ばれる。更新できた件数を返す。
func (s *Service) Resync(ctx context.Context, userID string, provider docs.Provider) (int, error) {
	if provider == nil {
		return 0, docs.ErrNoAccessToken
	}
	essays, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list essays: %w", err)
	}
	_, synced := s.enrichAll(ctx, userID, essays, provider, false)
	return synced, nil
}

// enrichAll はエッセイごとのエンリッチを上限付きで並行実行し、入力と同じ順序で結果を返す。
// ゴルーチンはエラーを返さないため、1件の失敗が他をキャンセルすることはない。
func (s *Service) enrichAll(ctx context.Context, userID string, essays []*model.Essay, provider docs.Provider, useCache bool) ([]*model.Essay, int) {
	results := make([]*model.Essay, len(essays))
	fetched := make([]bool, len(essays))

	var g errgroup.Group
	g.SetLimit(s.config.MaxConcurrent)
	for i, e := range essays {
		g.Go(func() error {
			results[i], fetched[i] = s.enrichOne(ctx, userID, e, provider, useCache)
			return nil
		})
	}
	_ = g.Wait()

	synced := 0
	for _, ok := range fetched {
		if ok {
			synced++
		}
	}
	return results, synced
}

// enrichOne は1件のエッセイをエンリッチする。
// キャッシュミス時のみプロバイダから取得し、メタ情報キャッシュと永続化レコードを更新する。
// 2番目の戻り値はプロバイダから新たに取得した場合にtrue。
func (s *Service) enrichOne(ctx context.Context, userID string, e *model.Essay, provider docs.Provider, useCache bool) (*model.Essay, bool) {
	out := *e
	key := cache.Key(cache.NamespaceEssayMeta, userID, e.GoogleDocID)

	if useCache {
		var meta model.EssayMeta
		if s.metaCache.GetJSON(ctx, key, &meta) {
			meta.Apply(&out)
			return &out, false
		}
	}

	start := s.nowFn()
	meta, err := s.fetchMeta(ctx, provider, e.GoogleDocID)
	s.metrics.RecordProviderLatency(s.nowFn().Sub(start))
	if err != nil {
		s.metrics.RecordEnrichFailure(failureReason(err))
		slog.Warn("failed to enrich essay",
			slog.String("user_id", userID),
			slog.String("essay_id", e.ID),
			slog.String("google_doc_id", e.GoogleDocID),
			slog.String("error", err.Error()),
		)
		return e, false
	}
	s.metrics.RecordEnrichSuccess()

	s.metaCache.SetJSON(ctx, key, meta, s.config.MetaTTL)

	syncedAt := s.nowFn().UTC()
	if err := s.repo.UpdateSync(ctx, e.ID, *meta, syncedAt); err != nil {
		slog.Warn("failed to persist enriched metadata",
			slog.String("essay_id", e.ID),
			slog.String("error", err.Error()),
		)
	} else {
		out.LastSynced = syncedAt
	}

	meta.Apply(&out)
	return &out, true
}

// fetchMeta はファイルメタ情報と本文統計を取得する。
func (s *Service) fetchMeta(ctx context.Context, provider docs.Provider, docID string) (*model.EssayMeta, error) {
	file, err := provider.GetFile(ctx, docID)
	if err != nil {
		return nil, err
	}
	stats, err := provider.GetStats(ctx, docID)
	if err != nil {
		return nil, err
	}
	return &model.EssayMeta{
		Title:          file.Name,
		CreatedDate:    file.CreatedTime,
		LastModified:   file.ModifiedTime,
		CharacterCount: stats.CharacterCount,
		WordCount:      stats.WordCount,
	}, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, docs.ErrNotFound):
		return "not_found"
	case errors.Is(err, docs.ErrForbidden):
		return "forbidden"
	case errors.Is(err, docs.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "upstream"
	}
}

// AddByURL はGoogleドキュメントのURLからエッセイを登録する。
func (s *Service) AddByURL(ctx context.Context, userID, rawURL, description string, provider docs.Provider) (*model.Essay, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, model.NewInvalidInputError("Google Docs URL is required")
	}
	docID, ok := ParseDocID(rawURL)
	if !ok {
		return nil, model.NewInvalidURLError()
	}
	return s.add(ctx, userID, docID, description, model.AddedViaURL, provider)
}

// AddByFileID はファイルピッカーで選択されたファイルIDからエッセイを登録する。
func (s *Service) AddByFileID(ctx context.Context, userID, fileID, description string, provider docs.Provider) (*model.Essay, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, model.NewInvalidInputError("File ID is required")
	}
	if !bareIDPattern.MatchString(fileID) {
		return nil, model.NewInvalidInputError("Invalid file ID")
	}
	return s.add(ctx, userID, fileID, description, model.AddedViaFilePicker, provider)
}

func (s *Service) add(ctx context.Context, userID, docID, description string, via model.AddedVia, provider docs.Provider) (*model.Essay, error) {
	description = s.sanitizer.Sanitize(description)
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return nil, model.NewInvalidInputError(fmt.Sprintf("Description must be at most %d characters", maxDescriptionLength))
	}

	// 1. 重複チェック
	existing, err := s.repo.FindByUserAndDoc(ctx, userID, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to check duplicate essay: %w", err)
	}
	if existing != nil {
		return nil, model.NewDuplicateEssayError()
	}

	// 2. ドキュメントプロバイダが必要
	if provider == nil {
		return nil, model.NewAuthRequiredError("No valid Google authentication found. Please re-authenticate.")
	}

	// 3. Googleドキュメントであることを確認
	file, err := provider.GetFile(ctx, docID)
	if err != nil {
		return nil, mapProviderError(err, docID)
	}
	if !file.IsDocument() {
		return nil, model.NewWrongTypeError()
	}

	// 4. 本文の統計を計算
	stats, err := provider.GetStats(ctx, docID)
	if err != nil {
		return nil, mapProviderError(err, docID)
	}

	now := s.nowFn().UTC()
	e := &model.Essay{
		GoogleDocID:       docID,
		Title:             file.Name,
		Description:       description,
		Tags:              []string{},
		CreatedDate:       file.CreatedTime,
		LastModified:      file.ModifiedTime,
		LastSynced:        now,
		UserID:            userID,
		DateAdded:         now,
		ApplicationFor:    "",
		ApplicationStatus: model.ApplicationStatusDraft,
		Notes:             "",
		CharacterCount:    stats.CharacterCount,
		WordCount:         stats.WordCount,
		AddedVia:          via,
	}

	// 5. 永続化
	if err := s.repo.Create(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateEssayError()
		}
		return nil, fmt.Errorf("failed to create essay: %w", err)
	}

	slog.Info("essay added",
		slog.String("user_id", userID),
		slog.String("essay_id", e.ID),
		slog.String("added_via", string(via)),
	)
	return e, nil
}

// mapProviderError はドキュメントプロバイダのエラーをAPIエラーに変換する。
func mapProviderError(err error, docID string) error {
	switch {
	case errors.Is(err, docs.ErrNotFound):
		return model.NewDocumentNotFoundError()
	case errors.Is(err, docs.ErrForbidden):
		return model.NewDocumentForbiddenError()
	case errors.Is(err, docs.ErrUnauthorized):
		return model.NewAuthRequiredError("No valid Google authentication found. Please re-authenticate.")
	}
	slog.Error("document provider error",
		slog.String("google_doc_id", docID),
		slog.String("error", err.Error()),
	)
	return model.NewUpstreamUnavailableError()
}

// owned は指定ユーザーが所有するエッセイを返す。
// 存在しない場合も他ユーザーの所有の場合も同じNotFoundエラーを返す。
func (s *Service) owned(ctx context.Context, userID, essayID string) (*model.Essay, error) {
	if essayID == "" {
		return nil, model.NewEssayNotFoundError()
	}
	e, err := s.repo.FindByID(ctx, essayID)
	if err != nil {
		return nil, fmt.Errorf("failed to find essay: %w", err)
	}
	if e == nil || e.UserID != userID {
		return nil, model.NewEssayNotFoundError()
	}
	return e, nil
}

// Remove はエッセイをカタログから削除する。Googleドキュメント自体には触れない。
func (s *Service) Remove(ctx context.Context, userID, essayID string) error {
	if _, err := s.owned(ctx, userID, essayID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, essayID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewEssayNotFoundError()
		}
		return fmt.Errorf("failed to delete essay: %w", err)
	}
	slog.Info("essay removed",
		slog.String("user_id", userID),
		slog.String("essay_id", essayID),
	)
	return nil
}

func (s *Service) normalizeTag(tag string) (string, error) {
	tag = strings.TrimSpace(s.sanitizer.Sanitize(tag))
	if tag == "" {
		return "", model.NewInvalidInputError("Tag is required")
	}
	if utf8.RuneCountInString(tag) > maxTagLength {
		return "", model.NewInvalidInputError(fmt.Sprintf("Tag must be at most %d characters", maxTagLength))
	}
	return tag, nil
}

// AddTag はタグを追加する。既に付いているタグは重複させない。
func (s *Service) AddTag(ctx context.Context, userID, essayID, tag string) error {
	tag, err := s.normalizeTag(tag)
	if err != nil {
		return err
	}
	e, err := s.owned(ctx, userID, essayID)
	if err != nil {
		return err
	}
	for _, t := range e.Tags {
		if t == tag {
			return nil
		}
	}
	if err := s.repo.AddTag(ctx, essayID, tag); err != nil {
		return fmt.Errorf("failed to add tag: %w", err)
	}
	return nil
}

// RemoveTag はタグを削除する。付いていないタグの削除は成功として扱う。
func (s *Service) RemoveTag(ctx context.Context, userID, essayID, tag string) error {
	tag, err := s.normalizeTag(tag)
	if err != nil {
		return err
	}
	if _, err := s.owned(ctx, userID, essayID); err != nil {
		return err
	}
	if err := s.repo.RemoveTag(ctx, essayID, tag); err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}

// UpdateApplication は応募先・応募ステータスのうち指定されたものだけを更新する。
func (s *Service) UpdateApplication(ctx context.Context, userID, essayID string, applicationFor *string, status *model.ApplicationStatus) error {
	if applicationFor == nil && status == nil {
		return model.NewInvalidInputError("applicationFor or applicationStatus is required")
	}

	var update model.EssayUpdate
	if applicationFor != nil {
		v := strings.TrimSpace(s.sanitizer.Sanitize(*applicationFor))
		if utf8.RuneCountInString(v) > maxApplicationForLength {
			return model.NewInvalidInputError(fmt.Sprintf("applicationFor must be at most %d characters", maxApplicationForLength))
		}
		update.ApplicationFor = &v
	}
	if status != nil {
		if !status.Valid() {
			return model.NewInvalidInputError("Invalid application status")
		}
		st := *status
		update.ApplicationStatus = &st
	}

	if _, err := s.owned(ctx, userID, essayID); err != nil {
		return err
	}
	return s.updateFields(ctx, essayID, update)
}

// UpdateNotes はメモを更新し、lastModifiedを現在時刻にする。
func (s *Service) UpdateNotes(ctx context.Context, userID, essayID, notes string) error {
	notes = s.sanitizer.Sanitize(notes)
	if utf8.RuneCountInString(notes) > maxNotesLength {
		return model.NewInvalidInputError(fmt.Sprintf("Notes must be at most %d characters", maxNotesLength))
	}
	if _, err := s.owned(ctx, userID, essayID); err != nil {
		return err
	}
	modified := s.nowFn().UTC().Format(lastModifiedLayout)
	return s.updateFields(ctx, essayID, model.EssayUpdate{Notes: &notes, LastModified: &modified})
}

// UpdateTheme はテーマを更新し、lastModifiedを現在時刻にする。
func (s *Service) UpdateTheme(ctx context.Context, userID, essayID, theme string) error {
	theme = strings.TrimSpace(s.sanitizer.Sanitize(theme))
	if utf8.RuneCountInString(theme) > maxThemeLength {
		return model.NewInvalidInputError(fmt.Sprintf("Theme must be at most %d characters", maxThemeLength))
	}
	if _, err := s.owned(ctx, userID, essayID); err != nil {
		return err
	}
	modified := s.nowFn().UTC().Format(lastModifiedLayout)
	return s.updateFields(ctx, essayID, model.EssayUpdate{Theme: &theme, LastModified: &modified})
}

func (s *Service) updateFields(ctx context.Context, essayID string, update model.EssayUpdate) error {
	if err := s.repo.UpdateFields(ctx, essayID, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewEssayNotFoundError()
		}
		return fmt.Errorf("failed to update essay: %w", err)
	}
	return nil
}

var _ Catalog = (*Service)(nil)
