package essay

import (
	"context"
	"time"

	"github.com/hitoshi/essaybinder/internal/cache"
	"github.com/hitoshi/essaybinder/internal/docs"
	"github.com/hitoshi/essaybinder/internal/model"
)

// 一覧キャッシュのTTL
const (
	EnrichedListTTL   = 120 * time.Second
	UnenrichedListTTL = 60 * time.Second
)

// CachedCatalog はCatalogにキャッシュアサイドを被せるデコレータ。
// 一覧は(essays, userID)キーでキャッシュし、変更操作は内側の処理が成功した後、
// 戻る前にユーザーの世代カウンタを進めて一覧キーとメタ情報キーを削除する。
// 一覧の値には読み込み開始時点の世代を記録し、現在の世代と一致するものだけを返す。
// 変更と並行して走ったListが古い一覧を書き戻しても、その値は次のListでは使われない。
type CachedCatalog struct {
	inner Catalog
	cache *cache.Cache
}

// cachedList は一覧キャッシュの値。
type cachedList struct {
	Generation int64          `json:"generation"`
	Essays     []*model.Essay `json:"essays"`
}

// NewCachedCatalog はCachedCatalogを生成する。
func NewCachedCatalog(inner Catalog, c *cache.Cache) *CachedCatalog {
	return &CachedCatalog{inner: inner, cache: c}
}

// List はキャッシュにヒットすればFromCache=trueで返し、ミスなら内側の結果をキャッシュする。
// 世代を読めない場合はキャッシュを使わずに内側の結果を返す。
func (c *CachedCatalog) List(ctx context.Context, userID string, provider docs.Provider) (*ListResult, error) {
	gen, ok := c.cache.Generation(ctx, cache.Key(cache.NamespaceEssaysGen, userID))
	if !ok {
		return c.inner.List(ctx, userID, provider)
	}

	key := cache.Key(cache.NamespaceEssays, userID)
	var cached cachedList
	if c.cache.GetJSON(ctx, key, &cached) && cached.Generation == gen {
		return &ListResult{Essays: cached.Essays, FromCache: true}, nil
	}

	res, err := c.inner.List(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	ttl := UnenrichedListTTL
	if res.Enriched {
		ttl = EnrichedListTTL
	}
	c.cache.SetJSON(ctx, key, cachedList{Generation: gen, Essays: res.Essays}, ttl)
	return res, nil
}

// invalidate は世代を進め、ユーザーの一覧キャッシュとメタ情報キャッシュを削除する。
func (c *CachedCatalog) invalidate(ctx context.Context, userID string) {
	c.cache.Bump(ctx, cache.Key(cache.NamespaceEssaysGen, userID))
	c.cache.Invalidate(ctx, cache.Key(cache.NamespaceEssays, userID))
	c.cache.InvalidatePattern(ctx, cache.UserPattern(cache.NamespaceEssayMeta, userID))
}

// AddByURL はエッセイを登録し、キャッシュを無効化する。
func (c *CachedCatalog) AddByURL(ctx context.Context, userID, rawURL, description string, provider docs.Provider) (*model.Essay, error) {
	e, err := c.inner.AddByURL(ctx, userID, rawURL, description, provider)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, userID)
	return e, nil
}

// AddByFileID はエッセイを登録し、キャッシュを無効化する。
func (c *CachedCatalog) AddByFileID(ctx context.Context, userID, fileID, description string, provider docs.Provider) (*model.Essay, error) {
	e, err := c.inner.AddByFileID(ctx, userID, fileID, description, provider)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, userID)
	return e, nil
}

// Remove はエッセイを削除し、キャッシュを無効化する。
func (c *CachedCatalog) Remove(ctx context.Context, userID, essayID string) error {
	return c.mutate(ctx, userID, func() error { return c.inner.Remove(ctx, userID, essayID) })
}

// AddTag はタグを追加し、キャッシュを無効化する。
func (c *CachedCatalog) AddTag(ctx context.Context, userID, essayID, tag string) error {
	return c.mutate(ctx, userID, func() error { return c.inner.AddTag(ctx, userID, essayID, tag) })
}

// RemoveTag はタグを削除し、キャッシュを無効化する。
func (c *CachedCatalog) RemoveTag(ctx context.Context, userID, essayID, tag string) error {
	return c.mutate(ctx, userID, func() error { return c.inner.RemoveTag(ctx, userID, essayID, tag) })
}

// UpdateApplication は応募情報を更新し、キャッシュを無効化する。
func (c *CachedCatalog) UpdateApplication(ctx context.Context, userID, essayID string, applicationFor *string, status *model.ApplicationStatus) error {
	return c.mutate(ctx, userID, func() error {
		return c.inner.UpdateApplication(ctx, userID, essayID, applicationFor, status)
	})
}

// UpdateNotes はメモを更新し、キャッシュを無効化する。
func (c *CachedCatalog) UpdateNotes(ctx context.Context, userID, essayID, notes string) error {
	return c.mutate(ctx, userID, func() error { return c.inner.UpdateNotes(ctx, userID, essayID, notes) })
}

// UpdateTheme はテーマを更新し、キャッシュを無効化する。
func (c *CachedCatalog) UpdateTheme(ctx context.Context, userID, essayID, theme string) error {
	return c.mutate(ctx, userID, func() error { return c.inner.UpdateTheme(ctx, userID, essayID, theme) })
}

// Resync は全エッセイを再同期し、一覧キャッシュを無効化する。
// メタ情報キャッシュは再同期で書き直されているため残す。
func (c *CachedCatalog) Resync(ctx context.Context, userID string, provider docs.Provider) (int, error) {
	n, err := c.inner.Resync(ctx, userID, provider)
	if err != nil {
		return n, err
	}
	c.cache.Bump(ctx, cache.Key(cache.NamespaceEssaysGen, userID))
	c.cache.Invalidate(ctx, cache.Key(cache.NamespaceEssays, userID))
	return n, nil
}

func (c *CachedCatalog) mutate(ctx context.Context, userID string, op func() error) error {
	if err := op(); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

var _ Catalog = (*CachedCatalog)(nil)
