package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/hitoshi/essaybinder/internal/metrics"
)

// Cache はStoreをラップするベストエフォートのキャッシュ。
// ストアのエラーはログに記録してミス（または何もしない）として扱い、呼び出し元に返さない。
// storeがnilの場合はキャッシュ無効として動作する。
type Cache struct {
	store   Store
	metrics metrics.MetricsCollector
}

// New はCacheを生成する。
func New(store Store, m metrics.MetricsCollector) *Cache {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Cache{store: store, metrics: m}
}

// Enabled はキャッシュが有効かどうかを返す。
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// GetJSON はキーの値をdstにデコードする。ヒットした場合のみtrueを返す。
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	if !c.Enabled() {
		return false
	}
	ns := namespaceOf(key)

	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache get failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordCacheResult(ns, metrics.CacheError)
		return false
	}
	if !found {
		c.metrics.RecordCacheResult(ns, metrics.CacheMiss)
		return false
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		slog.Warn("cache entry could not be decoded",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		c.metrics.RecordCacheResult(ns, metrics.CacheError)
		return false
	}
	c.metrics.RecordCacheResult(ns, metrics.CacheHit)
	return true
}

// SetJSON は値をJSONエンコードしてTTL付きで保存する。
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache value could not be encoded",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := c.store.Set(ctx, key, string(raw), ttl); err != nil {
		slog.Warn("cache set failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Invalidate は指定キーを削除する。
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		slog.Warn("cache delete failed",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidatePattern はパターンにマッチする全キーを削除する。
func (c *Cache) InvalidatePattern(ctx context.Context, patterns ...string) {
	if !c.Enabled() {
		return
	}
	for _, p := range patterns {
		if err := c.store.DeletePattern(ctx, p); err != nil {
			slog.Warn("cache pattern delete failed",
				slog.String("pattern", p),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Generation はカウンタキーの現在値を返す。未設定の場合は0。
// ストアエラーや値が壊れている場合はok=falseを返し、呼び出し元はキャッシュを使わない。
func (c *Cache) Generation(ctx context.Context, key string) (gen int64, ok bool) {
	if !c.Enabled() {
		return 0, false
	}
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		slog.Warn("cache generation read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	if !found {
		return 0, true
	}
	gen, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("cache generation is not an integer",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return 0, false
	}
	return gen, true
}

// Bump はカウンタキーを1進める。
func (c *Cache) Bump(ctx context.Context, key string) {
	if !c.Enabled() {
		return
	}
	if _, err := c.store.Incr(ctx, key); err != nil {
		slog.Warn("cache generation bump failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
