package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch はDeletePatternで1回のSCANが返すキー数の目安。
const scanBatch = 100

// Store はTTL付きキーバリューストアのインターフェース。
type Store interface {
	// Get はキーの値を返す。存在しない場合はfound=falseを返す。
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set はTTL付きで値を保存する。
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete は指定キーを削除する。存在しないキーは無視する。
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern はglobパターンにマッチする全キーを削除する。
	DeletePattern(ctx context.Context, pattern string) error
	// Incr は整数カウンタを1増やし、増やした後の値を返す。未設定のキーは0から始まる。
	Incr(ctx context.Context, key string) (int64, error)
}

// RedisStore はRedisによるStore実装。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore はRedisStoreを生成する。
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis はREDIS_URL形式の接続文字列からクライアントを生成し、疎通を確認する。
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Get はキーの値を返す。
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set はTTL付きで値を保存する。
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Delete は指定キーを削除する。
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// DeletePattern はSCANでパターンにマッチするキーを列挙し、バッチごとに削除する。
// KEYSはブロッキングのため使わない。
func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Incr はINCRでカウンタを増やす。
func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

var _ Store = (*RedisStore)(nil)
