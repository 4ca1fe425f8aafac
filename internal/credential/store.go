package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/essaybinder/internal/model"
	"github.com/hitoshi/essaybinder/internal/repository"
)

// ErrNotFound は指定ユーザーのリフレッシュトークンが保存されていない場合のエラー。
var ErrNotFound = errors.New("credential: refresh token not found")

// Store はリフレッシュトークンを暗号化して永続化する。
// 平文のトークンはこのパッケージの外で保存・ログ出力されない。
type Store struct {
	repo   repository.CredentialRepository
	cipher *Cipher
	nowFn  func() time.Time
}

// NewStore はStoreを生成する。
func NewStore(repo repository.CredentialRepository, cipher *Cipher) *Store {
	return &Store{
		repo:   repo,
		cipher: cipher,
		nowFn:  time.Now,
	}
}

// SaveRefreshToken はリフレッシュトークンを暗号化し、ユーザーIDをキーにマージ書き込みする。
func (s *Store) SaveRefreshToken(ctx context.Context, userID, refreshToken string) error {
	sealed, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return err
	}

	now := s.nowFn()
	cred := &model.StoredCredential{
		UserID:                userID,
		EncryptedRefreshToken: sealed,
		LastLogin:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Upsert(ctx, cred); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// LoadRefreshToken は保存済みのリフレッシュトークンを復号して返す。
// 未保存の場合はErrNotFound、復号できない場合はErrIntegrityを返す。
func (s *Store) LoadRefreshToken(ctx context.Context, userID string) (string, error) {
	cred, err := s.repo.Find(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load credential: %w", err)
	}
	if cred == nil || cred.EncryptedRefreshToken.Ciphertext == "" {
		return "", ErrNotFound
	}
	return s.cipher.Decrypt(cred.EncryptedRefreshToken)
}

// UserIDs は認証情報を保持する全ユーザーIDを返す。
func (s *Store) UserIDs(ctx context.Context) ([]string, error) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list credential owners: %w", err)
	}
	return ids, nil
}

// PurgeStale は最終ログインがbeforeより古い認証情報を削除し、削除件数を返す。
func (s *Store) PurgeStale(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repo.DeleteLastLoginBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge stale credentials: %w", err)
	}
	return n, nil
}
