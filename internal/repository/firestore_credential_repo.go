package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/hitoshi/essaybinder/internal/model"
)

// credentialDoc はFirestoreのusers/{userId}ドキュメント。
type credentialDoc struct {
	EncryptedRefreshToken model.SealedToken `firestore:"encryptedRefreshToken"`
	LastLogin             time.Time         `firestore:"lastLogin"`
	UpdatedAt             time.Time         `firestore:"updatedAt"`
}

// FirestoreCredentialRepo はFirestoreを使用した認証情報リポジトリ。
type FirestoreCredentialRepo struct {
	client *firestore.Client
}

// NewFirestoreCredentialRepo はFirestoreCredentialRepoを生成する。
func NewFirestoreCredentialRepo(client *firestore.Client) *FirestoreCredentialRepo {
	return &FirestoreCredentialRepo{client: client}
}

func (r *FirestoreCredentialRepo) users() *firestore.CollectionRef {
	return r.client.Collection(collectionUsers)
}

// credentialFields はマージ書き込みするフィールドを返す。
func credentialFields(cred *model.StoredCredential) map[string]any {
	return map[string]any{
		"encryptedRefreshToken": map[string]any{
			"encrypted": cred.EncryptedRefreshToken.Ciphertext,
			"iv":        cred.EncryptedRefreshToken.IV,
			"authTag":   cred.EncryptedRefreshToken.AuthTag,
		},
		"lastLogin": cred.LastLogin,
		"updatedAt": cred.UpdatedAt,
	}
}

// Upsert は認証情報をユーザードキュメントにマージ書き込みする。
func (r *FirestoreCredentialRepo) Upsert(ctx context.Context, cred *model.StoredCredential) error {
	_, err := r.users().Doc(cred.UserID).Set(ctx, credentialFields(cred), firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// Find は指定ユーザーの認証情報を取得する。見つからない場合はnilを返す。
func (r *FirestoreCredentialRepo) Find(ctx context.Context, userID string) (*model.StoredCredential, error) {
	snap, err := r.users().Doc(userID).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}

	var d credentialDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	if d.EncryptedRefreshToken.Ciphertext == "" {
		return nil, nil
	}
	return &model.StoredCredential{
		UserID:                userID,
		EncryptedRefreshToken: d.EncryptedRefreshToken,
		LastLogin:             d.LastLogin,
		UpdatedAt:             d.UpdatedAt,
	}, nil
}

// ListUserIDs は暗号化済みトークンを保持する全ユーザーIDを返す。
func (r *FirestoreCredentialRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	iter := r.users().Select("encryptedRefreshToken").Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list credential users: %w", err)
		}
		if v, err := snap.DataAt("encryptedRefreshToken.encrypted"); err == nil && v != "" {
			ids = append(ids, snap.Ref.ID)
		}
	}
	return ids, nil
}

// DeleteLastLoginBefore は最終ログインがbeforeより古いユーザードキュメントを削除する。
func (r *FirestoreCredentialRepo) DeleteLastLoginBefore(ctx context.Context, before time.Time) (int64, error) {
	snaps, err := r.users().Where("lastLogin", "<", before).Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to query stale credentials: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
	for _, snap := range snaps {
		job, err := bw.Delete(snap.Ref)
		if err != nil {
			bw.End()
			return 0, fmt.Errorf("failed to enqueue credential delete: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	var deleted int64
	var errs []error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	if len(errs) > 0 {
		return deleted, fmt.Errorf("failed to delete stale credentials: %w", errors.Join(errs...))
	}
	return deleted, nil
}

var _ CredentialRepository = (*FirestoreCredentialRepo)(nil)
