// Package repository はデータ永続化のインターフェースを定義する。
// Firestore実装とPostgreSQL実装を提供し、起動時の設定でいずれかを選択する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/essaybinder/internal/model"
)

var (
	// ErrNotFound は更新・削除対象のレコードが存在しない場合のエラー。
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicate は一意制約に違反する作成の場合のエラー。
	ErrDuplicate = errors.New("repository: duplicate record")
)

// EssayRepository はエッセイデータの永続化インターフェース。
type EssayRepository interface {
	// FindByID は指定IDのエッセイを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Essay, error)

	// FindByUserAndDoc はユーザーIDとGoogleドキュメントIDでエッセイを検索する。
	// 見つからない場合はnilを返す。
	FindByUserAndDoc(ctx context.Context, userID, googleDocID string) (*model.Essay, error)

	// ListByUser はユーザーのエッセイ一覧をdateAdded降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Essay, error)

	// Create はエッセイを作成する。IDが空の場合は採番してessay.IDに設定する。
	Create(ctx context.Context, essay *model.Essay) error

	// Delete は指定IDのエッセイを削除する。
	Delete(ctx context.Context, id string) error

	// AddTag はタグを和集合として追加する。既存のタグは重複させない。
	AddTag(ctx context.Context, id, tag string) error

	// RemoveTag はタグを差集合として削除する。
	RemoveTag(ctx context.Context, id, tag string) error

	// UpdateFields は指定されたフィールドのみを部分更新する。
	UpdateFields(ctx context.Context, id string, update model.EssayUpdate) error

	// UpdateSync はドキュメントプロバイダから取得したメタ情報と同期日時を保存する。
	UpdateSync(ctx context.Context, id string, meta model.EssayMeta, syncedAt time.Time) error
}

// CredentialRepository は暗号化済みリフレッシュトークンの永続化インターフェース。
type CredentialRepository interface {
	// Upsert は認証情報をマージ書き込みする。後勝ち。
	Upsert(ctx context.Context, cred *model.StoredCredential) error

	// Find は指定ユーザーの認証情報を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, userID string) (*model.StoredCredential, error)

	// ListUserIDs は認証情報を保持する全ユーザーIDを返す。
	ListUserIDs(ctx context.Context) ([]string, error)

	// DeleteLastLoginBefore は最終ログインがbeforeより古い認証情報を削除し、削除件数を返す。
	DeleteLastLoginBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionRepository はキャンバス位置の永続化インターフェース。
type PositionRepository interface {
	// Get は指定ユーザーの位置マップを返す。未保存の場合は空のマップを返す。
	Get(ctx context.Context, userID string) (model.Positions, error)

	// Replace は位置マップ全体を上書き保存する。
	Replace(ctx context.Context, userID string, positions model.Positions) error
}
