package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/essaybinder/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した認証情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// Upsert は認証情報を挿入または上書きする。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred *model.StoredCredential) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, encrypted_refresh_token, iv, auth_tag, last_login, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
		   iv = EXCLUDED.iv,
		   auth_tag = EXCLUDED.auth_tag,
		   last_login = EXCLUDED.last_login,
		   updated_at = EXCLUDED.updated_at`,
		cred.UserID,
		cred.EncryptedRefreshToken.Ciphertext,
		cred.EncryptedRefreshToken.IV,
		cred.EncryptedRefreshToken.AuthTag,
		cred.LastLogin,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// Find は指定ユーザーの認証情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) Find(ctx context.Context, userID string) (*model.StoredCredential, error) {
	cred := &model.StoredCredential{UserID: userID}
	err := r.db.QueryRowContext(ctx,
		`SELECT encrypted_refresh_token, iv, auth_tag, last_login, updated_at
		 FROM credentials WHERE user_id = $1`,
		userID,
	).Scan(
		&cred.EncryptedRefreshToken.Ciphertext,
		&cred.EncryptedRefreshToken.IV,
		&cred.EncryptedRefreshToken.AuthTag,
		&cred.LastLogin,
		&cred.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	return cred, nil
}

// ListUserIDs は認証情報を保持する全ユーザーIDを返す。
func (r *PostgresCredentialRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM credentials ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credential users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan credential user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate credential users: %w", err)
	}
	return ids, nil
}

// DeleteLastLoginBefore は最終ログインがbeforeより古い認証情報を削除する。
func (r *PostgresCredentialRepo) DeleteLastLoginBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE last_login < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale credentials: %w", err)
	}
	return result.RowsAffected()
}

var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
