package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/essaybinder/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

const essayColumns = `id, user_id, google_doc_id, title, description, tags, created_date, last_modified,
	last_synced, date_added, application_for, application_status, notes, theme,
	character_count, word_count, added_via`

// PostgresEssayRepo はPostgreSQLを使用したエッセイリポジトリ。
type PostgresEssayRepo struct {
	db *sql.DB
}

// NewPostgresEssayRepo はPostgresEssayRepoを生成する。
func NewPostgresEssayRepo(db *sql.DB) *PostgresEssayRepo {
	return &PostgresEssayRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEssay(row rowScanner) (*model.Essay, error) {
	e := &model.Essay{}
	var tags pq.StringArray
	err := row.Scan(
		&e.ID, &e.UserID, &e.GoogleDocID, &e.Title, &e.Description, &tags,
		&e.CreatedDate, &e.LastModified, &e.LastSynced, &e.DateAdded,
		&e.ApplicationFor, &e.ApplicationStatus, &e.Notes, &e.Theme,
		&e.CharacterCount, &e.WordCount, &e.AddedVia,
	)
	if err != nil {
		return nil, err
	}
	e.Tags = []string(tags)
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return e, nil
}

// FindByID は指定IDのエッセイを取得する。見つからない場合はnilを返す。
func (r *PostgresEssayRepo) FindByID(ctx context.Context, id string) (*model.Essay, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	e, err := scanEssay(r.db.QueryRowContext(ctx,
		`SELECT `+essayColumns+` FROM essays WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エッセイの取得に失敗しました: %w", err)
	}
	return e, nil
}

// FindByUserAndDoc はユーザーIDとGoogleドキュメントIDでエッセイを検索する。見つからない場合はnilを返す。
func (r *PostgresEssayRepo) FindByUserAndDoc(ctx context.Context, userID, googleDocID string) (*model.Essay, error) {
	e, err := scanEssay(r.db.QueryRowContext(ctx,
		`SELECT `+essayColumns+` FROM essays WHERE user_id = $1 AND google_doc_id = $2`,
		userID, googleDocID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーとドキュメントによるエッセイの検索に失敗しました: %w", err)
	}
	return e, nil
}

// ListByUser はユーザーのエッセイ一覧をdate_added降順で返す。
func (r *PostgresEssayRepo) ListByUser(ctx context.Context, userID string) ([]*model.Essay, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+essayColumns+` FROM essays WHERE user_id = $1 ORDER BY date_added DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("エッセイ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	essays := []*model.Essay{}
	for rows.Next() {
		e, err := scanEssay(rows)
		if err != nil {
			return nil, fmt.Errorf("エッセイ行の読み取りに失敗しました: %w", err)
		}
		essays = append(essays, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("エッセイ一覧の走査に失敗しました: %w", err)
	}
	return essays, nil
}

// Create はエッセイを作成する。IDが空の場合はUUIDを採番する。
// (user_id, google_doc_id) の一意制約違反はErrDuplicateを返す。
func (r *PostgresEssayRepo) Create(ctx context.Context, e *model.Essay) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO essays (`+essayColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		e.ID, e.UserID, e.GoogleDocID, e.Title, e.Description, pq.Array(tags),
		e.CreatedDate, e.LastModified, e.LastSynced, e.DateAdded,
		e.ApplicationFor, e.ApplicationStatus, e.Notes, e.Theme,
		e.CharacterCount, e.WordCount, e.AddedVia,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("エッセイの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのエッセイを削除する。
func (r *PostgresEssayRepo) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "エッセイの削除", `DELETE FROM essays WHERE id = $1`, id)
}

// AddTag はタグを和集合として追加する。
func (r *PostgresEssayRepo) AddTag(ctx context.Context, id, tag string) error {
	return r.execOne(ctx, "タグの追加",
		`UPDATE essays
		 SET tags = CASE WHEN $2 = ANY(tags) THEN tags ELSE array_append(tags, $2) END
		 WHERE id = $1`,
		id, tag,
	)
}

// RemoveTag はタグを差集合として削除する。
func (r *PostgresEssayRepo) RemoveTag(ctx context.Context, id, tag string) error {
	return r.execOne(ctx, "タグの削除",
		`UPDATE essays SET tags = array_remove(tags, $2) WHERE id = $1`,
		id, tag,
	)
}

// UpdateFields は指定されたフィールドのみを部分更新する。
func (r *PostgresEssayRepo) UpdateFields(ctx context.Context, id string, u model.EssayUpdate) error {
	if u.Empty() {
		return nil
	}
	var (
		sets []string
		args = []any{id}
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if u.ApplicationFor != nil {
		add("application_for", *u.ApplicationFor)
	}
	if u.ApplicationStatus != nil {
		add("application_status", string(*u.ApplicationStatus))
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.Theme != nil {
		add("theme", *u.Theme)
	}
	if u.LastModified != nil {
		add("last_modified", *u.LastModified)
	}
	return r.execOne(ctx, "エッセイの更新",
		`UPDATE essays SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		args...,
	)
}

// UpdateSync はプロバイダから取得したメタ情報と同期日時を保存する。
func (r *PostgresEssayRepo) UpdateSync(ctx context.Context, id string, meta model.EssayMeta, syncedAt time.Time) error {
	return r.execOne(ctx, "同期情報の更新",
		`UPDATE essays
		 SET title = $2, last_modified = $3, character_count = $4, word_count = $5, last_synced = $6
		 WHERE id = $1`,
		id, meta.Title, meta.LastModified, meta.CharacterCount, meta.WordCount, syncedAt,
	)
}

// execOne は1行を対象とする更新を実行し、対象が無い場合はErrNotFoundを返す。
func (r *PostgresEssayRepo) execOne(ctx context.Context, op, query string, args ...any) error {
	if _, err := uuid.Parse(fmt.Sprint(args[0])); err != nil {
		return ErrNotFound
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%sに失敗しました: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%sの結果取得に失敗しました: %w", op, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

var _ EssayRepository = (*PostgresEssayRepo)(nil)
