package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/essaybinder/internal/model"
)

// PostgresPositionRepo はPostgreSQLを使用した位置リポジトリ。
// 位置マップはユーザーごとに1行のJSONBとして保存する。
type PostgresPositionRepo struct {
	db *sql.DB
}

// NewPostgresPositionRepo はPostgresPositionRepoを生成する。
func NewPostgresPositionRepo(db *sql.DB) *PostgresPositionRepo {
	return &PostgresPositionRepo{db: db}
}

// Get は位置マップを返す。行が無い場合は空のマップを返す。
func (r *PostgresPositionRepo) Get(ctx context.Context, userID string) (model.Positions, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT positions FROM positions WHERE user_id = $1`,
		userID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Positions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	positions := model.Positions{}
	if err := json.Unmarshal(raw, &positions); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	return positions, nil
}

// Replace は位置マップ全体を上書きする。
func (r *PostgresPositionRepo) Replace(ctx context.Context, userID string, positions model.Positions) error {
	raw, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO positions (user_id, positions, last_updated)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET positions = EXCLUDED.positions, last_updated = now()`,
		userID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to save positions: %w", err)
	}
	return nil
}

var _ PositionRepository = (*PostgresPositionRepo)(nil)
