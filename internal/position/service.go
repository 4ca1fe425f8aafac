// Package position はキャンバス上のエッセイカード配置を管理する。
package position

import (
	"context"
	"fmt"
	"math"

	"github.com/hitoshi/essaybinder/internal/model"
	"github.com/hitoshi/essaybinder/internal/repository"
)

// maxEntries は1ユーザーが保存できる位置の上限。
const maxEntries = 5000

// Service は位置マップの取得・保存を行う。
type Service struct {
	repo repository.PositionRepository
}

// NewService はServiceを生成する。
func NewService(repo repository.PositionRepository) *Service {
	return &Service{repo: repo}
}

// Get はユーザーの位置マップを返す。未保存の場合は空のマップ。
func (s *Service) Get(ctx context.Context, userID string) (model.Positions, error) {
	positions, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	if positions == nil {
		positions = model.Positions{}
	}
	return positions, nil
}

// Save は位置マップ全体を上書き保存する。
func (s *Service) Save(ctx context.Context, userID string, positions model.Positions) error {
	if err := validate(positions); err != nil {
		return err
	}
	if err := s.repo.Replace(ctx, userID, positions); err != nil {
		return fmt.Errorf("failed to save positions: %w", err)
	}
	return nil
}

func validate(positions model.Positions) error {
	invalid := model.NewInvalidInputError("Invalid positions data")
	if positions == nil || len(positions) > maxEntries {
		return invalid
	}
	for id, p := range positions {
		if id == "" || len(id) > 128 {
			return invalid
		}
		if !finite(p.X) || !finite(p.Y) {
			return invalid
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
