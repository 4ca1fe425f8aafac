package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/hitoshi/essaybinder/internal/model"
)

type positionsDoc struct {
	Positions model.Positions `firestore:"positions"`
}

// FirestorePositionRepo はFirestoreを使用した位置リポジトリ。
// positions/{userId} に1ドキュメントとして保存する。
type FirestorePositionRepo struct {
	client *firestore.Client
}

// NewFirestorePositionRepo はFirestorePositionRepoを生成する。
func NewFirestorePositionRepo(client *firestore.Client) *FirestorePositionRepo {
	return &FirestorePositionRepo{client: client}
}

// Get は位置マップを返す。ドキュメントが無い場合は空のマップを返す。
func (r *FirestorePositionRepo) Get(ctx context.Context, userID string) (model.Positions, error) {
	snap, err := r.client.Collection(collectionPositions).Doc(userID).Get(ctx)
	if isNotFound(err) {
		return model.Positions{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	var d positionsDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode positions: %w", err)
	}
	if d.Positions == nil {
		return model.Positions{}, nil
	}
	return d.Positions, nil
}

// Replace は位置マップ全体を上書きする。
func (r *FirestorePositionRepo) Replace(ctx context.Context, userID string, positions model.Positions) error {
	_, err := r.client.Collection(collectionPositions).Doc(userID).Set(ctx, map[string]any{
		"positions":   positions,
		"lastUpdated": firestore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to save positions: %w", err)
	}
	return nil
}

var _ PositionRepository = (*FirestorePositionRepo)(nil)
