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

// essayDoc はFirestoreのessaysドキュメント。
type essayDoc struct {
	GoogleDocID       string    `firestore:"googleDocId"`
	Title             string    `firestore:"title"`
	Description       string    `firestore:"description"`
	Tags              []string  `firestore:"tags"`
	CreatedDate       string    `firestore:"createdDate"`
	LastModified      string    `firestore:"lastModified"`
	LastSynced        time.Time `firestore:"lastSynced"`
	UserID            string    `firestore:"userId"`
	DateAdded         time.Time `firestore:"dateAdded"`
	ApplicationFor    string    `firestore:"applicationFor"`
	ApplicationStatus string    `firestore:"applicationStatus"`
	Notes             string    `firestore:"notes"`
	Theme             string    `firestore:"theme,omitempty"`
	CharacterCount    int       `firestore:"characterCount"`
	WordCount         int       `firestore:"wordCount"`
	AddedVia          string    `firestore:"addedVia,omitempty"`
}

func toEssayDoc(e *model.Essay) essayDoc {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return essayDoc{
		GoogleDocID:       e.GoogleDocID,
		Title:             e.Title,
		Description:       e.Description,
		Tags:              tags,
		CreatedDate:       e.CreatedDate,
		LastModified:      e.LastModified,
		LastSynced:        e.LastSynced,
		UserID:            e.UserID,
		DateAdded:         e.DateAdded,
		ApplicationFor:    e.ApplicationFor,
		ApplicationStatus: string(e.ApplicationStatus),
		Notes:             e.Notes,
		Theme:             e.Theme,
		CharacterCount:    e.CharacterCount,
		WordCount:         e.WordCount,
		AddedVia:          string(e.AddedVia),
	}
}

func (d essayDoc) toModel(id string) *model.Essay {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	status := model.ApplicationStatus(d.ApplicationStatus)
	if status == "" {
		status = model.ApplicationStatusDraft
	}
	return &model.Essay{
		ID:                id,
		GoogleDocID:       d.GoogleDocID,
		Title:             d.Title,
		Description:       d.Description,
		Tags:              tags,
		CreatedDate:       d.CreatedDate,
		LastModified:      d.LastModified,
		LastSynced:        d.LastSynced,
		UserID:            d.UserID,
		DateAdded:         d.DateAdded,
		ApplicationFor:    d.ApplicationFor,
		ApplicationStatus: status,
		Notes:             d.Notes,
		Theme:             d.Theme,
		CharacterCount:    d.CharacterCount,
		WordCount:         d.WordCount,
		AddedVia:          model.AddedVia(d.AddedVia),
	}
}

func essayFromSnapshot(snap *firestore.DocumentSnapshot) (*model.Essay, error) {
	var d essayDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode essay %s: %w", snap.Ref.ID, err)
	}
	return d.toModel(snap.Ref.ID), nil
}

// FirestoreEssayRepo はFirestoreを使用したエッセイリポジトリ。
type FirestoreEssayRepo struct {
	client *firestore.Client
}

// NewFirestoreEssayRepo はFirestoreEssayRepoを生成する。
func NewFirestoreEssayRepo(client *firestore.Client) *FirestoreEssayRepo {
	return &FirestoreEssayRepo{client: client}
}

func (r *FirestoreEssayRepo) essays() *firestore.CollectionRef {
	return r.client.Collection(collectionEssays)
}

func (r *FirestoreEssayRepo) byUserAndDoc(userID, googleDocID string) firestore.Query {
	return r.essays().
		Where("userId", "==", userID).
		Where("googleDocId", "==", googleDocID).
		Limit(1)
}

// FindByID は指定IDのエッセイを取得する。見つからない場合はnilを返す。
func (r *FirestoreEssayRepo) FindByID(ctx context.Context, id string) (*model.Essay, error) {
	snap, err := r.essays().Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エッセイの取得に失敗しました: %w", err)
	}
	return essayFromSnapshot(snap)
}

// FindByUserAndDoc はユーザーIDとGoogleドキュメントIDでエッセイを検索する。
func (r *FirestoreEssayRepo) FindByUserAndDoc(ctx context.Context, userID, googleDocID string) (*model.Essay, error) {
	iter := r.byUserAndDoc(userID, googleDocID).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーとドキュメントによるエッセイの検索に失敗しました: %w", err)
	}
	return essayFromSnapshot(snap)
}

// ListByUser はユーザーのエッセイ一覧をdateAdded降順で返す。
func (r *FirestoreEssayRepo) ListByUser(ctx context.Context, userID string) ([]*model.Essay, error) {
	iter := r.essays().
		Where("userId", "==", userID).
		OrderBy("dateAdded", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	essays := []*model.Essay{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("エッセイ一覧の取得に失敗しました: %w", err)
		}
		e, err := essayFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		essays = append(essays, e)
	}
	return essays, nil
}

// Create はトランザクション内で重複を確認してからエッセイを作成する。
// 同一 (userId, googleDocId) が既に存在する場合はErrDuplicateを返す。
func (r *FirestoreEssayRepo) Create(ctx context.Context, e *model.Essay) error {
	ref := r.essays().NewDoc()
	if e.ID != "" {
		ref = r.essays().Doc(e.ID)
	}
	doc := toEssayDoc(e)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(r.byUserAndDoc(e.UserID, e.GoogleDocID)).GetAll()
		if err != nil {
			return err
		}
		if len(snaps) > 0 {
			return errDuplicateInTx
		}
		return tx.Create(ref, doc)
	})
	if errors.Is(err, errDuplicateInTx) || isAlreadyExists(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("エッセイの作成に失敗しました: %w", err)
	}
	e.ID = ref.ID
	return nil
}

// Delete は指定IDのエッセイを削除する。
func (r *FirestoreEssayRepo) Delete(ctx context.Context, id string) error {
	_, err := r.essays().Doc(id).Delete(ctx, firestore.Exists)
	return r.wrap("エッセイの削除", err)
}

// AddTag はarrayUnionでタグを追加する。
func (r *FirestoreEssayRepo) AddTag(ctx context.Context, id, tag string) error {
	return r.update(ctx, id, "タグの追加", []firestore.Update{
		{Path: "tags", Value: firestore.ArrayUnion(tag)},
	})
}

// RemoveTag はarrayRemoveでタグを削除する。
func (r *FirestoreEssayRepo) RemoveTag(ctx context.Context, id, tag string) error {
	return r.update(ctx, id, "タグの削除", []firestore.Update{
		{Path: "tags", Value: firestore.ArrayRemove(tag)},
	})
}

// UpdateFields は指定されたフィールドのみを部分更新する。
func (r *FirestoreEssayRepo) UpdateFields(ctx context.Context, id string, u model.EssayUpdate) error {
	if u.Empty() {
		return nil
	}
	return r.update(ctx, id, "エッセイの更新", essayUpdates(u))
}

func essayUpdates(u model.EssayUpdate) []firestore.Update {
	var updates []firestore.Update
	if u.ApplicationFor != nil {
		updates = append(updates, firestore.Update{Path: "applicationFor", Value: *u.ApplicationFor})
	}
	if u.ApplicationStatus != nil {
		updates = append(updates, firestore.Update{Path: "applicationStatus", Value: string(*u.ApplicationStatus)})
	}
	if u.Notes != nil {
		updates = append(updates, firestore.Update{Path: "notes", Value: *u.Notes})
	}
	if u.Theme != nil {
		updates = append(updates, firestore.Update{Path: "theme", Value: *u.Theme})
	}
	if u.LastModified != nil {
		updates = append(updates, firestore.Update{Path: "lastModified", Value: *u.LastModified})
	}
	return updates
}

// UpdateSync はプロバイダから取得したメタ情報と同期日時を保存する。
func (r *FirestoreEssayRepo) UpdateSync(ctx context.Context, id string, meta model.EssayMeta, syncedAt time.Time) error {
	return r.update(ctx, id, "同期情報の更新", []firestore.Update{
		{Path: "title", Value: meta.Title},
		{Path: "lastModified", Value: meta.LastModified},
		{Path: "characterCount", Value: meta.CharacterCount},
		{Path: "wordCount", Value: meta.WordCount},
		{Path: "lastSynced", Value: syncedAt},
	})
}

func (r *FirestoreEssayRepo) update(ctx context.Context, id, op string, updates []firestore.Update) error {
	_, err := r.essays().Doc(id).Update(ctx, updates)
	return r.wrap(op, err)
}

func (r *FirestoreEssayRepo) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%sに失敗しました: %w", op, err)
}

var _ EssayRepository = (*FirestoreEssayRepo)(nil)
