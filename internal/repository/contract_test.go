package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/essaybinder/internal/model"
)

// essayRepoContract はEssayRepository実装に共通の振る舞いを検証する。
func essayRepoContract(t *testing.T, repo EssayRepository, userPrefix string) {
	t.Helper()
	ctx := context.Background()
	user := userPrefix + "-user"
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := &model.Essay{
		GoogleDocID: "doc-older", Title: "Older", UserID: user, DateAdded: base,
		ApplicationStatus: model.ApplicationStatusDraft, Tags: []string{}, AddedVia: model.AddedViaURL,
	}
	newer := &model.Essay{
		GoogleDocID: "doc-newer", Title: "Newer", UserID: user, DateAdded: base.Add(time.Hour),
		ApplicationStatus: model.ApplicationStatusDraft, Tags: []string{}, AddedVia: model.AddedViaFilePicker,
	}
	for _, e := range []*model.Essay{older, newer} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create(%s) error = %v", e.GoogleDocID, err)
		}
		if e.ID == "" {
			t.Fatalf("Create(%s) did not assign ID", e.GoogleDocID)
		}
	}

	dup := &model.Essay{GoogleDocID: "doc-older", UserID: user, DateAdded: base, ApplicationStatus: model.ApplicationStatusDraft}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Create(duplicate) error = %v, want ErrDuplicate", err)
	}

	list, err := repo.ListByUser(ctx, user)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Fatalf("ListByUser() = %v, want [newer older]", list)
	}

	found, err := repo.FindByUserAndDoc(ctx, user, "doc-newer")
	if err != nil || found == nil || found.ID != newer.ID {
		t.Errorf("FindByUserAndDoc() = %v, %v", found, err)
	}
	if found, _ := repo.FindByUserAndDoc(ctx, "someone-else", "doc-newer"); found != nil {
		t.Errorf("FindByUserAndDoc(other user) = %v, want nil", found)
	}

	if err := repo.AddTag(ctx, older.ID, "a"); err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}
	if err := repo.AddTag(ctx, older.ID, "a"); err != nil {
		t.Fatalf("AddTag() twice error = %v", err)
	}
	if err := repo.AddTag(ctx, older.ID, "b"); err != nil {
		t.Fatalf("AddTag() error = %v", err)
	}
	if err := repo.RemoveTag(ctx, older.ID, "a"); err != nil {
		t.Fatalf("RemoveTag() error = %v", err)
	}

	status := model.ApplicationStatusSubmitted
	notes := "draft two"
	if err := repo.UpdateFields(ctx, older.ID, model.EssayUpdate{ApplicationStatus: &status, Notes: &notes}); err != nil {
		t.Fatalf("UpdateFields() error = %v", err)
	}
	synced := base.Add(2 * time.Hour)
	meta := model.EssayMeta{Title: "Renamed", LastModified: "2026-01-02T00:00:00.000Z", CharacterCount: 12, WordCount: 3}
	if err := repo.UpdateSync(ctx, older.ID, meta, synced); err != nil {
		t.Fatalf("UpdateSync() error = %v", err)
	}

	got, err := repo.FindByID(ctx, older.ID)
	if err != nil || got == nil {
		t.Fatalf("FindByID() = %v, %v", got, err)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "b" {
		t.Errorf("Tags = %v, want [b]", got.Tags)
	}
	if got.ApplicationStatus != status || got.Notes != notes {
		t.Errorf("ApplicationStatus = %s, Notes = %q", got.ApplicationStatus, got.Notes)
	}
	if got.Title != "Renamed" || got.WordCount != 3 || !got.LastSynced.Equal(synced) {
		t.Errorf("sync fields = %q, %d, %v", got.Title, got.WordCount, got.LastSynced)
	}

	if err := repo.Delete(ctx, older.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, older.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrNotFound", err)
	}
	if err := repo.AddTag(ctx, older.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddTag(missing) error = %v, want ErrNotFound", err)
	}
	if got, _ := repo.FindByID(ctx, older.ID); got != nil {
		t.Errorf("FindByID(deleted) = %v, want nil", got)
	}
}

// credentialRepoContract はCredentialRepository実装に共通の振る舞いを検証する。
func credentialRepoContract(t *testing.T, repo CredentialRepository, userPrefix string) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	active := userPrefix + "-active"
	stale := userPrefix + "-stale"

	if got, err := repo.Find(ctx, active); err != nil || got != nil {
		t.Fatalf("Find(absent) = %v, %v, want nil, nil", got, err)
	}

	for _, c := range []*model.StoredCredential{
		{UserID: active, EncryptedRefreshToken: model.SealedToken{Ciphertext: "aa", IV: "01", AuthTag: "02"}, LastLogin: now, UpdatedAt: now},
		{UserID: stale, EncryptedRefreshToken: model.SealedToken{Ciphertext: "bb", IV: "03", AuthTag: "04"}, LastLogin: now.AddDate(-1, 0, 0), UpdatedAt: now},
	} {
		if err := repo.Upsert(ctx, c); err != nil {
			t.Fatalf("Upsert(%s) error = %v", c.UserID, err)
		}
	}

	// 後勝ち
	if err := repo.Upsert(ctx, &model.StoredCredential{
		UserID: active, EncryptedRefreshToken: model.SealedToken{Ciphertext: "cc", IV: "05", AuthTag: "06"}, LastLogin: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Upsert(overwrite) error = %v", err)
	}
	got, err := repo.Find(ctx, active)
	if err != nil || got == nil {
		t.Fatalf("Find() = %v, %v", got, err)
	}
	if got.EncryptedRefreshToken.Ciphertext != "cc" || got.EncryptedRefreshToken.AuthTag != "06" {
		t.Errorf("EncryptedRefreshToken = %+v, want overwritten value", got.EncryptedRefreshToken)
	}

	ids, err := repo.ListUserIDs(ctx)
	if err != nil {
		t.Fatalf("ListUserIDs() error = %v", err)
	}
	seen := map[string]bool{}
	for _, id := range ids {
		seen[id] = true
	}
	if !seen[active] || !seen[stale] {
		t.Errorf("ListUserIDs() = %v, want to contain %s and %s", ids, active, stale)
	}

	n, err := repo.DeleteLastLoginBefore(ctx, now.AddDate(0, -6, 0))
	if err != nil {
		t.Fatalf("DeleteLastLoginBefore() error = %v", err)
	}
	if n < 1 {
		t.Errorf("DeleteLastLoginBefore() = %d, want >= 1", n)
	}
	if got, _ := repo.Find(ctx, stale); got != nil {
		t.Error("stale credential still present")
	}
	if got, _ := repo.Find(ctx, active); got == nil {
		t.Error("active credential was deleted")
	}
}

// positionRepoContract はPositionRepository実装に共通の振る舞いを検証する。
func positionRepoContract(t *testing.T, repo PositionRepository, userID string) {
	t.Helper()
	ctx := context.Background()

	got, err := repo.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Get(absent) = %v, want empty map", got)
	}

	first := model.Positions{"e1": {X: 1, Y: 2, ZIndex: 3}, "e2": {X: 4.5, Y: -1, ZIndex: 1}}
	if err := repo.Replace(ctx, userID, first); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	second := model.Positions{"e3": {X: 7, Y: 8, ZIndex: 9}}
	if err := repo.Replace(ctx, userID, second); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, err = repo.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 1 || got["e3"] != second["e3"] {
		t.Errorf("Get() = %v, want wholesale overwrite %v", got, second)
	}
}
