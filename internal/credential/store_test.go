package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/essaybinder/internal/model"
	"github.com/hitoshi/essaybinder/internal/repository"
)

type mockCredentialRepo struct {
	upsertFn      func(ctx context.Context, cred *model.StoredCredential) error
	findFn        func(ctx context.Context, userID string) (*model.StoredCredential, error)
	listUserIDsFn func(ctx context.Context) ([]string, error)
	deleteFn      func(ctx context.Context, before time.Time) (int64, error)
}

func (m *mockCredentialRepo) Upsert(ctx context.Context, cred *model.StoredCredential) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, cred)
	}
	return nil
}

func (m *mockCredentialRepo) Find(ctx context.Context, userID string) (*model.StoredCredential, error) {
	if m.findFn != nil {
		return m.findFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockCredentialRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	if m.listUserIDsFn != nil {
		return m.listUserIDsFn(ctx)
	}
	return nil, nil
}

func (m *mockCredentialRepo) DeleteLastLoginBefore(ctx context.Context, before time.Time) (int64, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, before)
	}
	return 0, nil
}

var _ repository.CredentialRepository = (*mockCredentialRepo)(nil)

func TestStore_SaveAndLoad(t *testing.T) {
	saved := map[string]*model.StoredCredential{}
	repo := &mockCredentialRepo{
		upsertFn: func(_ context.Context, cred *model.StoredCredential) error {
			saved[cred.UserID] = cred
			return nil
		},
		findFn: func(_ context.Context, userID string) (*model.StoredCredential, error) {
			return saved[userID], nil
		},
	}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	store := NewStore(repo, newTestCipher(t))
	store.nowFn = func() time.Time { return now }

	if err := store.SaveRefreshToken(context.Background(), "user-1", "rt-secret"); err != nil {
		t.Fatalf("SaveRefreshToken() error = %v", err)
	}

	cred := saved["user-1"]
	if cred == nil {
		t.Fatal("credential was not upserted")
	}
	if cred.EncryptedRefreshToken.Ciphertext == "" || cred.EncryptedRefreshToken.Ciphertext == "rt-secret" {
		t.Errorf("stored ciphertext = %q, want encrypted value", cred.EncryptedRefreshToken.Ciphertext)
	}
	if !cred.LastLogin.Equal(now) || !cred.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v/%v, want %v", cred.LastLogin, cred.UpdatedAt, now)
	}

	got, err := store.LoadRefreshToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LoadRefreshToken() error = %v", err)
	}
	if got != "rt-secret" {
		t.Errorf("LoadRefreshToken() = %q, want %q", got, "rt-secret")
	}
}

func TestStore_LoadRefreshToken_NotFound(t *testing.T) {
	store := NewStore(&mockCredentialRepo{}, newTestCipher(t))

	_, err := store.LoadRefreshToken(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStore_LoadRefreshToken_IntegrityError(t *testing.T) {
	other, _ := NewCipher(testKey(0x01))
	sealed, _ := other.Encrypt("rt")
	repo := &mockCredentialRepo{
		findFn: func(_ context.Context, userID string) (*model.StoredCredential, error) {
			return &model.StoredCredential{UserID: userID, EncryptedRefreshToken: sealed}, nil
		},
	}
	store := NewStore(repo, newTestCipher(t))

	_, err := store.LoadRefreshToken(context.Background(), "user-1")
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("error = %v, want ErrIntegrity", err)
	}
}

func TestStore_SaveRefreshToken_RepoError(t *testing.T) {
	repoErr := errors.New("db down")
	store := NewStore(&mockCredentialRepo{
		upsertFn: func(context.Context, *model.StoredCredential) error { return repoErr },
	}, newTestCipher(t))

	err := store.SaveRefreshToken(context.Background(), "user-1", "rt")
	if !errors.Is(err, repoErr) {
		t.Errorf("error = %v, want wrapped repo error", err)
	}
}

func TestStore_PurgeStale(t *testing.T) {
	cutoff := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var gotBefore time.Time
	store := NewStore(&mockCredentialRepo{
		deleteFn: func(_ context.Context, before time.Time) (int64, error) {
			gotBefore = before
			return 3, nil
		},
	}, newTestCipher(t))

	n, err := store.PurgeStale(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PurgeStale() error = %v", err)
	}
	if n != 3 {
		t.Errorf("PurgeStale() = %d, want 3", n)
	}
	if !gotBefore.Equal(cutoff) {
		t.Errorf("before = %v, want %v", gotBefore, cutoff)
	}
}
