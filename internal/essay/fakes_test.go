package essay

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/essaybinder/internal/cache"
	"github.com/hitoshi/essaybinder/internal/docs"
	"github.com/hitoshi/essaybinder/internal/model"
	"github.com/hitoshi/essaybinder/internal/repository"
	"github.com/hitoshi/essaybinder/internal/security"
)

// memEssayRepo はテスト用のインメモリEssayRepository。
type memEssayRepo struct {
	mu      sync.Mutex
	seq     int
	essays  map[string]*model.Essay
	syncs   int
	syncErr error
}

func newMemEssayRepo() *memEssayRepo {
	return &memEssayRepo{essays: map[string]*model.Essay{}}
}

func clone(e *model.Essay) *model.Essay {
	c := *e
	c.Tags = append([]string{}, e.Tags...)
	return &c
}

func (r *memEssayRepo) FindByID(_ context.Context, id string) (*model.Essay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.essays[id]; ok {
		return clone(e), nil
	}
	return nil, nil
}

func (r *memEssayRepo) FindByUserAndDoc(_ context.Context, userID, docID string) (*model.Essay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.essays {
		if e.UserID == userID && e.GoogleDocID == docID {
			return clone(e), nil
		}
	}
	return nil, nil
}

func (r *memEssayRepo) ListByUser(_ context.Context, userID string) ([]*model.Essay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Essay
	for _, e := range r.essays {
		if e.UserID == userID {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateAdded.After(out[j].DateAdded) })
	return out, nil
}

func (r *memEssayRepo) Create(_ context.Context, e *model.Essay) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.essays {
		if x.UserID == e.UserID && x.GoogleDocID == e.GoogleDocID {
			return repository.ErrDuplicate
		}
	}
	r.seq++
	if e.ID == "" {
		e.ID = fmt.Sprintf("essay-%d", r.seq)
	}
	r.essays[e.ID] = clone(e)
	return nil
}

func (r *memEssayRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.essays[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.essays, id)
	return nil
}

func (r *memEssayRepo) AddTag(_ context.Context, id, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.essays[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, t := range e.Tags {
		if t == tag {
			return nil
		}
	}
	e.Tags = append(e.Tags, tag)
	return nil
}

func (r *memEssayRepo) RemoveTag(_ context.Context, id, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.essays[id]
	if !ok {
		return repository.ErrNotFound
	}
	tags := e.Tags[:0]
	for _, t := range e.Tags {
		if t != tag {
			tags = append(tags, t)
		}
	}
	e.Tags = tags
	return nil
}

func (r *memEssayRepo) UpdateFields(_ context.Context, id string, u model.EssayUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.essays[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.ApplicationFor != nil {
		e.ApplicationFor = *u.ApplicationFor
	}
	if u.ApplicationStatus != nil {
		e.ApplicationStatus = *u.ApplicationStatus
	}
	if u.Notes != nil {
		e.Notes = *u.Notes
	}
	if u.Theme != nil {
		e.Theme = *u.Theme
	}
	if u.LastModified != nil {
		e.LastModified = *u.LastModified
	}
	return nil
}

func (r *memEssayRepo) UpdateSync(_ context.Context, id string, meta model.EssayMeta, syncedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.syncErr != nil {
		return r.syncErr
	}
	e, ok := r.essays[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Title = meta.Title
	e.LastModified = meta.LastModified
	e.CharacterCount = meta.CharacterCount
	e.WordCount = meta.WordCount
	e.LastSynced = syncedAt
	r.syncs++
	return nil
}

// seed はエッセイを直接登録する。
func (r *memEssayRepo) seed(e *model.Essay) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.Tags == nil {
		e.Tags = []string{}
	}
	r.essays[e.ID] = clone(e)
}

func (r *memEssayRepo) get(id string) *model.Essay {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.essays[id]; ok {
		return clone(e)
	}
	return nil
}

var _ repository.EssayRepository = (*memEssayRepo)(nil)

// fakeDoc はfakeProviderが返すドキュメント。
type fakeDoc struct {
	file  docs.FileMeta
	stats docs.Stats
	err   error
}

// fakeProvider はテスト用のdocs.Provider。
type fakeProvider struct {
	docs     map[string]fakeDoc
	delay    time.Duration
	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{docs: map[string]fakeDoc{}}
}

func (p *fakeProvider) addDoc(id, title string, words int) {
	p.docs[id] = fakeDoc{
		file: docs.FileMeta{
			ID:           id,
			Name:         title,
			MimeType:     docs.MimeTypeDocument,
			CreatedTime:  "2025-09-01T00:00:00.000Z",
			ModifiedTime: "2025-10-01T00:00:00.000Z",
		},
		stats: docs.Stats{CharacterCount: words * 5, WordCount: words},
	}
}

func (p *fakeProvider) enter() func() {
	n := p.inFlight.Add(1)
	for {
		m := p.maxSeen.Load()
		if n <= m || p.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	return func() { p.inFlight.Add(-1) }
}

func (p *fakeProvider) GetFile(_ context.Context, id string) (*docs.FileMeta, error) {
	defer p.enter()()
	p.calls.Add(1)
	d, ok := p.docs[id]
	if !ok {
		return nil, fmt.Errorf("get file: %w", docs.ErrNotFound)
	}
	if d.err != nil {
		return nil, d.err
	}
	f := d.file
	return &f, nil
}

func (p *fakeProvider) GetStats(_ context.Context, id string) (*docs.Stats, error) {
	d, ok := p.docs[id]
	if !ok {
		return nil, fmt.Errorf("get document: %w", docs.ErrNotFound)
	}
	if d.err != nil {
		return nil, d.err
	}
	s := d.stats
	return &s, nil
}

var _ docs.Provider = (*fakeProvider)(nil)

// newTestCache はminiredisを使ったキャッシュを返す。
func newTestCache(t *testing.T) (*miniredis.Miniredis, *cache.Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, cache.New(cache.NewRedisStore(client), nil)
}

func newTestService(repo repository.EssayRepository, c *cache.Cache) *Service {
	return NewService(repo, c, security.NewTextSanitizer(), nil, Config{MaxConcurrent: 4})
}

func ptr[T any](v T) *T { return &v }
