package likes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/feed"
	"webinar-directory/internal/httpx"
	"webinar-directory/internal/localstate"
)

const feedJSON = `{"webinars":[
  {"id":"x","title":"X","provider":"P","url":"https://p.example/x"},
  {"id":"y","title":"Y","provider":"P","url":"https://p.example/y","likes":3}
],"last_updated":"2025-01-01"}`

type recordingPersister struct {
	mu   sync.Mutex
	docs []domain.Document
	err  error
}

func (p *recordingPersister) Persist(_ context.Context, doc domain.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs = append(p.docs, doc)
	return p.err
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.docs)
}

func setup(t *testing.T, st *localstate.State, p Persister) (*Ledger, *feed.Store, *localstate.Memory) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webinars.json")
	require.NoError(t, os.WriteFile(path, []byte(feedJSON), 0o644))

	if st == nil {
		st = localstate.New()
	}
	repo := localstate.NewMemory(st)
	session := &localstate.Session{State: st, Repo: repo}
	store := feed.NewStore(feed.Options{Fetcher: feed.FileFetcher{Path: path}, Session: session})
	store.Load(context.Background())

	l := New(Options{
		Store:     store,
		Session:   session,
		Persister: p,
		Now:       func() time.Time { return time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC) },
	})
	return l, store, repo
}

func TestToggleFromUndefinedLikes(t *testing.T) {
	p := &recordingPersister{}
	l, store, _ := setup(t, nil, p)
	ctx := context.Background()

	res, err := l.Toggle(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, Result{ID: "x", Liked: true, Count: 1}, res)
	assert.True(t, l.IsLiked("x"))
	assert.Equal(t, 1, l.Count("x"))
	assert.True(t, store.Modified())

	res, err = l.Toggle(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, Result{ID: "x", Liked: false, Count: 0}, res)
	assert.False(t, l.IsLiked("x"))
	assert.Equal(t, 0, l.Count("x"))

	l.Wait()
	assert.Equal(t, 2, p.count())
}

func TestEvenTogglesRestoreState(t *testing.T) {
	for _, n := range []int{2, 4, 10} {
		l, _, _ := setup(t, nil, nil)
		startLiked, startCount := l.IsLiked("y"), l.Count("y")
		for i := 0; i < n; i++ {
			_, err := l.Toggle(context.Background(), "y")
			require.NoError(t, err)
		}
		assert.Equal(t, startLiked, l.IsLiked("y"), "after %d toggles", n)
		assert.Equal(t, startCount, l.Count("y"), "after %d toggles", n)
	}
}

func TestCountNeverNegative(t *testing.T) {
	// membership says liked while the counter is already 0
	st := localstate.New()
	st.SetLiked("x", true)
	l, _, _ := setup(t, st, nil)

	for i := 0; i < 5; i++ {
		res, err := l.Toggle(context.Background(), "x")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Count, 0)
	}
	assert.Equal(t, 0, l.Count("x"))
}

func TestToggleSavesMembership(t *testing.T) {
	l, _, repo := setup(t, nil, nil)
	_, err := l.Toggle(context.Background(), "y")
	require.NoError(t, err)

	saved, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, saved.IsLiked("y"))
}

func TestToggleUnknownRecord(t *testing.T) {
	l, store, _ := setup(t, nil, nil)
	_, err := l.Toggle(context.Background(), "nope")
	require.ErrorIs(t, err, feed.ErrNotFound)
	assert.False(t, l.IsLiked("nope"))
	assert.False(t, store.Modified())
}

func TestPersistFailureKeepsLocalChange(t *testing.T) {
	p := &recordingPersister{err: errors.New("500 from server")}
	var outcomes []error
	var mu sync.Mutex

	l, _, _ := setup(t, nil, p)
	l.onPersist = func(err error) {
		mu.Lock()
		outcomes = append(outcomes, err)
		mu.Unlock()
	}

	res, err := l.Toggle(context.Background(), "y")
	require.NoError(t, err)
	l.Wait()

	assert.Equal(t, 4, res.Count)
	assert.Equal(t, 4, l.Count("y"))
	assert.True(t, l.IsLiked("y"))
	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0])
}

func TestPersistedSnapshotContents(t *testing.T) {
	p := &recordingPersister{}
	l, _, _ := setup(t, nil, p)

	_, err := l.Toggle(context.Background(), "y")
	require.NoError(t, err)
	l.Wait()

	require.Equal(t, 1, p.count())
	doc := p.docs[0]
	assert.Equal(t, domain.CollectionWebinars, doc.Collection)
	assert.Equal(t, "2025-02-03T04:05:06Z", doc.LastUpdated)
	assert.Equal(t, 2, doc.TotalCount)
	assert.Equal(t, 4, doc.Records[1].Likes)
}

func TestFallbackDataIsNotPersisted(t *testing.T) {
	p := &recordingPersister{}
	store := feed.NewStore(feed.Options{
		Fetcher:  feed.FileFetcher{Path: filepath.Join(t.TempDir(), "missing.json")},
		Fallback: []domain.Record{{ID: "sample", Title: "S", Provider: "P", URL: "https://p.example/s"}},
	})
	rep := store.Load(context.Background())
	require.Equal(t, feed.SourceFallback, rep.Source)
	require.True(t, store.FromFallback())

	l := New(Options{Store: store, Persister: p})
	res, err := l.Toggle(context.Background(), "sample")
	require.NoError(t, err)
	l.Wait()

	assert.Equal(t, 1, res.Count, "the like still counts locally")
	assert.True(t, l.IsLiked("sample"))
	assert.Zero(t, p.count())
}

func TestMigrateOnce(t *testing.T) {
	st := localstate.New()
	st.LegacyLikes = map[string]int{"x": 2, "y": 1, "gone": 7, "zero": 0}
	l, store, repo := setup(t, st, nil)
	ctx := context.Background()

	assert.Equal(t, 2, l.Migrate(ctx))
	assert.Equal(t, 2, l.Count("x"))
	assert.Equal(t, 4, l.Count("y"))
	assert.True(t, store.Modified())

	assert.Equal(t, 0, l.Migrate(ctx), "second run is a no-op")
	assert.Equal(t, 4, l.Count("y"))

	saved, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, saved.LegacyLikes)
}

func TestHTTPPersister(t *testing.T) {
	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		if r.URL.Path == "/fail" {
			w.Write([]byte(`{"success":false,"error":"disk full"}`))
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := httpx.New(5 * time.Second)
	client.Retry = httpx.NoRetry()
	doc := domain.Document{Records: []domain.Record{{ID: "a", Title: "A", Provider: "P", URL: "https://p.example"}}, LastUpdated: "t", TotalCount: 1}

	p := &HTTPPersister{Client: client, URL: srv.URL + "/api/save-likes"}
	require.NoError(t, p.Persist(context.Background(), doc))
	assert.Contains(t, got, "webinars")
	assert.JSONEq(t, `1`, string(got["total_count"]))

	p.URL = srv.URL + "/fail"
	err := p.Persist(context.Background(), doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
