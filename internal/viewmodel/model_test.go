package viewmodel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/feed"
	"webinar-directory/internal/filter"
	"webinar-directory/internal/likes"
	"webinar-directory/internal/localstate"
	"webinar-directory/internal/snapshot"
	"webinar-directory/internal/sorting"
)

const feedJSON = `{"webinars":[
  {"id":"a","title":"Aseptic Processing","provider":"Acme","topics":["Sterile"],"format":"live","duration_min":25,"certificate_available":true,"live_date":"2099-01-01","url":"https://acme.example/a","likes":1},
  {"id":"b","title":"Batch Records","provider":"Acme","topics":["GMP"],"format":"on-demand","duration_min":45,"certificate_available":true,"live_date":"on-demand","url":"https://acme.example/b"},
  {"id":"c","title":"CAPA Basics","provider":"Beta","topics":["Quality"],"format":"live","duration_min":60,"certificate_available":true,"live_date":"2025-01-10","url":"https://beta.example/c","likes":5}
],"last_updated":"2025-01-01","total_count":3}`

var now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	model    *Model
	store    *feed.Store
	ledger   *likes.Ledger
	state    *localstate.State
	exportTo string
}

func newFixture(t *testing.T, st *localstate.State) fixture {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "webinars.json")
	require.NoError(t, os.WriteFile(path, []byte(feedJSON), 0o644))

	if st == nil {
		st = localstate.New()
	}
	session := &localstate.Session{State: st, Repo: localstate.NewMemory(st)}
	clock := func() time.Time { return now }

	store := feed.NewStore(feed.Options{Fetcher: feed.FileFetcher{Path: path}, Session: session, Now: clock})
	ledger := likes.New(likes.Options{Store: store, Session: session, Now: clock})
	exportDir := filepath.Join(dir, "out")
	m := New(Options{
		Store:    store,
		Ledger:   ledger,
		Exporter: &snapshot.Exporter{Source: store, Dir: exportDir, Base: "webinars", Now: clock},
		Now:      clock,
	})
	m.Start(context.Background())
	return fixture{model: m, store: store, ledger: ledger, state: st, exportTo: exportDir}
}

func rowIDs(v View) []string {
	out := make([]string, len(v.Rows))
	for i, r := range v.Rows {
		out[i] = r.Record.ID
	}
	return out
}

func TestRenderInitial(t *testing.T) {
	f := newFixture(t, nil)
	v := f.model.Render()

	assert.Equal(t, []string{"a", "b", "c"}, rowIDs(v))
	assert.Equal(t, 3, v.Total)
	assert.Equal(t, 3, v.Visible)
	assert.False(t, v.HasPendingChanges)
	assert.Equal(t, []string{"Acme", "Beta"}, v.Facets.Providers)
}

func TestFilterAndSortPipeline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.model.Dispatch(ctx, SetFilter{Set: filter.Set{DateMode: filter.DateLive}}))
	require.NoError(t, f.model.Dispatch(ctx, SortBy{Field: sorting.FieldLikes}))
	v := f.model.Render()
	assert.Equal(t, []string{"a", "c"}, rowIDs(v))
	assert.Equal(t, 2, v.Visible)
	assert.Equal(t, 3, v.Total)

	require.NoError(t, f.model.Dispatch(ctx, SortBy{Field: sorting.FieldLikes}))
	assert.Equal(t, []string{"c", "a"}, rowIDs(f.model.Render()))

	require.NoError(t, f.model.Dispatch(ctx, SetFilter{Set: filter.Set{DateMode: filter.DateUpcoming}}))
	assert.Equal(t, []string{"c"}, rowIDs(f.model.Render()), "2099 is outside the upcoming window")

	require.NoError(t, f.model.Dispatch(ctx, ClearFilters{}))
	assert.Equal(t, 3, f.model.Render().Visible)
	assert.False(t, f.model.Render().HasPendingChanges, "view commands are not mutations")
}

func TestDeleteThenDiscard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	before := f.store.Records()

	assert.False(t, f.model.Render().HasPendingChanges)
	require.NoError(t, f.model.Dispatch(ctx, DeleteRecord{ID: "b"}))
	v := f.model.Render()
	assert.True(t, v.HasPendingChanges)
	assert.Equal(t, []string{"a", "c"}, rowIDs(v))

	require.NoError(t, f.model.Dispatch(ctx, DiscardChanges{}))
	v = f.model.Render()
	assert.False(t, v.HasPendingChanges)
	assert.Equal(t, before, f.store.Records())
}

func TestNotFoundBecomesNotice(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	testCases := []Action{
		DeleteRecord{ID: "zzz"},
		EditRecord{ID: "zzz", Record: domain.Record{Title: "x"}},
		ToggleLike{ID: "zzz"},
		Focus{ID: "zzz"},
	}
	for _, a := range testCases {
		err := f.model.Dispatch(ctx, a)
		require.ErrorIs(t, err, feed.ErrNotFound, a.actionName())
		v := f.model.Render()
		require.Len(t, v.Notices, 1, a.actionName())
		assert.Equal(t, NoticeWarn, v.Notices[0].Level)
		assert.False(t, v.HasPendingChanges, a.actionName())
		assert.Equal(t, 3, v.Total)
	}

	// notices are transient
	require.NoError(t, f.model.Dispatch(ctx, ClearFilters{}))
	assert.Empty(t, f.model.Render().Notices)
}

func TestFocus(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.model.Dispatch(context.Background(), Focus{ID: "c"}))

	v := f.model.Render()
	assert.Equal(t, "c", v.Highlight)
	for _, r := range v.Rows {
		assert.Equal(t, r.Record.ID == "c", r.Highlighted)
	}
}

func TestToggleLikeAndLikedOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.model.Dispatch(ctx, ToggleLike{ID: "b"}))
	require.NoError(t, f.model.Dispatch(ctx, SetFilter{Set: filter.Set{LikedOnly: true}}))

	v := f.model.Render()
	require.Equal(t, []string{"b"}, rowIDs(v))
	assert.True(t, v.Rows[0].Liked)
	assert.Equal(t, 1, v.Rows[0].Likes)
	assert.True(t, v.HasPendingChanges)

	// "c" has a global count but the user never liked it
	require.NoError(t, f.model.Dispatch(ctx, ClearFilters{}))
	for _, r := range f.model.Render().Rows {
		if r.Record.ID == "c" {
			assert.False(t, r.Liked)
			assert.Equal(t, 5, r.Likes)
		}
	}
}

func TestExportGate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.model.Dispatch(ctx, ExportChanges{}))
	v := f.model.Render()
	require.Len(t, v.Notices, 1)
	assert.Equal(t, "No changes to export", v.Notices[0].Text)
	assert.Empty(t, f.model.State().LastExport)

	require.NoError(t, f.model.Dispatch(ctx, ExportAll{}))
	assert.Equal(t, filepath.Join(f.exportTo, "webinars_all.json"), f.model.State().LastExport)

	require.NoError(t, f.model.Dispatch(ctx, AddRecord{Record: domain.Record{Title: "New One", Provider: "Acme", URL: "https://acme.example/new"}}))
	require.NoError(t, f.model.Dispatch(ctx, ExportChanges{}))
	assert.Equal(t, filepath.Join(f.exportTo, "webinars_updated.json"), f.model.State().LastExport)
	assert.True(t, f.model.Render().HasPendingChanges, "export does not clear the flag")

	data, err := os.ReadFile(f.model.State().LastExport)
	require.NoError(t, err)
	res, err := domain.Parse(data)
	require.NoError(t, err)
	assert.Len(t, res.Document.Records, 4)
}

func TestAddAndEdit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.model.Dispatch(ctx, AddRecord{Record: domain.Record{Title: "Dev Talk", Provider: "Gamma", URL: "https://g.example/d"}}))
	st := f.model.State()
	assert.Equal(t, "gamma-dev-talk", st.Highlight)

	r, ok := f.store.Get("gamma-dev-talk")
	require.True(t, ok)
	assert.Equal(t, domain.SourceManual, r.Source)
	assert.Equal(t, "2025-01-01", r.DateAdded)

	edit := r
	edit.Title = "Dev Talk (updated)"
	edit.Source = domain.SourceScraped
	require.NoError(t, f.model.Dispatch(ctx, EditRecord{ID: r.ID, Record: edit}))
	r, _ = f.store.Get("gamma-dev-talk")
	assert.Equal(t, "Dev Talk (updated)", r.Title)
	assert.Equal(t, domain.SourceManual, r.Source)

	err := f.model.Dispatch(ctx, AddRecord{Record: domain.Record{Title: "No URL", Provider: "Gamma"}})
	require.Error(t, err)
	v := f.model.Render()
	require.Len(t, v.Notices, 1)
	assert.Equal(t, NoticeError, v.Notices[0].Level)
}

func TestStartIntegratesPendingAndMigrates(t *testing.T) {
	st := localstate.New()
	st.LegacyLikes["a"] = 2
	st.Stage(domain.Record{ID: "p", Title: "Pending", Provider: "Acme", URL: "https://acme.example/p", Source: domain.SourceManual})

	f := newFixture(t, st)
	v := f.model.Render()

	assert.Equal(t, 4, v.Total)
	assert.True(t, v.HasPendingChanges)
	assert.Equal(t, 3, f.ledger.Count("a"))
	assert.Empty(t, st.Pending)
	assert.Empty(t, st.LegacyLikes)

	require.NoError(t, f.model.Dispatch(context.Background(), IntegratePending{}))
	assert.Equal(t, 4, f.model.Render().Total)
}

func TestProjectIsPure(t *testing.T) {
	records := []domain.Record{
		{ID: "x", Title: "b", Format: "live"},
		{ID: "y", Title: "a", Format: "live"},
	}
	before := domain.CloneAll(records)
	st := State{Sort: sorting.State{Field: sorting.FieldTitle, Direction: sorting.Asc}}

	v1 := Project(records, st, ProjectOptions{Now: now})
	v2 := Project(records, st, ProjectOptions{Now: now})
	assert.Equal(t, v1, v2)
	assert.Equal(t, []string{"y", "x"}, rowIDs(v1))
	assert.Equal(t, before, records)
}
