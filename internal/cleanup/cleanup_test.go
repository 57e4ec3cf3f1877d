package cleanup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/httpx"
	"webinar-directory/internal/snapshot"
)

func linkServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/nohead", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func checker() *LinkChecker {
	client := httpx.New(5 * time.Second)
	client.Retry = httpx.NoRetry()
	return &LinkChecker{Client: client, Workers: 3}
}

func TestLinkCheckerValidate(t *testing.T) {
	srv := linkServer(t)
	records := []domain.Record{
		{ID: "ok", URL: srv.URL + "/ok"},
		{ID: "nohead", URL: srv.URL + "/nohead"},
		{ID: "missing", URL: srv.URL + "/missing"},
		{ID: "forbidden", URL: srv.URL + "/forbidden"},
		{ID: "moved", URL: srv.URL + "/moved"},
		{ID: "teapot", URL: srv.URL + "/teapot"},
		{ID: "empty", URL: ""},
		{ID: "relative", URL: "/just/a/path"},
	}

	rep := checker().Validate(context.Background(), records)
	require.Len(t, rep.Results, len(records))

	expected := map[string]string{
		"ok":        "URL accessible",
		"nohead":    "URL accessible",
		"missing":   "404 Not Found",
		"forbidden": "Access denied (403)",
		"moved":     "URL accessible",
		"teapot":    "HTTP 418",
		"empty":     "No URL provided",
		"relative":  "Invalid URL format",
	}
	for i, res := range rep.Results {
		assert.Equal(t, records[i].ID, res.ID, "results keep input order")
		assert.Equal(t, expected[res.ID], res.Reason, res.ID)
	}

	kept := rep.Keep(records)
	var ids []string
	for _, r := range kept {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"ok", "nohead", "moved"}, ids)
	assert.Len(t, rep.Invalid(), 5)
}

func TestLinkCheckerConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	rep := checker().Validate(context.Background(), []domain.Record{{ID: "down", URL: url}})
	require.Len(t, rep.Results, 1)
	assert.False(t, rep.Results[0].Valid)
	assert.Equal(t, "Connection error", rep.Results[0].Reason)
}

func TestExpired(t *testing.T) {
	now := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	records := []domain.Record{
		{ID: "past-live", LiveDate: "2025-06-14"},
		{ID: "past-live-manual", LiveDate: "2025-01-01", Source: domain.SourceManual},
		{ID: "today-live", LiveDate: "2025-06-15"},
		{ID: "future-live", LiveDate: "2025-07-01"},
		{ID: "bad-live", LiveDate: "sometime in June"},
		{ID: "old-ondemand", LiveDate: "on-demand", DateAdded: "2024-01-01"},
		{ID: "old-ondemand-manual", LiveDate: "on-demand", DateAdded: "2024-01-01", Source: domain.SourceManual},
		{ID: "fresh-ondemand", LiveDate: "on-demand", DateAdded: "2025-05-01"},
		{ID: "no-live-date-old", DateAdded: "2023-01-01"},
		{ID: "ondemand-bad-added", LiveDate: "on-demand", DateAdded: "yesterday"},
		{ID: "ondemand-bad-added-manual", LiveDate: "on-demand", DateAdded: "yesterday", Source: domain.SourceManual},
		{ID: "ondemand-no-added", LiveDate: "on-demand"},
		{ID: "unknown-old", LiveDate: "Unknown", DateAdded: "2024-01-01"},
		{ID: "unknown-bad-added", LiveDate: "unknown", DateAdded: "yesterday"},
		{ID: "unknown-no-added", LiveDate: "Unknown"},
	}

	kept, removed := Expired(records, now, 365)

	var keptIDs, removedIDs []string
	for _, r := range kept {
		keptIDs = append(keptIDs, r.ID)
	}
	for _, r := range removed {
		removedIDs = append(removedIDs, r.ID)
	}
	assert.Equal(t, []string{
		"today-live", "future-live", "bad-live", "old-ondemand-manual", "fresh-ondemand",
		"ondemand-bad-added-manual", "ondemand-no-added", "unknown-bad-added", "unknown-no-added",
	}, keptIDs)
	assert.Equal(t, []string{
		"past-live", "past-live-manual", "old-ondemand", "no-live-date-old", "ondemand-bad-added", "unknown-old",
	}, removedIDs)
	assert.True(t, removed[1].WasManual)
	assert.Equal(t, "Past live date: 2025-06-14", removed[0].Reason)
}

func TestSourceStats(t *testing.T) {
	s := SourceStats([]domain.Record{{Source: domain.SourceManual}, {Source: domain.SourceScraped}, {Source: domain.SourceScraped}, {}})
	assert.Equal(t, Stats{Total: 4, Manual: 1, Scraped: 2, NoSource: 1}, s)
}

func writeFeed(t *testing.T, records []domain.Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webinars.json")
	data, err := snapshot.Encode(domain.Document{Records: records, LastUpdated: "2025-01-01", TotalCount: len(records)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestJobBrokenLinks(t *testing.T) {
	srv := linkServer(t)
	path := writeFeed(t, []domain.Record{
		{ID: "a", Title: "A", Provider: "P", URL: srv.URL + "/ok"},
		{ID: "b", Title: "B", Provider: "P", URL: srv.URL + "/missing"},
	})
	now := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	job := &Job{
		Writer:  &snapshot.FileWriter{Path: path, Now: func() time.Time { return now }},
		Checker: checker(),
		Now:     func() time.Time { return now },
	}

	out, err := job.BrokenLinks(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Removed)
	assert.False(t, out.Written)
	assert.Contains(t, out.Output, "404 Not Found")

	out, err = job.BrokenLinks(context.Background(), false)
	require.NoError(t, err)
	assert.True(t, out.Written)
	assert.Equal(t, 1, out.After)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	res, err := domain.Parse(data)
	require.NoError(t, err)
	require.Len(t, res.Document.Records, 1)
	assert.Equal(t, "a", res.Document.Records[0].ID)
	assert.Equal(t, "2025-06-15T14:00:00Z", res.Document.LastUpdated)

	backups, err := job.Writer.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	out, err = job.BrokenLinks(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, out.Removed)
	assert.Contains(t, out.Output, "Nothing to remove")
}

func TestJobExpiredRecords(t *testing.T) {
	path := writeFeed(t, []domain.Record{
		{ID: "a", Title: "A", Provider: "P", URL: "https://p.example/a", LiveDate: "2025-01-01"},
		{ID: "b", Title: "B", Provider: "P", URL: "https://p.example/b", LiveDate: "2099-01-01"},
	})
	job := &Job{
		Writer: &snapshot.FileWriter{Path: path, SkipBackup: true},
		Now:    func() time.Time { return time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC) },
	}

	out, err := job.ExpiredRecords(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Before: 2, After: 1, Removed: 1, Written: true, Output: out.Output}, out)
	assert.Contains(t, out.Output, "remove a: Past live date: 2025-01-01")

	backups, err := job.Writer.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestJobMissingFile(t *testing.T) {
	job := &Job{Writer: &snapshot.FileWriter{Path: filepath.Join(t.TempDir(), "nope.json")}}
	_, err := job.ExpiredRecords(context.Background(), true)
	assert.Error(t, err)
}
