package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/feed"
	"webinar-directory/internal/httpx"
	"webinar-directory/internal/likes"
	"webinar-directory/internal/localstate"
	"webinar-directory/internal/snapshot"
	"webinar-directory/internal/viewmodel"
)

// client is one directory session: the feed loaded once, the user's local
// state, and the model commands are dispatched to.
type client struct {
	store    *feed.Store
	ledger   *likes.Ledger
	model    *viewmodel.Model
	session  *localstate.Session
	exporter *snapshot.Exporter
	log      *slog.Logger

	closeState func() error
}

func openClient(ctx context.Context, e *env) (*client, error) {
	cfg := e.cfg.Client

	httpc := httpx.New(cfg.Timeout)
	httpc.Logger = e.log

	var fetcher feed.Fetcher = feed.FileFetcher{Path: e.cfg.Feed.Path}
	if cfg.FeedURL != "" {
		fetcher = &feed.HTTPFetcher{Client: httpc, URL: cfg.FeedURL}
	}

	var fallback []domain.Record
	if cfg.FallbackPath != "" {
		records, err := readRecords(cfg.FallbackPath)
		if err != nil {
			e.log.Warn("fallback data unavailable", "path", cfg.FallbackPath, "error", err)
		}
		fallback = records
	}

	var (
		repo       localstate.Repository
		closeState = func() error { return nil }
	)
	if cfg.StatePath != "" {
		db, err := localstate.OpenSQLite(cfg.StatePath)
		if err != nil {
			return nil, err
		}
		repo, closeState = db, db.Close
	}
	session, err := localstate.OpenSession(ctx, repo)
	if err != nil {
		_ = closeState()
		return nil, fmt.Errorf("open local state: %w", err)
	}

	store := feed.NewStore(feed.Options{
		Fetcher:  fetcher,
		Session:  session,
		Fallback: fallback,
		Logger:   e.log,
	})
	var persister likes.Persister
	if cfg.PersistURL != "" {
		persister = &likes.HTTPPersister{Client: httpc, URL: cfg.PersistURL}
	}
	ledger := likes.New(likes.Options{
		Store:     store,
		Session:   session,
		Persister: persister,
		Logger:    e.log,
	})
	exporter := &snapshot.Exporter{
		Source: store,
		Dir:    cfg.ExportDir,
		Base:   cfg.ExportBase,
		Logger: e.log,
	}
	model := viewmodel.New(viewmodel.Options{
		Store:    store,
		Ledger:   ledger,
		Exporter: exporter,
		Logger:   e.log,
	})

	c := &client{
		store:      store,
		ledger:     ledger,
		model:      model,
		session:    session,
		exporter:   exporter,
		log:        e.log,
		closeState: closeState,
	}
	rep := model.Start(ctx)
	e.log.Debug("feed loaded",
		"source", rep.Source,
		"records", rep.Records,
		"rejected", len(rep.Rejected),
		"bypassed", rep.Bypassed,
	)
	return c, nil
}

// close ends the session. Pending like persistence is awaited, and a store
// left modified is exported to <base>_updated.json so the changes survive
// the process.
func (c *client) close(ctx context.Context, out io.Writer) error {
	c.ledger.Wait()

	var errs []error
	if c.store.Modified() && !c.exportedChanges() {
		path, err := c.exporter.ExportChanges(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("export on exit: %w", err))
		} else {
			fmt.Fprintf(out, "Unsaved changes exported to %s\n", path)
		}
	}
	if err := c.closeState(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// exportedChanges reports whether this session already wrote the updated
// export explicitly.
func (c *client) exportedChanges() bool {
	last := c.model.State().LastExport
	return last != "" && filepath.Base(last) == c.exporter.UpdatedName()
}

// dispatch applies a and prints the resulting notices.
func (c *client) dispatch(ctx context.Context, out io.Writer, a viewmodel.Action) error {
	err := c.model.Dispatch(ctx, a)
	printNotices(out, c.model.State().Notices)
	return err
}

func readRecords(path string) ([]domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res, err := domain.Parse(data)
	if err != nil {
		return nil, err
	}
	return res.Document.Records, nil
}
