// Package viewmodel turns the record store into a filtered, sorted table and
// applies user commands to it. Commands go through Dispatch; Render is a
// read-only projection of the current state.
package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/feed"
	"webinar-directory/internal/filter"
	"webinar-directory/internal/likes"
	"webinar-directory/internal/snapshot"
	"webinar-directory/internal/sorting"
)

type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeWarn  NoticeLevel = "warn"
	NoticeError NoticeLevel = "error"
)

// Notice is a transient message shown after a command. Notices are cleared
// at the start of the next Dispatch.
type Notice struct {
	Level NoticeLevel `json:"level"`
	Text  string      `json:"text"`
}

// State is everything the table view depends on besides the records.
type State struct {
	Filter    filter.Set
	Sort      sorting.State
	Highlight string
	Notices   []Notice
	// LastExport is the path of the most recent successful export.
	LastExport string
}

type Options struct {
	Store    *feed.Store
	Ledger   *likes.Ledger
	Exporter *snapshot.Exporter
	Now      func() time.Time
	Logger   *slog.Logger
}

type Model struct {
	store    *feed.Store
	ledger   *likes.Ledger
	exporter *snapshot.Exporter
	now      func() time.Time
	log      *slog.Logger

	mu    sync.Mutex
	state State
}

func New(opts Options) *Model {
	m := &Model{
		store:    opts.Store,
		ledger:   opts.Ledger,
		exporter: opts.Exporter,
		now:      opts.Now,
		log:      opts.Logger,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// Start loads the feed, migrates legacy like counters and merges staged
// records, in that order.
func (m *Model) Start(ctx context.Context) feed.LoadReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	rep := m.store.Load(ctx)
	if rep.Source == feed.SourceFallback {
		m.state.Notices = append(m.state.Notices, Notice{NoticeWarn, "Feed unavailable, showing sample data"})
	}
	if m.ledger != nil {
		m.ledger.Migrate(ctx)
	}
	if n := m.store.IntegratePending(ctx); n > 0 {
		m.state.Notices = append(m.state.Notices, Notice{NoticeInfo, fmt.Sprintf("Integrated %d staged records", n)})
	}
	return rep
}

// State returns a copy of the current UI state.
func (m *Model) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state
	st.Notices = append([]Notice(nil), m.state.Notices...)
	return st
}

// Dispatch applies one action. Commands are applied in call order. A failed
// command leaves the records untouched, adds a notice and returns the error.
func (m *Model) Dispatch(ctx context.Context, a Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Notices = nil
	err := m.apply(ctx, a)
	if err != nil {
		m.log.Debug("action failed", "action", a.actionName(), "error", err)
	}
	return err
}

func (m *Model) apply(ctx context.Context, a Action) error {
	switch a := a.(type) {
	case SetFilter:
		m.state.Filter = a.Set
	case ClearFilters:
		m.state.Filter = filter.Set{}
	case SortBy:
		m.state.Sort = m.state.Sort.Click(a.Field)

	case ToggleLike:
		if m.ledger == nil {
			return m.fail(errors.New("likes are disabled"))
		}
		res, err := m.ledger.Toggle(ctx, a.ID)
		if err != nil {
			return m.fail(err)
		}
		verb := "Unliked"
		if res.Liked {
			verb = "Liked"
		}
		m.notify(NoticeInfo, "%s %s", verb, res.ID)

	case AddRecord:
		r, err := m.store.Add(a.Record)
		if err != nil {
			return m.fail(err)
		}
		m.state.Highlight = r.ID
		m.notify(NoticeInfo, "Added %s", r.ID)

	case EditRecord:
		r, err := m.store.Replace(a.ID, a.Record)
		if err != nil {
			return m.fail(err)
		}
		if m.state.Highlight == a.ID {
			m.state.Highlight = r.ID
		}
		m.notify(NoticeInfo, "Updated %s", r.ID)

	case DeleteRecord:
		if err := m.store.Remove(a.ID); err != nil {
			return m.fail(err)
		}
		if m.state.Highlight == a.ID {
			m.state.Highlight = ""
		}
		m.notify(NoticeInfo, "Deleted %s", a.ID)

	case DiscardChanges:
		rep := m.store.Discard(ctx)
		if _, ok := m.store.Get(m.state.Highlight); !ok {
			m.state.Highlight = ""
		}
		if rep.Source == feed.SourceFallback {
			m.notify(NoticeWarn, "Feed unavailable, restored the last loaded data")
		} else {
			m.notify(NoticeInfo, "Changes discarded")
		}

	case ExportChanges:
		if m.exporter == nil {
			return m.fail(errors.New("export is not configured"))
		}
		path, err := m.exporter.ExportChanges(ctx)
		if errors.Is(err, snapshot.ErrNoChanges) {
			m.notify(NoticeInfo, "No changes to export")
			return nil
		}
		if err != nil {
			return m.fail(err)
		}
		m.state.LastExport = path
		m.notify(NoticeInfo, "Exported changes to %s", path)

	case ExportAll:
		if m.exporter == nil {
			return m.fail(errors.New("export is not configured"))
		}
		path, err := m.exporter.ExportAll(ctx)
		if err != nil {
			return m.fail(err)
		}
		m.state.LastExport = path
		m.notify(NoticeInfo, "Exported all records to %s", path)

	case Focus:
		if _, ok := m.store.Get(a.ID); !ok {
			m.state.Highlight = ""
			return m.fail(fmt.Errorf("focus %s: %w", a.ID, feed.ErrNotFound))
		}
		m.state.Highlight = a.ID

	case IntegratePending:
		if n := m.store.IntegratePending(ctx); n > 0 {
			m.notify(NoticeInfo, "Integrated %d staged records", n)
		}

	default:
		return fmt.Errorf("viewmodel: unknown action %T", a)
	}
	return nil
}

func (m *Model) notify(level NoticeLevel, format string, args ...any) {
	m.state.Notices = append(m.state.Notices, Notice{Level: level, Text: fmt.Sprintf(format, args...)})
}

// fail turns an error into a notice. Not-found errors get the short form.
func (m *Model) fail(err error) error {
	if errors.Is(err, feed.ErrNotFound) {
		m.notify(NoticeWarn, "Record not found")
	} else {
		m.notify(NoticeError, "%s", err.Error())
	}
	return err
}

// Render projects the current state onto the table view.
func (m *Model) Render() View {
	m.mu.Lock()
	st := m.state
	st.Notices = append([]Notice(nil), m.state.Notices...)
	m.mu.Unlock()

	var isLiked func(string) bool
	if m.ledger != nil {
		isLiked = m.ledger.IsLiked
	}
	v := Project(m.store.Records(), st, ProjectOptions{Now: m.now(), IsLiked: isLiked})
	v.HasPendingChanges = m.store.Modified()
	return v
}

// Row is one table line.
type Row struct {
	Record      domain.Record `json:"record"`
	Liked       bool          `json:"liked"`
	Likes       int           `json:"likes"`
	Highlighted bool          `json:"highlighted,omitempty"`
}

// View is everything needed to draw the directory.
type View struct {
	Rows              []Row         `json:"rows"`
	Total             int           `json:"total"`
	Visible           int           `json:"visible"`
	HasPendingChanges bool          `json:"has_pending_changes"`
	Highlight         string        `json:"highlight,omitempty"`
	Notices           []Notice      `json:"notices,omitempty"`
	Filter            filter.Set    `json:"-"`
	Sort              sorting.State `json:"-"`
	Facets            filter.Facets `json:"facets"`
}

type ProjectOptions struct {
	Now     time.Time
	IsLiked func(id string) bool
}

// Project filters then sorts records according to st. It does not modify its
// inputs and does not touch the modified flag.
func Project(records []domain.Record, st State, opts ProjectOptions) View {
	visible := filter.Apply(records, st.Filter, filter.Options{Now: opts.Now, IsLiked: opts.IsLiked})
	visible = st.Sort.Apply(visible, likes.Resolve)

	rows := make([]Row, len(visible))
	for i, r := range visible {
		rows[i] = Row{
			Record:      r,
			Likes:       likes.Resolve(r),
			Highlighted: st.Highlight != "" && r.ID == st.Highlight,
		}
		if opts.IsLiked != nil {
			rows[i].Liked = opts.IsLiked(r.ID)
		}
	}
	return View{
		Rows:      rows,
		Total:     len(records),
		Visible:   len(rows),
		Highlight: st.Highlight,
		Notices:   st.Notices,
		Filter:    st.Filter,
		Sort:      st.Sort,
		Facets:    filter.CollectFacets(records),
	}
}
