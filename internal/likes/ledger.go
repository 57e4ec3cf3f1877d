// Package likes tracks like counts and the current user's like membership.
//
// The counter lives on each record and is shared by everyone once persisted.
// Membership lives in the user's local state and is never sent anywhere.
package likes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/localstate"
	"webinar-directory/internal/snapshot"
)

// Store is the part of the record store the ledger mutates.
type Store interface {
	Get(id string) (domain.Record, bool)
	Records() []domain.Record
	Collection() string
	AdjustLikes(id string, delta int) (int, error)
}

// fallbackReporter is implemented by stores that can be serving sample data.
type fallbackReporter interface {
	FromFallback() bool
}

// Persister saves a full snapshot after a like changes.
type Persister interface {
	Persist(ctx context.Context, doc domain.Document) error
}

type Options struct {
	Store     Store
	Session   *localstate.Session
	Persister Persister // nil disables background persistence
	Logger    *slog.Logger
	Now       func() time.Time
	// OnPersist, when set, is called with the outcome of every background
	// persistence call.
	OnPersist func(err error)
}

type Ledger struct {
	store     Store
	session   *localstate.Session
	persister Persister
	log       *slog.Logger
	now       func() time.Time
	onPersist func(error)

	inflight sync.WaitGroup
}

// Result is the state of one record right after a toggle.
type Result struct {
	ID    string
	Liked bool
	Count int
}

func New(opts Options) *Ledger {
	l := &Ledger{
		store:     opts.Store,
		session:   opts.Session,
		persister: opts.Persister,
		log:       opts.Logger,
		now:       opts.Now,
		onPersist: opts.OnPersist,
	}
	if l.session == nil {
		l.session = &localstate.Session{State: localstate.New()}
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

func (l *Ledger) IsLiked(id string) bool {
	return l.session.State.IsLiked(id)
}

// Count is the global like count of a record, 0 when it is missing.
func (l *Ledger) Count(id string) int {
	r, ok := l.store.Get(id)
	if !ok {
		return 0
	}
	return Resolve(r)
}

// Resolve reads the count off a record, treating anything negative as 0.
func Resolve(r domain.Record) int {
	if r.Likes < 0 {
		return 0
	}
	return r.Likes
}

// Toggle likes or unlikes a record for the current user. Liking increments
// the counter and records membership; unliking decrements it (never below 0)
// and clears membership. The new snapshot is then persisted in the
// background; a failed save is logged and the local change stays.
func (l *Ledger) Toggle(ctx context.Context, id string) (Result, error) {
	liked := !l.session.State.IsLiked(id)
	delta := 1
	if !liked {
		delta = -1
	}
	count, err := l.store.AdjustLikes(id, delta)
	if err != nil {
		return Result{}, fmt.Errorf("likes: toggle %s: %w", id, err)
	}
	l.session.State.SetLiked(id, liked)
	if err := l.session.Save(ctx); err != nil {
		l.log.Warn("saving like membership failed", "id", id, "error", err)
	}

	l.persist(ctx)
	return Result{ID: id, Liked: liked, Count: count}, nil
}

// persist hands the current snapshot to the persister without waiting.
// Calls are neither queued nor ordered; the last one to land wins. Sample
// data is never persisted, so a client that failed to load the feed cannot
// overwrite the canonical file.
func (l *Ledger) persist(ctx context.Context) {
	if l.persister == nil {
		return
	}
	if fr, ok := l.store.(fallbackReporter); ok && fr.FromFallback() {
		l.log.Warn("like not persisted, records are fallback data")
		return
	}
	doc := snapshot.ForPersist(l.store.Records(), l.store.Collection(), l.now())
	bg := context.WithoutCancel(ctx)

	l.inflight.Add(1)
	go func() {
		defer l.inflight.Done()
		err := l.persister.Persist(bg, doc)
		if err != nil {
			l.log.Warn("persisting likes failed", "error", err)
		}
		if l.onPersist != nil {
			l.onPersist(err)
		}
	}()
}

// Wait blocks until every background persistence call has returned.
func (l *Ledger) Wait() {
	l.inflight.Wait()
}

// Migrate folds the legacy per-id counter map from local state into the
// records' own counters, then discards the map so it is applied once.
// Entries for unknown ids are dropped. It returns how many records changed.
func (l *Ledger) Migrate(ctx context.Context) int {
	legacy := l.session.State.LegacyLikes
	if len(legacy) == 0 {
		return 0
	}

	migrated := 0
	for id, n := range legacy {
		if n <= 0 {
			continue
		}
		if _, err := l.store.AdjustLikes(id, n); err != nil {
			l.log.Debug("legacy likes for unknown record dropped", "id", id, "count", n)
			continue
		}
		migrated++
	}

	l.session.State.LegacyLikes = map[string]int{}
	if err := l.session.Save(ctx); err != nil {
		l.log.Warn("clearing legacy likes failed", "error", err)
	}
	l.log.Info("legacy likes migrated", "records", migrated, "entries", len(legacy))
	return migrated
}
