// Package feed owns the in-memory record collection for a session: loading
// it from the canonical feed, integrating staged additions and applying the
// admin mutations. It also tracks whether anything changed since the last
// load.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"webinar-directory/internal/domain"
	"webinar-directory/internal/localstate"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrDuplicateID = errors.New("duplicate record id")
)

// LoadSource tells where the records of the last load came from.
type LoadSource string

const (
	SourceNetwork  LoadSource = "network"
	SourceFallback LoadSource = "fallback"
)

// LoadReport describes one load. Err is the error that forced a fallback; it
// is informational only.
type LoadReport struct {
	Source   LoadSource
	Token    string
	Bypassed bool
	Records  int
	Rejected []domain.Rejected
	Err      error
}

type Options struct {
	Fetcher Fetcher
	// Session holds the remembered version token and the staged records.
	Session *localstate.Session
	// Fallback is served when the feed cannot be fetched or parsed.
	Fallback []domain.Record
	Logger   *slog.Logger
	Now      func() time.Time
}

type Store struct {
	fetcher  Fetcher
	session  *localstate.Session
	fallback []domain.Record
	log      *slog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	records     []domain.Record
	collection  string
	lastUpdated string
	modified    bool
	source      LoadSource

	// canonical is the last successfully loaded feed, restored by Discard
	// when the reload fails.
	canonical *domain.Document
}

func NewStore(opts Options) *Store {
	s := &Store{
		fetcher:  opts.Fetcher,
		session:  opts.Session,
		fallback: domain.CloneAll(opts.Fallback),
		log:      opts.Logger,
		now:      opts.Now,
	}
	if s.session == nil {
		s.session = &localstate.Session{State: localstate.New()}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Load fetches the feed and replaces the in-memory collection. It never
// fails: fetch or parse errors fall back to the configured sample records.
// Load does not touch the modified flag.
func (s *Store) Load(ctx context.Context) LoadReport {
	doc, rep := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(doc, rep)
	return rep
}

// Discard reloads the canonical feed, overwriting every in-memory change, and
// returns the store to the clean state. If the reload fails the last
// successfully loaded feed is restored instead of the sample records.
func (s *Store) Discard(ctx context.Context) LoadReport {
	doc, rep := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	restored := rep.Source == SourceFallback && s.canonical != nil
	if restored {
		doc = *s.canonical
		rep.Records = len(doc.Records)
	}
	s.install(doc, rep)
	if restored {
		s.source = SourceNetwork
	}
	s.modified = false
	return rep
}

func (s *Store) install(doc domain.Document, rep LoadReport) {
	s.records = domain.CloneAll(doc.Records)
	s.collection = doc.Collection
	s.lastUpdated = doc.LastUpdated
	s.source = rep.Source
	if rep.Source == SourceNetwork {
		canonical := doc
		canonical.Records = domain.CloneAll(doc.Records)
		s.canonical = &canonical
	}
}

// fetch runs the two-step token protocol. The first fetch may be served from
// cache; only when its token differs from the remembered one is a second,
// cache-bypassing fetch made.
func (s *Store) fetch(ctx context.Context) (domain.Document, LoadReport) {
	if s.fetcher == nil {
		return s.fallbackDoc(errors.New("no feed configured"))
	}

	data, err := s.fetcher.Fetch(ctx, false)
	if err != nil {
		return s.fallbackDoc(err)
	}
	token, err := domain.PeekToken(data)
	if err != nil {
		return s.fallbackDoc(err)
	}

	bypassed := false
	if token != s.session.State.VersionToken {
		fresh, err := s.fetcher.Fetch(ctx, true)
		if err != nil {
			s.log.Warn("cache-bypass fetch failed, using first response", "error", err)
		} else {
			data, bypassed = fresh, true
		}
	}

	res, err := domain.Parse(data)
	if err != nil {
		return s.fallbackDoc(err)
	}
	for _, rj := range res.Rejected {
		s.log.Warn("feed record rejected", "index", rj.Index, "id", rj.ID, "reason", rj.Reason)
	}

	doc := res.Document
	if doc.LastUpdated != s.session.State.VersionToken {
		s.session.State.VersionToken = doc.LastUpdated
		if err := s.session.Save(ctx); err != nil {
			s.log.Warn("saving version token failed", "error", err)
		}
	}

	s.log.Info("feed loaded",
		"records", len(doc.Records),
		"rejected", len(res.Rejected),
		"token", doc.LastUpdated,
		"bypassed", bypassed,
	)
	return doc, LoadReport{
		Source:   SourceNetwork,
		Token:    doc.LastUpdated,
		Bypassed: bypassed,
		Records:  len(doc.Records),
		Rejected: res.Rejected,
	}
}

func (s *Store) fallbackDoc(cause error) (domain.Document, LoadReport) {
	s.log.Warn("feed load failed, using fallback records", "error", cause, "fallback", len(s.fallback))
	doc := domain.Document{
		Collection: domain.CollectionWebinars,
		Records:    domain.CloneAll(s.fallback),
	}
	return doc, LoadReport{Source: SourceFallback, Records: len(doc.Records), Err: cause}
}

// Records returns a copy of the collection in store order.
func (s *Store) Records() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneAll(s.records)
}

func (s *Store) Get(id string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.index(id); i >= 0 {
		return s.records[i].Clone(), true
	}
	return domain.Record{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Collection is the key the feed used for its record list.
func (s *Store) Collection() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.collection == "" {
		return domain.CollectionWebinars
	}
	return s.collection
}

func (s *Store) LastUpdated() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// Source tells where the records in memory came from. Records restored
// from the last good feed by Discard count as network records. It is empty
// before the first load.
func (s *Store) Source() LoadSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// FromFallback reports whether the records in memory are the sample data.
func (s *Store) FromFallback() bool {
	return s.Source() == SourceFallback
}

// Modified reports whether any mutation happened since the last Discard.
// It is never cleared by exporting.
func (s *Store) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

func (s *Store) MarkModified() {
	s.mu.Lock()
	s.modified = true
	s.mu.Unlock()
}

func (s *Store) index(id string) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}

// IntegratePending appends the records staged in local state, clears the
// staging area and marks the store modified. Staged records whose id is
// already present are skipped. It returns the number appended.
func (s *Store) IntegratePending(ctx context.Context) int {
	pending := s.session.State.TakePending()
	if len(pending) == 0 {
		return 0
	}

	s.mu.Lock()
	added := 0
	for _, r := range pending {
		if s.index(r.ID) >= 0 {
			s.log.Warn("staged record skipped, id already present", "id", r.ID)
			continue
		}
		s.records = append(s.records, r.Clone())
		added++
	}
	s.modified = true
	s.mu.Unlock()

	if err := s.session.Save(ctx); err != nil {
		s.log.Warn("clearing staged records failed", "error", err)
	}
	s.log.Info("staged records integrated", "added", added, "staged", len(pending))
	return added
}

// Add inserts a record through the admin add-flow. The record is marked
// manual and stamped with today's date. An empty id is generated from
// provider, title and live date; a generated id that collides gets a short
// random suffix, an explicit one is rejected.
func (s *Store) Add(r domain.Record) (domain.Record, error) {
	r = r.Clone()
	r.Source = domain.SourceManual
	r.DateAdded = domain.Today(s.now())
	if r.Likes < 0 {
		r.Likes = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(r.ID) == "" {
		date := ""
		if !domain.IsDateSentinel(r.LiveDate) {
			date = r.LiveDate
		}
		r.ID = domain.Slug(r.Provider, r.Title, date)
		if r.ID != "" && s.index(r.ID) >= 0 {
			r.ID = r.ID + "-" + uuid.NewString()[:8]
		}
	} else if s.index(r.ID) >= 0 {
		return domain.Record{}, fmt.Errorf("feed: add %s: %w", r.ID, ErrDuplicateID)
	}
	if err := r.Validate(); err != nil {
		return domain.Record{}, fmt.Errorf("feed: add: %w", err)
	}

	s.records = append(s.records, r)
	s.modified = true
	return r.Clone(), nil
}

// Replace overwrites every field of the record with the given id.
// date_added and the like counter are kept from the stored record, and a
// manual record stays manual. Likes only move through AdjustLikes. The id
// may change as long as it stays unique.
func (s *Store) Replace(id string, r domain.Record) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return domain.Record{}, fmt.Errorf("feed: replace %s: %w", id, ErrNotFound)
	}
	old := s.records[i]

	r = r.Clone()
	if strings.TrimSpace(r.ID) == "" {
		r.ID = old.ID
	}
	if r.ID != old.ID && s.index(r.ID) >= 0 {
		return domain.Record{}, fmt.Errorf("feed: replace %s: %w", r.ID, ErrDuplicateID)
	}
	r.Kind = old.Kind
	r.DateAdded = old.DateAdded
	switch {
	case old.IsManual():
		r.Source = domain.SourceManual
	case r.Source == "":
		r.Source = old.Source
	}
	if r.Extra == nil {
		r.Extra = old.Clone().Extra
	}
	r.Likes = old.Likes
	if err := r.Validate(); err != nil {
		return domain.Record{}, fmt.Errorf("feed: replace %s: %w", id, err)
	}

	s.records[i] = r
	s.modified = true
	return r.Clone(), nil
}

func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("feed: remove %s: %w", id, ErrNotFound)
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	s.modified = true
	return nil
}

// AdjustLikes adds delta to the record's like counter, flooring at zero, and
// returns the new count.
func (s *Store) AdjustLikes(id string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return 0, fmt.Errorf("feed: likes %s: %w", id, ErrNotFound)
	}
	n := s.records[i].Likes + delta
	if n < 0 {
		n = 0
	}
	s.records[i].Likes = n
	s.modified = true
	return n, nil
}

// MarkManual protects a record from automated overwrite and removal.
func (s *Store) MarkManual(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.index(id)
	if i < 0 {
		return fmt.Errorf("feed: mark manual %s: %w", id, ErrNotFound)
	}
	if !s.records[i].IsManual() {
		s.records[i].Source = domain.SourceManual
		s.modified = true
	}
	return nil
}

// MarkManualMatching marks every record accepted by match as manual and
// returns the ids that changed.
func (s *Store) MarkManualMatching(match func(domain.Record) bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for i := range s.records {
		if s.records[i].IsManual() || !match(s.records[i]) {
			continue
		}
		s.records[i].Source = domain.SourceManual
		changed = append(changed, s.records[i].ID)
	}
	if len(changed) > 0 {
		s.modified = true
	}
	return changed
}

// SetRecords replaces the whole collection, as a batch job does, and marks
// the store modified.
func (s *Store) SetRecords(records []domain.Record) {
	s.mu.Lock()
	s.records = domain.CloneAll(records)
	s.modified = true
	s.mu.Unlock()
}
