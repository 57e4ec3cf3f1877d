// Package localstate holds the per-user state a directory client keeps between
// sessions: the feed version token, the user's liked set, staged additions and
// the legacy like counters awaiting migration. None of it is sent to the server.
package localstate

import (
	"context"
	"sort"
	"sync"

	"webinar-directory/internal/domain"
)

type State struct {
	// VersionToken is the last feed last_updated value this client saw.
	VersionToken string
	Liked        map[string]bool
	// LegacyLikes is the old standalone counter map, keyed by record id.
	LegacyLikes map[string]int
	// Pending are records staged by an earlier admin session.
	Pending []domain.Record
}

func New() *State {
	return &State{
		Liked:       map[string]bool{},
		LegacyLikes: map[string]int{},
	}
}

func (s *State) IsLiked(id string) bool { return s.Liked[id] }

func (s *State) SetLiked(id string, liked bool) {
	if s.Liked == nil {
		s.Liked = map[string]bool{}
	}
	if liked {
		s.Liked[id] = true
		return
	}
	delete(s.Liked, id)
}

// LikedIDs returns the liked ids in sorted order.
func (s *State) LikedIDs() []string {
	out := make([]string, 0, len(s.Liked))
	for id, ok := range s.Liked {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// TakePending returns the staged records and clears the staging area.
func (s *State) TakePending() []domain.Record {
	p := s.Pending
	s.Pending = nil
	return p
}

func (s *State) Stage(r domain.Record) {
	s.Pending = append(s.Pending, r.Clone())
}

func (s *State) clone() *State {
	out := New()
	out.VersionToken = s.VersionToken
	for k, v := range s.Liked {
		out.Liked[k] = v
	}
	for k, v := range s.LegacyLikes {
		out.LegacyLikes[k] = v
	}
	out.Pending = domain.CloneAll(s.Pending)
	return out
}

// Repository loads and saves State. Implementations must return a fresh,
// non-nil State when nothing has been saved yet.
type Repository interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}

// Memory is a Repository kept in process memory.
type Memory struct {
	mu    sync.Mutex
	state *State
}

func NewMemory(initial *State) *Memory {
	if initial == nil {
		initial = New()
	}
	return &Memory{state: initial.clone()}
}

func (m *Memory) Load(context.Context) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone(), nil
}

func (m *Memory) Save(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s.clone()
	return nil
}

// Session pairs the in-memory state with the repository it is saved to.
// The store and the like ledger share one Session.
type Session struct {
	State *State
	Repo  Repository
}

// OpenSession loads the saved state from repo. A nil repo yields an unsaved,
// empty session.
func OpenSession(ctx context.Context, repo Repository) (*Session, error) {
	if repo == nil {
		return &Session{State: New()}, nil
	}
	st, err := repo.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{State: st, Repo: repo}, nil
}

func (s *Session) Save(ctx context.Context) error {
	if s.Repo == nil {
		return nil
	}
	return s.Repo.Save(ctx, s.State)
}
