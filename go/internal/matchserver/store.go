package matchserver

import (
	"sort"
	"sync"

	"github.com/mcdev12/wordduel/go/internal/wire"
)

// Store keeps every match in memory, keyed by session id
type Store struct {
	mu      sync.RWMutex
	matches map[string]*Match
}

func NewStore() *Store {
	return &Store{matches: make(map[string]*Match)}
}

func (s *Store) Put(m *Match) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[m.ID] = m
}

func (s *Store) Get(id string) (*Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.matches[id]; ok {
		return m, nil
	}
	return nil, ruleErr(wire.ReasonNotFound, "session %s not found", id)
}

// List returns summaries of the matches keep accepts, oldest first
func (s *Store) List(keep func(m *Match) bool) []wire.SessionSummary {
	s.mu.RLock()
	all := make([]*Match, 0, len(s.matches))
	for _, m := range s.matches {
		all = append(all, m)
	}
	s.mu.RUnlock()

	out := make([]wire.SessionSummary, 0)
	for _, m := range all {
		m.mu.Lock()
		if keep(m) {
			out = append(out, m.Summary())
		}
		m.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
