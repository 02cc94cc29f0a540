package portfolio

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

// Session is the explicit application state for one user: the portfolio plus
// the latest computed results. Every mutation bumps Version, which
// invalidates stored results.
type Session struct {
	mu        sync.RWMutex
	id        string
	portfolio *Portfolio
	version   int
	results   map[string]sessionResult
	createdAt time.Time
	updatedAt time.Time
}

type sessionResult struct {
	version int
	value   interface{}
}

// SessionInfo is a point-in-time snapshot of a session.
type SessionInfo struct {
	ID        string            `json:"id"`
	Version   int               `json:"version"`
	Positions []models.Position `json:"positions"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewSession starts a session with an optional initial position list.
func NewSession(positions ...models.Position) (*Session, error) {
	p, err := New(positions...)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Session{
		id:        uuid.New().String(),
		portfolio: p,
		results:   make(map[string]sessionResult),
		createdAt: now,
		updatedAt: now,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns the current state.
func (s *Session) Snapshot() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionInfo{
		ID:        s.id,
		Version:   s.version,
		Positions: s.portfolio.Positions(),
		CreatedAt: s.createdAt,
		UpdatedAt: s.updatedAt,
	}
}

// Positions returns a copy of the positions and the version they belong to.
func (s *Session) Positions() ([]models.Position, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.portfolio.Positions(), s.version
}

// Add appends a position.
func (s *Session) Add(pos models.Position) error {
	return s.mutate(func(p *Portfolio) error { return p.Add(pos) })
}

// Remove deletes the position at index.
func (s *Session) Remove(index int) error {
	return s.mutate(func(p *Portfolio) error { return p.Remove(index) })
}

// ReplaceAll swaps in a new position list, as on CSV or link import.
func (s *Session) ReplaceAll(positions []models.Position) error {
	next, err := New(positions...)
	if err != nil {
		return err
	}
	return s.mutate(func(p *Portfolio) error {
		p.positions = next.positions
		return nil
	})
}

func (s *Session) mutate(fn func(*Portfolio) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(s.portfolio); err != nil {
		return err
	}
	s.version++
	s.updatedAt = time.Now().UTC()
	s.results = make(map[string]sessionResult)
	return nil
}

// StoreResult records a result computed from the given version. Results
// computed from an older version are discarded and false is returned.
func (s *Session) StoreResult(product string, version int, value interface{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if version != s.version {
		return false
	}
	s.results[product] = sessionResult{version: version, value: value}
	return true
}

// Result returns the stored result for product if it is current.
func (s *Session) Result(product string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[product]
	if !ok || r.version != s.version {
		return nil, false
	}
	return r.value, true
}

// SessionStore holds live sessions in memory.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create starts and registers a new session.
func (st *SessionStore) Create(positions ...models.Position) (*Session, error) {
	s, err := NewSession(positions...)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	st.sessions[s.id] = s
	st.mu.Unlock()
	return s, nil
}

// Get looks up a session.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, common.NewError(common.KindDataUnavailable, "portfolio.SessionStore", "session %s not found", id)
	}
	return s, nil
}

// End discards a session. Ending an unknown session is a no-op.
func (st *SessionStore) End(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Expire ends sessions idle since before cutoff and returns their IDs.
func (st *SessionStore) Expire(cutoff time.Time) []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	var ended []string
	for id, s := range st.sessions {
		s.mu.RLock()
		idle := s.updatedAt.Before(cutoff)
		s.mu.RUnlock()
		if idle {
			delete(st.sessions, id)
			ended = append(ended, id)
		}
	}
	sort.Strings(ended)
	return ended
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
