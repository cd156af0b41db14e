package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaignpulse/internal/campaign"
	"campaignpulse/internal/insight"
	"campaignpulse/internal/metrics"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session: not found")

// OrchestratorFactory builds the insight orchestrator of a new session. Provider calls must run
// under ctx, which is cancelled when the session ends.
type OrchestratorFactory func(ctx context.Context) *insight.Orchestrator

// Store keeps live sessions in memory.
type Store struct {
	newInsights OrchestratorFactory
	topK        int
	metrics     *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore constructs an empty store. topK <= 0 selects campaign.DefaultTopK.
func NewStore(newInsights OrchestratorFactory, topK int, m *metrics.Metrics) *Store {
	if newInsights == nil {
		newInsights = func(ctx context.Context) *insight.Orchestrator {
			return insight.New(nil, nil, insight.WithContext(ctx))
		}
	}
	if topK <= 0 {
		topK = campaign.DefaultTopK
	}
	return &Store{
		newInsights: newInsights,
		topK:        topK,
		metrics:     m,
		sessions:    make(map[string]*Session),
	}
}

// Create registers a session over records and computes its unfiltered snapshot.
func (st *Store) Create(name string, records []campaign.Record, report campaign.NormalizeReport) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		Report:    report,
		records:   records,
		options:   campaign.Options(records),
		topK:      st.topK,
		insights:  st.newInsights(ctx),
		metrics:   st.metrics,
		cancel:    cancel,
		lastUsed:  now,
	}
	s.Recompute(campaign.Criteria{})

	st.mu.Lock()
	st.sessions[s.ID] = s
	n := len(st.sessions)
	st.mu.Unlock()

	st.metrics.SetSessions(n)
	log.Printf("session %s: created from %q with %d records (%d dropped)", s.ID, name, len(records), report.Dropped)
	return s
}

// Get returns the session with id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete closes and removes the session with id.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	n := len(st.sessions)
	st.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Close()
	st.metrics.SetSessions(n)
	return nil
}

// PruneIdle closes sessions unused since before ts and returns the number removed.
func (st *Store) PruneIdle(ts time.Time) int {
	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.idleSince().Before(ts) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	n := len(st.sessions)
	st.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	if len(expired) > 0 {
		st.metrics.SetSessions(n)
	}
	return len(expired)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Close ends every session.
func (st *Store) Close() {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*Session)
	st.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	st.metrics.SetSessions(0)
}
