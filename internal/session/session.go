package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"campaignpulse/internal/campaign"
	"campaignpulse/internal/insight"
	"campaignpulse/internal/metrics"
)

// Session owns one immutable record set together with its filter state and insight cache.
type Session struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	CreatedAt time.Time                `json:"created_at"`
	Report    campaign.NormalizeReport `json:"report"`

	records  []campaign.Record
	options  campaign.FilterOptions
	topK     int
	insights *insight.Orchestrator
	metrics  *metrics.Metrics
	cancel   context.CancelFunc

	mu       sync.RWMutex
	criteria campaign.Criteria
	snapshot campaign.Snapshot
	lastUsed time.Time
}

// Records returns the number of normalized records held by the session.
func (s *Session) Records() int { return len(s.records) }

// Options returns the distinct filter values and date bounds of the record set.
func (s *Session) Options() campaign.FilterOptions { return s.options }

// Insights exposes the session's insight orchestrator.
func (s *Session) Insights() *insight.Orchestrator { return s.insights }

// Recompute filters and aggregates the record set for criteria and makes the result current.
// Outstanding insight calls for superseded views are left running and discarded on completion.
func (s *Session) Recompute(criteria campaign.Criteria) campaign.Snapshot {
	start := time.Now()
	snap := campaign.Compute(s.records, criteria, campaign.WithTopK(s.topK))
	s.metrics.ObserveRecompute(time.Since(start))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.criteria = criteria
	s.snapshot = snap
	s.lastUsed = time.Now()
	s.insights.Track(snap)
	return snap
}

// Snapshot returns the current snapshot and the criteria that produced it.
func (s *Session) Snapshot() (campaign.Snapshot, campaign.Criteria) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return s.snapshot, s.criteria
}

// RequestInsight asks for an insight on the current view of chart. s.mu is held across the
// request; Recompute tracks new views under the same lock.
func (s *Session) RequestInsight(chart, style string) (*insight.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	view, ok := s.snapshot.View(chart)
	if !ok {
		return nil, fmt.Errorf("%w: %q", insight.ErrUnknownChart, chart)
	}
	return s.insights.RequestInsight(chart, style, view)
}

// RequestSummary asks for the campaign summary of the current snapshot.
func (s *Session) RequestSummary(style string) (*insight.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsed = time.Now()
	return s.insights.RequestSummary(style, s.snapshot)
}

// Close aborts outstanding provider calls.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	log.Printf("session %s: closed", s.ID)
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUsed
}
