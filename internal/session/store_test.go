package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campaignpulse/internal/campaign"
	"campaignpulse/internal/insight"
	"campaignpulse/internal/llm"
)

const sampleCSV = `Date,Engagements,Platform,Sentiment,Media Type,Location
2024-01-01,10,FB,Positive,Video,Jakarta
2024-01-01,5,IG,Negative,Photo,Bandung
2024-01-02,7,FB,Positive,Video,Jakarta
`

type countingGenerator struct {
	calls int32
	seen  chan context.Context
}

func (g *countingGenerator) Generate(ctx context.Context, style insight.Style, _ []llm.Message) (string, error) {
	atomic.AddInt32(&g.calls, 1)
	if g.seen != nil {
		g.seen <- ctx
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "insight from " + style.ID, nil
}

func newTestStore(gen insight.Generator) *Store {
	return NewStore(func(ctx context.Context) *insight.Orchestrator {
		return insight.New(gen, nil, insight.WithContext(ctx))
	}, 0, nil)
}

func loadSample(t *testing.T, st *Store) *Session {
	t.Helper()
	records, report, err := campaign.Load(strings.NewReader(sampleCSV), campaign.ModeLenient)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st.Create("sample.csv", records, report)
}

func TestCreateComputesUnfilteredSnapshot(t *testing.T) {
	st := newTestStore(&countingGenerator{})
	s := loadSample(t, st)

	if s.ID == "" || s.Records() != 3 || s.Report.Kept != 3 {
		t.Fatalf("unexpected session %+v", s)
	}
	snap, criteria := s.Snapshot()
	if !criteria.IsEmpty() {
		t.Fatalf("expected empty initial criteria, got %+v", criteria)
	}
	if len(snap.PlatformEngagements) != 2 || snap.PlatformEngagements[0] != (campaign.Pair{Label: "FB", Value: 17}) {
		t.Fatalf("unexpected initial snapshot %+v", snap.PlatformEngagements)
	}
	if got, err := st.Get(s.ID); err != nil || got != s {
		t.Fatalf("Get: %v", err)
	}
}

func TestRecomputeInvalidatesInsights(t *testing.T) {
	gen := &countingGenerator{}
	st := newTestStore(gen)
	s := loadSample(t, st)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		task, err := s.RequestInsight(campaign.ChartPlatform, insight.StyleCriticalAnalyst)
		if err != nil {
			t.Fatalf("RequestInsight: %v", err)
		}
		if _, err := task.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if atomic.LoadInt32(&gen.calls) != 1 {
		t.Fatalf("expected 1 call for unchanged view, got %d", gen.calls)
	}

	s.Recompute(campaign.Criteria{Platforms: []string{"IG"}})
	entry, ok := s.Insights().Lookup(campaign.ChartPlatform, insight.StyleCriticalAnalyst)
	if !ok || !entry.Stale {
		t.Fatalf("expected stale entry after recompute, got %+v", entry)
	}

	task, _ := s.RequestInsight(campaign.ChartPlatform, insight.StyleCriticalAnalyst)
	res, err := task.Wait(ctx)
	if err != nil || res.Cached {
		t.Fatalf("expected fresh result, got %+v, %v", res, err)
	}
	if atomic.LoadInt32(&gen.calls) != 2 {
		t.Fatalf("expected 2 calls after filter change, got %d", gen.calls)
	}

	s.Recompute(campaign.Criteria{Platforms: []string{"TikTok"}})
	task, _ = s.RequestSummary(insight.StyleCriticalAnalyst)
	res, _ = task.Wait(ctx)
	if !res.NoData {
		t.Fatalf("expected no data for empty snapshot, got %+v", res)
	}
}

func TestConcurrentRecomputeKeepsTrackedViewInSync(t *testing.T) {
	st := newTestStore(&countingGenerator{})
	s := loadSample(t, st)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	criteria := []campaign.Criteria{
		{Platforms: []string{"FB"}},
		{Platforms: []string{"IG"}},
		{},
	}
	styles := []string{insight.StyleCriticalAnalyst, insight.StyleCreativeStrategist, insight.StyleQuantitativeExpert}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var tasks []*insight.Task
	for i := 0; i < 30; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Recompute(criteria[i%len(criteria)])
		}(i)
		go func(i int) {
			defer wg.Done()
			task, err := s.RequestInsight(campaign.ChartPlatform, styles[i%len(styles)])
			if err != nil {
				t.Errorf("RequestInsight: %v", err)
				return
			}
			mu.Lock()
			tasks = append(tasks, task)
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	for _, task := range tasks {
		if _, err := task.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}

	snap, _ := s.Snapshot()
	want := insight.SnapshotFingerprints(snap)[campaign.ChartPlatform]
	for _, style := range styles {
		task, err := s.RequestInsight(campaign.ChartPlatform, style)
		if err != nil {
			t.Fatalf("RequestInsight: %v", err)
		}
		res, err := task.Wait(ctx)
		if err != nil || res.Stale || res.Fingerprint != want {
			t.Fatalf("%s: request for the current view came back %+v, %v", style, res, err)
		}
		entry, ok := s.Insights().Lookup(campaign.ChartPlatform, style)
		if !ok || entry.Stale || entry.Status != insight.StatusReady {
			t.Fatalf("%s: expected ready current entry, got %+v", style, entry)
		}
	}
}

func TestDeleteCancelsOutstandingCalls(t *testing.T) {
	gen := &countingGenerator{seen: make(chan context.Context, 1)}
	st := newTestStore(gen)
	s := loadSample(t, st)

	task, err := s.RequestSummary(insight.StyleCreativeStrategist)
	if err != nil {
		t.Fatalf("RequestSummary: %v", err)
	}
	<-gen.seen

	if err := st.Delete(s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := task.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if _, err := st.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.Delete(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestPruneIdle(t *testing.T) {
	st := newTestStore(&countingGenerator{})
	old := loadSample(t, st)
	fresh := loadSample(t, st)

	old.mu.Lock()
	old.lastUsed = time.Now().Add(-3 * time.Hour)
	old.mu.Unlock()

	if removed := st.PruneIdle(time.Now().Add(-time.Hour)); removed != 1 {
		t.Fatalf("expected 1 pruned session, got %d", removed)
	}
	if _, err := st.Get(old.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("idle session still present")
	}
	if _, err := st.Get(fresh.ID); err != nil {
		t.Fatalf("fresh session pruned: %v", err)
	}
	if st.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", st.Len())
	}
}
