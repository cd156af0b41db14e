package insight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"campaignpulse/internal/campaign"
	"campaignpulse/internal/llm"
)

type fakeGenerator struct {
	calls   int32
	release chan struct{}
	mu      sync.Mutex
	errs    []error
	texts   []string
}

func (f *fakeGenerator) Generate(ctx context.Context, style Style, messages []llm.Message) (string, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if len(f.texts) > 0 {
		text := f.texts[0]
		f.texts = f.texts[1:]
		return text, nil
	}
	return style.ID + " insight #" + string(rune('0'+n)), nil
}

func (f *fakeGenerator) count() int { return int(atomic.LoadInt32(&f.calls)) }

func wait(t *testing.T, task *Task) (Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return task.Wait(ctx)
}

var platformView = []campaign.Pair{{Label: "FB", Value: 17}, {Label: "IG", Value: 5}}

func TestRequestInsightCachesByFingerprint(t *testing.T) {
	gen := &fakeGenerator{}
	o := New(gen, nil)

	first, err := o.RequestInsight(campaign.ChartPlatform, StyleCriticalAnalyst, platformView)
	if err != nil {
		t.Fatalf("RequestInsight: %v", err)
	}
	res, err := wait(t, first)
	if err != nil || res.Cached || res.Text == "" {
		t.Fatalf("unexpected first result %+v, %v", res, err)
	}

	second, _ := o.RequestInsight(campaign.ChartPlatform, StyleCriticalAnalyst, platformView)
	cached, err := wait(t, second)
	if err != nil || !cached.Cached || cached.Text != res.Text {
		t.Fatalf("expected cache hit, got %+v, %v", cached, err)
	}
	if gen.count() != 1 {
		t.Fatalf("expected one provider call, got %d", gen.count())
	}

	changed := []campaign.Pair{{Label: "FB", Value: 10}}
	o.Track(campaign.Snapshot{PlatformEngagements: changed})
	third, _ := o.RequestInsight(campaign.ChartPlatform, StyleCriticalAnalyst, changed)
	fresh, err := wait(t, third)
	if err != nil || fresh.Cached || fresh.Stale {
		t.Fatalf("expected fresh generation after view change, got %+v, %v", fresh, err)
	}
	if gen.count() != 2 {
		t.Fatalf("expected second provider call, got %d", gen.count())
	}
	if fresh.Previous == nil || !fresh.Previous.Stale || fresh.Previous.Text != res.Text {
		t.Fatalf("expected previous stale text, got %+v", fresh.Previous)
	}

	// A different style is a different key.
	other, _ := o.RequestInsight(campaign.ChartPlatform, StyleQuantitativeExpert, changed)
	if _, err := wait(t, other); err != nil {
		t.Fatalf("other style: %v", err)
	}
	if gen.count() != 3 {
		t.Fatalf("expected third provider call, got %d", gen.count())
	}
}

func TestConcurrentRequestsShareOneCall(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	o := New(gen, nil)

	const n = 8
	tasks := make([]*Task, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task, err := o.RequestInsight(campaign.ChartPlatform, StyleCreativeStrategist, platformView)
			if err != nil {
				t.Errorf("RequestInsight: %v", err)
				return
			}
			tasks[i] = task
		}(i)
	}
	wg.Wait()

	entry, ok := o.Lookup(campaign.ChartPlatform, StyleCreativeStrategist)
	if !ok || entry.Status != StatusPending {
		t.Fatalf("expected pending entry, got %+v", entry)
	}

	close(gen.release)
	var text string
	for i, task := range tasks {
		res, err := wait(t, task)
		if err != nil {
			t.Fatalf("task %d: %v", i, err)
		}
		if text == "" {
			text = res.Text
		}
		if res.Text != text {
			t.Fatalf("task %d got %q, want shared %q", i, res.Text, text)
		}
	}
	if gen.count() != 1 {
		t.Fatalf("expected exactly one provider call, got %d", gen.count())
	}

	entry, _ = o.Lookup(campaign.ChartPlatform, StyleCreativeStrategist)
	if entry.Status != StatusReady || entry.GeneratedAt.IsZero() {
		t.Fatalf("expected ready entry, got %+v", entry)
	}
}

func TestFailureIsRetryable(t *testing.T) {
	gen := &fakeGenerator{errs: []error{&llm.APIError{StatusCode: 401, Body: "bad key"}}}
	o := New(gen, nil)

	task, _ := o.RequestInsight(campaign.ChartSentiment, StyleCriticalAnalyst, platformView)
	_, err := wait(t, task)
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindAuth {
		t.Fatalf("expected auth ProviderError, got %v", err)
	}
	entry, _ := o.Lookup(campaign.ChartSentiment, StyleCriticalAnalyst)
	if entry.Status != StatusFailed || entry.Error == "" {
		t.Fatalf("expected failed entry, got %+v", entry)
	}

	task, _ = o.RequestInsight(campaign.ChartSentiment, StyleCriticalAnalyst, platformView)
	res, err := wait(t, task)
	if err != nil || res.Text == "" {
		t.Fatalf("retry should succeed, got %+v, %v", res, err)
	}
	if gen.count() != 2 {
		t.Fatalf("expected two provider calls, got %d", gen.count())
	}
}

func TestEmptyResponseIsProviderError(t *testing.T) {
	o := New(ChatGenerator{Client: emptyClient{}, Model: "m"}, nil)
	task, _ := o.RequestInsight(campaign.ChartSentiment, StyleCriticalAnalyst, platformView)
	_, err := wait(t, task)
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindEmpty {
		t.Fatalf("expected empty ProviderError, got %v", err)
	}
}

type emptyClient struct{}

func (emptyClient) ChatCompletion(context.Context, llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error) {
	return &llm.ChatCompletionResponse{}, nil
}

func TestMissingKeyIsAuthError(t *testing.T) {
	o := New(ChatGenerator{Client: llm.NewClient(""), Model: "m"}, nil)
	task, _ := o.RequestSummary(StyleCriticalAnalyst, campaign.Aggregate([]campaign.Record{{Engagements: 1, Platform: "FB"}}))
	_, err := wait(t, task)
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != KindAuth || !errors.Is(err, llm.ErrMissingAPIKey) {
		t.Fatalf("expected auth ProviderError wrapping ErrMissingAPIKey, got %v", err)
	}
}

func TestStaleResultIsDiscarded(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{}), texts: []string{"old view text"}}
	o := New(gen, nil)

	oldSnap := campaign.Snapshot{PlatformEngagements: platformView}
	o.Track(oldSnap)
	task, _ := o.RequestInsight(campaign.ChartPlatform, StyleCriticalAnalyst, oldSnap.PlatformEngagements)

	o.Track(campaign.Snapshot{PlatformEngagements: []campaign.Pair{{Label: "IG", Value: 5}}})
	close(gen.release)

	res, err := wait(t, task)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !res.Stale || res.Text != "old view text" {
		t.Fatalf("expected stale result, got %+v", res)
	}
	if _, ok := o.Lookup(campaign.ChartPlatform, StyleCriticalAnalyst); ok {
		t.Fatalf("stale result must not be promoted to the cache")
	}
	if len(o.Insights()) != 0 {
		t.Fatalf("expected no current insights, got %v", o.Insights())
	}
}

func TestRequestForSupersededViewKeepsTrackedView(t *testing.T) {
	gen := &fakeGenerator{release: make(chan struct{})}
	o := New(gen, nil)

	o.Track(campaign.Snapshot{PlatformEngagements: platformView})
	current := []campaign.Pair{{Label: "IG", Value: 5}}
	o.Track(campaign.Snapshot{PlatformEngagements: current})

	fresh, _ := o.RequestInsight(campaign.ChartPlatform, StyleCriticalAnalyst, current)
	late, _ := o.RequestInsight(campaign.ChartPlatform, StyleCreativeStrategist, platformView)
	close(gen.release)

	res, err := wait(t, fresh)
	if err != nil || res.Stale {
		t.Fatalf("insight for the tracked view was discarded: %+v, %v", res, err)
	}
	old, err := wait(t, late)
	if err != nil || !old.Stale {
		t.Fatalf("expected stale result for the superseded view, got %+v, %v", old, err)
	}
	if _, ok := o.Lookup(campaign.ChartPlatform, StyleCreativeStrategist); ok {
		t.Fatalf("superseded view must not be cached")
	}
	entry, ok := o.Lookup(campaign.ChartPlatform, StyleCriticalAnalyst)
	if !ok || entry.Status != StatusReady || entry.Stale {
		t.Fatalf("expected ready current entry, got %+v", entry)
	}
}

func TestWaitOnCompletedTaskIgnoresExpiredContext(t *testing.T) {
	o := New(&fakeGenerator{}, nil)
	task, _ := o.RequestInsight(campaign.ChartPlatform, StyleCriticalAnalyst, platformView)
	if _, err := wait(t, task); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	for i := 0; i < 200; i++ {
		hit, _ := o.RequestInsight(campaign.ChartPlatform, StyleCriticalAnalyst, platformView)
		res, err := hit.Wait(ctx)
		if err != nil || !res.Cached {
			t.Fatalf("cache hit %d returned %+v, %v", i, res, err)
		}
	}

	empty, _ := o.RequestInsight(campaign.ChartTrend, StyleCriticalAnalyst, nil)
	if res, err := empty.Wait(ctx); err != nil || !res.NoData {
		t.Fatalf("expected no data result, got %+v, %v", res, err)
	}
}

func TestEmptyViewReportsNoData(t *testing.T) {
	gen := &fakeGenerator{}
	o := New(gen, nil)

	task, err := o.RequestInsight(campaign.ChartTrend, StyleCriticalAnalyst, []campaign.Pair{})
	if err != nil {
		t.Fatalf("RequestInsight: %v", err)
	}
	res, _ := wait(t, task)
	if !res.NoData {
		t.Fatalf("expected no data result, got %+v", res)
	}

	task, _ = o.RequestSummary(StyleCriticalAnalyst, campaign.Aggregate(nil))
	res, _ = wait(t, task)
	if !res.NoData || res.Chart != SummaryKey {
		t.Fatalf("expected no data summary, got %+v", res)
	}
	if gen.count() != 0 {
		t.Fatalf("provider must not be called for empty views, got %d calls", gen.count())
	}
}

func TestUnknownChartAndStyle(t *testing.T) {
	o := New(&fakeGenerator{}, nil)
	if _, err := o.RequestInsight("pie", StyleCriticalAnalyst, platformView); !errors.Is(err, ErrUnknownChart) {
		t.Fatalf("expected ErrUnknownChart, got %v", err)
	}
	if _, err := o.RequestInsight(campaign.ChartPlatform, "poet", platformView); !errors.Is(err, ErrUnknownStyle) {
		t.Fatalf("expected ErrUnknownStyle, got %v", err)
	}
}

func TestSummaryUsesHighlights(t *testing.T) {
	var captured []llm.Message
	gen := generatorFunc(func(_ context.Context, _ Style, messages []llm.Message) (string, error) {
		captured = messages
		return "summary", nil
	})
	o := New(gen, nil, WithPrompter(Prompter{Language: "Indonesian"}))

	snap := campaign.Aggregate([]campaign.Record{
		{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Engagements: 10, Platform: "FB", Sentiment: "Positive", MediaType: "Video", Location: "Jakarta"},
	})
	task, _ := o.RequestSummary(StyleQuantitativeExpert, snap)
	res, err := wait(t, task)
	if err != nil || res.Text != "summary" {
		t.Fatalf("unexpected summary %+v, %v", res, err)
	}
	if len(captured) != 2 || captured[0].Role != "system" {
		t.Fatalf("unexpected messages %+v", captured)
	}
	prompt := captured[1].Content
	for _, want := range []string{"Platform with the highest engagement: FB", "Peak engagement date: 2024-01-01", "Answer in Indonesian"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if got := o.Insights()[SummaryKey][StyleQuantitativeExpert]; got != "summary" {
		t.Fatalf("summary missing from insights: %v", o.Insights())
	}
}

type generatorFunc func(ctx context.Context, style Style, messages []llm.Message) (string, error)

func (f generatorFunc) Generate(ctx context.Context, style Style, messages []llm.Message) (string, error) {
	return f(ctx, style, messages)
}

func TestLoadStyles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "styles.yaml")
	content := `styles:
  - id: brand_guardian
    label: Brand guardian
    persona: You protect brand consistency.
    temperature: 0.2
  - id: critical_analyst
    persona: Overridden persona.
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write styles: %v", err)
	}

	reg, err := LoadStyles(path)
	if err != nil {
		t.Fatalf("LoadStyles: %v", err)
	}
	custom, err := reg.Get("brand_guardian")
	if err != nil || custom.Temperature != 0.2 || custom.Label != "Brand guardian" {
		t.Fatalf("unexpected custom style %+v, %v", custom, err)
	}
	overridden, _ := reg.Get(StyleCriticalAnalyst)
	if overridden.Persona != "Overridden persona." || overridden.Label != StyleCriticalAnalyst {
		t.Fatalf("unexpected override %+v", overridden)
	}
	if len(reg.List()) != 4 {
		t.Fatalf("expected 4 styles, got %d", len(reg.List()))
	}

	if _, err := NewRegistry(Style{ID: "x"}); err == nil {
		t.Fatalf("expected error for style without persona")
	}
}

func TestFingerprintIsContentSensitive(t *testing.T) {
	a := Fingerprint([]campaign.Pair{{Label: "FB", Value: 17}})
	b := Fingerprint([]campaign.Pair{{Label: "FB", Value: 17}})
	c := Fingerprint([]campaign.Pair{{Label: "FB", Value: 18}})
	if a != b || a == c || len(a) != 16 {
		t.Fatalf("unexpected fingerprints %s %s %s", a, b, c)
	}
}
