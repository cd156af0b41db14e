package insight

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"campaignpulse/internal/campaign"
	"campaignpulse/internal/llm"
	"campaignpulse/internal/metrics"
)

// ErrUnknownChart is returned for chart keys that name no snapshot view.
var ErrUnknownChart = errors.New("insight: unknown chart")

// Status of a cache entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Entry is the latest cache state for one (chart, style) pair.
type Entry struct {
	Chart       string    `json:"chart"`
	Style       string    `json:"style"`
	Fingerprint string    `json:"fingerprint"`
	Status      Status    `json:"status"`
	Text        string    `json:"text,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	Error       string    `json:"error,omitempty"`
	// Stale is set when the entry's fingerprint no longer matches the tracked view.
	Stale bool `json:"stale"`
}

// Result is the outcome of an insight request.
type Result struct {
	Chart       string    `json:"chart"`
	Style       string    `json:"style"`
	Fingerprint string    `json:"fingerprint"`
	Text        string    `json:"text,omitempty"`
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	Cached      bool      `json:"cached"`
	NoData      bool      `json:"no_data"`
	// Stale marks text for a view that is no longer the tracked one, either superseded while
	// the call was outstanding or already old when requested. Such text is never cached.
	Stale bool `json:"stale"`
	// Previous is the last ready text for an older fingerprint, if any.
	Previous *Entry `json:"previous,omitempty"`
}

// Task is an awaitable insight request.
type Task struct {
	done chan struct{}
	res  Result
	err  error
}

func newTask() *Task { return &Task{done: make(chan struct{})} }

func completedTask(res Result) *Task {
	t := newTask()
	t.finish(res, nil)
	return t
}

func (t *Task) finish(res Result, err error) {
	t.res, t.err = res, err
	close(t.done)
}

// Done is closed once the result is available.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task completes or ctx is done. A completed task always returns its
// result, even with an expired ctx. Cancelling ctx does not cancel the provider call.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.res, t.err
	default:
	}
	select {
	case <-t.done:
		return t.res, t.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

type slot struct {
	chart string
	style string
}

type triple struct {
	slot
	fingerprint string
}

// Orchestrator memoizes generated text per (chart, style, fingerprint) and keeps at most one
// provider call in flight per key. It is safe for concurrent use.
type Orchestrator struct {
	gen     Generator
	styles  *Registry
	prompts Prompter
	metrics *metrics.Metrics
	base    context.Context
	timeout time.Duration

	mu        sync.Mutex
	entries   map[slot]*Entry
	lastReady map[slot]Entry
	current   map[string]string
	inflight  map[triple]string
	seq       uint64
	group     singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records cache and provider activity.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPrompter sets the prompt builder, mainly to pick the answer language.
func WithPrompter(p Prompter) Option {
	return func(o *Orchestrator) { o.prompts = p }
}

// WithContext sets the context provider calls run under. Cancelling it aborts every call.
func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) {
		if ctx != nil {
			o.base = ctx
		}
	}
}

// WithCallTimeout bounds a single provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// New creates an orchestrator. A nil registry means the built-in styles; a nil generator fails
// every call with an auth-class ProviderError.
func New(gen Generator, styles *Registry, opts ...Option) *Orchestrator {
	if gen == nil {
		gen = ChatGenerator{}
	}
	if styles == nil {
		styles, _ = NewRegistry()
	}
	o := &Orchestrator{
		gen:       gen,
		styles:    styles,
		base:      context.Background(),
		entries:   make(map[slot]*Entry),
		lastReady: make(map[slot]Entry),
		current:   make(map[string]string),
		inflight:  make(map[triple]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Styles exposes the registry the orchestrator validates styles against.
func (o *Orchestrator) Styles() *Registry { return o.styles }

// Track records the snapshot as the current aggregation. Calls still outstanding for other
// fingerprints are discarded when they complete.
func (o *Orchestrator) Track(s campaign.Snapshot) {
	fps := SnapshotFingerprints(s)
	o.mu.Lock()
	defer o.mu.Unlock()
	for chart, fp := range fps {
		o.current[chart] = fp
	}
}

// RequestInsight returns the cached insight for the chart view or starts generating one.
func (o *Orchestrator) RequestInsight(chart, style string, view []campaign.Pair) (*Task, error) {
	if !knownChart(chart) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChart, chart)
	}
	st, err := o.styles.Get(style)
	if err != nil {
		return nil, err
	}
	if len(view) == 0 {
		o.metrics.CacheLookup(metrics.CacheNoData)
		return completedTask(Result{Chart: chart, Style: st.ID, NoData: true}), nil
	}
	return o.request(chart, st, Fingerprint(view), func() []llm.Message {
		return o.prompts.ChartMessages(chart, st, view)
	}), nil
}

// RequestSummary does the same for the campaign summary, fingerprinted over the whole snapshot.
func (o *Orchestrator) RequestSummary(style string, s campaign.Snapshot) (*Task, error) {
	st, err := o.styles.Get(style)
	if err != nil {
		return nil, err
	}
	if s.IsEmpty() {
		o.metrics.CacheLookup(metrics.CacheNoData)
		return completedTask(Result{Chart: SummaryKey, Style: st.ID, NoData: true}), nil
	}
	return o.request(SummaryKey, st, Fingerprint(s), func() []llm.Message {
		return o.prompts.SummaryMessages(st, campaign.Highlight(s))
	}), nil
}

func (o *Orchestrator) request(chart string, st Style, fp string, prompt func() []llm.Message) *Task {
	key := slot{chart: chart, style: st.ID}
	t := triple{slot: key, fingerprint: fp}

	o.mu.Lock()
	defer o.mu.Unlock()

	// Track owns the current fingerprint once a chart is tracked. A request for any other
	// view still runs, but its result is reported stale and never cached.
	if _, tracked := o.current[chart]; !tracked {
		o.current[chart] = fp
	}
	entry := o.entries[key]
	if entry != nil && entry.Fingerprint == fp && entry.Status == StatusReady {
		o.metrics.CacheLookup(metrics.CacheHit)
		return completedTask(Result{
			Chart:       chart,
			Style:       st.ID,
			Fingerprint: fp,
			Text:        entry.Text,
			GeneratedAt: entry.GeneratedAt,
			Cached:      true,
			Stale:       o.current[chart] != fp,
		})
	}

	var previous *Entry
	if last, ok := o.lastReady[key]; ok && last.Fingerprint != fp {
		last.Stale = true
		previous = &last
	}

	flight, joined := o.inflight[t]
	if joined {
		o.metrics.CacheLookup(metrics.CacheJoined)
	} else {
		o.metrics.CacheLookup(metrics.CacheMiss)
		o.seq++
		flight = fmt.Sprintf("%s/%s/%s#%d", chart, st.ID, fp, o.seq)
		o.inflight[t] = flight
		log.Printf("insight: generating %s/%s (fingerprint %s)", chart, st.ID, fp)
	}
	if o.current[chart] == fp && (entry == nil || entry.Fingerprint != fp || entry.Status != StatusPending) {
		o.entries[key] = &Entry{Chart: chart, Style: st.ID, Fingerprint: fp, Status: StatusPending}
	}

	messages := prompt()
	// The flight is removed from inflight under o.mu before singleflight forgets it, so a
	// joiner holding o.mu always attaches to the running call.
	ch := o.group.DoChan(flight, func() (any, error) {
		res, err := o.generate(t, st, messages)
		return res, err
	})

	task := newTask()
	go func() {
		r := <-ch
		if r.Err != nil {
			task.finish(Result{}, r.Err)
			return
		}
		res := r.Val.(Result)
		res.Previous = previous
		task.finish(res, nil)
	}()
	return task
}

func (o *Orchestrator) generate(t triple, st Style, messages []llm.Message) (Result, error) {
	ctx := o.base
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	text, genErr := o.gen.Generate(ctx, st, messages)
	took := time.Since(start)
	if genErr != nil {
		genErr = classify(genErr)
	}

	status := "ok"
	var perr *ProviderError
	if errors.As(genErr, &perr) {
		status = perr.Kind
	}
	o.metrics.ProviderCall(status, took)

	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, t)

	res := Result{Chart: t.chart, Style: t.style, Fingerprint: t.fingerprint, Text: text}

	if cur := o.current[t.chart]; cur != t.fingerprint {
		o.metrics.Discarded()
		log.Printf("insight: discarding %s/%s result for superseded fingerprint %s", t.chart, t.style, t.fingerprint)
		if e := o.entries[t.slot]; e != nil && e.Fingerprint == t.fingerprint {
			delete(o.entries, t.slot)
		}
		if genErr != nil {
			return Result{}, genErr
		}
		res.Stale = true
		return res, nil
	}

	if genErr != nil {
		log.Printf("insight: %s/%s failed after %s: %v", t.chart, t.style, took.Round(time.Millisecond), genErr)
		o.entries[t.slot] = &Entry{
			Chart:       t.chart,
			Style:       t.style,
			Fingerprint: t.fingerprint,
			Status:      StatusFailed,
			Error:       genErr.Error(),
		}
		return Result{}, genErr
	}

	res.GeneratedAt = time.Now().UTC()
	entry := Entry{
		Chart:       t.chart,
		Style:       t.style,
		Fingerprint: t.fingerprint,
		Status:      StatusReady,
		Text:        text,
		GeneratedAt: res.GeneratedAt,
	}
	o.entries[t.slot] = &entry
	o.lastReady[t.slot] = entry
	log.Printf("insight: %s/%s ready in %s", t.chart, t.style, took.Round(time.Millisecond))
	return res, nil
}

// Lookup returns the latest entry for (chart, style) without triggering generation.
func (o *Orchestrator) Lookup(chart, style string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[slot{chart: chart, style: style}]
	if !ok {
		return Entry{}, false
	}
	out := *e
	if cur, tracked := o.current[chart]; tracked && cur != out.Fingerprint {
		out.Stale = true
	}
	return out, true
}

// Insights returns chart -> style -> text for every ready entry matching the current view.
// The summary is included under SummaryKey.
func (o *Orchestrator) Insights() map[string]map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]map[string]string)
	for key, e := range o.entries {
		if e.Status != StatusReady || o.current[key.chart] != e.Fingerprint {
			continue
		}
		if out[key.chart] == nil {
			out[key.chart] = make(map[string]string)
		}
		out[key.chart][key.style] = e.Text
	}
	return out
}

func knownChart(chart string) bool {
	for _, c := range campaign.ChartKeys {
		if c == chart {
			return true
		}
	}
	return false
}
