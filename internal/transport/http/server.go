package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campaignpulse/internal/campaign"
	"campaignpulse/internal/config"
	"campaignpulse/internal/insight"
	"campaignpulse/internal/metrics"
	"campaignpulse/internal/report"
	"campaignpulse/internal/session"
)

type Server struct {
	sessions    *session.Store
	styles      *insight.Registry
	mode        campaign.Mode
	insightWait time.Duration
	maxUpload   int64
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	renderer    report.Renderer
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records upload metrics on m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithRenderer overrides the chart renderer used by report exports.
func WithRenderer(r report.Renderer) Option {
	return func(s *Server) { s.renderer = r }
}

func NewServer(store *session.Store, styles *insight.Registry, cfg config.Config, opts ...Option) *Server {
	if styles == nil {
		styles, _ = insight.NewRegistry()
	}
	s := &Server{
		sessions:    store,
		styles:      styles,
		mode:        cfg.NormalizeMode,
		insightWait: cfg.InsightWait,
		maxUpload:   cfg.MaxUploadMB << 20,
		renderer:    report.DefaultSVGRenderer(),
	}
	if s.mode == "" {
		s.mode = campaign.ModeLenient
	}
	if s.maxUpload <= 0 {
		s.maxUpload = 20 << 20
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /styles", s.handleStyles)
	mux.HandleFunc("POST /sessions", s.handleUpload)
	mux.HandleFunc("GET /sessions/{id}", s.handleSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDelete)
	mux.HandleFunc("GET /sessions/{id}/options", s.handleOptions)
	mux.HandleFunc("POST /sessions/{id}/recompute", s.handleRecompute)
	mux.HandleFunc("GET /sessions/{id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /sessions/{id}/insights", s.handleRequestInsight)
	mux.HandleFunc("GET /sessions/{id}/insights", s.handleLookupInsights)
	mux.HandleFunc("POST /sessions/{id}/summary", s.handleSummary)
	mux.HandleFunc("GET /sessions/{id}/report", s.handleReport)
	mux.HandleFunc("GET /swagger/openapi.yaml", serveSwaggerYAML)
	mux.HandleFunc("GET /swagger", serveSwaggerUI)
	mux.HandleFunc("GET /swagger/", serveSwaggerUI)
	return mux
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"styles": s.styles.List(), "default": insight.DefaultStyle})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mode := s.mode
	if v := r.URL.Query().Get("mode"); v != "" {
		parsed, err := campaign.ParseMode(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		mode = parsed
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	body, name, err := s.uploadBody(r)
	if err != nil {
		s.metrics.Upload(string(mode), "rejected", 0)
		s.writeError(w, uploadStatus(err), err.Error())
		return
	}
	defer body.Close()
	if v := r.URL.Query().Get("name"); v != "" {
		name = v
	}

	records, rep, err := campaign.Load(body, mode)
	if err != nil {
		s.metrics.Upload(string(mode), "rejected", 0)
		var schemaErr *campaign.SchemaError
		if errors.As(err, &schemaErr) {
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":   err.Error(),
				"missing": schemaErr.Missing,
			})
			return
		}
		s.writeError(w, uploadStatus(err), err.Error())
		return
	}
	s.metrics.Upload(string(mode), "ok", rep.Dropped)

	sess := s.sessions.Create(name, records, rep)
	snap, _ := sess.Snapshot()
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"session":  sess,
		"records":  sess.Records(),
		"options":  sess.Options(),
		"snapshot": snap,
	})
}

// uploadBody returns the CSV stream of a raw text/csv body or of the "file" part of a
// multipart form.
func (s *Server) uploadBody(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, "upload.csv", nil
	}
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		return nil, "", fmt.Errorf("parse multipart form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("form field \"file\": %w", err)
	}
	return file, header.Filename, nil
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	_, criteria := sess.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session":  sess,
		"records":  sess.Records(),
		"criteria": criteria,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Options())
}

type criteriaPayload struct {
	Start      string   `json:"start"`
	End        string   `json:"end"`
	Platforms  []string `json:"platforms"`
	Sentiments []string `json:"sentiments"`
	MediaTypes []string `json:"media_types"`
	Locations  []string `json:"locations"`
}

func (p criteriaPayload) criteria() (campaign.Criteria, error) {
	c := campaign.Criteria{
		Platforms:  cleanSelection(p.Platforms),
		Sentiments: cleanSelection(p.Sentiments),
		MediaTypes: cleanSelection(p.MediaTypes),
		Locations:  cleanSelection(p.Locations),
	}
	var err error
	if c.Start, err = parseDay(p.Start); err != nil {
		return campaign.Criteria{}, fmt.Errorf("start: %w", err)
	}
	if c.End, err = parseDay(p.End); err != nil {
		return campaign.Criteria{}, fmt.Errorf("end: %w", err)
	}
	if !c.Start.IsZero() && !c.End.IsZero() && c.Start.After(c.End) {
		return campaign.Criteria{}, errors.New("start is after end")
	}
	return c, nil
}

// cleanSelection trims and dedupes selection values. Matching stays case-sensitive, so
// "fb" and "FB" are distinct values.
func cleanSelection(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func parseDay(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(campaign.DayLayout, v); err == nil {
		return ts, nil
	}
	ts, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be YYYY-MM-DD or RFC3339")
	}
	return ts.UTC(), nil
}

func (s *Server) handleRecompute(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var payload criteriaPayload
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	criteria, err := payload.criteria()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := sess.Recompute(criteria)
	s.writeSnapshot(w, snap, criteria)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap, criteria := sess.Snapshot()
	s.writeSnapshot(w, snap, criteria)
}

func (s *Server) writeSnapshot(w http.ResponseWriter, snap campaign.Snapshot, criteria campaign.Criteria) {
	tips := make(map[string][]string, len(campaign.ChartKeys))
	for _, chart := range campaign.ChartKeys {
		tips[chart] = campaign.Tips(chart)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"criteria":     criteria,
		"snapshot":     snap,
		"highlights":   campaign.Highlight(snap),
		"tips":         tips,
		"fingerprints": insight.SnapshotFingerprints(snap),
	})
}

type insightPayload struct {
	Chart string `json:"chart"`
	Style string `json:"style"`
}

func (s *Server) handleRequestInsight(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var payload insightPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	task, err := sess.RequestInsight(payload.Chart, defaultStyle(payload.Style))
	if err != nil {
		s.writeInsightError(w, err)
		return
	}
	s.awaitTask(w, r, task)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var payload insightPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	task, err := sess.RequestSummary(defaultStyle(payload.Style))
	if err != nil {
		s.writeInsightError(w, err)
		return
	}
	s.awaitTask(w, r, task)
}

// awaitTask waits up to the configured insight wait (or a shorter ?wait=<duration>) and
// answers 202 with a pending status when the provider has not finished yet. The call keeps
// running and its result is served from the cache on the next request.
func (s *Server) awaitTask(w http.ResponseWriter, r *http.Request, task *insight.Task) {
	wait := s.requestWait(r)

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()

	res, err := task.Wait(ctx)
	if err != nil {
		select {
		case <-task.Done():
			s.writeInsightError(w, err)
		default:
			s.writeJSON(w, http.StatusAccepted, map[string]string{"status": string(insight.StatusPending)})
		}
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// requestWait parses ?wait as a duration or whole seconds. Values above the configured
// insight wait are clamped to it so the reply always lands inside the write timeout.
func (s *Server) requestWait(r *http.Request) time.Duration {
	wait := s.insightWait
	v := r.URL.Query().Get("wait")
	if v == "" {
		return wait
	}
	requested := time.Duration(-1)
	if parsed, err := time.ParseDuration(v); err == nil {
		requested = parsed
	} else if secs, err := strconv.Atoi(v); err == nil {
		requested = time.Duration(secs) * time.Second
	}
	if requested >= 0 && requested < wait {
		wait = requested
	}
	return wait
}

func (s *Server) handleLookupInsights(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	chart := r.URL.Query().Get("chart")
	if chart == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"insights": sess.Insights().Insights()})
		return
	}
	entry, found := sess.Insights().Lookup(chart, defaultStyle(r.URL.Query().Get("style")))
	if !found {
		s.writeError(w, http.StatusNotFound, "no insight requested for this chart and style")
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	snap, criteria := sess.Snapshot()
	bundle := report.Build(report.Input{
		Name:     sess.Name,
		Criteria: criteria,
		Snapshot: snap,
		Insights: sess.Insights().Insights(),
	}, s.renderer)

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, bundle.Text())
		return
	}
	s.writeJSON(w, http.StatusOK, bundle)
}

func defaultStyle(style string) string {
	if strings.TrimSpace(style) == "" {
		return insight.DefaultStyle
	}
	return style
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) writeInsightError(w http.ResponseWriter, err error) {
	var perr *insight.ProviderError
	switch {
	case errors.Is(err, insight.ErrUnknownChart), errors.Is(err, insight.ErrUnknownStyle):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &perr):
		s.writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":     err.Error(),
			"kind":      perr.Kind,
			"retryable": true,
		})
	default:
		log.Printf("insight request failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
