package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"campaignpulse/internal/config"
	"campaignpulse/internal/insight"
	"campaignpulse/internal/llm"
	"campaignpulse/internal/metrics"
	"campaignpulse/internal/session"
	transporthttp "campaignpulse/internal/transport/http"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	styles, err := insight.LoadStyles(cfg.StylesPath)
	if err != nil {
		log.Fatalf("load styles: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	generator := insight.ChatGenerator{
		Client:      newChatClient(cfg),
		Model:       cfg.LLMModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
	}
	if cfg.LLMAPIKey == "" {
		log.Printf("no LLM API key configured: insight requests will fail with an auth error")
	} else {
		log.Printf("insights enabled via %s with model %s", cfg.LLMProvider, cfg.LLMModel)
	}

	prompts := insight.Prompter{Language: cfg.Language}
	store := session.NewStore(func(ctx context.Context) *insight.Orchestrator {
		return insight.New(generator, styles,
			insight.WithContext(ctx),
			insight.WithMetrics(m),
			insight.WithPrompter(prompts),
			insight.WithCallTimeout(cfg.LLMTimeout),
		)
	}, cfg.TopK, m)

	server := transporthttp.NewServer(store, styles, cfg, transporthttp.WithMetrics(m, reg))

	writeTimeout := cfg.InsightWait + 15*time.Second
	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      withLogging(withCORS(server.Routes())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	pruneCtx, stopPruning := context.WithCancel(context.Background())
	go pruneSessions(pruneCtx, store, cfg.SessionTTL)

	go func() {
		log.Printf("campaign API listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("signal received: %s, shutting down", sig)

	stopPruning()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	store.Close()
}

func newChatClient(cfg config.Config) llm.ChatClient {
	if cfg.LLMProvider == config.ProviderGemini {
		return llm.NewGeminiClient(cfg.LLMAPIKey,
			llm.WithGeminiEndpoint(cfg.LLMBaseURL),
			llm.WithGeminiHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}),
			llm.WithGeminiRetry(cfg.LLMMaxRetries+1, 500*time.Millisecond, 5*time.Second),
		)
	}
	return llm.NewClient(cfg.LLMAPIKey,
		llm.WithBaseURL(cfg.LLMBaseURL),
		llm.WithHTTPClient(&http.Client{Timeout: cfg.LLMTimeout}),
		llm.WithRetry(cfg.LLMMaxRetries+1, 500*time.Millisecond, 5*time.Second),
	)
}

// pruneSessions closes sessions idle for longer than ttl.
func pruneSessions(ctx context.Context, store *session.Store, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.PruneIdle(time.Now().Add(-ttl)); n > 0 {
				log.Printf("pruned %d idle sessions", n)
			}
		}
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		if r.Method == http.MethodOptions {
			log.Printf("[CORS preflight] %s %s %s", r.Method, r.URL.Path, duration)
		} else {
			log.Printf("%s %s %s request_id=%s", r.Method, r.URL.Path, duration, requestID)
		}
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
