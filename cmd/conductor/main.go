// Package main is the entry point for the voice-assistant conductor
// service: a WebSocket endpoint that reduces a real-time dialogue protocol
// over a pluggable LLM provider.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/voiceconductor/internal/conductor"
	"github.com/haasonsaas/voiceconductor/internal/config"
	"github.com/haasonsaas/voiceconductor/internal/observability"
	"github.com/haasonsaas/voiceconductor/internal/provider"
	"github.com/haasonsaas/voiceconductor/internal/ratelimit"
	"github.com/haasonsaas/voiceconductor/internal/session"
	"github.com/haasonsaas/voiceconductor/internal/transport"
)

// Build information, populated by ldflags during release builds.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.Load(os.Getenv("VOICECONDUCTOR_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slogger := logger.Slog()
	slogger.Info("starting voiceconductor", "version", version, "commit", commit, "provider", cfg.Provider.Name)

	metrics := observability.NewMetrics()

	modelProvider, err := buildProvider(cfg.Provider)
	if err != nil {
		slogger.Error("build provider failed", "err", err)
		os.Exit(1)
	}

	limiterConfig := ratelimit.Config{N: cfg.Limiter.PerMinute, Window: time.Minute, Enabled: true}
	store := session.NewStore(cfg.Session.MaxTurns, limiterConfig, cfg.Session.PendingToolCallTTL)

	cond := conductor.New(store, modelProvider, clientTools(), slogger, metrics)
	wsServer := transport.NewServer(cond, store, cfg.Wire.MaxEventBytes, slogger, metrics)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", metrics.InstrumentHTTP("/healthz", http.HandlerFunc(handleHealthz)))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the /ws handler owns its own connection lifetime
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		slogger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("server failed", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slogger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slogger.Error("graceful shutdown failed", "err", err)
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// buildProvider selects the live or placeholder model provider per spec
// §4.5 / §6's MODEL_PROVIDER configuration key.
func buildProvider(cfg config.ProviderConfig) (provider.ModelProvider, error) {
	opts := provider.Options{
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		MaxTokens:      cfg.MaxTokens,
		MaxRetries:     cfg.MaxRetries,
		RequestTimeout: cfg.RequestTimeout,
		PartialDelay:   cfg.PartialDelay,
	}

	switch cfg.Name {
	case "anthropic":
		return provider.NewAnthropicProvider(opts)
	case "openai":
		return provider.NewOpenAIProvider(opts)
	case "placeholder", "":
		return provider.NewPlaceholderProvider(""), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Name)
	}
}

// clientTools is the tool catalog offered to the model provider: the
// domain tools the client implements that the model may request (here,
// agent.spawn). The conductor's own bookkeeping
// calls (convo.setState/appendMessage, tts.speak) are not part of this
// catalog — they are emitted directly by the conductor, never requested
// by the model.
func clientTools() []provider.ToolSpec {
	return []provider.ToolSpec{
		{
			Name:        "agent.spawn",
			Description: "Spawn a background coding agent to carry out a task and report back asynchronously.",
			Schema: []byte(`{
				"type": "object",
				"properties": {
					"prompt": {"type": "string"}
				},
				"required": ["prompt"]
			}`),
		},
	}
}
