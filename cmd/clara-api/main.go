package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	httpadapter "github.com/PabloGalante/clara-companion/internal/adapters/http"
	"github.com/PabloGalante/clara-companion/internal/adapters/llm"
	"github.com/PabloGalante/clara-companion/internal/adapters/relay"
	firestorestore "github.com/PabloGalante/clara-companion/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/clara-companion/internal/adapters/storage/memory"
	redisstore "github.com/PabloGalante/clara-companion/internal/adapters/storage/redis"
	"github.com/PabloGalante/clara-companion/internal/app/alert"
	"github.com/PabloGalante/clara-companion/internal/app/assistant"
	"github.com/PabloGalante/clara-companion/internal/app/messaging"
	"github.com/PabloGalante/clara-companion/internal/app/mode"
	"github.com/PabloGalante/clara-companion/internal/app/summary"
	"github.com/PabloGalante/clara-companion/internal/config"
	"github.com/PabloGalante/clara-companion/internal/domain"
	"github.com/PabloGalante/clara-companion/internal/observability"
)

// stores groups the persistence ports. Redis and Firestore implement all of
// them with one client.
type stores struct {
	messages  domain.MessageStore
	mode      domain.ModeStore
	alerts    domain.AlertStore
	summaries domain.SummaryStore
	closer    io.Closer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := observability.Init(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now().UTC()
	metrics := observability.NewMetrics()

	st, err := openStores(ctx, cfg, start)
	if err != nil {
		log.Error("error initializing storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		log.Error("error initializing llm client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}

	relayClient := relay.NewClient(cfg.Relay.BaseURL, cfg.Relay.APIKey, cfg.Relay.Timeout)
	if cfg.Relay.BaseURL == "" {
		log.Warn("CLARA_RELAY_URL is not set; sending and mode forwarding will fail")
	}

	var summarizer domain.Summarizer = relayClient
	if cfg.Summarizer == "llm" {
		if completer == nil {
			log.Warn("llm summarizer selected without a provider key; summaries will fail")
		}
		summarizer = llm.NewSummarizer(completer)
	}
	log.Info("summarizer selected", "summarizer", cfg.Summarizer)

	modeSvc := mode.NewService(mode.Deps{
		Store:      st.mode,
		Messages:   st.messages,
		Summaries:  st.summaries,
		Forwarder:  relayClient,
		Summarizer: summarizer,
		Metrics:    metrics,
		Timeout:    cfg.SideEffectTimeout,
	})

	handler := httpadapter.NewServer(httpadapter.Services{
		Messages:  messaging.NewService(st.messages, relayClient, metrics),
		Mode:      modeSvc,
		Alerts:    alert.NewService(st.alerts, metrics),
		Summaries: summary.NewService(summarizer, st.summaries, metrics),
		Assistant: assistant.NewService(completer, llm.AssistantSystemPrompt, metrics),
	}, httpadapter.Options{
		Metrics:        metrics,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Clara API listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Pending forwards and handoff summaries still need the stores.
	modeSvc.Wait()
	if st.closer != nil {
		if err := st.closer.Close(); err != nil {
			log.Warn("error closing storage", "error", err)
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config, start time.Time) (*stores, error) {
	log := observability.Logger()

	switch cfg.Storage.Backend {
	case config.StorageRedis:
		log.Info("using redis storage", "addr", cfg.Storage.RedisAddr, "prefix", cfg.Storage.RedisPrefix)
		rs, err := redisstore.Open(ctx, &goredis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		}, cfg.Storage.RedisPrefix, start)
		if err != nil {
			return nil, err
		}
		return &stores{messages: rs, mode: rs, alerts: rs, summaries: rs, closer: rs}, nil

	case config.StorageFirestore:
		log.Info("using firestore storage", "project", cfg.Storage.GCPProject)
		fs, err := firestorestore.NewStore(ctx, cfg.Storage.GCPProject, start)
		if err != nil {
			return nil, err
		}
		return &stores{messages: fs, mode: fs, alerts: fs, summaries: fs, closer: fs}, nil

	default:
		log.Info("using in-memory storage")
		return &stores{
			messages:  memstore.NewMessageStore(),
			mode:      memstore.NewModeStore(),
			alerts:    memstore.NewAlertStore(start),
			summaries: memstore.NewSummaryStore(),
		}, nil
	}
}

// newCompleter returns a nil interface when the OpenAI key is missing so the
// assistant reports itself as unconfigured instead of failing per request.
func newCompleter(ctx context.Context, cfg *config.Config) (domain.ChatCompleter, error) {
	log := observability.Logger()

	switch cfg.LLM.Provider {
	case config.LLMMock:
		log.Info("using mock llm client")
		return llm.NewMockLLM(), nil

	case config.LLMVertex:
		log.Info("using vertex llm client", "project", cfg.LLM.GCPProject, "location", cfg.LLM.GCPLocation)
		vc, err := llm.NewVertexClient(ctx, cfg.LLM.GCPProject, cfg.LLM.GCPLocation, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		return vc, nil

	default:
		if cfg.LLM.OpenAIKey == "" {
			log.Warn("OPENAI_API_KEY is not set; /gptchat will answer 500")
			return nil, nil
		}
		log.Info("using openai llm client", "model", cfg.LLM.Model)
		return llm.NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIURL, cfg.LLM.Model), nil
	}
}
