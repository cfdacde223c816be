// Command ragserver runs the multi-tenant retrieval-augmented knowledge
// service: the HTTP API (spec §6), the ingestion job engine (§4.F), and the
// query session manager (§4.G) over a shared set of retrieval backends.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"ragkit/internal/config"
	"ragkit/internal/httpapi"
	"ragkit/internal/jobs"
	"ragkit/internal/llm/providers"
	"ragkit/internal/objectstore"
	"ragkit/internal/observability"
	"ragkit/internal/persistence/databases"
	"ragkit/internal/rag/embedder"
	"ragkit/internal/rag/extract"
	"ragkit/internal/rag/obs"
	"ragkit/internal/rag/service"
	"ragkit/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("ragserver")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	baseCtx := context.Background()

	otelShutdown, err := observability.InitOTel(baseCtx, "ragkit")
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	mgr, err := databases.NewManager(baseCtx, cfg.DB)
	if err != nil {
		return fmt.Errorf("init retrieval backends: %w", err)
	}
	defer mgr.Close()

	httpClient := observability.NewHTTPClient(&http.Client{Timeout: 60 * time.Second})
	provider, err := providers.Build(cfg, httpClient)
	if err != nil {
		return fmt.Errorf("init chat provider: %w", err)
	}

	var emb embedder.Embedder
	if cfg.Embedding.BaseURL != "" {
		emb = embedder.NewClient(cfg.Embedding, cfg.Embedding.Dimension)
	} else {
		emb = embedder.NewDeterministic(cfg.Embedding.Dimension, true, 0)
	}

	svc := service.New(mgr, service.WithEmbedder(emb), service.WithMetrics(obs.NewOtelMetrics()))

	extractClient := extract.New(extract.Config{
		URL:         cfg.Extract.URL,
		Token:       cfg.Extract.Token,
		TimeoutMS:   cfg.Extract.TimeoutMS,
		Retries:     cfg.Extract.Retries,
		RetryBaseMS: cfg.Extract.RetryBaseMS,
		Concurrency: cfg.Extract.Concurrency,
	})

	jobStore, err := newJobStore(baseCtx, cfg.Jobs)
	if err != nil {
		return fmt.Errorf("init job store: %w", err)
	}
	var objStore objectstore.ObjectStore
	if cfg.Object.Bucket != "" {
		s3Store, err := objectstore.NewS3Store(baseCtx, cfg.Object)
		if err != nil {
			return fmt.Errorf("init object store: %w", err)
		}
		objStore = s3Store
	}

	jobEngine := jobs.NewEngine(jobStore, svc, extractClient, cfg.Jobs, cfg.Object.PublicBaseURL, objStore)
	if err := jobEngine.Restore(baseCtx); err != nil {
		return fmt.Errorf("restore job engine: %w", err)
	}

	sessionStore, err := newSessionStore(baseCtx, cfg.Session)
	if err != nil {
		return fmt.Errorf("init session store: %w", err)
	}
	sessionModel := cfg.LLMClient.OpenAI.Model
	if cfg.LLMClient.Provider == "anthropic" {
		sessionModel = cfg.LLMClient.Anthropic.Model
	}
	sessionMgr := session.NewManager(sessionStore, provider, sessionModel, time.Duration(cfg.Session.TTLSecs)*time.Second)

	settings := httpapi.NewSettingsStore()
	counters := httpapi.NewIndexCounters()

	server := httpapi.NewServer(httpapi.Deps{
		Service:  svc,
		Jobs:     jobEngine,
		Sessions: sessionMgr,
		Extract:  extractClient,
		Provider: provider,
		Model:    sessionModel,
		Admin:    cfg.Admin,
		Settings: settings,
		Counters: counters,
		Log:      log.Logger,
	})

	jobCtx, stopJobs := context.WithCancel(baseCtx)
	defer stopJobs()
	go jobEngine.Run(jobCtx)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpSrv := &http.Server{Addr: addr, Handler: server}

	go func() {
		log.Info().Str("addr", addr).Msg("ragserver_listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ragserver_listen_failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopJobs()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ragserver_shutdown_error")
	} else {
		log.Info().Msg("ragserver_stopped")
	}
	return nil
}

func newJobStore(ctx context.Context, cfg config.JobsConfig) (jobs.Store, error) {
	if cfg.Store != "redis+postgres" {
		return jobs.NewMemoryStore(), nil
	}
	var mirrors []jobs.Store
	var primary jobs.Store
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("jobs postgres pool: %w", err)
		}
		pg, err := jobs.NewPostgresStore(ctx, pool)
		if err != nil {
			return nil, fmt.Errorf("jobs postgres store: %w", err)
		}
		primary = pg
	}
	if cfg.RedisURL != "" {
		rs, err := jobs.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("jobs redis store: %w", err)
		}
		if primary == nil {
			primary = rs
		} else {
			mirrors = append(mirrors, rs)
		}
	}
	if primary == nil {
		return jobs.NewMemoryStore(), nil
	}
	return jobs.MultiStore{Primary: primary, Mirrors: mirrors}, nil
}

func newSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	if cfg.RedisURL == "" {
		return session.NewMemoryStore(), nil
	}
	return session.NewRedisStore(ctx, cfg.RedisURL)
}
