// Package bootstrap wires config into the services both binaries share.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"reviewpulse/internal/adapters/events"
	"reviewpulse/internal/adapters/google"
	"reviewpulse/internal/adapters/llm"
	"reviewpulse/internal/adapters/provider"
	"reviewpulse/internal/adapters/reddit"
	redisad "reviewpulse/internal/adapters/redis"
	"reviewpulse/internal/adapters/tripadvisor"
	"reviewpulse/internal/adapters/yelp"
	"reviewpulse/internal/app"
	"reviewpulse/internal/domain"
	"reviewpulse/internal/enrich"
	"reviewpulse/internal/ratelimit"
	"reviewpulse/internal/shared"
	"reviewpulse/internal/storage/sqlrepo"
)

type App struct {
	Cfg      shared.Config
	DB       *sql.DB
	Repo     *sqlrepo.Repo
	Sync     *app.SyncService
	Analysis *app.AnalysisService
	Query    *app.QueryService

	redis  *redis.Client
	events *events.Publisher
}

// Build opens the store and the optional Redis and NATS connections and
// assembles the services. Close releases them.
func Build(ctx context.Context, cfg shared.Config) (*App, error) {
	db, dialect, err := openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Cfg: cfg, DB: db, Repo: sqlrepo.New(db, dialect)}

	var (
		cache   domain.Cache
		windows domain.WindowStore = a.Repo
	)
	if cfg.RedisAddr != "" {
		a.redis = redisad.NewClient(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cache = redisad.NewCache(a.redis)
		if cfg.WindowStore == "redis" {
			windows = redisad.NewWindows(a.redis)
		}
	}

	var pub domain.EventPublisher
	if a.events, err = events.Connect(cfg.NATSURL, cfg.NATSSubject); err != nil {
		// sync results are still returned to callers; only the broadcast is lost
		log.Warn().Err(err).Msg("sync events disabled")
	} else if a.events != nil {
		pub = a.events
	}

	engine := enrich.NewEngine(llm.New(llm.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}), a.Repo, enrich.Config{
		BatchSize:   cfg.Enrichment.BatchSize,
		BatchDelay:  cfg.Enrichment.BatchDelay,
		ItemTimeout: cfg.Enrichment.ItemTimeout,
	})

	a.Sync = app.NewSyncService(app.SyncDeps{
		Providers:       Providers(&cfg),
		Creds:           &cfg,
		Cooldowns:       &cfg,
		Repo:            a.Repo,
		Limiter:         ratelimit.New(windows),
		Engine:          engine,
		Cache:           cache,
		Events:          pub,
		AsyncEnrichment: cfg.Enrichment.Async,
	})
	a.Analysis = app.NewAnalysisService(a.Repo, engine, cache)
	a.Query = app.NewQueryService(a.Repo, cache, cfg.CacheTTL)

	log.Info().
		Str("db", dialect.String()).
		Bool("cache", cache != nil).
		Str("windows", cfg.WindowStore).
		Bool("events", pub != nil).
		Bool("async_enrichment", cfg.Enrichment.Async).
		Msg("services ready")
	return a, nil
}

// Providers builds one adapter per platform, each with its own transport
// so request budgets stay separate.
func Providers(cfg *shared.Config) *provider.Registry {
	client := func(p domain.Platform) *provider.Client {
		return provider.NewClient(string(p), provider.Options{RPS: cfg.Provider(p).RPS})
	}
	g := cfg.Google
	return provider.NewRegistry(
		google.New(client(domain.PlatformGoogle), google.Config{
			PlacesBase: g.BaseURL, BusinessBase: g.BusinessBaseURL, MaxPages: g.MaxPages, PageSize: g.PageSize,
		}),
		yelp.New(client(domain.PlatformYelp), yelp.Config{
			Base: cfg.Yelp.BaseURL, MaxPages: cfg.Yelp.MaxPages, PageSize: cfg.Yelp.PageSize,
		}),
		reddit.New(client(domain.PlatformReddit), reddit.Config{
			Base: cfg.Reddit.BaseURL, MaxPages: cfg.Reddit.MaxPages, PageSize: cfg.Reddit.PageSize,
		}),
		tripadvisor.New(client(domain.PlatformTripAdvisor), tripadvisor.Config{
			Base: cfg.TripAdvisor.BaseURL, MaxPages: cfg.TripAdvisor.MaxPages, PageSize: cfg.TripAdvisor.PageSize,
		}),
	)
}

func openDB(ctx context.Context, cfg shared.Config) (*sql.DB, sqlrepo.Dialect, error) {
	if cfg.DBDriver == "sqlite" {
		db, err := sqlrepo.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, 0, err
		}
		return db, sqlrepo.SQLite, nil
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, 0, fmt.Errorf("sql.Open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxLifetime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, 0, fmt.Errorf("db ping: %w", err)
	}
	log.Info().Msg("database connection ok")
	return db, sqlrepo.MySQL, nil
}

// Close waits for background enrichment, then releases connections.
func (a *App) Close() {
	if a.Sync != nil {
		a.Sync.Wait()
	}
	a.events.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
