package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deusflow/tickerfeed/internal/compose"
	"github.com/deusflow/tickerfeed/internal/config"
	"github.com/deusflow/tickerfeed/internal/dedup"
	"github.com/deusflow/tickerfeed/internal/fetch"
	"github.com/deusflow/tickerfeed/internal/gemini"
	"github.com/deusflow/tickerfeed/internal/metrics"
	"github.com/deusflow/tickerfeed/internal/pipeline"
	"github.com/deusflow/tickerfeed/internal/poster"
	"github.com/deusflow/tickerfeed/internal/ratelimit"
	"github.com/deusflow/tickerfeed/internal/rss"
	"github.com/deusflow/tickerfeed/internal/scoring"
	"github.com/deusflow/tickerfeed/internal/scraper"
	"github.com/deusflow/tickerfeed/internal/server"
	"github.com/deusflow/tickerfeed/internal/storage"
)

// app holds everything a command needs, plus the cleanup for it.
type app struct {
	runner  *pipeline.Runner
	metrics *metrics.Metrics
	quota   *ratelimit.PostQuota
	gate    *dedup.Gate
	db      *storage.DB

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	sources, err := rss.LoadSources(cfg.SourcesPath)
	if err != nil {
		return nil, err
	}
	table, err := scoring.LoadTable(cfg.KeywordsPath)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:     cfg.FetchTimeout,
		MaxRetries:  cfg.FetchMaxRetries,
		DNSCacheTTL: cfg.DNSCacheTTL,
		VerifyTLS:   cfg.VerifyTLS,
		Logger:      log,
	})
	a.closers = append(a.closers, fetcher.Close)

	store, err := openDedupStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			log.Warn("closing dedup store", "error", err)
		}
	})
	a.gate = dedup.NewGate(store, log)

	// Postgres is optional: without it admitted articles are only posted.
	var repo pipeline.Repository
	quotaOpts := []ratelimit.Option{ratelimit.WithLogger(log)}
	if cfg.DatabaseURL != "" {
		a.db, err = storage.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.db.Close)
		repo = a.db
		quotaOpts = append(quotaOpts, ratelimit.WithStore(a.db))
	} else {
		log.Warn("DATABASE_URL not set, articles will not be persisted")
	}

	classifier, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ClassifyAttempts, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = classifier.Close() })

	a.quota = ratelimit.NewPostQuota(cfg.MonthlyPostLimit, cfg.DailyPostLimit, quotaOpts...)
	out, err := newPoster(cfg, log)
	if err != nil {
		return nil, err
	}

	a.metrics = metrics.New()
	a.runner, err = pipeline.New(sources, pipeline.Deps{
		Fetcher:    fetcher,
		Gate:       a.gate,
		Table:      table,
		Classifier: classifier,
		Composer:   compose.New(compose.WithRetries(cfg.ComposeRetries), compose.WithLogger(log)),
		Poster:     poster.NewLimited(out, a.quota, log),
		Repository: repo,
		Scraper:    scraper.New(fetcher, log),
		Metrics:    a.metrics,
		Logger:     log,
	}, pipeline.WithPostDelay(cfg.PostDelay))
	if err != nil {
		return nil, err
	}

	log.Info("pipeline ready",
		"sources", len(sources),
		"keywords", table.Len(),
		"dedup", cfg.DedupBackend,
		"poster", cfg.Poster)
	return a, nil
}

func openDedupStore(ctx context.Context, cfg *config.Config) (dedup.Store, error) {
	switch cfg.DedupBackend {
	case config.DedupRedis:
		s, err := dedup.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect dedup redis: %w", err)
		}
		return s, nil
	case config.DedupFile:
		return dedup.NewFileStore(cfg.DedupFilePath)
	default:
		return dedup.NewMemoryStore(), nil
	}
}

func newPoster(cfg *config.Config, log *slog.Logger) (poster.Poster, error) {
	switch cfg.Poster {
	case config.PosterX:
		return poster.NewXPoster(poster.XCredentials{
			APIKey:            cfg.XAPIKey,
			APISecret:         cfg.XAPISecret,
			AccessToken:       cfg.XAccessToken,
			AccessTokenSecret: cfg.XAccessTokenSecret,
		}, "", log)
	case config.PosterTelegram:
		return poster.NewTelegramPoster(cfg.TelegramToken, cfg.TelegramChatID, "", log)
	default:
		return poster.NewLogPoster(log), nil
	}
}

func (a *app) server(cfg *config.Config, log *slog.Logger) *server.Server {
	checks := map[string]server.Pinger{"dedup": a.gate}
	if a.db != nil {
		checks["postgres"] = a.db
	}
	return server.New(server.Config{
		Runner:   a.runner,
		Metrics:  a.metrics,
		Quota:    a.quota,
		Checks:   checks,
		Interval: cfg.CycleInterval,
		Logger:   log,
	})
}
