package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deusflow/tickerfeed/internal/news"
	"github.com/deusflow/tickerfeed/internal/ratelimit"
)

// BatchSize is the number of articles written per transaction.
const BatchSize = 10

type ScrapeStatus string

const (
	ScrapeSuccess ScrapeStatus = "success"
	ScrapeFailed  ScrapeStatus = "failed"
	ScrapePartial ScrapeStatus = "partial"
)

// DB stores admitted articles, their entity links, scrape logs and the
// post quota in PostgreSQL.
type DB struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Connect opens a pool, verifies it and makes sure the schema exists.
func Connect(ctx context.Context, databaseURL string, log *slog.Logger) (*DB, error) {
	if log == nil {
		log = slog.Default()
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{pool: pool, log: log.With("component", "storage")}
	if err := db.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	db.log.Info("postgres connected")
	return db, nil
}

func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS stocks (
	id SERIAL PRIMARY KEY,
	ticker VARCHAR(16) UNIQUE NOT NULL,
	company_name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS articles (
	id UUID PRIMARY KEY,
	run_id UUID,
	item_id VARCHAR(40) NOT NULL,
	source VARCHAR(100),
	title TEXT NOT NULL,
	url TEXT UNIQUE NOT NULL,
	content TEXT,
	keywords TEXT[] NOT NULL DEFAULT '{}',
	categories TEXT[] NOT NULL DEFAULT '{}',
	relevance_score INTEGER,
	trend VARCHAR(10),
	published_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at);

CREATE TABLE IF NOT EXISTS article_entities (
	article_id UUID NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
	ticker VARCHAR(16) NOT NULL REFERENCES stocks(ticker),
	confidence REAL NOT NULL,
	trend VARCHAR(10),
	explanation TEXT,
	PRIMARY KEY (article_id, ticker)
);

CREATE TABLE IF NOT EXISTS scraping_logs (
	id SERIAL PRIMARY KEY,
	run_id UUID,
	source VARCHAR(100) NOT NULL,
	status VARCHAR(10) NOT NULL,
	errors TEXT[] NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS post_quota (
	month CHAR(7) PRIMARY KEY,
	posts_sent INTEGER NOT NULL DEFAULT 0,
	last_post_date CHAR(10) NOT NULL,
	daily_posts_sent INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveArticles writes articles in batches of BatchSize, one transaction per
// batch. A failed batch is logged and skipped; the returned count covers the
// batches that committed and err joins the batch failures.
func (db *DB) SaveArticles(ctx context.Context, runID uuid.UUID, articles []*news.Article) (int, error) {
	var (
		saved int
		errs  []error
	)
	for _, batch := range Batches(articles, BatchSize) {
		if err := db.saveBatch(ctx, runID, batch); err != nil {
			db.log.Error("article batch failed", "size", len(batch), "error", err)
			errs = append(errs, err)
			continue
		}
		saved += len(batch)
	}
	return saved, errors.Join(errs...)
}

func (db *DB) saveBatch(ctx context.Context, runID uuid.UUID, batch []*news.Article) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && !errors.Is(rErr, pgx.ErrTxClosed) {
			db.log.Warn("rollback failed", "error", rErr)
		}
	}()

	for _, a := range batch {
		var articleID uuid.UUID
		err := tx.QueryRow(ctx,
			`INSERT INTO articles (id, run_id, item_id, source, title, url, content, keywords, categories, relevance_score, trend, published_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (url) DO UPDATE SET relevance_score = EXCLUDED.relevance_score, trend = EXCLUDED.trend
			 RETURNING id`,
			uuid.New(), runID, a.ID, a.SourceID, a.Title, a.URL, a.Content,
			nonNil(a.Keywords), nonNil(a.Categories), a.Relevance, nullTrend(a.Trend), nullTime(a),
		).Scan(&articleID)
		if err != nil {
			return fmt.Errorf("failed to save article %s: %w", a.URL, err)
		}

		for _, e := range TradableEntities(a.Entities) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO stocks (ticker, company_name) VALUES ($1, $2)
				 ON CONFLICT (ticker) DO NOTHING`,
				e.Label, companyName(e),
			); err != nil {
				return fmt.Errorf("failed to upsert stock %s: %w", e.Label, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO article_entities (article_id, ticker, confidence, trend, explanation)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (article_id, ticker) DO UPDATE SET confidence = EXCLUDED.confidence, trend = EXCLUDED.trend`,
				articleID, e.Label, e.Confidence, nullTrend(a.Trend), e.Explanation,
			); err != nil {
				return fmt.Errorf("failed to link %s to %s: %w", e.Label, a.URL, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// LogScrape records the outcome of one source within a run.
func (db *DB) LogScrape(ctx context.Context, runID uuid.UUID, source string, status ScrapeStatus, errs []string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO scraping_logs (run_id, source, status, errors) VALUES ($1, $2, $3, $4)`,
		runID, source, string(status), nonNil(errs),
	)
	if err != nil {
		return fmt.Errorf("failed to log scrape for %s: %w", source, err)
	}
	return nil
}

// LoadQuota implements ratelimit.Store.
func (db *DB) LoadQuota(ctx context.Context, month string) (ratelimit.Usage, error) {
	u := ratelimit.Usage{Month: month}
	err := db.pool.QueryRow(ctx,
		`SELECT posts_sent, last_post_date, daily_posts_sent FROM post_quota WHERE month = $1`,
		month,
	).Scan(&u.Sent, &u.Day, &u.DailySent)
	if errors.Is(err, pgx.ErrNoRows) {
		return ratelimit.Usage{}, nil
	}
	if err != nil {
		return ratelimit.Usage{}, fmt.Errorf("failed to load quota for %s: %w", month, err)
	}
	return u, nil
}

// SaveQuota implements ratelimit.Store.
func (db *DB) SaveQuota(ctx context.Context, u ratelimit.Usage) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO post_quota (month, posts_sent, last_post_date, daily_posts_sent)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (month) DO UPDATE SET posts_sent = $2, last_post_date = $3, daily_posts_sent = $4, updated_at = NOW()`,
		u.Month, u.Sent, u.Day, u.DailySent,
	)
	if err != nil {
		return fmt.Errorf("failed to save quota for %s: %w", u.Month, err)
	}
	return nil
}

var _ ratelimit.Store = (*DB)(nil)

// Batches splits items into consecutive chunks of at most size.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}

// TradableEntities drops UNKNOWN labels and repeated tickers.
func TradableEntities(entities []news.Entity) []news.Entity {
	seen := make(map[string]bool, len(entities))
	var out []news.Entity
	for _, e := range entities {
		if e.IsUnknown() {
			continue
		}
		e.Label = strings.ToUpper(e.Label)
		if seen[e.Label] {
			continue
		}
		seen[e.Label] = true
		out = append(out, e)
	}
	return out
}

func companyName(e news.Entity) string {
	if e.Name != "" {
		return e.Name
	}
	return e.Label
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTrend(t news.Trend) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

func nullTime(a *news.Article) any {
	if a.PublishedAt.IsZero() {
		return nil
	}
	return a.PublishedAt
}
