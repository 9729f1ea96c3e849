// Package pipeline runs the periodic fetch, filter, classify and post cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/tickerfeed/internal/fetch"
	"github.com/deusflow/tickerfeed/internal/metrics"
	"github.com/deusflow/tickerfeed/internal/news"
	"github.com/deusflow/tickerfeed/internal/poster"
	"github.com/deusflow/tickerfeed/internal/rss"
	"github.com/deusflow/tickerfeed/internal/scoring"
	"github.com/deusflow/tickerfeed/internal/storage"
)

// ErrCycleInProgress is returned when a cycle is requested while another runs.
var ErrCycleInProgress = errors.New("cycle already in progress")

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Gate is the dedup contract; *dedup.Gate implements it.
type Gate interface {
	Prepare(ctx context.Context, sourceKey string) error
	Seen(ctx context.Context, sourceKey, id string) (bool, error)
	MarkSeen(ctx context.Context, sourceKey, id string) error
}

type Classifier interface {
	Classify(ctx context.Context, title, content string) ([]news.Entity, error)
}

type Composer interface {
	Compose(a *news.Article) (string, bool)
}

// Repository persists admitted articles; *storage.DB implements it.
type Repository interface {
	SaveArticles(ctx context.Context, runID uuid.UUID, articles []*news.Article) (int, error)
	LogScrape(ctx context.Context, runID uuid.UUID, source string, status storage.ScrapeStatus, errs []string) error
}

type PageScraper interface {
	Scrape(ctx context.Context, page rss.Page) ([]rss.Item, []error)
}

// Deps are the collaborators of a Runner. Repository and Scraper are optional.
type Deps struct {
	Fetcher    Fetcher
	Gate       Gate
	Table      *scoring.Table
	Classifier Classifier
	Composer   Composer
	Poster     poster.Poster
	Repository Repository
	Scraper    PageScraper
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Fetcher == nil:
		return errors.New("pipeline: fetcher is required")
	case d.Gate == nil:
		return errors.New("pipeline: dedup gate is required")
	case d.Table == nil:
		return errors.New("pipeline: keyword table is required")
	case d.Classifier == nil:
		return errors.New("pipeline: classifier is required")
	case d.Composer == nil:
		return errors.New("pipeline: composer is required")
	case d.Poster == nil:
		return errors.New("pipeline: poster is required")
	}
	return nil
}

type state int32

const (
	stateIdle state = iota
	stateRunning
)

// Runner owns the single cycle slot.
type Runner struct {
	Deps
	sources   []rss.Source
	postDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time

	state     atomic.Int32
	startedAt time.Time

	mu      sync.Mutex
	nextRun time.Time
	last    *Report
}

type Option func(*Runner)

// WithPostDelay sets the pause after every successful post.
func WithPostDelay(d time.Duration) Option { return func(r *Runner) { r.postDelay = d } }

// WithSleep replaces the delay function, mostly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = fn }
}

func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

func New(sources []rss.Source, deps Deps, opts ...Option) (*Runner, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "pipeline")

	r := &Runner{
		Deps:      deps,
		sources:   sources,
		postDelay: 5 * time.Second,
		sleep:     sleepCtx,
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	r.startedAt = r.now()
	return r, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TryStart moves the runner from Idle to Running and reports whether it did.
func (r *Runner) TryStart() bool {
	return r.state.CompareAndSwap(int32(stateIdle), int32(stateRunning))
}

func (r *Runner) finish() {
	r.state.Store(int32(stateIdle))
}

func (r *Runner) Running() bool {
	return state(r.state.Load()) == stateRunning
}

// RunCycle runs one full pass over all sources. It returns
// ErrCycleInProgress without doing anything when a cycle is already running.
func (r *Runner) RunCycle(ctx context.Context) (*Report, error) {
	if !r.TryStart() {
		r.Metrics.IncCyclesSkipped()
		r.Logger.Warn("cycle requested while another is running, skipping")
		return nil, ErrCycleInProgress
	}
	defer r.finish()
	return r.runCycle(ctx), nil
}

// Trigger starts a cycle in the background. It returns false when one is
// already running.
func (r *Runner) Trigger(ctx context.Context) bool {
	if !r.TryStart() {
		r.Metrics.IncCyclesSkipped()
		return false
	}
	go func() {
		defer r.finish()
		r.runCycle(context.WithoutCancel(ctx))
	}()
	return true
}

// Schedule runs a cycle immediately and then every interval until ctx is
// done. A cycle in flight at shutdown is allowed to finish.
func (r *Runner) Schedule(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("invalid cycle interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.setNextRun(r.now().Add(interval))
		if _, err := r.RunCycle(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrCycleInProgress) {
			r.Logger.Error("cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.Logger.Info("scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) setNextRun(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextRun = t
}

// Status is a snapshot for the admin endpoints.
type Status struct {
	Running   bool
	StartedAt time.Time
	NextRun   time.Time
	LastCycle *Report
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Running:   r.Running(),
		StartedAt: r.startedAt,
		NextRun:   r.nextRun,
		LastCycle: r.last,
	}
}

func (r *Runner) setLast(rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = rep
}
