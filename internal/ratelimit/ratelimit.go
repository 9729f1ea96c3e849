package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultMonthlyLimit = 495
	DefaultDailyLimit   = 17

	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
)

var ErrQuotaExceeded = errors.New("post quota exceeded")

// Usage is the persisted counter state for one calendar month.
type Usage struct {
	Month     string // YYYY-MM
	Sent      int
	Day       string // YYYY-MM-DD of the last post
	DailySent int
}

// Store persists Usage between restarts. Load returns a zero Usage with no
// error when nothing is stored for month.
type Store interface {
	LoadQuota(ctx context.Context, month string) (Usage, error)
	SaveQuota(ctx context.Context, u Usage) error
}

// PostQuota caps outgoing posts per calendar month and per calendar day.
type PostQuota struct {
	mu         sync.Mutex
	maxMonthly int
	maxDaily   int
	usage      Usage
	loaded     bool
	store      Store
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*PostQuota)

func WithStore(s Store) Option { return func(q *PostQuota) { q.store = s } }

func WithClock(now func() time.Time) Option { return func(q *PostQuota) { q.now = now } }

func WithLogger(l *slog.Logger) Option { return func(q *PostQuota) { q.log = l } }

// NewPostQuota creates a limiter; non-positive limits fall back to defaults.
func NewPostQuota(maxMonthly, maxDaily int, opts ...Option) *PostQuota {
	if maxMonthly <= 0 {
		maxMonthly = DefaultMonthlyLimit
	}
	if maxDaily <= 0 {
		maxDaily = DefaultDailyLimit
	}
	q := &PostQuota{
		maxMonthly: maxMonthly,
		maxDaily:   maxDaily,
		now:        time.Now,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Allow returns ErrQuotaExceeded (wrapped with the reason) when no post may
// be sent right now.
func (q *PostQuota) Allow(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkReset(ctx); err != nil {
		return err
	}
	if q.usage.Sent >= q.maxMonthly {
		return fmt.Errorf("%w: monthly limit reached (%d posts)", ErrQuotaExceeded, q.maxMonthly)
	}
	if q.usage.DailySent >= q.maxDaily {
		return fmt.Errorf("%w: daily limit reached (%d posts)", ErrQuotaExceeded, q.maxDaily)
	}
	return nil
}

// Record counts one successful post.
func (q *PostQuota) Record(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkReset(ctx); err != nil {
		return err
	}
	q.usage.Sent++
	q.usage.DailySent++

	q.log.Info("post recorded",
		"daily", fmt.Sprintf("%d/%d", q.usage.DailySent, q.maxDaily),
		"monthly", fmt.Sprintf("%d/%d", q.usage.Sent, q.maxMonthly))

	if q.store != nil {
		if err := q.store.SaveQuota(ctx, q.usage); err != nil {
			return fmt.Errorf("failed to persist post quota: %w", err)
		}
	}
	return nil
}

// GetStats returns current limiter statistics.
func (q *PostQuota) GetStats() map[string]interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	return map[string]interface{}{
		"month":             q.usage.Month,
		"monthly_sent":      q.usage.Sent,
		"monthly_limit":     q.maxMonthly,
		"monthly_remaining": max(q.maxMonthly-q.usage.Sent, 0),
		"daily_sent":        q.usage.DailySent,
		"daily_limit":       q.maxDaily,
		"daily_remaining":   max(q.maxDaily-q.usage.DailySent, 0),
	}
}

// checkReset loads stored usage once and rolls the counters over on a new
// day or month. Caller holds q.mu.
func (q *PostQuota) checkReset(ctx context.Context) error {
	now := q.now()
	month, day := now.Format(monthLayout), now.Format(dayLayout)

	if (!q.loaded || q.usage.Month != month) && q.store != nil {
		u, err := q.store.LoadQuota(ctx, month)
		if err != nil {
			return fmt.Errorf("failed to load post quota: %w", err)
		}
		q.usage = u
	}
	q.loaded = true

	if q.usage.Month != month {
		if q.usage.Month != "" {
			q.log.Info("new month, resetting post quota", "previous", q.usage.Month, "sent", q.usage.Sent)
		}
		q.usage = Usage{Month: month, Day: day}
	}
	if q.usage.Day != day {
		q.usage.Day = day
		q.usage.DailySent = 0
	}
	return nil
}
