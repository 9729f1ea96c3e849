// Package poster publishes composed texts to social channels.
package poster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/deusflow/tickerfeed/internal/compose"
	"github.com/deusflow/tickerfeed/internal/ratelimit"
)

var (
	ErrTooLong     = errors.New("post exceeds character limit")
	ErrRateLimited = errors.New("rate limited by remote API")
)

// Poster publishes one text and returns the remote id of the post.
type Poster interface {
	Post(ctx context.Context, text string) (string, error)
}

// APIError is a non-success answer from a remote API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// Quota is the slice of ratelimit.PostQuota a Limited poster needs.
type Quota interface {
	Allow(ctx context.Context) error
	Record(ctx context.Context) error
}

var _ Quota = (*ratelimit.PostQuota)(nil)

// Limited guards a Poster with the length ceiling and a post quota.
type Limited struct {
	next  Poster
	quota Quota
	log   *slog.Logger
}

func NewLimited(next Poster, quota Quota, log *slog.Logger) *Limited {
	if log == nil {
		log = slog.Default()
	}
	return &Limited{next: next, quota: quota, log: log}
}

func (l *Limited) Post(ctx context.Context, text string) (string, error) {
	if n := compose.Len(text); n > compose.Limit {
		return "", fmt.Errorf("%w: %d characters (max %d)", ErrTooLong, n, compose.Limit)
	}
	if l.quota != nil {
		if err := l.quota.Allow(ctx); err != nil {
			return "", err
		}
	}

	id, err := l.next.Post(ctx, text)
	if err != nil {
		return "", err
	}

	if l.quota != nil {
		if err := l.quota.Record(ctx); err != nil {
			// The post is out; a counting failure must not make the caller retry it.
			l.log.Error("failed to record post", "id", id, "error", err)
		}
	}
	return id, nil
}

// readBody reads at most 4KB of an error response for diagnostics.
func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	return string(b)
}
