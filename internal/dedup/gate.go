package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
)

const (
	keyPrefix = "rss:seen:"
	sentinel  = "__init__"
)

// SourceKey maps a feed endpoint to its set key.
func SourceKey(endpoint string) string {
	sum := md5.Sum([]byte(endpoint))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Gate answers "was this item already emitted for this source".
type Gate struct {
	store Store
	log   *slog.Logger
}

func NewGate(store Store, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{store: store, log: log.With("component", "dedup")}
}

// Prepare lazily creates the set for a source seen for the first time.
func (g *Gate) Prepare(ctx context.Context, sourceKey string) error {
	exists, err := g.store.Exists(ctx, sourceKey)
	if err != nil {
		return fmt.Errorf("check set %s: %w", sourceKey, err)
	}
	if exists {
		return nil
	}
	if err := g.store.SAdd(ctx, sourceKey, sentinel); err != nil {
		return fmt.Errorf("init set %s: %w", sourceKey, err)
	}
	if err := g.store.SRem(ctx, sourceKey, sentinel); err != nil {
		return fmt.Errorf("init set %s: %w", sourceKey, err)
	}
	g.log.Info("initialized seen set", "key", sourceKey)
	return nil
}

func (g *Gate) Seen(ctx context.Context, sourceKey, id string) (bool, error) {
	ok, err := g.store.SIsMember(ctx, sourceKey, id)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return ok, nil
}

// MarkSeen records id as emitted. Call only after the item is admitted.
func (g *Gate) MarkSeen(ctx context.Context, sourceKey, id string) error {
	if err := g.store.SAdd(ctx, sourceKey, id); err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

func (g *Gate) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}
