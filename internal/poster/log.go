package poster

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogPoster is a dry-run poster: it logs the text instead of publishing it.
type LogPoster struct {
	log *slog.Logger
}

func NewLogPoster(log *slog.Logger) *LogPoster {
	if log == nil {
		log = slog.Default()
	}
	return &LogPoster{log: log.With("poster", "log")}
}

func (p *LogPoster) Post(_ context.Context, text string) (string, error) {
	id := "dry-" + uuid.NewString()
	p.log.Info("dry run post", "id", id, "text", text)
	return id, nil
}
