// Package news holds the article model shared by the pipeline stages.
package news

import (
	"strings"
	"time"
)

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
)

// UnknownLabel is the classifier's answer when no tradable entity applies.
const UnknownLabel = "UNKNOWN"

// Entity is one classifier label attached to an article, e.g. a ticker.
type Entity struct {
	Label       string  `json:"label" validate:"required"`
	Name        string  `json:"name"`
	Confidence  float64 `json:"confidence" validate:"gte=0,lte=1"`
	Explanation string  `json:"explanation"`
}

// IsUnknown reports whether e is the "nothing tradable" sentinel.
func (e Entity) IsUnknown() bool {
	return e.Label == "" || strings.EqualFold(e.Label, UnknownLabel)
}

// Article is an item that passed the relevance gate.
type Article struct {
	ID          string // hex identity of the source item
	SourceID    string
	FeedURL     string
	Title       string
	Description string
	URL         string
	Content     string // normalized text used for scoring
	PublishedAt time.Time
	ScrapedAt   time.Time

	Relevance  int
	Keywords   []string
	Categories []string

	Entities []Entity
	Trend    Trend
}

// PrimaryEntity returns the highest-confidence entity; the first wins ties.
func (a *Article) PrimaryEntity() (Entity, bool) {
	if len(a.Entities) == 0 {
		return Entity{}, false
	}
	best := a.Entities[0]
	for _, e := range a.Entities[1:] {
		if e.Confidence > best.Confidence {
			best = e
		}
	}
	return best, true
}

// Tradable reports whether the article has at least one real entity label.
func (a *Article) Tradable() bool {
	p, ok := a.PrimaryEntity()
	return ok && !p.IsUnknown()
}
