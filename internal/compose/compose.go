// Package compose renders an admitted article into a short post that fits a
// hard character budget.
package compose

import (
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/deusflow/tickerfeed/internal/news"
)

const (
	Limit = 280

	defaultRetries   = 5
	entityBlockSize  = 3
	hashtagReserve   = 20
	minTitleBudget   = 30
	fallbackOverhead = 30
	minFallbackTitle = 40
	ellipsis         = "..."
)

// Len counts s the way the posting service does: UTF-16 code units.
func Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

type Composer struct {
	templates []Template
	rng       *rand.Rand
	retries   int
	log       *slog.Logger
}

type Option func(*Composer)

// WithRand makes template selection reproducible.
func WithRand(r *rand.Rand) Option {
	return func(c *Composer) { c.rng = r }
}

func WithRetries(n int) Option {
	return func(c *Composer) {
		if n > 0 {
			c.retries = n
		}
	}
}

func WithTemplates(ts []Template) Option {
	return func(c *Composer) { c.templates = ts }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Composer) { c.log = l }
}

func New(opts ...Option) *Composer {
	c := &Composer{
		templates: DefaultTemplates,
		retries:   defaultRetries,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.rng == nil {
		seed := uint64(time.Now().UnixNano())
		c.rng = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	c.log = c.log.With("component", "compose")
	return c
}

// Compose returns the post text, or false when the article carries no
// actionable entity and should not be posted.
func (c *Composer) Compose(a *news.Article) (string, bool) {
	primary, ok := a.PrimaryEntity()
	if !ok || primary.IsUnknown() {
		c.log.Debug("skipping article without entities", "url", a.URL)
		return "", false
	}

	entities := append([]news.Entity(nil), a.Entities...)
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Confidence > entities[j].Confidence
	})

	hashtags := cleanHashtags(a.Keywords)
	urlSpace := Len(a.URL) + 4
	entitySpace := Len(tags(firstN(entities, entityBlockSize), " | ", tagPct))
	hashtagSpace := min(hashtagReserve, Len(strings.Join(hashtags, " ")))

	base := Data{
		URL:       a.URL,
		Relevance: min(a.Relevance, 100),
		Trend:     a.Trend,
		Entities:  entities,
		Primary:   primary,
	}

	if len(c.templates) > 0 {
		order := c.rng.Perm(len(c.templates))
		for attempt := 0; attempt < c.retries; attempt++ {
			tpl := c.templates[order[attempt%len(order)]]

			titleBudget := Limit - urlSpace - entitySpace - tpl.Overhead - hashtagSpace
			d := base
			d.Title = truncateTitle(a.Title, max(titleBudget, minTitleBudget))

			text := tpl.Render(d)
			if text == "" || Len(text) > Limit {
				continue
			}
			return withHashtags(text, hashtags), true
		}
	}

	c.log.Debug("no template fit, using fallback", "url", a.URL)
	return withHashtags(fallback(a.Title, a.URL, primary, urlSpace), hashtags), true
}

// fallback renders "$LABEL NN% • title\n\nurl" and tightens it until it fits.
func fallback(title, url string, primary news.Entity, urlSpace int) string {
	head := tagPct(primary) + " • "
	tail := "\n\n" + url

	short := truncateTitle(title, max(Limit-urlSpace-fallbackOverhead-hashtagReserve, minFallbackTitle))
	text := head + short + tail
	if Len(text) <= Limit {
		return text
	}

	// Exact fit with the URL kept.
	if room := Limit - Len(head) - Len(tail); room > 0 {
		return head + fitTitle(title, room) + tail
	}

	// The URL alone blows the budget; keep the signal and drop the link.
	return cutUnits(strings.TrimSpace(head+fitTitle(title, Limit-Len(head))), Limit)
}

// fitTitle returns title, or a cut of it plus an ellipsis, in at most room units.
func fitTitle(title string, room int) string {
	if Len(title) <= room {
		return title
	}
	if room <= len(ellipsis) {
		return ""
	}
	return cutUnits(title, room-len(ellipsis)) + ellipsis
}

// truncateTitle cuts title to max units, preferring the last space when it
// falls past 70% of the limit, and appends an ellipsis.
func truncateTitle(title string, maxLen int) string {
	if Len(title) <= maxLen {
		return title
	}
	cut := cutUnits(title, maxLen)
	if i := strings.LastIndex(cut, " "); i >= 0 && float64(Len(cut[:i])) > float64(maxLen)*0.7 {
		return cut[:i] + ellipsis
	}
	return cut + ellipsis
}

// cutUnits returns the longest prefix of s that fits in n UTF-16 units.
func cutUnits(s string, n int) string {
	used := 0
	for i, r := range s {
		w := utf16.RuneLen(r)
		if used+w > n {
			return s[:i]
		}
		used += w
	}
	return s
}

func cleanHashtags(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.Join(strings.Fields(k), "")
		if k == "" {
			continue
		}
		if !strings.HasPrefix(k, "#") {
			k = "#" + k
		}
		out = append(out, k)
	}
	return out
}

// fitHashtags drops tags from the end until the rest fit in avail units.
func fitHashtags(hashtags []string, avail int) string {
	if len(hashtags) == 0 || avail < 5 {
		return ""
	}
	for n := len(hashtags); n > 0; n-- {
		s := strings.Join(hashtags[:n], " ")
		if Len(s) <= avail {
			return s
		}
	}
	return ""
}

func withHashtags(text string, hashtags []string) string {
	if h := fitHashtags(hashtags, Limit-Len(text)-2); h != "" {
		return text + "\n\n" + h
	}
	return text
}
