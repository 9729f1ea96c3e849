package compose

import (
	"fmt"
	"math"
	"strings"

	"github.com/deusflow/tickerfeed/internal/news"
)

// Data is what a template renders from. Entities are ordered by confidence, highest first.
type Data struct {
	Title     string
	URL       string
	Relevance int
	Trend     news.Trend
	Entities  []news.Entity
	Primary   news.Entity
}

// Template renders one message layout. Overhead is the approximate fixed
// cost of its decoration, used to size the title before rendering.
type Template struct {
	Name     string
	Overhead int
	Render   func(d Data) string
}

func pct(c float64) int {
	return int(math.Round(c * 100))
}

func tag(e news.Entity) string {
	return "$" + e.Label
}

func tagPct(e news.Entity) string {
	return fmt.Sprintf("$%s %d%%", e.Label, pct(e.Confidence))
}

func tags(es []news.Entity, sep string, f func(news.Entity) string) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = f(e)
	}
	return strings.Join(parts, sep)
}

func firstN(es []news.Entity, n int) []news.Entity {
	if len(es) > n {
		return es[:n]
	}
	return es
}

func others(d Data) []news.Entity {
	out := make([]news.Entity, 0, len(d.Entities))
	skipped := false
	for _, e := range d.Entities {
		if !skipped && e == d.Primary {
			skipped = true
			continue
		}
		out = append(out, e)
	}
	return out
}

func trendUpper(t news.Trend) string {
	return strings.ToUpper(string(t))
}

// DefaultTemplates are the stock layouts.
var DefaultTemplates = []Template{
	{
		Name:     "alert",
		Overhead: 30,
		Render: func(d Data) string {
			return fmt.Sprintf("🚨 %s\n📊 %s\n🎯 %d/100\n\n%s",
				d.Title, tags(d.Entities, " | ", tagPct), d.Relevance, d.URL)
		},
	},
	{
		Name:     "trend-lead",
		Overhead: 50,
		Render: func(d Data) string {
			icon := "📈"
			if d.Trend == news.TrendBearish {
				icon = "📉"
			}
			ripples := ""
			if rest := others(d); len(rest) > 0 {
				ripples = "\n\n⚡ " + tags(rest, " ", tagPct)
			}
			return fmt.Sprintf("%s %s | %s\n\n%s%s\n\n🎯 %d/100\n\n%s",
				icon, tag(d.Primary), trendUpper(d.Trend), d.Title, ripples, d.Relevance, d.URL)
		},
	},
	{
		Name:     "terminal",
		Overhead: 60,
		Render: func(d Data) string {
			related := ""
			if len(d.Entities) > 1 {
				related = tags(firstN(d.Entities[1:], 2), " ", tag)
			}
			more := ""
			if len(d.Entities) > 3 {
				more = fmt.Sprintf(" +%d", len(d.Entities)-3)
			}
			return fmt.Sprintf("[ALERT] %s\n\nPRIMARY: %s\nRELATED: %s%s\nIMPACT: %d/100\n\n%s",
				d.Title, tagPct(d.Primary), related, more, d.Relevance, d.URL)
		},
	},
	{
		Name:     "brief",
		Overhead: 50,
		Render: func(d Data) string {
			return fmt.Sprintf("📰 %s\n\nAffected equities: %s\nMarket view: %s\nRelevance: %d/100\n\n%s",
				d.Title, tags(firstN(d.Entities, 3), ", ", tag), d.Trend, d.Relevance, d.URL)
		},
	},
	{
		Name:     "flow",
		Overhead: 70,
		Render: func(d Data) string {
			icon := "🐂"
			if d.Trend == news.TrendBearish {
				icon = "🐻"
			}
			return fmt.Sprintf("%s FLOW DETECTED\n\n%s\n\n%s • %d%% confidence\n%d tickers flagged • Score: %d\n\n%s",
				icon, d.Title, tag(d.Primary), pct(d.Primary.Confidence), len(d.Entities), d.Relevance, d.URL)
		},
	},
	{
		Name:     "impact",
		Overhead: 50,
		Render: func(d Data) string {
			var high, med []news.Entity
			for _, e := range d.Entities {
				switch {
				case e.Confidence >= 0.7:
					high = append(high, e)
				case e.Confidence >= 0.4:
					med = append(med, e)
				}
			}
			picked := append(firstN(high, 2), firstN(med, 1)...)
			rating := "WATCH"
			switch {
			case d.Relevance >= 80:
				rating = "STRONG"
			case d.Relevance >= 60:
				rating = "MODERATE"
			}
			return fmt.Sprintf("📊 %s IMPACT\n\n%s\n\nTickers: %s\nAnalysis score: %d/100\n\n%s",
				rating, d.Title, tags(picked, " ", tag), d.Relevance, d.URL)
		},
	},
	{
		Name:     "sentiment",
		Overhead: 50,
		Render: func(d Data) string {
			mood := "🟢 BULLISH WATCH"
			if d.Trend == news.TrendBearish {
				mood = "🔴 BEARISH WATCH"
			}
			return fmt.Sprintf("%s\n\n%s\n\nWatching: %s\nRelevance: %d\n\n%s",
				mood, d.Title, tags(firstN(d.Entities, 4), " ", tag), d.Relevance, d.URL)
		},
	},
	{
		Name:     "position",
		Overhead: 60,
		Render: func(d Data) string {
			supporting := ""
			if len(d.Entities) > 1 {
				supporting = tags(firstN(d.Entities[1:], 2), ", ", func(e news.Entity) string {
					return fmt.Sprintf("$%s (%d%%)", e.Label, pct(e.Confidence))
				})
			}
			return fmt.Sprintf("⚠️ POSITION WATCH\n\n%s\n\nLead: %s\nSecondary: %s\n\n%s",
				d.Title, tagPct(d.Primary), supporting, d.URL)
		},
	},
	{
		Name:     "signal",
		Overhead: 50,
		Render: func(d Data) string {
			var sum float64
			for _, e := range d.Entities {
				sum += e.Confidence
			}
			avg := 0
			if len(d.Entities) > 0 {
				avg = pct(sum / float64(len(d.Entities)))
			}
			return fmt.Sprintf("📡 SIGNAL: %s\n\n%s\n\n%s\nAvg confidence: %d%% | Score: %d\n\n%s",
				trendUpper(d.Trend), d.Title, tags(d.Entities, " ", tag), avg, d.Relevance, d.URL)
		},
	},
}
