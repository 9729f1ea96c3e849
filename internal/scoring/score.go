package scoring

import (
	"regexp"
	"strings"

	"github.com/deusflow/tickerfeed/internal/news"
)

const maxRelevance = 100

var reInvisible = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)

type Match struct {
	Keyword  string
	Count    int
	Points   int // total contribution, count x weight
	Category string
}

type Result struct {
	TotalPoints        int
	Matches            []Match
	UniqueKeywordCount int
	Categories         []string
}

func (r Result) Keywords() []string {
	out := make([]string, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Keyword
	}
	return out
}

// Relevance is the total capped at 100.
func (r Result) Relevance() int {
	return min(r.TotalPoints, maxRelevance)
}

// Score counts whole-word matches of every keyword in content. A keyword
// listed more than once keeps one match entry whose count and points grow.
func (t *Table) Score(content string) Result {
	content = reInvisible.ReplaceAllString(content, "")
	if strings.TrimSpace(content) == "" {
		return Result{}
	}

	var res Result
	index := make(map[string]int)
	seenCategory := make(map[string]bool)

	for _, w := range t.weights {
		count := len(w.re.FindAllStringIndex(content, -1))
		if count == 0 {
			continue
		}
		contribution := count * w.Points
		res.TotalPoints += contribution

		if i, ok := index[w.Keyword]; ok {
			res.Matches[i].Count += count
			res.Matches[i].Points += contribution
			continue
		}
		index[w.Keyword] = len(res.Matches)
		res.Matches = append(res.Matches, Match{
			Keyword:  w.Keyword,
			Count:    count,
			Points:   contribution,
			Category: w.Category,
		})
		if !seenCategory[w.Category] {
			seenCategory[w.Category] = true
			res.Categories = append(res.Categories, w.Category)
		}
	}
	res.UniqueKeywordCount = len(res.Matches)
	return res
}

// Admit applies the source type's score and distinct-keyword thresholds.
func (t *Table) Admit(r Result, st SourceType) bool {
	th := t.Threshold(st)
	return r.TotalPoints > 0 &&
		r.TotalPoints >= th.MinimumScore &&
		r.UniqueKeywordCount >= th.RequiredKeywords
}

type Verdict struct {
	Result
	Admitted bool
}

func (t *Table) Evaluate(content string, st SourceType) Verdict {
	r := t.Score(content)
	return Verdict{Result: r, Admitted: t.Admit(r, st)}
}

// Trend labels text bearish only when bearish signals strictly outnumber
// bullish ones; ties and silence are bullish.
func (t *Table) Trend(text string) news.Trend {
	bull := countAll(t.bullish, text)
	bear := countAll(t.bearish, text)
	if bear > bull {
		return news.TrendBearish
	}
	return news.TrendBullish
}

func countAll(res []*regexp.Regexp, text string) int {
	n := 0
	for _, re := range res {
		n += len(re.FindAllStringIndex(text, -1))
	}
	return n
}
