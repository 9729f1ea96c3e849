// Package scoring rates normalized article text against a weighted keyword
// taxonomy and decides whether it is material enough to publish.
package scoring

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/tickerfeed/configs"
)

type KeywordWeight struct {
	Keyword  string
	Points   int
	Category string
}

type SourceType int

const (
	SourceFeed SourceType = iota
	SourcePage
)

func (s SourceType) String() string {
	if s == SourcePage {
		return "page"
	}
	return "feed"
}

type Threshold struct {
	MinimumScore     int `yaml:"minimum_score"`
	RequiredKeywords int `yaml:"required_keywords"`
}

type Thresholds struct {
	Feed Threshold `yaml:"feed"`
	Page Threshold `yaml:"page"`
}

var DefaultThresholds = Thresholds{
	Feed: Threshold{MinimumScore: 15, RequiredKeywords: 3},
	Page: Threshold{MinimumScore: 60, RequiredKeywords: 10},
}

type TrendWords struct {
	Bullish []string `yaml:"bullish"`
	Bearish []string `yaml:"bearish"`
}

type compiledWeight struct {
	KeywordWeight
	re *regexp.Regexp
}

// Table is the immutable, compiled keyword taxonomy.
type Table struct {
	weights    []compiledWeight
	thresholds Thresholds
	bullish    []*regexp.Regexp
	bearish    []*regexp.Regexp
}

// wordPattern matches kw as a whole word, case-insensitively, with regex metacharacters escaped.
func wordPattern(kw string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(kw) + `\b`)
}

func NewTable(weights []KeywordWeight, thresholds Thresholds, trend TrendWords) (*Table, error) {
	t := &Table{thresholds: thresholds}

	for _, w := range weights {
		kw := strings.TrimSpace(w.Keyword)
		if kw == "" {
			return nil, fmt.Errorf("empty keyword in category %q", w.Category)
		}
		if w.Points <= 0 {
			return nil, fmt.Errorf("keyword %q: points must be positive", kw)
		}
		re, err := wordPattern(kw)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", kw, err)
		}
		w.Keyword = kw
		t.weights = append(t.weights, compiledWeight{KeywordWeight: w, re: re})
	}

	var err error
	if t.bullish, err = compileWords(trend.Bullish); err != nil {
		return nil, err
	}
	if t.bearish, err = compileWords(trend.Bearish); err != nil {
		return nil, err
	}
	return t, nil
}

func compileWords(words []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		re, err := wordPattern(strings.TrimSpace(w))
		if err != nil {
			return nil, fmt.Errorf("trend word %q: %w", w, err)
		}
		out = append(out, re)
	}
	return out, nil
}

type tableFile struct {
	Thresholds *Thresholds `yaml:"thresholds"`
	Categories []struct {
		Name     string   `yaml:"name"`
		Points   int      `yaml:"points"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"categories"`
	Trend TrendWords `yaml:"trend"`
}

// LoadTable reads the taxonomy from path, or the embedded default when path is empty.
func LoadTable(path string) (*Table, error) {
	data := configs.Keywords
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read keywords: %w", err)
		}
		data = b
	}
	return ParseTable(data)
}

func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, errors.New("decode keywords: no categories")
	}

	thresholds := DefaultThresholds
	if f.Thresholds != nil {
		thresholds = *f.Thresholds
	}

	var weights []KeywordWeight
	for _, c := range f.Categories {
		for _, kw := range c.Keywords {
			weights = append(weights, KeywordWeight{Keyword: kw, Points: c.Points, Category: c.Name})
		}
	}
	return NewTable(weights, thresholds, f.Trend)
}

func (t *Table) Len() int { return len(t.weights) }

func (t *Table) Threshold(st SourceType) Threshold {
	if st == SourcePage {
		return t.thresholds.Page
	}
	return t.thresholds.Feed
}
