package rss

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/tickerfeed/configs"
)

// Page is a listing page scraped with CSS selectors.
type Page struct {
	URL             string `yaml:"url" validate:"required,url"`
	LinkSelector    string `yaml:"link_selector" validate:"required"`
	TitleSelector   string `yaml:"title_selector"`
	ContentSelector string `yaml:"content_selector" validate:"required"`
	MaxArticles     int    `yaml:"max_articles" validate:"gte=0"`
}

// Source is one news origin. Preferred marks a source whose feeds are
// trusted over its pages: pages are only scraped when every feed failed.
type Source struct {
	ID          string   `yaml:"id" validate:"required"`
	Name        string   `yaml:"name" validate:"required"`
	BaseURL     string   `yaml:"base_url" validate:"omitempty,url"`
	Enabled     *bool    `yaml:"enabled"`
	Preferred   bool     `yaml:"preferred"`
	Feeds       []string `yaml:"feeds" validate:"dive,url"`
	ScrapePages bool     `yaml:"scrape_pages"`
	Pages       []Page   `yaml:"pages" validate:"dive"`
}

// IsEnabled defaults to true when the source does not say otherwise.
func (s Source) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ResolveLink makes a relative item link absolute against BaseURL.
func (s Source) ResolveLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" || s.BaseURL == "" {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil || ref.IsAbs() {
		return link
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}

func (s Source) HasFeeds() bool {
	return s.IsEnabled() && len(s.Feeds) > 0
}

func (s Source) HasPages() bool {
	return s.IsEnabled() && s.ScrapePages && len(s.Pages) > 0
}

// SourcesConfig is the YAML layout:
// sources:
//   - id: bbc
//     feeds: [https://...]
type SourcesConfig struct {
	Sources []Source `yaml:"sources" validate:"dive"`
}

var validate = validator.New()

// LoadSources reads the source list from path, or the embedded default when path is empty.
func LoadSources(path string) ([]Source, error) {
	data := configs.Sources
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read sources: %w", err)
		}
		data = b
	}
	return ParseSources(data)
}

func ParseSources(data []byte) ([]Source, error) {
	var cfg SourcesConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid sources: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if seen[s.ID] {
			return nil, fmt.Errorf("invalid sources: duplicate id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return cfg.Sources, nil
}
