// Package scraper turns configured listing pages into feed-like items.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/deusflow/tickerfeed/internal/fetch"
	"github.com/deusflow/tickerfeed/internal/rss"
)

const (
	defaultMaxArticles = 10
	maxContentLen      = 1800
	minParagraphLen    = 30
)

// Fetcher is satisfied by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

type Scraper struct {
	fetcher Fetcher
	pause   time.Duration
	log     *slog.Logger
}

func New(f Fetcher, log *slog.Logger) *Scraper {
	if log == nil {
		log = slog.Default()
	}
	return &Scraper{fetcher: f, pause: 500 * time.Millisecond, log: log.With("component", "scraper")}
}

// WithPause sets the delay between article requests on one page.
func (s *Scraper) WithPause(d time.Duration) *Scraper {
	s.pause = d
	return s
}

// Scrape lists article links on page and extracts each article. Article
// failures are collected and do not stop the page.
func (s *Scraper) Scrape(ctx context.Context, page rss.Page) ([]rss.Item, []error) {
	links, err := s.Links(ctx, page)
	if err != nil {
		return nil, []error{err}
	}

	var (
		items []rss.Item
		errs  []error
	)
	for i, link := range links {
		if i > 0 && s.pause > 0 {
			select {
			case <-ctx.Done():
				return items, append(errs, ctx.Err())
			case <-time.After(s.pause):
			}
		}

		it, err := s.Article(ctx, link, page)
		if err != nil {
			s.log.Warn("can't extract article", "url", link, "error", err)
			errs = append(errs, err)
			continue
		}
		items = append(items, it)
	}
	return items, errs
}

// Links returns unique absolute article URLs found on the listing page.
func (s *Scraper) Links(ctx context.Context, page rss.Page) ([]string, error) {
	doc, base, err := s.document(ctx, page.URL)
	if err != nil {
		return nil, err
	}

	limit := page.MaxArticles
	if limit <= 0 {
		limit = defaultMaxArticles
	}

	seen := make(map[string]bool)
	var links []string
	doc.Find(page.LinkSelector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok {
			return true
		}
		abs, ok := resolve(base, href)
		if !ok || seen[abs] {
			return true
		}
		seen[abs] = true
		links = append(links, abs)
		return len(links) < limit
	})
	return links, nil
}

// Article fetches one article page and reduces it to an item.
func (s *Scraper) Article(ctx context.Context, link string, page rss.Page) (rss.Item, error) {
	doc, base, err := s.document(ctx, link)
	if err != nil {
		return rss.Item{}, err
	}

	title := extractTitle(doc, page.TitleSelector)
	content := extractContent(doc, page.ContentSelector)
	if content == "" {
		return rss.Item{}, fmt.Errorf("no content at %s", link)
	}

	return rss.Item{
		Link:    base.String(),
		Title:   title,
		Encoded: content,
	}, nil
}

func (s *Scraper) document(ctx context.Context, rawURL string) (*goquery.Document, *url.URL, error) {
	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing HTML of %s: %w", rawURL, err)
	}
	base, err := url.Parse(res.URL)
	if err != nil || res.URL == "" {
		base, err = url.Parse(rawURL)
		if err != nil {
			return nil, nil, err
		}
	}
	return doc, base, nil
}

func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}

func extractTitle(doc *goquery.Document, selector string) string {
	if selector != "" {
		if t := strings.TrimSpace(doc.Find(selector).First().Text()); t != "" {
			return t
		}
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	for _, sel := range []string{"h1", "title"} {
		if t := strings.TrimSpace(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

func extractContent(doc *goquery.Document, selector string) string {
	var paragraphs []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if len(text) >= minParagraphLen && !isJunk(text) {
			paragraphs = append(paragraphs, text)
		}
	})
	return limitParagraphs(paragraphs, maxContentLen)
}

var junkIndicators = []string{
	"cookie", "subscribe", "sign up", "newsletter", "advertisement",
	"all rights reserved", "read more", "follow us",
}

func isJunk(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range junkIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// limitParagraphs keeps whole paragraphs while the joined text stays under limit.
func limitParagraphs(paragraphs []string, limit int) string {
	var (
		kept  []string
		total int
	)
	for _, p := range paragraphs {
		if total+len(p) > limit && len(kept) > 0 {
			break
		}
		kept = append(kept, p)
		total += len(p) + 2
	}
	return strings.Join(kept, "\n\n")
}
