package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/tickerfeed/internal/fetch"
	"github.com/deusflow/tickerfeed/internal/logger"
	"github.com/deusflow/tickerfeed/internal/rss"
)

type fakeFetcher map[string]string

func (f fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Result, error) {
	body, ok := f[url]
	if !ok {
		return nil, &fetch.Error{URL: url, Path: "fake", StatusCode: 404}
	}
	return &fetch.Result{Body: []byte(body), URL: url, StatusCode: 200, Path: "fake"}, nil
}

const listing = `<html><body>
<a href="/news/articles/one">One</a>
<a href="/news/articles/one#comments">One again</a>
<a href="https://www.example.com/news/articles/two">Two</a>
<a href="/news/articles/missing">Missing</a>
<a href="/about">About</a>
<a href="javascript:void(0)">JS</a>
</body></html>`

var para = strings.Repeat("Treasury yields rose as the Federal Reserve signalled patience. ", 2)

func page() rss.Page {
	return rss.Page{
		URL:             "https://www.example.com/markets",
		LinkSelector:    "a[href*='/news/articles/']",
		TitleSelector:   "h1",
		ContentSelector: "article p",
		MaxArticles:     10,
	}
}

func site() fakeFetcher {
	return fakeFetcher{
		"https://www.example.com/markets": listing,
		"https://www.example.com/news/articles/one": `<html><head><title>ignored</title></head><body>
			<h1> Fed holds rates </h1>
			<article><p>` + para + `</p><p>short</p><p>Subscribe to our newsletter for more market coverage today.</p></article>
		</body></html>`,
		"https://www.example.com/news/articles/two": `<html><head>
			<meta property="og:title" content="Oil slides">
		</head><body><article><p>` + para + `</p></article></body></html>`,
	}
}

func TestLinks(t *testing.T) {
	s := New(site(), logger.Discard())
	links, err := s.Links(context.Background(), page())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.example.com/news/articles/one",
		"https://www.example.com/news/articles/two",
		"https://www.example.com/news/articles/missing",
	}, links)

	p := page()
	p.MaxArticles = 1
	links, err = s.Links(context.Background(), p)
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestScrapeCollectsItemsAndErrors(t *testing.T) {
	s := New(site(), logger.Discard()).WithPause(0)
	items, errs := s.Scrape(context.Background(), page())

	require.Len(t, items, 2)
	assert.Equal(t, "Fed holds rates", items[0].Title)
	assert.Equal(t, strings.TrimSpace(para), items[0].Encoded)
	assert.Equal(t, "https://www.example.com/news/articles/one", items[0].Link)
	assert.Equal(t, "Oil slides", items[1].Title)

	require.Len(t, errs, 1)
	var fe *fetch.Error
	assert.True(t, errors.As(errs[0], &fe))
}

func TestScrapeListingFailure(t *testing.T) {
	s := New(fakeFetcher{}, logger.Discard())
	items, errs := s.Scrape(context.Background(), page())
	assert.Empty(t, items)
	assert.Len(t, errs, 1)
}

func TestArticleWithoutContent(t *testing.T) {
	f := fakeFetcher{"https://x.test/a": "<html><body><h1>t</h1></body></html>"}
	_, err := New(f, logger.Discard()).Article(context.Background(), "https://x.test/a", page())
	assert.Error(t, err)
}

func TestLimitParagraphs(t *testing.T) {
	ps := []string{strings.Repeat("a", 50), strings.Repeat("b", 50), strings.Repeat("c", 50)}
	assert.Equal(t, ps[0]+"\n\n"+ps[1], limitParagraphs(ps, 110))
	assert.Equal(t, ps[0], limitParagraphs(ps[:1], 10))
}
