package rss

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Item is a feed entry reduced to the fields the pipeline reads.
type Item struct {
	GUID        string
	Link        string
	Title       string
	Description string // summary or snippet, may contain markup
	Encoded     string // full body (content:encoded), may contain markup
	Categories  []string
	Published   *time.Time
}

// Parse decodes an RSS, Atom or JSON feed document.
func Parse(body []byte) ([]Item, error) {
	parser := gofeed.NewParser()
	feed, err := parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		items = append(items, fromGofeed(it))
	}
	return items, nil
}

func fromGofeed(it *gofeed.Item) Item {
	published := it.PublishedParsed
	if published == nil {
		published = it.UpdatedParsed
	}

	var cats []string
	for _, c := range it.Categories {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}

	return Item{
		GUID:        strings.TrimSpace(it.GUID),
		Link:        strings.TrimSpace(it.Link),
		Title:       strings.TrimSpace(it.Title),
		Description: it.Description,
		Encoded:     it.Content,
		Categories:  cats,
		Published:   published,
	}
}
