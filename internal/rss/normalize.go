package rss

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"time"
)

var (
	reScript    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	reStyle     = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)
	reTags      = regexp.MustCompile(`<[^>]*>`)
	reTagShaped = regexp.MustCompile(`</?[a-zA-Z][^<>]*>`)
	reSpaces    = regexp.MustCompile(`\s+`)
	reInvisible = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}]`)

	entities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
)

const fieldSeparator = " --- "

// StripHTML drops script and style blocks and all tags, decodes the five
// common entities and collapses whitespace. Markup that only appears once
// decoded (escaped HTML in a description) is stripped as well; a bare "<" or
// ">" in prose is kept.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	s = dropBlocks(s)
	s = reTags.ReplaceAllString(s, " ")
	s = entities.Replace(s)
	s = dropBlocks(s)
	s = reTagShaped.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func dropBlocks(s string) string {
	s = reScript.ReplaceAllString(s, " ")
	return reStyle.ReplaceAllString(s, " ")
}

// RemoveInvisible strips zero-width characters that break word boundaries.
func RemoveInvisible(s string) string {
	return reInvisible.ReplaceAllString(s, "")
}

// Normalize flattens an item into the lower-case text the scorer reads.
func Normalize(it Item) string {
	parts := []string{
		StripHTML(it.Title),
		StripHTML(it.Description),
		StripHTML(it.Encoded),
		strings.Join(it.Categories, ", "),
	}
	text := strings.Join(parts, fieldSeparator)
	text = RemoveInvisible(text)
	return strings.ToLower(strings.TrimSpace(text))
}

// Identity is the item's dedup key: sha1 of guid, else of link|publishedISO.
func Identity(it Item) string {
	sum := sha1.Sum([]byte(identityHint(it)))
	return hex.EncodeToString(sum[:])
}

func identityHint(it Item) string {
	if it.GUID != "" {
		return it.GUID
	}
	if it.Published == nil {
		return it.Link
	}
	return it.Link + "|" + it.Published.UTC().Format("2006-01-02T15:04:05.000Z")
}

// PublishedOr returns the publish time, or fallback when the item has none.
func (it Item) PublishedOr(fallback time.Time) time.Time {
	if it.Published == nil {
		return fallback
	}
	return *it.Published
}
