package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/deusflow/tickerfeed/internal/dedup"
	"github.com/deusflow/tickerfeed/internal/news"
	"github.com/deusflow/tickerfeed/internal/rss"
	"github.com/deusflow/tickerfeed/internal/scoring"
	"github.com/deusflow/tickerfeed/internal/storage"
)

var errInvalidItem = errors.New("invalid item")

// Report summarises one cycle.
type Report struct {
	RunID      uuid.UUID     `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Sources    int           `json:"sources"`
	Endpoints  int           `json:"endpoints"`
	Failed     int           `json:"failed_endpoints"`
	Items      int           `json:"items"`
	Duplicates int           `json:"duplicates"`
	Rejected   int           `json:"rejected"`
	Admitted   int           `json:"admitted"`
	Posted     int           `json:"posted"`
	ItemErrors int           `json:"item_errors"`
	Persisted  int           `json:"persisted"`
	// PersistStatus is empty when nothing was persisted.
	PersistStatus storage.ScrapeStatus `json:"persist_status,omitempty"`

	admitted []*news.Article
}

// sourceRun collects the outcome of one source for the scrape log.
type sourceRun struct {
	endpoints int
	failed    int
	errs      []string
}

func (s *sourceRun) fail(err error) {
	s.errs = append(s.errs, err.Error())
}

func (s *sourceRun) status() storage.ScrapeStatus {
	switch {
	case len(s.errs) == 0:
		return storage.ScrapeSuccess
	case s.endpoints > 0 && s.failed == s.endpoints:
		return storage.ScrapeFailed
	default:
		return storage.ScrapePartial
	}
}

func (r *Runner) runCycle(ctx context.Context) *Report {
	rep := &Report{RunID: uuid.New(), StartedAt: r.now()}
	log := r.Logger.With("run_id", rep.RunID.String())
	log.Info("cycle started", "sources", len(r.sources))

	for _, src := range r.sources {
		if !src.HasFeeds() && !src.HasPages() {
			log.Debug("source has nothing to poll, skipping", "source", src.ID)
			continue
		}
		rep.Sources++
		sr := r.runSource(ctx, log, rep, src)

		if r.Repository != nil {
			if err := r.Repository.LogScrape(ctx, rep.RunID, src.ID, sr.status(), sr.errs); err != nil {
				log.Warn("failed to write scrape log", "source", src.ID, "error", err)
			}
		}
	}

	r.persist(ctx, log, rep)
	rep.admitted = nil

	rep.Duration = r.now().Sub(rep.StartedAt)
	r.Metrics.RecordCycle(rep.StartedAt, rep.Duration)
	switch {
	case rep.PersistStatus == storage.ScrapeFailed:
		r.Metrics.SetError("persistence failed")
	case rep.Endpoints > 0 && rep.Failed == rep.Endpoints:
		r.Metrics.SetError("all endpoints failed")
	}
	r.setLast(rep)

	log.Info("cycle finished",
		"duration", rep.Duration,
		"items", rep.Items,
		"duplicates", rep.Duplicates,
		"admitted", rep.Admitted,
		"posted", rep.Posted,
		"item_errors", rep.ItemErrors)
	return rep
}

func (r *Runner) runSource(ctx context.Context, log *slog.Logger, rep *Report, src rss.Source) *sourceRun {
	sr := &sourceRun{}
	log = log.With("source", src.ID)

	feedsOK := false
	if src.HasFeeds() {
		for _, feedURL := range src.Feeds {
			sr.endpoints++
			rep.Endpoints++
			if err := r.runFeed(ctx, log, rep, sr, src, feedURL); err != nil {
				sr.failed++
				rep.Failed++
				sr.fail(err)
				log.Warn("feed skipped", "url", feedURL, "error", err)
				continue
			}
			feedsOK = true
		}
	}

	if !src.HasPages() || r.Scraper == nil {
		return sr
	}
	// A source that prefers its feeds only falls back to pages when none of them worked.
	if src.Preferred && feedsOK {
		log.Debug("feeds preferred, pages not scraped")
		return sr
	}
	for _, page := range src.Pages {
		sr.endpoints++
		rep.Endpoints++
		items, errs := r.Scraper.Scrape(ctx, page)
		for _, err := range errs {
			sr.fail(err)
		}
		if len(items) == 0 && len(errs) > 0 {
			sr.failed++
			rep.Failed++
			log.Warn("page skipped", "url", page.URL, "error", errs[0])
			continue
		}
		if err := r.runItems(ctx, log, rep, sr, src, page.URL, items, scoring.SourcePage); err != nil {
			sr.failed++
			rep.Failed++
			sr.fail(err)
			log.Warn("page skipped", "url", page.URL, "error", err)
		}
	}
	return sr
}

func (r *Runner) runFeed(ctx context.Context, log *slog.Logger, rep *Report, sr *sourceRun, src rss.Source, feedURL string) error {
	res, err := r.Fetcher.Fetch(ctx, feedURL)
	if err != nil {
		r.Metrics.IncFeedsFailed()
		return err
	}
	items, err := rss.Parse(res.Body)
	if err != nil {
		r.Metrics.IncFeedsFailed()
		return err
	}
	r.Metrics.IncFeedsFetched()
	log.Debug("feed fetched", "url", feedURL, "path", res.Path, "items", len(items))
	return r.runItems(ctx, log, rep, sr, src, feedURL, items, scoring.SourceFeed)
}

// runItems walks the items of one endpoint. Only a dedup store failure on
// preparing the set aborts the endpoint; item failures are isolated.
func (r *Runner) runItems(ctx context.Context, log *slog.Logger, rep *Report, sr *sourceRun, src rss.Source, endpoint string, items []rss.Item, st scoring.SourceType) error {
	key := dedup.SourceKey(endpoint)
	if err := r.Gate.Prepare(ctx, key); err != nil {
		return err
	}

	rep.Items += len(items)
	r.Metrics.AddItemsSeen(len(items))

	for _, it := range items {
		if err := r.runItem(ctx, log, rep, src, endpoint, key, it, st); err != nil {
			rep.ItemErrors++
			r.Metrics.IncItemErrors()
			sr.fail(err)
			log.Warn("item failed", "url", it.Link, "error", err)
		}
	}
	return nil
}

func (r *Runner) runItem(ctx context.Context, log *slog.Logger, rep *Report, src rss.Source, endpoint, key string, it rss.Item, st scoring.SourceType) error {
	it.Link = src.ResolveLink(it.Link)
	if it.Link == "" {
		return fmt.Errorf("%w: no link (title %q)", errInvalidItem, it.Title)
	}

	id := rss.Identity(it)
	seen, err := r.Gate.Seen(ctx, key, id)
	if err != nil {
		return err
	}
	if seen {
		rep.Duplicates++
		r.Metrics.IncDuplicatesFiltered()
		return nil
	}

	content := rss.Normalize(it)
	verdict := r.Table.Evaluate(content, st)
	if !verdict.Admitted {
		rep.Rejected++
		r.Metrics.IncItemsRejected()
		log.Debug("below threshold", "url", it.Link, "points", verdict.TotalPoints, "keywords", verdict.UniqueKeywordCount)
		return nil
	}

	if err := r.Gate.MarkSeen(ctx, key, id); err != nil {
		return err
	}
	rep.Admitted++
	r.Metrics.IncItemsAdmitted()

	now := r.now()
	a := &news.Article{
		ID:          id,
		SourceID:    src.ID,
		FeedURL:     endpoint,
		Title:       rss.StripHTML(it.Title),
		Description: rss.StripHTML(it.Description),
		URL:         it.Link,
		Content:     content,
		PublishedAt: it.PublishedOr(now),
		ScrapedAt:   now,
		Relevance:   verdict.Relevance(),
		Keywords:    verdict.Keywords(),
		Categories:  verdict.Categories,
	}
	log.Info("article admitted", "url", a.URL, "relevance", a.Relevance, "keywords", len(a.Keywords))

	entities, err := r.Classifier.Classify(ctx, a.Title, a.Content)
	if err != nil {
		r.Metrics.IncClassifyFailures()
		return err
	}
	a.Entities = entities
	a.Trend = r.Table.Trend(content)
	rep.admitted = append(rep.admitted, a)

	if !a.Tradable() {
		r.Metrics.IncUntradable()
		log.Info("no tradable entity, not posting", "url", a.URL)
		return nil
	}

	text, ok := r.Composer.Compose(a)
	if !ok {
		r.Metrics.IncUntradable()
		log.Info("composer declined article", "url", a.URL)
		return nil
	}

	postID, err := r.Poster.Post(ctx, text)
	if err != nil {
		r.Metrics.IncPostsFailed()
		return fmt.Errorf("post: %w", err)
	}
	rep.Posted++
	r.Metrics.IncPostsSent()
	log.Info("posted", "url", a.URL, "post_id", postID, "trend", a.Trend)

	if err := r.sleep(ctx, r.postDelay); err != nil {
		log.Debug("post delay interrupted", "error", err)
	}
	return nil
}

func (r *Runner) persist(ctx context.Context, log *slog.Logger, rep *Report) {
	if r.Repository == nil || len(rep.admitted) == 0 {
		return
	}
	saved, err := r.Repository.SaveArticles(ctx, rep.RunID, rep.admitted)
	rep.Persisted = saved
	switch {
	case err == nil:
		rep.PersistStatus = storage.ScrapeSuccess
	case saved > 0:
		rep.PersistStatus = storage.ScrapePartial
		log.Error("persistence partially failed", "saved", saved, "total", len(rep.admitted), "error", err)
	default:
		rep.PersistStatus = storage.ScrapeFailed
		log.Error("persistence failed", "total", len(rep.admitted), "error", err)
	}
}
