package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/tickerfeed/internal/logger"
	"github.com/deusflow/tickerfeed/internal/news"
	"github.com/deusflow/tickerfeed/internal/ratelimit"
)

func TestBatches(t *testing.T) {
	items := make([]int, 23)
	got := Batches(items, 10)
	require.Len(t, got, 3)
	assert.Len(t, got[0], 10)
	assert.Len(t, got[2], 3)

	assert.Empty(t, Batches([]int{}, 10))
	assert.Len(t, Batches([]int{1, 2}, 0), 2)
}

func TestTradableEntities(t *testing.T) {
	got := TradableEntities([]news.Entity{
		{Label: "aapl", Confidence: 0.9},
		{Label: "UNKNOWN", Confidence: 0.5},
		{Label: "AAPL", Confidence: 0.3},
		{Label: "", Confidence: 0.2},
		{Label: "MSFT", Confidence: 0.1},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "AAPL", got[0].Label)
	assert.Equal(t, 0.9, got[0].Confidence)
	assert.Equal(t, "MSFT", got[1].Label)
}

// setupTestDB connects to TEST_DATABASE_URL or skips.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Connect(ctx, dbURL, logger.Discard())
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to DB: %v", err)
	}
	return db
}

func TestSaveArticles_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	suffix := uuid.NewString()
	var articles []*news.Article
	for i := 0; i < 12; i++ {
		articles = append(articles, &news.Article{
			ID:          uuid.NewString()[:8],
			SourceID:    "test",
			Title:       "Test article",
			URL:         "https://example.com/" + suffix + "/" + uuid.NewString(),
			Relevance:   42,
			Keywords:    []string{"earnings"},
			PublishedAt: time.Now().UTC(),
			Trend:       news.TrendBullish,
			Entities:    []news.Entity{{Label: "TSTX", Name: "Test Corp", Confidence: 0.8}},
		})
	}

	saved, err := db.SaveArticles(ctx, uuid.New(), articles)
	require.NoError(t, err)
	assert.Equal(t, 12, saved)

	// Re-saving the same URLs upserts instead of failing.
	saved, err = db.SaveArticles(ctx, uuid.New(), articles[:3])
	require.NoError(t, err)
	assert.Equal(t, 3, saved)

	require.NoError(t, db.LogScrape(ctx, uuid.New(), "test", ScrapePartial, []string{"feed timeout"}))
}

func TestQuota_Integration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	month := "1999-" + time.Now().Format("01")
	_, err := db.pool.Exec(ctx, `DELETE FROM post_quota WHERE month = $1`, month)
	require.NoError(t, err)

	u, err := db.LoadQuota(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Usage{}, u)

	want := ratelimit.Usage{Month: month, Sent: 5, Day: month + "-01", DailySent: 2}
	require.NoError(t, db.SaveQuota(ctx, want))
	got, err := db.LoadQuota(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
