package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/tickerfeed/internal/news"
)

func testTable(t *testing.T) *Table {
	t.Helper()
	tbl, err := NewTable([]KeywordWeight{
		{Keyword: "tariff", Points: 10, Category: "highImpact"},
		{Keyword: "fed", Points: 5, Category: "economic"},
		{Keyword: "rate cut", Points: 5, Category: "economic"},
		{Keyword: "s&p 500", Points: 6, Category: "business"},
		{Keyword: "fed", Points: 1, Category: "general"},
	}, DefaultThresholds, TrendWords{
		Bullish: []string{"rally", "gain"},
		Bearish: []string{"crash", "fall"},
	})
	require.NoError(t, err)
	return tbl
}

func TestScoreWholeWordCaseInsensitive(t *testing.T) {
	tbl := testTable(t)

	r := tbl.Score("New TARIFF plan; tariffs and retariff do not count. Tariff again.")
	require.Len(t, r.Matches, 1)
	assert.Equal(t, "tariff", r.Matches[0].Keyword)
	assert.Equal(t, 2, r.Matches[0].Count)
	assert.Equal(t, 20, r.TotalPoints)
	assert.Equal(t, []string{"highImpact"}, r.Categories)
}

func TestScoreEscapesMetacharacters(t *testing.T) {
	tbl := testTable(t)
	r := tbl.Score("the s&p 500 closed higher; sxp 500 is noise")
	require.Len(t, r.Matches, 1)
	assert.Equal(t, 6, r.TotalPoints)
}

func TestScoreDuplicateKeywordAccumulates(t *testing.T) {
	tbl := testTable(t)

	r := tbl.Score("the fed said the fed will act")
	require.Len(t, r.Matches, 1)
	m := r.Matches[0]
	assert.Equal(t, "fed", m.Keyword)
	assert.Equal(t, "economic", m.Category, "first listing owns the category")
	assert.Equal(t, 4, m.Count)
	assert.Equal(t, 2*5+2*1, m.Points)
	assert.Equal(t, 12, r.TotalPoints)
	assert.Equal(t, 1, r.UniqueKeywordCount)
	assert.Equal(t, []string{"economic"}, r.Categories)
}

func TestScoreMultiWordPhrase(t *testing.T) {
	tbl := testTable(t)
	r := tbl.Score("markets cheer a rate cut --- fed")
	assert.ElementsMatch(t, []string{"fed", "rate cut"}, r.Keywords())
	assert.Equal(t, 5+5+1, r.TotalPoints)
}

func TestScoreBlankContent(t *testing.T) {
	tbl := testTable(t)
	for _, in := range []string{"", "   \n\t", "\u200b\ufeff"} {
		r := tbl.Score(in)
		assert.Zero(t, r.TotalPoints)
		assert.Empty(t, r.Matches)
		assert.False(t, tbl.Admit(r, SourceFeed))
	}
}

func TestScoreIgnoresZeroWidth(t *testing.T) {
	tbl := testTable(t)
	r := tbl.Score("tar\u200biff")
	assert.Equal(t, 10, r.TotalPoints)
}

func TestAdmitThresholds(t *testing.T) {
	tbl := testTable(t)

	// 10 + 6 = 16 points but only two distinct keywords.
	v := tbl.Evaluate("tariff s&p 500", SourceFeed)
	assert.Equal(t, 16, v.TotalPoints)
	assert.False(t, v.Admitted)

	// Three distinct keywords and 10+6+5 = 21 points.
	v = tbl.Evaluate("tariff hits s&p 500 after rate cut", SourceFeed)
	assert.Equal(t, 3, v.UniqueKeywordCount)
	assert.True(t, v.Admitted)

	// Page sources need far more.
	assert.False(t, tbl.Admit(v.Result, SourcePage))
}

func TestAdmitRequiresBothConditions(t *testing.T) {
	tbl := testTable(t)
	r := Result{TotalPoints: 100, UniqueKeywordCount: 2}
	assert.False(t, tbl.Admit(r, SourceFeed))
	r = Result{TotalPoints: 14, UniqueKeywordCount: 5}
	assert.False(t, tbl.Admit(r, SourceFeed))
	r = Result{TotalPoints: 15, UniqueKeywordCount: 3}
	assert.True(t, tbl.Admit(r, SourceFeed))
}

func TestRelevanceCapped(t *testing.T) {
	assert.Equal(t, 100, Result{TotalPoints: 250}.Relevance())
	assert.Equal(t, 42, Result{TotalPoints: 42}.Relevance())
}

func TestTrend(t *testing.T) {
	tbl := testTable(t)
	assert.Equal(t, news.TrendBearish, tbl.Trend("stocks crash and fall after a brief rally"))
	assert.Equal(t, news.TrendBullish, tbl.Trend("rally then crash"), "ties resolve bullish")
	assert.Equal(t, news.TrendBullish, tbl.Trend("nothing to see"))
	assert.Equal(t, news.TrendBullish, tbl.Trend("gains and rallying do not match, a gain does"))
}

func TestNewTableRejectsBadWeights(t *testing.T) {
	_, err := NewTable([]KeywordWeight{{Keyword: " ", Points: 1}}, DefaultThresholds, TrendWords{})
	require.Error(t, err)
	_, err = NewTable([]KeywordWeight{{Keyword: "x", Points: 0}}, DefaultThresholds, TrendWords{})
	require.Error(t, err)
}

func TestLoadEmbeddedTable(t *testing.T) {
	tbl, err := LoadTable("")
	require.NoError(t, err)
	assert.Greater(t, tbl.Len(), 400)
	assert.Equal(t, Threshold{MinimumScore: 15, RequiredKeywords: 3}, tbl.Threshold(SourceFeed))
	assert.Equal(t, Threshold{MinimumScore: 60, RequiredKeywords: 10}, tbl.Threshold(SourcePage))

	r := tbl.Score("impeachment inquiry opens as the federal reserve weighs an interest rate hike amid inflation fears")
	assert.Greater(t, r.TotalPoints, 15)
	assert.GreaterOrEqual(t, r.UniqueKeywordCount, 3)
	assert.Contains(t, r.Categories, "highImpact")
}

func TestParseTableDefaultsThresholds(t *testing.T) {
	tbl, err := ParseTable([]byte(`
categories:
  - name: general
    points: 1
    keywords: [market]
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds.Feed, tbl.Threshold(SourceFeed))

	_, err = ParseTable([]byte("categories: []\n"))
	require.Error(t, err)
}
