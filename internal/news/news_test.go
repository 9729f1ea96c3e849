package news

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryEntityPicksHighestConfidence(t *testing.T) {
	a := &Article{Entities: []Entity{
		{Label: "MSFT", Confidence: 0.4},
		{Label: "NVDA", Confidence: 0.9},
		{Label: "AMD", Confidence: 0.9},
	}}
	p, ok := a.PrimaryEntity()
	assert.True(t, ok)
	assert.Equal(t, "NVDA", p.Label)
	assert.True(t, a.Tradable())
}

func TestTradable(t *testing.T) {
	assert.False(t, (&Article{}).Tradable())
	assert.False(t, (&Article{Entities: []Entity{{Label: UnknownLabel, Confidence: 0.1}}}).Tradable())
}
