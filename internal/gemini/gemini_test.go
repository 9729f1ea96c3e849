package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/deusflow/tickerfeed/internal/logger"
)

type fakeGenerator struct {
	answers []string
	errs    []error
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.answers) {
		return f.answers[i], nil
	}
	return "", errors.New("no more answers")
}

func TestParseEntities(t *testing.T) {
	raw := "```json\n[" +
		`{"label":"$aapl","name":" Apple Inc ","confidence":0.4,"explanation":"supplier"},` +
		`{"label":"MSFT","name":"Microsoft","confidence":0.9,"explanation":"cloud"},` +
		`{"label":"","name":"nothing","confidence":0.8},` +
		`{"label":"BAD","confidence":1.7}` +
		"]\n```"

	got, err := ParseEntities(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "MSFT", got[0].Label)
	assert.Equal(t, "AAPL", got[1].Label)
	assert.Equal(t, "Apple Inc", got[1].Name)
}

func TestParseEntitiesWithProse(t *testing.T) {
	got, err := ParseEntities(`Sure! Here you go: [{"label":"UNKNOWN","name":"UNKNOWN","confidence":0.1}] hope it helps`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsUnknown())
}

func TestParseEntitiesErrors(t *testing.T) {
	_, err := ParseEntities("no array here")
	assert.Error(t, err)

	_, err = ParseEntities(`[{"label": 12}]`)
	assert.Error(t, err)
}

func TestClassifyRetriesRateLimits(t *testing.T) {
	gen := &fakeGenerator{
		errs:    []error{&googleapi.Error{Code: http.StatusTooManyRequests}},
		answers: []string{"", `[{"label":"XOM","name":"Exxon","confidence":0.7}]`},
	}
	c := NewWithGenerator(gen, 3, time.Millisecond, logger.Discard())

	got, err := c.Classify(context.Background(), "Oil jumps", "crude rallies")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "XOM", got[0].Label)
	assert.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[0], "Title: Oil jumps")
}

func TestClassifyStopsOnPermanentError(t *testing.T) {
	gen := &fakeGenerator{errs: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	c := NewWithGenerator(gen, 3, time.Millisecond, logger.Discard())

	_, err := c.Classify(context.Background(), "t", "c")
	require.Error(t, err)
	assert.Len(t, gen.prompts, 1)
}

func TestClassifyGivesUpAfterAttempts(t *testing.T) {
	busy := status.Error(codes.Unavailable, "overloaded")
	gen := &fakeGenerator{errs: []error{busy, busy, busy}}
	c := NewWithGenerator(gen, 2, time.Millisecond, logger.Discard())

	_, err := c.Classify(context.Background(), "t", "c")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.Len(t, gen.prompts, 2)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&googleapi.Error{Code: http.StatusServiceUnavailable}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusTooManyRequests})))
	assert.True(t, IsRetryable(status.Error(codes.ResourceExhausted, "quota")))
	assert.False(t, IsRetryable(&googleapi.Error{Code: http.StatusUnauthorized}))
	assert.False(t, IsRetryable(status.Error(codes.InvalidArgument, "bad")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "a b c", clip("  a\n b\t c "))

	long := strings.Repeat("word ", 2000)
	assert.LessOrEqual(t, len([]rune(clip(long))), maxContentRunes)
}
