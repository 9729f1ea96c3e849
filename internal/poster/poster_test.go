package poster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/tickerfeed/internal/logger"
	"github.com/deusflow/tickerfeed/internal/ratelimit"
)

func xCreds() XCredentials {
	return XCredentials{APIKey: "ck", APISecret: "cs", AccessToken: "at", AccessTokenSecret: "as"}
}

func TestXPosterSignsAndReturnsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "OAuth "), auth)
		assert.Contains(t, auth, `oauth_consumer_key="ck"`)
		assert.Contains(t, auth, `oauth_token="at"`)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello $NVDA", body["text"])

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1850","text":"hello $NVDA"}}`))
	}))
	defer srv.Close()

	p, err := NewXPoster(xCreds(), srv.URL, logger.Discard())
	require.NoError(t, err)

	id, err := p.Post(context.Background(), "hello $NVDA")
	require.NoError(t, err)
	assert.Equal(t, "1850", id)
}

func TestXPosterErrors(t *testing.T) {
	status := http.StatusTooManyRequests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"title":"nope"}`))
	}))
	defer srv.Close()

	p, err := NewXPoster(xCreds(), srv.URL, logger.Discard())
	require.NoError(t, err)

	_, err = p.Post(context.Background(), "x")
	assert.ErrorIs(t, err, ErrRateLimited)

	status = http.StatusForbidden
	_, err = p.Post(context.Background(), "x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "nope")
}

func TestXPosterRequiresCredentials(t *testing.T) {
	_, err := NewXPoster(XCredentials{APIKey: "k"}, "", nil)
	assert.Error(t, err)
	_, err = NewXPoster(XCredentials{APIKey: "k", APISecret: "s"}, "", nil)
	assert.Error(t, err)
}

func TestTelegramPosterRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "@chan", body["chat_id"])
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":77}}`))
	}))
	defer srv.Close()

	p, err := NewTelegramPoster("TOKEN", "@chan", srv.URL, logger.Discard())
	require.NoError(t, err)
	p.retry.Delay = time.Millisecond

	id, err := p.Post(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, "77", id)
	assert.EqualValues(t, 2, calls.Load())
}

func TestTelegramPosterStopsOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := NewTelegramPoster("TOKEN", "@chan", srv.URL, logger.Discard())
	require.NoError(t, err)
	p.retry.Delay = time.Millisecond

	_, err = p.Post(context.Background(), "text")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.EqualValues(t, 1, calls.Load())
}

type stubPoster struct {
	calls int
	err   error
}

func (s *stubPoster) Post(context.Context, string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return "id", nil
}

func TestLimitedEnforcesLengthAndQuota(t *testing.T) {
	ctx := context.Background()
	next := &stubPoster{}
	quota := ratelimit.NewPostQuota(10, 1, ratelimit.WithLogger(logger.Discard()))
	l := NewLimited(next, quota, logger.Discard())

	_, err := l.Post(ctx, strings.Repeat("a", 281))
	assert.ErrorIs(t, err, ErrTooLong)
	assert.Equal(t, 0, next.calls)

	id, err := l.Post(ctx, strings.Repeat("a", 280))
	require.NoError(t, err)
	assert.Equal(t, "id", id)

	_, err = l.Post(ctx, "again")
	assert.ErrorIs(t, err, ratelimit.ErrQuotaExceeded)
	assert.Equal(t, 1, next.calls)
}

func TestLimitedDoesNotCountFailures(t *testing.T) {
	ctx := context.Background()
	next := &stubPoster{err: errors.New("down")}
	quota := ratelimit.NewPostQuota(10, 1, ratelimit.WithLogger(logger.Discard()))
	l := NewLimited(next, quota, logger.Discard())

	_, err := l.Post(ctx, "a")
	require.Error(t, err)
	assert.Equal(t, 0, quota.GetStats()["daily_sent"])
}

func TestLogPoster(t *testing.T) {
	id, err := NewLogPoster(logger.Discard()).Post(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "dry-"))
}
