package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
)

const DefaultXEndpoint = "https://api.twitter.com/2/tweets"

type XCredentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

// XPoster posts through the X v2 API, signing requests with OAuth 1.0a
// user context.
type XPoster struct {
	client   *http.Client
	endpoint string
	log      *slog.Logger
}

func NewXPoster(creds XCredentials, endpoint string, log *slog.Logger) (*XPoster, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, errors.New("missing X API credentials")
	}
	if creds.AccessToken == "" || creds.AccessTokenSecret == "" {
		return nil, errors.New("missing X access tokens")
	}
	if endpoint == "" {
		endpoint = DefaultXEndpoint
	}
	if log == nil {
		log = slog.Default()
	}

	cfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)
	base := &http.Client{Timeout: 30 * time.Second}
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)

	return &XPoster{
		client:   cfg.Client(ctx, token),
		endpoint: endpoint,
		log:      log.With("poster", "x"),
	}, nil
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (p *XPoster) Post(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to encode tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to post tweet: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: x reset at %s", ErrRateLimited, resp.Header.Get("x-rate-limit-reset"))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &APIError{Service: "x", StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var out tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode tweet response: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("tweet response carries no id")
	}
	p.log.Info("tweet sent", "id", out.Data.ID)
	return out.Data.ID, nil
}
