package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/deusflow/tickerfeed/internal/retry"
)

const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramPoster sends plain-text messages to a chat or channel.
type TelegramPoster struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	retry   retry.RetryConfig
	log     *slog.Logger
}

func NewTelegramPoster(token, chatID, baseURL string, log *slog.Logger) (*TelegramPoster, error) {
	if token == "" || chatID == "" {
		return nil, errors.New("telegram token and chat id are required")
	}
	if baseURL == "" {
		baseURL = DefaultTelegramAPI
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("poster", "telegram")

	return &TelegramPoster{
		token:   token,
		chatID:  chatID,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry: retry.RetryConfig{
			MaxAttempts: 3,
			Delay:       2 * time.Second,
			Backoff:     true,
			Retryable:   telegramRetryable,
			OnRetry: func(attempt int, err error, wait time.Duration) {
				log.Warn("telegram send failed, retrying", "attempt", attempt, "wait", wait, "error", err)
			},
		},
		log: log,
	}, nil
}

func telegramRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return !errors.Is(err, ErrRateLimited)
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

func (p *TelegramPoster) Post(ctx context.Context, text string) (string, error) {
	var id string
	err := retry.WithRetry(ctx, p.retry, func() error {
		var err error
		id, err = p.sendOnce(ctx, text)
		return err
	})
	if err != nil {
		return "", err
	}
	p.log.Info("message sent", "message_id", id)
	return id, nil
}

func (p *TelegramPoster) sendOnce(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":                  p.chatID,
		"text":                     text,
		"disable_web_page_preview": false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", p.baseURL, p.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: telegram", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{Service: "telegram", StatusCode: resp.StatusCode, Body: readBody(resp.Body)}
	}

	var out telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if !out.OK {
		return "", fmt.Errorf("telegram rejected message: %s", out.Description)
	}
	return strconv.FormatInt(out.Result.MessageID, 10), nil
}
