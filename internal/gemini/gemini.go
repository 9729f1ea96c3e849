package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/deusflow/tickerfeed/internal/news"
	"github.com/deusflow/tickerfeed/internal/retry"
)

const (
	DefaultModel = "gemini-2.5-flash"

	temperature     = 0.2
	maxContentRunes = 6000
)

// Generator sends one prompt and returns the raw text answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type genaiGenerator struct {
	client *genai.Client
	model  string
}

func (g *genaiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates in response")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", errors.New("no content in response")
	}

	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text parts in response")
	}
	return b.String(), nil
}

// Client labels articles with the listed companies they are likely to move.
type Client struct {
	gen    Generator
	closer func() error
	retry  retry.RetryConfig
	log    *slog.Logger
}

func NewClient(ctx context.Context, apiKey, model string, attempts int, log *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := NewWithGenerator(&genaiGenerator{client: client, model: model}, attempts, 2*time.Second, log)
	c.closer = client.Close
	return c, nil
}

// NewWithGenerator wires any Generator; baseDelay doubles after each retry.
func NewWithGenerator(gen Generator, attempts int, baseDelay time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "gemini")
	return &Client{
		gen: gen,
		retry: retry.RetryConfig{
			MaxAttempts: max(attempts, 1),
			Delay:       baseDelay,
			Backoff:     true,
			Retryable:   IsRetryable,
			OnRetry: func(attempt int, err error, wait time.Duration) {
				log.Warn("classifier busy, backing off", "attempt", attempt, "wait", wait, "error", err)
			},
		},
		log: log,
	}
}

func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer()
	}
	return nil
}

// Classify returns entity labels ordered by confidence, highest first.
func (c *Client) Classify(ctx context.Context, title, content string) ([]news.Entity, error) {
	prompt := buildPrompt(title, clip(content))

	var raw string
	err := retry.WithRetry(ctx, c.retry, func() error {
		out, err := c.gen.Generate(ctx, prompt)
		if err != nil {
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	entities, err := ParseEntities(raw)
	if err != nil {
		c.log.Debug("unparseable classifier answer", "raw", raw)
		return nil, fmt.Errorf("classify: %w", err)
	}
	return entities, nil
}

// IsRetryable is true for rate limiting and temporary unavailability.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return retryableHTTP(gerr.Code)
	}
	var aerr *apierror.APIError
	if errors.As(err, &aerr) {
		if retryableHTTP(aerr.HTTPCode()) {
			return true
		}
		if st := aerr.GRPCStatus(); st != nil {
			return retryableGRPC(st.Code())
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		return retryableGRPC(st.Code())
	}
	return false
}

func retryableHTTP(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

func retryableGRPC(code codes.Code) bool {
	return code == codes.ResourceExhausted || code == codes.Unavailable
}

// clip squashes whitespace and caps content length, preferring a sentence end.
func clip(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= maxContentRunes {
		return content
	}
	runes := []rune(content)
	trimmed := string(runes[:maxContentRunes])
	if idx := strings.LastIndex(trimmed, ". "); idx > 1200 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed
}

func buildPrompt(title, content string) string {
	return fmt.Sprintf(`You map news to US-listed equities.

Read the article below and list the publicly traded US companies whose share
price it is most likely to move, directly or through their sector.

ARTICLE
Title: %s
Body: %s

RULES
- Use the primary US ticker symbol as "label" (for example "AAPL").
- "name" is the company name, "confidence" a number from 0 to 1, and
  "explanation" one short sentence on why the article matters for it.
- List at most 5 companies, most relevant first.
- If no listed company is clearly affected, answer with a single entry:
  {"label": "UNKNOWN", "name": "UNKNOWN", "confidence": 0.1, "explanation": "no tradable company identified"}

Answer with a JSON array only, no prose and no markdown.
`, title, content)
}
