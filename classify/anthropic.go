package classify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"yashubustudio/orgtrends/mentions"
)

// AnthropicConfig selects a Claude model.
type AnthropicConfig struct {
	APIKey         string        `json:"-" mapstructure:"api_key" yaml:"-"`
	Model          string        `json:"model" mapstructure:"model" yaml:"model"`
	MaxRetries     int           `json:"maxRetries" mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `json:"initialBackoff" mapstructure:"initial_backoff" yaml:"initial_backoff"`
	// BaseURL overrides the API endpoint.
	BaseURL string `json:"baseUrl,omitempty" mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicClassifier asks Claude for entities, retrying rate limits and server errors.
type AnthropicClassifier struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicClassifier creates a client for the Messages API.
func NewAnthropicClassifier(cfg AnthropicConfig) (*AnthropicClassifier, error) {
	if cfg.APIKey == "" {
		return nil, unavailable("anthropic backend needs ANTHROPIC_API_KEY")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &AnthropicClassifier{
		client:         anthropic.NewClient(opts...),
		model:          anthropic.Model(cfg.Model),
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
	}, nil
}

// ID implements Backend.
func (a *AnthropicClassifier) ID() string { return "anthropic:" + string(a.model) }

// Close implements Backend.
func (a *AnthropicClassifier) Close() error { return nil }

// Classify implements mentions.EntityClassifier.
func (a *AnthropicClassifier) Classify(ctx context.Context, text string) ([]mentions.Span, error) {
	return classifyWithLLM(ctx, 0, text, a.callWithRetry)
}

func (a *AnthropicClassifier) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := a.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := a.client.Messages.New(ctx, params)
		if err == nil {
			for _, block := range message.Content {
				if block.Type == "text" {
					return block.Text, nil
				}
			}
			return "", unavailable("anthropic response has no text block")
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", unavailableErr("anthropic messages", err)
		}
	}
	return "", fmt.Errorf("anthropic messages failed after %d attempts: %w: %w",
		a.maxRetries+1, mentions.ErrClassifierUnavailable, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
