package classify

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"yashubustudio/orgtrends/mentions"
)

// GeminiConfig selects a Gemini model.
type GeminiConfig struct {
	APIKey  string        `json:"-" mapstructure:"api_key" yaml:"-"`
	Model   string        `json:"model" mapstructure:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
	// BaseURL overrides the API endpoint.
	BaseURL string `json:"baseUrl,omitempty" mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClassifier asks Gemini for entities using structured JSON output.
type GeminiClassifier struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClassifier creates a Gemini API client.
func NewGeminiClassifier(ctx context.Context, cfg GeminiConfig) (*GeminiClassifier, error) {
	if cfg.APIKey == "" {
		return nil, unavailable("gemini backend needs GEMINI_API_KEY")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, unavailableErr("create gemini client", err)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLLMTimeout
	}
	return &GeminiClassifier{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// ID implements Backend.
func (g *GeminiClassifier) ID() string { return "gemini:" + g.model }

// Close implements Backend.
func (g *GeminiClassifier) Close() error { return nil }

// Classify implements mentions.EntityClassifier.
func (g *GeminiClassifier) Classify(ctx context.Context, text string) ([]mentions.Span, error) {
	return classifyWithLLM(ctx, g.timeout, text, g.generate)
}

func entitySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"entities": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"text":  {Type: genai.TypeString, Description: "entity text copied verbatim from the title"},
						"label": {Type: genai.TypeString, Enum: []string{"ORG", "PERSON", "LOCATION", "MISC"}},
					},
					Required: []string{"text", "label"},
				},
			},
		},
		Required: []string{"entities"},
	}
}

func (g *GeminiClassifier) generate(ctx context.Context, prompt string) (string, error) {
	content := genai.NewContentFromText(prompt, genai.RoleUser)
	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   entitySchema(),
		Temperature:      &temperature,
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{content}, config)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("gemini generate: %w", ctx.Err())
		}
		return "", unavailableErr("gemini generate", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", unavailable("gemini returned no candidates")
	}
	return resp.Text(), nil
}
