package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"yashubustudio/orgtrends/mentions"
)

// OllamaConfig selects a local Ollama model.
type OllamaConfig struct {
	// Host overrides OLLAMA_HOST, e.g. http://127.0.0.1:11434.
	Host    string        `json:"host" mapstructure:"host" yaml:"host"`
	Model   string        `json:"model" mapstructure:"model" yaml:"model"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout" yaml:"timeout"`
}

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "llama3.2:3b"

// OllamaClassifier asks a local Ollama model for entities in JSON mode.
type OllamaClassifier struct {
	client  *api.Client
	model   string
	timeout time.Duration
}

// NewOllamaClassifier creates a client. It does not contact the server; use Available for that.
func NewOllamaClassifier(cfg OllamaConfig) (*OllamaClassifier, error) {
	var client *api.Client
	if strings.TrimSpace(cfg.Host) != "" {
		u, err := url.Parse(cfg.Host)
		if err != nil {
			return nil, unavailableErr("parse ollama host", err)
		}
		client = api.NewClient(u, http.DefaultClient)
	} else {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, unavailableErr("create ollama client", err)
		}
		client = c
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLLMTimeout
	}
	return &OllamaClassifier{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// ID implements Backend.
func (o *OllamaClassifier) ID() string { return "ollama:" + o.model }

// Close implements Backend.
func (o *OllamaClassifier) Close() error { return nil }

// Available checks that the Ollama server answers.
func (o *OllamaClassifier) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := o.client.List(ctx)
	return err == nil
}

// Classify implements mentions.EntityClassifier.
func (o *OllamaClassifier) Classify(ctx context.Context, text string) ([]mentions.Span, error) {
	return classifyWithLLM(ctx, o.timeout, text, o.generate)
}

func (o *OllamaClassifier) generate(ctx context.Context, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Format: json.RawMessage(`"json"`),
		Stream: &stream,
		Options: map[string]any{
			"temperature": 0,
		},
	}
	var out strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("ollama generate: %w", ctx.Err())
		}
		return "", unavailableErr("ollama generate", err)
	}
	return out.String(), nil
}
