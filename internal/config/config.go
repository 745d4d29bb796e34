// Package config loads orgtrends settings from defaults, a config file, .env and the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"yashubustudio/orgtrends/classify"
	"yashubustudio/orgtrends/internal/logging"
	"yashubustudio/orgtrends/internal/observability"
	"yashubustudio/orgtrends/mentions"
	"yashubustudio/orgtrends/render"
	"yashubustudio/orgtrends/source"
)

// EnvPrefix prefixes every environment override, e.g. ORGTRENDS_PIPELINE_TOP_N.
const EnvPrefix = "ORGTRENDS"

// DefaultFileName is looked up in the working directory and the user config directory.
const DefaultFileName = "orgtrends.yaml"

// Source names.
const (
	SourceReddit = "reddit"
	SourceFile   = "file"
)

// Sources lists every accepted source name.
var Sources = []string{SourceReddit, SourceFile}

// Settings is the complete application configuration.
type Settings struct {
	Pipeline  mentions.Config          `json:"pipeline" mapstructure:"pipeline" yaml:"pipeline"`
	Source    string                   `json:"source" mapstructure:"source" yaml:"source"`
	Backend   string                   `json:"backend" mapstructure:"backend" yaml:"backend"`
	Reddit    source.RedditConfig      `json:"reddit" mapstructure:"reddit" yaml:"reddit"`
	File      FileSettings             `json:"file" mapstructure:"file" yaml:"file"`
	Gazetteer GazetteerSettings        `json:"gazetteer" mapstructure:"gazetteer" yaml:"gazetteer"`
	ORT       classify.ORTConfig       `json:"ort" mapstructure:"ort" yaml:"ort"`
	Ollama    classify.OllamaConfig    `json:"ollama" mapstructure:"ollama" yaml:"ollama"`
	Gemini    classify.GeminiConfig    `json:"gemini" mapstructure:"gemini" yaml:"gemini"`
	Anthropic classify.AnthropicConfig `json:"anthropic" mapstructure:"anthropic" yaml:"anthropic"`
	Cache     CacheSettings            `json:"cache" mapstructure:"cache" yaml:"cache"`
	Render    RenderSettings           `json:"render" mapstructure:"render" yaml:"render"`
	Logging   logging.Config           `json:"logging" mapstructure:"logging" yaml:"logging"`
	Tracing   observability.Config     `json:"tracing" mapstructure:"tracing" yaml:"tracing"`
	Server    ServerSettings           `json:"server" mapstructure:"server" yaml:"server"`
}

// FileSettings points the file source at a records file.
type FileSettings struct {
	Path               string `json:"path" mapstructure:"path" yaml:"path"`
	source.FileOptions `mapstructure:",squash" yaml:",inline"`
}

// GazetteerSettings configures the dictionary backend. An empty Path uses the built-in entries.
type GazetteerSettings struct {
	Path     string `json:"path" mapstructure:"path" yaml:"path"`
	FoldCase bool   `json:"foldCase" mapstructure:"fold_case" yaml:"fold_case"`
}

// CacheSettings wraps the selected backend in a classification cache.
type CacheSettings struct {
	Enabled              bool `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	classify.CacheConfig `mapstructure:",squash" yaml:",inline"`
}

// RenderSettings selects the output format and destination.
type RenderSettings struct {
	Format string `json:"format" mapstructure:"format" yaml:"format"`
	// Output is a file path; empty writes to stdout.
	Output         string `json:"output" mapstructure:"output" yaml:"output"`
	render.Options `mapstructure:",squash" yaml:",inline"`
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Addr    string `json:"addr" mapstructure:"addr" yaml:"addr"`
	Metrics bool   `json:"metrics" mapstructure:"metrics" yaml:"metrics"`
	// MaxRecords bounds the body of POST /v1/analyze.
	MaxRecords int `json:"maxRecords" mapstructure:"max_records" yaml:"max_records"`
}

// Default returns the settings used when nothing is configured.
func Default() Settings {
	reddit := source.RedditConfig{}
	reddit.ApplyDefaults()
	return Settings{
		Pipeline: mentions.DefaultConfig(),
		Source:   SourceReddit,
		Backend:  classify.BackendGazetteer,
		Reddit:   reddit,
		ORT: classify.ORTConfig{
			ModelPath:     "./models/bert-base-NER/model.onnx",
			TokenizerPath: "./models/bert-base-NER/tokenizer.json",
			MaxSeqLen:     128,
		},
		Ollama:    classify.OllamaConfig{Model: classify.DefaultOllamaModel, Timeout: 30 * time.Second},
		Gemini:    classify.GeminiConfig{Model: classify.DefaultGeminiModel, Timeout: 30 * time.Second},
		Anthropic: classify.AnthropicConfig{Model: classify.DefaultAnthropicModel, MaxRetries: 3, InitialBackoff: time.Second},
		Cache:     CacheSettings{Enabled: true, CacheConfig: classify.CacheConfig{TTL: time.Hour}},
		Render: RenderSettings{
			Format: render.FormatTerminal,
			Options: render.Options{
				Title:       "Most mentioned companies",
				BarWidth:    render.DefaultBarWidth,
				ImageWidth:  render.DefaultImageWidth,
				ImageHeight: render.DefaultImageHeight,
			},
		},
		Logging: logging.DefaultConfig(),
		Tracing: observability.DefaultConfig(),
		Server:  ServerSettings{Addr: ":8080", Metrics: true, MaxRecords: 5000},
	}
}

// Validate rejects settings no run could succeed with.
func (s Settings) Validate() error {
	if err := s.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if !slices.Contains(Sources, s.Source) {
		return fmt.Errorf("unknown source %q (want %s)", s.Source, strings.Join(Sources, ", "))
	}
	if !slices.Contains(classify.Backends, s.Backend) {
		return fmt.Errorf("unknown backend %q (want %s)", s.Backend, strings.Join(classify.Backends, ", "))
	}
	if !slices.Contains(render.Formats, s.Render.Format) {
		return fmt.Errorf("unknown render format %q (want %s)", s.Render.Format, strings.Join(render.Formats, ", "))
	}
	if s.Server.MaxRecords < 0 {
		return fmt.Errorf("server max_records must not be negative: %d", s.Server.MaxRecords)
	}
	if _, err := logging.ParseLevel(s.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is an explicit path; it must exist.
	ConfigFile string
	// EnvFile defaults to ".env" in the working directory; a missing file is ignored.
	EnvFile string
}

// Load merges defaults, the config file, .env and ORGTRENDS_* variables, in increasing
// precedence. It returns the settings and the config file used, if any.
func Load(opts LoadOptions) (Settings, string, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, "", fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v, Default())

	used := opts.ConfigFile
	if used == "" {
		used = findConfigFile()
	}
	if used != "" {
		v.SetConfigFile(used)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, "", fmt.Errorf("read config %s: %w", used, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Conventional credential variables, checked after the prefixed form.
	_ = v.BindEnv("reddit.client_id", EnvPrefix+"_REDDIT_CLIENT_ID", "REDDIT_CLIENT_ID")
	_ = v.BindEnv("reddit.client_secret", EnvPrefix+"_REDDIT_CLIENT_SECRET", "REDDIT_CLIENT_SECRET")
	_ = v.BindEnv("reddit.user_agent", EnvPrefix+"_REDDIT_USER_AGENT", "REDDIT_USER_AGENT")
	_ = v.BindEnv("gemini.api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	_ = v.BindEnv("anthropic.api_key", EnvPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("ollama.host", EnvPrefix+"_OLLAMA_HOST", "OLLAMA_HOST")

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, used, fmt.Errorf("decode config: %w", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, used, fmt.Errorf("invalid config: %w", err)
	}
	return s, used, nil
}

func (s *Settings) normalize() {
	s.Source = strings.ToLower(strings.TrimSpace(s.Source))
	s.Backend = strings.ToLower(strings.TrimSpace(s.Backend))
	s.Render.Format = strings.ToLower(strings.TrimSpace(s.Render.Format))
	s.Pipeline.Fetch.Sort = mentions.SortOrder(strings.ToLower(strings.TrimSpace(string(s.Pipeline.Fetch.Sort))))
	s.Pipeline.ApplyDefaults()
	s.Reddit.ApplyDefaults()
}

func findConfigFile() string {
	candidates := []string{DefaultFileName, "orgtrends.yml", "orgtrends.json"}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "orgtrends", "config.yaml"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("pipeline.top_n", d.Pipeline.TopN)
	v.SetDefault("pipeline.category", d.Pipeline.Category)
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.noise_patterns", d.Pipeline.NoisePatterns)
	v.SetDefault("pipeline.fold_unicode", d.Pipeline.FoldUnicode)
	v.SetDefault("pipeline.fetch.limit", d.Pipeline.Fetch.Limit)
	v.SetDefault("pipeline.fetch.sort", string(d.Pipeline.Fetch.Sort))

	v.SetDefault("source", d.Source)
	v.SetDefault("backend", d.Backend)

	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("reddit.user_agent", d.Reddit.UserAgent)
	v.SetDefault("reddit.subreddit", d.Reddit.Subreddit)
	v.SetDefault("reddit.auth_url", d.Reddit.AuthURL)
	v.SetDefault("reddit.api_url", d.Reddit.APIURL)
	v.SetDefault("reddit.time_range", d.Reddit.TimeRange)
	v.SetDefault("reddit.timeout", d.Reddit.Timeout)

	v.SetDefault("file.path", "")
	v.SetDefault("file.format", "")
	v.SetDefault("file.include_body", false)
	for _, col := range []string{"id", "title", "text", "score", "url"} {
		v.SetDefault("file.columns."+col, "")
	}

	v.SetDefault("gazetteer.path", d.Gazetteer.Path)
	v.SetDefault("gazetteer.fold_case", d.Gazetteer.FoldCase)

	v.SetDefault("ort.ort_dll", d.ORT.OrtDLL)
	v.SetDefault("ort.model_path", d.ORT.ModelPath)
	v.SetDefault("ort.tokenizer_path", d.ORT.TokenizerPath)
	v.SetDefault("ort.labels_path", d.ORT.LabelsPath)
	v.SetDefault("ort.max_seq_len", d.ORT.MaxSeqLen)
	v.SetDefault("ort.model_id", d.ORT.ModelID)

	v.SetDefault("ollama.host", d.Ollama.Host)
	v.SetDefault("ollama.model", d.Ollama.Model)
	v.SetDefault("ollama.timeout", d.Ollama.Timeout)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", d.Gemini.Model)
	v.SetDefault("gemini.timeout", d.Gemini.Timeout)
	v.SetDefault("gemini.base_url", d.Gemini.BaseURL)

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.max_retries", d.Anthropic.MaxRetries)
	v.SetDefault("anthropic.initial_backoff", d.Anthropic.InitialBackoff)
	v.SetDefault("anthropic.base_url", d.Anthropic.BaseURL)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.dir", d.Cache.Dir)

	v.SetDefault("render.format", d.Render.Format)
	v.SetDefault("render.output", d.Render.Output)
	v.SetDefault("render.title", d.Render.Title)
	v.SetDefault("render.bar_width", d.Render.BarWidth)
	v.SetDefault("render.image_width", d.Render.ImageWidth)
	v.SetDefault("render.image_height", d.Render.ImageHeight)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("server.max_records", d.Server.MaxRecords)
}

// Save writes settings to path as YAML, or JSON for a .json path, using the same keys
// Load reads. The file is replaced atomically. Credentials are never written.
func Save(path string, s Settings) error {
	if path == "" {
		path = DefaultFileName
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		// Re-encode the YAML tree so both formats share the snake_case keys Load reads.
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
		if data, err = json.MarshalIndent(tree, "", "  "); err != nil {
			return fmt.Errorf("encode config: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
