// Package app wires settings into sources, classifiers, renderers and the pipeline service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"yashubustudio/orgtrends/classify"
	"yashubustudio/orgtrends/internal/config"
	"yashubustudio/orgtrends/internal/metrics"
	"yashubustudio/orgtrends/mentions"
	"yashubustudio/orgtrends/render"
	"yashubustudio/orgtrends/source"
)

// App is a fully wired pipeline.
type App struct {
	Settings   config.Settings
	Service    *mentions.Service
	Classifier classify.Backend
	Metrics    *metrics.PipelineMetrics
	Logger     *slog.Logger
	SourceName string
	// SourceDetail names what the source reads, such as "r/stocks" or a file path.
	SourceDetail string
	// SourceErr is set when the configured source could not be built. Run reports it
	// as ErrSourceUnavailable while Analyze keeps working.
	SourceErr error
}

// Option customizes New.
type Option func(*options)

type options struct {
	classifier mentions.EntityClassifier
	source     mentions.RecordSource
	registry   *prometheus.Registry
}

// WithClassifier replaces the configured backend.
func WithClassifier(c mentions.EntityClassifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithSource replaces the configured record source.
func WithSource(src mentions.RecordSource) Option {
	return func(o *options) { o.source = src }
}

// WithRegistry registers pipeline metrics with registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// New builds the classifier, source, metrics and service described by settings.
func New(ctx context.Context, s config.Settings, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{Settings: s, Logger: logger, SourceName: s.Source}
	if o.classifier != nil {
		a.Classifier = wrapBackend(o.classifier)
	} else {
		backend, err := BuildClassifier(ctx, s, logger)
		if err != nil {
			return nil, err
		}
		a.Classifier = backend
	}

	src := o.source
	if src == nil {
		built, err := BuildSource(s)
		if err != nil {
			logger.Warn("record source unavailable", "source", s.Source, "error", err)
			a.SourceErr = err
		} else {
			src = built
			a.SourceDetail = describeSource(built)
			logger.Info("record source ready", "source", s.Source, "detail", a.SourceDetail)
		}
	}

	svcOpts := []mentions.ServiceOption{mentions.WithSourceName(a.SourceName)}
	if o.registry != nil {
		m, err := metrics.NewPipelineMetrics(o.registry)
		if err != nil {
			_ = a.Classifier.Close()
			return nil, err
		}
		a.Metrics = m
		svcOpts = append(svcOpts, mentions.WithServiceObserver(m))
	}

	svc, err := mentions.NewService(src, a.Classifier, s.Pipeline, logger, svcOpts...)
	if err != nil {
		_ = a.Classifier.Close()
		return nil, err
	}
	a.Service = svc
	return a, nil
}

// Close releases the classifier.
func (a *App) Close() error {
	if a.Classifier == nil {
		return nil
	}
	return a.Classifier.Close()
}

// Run executes the pipeline against the configured source.
func (a *App) Run(ctx context.Context) (*mentions.Result, error) {
	if a.SourceErr != nil {
		return nil, a.SourceErr
	}
	return a.Service.Run(ctx)
}

// Config returns the pipeline configuration currently in effect.
func (a *App) Config() mentions.Config {
	return a.Service.Config()
}

// RunWith executes the pipeline against the configured source with a one-off configuration.
func (a *App) RunWith(ctx context.Context, cfg mentions.Config) (*mentions.Result, error) {
	if a.SourceErr != nil {
		return nil, a.SourceErr
	}
	return a.Service.RunWith(ctx, cfg)
}

// AnalyzeWith runs the pipeline over caller supplied records with a one-off configuration.
func (a *App) AnalyzeWith(ctx context.Context, records []mentions.RawRecord, cfg mentions.Config) (*mentions.Result, error) {
	return a.Service.AnalyzeWith(ctx, records, cfg)
}

// BuildClassifier creates the configured backend, wrapped in a cache when enabled.
func BuildClassifier(ctx context.Context, s config.Settings, logger *slog.Logger) (classify.Backend, error) {
	var (
		backend classify.Backend
		err     error
	)
	switch s.Backend {
	case classify.BackendGazetteer:
		backend, err = buildGazetteer(s.Gazetteer, logger)
	case classify.BackendORT:
		backend, err = classify.NewORTClassifier(s.ORT)
	case classify.BackendOllama:
		backend, err = buildOllama(ctx, s.Ollama)
	case classify.BackendGemini:
		backend, err = classify.NewGeminiClassifier(ctx, s.Gemini)
	case classify.BackendAnthropic:
		backend, err = classify.NewAnthropicClassifier(s.Anthropic)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", mentions.ErrClassifierUnavailable, s.Backend)
	}
	if err != nil {
		return nil, err
	}
	if ort, ok := backend.(*classify.ORTClassifier); ok {
		logger.Info("classifier ready", "backend", backend.ID(), "labels", ort.Labels())
	} else {
		logger.Info("classifier ready", "backend", backend.ID())
	}

	// Gazetteer lookups are not cached.
	if !s.Cache.Enabled || s.Backend == classify.BackendGazetteer {
		return backend, nil
	}
	cached, err := classify.NewCached(backend, backend.ID(), s.Cache.CacheConfig, classify.WithCacheLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return cached, nil
}

func buildOllama(ctx context.Context, cfg classify.OllamaConfig) (*classify.OllamaClassifier, error) {
	backend, err := classify.NewOllamaClassifier(cfg)
	if err != nil {
		return nil, err
	}
	if !backend.Available(ctx) {
		return nil, fmt.Errorf("%w: ollama server not reachable at %q", mentions.ErrClassifierUnavailable, cfg.Host)
	}
	return backend, nil
}

func buildGazetteer(s config.GazetteerSettings, logger *slog.Logger) (*classify.Gazetteer, error) {
	entries := classify.DefaultEntries()
	if s.Path != "" {
		loaded, err := classify.LoadEntries(s.Path)
		switch {
		case err == nil:
			entries = loaded
			logger.Info("gazetteer loaded", "path", s.Path, "entries", len(loaded))
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("gazetteer file not found, using built-in entries", "path", s.Path)
		default:
			return nil, fmt.Errorf("%w: load gazetteer %s: %w", mentions.ErrClassifierUnavailable, s.Path, err)
		}
	}
	return classify.NewGazetteer(entries, classify.WithFoldCase(s.FoldCase))
}

// BuildSource creates the configured record source.
func BuildSource(s config.Settings) (mentions.RecordSource, error) {
	switch s.Source {
	case config.SourceReddit:
		return source.NewRedditSource(s.Reddit)
	case config.SourceFile:
		if s.File.Path == "" {
			return nil, fmt.Errorf("%w: file source needs a path", mentions.ErrSourceUnavailable)
		}
		return source.NewFileSource(s.File.Path, s.File.FileOptions), nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q", mentions.ErrSourceUnavailable, s.Source)
	}
}

func describeSource(src mentions.RecordSource) string {
	switch src := src.(type) {
	case *source.RedditSource:
		return "r/" + src.Subreddit()
	case *source.FileSource:
		return src.Path()
	default:
		return ""
	}
}

// WriteTable renders table with the configured format to the configured output, or to
// stdout when no output path is set.
func (a *App) WriteTable(stdout io.Writer, table mentions.RankedTable) error {
	renderer, err := render.New(a.Settings.Render.Format, a.Settings.Render.Options)
	if err != nil {
		return err
	}
	if a.Settings.Render.Output == "" {
		return renderer.Render(stdout, table)
	}
	path := a.Settings.Render.Output
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := renderer.Render(f, table); err != nil {
		_ = f.Close()
		return fmt.Errorf("render %s: %w", a.Settings.Render.Format, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	a.Logger.Info("table written", "path", path, "format", a.Settings.Render.Format, "entries", table.Len())
	return nil
}

type plainBackend struct {
	mentions.EntityClassifier
}

func (plainBackend) ID() string { return "custom" }

func (b plainBackend) Close() error {
	if c, ok := b.EntityClassifier.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func wrapBackend(c mentions.EntityClassifier) classify.Backend {
	if b, ok := c.(classify.Backend); ok {
		return b
	}
	return plainBackend{c}
}
