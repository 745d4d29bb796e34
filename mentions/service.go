package mentions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "yashubustudio/orgtrends/mentions"

// Service runs the fetch → extract → aggregate pipeline.
type Service struct {
	source     RecordSource
	sourceName string
	classifier EntityClassifier

	cfgMu     sync.RWMutex
	cfg       Config
	extractor *Extractor

	observer Observer
	logger   *slog.Logger
	tracer   trace.Tracer
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithServiceObserver attaches a metrics observer to both the service and its extractor.
func WithServiceObserver(o Observer) ServiceOption {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithSourceName labels fetch measurements and logs.
func WithSourceName(name string) ServiceOption {
	return func(s *Service) {
		s.sourceName = name
	}
}

// NewService constructs a service. The source may be nil when only Analyze is used.
func NewService(source RecordSource, classifier EntityClassifier, cfg Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier is required", ErrClassifierUnavailable)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		source:     source,
		sourceName: "source",
		classifier: classifier,
		observer:   nopObserver{},
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.UpdateConfig(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns a copy of the current configuration.
func (s *Service) Config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Clone()
}

// UpdateConfig validates and replaces the configuration.
func (s *Service) UpdateConfig(cfg Config) error {
	cfg, extractor, err := s.prepare(cfg)
	if err != nil {
		return err
	}
	s.cfgMu.Lock()
	s.cfg = cfg
	s.extractor = extractor
	s.cfgMu.Unlock()
	return nil
}

func (s *Service) prepare(cfg Config) (Config, *Extractor, error) {
	cfg = cfg.Clone()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	normalizer, err := NewNormalizer(cfg.NoisePatterns, WithUnicodeFolding(cfg.FoldUnicode))
	if err != nil {
		return cfg, nil, err
	}
	extractor := NewExtractor(s.classifier,
		WithNormalizer(normalizer),
		WithWorkers(cfg.Workers),
		WithObserver(s.observer),
	)
	return cfg, extractor, nil
}

func (s *Service) snapshot() (Config, *Extractor) {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg.Clone(), s.extractor
}

// Run fetches records from the configured source and analyzes them.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	cfg, extractor := s.snapshot()
	return s.run(ctx, cfg, extractor)
}

// RunWith is Run with a one-off configuration; the service configuration is not changed.
func (s *Service) RunWith(ctx context.Context, cfg Config) (*Result, error) {
	cfg, extractor, err := s.prepare(cfg)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, cfg, extractor)
}

func (s *Service) run(ctx context.Context, cfg Config, extractor *Extractor) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "mentions.Run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.String("fetch.sort", string(cfg.Fetch.Sort)),
		attribute.Int("fetch.limit", cfg.Fetch.Limit),
	))
	defer span.End()

	records, err := s.fetch(ctx, cfg.Fetch)
	if err != nil {
		failSpan(span, err)
		s.logger.Error("fetch records failed", "run_id", runID, "source", s.sourceName, "error", err)
		return nil, err
	}
	res, err := s.analyze(ctx, runID, cfg, extractor, records)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return res, nil
}

// Analyze runs extraction and aggregation over records supplied by the caller.
func (s *Service) Analyze(ctx context.Context, records []RawRecord) (*Result, error) {
	cfg, extractor := s.snapshot()
	return s.analyzeRun(ctx, cfg, extractor, records)
}

// AnalyzeWith is Analyze with a one-off configuration.
func (s *Service) AnalyzeWith(ctx context.Context, records []RawRecord, cfg Config) (*Result, error) {
	cfg, extractor, err := s.prepare(cfg)
	if err != nil {
		return nil, err
	}
	return s.analyzeRun(ctx, cfg, extractor, records)
}

func (s *Service) analyzeRun(ctx context.Context, cfg Config, extractor *Extractor, records []RawRecord) (*Result, error) {
	runID := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "mentions.Analyze", trace.WithAttributes(attribute.String("run.id", runID)))
	defer span.End()
	res, err := s.analyze(ctx, runID, cfg, extractor, records)
	if err != nil {
		failSpan(span, err)
		return nil, err
	}
	return res, nil
}

func (s *Service) fetch(ctx context.Context, opts FetchOptions) ([]RawRecord, error) {
	if s.source == nil {
		return nil, fmt.Errorf("%w: no record source configured", ErrSourceUnavailable)
	}
	ctx, span := s.tracer.Start(ctx, "mentions.fetch")
	defer span.End()

	records, err := s.source.Fetch(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	s.observer.RecordsFetched(s.sourceName, len(records))
	s.logger.Debug("fetched records", "source", s.sourceName, "count", len(records))
	return records, nil
}

func (s *Service) analyze(ctx context.Context, runID string, cfg Config, extractor *Extractor, records []RawRecord) (*Result, error) {
	// Reject a bad table size before spending any classifier calls.
	if cfg.TopN <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTopN, cfg.TopN)
	}
	start := time.Now()

	extractCtx, extractSpan := s.tracer.Start(ctx, "mentions.extract", trace.WithAttributes(
		attribute.Int("records", len(records)),
		attribute.String("category", cfg.Category),
		attribute.Int("workers", cfg.Workers),
	))
	matches, err := extractor.Extract(extractCtx, records, cfg.Category)
	if err != nil {
		failSpan(extractSpan, err)
		extractSpan.End()
		s.logger.Error("extraction failed", "run_id", runID, "error", err)
		return nil, fmt.Errorf("extract: %w", err)
	}
	extractSpan.End()

	_, aggSpan := s.tracer.Start(ctx, "mentions.aggregate")
	table, err := AggregateMatches(matches, cfg.TopN)
	aggSpan.End()
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	s.observer.TableRanked(table)

	res := &Result{
		RunID:    runID,
		Records:  records,
		Matches:  matches,
		Table:    table,
		Duration: time.Since(start),
	}
	s.logger.Info("pipeline run finished",
		"run_id", runID,
		"records", len(records),
		"mentions", res.MentionCount(),
		"entities", len(table),
		"duration", res.Duration,
	)
	return res, nil
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
