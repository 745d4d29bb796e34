package mentions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Extractor maps record text to the entity names of one target category.
type Extractor struct {
	classifier EntityClassifier
	normalizer *Normalizer
	workers    int
	observer   Observer
}

// ExtractorOption customizes an Extractor.
type ExtractorOption func(*Extractor)

// WithWorkers classifies up to n records concurrently. Output order does not depend on n.
func WithWorkers(n int) ExtractorOption {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithNormalizer replaces the default possessive-stripping normalizer.
func WithNormalizer(n *Normalizer) ExtractorOption {
	return func(e *Extractor) {
		if n != nil {
			e.normalizer = n
		}
	}
}

// WithObserver reports per-record classification timings.
func WithObserver(o Observer) ExtractorOption {
	return func(e *Extractor) {
		if o != nil {
			e.observer = o
		}
	}
}

// NewExtractor builds an extractor around the given classifier. A nil classifier is
// accepted here and reported as ErrClassifierUnavailable when extraction runs.
func NewExtractor(classifier EntityClassifier, opts ...ExtractorOption) *Extractor {
	normalizer, err := NewNormalizer(DefaultNoisePatterns)
	if err != nil {
		panic(err)
	}
	e := &Extractor{
		classifier: classifier,
		normalizer: normalizer,
		workers:    1,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns one match list per record, in input order.
func (e *Extractor) Extract(ctx context.Context, records []RawRecord, category string) ([][]EntityMatch, error) {
	if e == nil || e.classifier == nil {
		return nil, fmt.Errorf("%w: no classifier configured", ErrClassifierUnavailable)
	}
	out := make([][]EntityMatch, len(records))
	if e.workers <= 1 || len(records) <= 1 {
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			matches, err := e.ExtractRecord(ctx, rec, category)
			if err != nil {
				return nil, err
			}
			out[i] = matches
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches, err := e.ExtractRecord(gctx, records[i], category)
			if err != nil {
				return err
			}
			out[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractRecord classifies a single record. Empty text yields an empty list without
// consulting the classifier.
func (e *Extractor) ExtractRecord(ctx context.Context, rec RawRecord, category string) ([]EntityMatch, error) {
	if e == nil || e.classifier == nil {
		return nil, fmt.Errorf("%w: no classifier configured", ErrClassifierUnavailable)
	}
	text := e.normalizer.Normalize(rec.Text)
	if strings.TrimSpace(text) == "" {
		return []EntityMatch{}, nil
	}

	start := time.Now()
	spans, err := e.classifier.Classify(ctx, text)
	e.observer.RecordExtracted(time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, ErrClassifierUnavailable) {
			return nil, fmt.Errorf("classify record %q: %w", rec.ID, err)
		}
		return nil, fmt.Errorf("classify record %q: %w: %w", rec.ID, ErrClassifierUnavailable, err)
	}

	target := CanonicalCategory(category)
	matches := make([]EntityMatch, 0, len(spans))
	for _, span := range spans {
		if CanonicalCategory(span.Label) != target {
			continue
		}
		name := strings.TrimSpace(span.Text)
		if name == "" {
			continue
		}
		matches = append(matches, EntityMatch{
			Name:     name,
			RecordID: rec.ID,
			Category: target,
		})
	}
	return matches, nil
}

// Flatten concatenates entity names in record order, then within-record order.
func Flatten(matches [][]EntityMatch) []string {
	n := 0
	for _, m := range matches {
		n += len(m)
	}
	out := make([]string, 0, n)
	for _, m := range matches {
		for _, match := range m {
			out = append(out, match.Name)
		}
	}
	return out
}
