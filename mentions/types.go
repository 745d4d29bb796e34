package mentions

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// SortOrder selects which listing a RecordSource pulls from.
type SortOrder string

const (
	// SortNew lists the newest records first.
	SortNew SortOrder = "new"
	// SortTop lists the highest scored records first.
	SortTop SortOrder = "top"
	// SortHot lists currently trending records first.
	SortHot SortOrder = "hot"
)

// ParseSortOrder converts user input into a SortOrder.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortNew:
		return SortNew, nil
	case SortTop, "":
		return SortTop, nil
	case SortHot:
		return SortHot, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want new, top or hot)", s)
	}
}

// RawRecord is one input text item. Score and URL are carried through untouched.
type RawRecord struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Score int    `json:"score,omitempty"`
	URL   string `json:"url,omitempty"`
}

// EntityMatch is a single extracted entity occurrence.
type EntityMatch struct {
	Name     string `json:"name"`
	RecordID string `json:"recordId"`
	Category string `json:"category"`
}

// FrequencyEntry pairs an entity name with its number of occurrences.
type FrequencyEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RankedTable is ordered by Count descending, ties in first-occurrence order.
type RankedTable []FrequencyEntry

// Len returns the number of entries.
func (t RankedTable) Len() int { return len(t) }

// Total returns the sum of all counts in the table.
func (t RankedTable) Total() int {
	total := 0
	for _, e := range t {
		total += e.Count
	}
	return total
}

// Names returns the entity names in rank order.
func (t RankedTable) Names() []string {
	out := make([]string, len(t))
	for i, e := range t {
		out[i] = e.Name
	}
	return out
}

// Span is a classified piece of text as reported by an EntityClassifier.
type Span struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// FetchOptions controls how many records a RecordSource returns and in which order.
// A zero Limit means unbounded.
type FetchOptions struct {
	Limit int       `json:"limit" mapstructure:"limit" yaml:"limit"`
	Sort  SortOrder `json:"sort" mapstructure:"sort" yaml:"sort"`
}

// RecordSource produces the raw records a pipeline run analyzes.
type RecordSource interface {
	Fetch(ctx context.Context, opts FetchOptions) ([]RawRecord, error)
}

// EntityClassifier labels spans of text. Spans must be returned in order of appearance.
type EntityClassifier interface {
	Classify(ctx context.Context, text string) ([]Span, error)
}

// Renderer turns a ranked table into a chart or table artifact written to w.
type Renderer interface {
	Render(w io.Writer, table RankedTable) error
}

// Result holds everything a single pipeline run produced.
type Result struct {
	RunID    string          `json:"runId"`
	Records  []RawRecord     `json:"records"`
	Matches  [][]EntityMatch `json:"matches"`
	Table    RankedTable     `json:"table"`
	Duration time.Duration   `json:"duration"`
}

// MentionCount returns the number of EntityMatch values across all records.
func (r *Result) MentionCount() int {
	n := 0
	for _, m := range r.Matches {
		n += len(m)
	}
	return n
}
