package source

import (
	"fmt"
	"strconv"
	"strings"
)

// ColumnCandidates defines possible header names for auto-detecting CSV/TSV columns.
type ColumnCandidates struct {
	ID    []string `json:"id" mapstructure:"id" yaml:"id"`
	Title []string `json:"title" mapstructure:"title" yaml:"title"`
	Text  []string `json:"text" mapstructure:"text" yaml:"text"`
	Score []string `json:"score" mapstructure:"score" yaml:"score"`
	URL   []string `json:"url" mapstructure:"url" yaml:"url"`
}

// DefaultColumnCandidates returns the built-in column detection candidates.
func DefaultColumnCandidates() ColumnCandidates {
	return ColumnCandidates{
		ID:    []string{"id", "post_id", "name", "index", "no"},
		Title: []string{"title", "headline", "subject"},
		Text:  []string{"text", "selftext", "body", "content", "message"},
		Score: []string{"score", "ups", "upvotes", "points"},
		URL:   []string{"url", "link", "permalink"},
	}
}

// WithDefaults fills nil fields from the built-in candidates so callers can override
// only the parts they need.
func (c ColumnCandidates) WithDefaults() ColumnCandidates {
	defaults := DefaultColumnCandidates()
	return ColumnCandidates{
		ID:    pickStrings(c.ID, defaults.ID),
		Title: pickStrings(c.Title, defaults.Title),
		Text:  pickStrings(c.Text, defaults.Text),
		Score: pickStrings(c.Score, defaults.Score),
		URL:   pickStrings(c.URL, defaults.URL),
	}
}

func pickStrings(custom, fallback []string) []string {
	if custom == nil {
		return cloneStrings(fallback)
	}
	return cloneStrings(custom)
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

// Columns selects columns explicitly, by header name or 1-based "#n" index.
// Empty fields are auto-detected.
type Columns struct {
	ID    string `json:"id" mapstructure:"id" yaml:"id"`
	Title string `json:"title" mapstructure:"title" yaml:"title"`
	Text  string `json:"text" mapstructure:"text" yaml:"text"`
	Score string `json:"score" mapstructure:"score" yaml:"score"`
	URL   string `json:"url" mapstructure:"url" yaml:"url"`
}

type columnResult struct {
	Index      int
	FromHeader bool
	HeaderName string
}

type resolvedColumns struct {
	ID    columnResult
	Title columnResult
	Text  columnResult
	Score columnResult
	URL   columnResult
}

func resolveColumns(header []string, cols Columns, candidates ColumnCandidates) (resolvedColumns, bool, error) {
	res := resolvedColumns{}
	var err error
	if res.ID, err = pickColumn(header, cols.ID, candidates.ID); err != nil {
		return res, false, err
	}
	if res.Title, err = pickColumn(header, cols.Title, candidates.Title); err != nil {
		return res, false, err
	}
	if res.Text, err = pickColumn(header, cols.Text, candidates.Text); err != nil {
		return res, false, err
	}
	if res.Score, err = pickColumn(header, cols.Score, candidates.Score); err != nil {
		return res, false, err
	}
	if res.URL, err = pickColumn(header, cols.URL, candidates.URL); err != nil {
		return res, false, err
	}
	skipHeader := res.ID.FromHeader || res.Title.FromHeader || res.Text.FromHeader ||
		res.Score.FromHeader || res.URL.FromHeader
	// Headerless files: the first column holds the title.
	if !skipHeader && res.Title.Index < 0 && res.Text.Index < 0 && len(header) > 0 {
		res.Title.Index = 0
	}
	for _, c := range []*columnResult{&res.ID, &res.Title, &res.Text, &res.Score, &res.URL} {
		c.HeaderName = headerNameForIndex(header, c.Index, c.FromHeader)
	}
	return res, skipHeader, nil
}

func pickColumn(header []string, explicit string, candidates []string) (columnResult, error) {
	res := columnResult{Index: -1}
	if strings.TrimSpace(explicit) != "" {
		idx, fromHeader, err := matchExplicitColumn(header, explicit)
		if err != nil {
			return res, err
		}
		res.Index = idx
		res.FromHeader = fromHeader
		return res, nil
	}
	if idx := findColumn(header, candidates); idx >= 0 {
		res.Index = idx
		res.FromHeader = true
	}
	return res, nil
}

func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, col := range header {
			if strings.EqualFold(col, cand) {
				return i
			}
		}
	}
	return -1
}

func matchExplicitColumn(header []string, explicit string) (int, bool, error) {
	trimmed := strings.TrimSpace(explicit)
	for i, col := range header {
		if strings.EqualFold(col, trimmed) {
			return i, true, nil
		}
	}
	if strings.HasPrefix(trimmed, "#") {
		idx, err := parseColumnIndex(trimmed)
		if err != nil {
			return -1, false, err
		}
		if idx >= len(header) {
			return -1, false, fmt.Errorf("column index %s is out of range", trimmed)
		}
		return idx, false, nil
	}
	return -1, false, fmt.Errorf("column %q not found", explicit)
}

func parseColumnIndex(token string) (int, error) {
	trimmed := strings.TrimSpace(strings.TrimPrefix(token, "#"))
	idx, err := strconv.Atoi(trimmed)
	if err != nil {
		return -1, fmt.Errorf("invalid column index %q", token)
	}
	if idx <= 0 {
		return -1, fmt.Errorf("column indices are 1-based: %q", token)
	}
	return idx - 1, nil
}

func headerNameForIndex(header []string, idx int, fromHeader bool) string {
	if idx < 0 {
		return ""
	}
	if fromHeader && idx < len(header) {
		if name := header[idx]; name != "" {
			return name
		}
	}
	return fmt.Sprintf("#%d", idx+1)
}

func cleanCell(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "\ufeff")
	return v
}
