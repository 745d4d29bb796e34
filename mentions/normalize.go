package mentions

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultNoisePatterns strips possessive suffixes so "Apple's" and "Apple" count together.
var DefaultNoisePatterns = []string{`(?:'|’)s\b`}

const (
	// CategoryOrganization is the canonical label for companies and institutions.
	CategoryOrganization = "organization"
	// CategoryPerson is the canonical label for people.
	CategoryPerson = "person"
	// CategoryLocation is the canonical label for places.
	CategoryLocation = "location"
	// CategoryMisc is the canonical label for anything else a model tags.
	CategoryMisc = "misc"
)

// NormalizeText performs Unicode normalization and trims whitespace.
func NormalizeText(text string) string {
	return strings.TrimSpace(stripControl(norm.NFKC.String(text)))
}

// stripControl drops control characters except newlines and tabs.
func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}

// Normalizer prepares record text for classification.
type Normalizer struct {
	patterns []*regexp.Regexp
	fold     bool
}

// NormalizerOption customizes NewNormalizer.
type NormalizerOption func(*Normalizer)

// WithUnicodeFolding applies NFKC and drops control characters before the noise patterns
// run, so "Ｔｅｓｌａ" matches "Tesla".
func WithUnicodeFolding(fold bool) NormalizerOption {
	return func(n *Normalizer) { n.fold = fold }
}

// NewNormalizer compiles the given noise patterns. Passing nil yields a normalizer that
// returns text unchanged unless Unicode folding is enabled.
func NewNormalizer(patterns []string, opts ...NormalizerOption) (*Normalizer, error) {
	n := &Normalizer{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile noise pattern %q: %w", p, err)
		}
		n.patterns = append(n.patterns, re)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Normalize deletes every noise pattern match. Text without noise comes back unchanged.
func (n *Normalizer) Normalize(text string) string {
	if text == "" || n == nil {
		return text
	}
	out := text
	if n.fold {
		out = stripControl(norm.NFKC.String(out))
	}
	for _, re := range n.patterns {
		out = re.ReplaceAllString(out, "")
	}
	return out
}

var categoryAliases = map[string]string{
	"org":          CategoryOrganization,
	"orgs":         CategoryOrganization,
	"organization": CategoryOrganization,
	"organisation": CategoryOrganization,
	"company":      CategoryOrganization,
	"per":          CategoryPerson,
	"person":       CategoryPerson,
	"loc":          CategoryLocation,
	"gpe":          CategoryLocation,
	"location":     CategoryLocation,
	"misc":         CategoryMisc,
}

// CanonicalCategory maps backend specific labels (ORG, B-ORG, ORGANIZATION, ...)
// onto the canonical category names. Unknown labels are lower-cased.
func CanonicalCategory(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if len(key) > 2 && (strings.HasPrefix(key, "b-") || strings.HasPrefix(key, "i-")) {
		key = key[2:]
	}
	if canon, ok := categoryAliases[key]; ok {
		return canon
	}
	return key
}
