package classify

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"yashubustudio/orgtrends/mentions"
)

// Entry is one dictionary item. Aliases are further surface forms with the same label.
type Entry struct {
	Name    string   `json:"name"`
	Label   string   `json:"label,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

type token struct {
	start, end int
	key        string
}

type pattern struct {
	keys  []string
	label string
}

// Gazetteer tags known names with a greedy longest-match over word tokens.
type Gazetteer struct {
	foldCase bool
	index    map[string][]pattern
	size     int
}

// GazetteerOption customizes a Gazetteer.
type GazetteerOption func(*Gazetteer)

// WithFoldCase matches names regardless of letter case. The emitted span keeps the
// surface text as written in the record.
func WithFoldCase(fold bool) GazetteerOption {
	return func(g *Gazetteer) { g.foldCase = fold }
}

// NewGazetteer compiles the entries. An entry without a label is tagged ORG.
func NewGazetteer(entries []Entry, opts ...GazetteerOption) (*Gazetteer, error) {
	g := &Gazetteer{index: make(map[string][]pattern)}
	for _, opt := range opts {
		opt(g)
	}
	seen := make(map[string]struct{})
	for _, e := range entries {
		label := strings.TrimSpace(e.Label)
		if label == "" {
			label = "ORG"
		}
		for _, surface := range append([]string{e.Name}, e.Aliases...) {
			toks := g.tokenize(surface)
			if len(toks) == 0 {
				continue
			}
			keys := make([]string, len(toks))
			for i, t := range toks {
				keys[i] = t.key
			}
			joined := strings.Join(keys, " ")
			if _, dup := seen[joined]; dup {
				continue
			}
			seen[joined] = struct{}{}
			g.index[keys[0]] = append(g.index[keys[0]], pattern{keys: keys, label: label})
			g.size++
		}
	}
	if g.size == 0 {
		return nil, unavailable("gazetteer has no entries")
	}
	for k, pats := range g.index {
		sort.SliceStable(pats, func(i, j int) bool { return len(pats[i].keys) > len(pats[j].keys) })
		g.index[k] = pats
	}
	return g, nil
}

// Size returns the number of compiled surface forms.
func (g *Gazetteer) Size() int { return g.size }

// ID implements Backend.
func (g *Gazetteer) ID() string {
	return fmt.Sprintf("gazetteer:%d:fold=%t", g.size, g.foldCase)
}

// Close implements Backend.
func (g *Gazetteer) Close() error { return nil }

// Classify returns the dictionary names found in text, left to right.
func (g *Gazetteer) Classify(ctx context.Context, text string) ([]mentions.Span, error) {
	if g == nil || g.size == 0 {
		return nil, unavailable("gazetteer is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	toks := g.tokenize(text)
	var spans []mentions.Span
	for i := 0; i < len(toks); {
		n, label := g.matchAt(toks, i)
		if n == 0 {
			i++
			continue
		}
		spans = append(spans, mentions.Span{
			Text:  text[toks[i].start:toks[i+n-1].end],
			Label: label,
		})
		i += n
	}
	return spans, nil
}

func (g *Gazetteer) matchAt(toks []token, i int) (int, string) {
	for _, p := range g.index[toks[i].key] {
		if i+len(p.keys) > len(toks) {
			continue
		}
		ok := true
		for j, k := range p.keys {
			if toks[i+j].key != k {
				ok = false
				break
			}
		}
		if ok {
			return len(p.keys), p.label
		}
	}
	return 0, ""
}

// tokenize splits text into words with byte offsets. Letters and digits form words;
// '&', '.', '-' and apostrophes stay inside a word ("AT&T", "Amazon.com", "Coca-Cola")
// but never end one.
func (g *Gazetteer) tokenize(text string) []token {
	var toks []token
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		for end > start {
			r, size := utf8.DecodeLastRuneInString(text[start:end])
			if isWordRune(r) {
				break
			}
			end -= size
		}
		if end > start {
			toks = append(toks, token{start: start, end: end, key: g.key(text[start:end])})
		}
		start = -1
	}
	for i, r := range text {
		switch {
		case isWordRune(r):
			if start < 0 {
				start = i
			}
		case isJoinerRune(r) && start >= 0:
		default:
			flush(i)
		}
	}
	flush(len(text))
	return toks
}

func (g *Gazetteer) key(word string) string {
	word = norm.NFKC.String(word)
	if g.foldCase {
		return cases.Fold().String(word)
	}
	return word
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isJoinerRune(r rune) bool {
	switch r {
	case '&', '.', '-', '\'', '’':
		return true
	}
	return false
}

// LoadEntries reads a dictionary file. CSV/TSV rows are name[,label[,alias;alias]];
// plain text files hold one name per line. A leading "name" header row is skipped.
func LoadEntries(path string) ([]Entry, error) {
	clean := filepath.Clean(strings.TrimSpace(path))
	f, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("open gazetteer: %w", err)
	}
	defer f.Close()
	entries, err := ReadEntries(f, strings.ToLower(filepath.Ext(clean)))
	if err != nil {
		return nil, fmt.Errorf("read gazetteer %s: %w", clean, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no entries found (%s)", clean)
	}
	return entries, nil
}

// ReadEntries parses dictionary rows from r. ext selects the delimiter: ".tsv" uses tabs,
// ".txt" reads one name per line, anything else is comma separated.
func ReadEntries(r io.Reader, ext string) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'
	switch ext {
	case ".tsv":
		cr.Comma = '\t'
	case ".txt", "":
		cr.Comma = '\x1f'
		cr.LazyQuotes = true
	}
	var entries []Entry
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 {
			continue
		}
		name := strings.TrimSpace(rec[0])
		if name == "" || (row == 0 && strings.EqualFold(name, "name")) {
			continue
		}
		e := Entry{Name: name}
		if len(rec) > 1 {
			e.Label = strings.TrimSpace(rec[1])
		}
		if len(rec) > 2 {
			for _, a := range strings.Split(rec[2], ";") {
				if a = strings.TrimSpace(a); a != "" {
					e.Aliases = append(e.Aliases, a)
				}
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteEntries writes entries as CSV rows readable by ReadEntries.
func WriteEntries(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"name", "label", "aliases"}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.Name, e.Label, strings.Join(e.Aliases, ";")}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// EnsureEntriesFile writes the given entries to path unless the file already exists.
// It reports whether a file was created.
func EnsureEntriesFile(path string, entries []Entry) (bool, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return false, nil
	}
	clean = filepath.Clean(clean)
	if _, err := os.Stat(clean); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat gazetteer file: %w", err)
	}
	if dir := filepath.Dir(clean); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create gazetteer dir: %w", err)
		}
	}
	tmp := clean + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("create gazetteer file: %w", err)
	}
	if err := WriteEntries(f, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return false, fmt.Errorf("write gazetteer file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return false, err
	}
	if err := os.Rename(tmp, clean); err != nil {
		return false, fmt.Errorf("replace gazetteer file: %w", err)
	}
	return true, nil
}
