package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"yashubustudio/orgtrends/mentions"
)

const entityPrompt = `You are a named entity recognizer for short forum post titles.

Find every named entity in the title below and label it with exactly one of:
ORG (companies, brands, institutions, exchanges), PERSON, LOCATION, MISC.

RULES:
1. Output ONLY a valid JSON object with exactly one key: "entities".
2. "entities" is an array of objects with two string fields: "text" and "label".
3. "text" must be copied verbatim from the title.
4. List entities in the order they appear and repeat an entity each time it appears.
5. If there are no entities return {"entities": []}.

Title:
%s`

const defaultLLMTimeout = 30 * time.Second

func buildPrompt(text string) string {
	return fmt.Sprintf(entityPrompt, text)
}

type llmEntity struct {
	Text  string
	Label string
}

type llmResponse struct {
	Entities []struct {
		Text  json.RawMessage `json:"text"`
		Name  json.RawMessage `json:"name"`
		Label string          `json:"label"`
		Type  string          `json:"type"`
	} `json:"entities"`
}

// parseEntities decodes the model's JSON answer. Models sometimes use name/type instead
// of text/label or return a list of names for one entity; both are accepted.
func parseEntities(raw string) ([]llmEntity, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty model response")
	}
	var parsed llmResponse
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("parse model json: %w (response: %.200s)", err, raw)
	}
	var out []llmEntity
	for _, e := range parsed.Entities {
		label := e.Label
		if label == "" {
			label = e.Type
		}
		field := e.Text
		if len(field) == 0 {
			field = e.Name
		}
		var name string
		if err := json.Unmarshal(field, &name); err == nil {
			out = append(out, llmEntity{Text: name, Label: label})
			continue
		}
		var names []string
		if err := json.Unmarshal(field, &names); err == nil {
			for _, n := range names {
				out = append(out, llmEntity{Text: n, Label: label})
			}
		}
	}
	return out, nil
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

type anchored struct {
	start, end int
	label      string
}

// anchorSpans locates each entity in text and returns spans in text order using the
// surface form found in text. Entities that do not occur are dropped, as are spans
// overlapping an earlier one. Repeated entities, in any casing, claim successive
// occurrences: an exact match is preferred, then a case-insensitive one.
func anchorSpans(text string, entities []llmEntity) []mentions.Span {
	lower := strings.ToLower(text)
	foldSafe := len(lower) == len(text)
	claimed := make(map[string]map[int]bool)
	var found []anchored
	for _, e := range entities {
		name := strings.TrimSpace(e.Text)
		if name == "" {
			continue
		}
		key := name
		if foldSafe {
			key = strings.ToLower(name)
		}
		taken := claimed[key]
		if taken == nil {
			taken = make(map[int]bool)
			claimed[key] = taken
		}
		idx := indexUnclaimed(text, name, taken)
		if idx < 0 && foldSafe {
			idx = indexUnclaimed(lower, key, taken)
		}
		if idx < 0 {
			continue
		}
		taken[idx] = true
		found = append(found, anchored{start: idx, end: idx + len(name), label: e.Label})
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].start == found[j].start {
			return found[i].end > found[j].end
		}
		return found[i].start < found[j].start
	})
	spans := make([]mentions.Span, 0, len(found))
	lastEnd := -1
	for _, a := range found {
		if a.start < lastEnd {
			continue
		}
		spans = append(spans, mentions.Span{Text: text[a.start:a.end], Label: a.label})
		lastEnd = a.end
	}
	return spans
}

// indexUnclaimed returns the first word-bounded occurrence of needle whose offset is not
// in taken.
func indexUnclaimed(haystack, needle string, taken map[int]bool) int {
	for from := 0; ; {
		idx := indexWord(haystack, needle, from)
		if idx < 0 || !taken[idx] {
			return idx
		}
		from = idx + 1
	}
}

// indexWord finds needle at or after from where it starts and ends on a word boundary,
// so "Ford" is not found inside "Affordable".
func indexWord(haystack, needle string, from int) int {
	for pos := from; pos <= len(haystack); {
		i := strings.Index(haystack[pos:], needle)
		if i < 0 {
			return -1
		}
		i += pos
		if boundaryAt(haystack, i) && boundaryAt(haystack, i+len(needle)) {
			return i
		}
		pos = i + 1
	}
	return -1
}

func boundaryAt(s string, i int) bool {
	if i <= 0 || i >= len(s) {
		return true
	}
	prev, next := s[i-1], s[i]
	return !isASCIIWord(prev) || !isASCIIWord(next)
}

func isASCIIWord(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// generateFunc sends a prompt to a remote model and returns its raw text answer.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// classifyWithLLM is shared by the remote backends.
func classifyWithLLM(ctx context.Context, timeout time.Duration, text string, generate generateFunc) ([]mentions.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	raw, err := generate(ctx, buildPrompt(text))
	if err != nil {
		return nil, err
	}
	entities, err := parseEntities(raw)
	if err != nil {
		return nil, err
	}
	return anchorSpans(text, entities), nil
}
