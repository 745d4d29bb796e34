package classify

import (
	"strings"
	"unicode/utf8"

	"yashubustudio/orgtrends/mentions"
)

// taggedToken is one model token with its byte offsets into the classified text.
type taggedToken struct {
	start, end int
	tag        string
	// subword marks a token that continues the previous word ("##ing").
	subword bool
	special bool
}

// decodeBIO merges BIO tagged tokens into entity spans. Subword tokens follow the
// entity of the word they belong to; a B- tag always starts a new entity and an I- tag
// whose type differs from the open entity starts one too.
func decodeBIO(text string, toks []taggedToken) []mentions.Span {
	var spans []mentions.Span
	open := false
	var start, end int
	var label string
	closeSpan := func() {
		if open {
			if s := sliceText(text, start, end); strings.TrimSpace(s) != "" {
				spans = append(spans, mentions.Span{Text: s, Label: label})
			}
		}
		open = false
	}
	for _, t := range toks {
		if t.special {
			continue
		}
		if t.subword {
			if open && t.end > end {
				end = t.end
			}
			continue
		}
		prefix, typ := splitTag(t.tag)
		switch {
		case typ == "":
			closeSpan()
		case prefix == "I" && open && typ == label:
			end = t.end
		default:
			closeSpan()
			open, start, end, label = true, t.start, t.end, typ
		}
	}
	closeSpan()
	return spans
}

// splitTag returns ("B", "ORG") for "B-ORG"; tags without a prefix are treated as B.
// "O" and empty tags yield an empty type.
func splitTag(tag string) (string, string) {
	tag = strings.TrimSpace(tag)
	if tag == "" || tag == "O" {
		return "", ""
	}
	if len(tag) > 2 && tag[1] == '-' {
		switch p := strings.ToUpper(tag[:1]); p {
		case "B", "I":
			return p, tag[2:]
		case "E", "S":
			// BIOES end/single tags continue or start like I/B.
			if p == "E" {
				return "I", tag[2:]
			}
			return "B", tag[2:]
		}
	}
	return "B", tag
}

// sliceText cuts text at byte offsets, clamped to the string and to rune boundaries.
func sliceText(text string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	for start < end && !utf8.RuneStart(text[start]) {
		start++
	}
	for end < len(text) && end > start && !utf8.RuneStart(text[end]) {
		end++
	}
	if start >= end {
		return ""
	}
	return strings.TrimSpace(text[start:end])
}
