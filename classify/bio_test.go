package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/orgtrends/mentions"
)

func TestDecodeBIO(t *testing.T) {
	text := "Goldman Sachs upgrades Nvidia and AMD"
	toks := []taggedToken{
		{start: 0, end: 0, tag: "O", special: true},
		{start: 0, end: 7, tag: "B-ORG"},
		{start: 8, end: 13, tag: "I-ORG"},
		{start: 14, end: 22, tag: "O"},
		{start: 23, end: 25, tag: "B-ORG"},
		{start: 25, end: 29, tag: "I-ORG", subword: true},
		{start: 30, end: 33, tag: "O"},
		{start: 34, end: 37, tag: "B-ORG"},
		{start: 0, end: 0, tag: "O", special: true},
	}
	assert.Equal(t, []mentions.Span{
		{Text: "Goldman Sachs", Label: "ORG"},
		{Text: "Nvidia", Label: "ORG"},
		{Text: "AMD", Label: "ORG"},
	}, decodeBIO(text, toks))
}

func TestDecodeBIOAdjacentBegins(t *testing.T) {
	text := "Apple Tesla"
	toks := []taggedToken{
		{start: 0, end: 5, tag: "B-ORG"},
		{start: 6, end: 11, tag: "B-ORG"},
	}
	assert.Equal(t, []string{"Apple", "Tesla"}, spanTexts(decodeBIO(text, toks)))
}

func TestDecodeBIOTypeChange(t *testing.T) {
	text := "Musk Tesla Austin"
	toks := []taggedToken{
		{start: 0, end: 4, tag: "I-PER"},
		{start: 5, end: 10, tag: "I-ORG"},
		{start: 11, end: 17, tag: "I-LOC"},
	}
	assert.Equal(t, []mentions.Span{
		{Text: "Musk", Label: "PER"},
		{Text: "Tesla", Label: "ORG"},
		{Text: "Austin", Label: "LOC"},
	}, decodeBIO(text, toks))
}

func TestDecodeBIOSubwordLabelIgnored(t *testing.T) {
	text := "Palantir soars"
	toks := []taggedToken{
		{start: 0, end: 3, tag: "B-ORG"},
		{start: 3, end: 8, tag: "B-MISC", subword: true},
		{start: 9, end: 14, tag: "O"},
	}
	assert.Equal(t, []mentions.Span{{Text: "Palantir", Label: "ORG"}}, decodeBIO(text, toks))
}

func TestSplitTag(t *testing.T) {
	tests := map[string][2]string{
		"B-ORG": {"B", "ORG"},
		"I-PER": {"I", "PER"},
		"S-LOC": {"B", "LOC"},
		"E-ORG": {"I", "ORG"},
		"ORG":   {"B", "ORG"},
		"O":     {"", ""},
		"":      {"", ""},
	}
	for in, want := range tests {
		p, typ := splitTag(in)
		assert.Equal(t, want, [2]string{p, typ}, in)
	}
}

func TestSliceTextClamps(t *testing.T) {
	assert.Equal(t, "Nestlé", sliceText("Nestlé SA", 0, 7))
	assert.Equal(t, "SA", sliceText("Nestlé SA", 8, 100))
	assert.Equal(t, "", sliceText("abc", 2, 1))
}

func TestParseLabels(t *testing.T) {
	labels, err := parseLabels([]byte(`{"id2label":{"0":"O","1":"B-ORG","2":"I-ORG"}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "B-ORG", "I-ORG"}, labels)

	_, err = parseLabels([]byte(`{"id2label":{"0":"O","2":"B-ORG"}}`))
	require.Error(t, err)
	_, err = parseLabels([]byte(`{}`))
	require.Error(t, err)
}

func TestArgmaxTags(t *testing.T) {
	labels := []string{"O", "B-ORG", "I-ORG"}
	logits := []float32{
		0.9, 0.05, 0.05,
		0.1, 2.0, 0.3,
		0.2, 0.1, 1.5,
	}
	assert.Equal(t, []string{"O", "B-ORG", "I-ORG"}, argmaxTags(logits, 3, labels))
}

func TestORTConfigDefaults(t *testing.T) {
	cfg := ORTConfig{ModelPath: "/models/ner/model.onnx"}
	cfg.ApplyDefaults()
	assert.Equal(t, 128, cfg.MaxSeqLen)
	assert.Equal(t, "model.onnx", cfg.ModelID)
	assert.Equal(t, "/models/ner/config.json", cfg.LabelsPath)
	assert.Equal(t, []string{"input_ids", "attention_mask", "token_type_ids"}, cfg.InputNames)
	assert.Equal(t, "logits", cfg.OutputName)

	_, err := NewORTClassifier(ORTConfig{})
	require.ErrorIs(t, err, mentions.ErrClassifierUnavailable)
}
