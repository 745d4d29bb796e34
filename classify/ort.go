package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"yashubustudio/orgtrends/mentions"
)

// ORTConfig locates a token-classification model exported to ONNX.
type ORTConfig struct {
	OrtDLL        string   `json:"ortDll" mapstructure:"ort_dll" yaml:"ort_dll"`
	ModelPath     string   `json:"modelPath" mapstructure:"model_path" yaml:"model_path"`
	TokenizerPath string   `json:"tokenizerPath" mapstructure:"tokenizer_path" yaml:"tokenizer_path"`
	LabelsPath    string   `json:"labelsPath" mapstructure:"labels_path" yaml:"labels_path"`
	MaxSeqLen     int      `json:"maxSeqLen" mapstructure:"max_seq_len" yaml:"max_seq_len"`
	ModelID       string   `json:"modelId" mapstructure:"model_id" yaml:"model_id"`
	InputNames    []string `json:"inputNames,omitempty" mapstructure:"input_names" yaml:"input_names,omitempty"`
	OutputName    string   `json:"outputName,omitempty" mapstructure:"output_name" yaml:"output_name,omitempty"`
}

// ApplyDefaults fills sensible values for a BERT style NER export.
func (c *ORTConfig) ApplyDefaults() {
	if c.MaxSeqLen <= 0 {
		c.MaxSeqLen = 128
	}
	if c.ModelID == "" && c.ModelPath != "" {
		c.ModelID = filepath.Base(c.ModelPath)
	}
	if c.LabelsPath == "" && c.ModelPath != "" {
		c.LabelsPath = filepath.Join(filepath.Dir(c.ModelPath), "config.json")
	}
	if len(c.InputNames) == 0 {
		c.InputNames = []string{"input_ids", "attention_mask", "token_type_ids"}
	}
	if c.OutputName == "" {
		c.OutputName = "logits"
	}
}

var (
	ortEnvMu   sync.Mutex
	ortEnvRefs int
)

func acquireORTEnv(dll string) error {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()
	if !ort.IsInitialized() {
		if dll != "" {
			ort.SetSharedLibraryPath(dll)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}
	ortEnvRefs++
	return nil
}

func releaseORTEnv() {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()
	if ortEnvRefs == 0 {
		return
	}
	ortEnvRefs--
	if ortEnvRefs == 0 && ort.IsInitialized() {
		_ = ort.DestroyEnvironment()
	}
}

// ORTClassifier runs a Hugging Face token-classification model through ONNX Runtime.
type ORTClassifier struct {
	cfg     ORTConfig
	tk      *tokenizer.Tokenizer
	labels  []string
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// NewORTClassifier loads the tokenizer, label map and ONNX session.
func NewORTClassifier(cfg ORTConfig) (*ORTClassifier, error) {
	cfg.ApplyDefaults()
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, unavailable("ort backend needs model_path and tokenizer_path")
	}
	labels, err := LoadLabels(cfg.LabelsPath)
	if err != nil {
		return nil, unavailableErr("load labels", err)
	}
	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, unavailableErr("load tokenizer", err)
	}
	if err := acquireORTEnv(cfg.OrtDLL); err != nil {
		return nil, unavailableErr("ort environment", err)
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, []string{cfg.OutputName}, nil)
	if err != nil {
		releaseORTEnv()
		return nil, unavailableErr("create ort session", err)
	}
	return &ORTClassifier{cfg: cfg, tk: tk, labels: labels, session: session}, nil
}

// ID implements Backend.
func (o *ORTClassifier) ID() string { return "ort:" + o.cfg.ModelID }

// Labels returns the model's tag set indexed by class id.
func (o *ORTClassifier) Labels() []string { return append([]string(nil), o.labels...) }

// Close releases ORT resources.
func (o *ORTClassifier) Close() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil
	}
	err := o.session.Destroy()
	o.session = nil
	releaseORTEnv()
	return err
}

// Classify tags text with the model and decodes the BIO tags into spans.
func (o *ORTClassifier) Classify(ctx context.Context, text string) ([]mentions.Span, error) {
	if o == nil || o.tk == nil {
		return nil, unavailable("ort classifier is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	enc, err := o.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	n := len(enc.Ids)
	if n > o.cfg.MaxSeqLen {
		n = o.cfg.MaxSeqLen
	}
	if n == 0 {
		return nil, nil
	}

	inputs := make([]ort.Value, 0, len(o.cfg.InputNames))
	defer func() {
		for _, v := range inputs {
			_ = v.Destroy()
		}
	}()
	shape := ort.NewShape(1, int64(n))
	for _, name := range o.cfg.InputNames {
		data := make([]int64, n)
		for i := 0; i < n; i++ {
			switch name {
			case "attention_mask":
				data[i] = int64(at(enc.AttentionMask, i, 1))
			case "token_type_ids":
				data[i] = int64(at(enc.TypeIds, i, 0))
			default:
				data[i] = int64(enc.Ids[i])
			}
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		inputs = append(inputs, tensor)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(n), int64(len(o.labels))))
	if err != nil {
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	defer output.Destroy()

	o.mu.Lock()
	if o.session == nil {
		o.mu.Unlock()
		return nil, unavailable("ort session closed")
	}
	err = o.session.Run(inputs, []ort.Value{output})
	o.mu.Unlock()
	if err != nil {
		return nil, unavailableErr("run ort session", err)
	}

	tags := argmaxTags(output.GetData(), n, o.labels)
	toks := make([]taggedToken, n)
	for i := 0; i < n; i++ {
		start, end := 0, 0
		if i < len(enc.Offsets) && len(enc.Offsets[i]) == 2 {
			start, end = enc.Offsets[i][0], enc.Offsets[i][1]
		}
		tok := ""
		if i < len(enc.Tokens) {
			tok = enc.Tokens[i]
		}
		toks[i] = taggedToken{
			start:   start,
			end:     end,
			tag:     tags[i],
			subword: strings.HasPrefix(tok, "##"),
			special: at(enc.SpecialTokenMask, i, 0) == 1 || start == end,
		}
	}
	return decodeBIO(text, toks), nil
}

func at(xs []int, i, def int) int {
	if i < len(xs) {
		return xs[i]
	}
	return def
}

// argmaxTags picks the highest scoring label per token from row-major logits.
func argmaxTags(logits []float32, n int, labels []string) []string {
	tags := make([]string, n)
	width := len(labels)
	for i := 0; i < n; i++ {
		row := logits[i*width : (i+1)*width]
		best := 0
		for j := 1; j < width; j++ {
			if row[j] > row[best] {
				best = j
			}
		}
		tags[i] = labels[best]
	}
	return tags
}

// LoadLabels reads the id2label map of a Hugging Face config.json.
func LoadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	return parseLabels(data)
}

func parseLabels(data []byte) ([]string, error) {
	var cfg struct {
		ID2Label map[string]string `json:"id2label"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	if len(cfg.ID2Label) == 0 {
		return nil, fmt.Errorf("id2label is empty")
	}
	labels := make([]string, len(cfg.ID2Label))
	for k, v := range cfg.ID2Label {
		id, err := strconv.Atoi(k)
		if err != nil || id < 0 || id >= len(labels) {
			return nil, fmt.Errorf("id2label has invalid id %q", k)
		}
		labels[id] = v
	}
	for i, l := range labels {
		if l == "" {
			return nil, fmt.Errorf("id2label is missing id %d", i)
		}
	}
	return labels, nil
}
