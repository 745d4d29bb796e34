package classify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"yashubustudio/orgtrends/mentions"
)

// CacheConfig controls the Cached decorator.
type CacheConfig struct {
	TTL time.Duration `json:"ttl" mapstructure:"ttl" yaml:"ttl"`
	// Dir enables the on-disk cache when set.
	Dir string `json:"dir" mapstructure:"dir" yaml:"dir"`
}

// Cached memoizes classifier output in memory and, optionally, on disk.
// Errors are never cached.
type Cached struct {
	inner  mentions.EntityClassifier
	id     string
	mem    *cache.Cache
	dir    string
	logger *slog.Logger

	diskErrors atomic.Int64
}

// CacheOption customizes NewCached.
type CacheOption func(*Cached)

// WithCacheLogger reports disk cache failures to logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cached) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCached wraps inner. id must change whenever the model behind inner changes.
func NewCached(inner mentions.EntityClassifier, id string, cfg CacheConfig, opts ...CacheOption) (*Cached, error) {
	if inner == nil {
		return nil, unavailable("cache needs a classifier")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	c := &Cached{
		inner:  inner,
		id:     id,
		mem:    cache.New(cfg.TTL, 2*cfg.TTL),
		dir:    cfg.Dir,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ID implements Backend.
func (c *Cached) ID() string { return c.id }

// Close closes the wrapped classifier when it holds resources.
func (c *Cached) Close() error {
	c.mem.Flush()
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Len returns the number of entries held in memory.
func (c *Cached) Len() int { return c.mem.ItemCount() }

// DiskErrors returns how many disk cache writes failed.
func (c *Cached) DiskErrors() int64 { return c.diskErrors.Load() }

// Classify returns the cached spans for text or delegates to the wrapped classifier.
func (c *Cached) Classify(ctx context.Context, text string) ([]mentions.Span, error) {
	key := c.cacheKey(text)
	if v, ok := c.mem.Get(key); ok {
		return cloneSpans(v.([]mentions.Span)), nil
	}
	if spans, err := c.loadFromDisk(key); err == nil {
		c.mem.SetDefault(key, cloneSpans(spans))
		return spans, nil
	}
	spans, err := c.inner.Classify(ctx, text)
	if err != nil {
		return nil, err
	}
	c.mem.SetDefault(key, cloneSpans(spans))
	if err := c.saveToDisk(key, spans); err != nil {
		c.diskErrors.Add(1)
		c.logger.Warn("classifier cache write failed", "backend", c.id, "dir", c.dir, "error", err)
	}
	return spans, nil
}

func (c *Cached) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, c.id)
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, mentions.NormalizeText(text))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cached) loadFromDisk(key string) ([]mentions.Span, error) {
	if c.dir == "" {
		return nil, os.ErrNotExist
	}
	path := filepath.Join(c.dir, key+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var spans []mentions.Span
	if err := json.Unmarshal(data, &spans); err != nil {
		return nil, fmt.Errorf("decode cache file %s: %w", path, err)
	}
	return spans, nil
}

func (c *Cached) saveToDisk(key string, spans []mentions.Span) error {
	if c.dir == "" {
		return nil
	}
	if spans == nil {
		spans = []mentions.Span{}
	}
	data, err := json.Marshal(spans)
	if err != nil {
		return err
	}
	path := filepath.Join(c.dir, key+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func cloneSpans(spans []mentions.Span) []mentions.Span {
	if spans == nil {
		return nil
	}
	out := make([]mentions.Span, len(spans))
	copy(out, spans)
	return out
}
