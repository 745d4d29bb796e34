package mentions

import (
	"fmt"
	"strings"
)

const (
	// DefaultTopN is the number of bars a chart shows by default.
	DefaultTopN = 20
	// DefaultCategory is the category analysts look for in post titles.
	DefaultCategory = CategoryOrganization
)

// Config is passed into every pipeline invocation.
type Config struct {
	TopN          int          `json:"topN" mapstructure:"top_n" yaml:"top_n"`
	Category      string       `json:"category" mapstructure:"category" yaml:"category"`
	Workers       int          `json:"workers" mapstructure:"workers" yaml:"workers"`
	NoisePatterns []string     `json:"noisePatterns,omitempty" mapstructure:"noise_patterns" yaml:"noise_patterns,omitempty"`
	// FoldUnicode applies NFKC and drops control characters before noise removal.
	FoldUnicode   bool         `json:"foldUnicode" mapstructure:"fold_unicode" yaml:"fold_unicode"`
	Fetch         FetchOptions `json:"fetch" mapstructure:"fetch" yaml:"fetch"`
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// Clone creates a deep copy of the configuration so callers can mutate safely.
func (c Config) Clone() Config {
	out := c
	if c.NoisePatterns != nil {
		out.NoisePatterns = append([]string(nil), c.NoisePatterns...)
	}
	return out
}

// ApplyDefaults populates unset values. A negative TopN is left alone so Validate can reject it.
func (c *Config) ApplyDefaults() {
	if c.TopN == 0 {
		c.TopN = DefaultTopN
	}
	if strings.TrimSpace(c.Category) == "" {
		c.Category = DefaultCategory
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Fetch.Sort == "" {
		c.Fetch.Sort = SortTop
	}
	if c.NoisePatterns == nil {
		c.NoisePatterns = append([]string(nil), DefaultNoisePatterns...)
	}
}

// Validate reports configuration that would make a run fail.
func (c Config) Validate() error {
	if c.TopN <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTopN, c.TopN)
	}
	if _, err := ParseSortOrder(string(c.Fetch.Sort)); err != nil {
		return err
	}
	if c.Fetch.Limit < 0 {
		return fmt.Errorf("fetch limit must not be negative: %d", c.Fetch.Limit)
	}
	return nil
}
