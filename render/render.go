// Package render turns ranked mention tables into terminal charts, CSV tables and PNG images.
package render

import (
	"fmt"
	"strings"

	"yashubustudio/orgtrends/mentions"
)

// Column titles shared by every renderer.
const (
	ColumnName  = "Company Name"
	ColumnCount = "Number of Times Mentioned"
)

// Supported output formats.
const (
	FormatTerminal = "terminal"
	FormatPNG      = "png"
	FormatCSV      = "csv"
)

// Formats lists every format accepted by New.
var Formats = []string{FormatTerminal, FormatPNG, FormatCSV}

// Options configures the renderer returned by New.
type Options struct {
	Title string `json:"title" mapstructure:"title" yaml:"title"`
	// BarWidth is the terminal width of the longest bar in cells.
	BarWidth    int `json:"barWidth" mapstructure:"bar_width" yaml:"bar_width"`
	ImageWidth  int `json:"imageWidth" mapstructure:"image_width" yaml:"image_width"`
	ImageHeight int `json:"imageHeight" mapstructure:"image_height" yaml:"image_height"`
}

// New returns the renderer for format.
func New(format string, opts Options) (mentions.Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatTerminal, "":
		return Terminal{Title: opts.Title, BarWidth: opts.BarWidth}, nil
	case FormatPNG:
		return PNG{Title: opts.Title, Width: opts.ImageWidth, Height: opts.ImageHeight}, nil
	case FormatCSV:
		return CSV{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want %s)", format, strings.Join(Formats, ", "))
	}
}

func maxCount(table mentions.RankedTable) int {
	m := 0
	for _, e := range table {
		if e.Count > m {
			m = e.Count
		}
	}
	return m
}

// scaled maps count onto [0, full] relative to max.
func scaled(count, max int, full float64) float64 {
	if max <= 0 || count <= 0 {
		return 0
	}
	return float64(count) / float64(max) * full
}
