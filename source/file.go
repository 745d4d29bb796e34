// Package source provides RecordSource implementations: the Reddit listing API and local files.
package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"yashubustudio/orgtrends/mentions"
)

// Supported file formats.
const (
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatText  = "text"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// FileOptions controls how a records file is parsed.
type FileOptions struct {
	// Format overrides detection from the file extension.
	Format     string           `json:"format" mapstructure:"format" yaml:"format"`
	Columns    Columns          `json:"columns" mapstructure:"columns" yaml:"columns"`
	Candidates ColumnCandidates `json:"candidates" mapstructure:"candidates" yaml:"candidates"`
	// IncludeBody appends the text column to the title instead of using it only as a fallback.
	IncludeBody bool `json:"includeBody" mapstructure:"include_body" yaml:"include_body"`
}

// FileSource reads records from a CSV, TSV, plain text or JSON file.
type FileSource struct {
	path string
	opts FileOptions
}

// NewFileSource creates a source for path.
func NewFileSource(path string, opts FileOptions) *FileSource {
	opts.Candidates = opts.Candidates.WithDefaults()
	return &FileSource{path: filepath.Clean(strings.TrimSpace(path)), opts: opts}
}

// Path returns the file the source reads.
func (f *FileSource) Path() string { return f.path }

// Fetch parses the file, orders it by opts.Sort and applies opts.Limit. "top" orders by
// score descending keeping file order for equal scores; "new" and "hot" keep file order.
func (f *FileSource) Fetch(ctx context.Context, opts mentions.FetchOptions) ([]mentions.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", mentions.ErrSourceUnavailable, filepath.Base(f.path), err)
	}
	defer file.Close()

	format := f.opts.Format
	if format == "" {
		format = DetectFormat(f.path)
	}
	records, err := ReadRecords(file, format, f.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", mentions.ErrSourceUnavailable, filepath.Base(f.path), err)
	}
	return Arrange(records, opts), nil
}

// Arrange applies sort order and limit to records already in source order.
func Arrange(records []mentions.RawRecord, opts mentions.FetchOptions) []mentions.RawRecord {
	out := append([]mentions.RawRecord(nil), records...)
	if opts.Sort == mentions.SortTop {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// DetectFormat maps a file extension to a format name.
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".tsv":
		return FormatTSV
	case ".json":
		return FormatJSON
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatText
	}
}

// ReadRecords parses records from r in the given format.
func ReadRecords(r io.Reader, format string, opts FileOptions) ([]mentions.RawRecord, error) {
	var (
		records []mentions.RawRecord
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readDelimited(r, ',', opts)
	case FormatTSV:
		records, err = readDelimited(r, '\t', opts)
	case FormatJSON:
		records, err = readJSON(r)
	case FormatJSONL:
		records, err = readJSONLines(r)
	case FormatText, "":
		records, err = readPlainText(r)
	default:
		return nil, fmt.Errorf("unknown file format %q", format)
	}
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = fmt.Sprintf("row-%d", i+1)
		}
	}
	return records, nil
}

func readPlainText(r io.Reader) ([]mentions.RawRecord, error) {
	var out []mentions.RawRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	for scanner.Scan() {
		line := cleanCell(scanner.Text())
		if line == "" {
			continue
		}
		out = append(out, mentions.RawRecord{Text: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan text: %w", err)
	}
	return out, nil
}

func readDelimited(r io.Reader, comma rune, opts FileOptions) ([]mentions.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
	}
	resolved, skipHeader, err := resolveColumns(header, opts.Columns, opts.Candidates.WithDefaults())
	if err != nil {
		return nil, err
	}
	start := 0
	if skipHeader {
		start = 1
	}
	cell := func(row []string, c columnResult) string {
		if c.Index >= 0 && c.Index < len(row) {
			return cleanCell(row[c.Index])
		}
		return ""
	}
	records := make([]mentions.RawRecord, 0, len(rows)-start)
	for _, row := range rows[start:] {
		title := cell(row, resolved.Title)
		body := cell(row, resolved.Text)
		text := title
		if text == "" {
			text = body
		} else if opts.IncludeBody && body != "" && body != title {
			text = title + "\n" + body
		}
		records = append(records, mentions.RawRecord{
			ID:    cell(row, resolved.ID),
			Text:  text,
			Score: parseScore(cell(row, resolved.Score)),
			URL:   cell(row, resolved.URL),
		})
	}
	return records, nil
}

func parseScore(v string) int {
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return int(f)
	}
	return 0
}

func readJSON(r io.Reader) ([]mentions.RawRecord, error) {
	var records []mentions.RawRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return records, nil
}

func readJSONLines(r io.Reader) ([]mentions.RawRecord, error) {
	var out []mentions.RawRecord
	dec := json.NewDecoder(r)
	for {
		var rec mentions.RawRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("decode json line %d: %w", len(out)+1, err)
		}
		out = append(out, rec)
	}
}

// WriteRecords writes records as CSV with id,title,score,url columns, readable by FileSource.
func WriteRecords(w io.Writer, records []mentions.RawRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "title", "score", "url"}); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.ID, r.Text, strconv.Itoa(r.Score), r.URL}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FileMetadata describes the header of a structured records file.
type FileMetadata struct {
	Columns   []string
	Suggested Columns
}

// ReadFileMetadata returns header information and automatic column suggestions for
// CSV/TSV files. Other formats return empty metadata.
func ReadFileMetadata(path string, candidates ColumnCandidates) (FileMetadata, error) {
	meta := FileMetadata{}
	format := DetectFormat(path)
	if format != FormatCSV && format != FormatTSV {
		return meta, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	if format == FormatTSV {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	row, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return meta, nil
		}
		return meta, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	header := make([]string, len(row))
	for i, cell := range row {
		header[i] = cleanCell(cell)
	}
	meta.Columns = header
	resolved, _, err := resolveColumns(header, Columns{}, candidates.WithDefaults())
	if err == nil {
		meta.Suggested = Columns{
			ID:    resolved.ID.HeaderName,
			Title: resolved.Title.HeaderName,
			Text:  resolved.Text.HeaderName,
			Score: resolved.Score.HeaderName,
			URL:   resolved.URL.HeaderName,
		}
	}
	return meta, nil
}
