package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"yashubustudio/orgtrends/internal/app"
	"yashubustudio/orgtrends/internal/config"
	"yashubustudio/orgtrends/mentions"
	"yashubustudio/orgtrends/render"
	"yashubustudio/orgtrends/source"
)

type runFlags struct {
	source      string
	input       string
	subreddit   string
	sort        string
	limit       int
	top         int
	category    string
	backend     string
	workers     int
	format      string
	output      string
	showRecords bool
	saveRecords string
}

func newRunCommand(c *cli) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch records, extract mentions and print the ranked table",
		Example: `  orgtrends run --subreddit investing --sort top --limit 1000 --top 20
  orgtrends run --input posts.csv --format png --output chart.png
  orgtrends run --limit 500 --save-records posts.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := c.settings
			if err := f.apply(cmd, &s); err != nil {
				return err
			}
			if err := s.Validate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := app.New(ctx, s, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Run(ctx)
			if err != nil {
				return err
			}
			if f.saveRecords != "" {
				if err := saveRecords(f.saveRecords, res.Records); err != nil {
					return err
				}
				c.logger.Info("records saved", "path", f.saveRecords, "records", len(res.Records))
			}
			if f.showRecords {
				if err := render.RecordsTable(c.stdout, res.Records, res.Matches); err != nil {
					return err
				}
				fmt.Fprintln(c.stdout)
			}
			c.logger.Info("run finished", "run_id", res.RunID, "records", len(res.Records),
				"mentions", res.MentionCount(), "entities", res.Table.Len(), "duration", res.Duration)
			return a.WriteTable(c.stdout, res.Table)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.source, "source", "", "Record source: "+strings.Join(config.Sources, ", "))
	fl.StringVarP(&f.input, "input", "i", "", "Records file (csv, tsv, txt, json, jsonl); implies --source file")
	fl.StringVar(&f.subreddit, "subreddit", "", "Subreddit to read")
	fl.StringVar(&f.sort, "sort", "", "Listing order: top, new or hot")
	fl.IntVar(&f.limit, "limit", 0, "Maximum number of records (0 = no limit)")
	fl.IntVarP(&f.top, "top", "n", 0, "Number of entities in the ranked table")
	fl.StringVar(&f.category, "category", "", "Entity category to count")
	fl.StringVar(&f.backend, "backend", "", "Classifier backend")
	fl.IntVar(&f.workers, "workers", 0, "Concurrent classifier calls")
	fl.StringVarP(&f.format, "format", "f", "", "Output format: "+strings.Join(render.Formats, ", "))
	fl.StringVarP(&f.output, "output", "o", "", "Write the table to this file instead of stdout")
	fl.BoolVar(&f.showRecords, "show-records", false, "Print every record with its extracted entities first")
	fl.StringVar(&f.saveRecords, "save-records", "", "Also write the fetched records to this CSV file for later --input runs")
	return cmd
}

func saveRecords(path string, records []mentions.RawRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create records dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create records file: %w", err)
	}
	if err := source.WriteRecords(f, records); err != nil {
		_ = f.Close()
		return fmt.Errorf("write records: %w", err)
	}
	return f.Close()
}

// apply copies explicitly set flags over the loaded settings.
func (f runFlags) apply(cmd *cobra.Command, s *config.Settings) error {
	changed := cmd.Flags().Changed
	if changed("source") {
		s.Source = strings.ToLower(strings.TrimSpace(f.source))
	}
	if changed("input") {
		s.File.Path = f.input
		if !changed("source") {
			s.Source = config.SourceFile
		}
	}
	if changed("subreddit") {
		s.Reddit.Subreddit = strings.TrimPrefix(strings.TrimSpace(f.subreddit), "r/")
	}
	if changed("sort") {
		order, err := mentions.ParseSortOrder(f.sort)
		if err != nil {
			return err
		}
		s.Pipeline.Fetch.Sort = order
	}
	if changed("limit") {
		if f.limit < 0 {
			return errors.New("--limit must not be negative")
		}
		s.Pipeline.Fetch.Limit = f.limit
	}
	if changed("top") {
		if f.top <= 0 {
			return fmt.Errorf("--top: %w", mentions.ErrInvalidTopN)
		}
		s.Pipeline.TopN = f.top
	}
	if changed("category") {
		s.Pipeline.Category = f.category
	}
	if changed("backend") {
		s.Backend = strings.ToLower(strings.TrimSpace(f.backend))
	}
	if changed("workers") {
		s.Pipeline.Workers = f.workers
	}
	if changed("format") {
		s.Render.Format = strings.ToLower(strings.TrimSpace(f.format))
	}
	if changed("output") {
		s.Render.Output = f.output
		if !changed("format") {
			if format, ok := formatFromExt(f.output); ok {
				s.Render.Format = format
			}
		}
	}
	return nil
}

func formatFromExt(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return render.FormatPNG, true
	case ".csv":
		return render.FormatCSV, true
	case ".txt":
		return render.FormatTerminal, true
	}
	return "", false
}
