package main

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"yashubustudio/orgtrends/internal/app"
	"yashubustudio/orgtrends/mentions"
)

func newClassifyCommand(c *cli) *cobra.Command {
	var backend, category string
	cmd := &cobra.Command{
		Use:   "classify TEXT...",
		Short: "Show the spans a backend finds in ad-hoc text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.settings
			if cmd.Flags().Changed("backend") {
				s.Backend = strings.ToLower(strings.TrimSpace(backend))
			}
			if cmd.Flags().Changed("category") {
				s.Pipeline.Category = category
			}
			if err := s.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			classifier, err := app.BuildClassifier(ctx, s, c.logger)
			if err != nil {
				return err
			}
			defer classifier.Close()

			normalizer, err := mentions.NewNormalizer(s.Pipeline.NoisePatterns, mentions.WithUnicodeFolding(s.Pipeline.FoldUnicode))
			if err != nil {
				return err
			}
			target := mentions.CanonicalCategory(s.Pipeline.Category)

			var rows [][]string
			for _, text := range args {
				spans, err := classifier.Classify(ctx, normalizer.Normalize(text))
				if err != nil {
					return err
				}
				if len(spans) == 0 {
					rows = append(rows, []string{text, "", "", ""})
					continue
				}
				for _, span := range spans {
					kept := ""
					if mentions.CanonicalCategory(span.Label) == target {
						kept = "yes"
					}
					rows = append(rows, []string{text, span.Text, span.Label, kept})
				}
			}
			return printSpans(c, rows, target)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Classifier backend")
	cmd.Flags().StringVar(&category, "category", "", "Category counted by runs")
	return cmd
}

func printSpans(c *cli, rows [][]string, target string) error {
	r := lipgloss.NewRenderer(c.stdout)
	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("text", "span", "label", "counted as "+target).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	_, err := io.WriteString(c.stdout, t.Render()+"\n")
	return err
}
