package render

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"yashubustudio/orgtrends/mentions"
)

// DefaultBarWidth is the terminal width of the longest bar.
const DefaultBarWidth = 40

const barRune = "█"

var (
	colorAccent = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	colorBar    = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

// Terminal draws a horizontal bar chart as a bordered lipgloss table. Color is used only
// when w is a terminal.
type Terminal struct {
	Title    string
	BarWidth int
}

// Render implements mentions.Renderer.
func (t Terminal) Render(w io.Writer, ranked mentions.RankedTable) error {
	r := lipgloss.NewRenderer(w)
	var out strings.Builder
	if t.Title != "" {
		out.WriteString(r.NewStyle().Bold(true).Foreground(colorAccent).Render(t.Title))
		out.WriteString("\n")
	}
	if ranked.Len() == 0 {
		out.WriteString(r.NewStyle().Foreground(colorMuted).Render("no mentions found"))
		_, err := fmt.Fprintln(w, out.String())
		return err
	}

	width := t.BarWidth
	if width <= 0 {
		width = DefaultBarWidth
	}
	top := maxCount(ranked)
	rows := make([][]string, len(ranked))
	for i, e := range ranked {
		rows[i] = []string{e.Name, bar(e.Count, top, width) + " " + strconv.Itoa(e.Count)}
	}

	header := r.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	nameCell := r.NewStyle().Padding(0, 1)
	barCell := r.NewStyle().Foreground(colorBar).Padding(0, 1)
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.NewStyle().Foreground(colorMuted)).
		Headers(ColumnName, ColumnCount).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return header
			case col == 1:
				return barCell
			default:
				return nameCell
			}
		})
	out.WriteString(tbl.Render())
	_, err := fmt.Fprintln(w, out.String())
	return err
}

func bar(count, max, width int) string {
	n := int(math.Round(scaled(count, max, float64(width))))
	if n < 1 && count > 0 {
		n = 1
	}
	return strings.Repeat(barRune, n)
}

// RecordsTable prints one row per record with the entity names found in it, the way the
// per-record frame is shown before charting.
func RecordsTable(w io.Writer, records []mentions.RawRecord, matches [][]mentions.EntityMatch) error {
	r := lipgloss.NewRenderer(w)
	rows := make([][]string, len(records))
	for i, rec := range records {
		var names []string
		if i < len(matches) {
			for _, m := range matches[i] {
				names = append(names, m.Name)
			}
		}
		rows[i] = []string{rec.ID, strconv.Itoa(rec.Score), truncate(rec.Text, 72), strings.Join(names, ", ")}
	}
	header := r.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	tbl := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(r.NewStyle().Foreground(colorMuted)).
		Headers("id", "score", "title", "data").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	_, err := fmt.Fprintln(w, tbl.Render())
	return err
}

func truncate(s string, limit int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "…"
}
