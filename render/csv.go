package render

import (
	"encoding/csv"
	"io"
	"strconv"

	"yashubustudio/orgtrends/mentions"
)

// CSV writes the table with a "Company Name,Number of Times Mentioned" header.
type CSV struct{}

// Render implements mentions.Renderer.
func (CSV) Render(w io.Writer, table mentions.RankedTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnName, ColumnCount}); err != nil {
		return err
	}
	for _, e := range table {
		if err := cw.Write([]string{e.Name, strconv.Itoa(e.Count)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
