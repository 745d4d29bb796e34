package source

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/orgtrends/mentions"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileSourceCSV(t *testing.T) {
	path := writeFile(t, "posts.csv", "\ufeffid,title,score,url\n"+
		"a1,Apple's stock rises,10,https://x/a1\n"+
		"a2,Apple beats Tesla earnings,250,https://x/a2\n"+
		"a3,,5,\n"+
		"a4,GME to the moon,250,https://x/a4\n")

	src := NewFileSource(path, FileOptions{})
	records, err := src.Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortNew})
	require.NoError(t, err)
	require.Len(t, records, 4, "rows without text are kept as empty records")
	assert.Equal(t, mentions.RawRecord{ID: "a1", Text: "Apple's stock rises", Score: 10, URL: "https://x/a1"}, records[0])
	assert.Equal(t, mentions.RawRecord{ID: "a3", Text: "", Score: 5}, records[2])

	top, err := src.Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortTop})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a4", "a1", "a3"}, ids(top), "score descending, file order on ties")

	limited, err := src.Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortTop, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, ids(limited))
}

func ids(records []mentions.RawRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestFileSourceKeepsEmptyTextRows(t *testing.T) {
	path := writeFile(t, "posts.csv", "id,title,selftext\nb1,,\nb2,Tesla beats Ford,\nb3,,\n")
	records, err := NewFileSource(path, FileOptions{}).Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortNew})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "b3"}, ids(records))
	assert.Empty(t, records[0].Text)
	assert.Empty(t, records[2].Text)
}

func TestFileSourceTSVWithBody(t *testing.T) {
	path := writeFile(t, "posts.tsv", "headline\tselftext\tups\n"+
		"Nvidia earnings\tJensen delivers again\t12.0\n"+
		"\tOnly a body mentioning AMD\t3\n")

	records, err := NewFileSource(path, FileOptions{IncludeBody: true}).Fetch(context.Background(), mentions.FetchOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Nvidia earnings\nJensen delivers again", records[0].Text)
	assert.Equal(t, 12, records[0].Score)
	assert.Equal(t, "row-1", records[0].ID)
	assert.Equal(t, "Only a body mentioning AMD", records[1].Text)
	assert.Equal(t, "row-2", records[1].ID)
}

func TestFileSourceExplicitColumns(t *testing.T) {
	path := writeFile(t, "export.csv", "c1,c2,c3\nx,Ford recalls trucks,7\ny,GM follows,9\n")

	records, err := NewFileSource(path, FileOptions{Columns: Columns{ID: "c1", Title: "#2", Score: "c3"}}).
		Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortTop})
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, ids(records))
	assert.Equal(t, "GM follows", records[0].Text)

	_, err = NewFileSource(path, FileOptions{Columns: Columns{Title: "missing"}}).Fetch(context.Background(), mentions.FetchOptions{})
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)

	_, err = NewFileSource(path, FileOptions{Columns: Columns{Title: "#9"}}).Fetch(context.Background(), mentions.FetchOptions{})
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)
}

func TestFileSourceHeaderless(t *testing.T) {
	path := writeFile(t, "titles.csv", "Tesla deliveries beat\nRivian cuts guidance\n")
	records, err := NewFileSource(path, FileOptions{}).Fetch(context.Background(), mentions.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tesla deliveries beat", "Rivian cuts guidance"}, []string{records[0].Text, records[1].Text})
}

func TestFileSourcePlainText(t *testing.T) {
	path := writeFile(t, "titles.txt", "Apple beats Tesla earnings\n\n  Costco, Walmart and Target  \n")
	records, err := NewFileSource(path, FileOptions{}).Fetch(context.Background(), mentions.FetchOptions{Sort: mentions.SortTop})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Costco, Walmart and Target", records[1].Text)
	assert.Equal(t, "row-2", records[1].ID)
}

func TestFileSourceJSON(t *testing.T) {
	path := writeFile(t, "posts.json", `[{"id":"j1","text":"Boeing delays","score":3},{"text":"Airbus wins"}]`)
	records, err := NewFileSource(path, FileOptions{}).Fetch(context.Background(), mentions.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"j1", "row-2"}, ids(records))

	path = writeFile(t, "posts.jsonl", "{\"id\":\"l1\",\"text\":\"SoFi\"}\n{\"id\":\"l2\",\"text\":\"Lucid\"}\n")
	records, err = NewFileSource(path, FileOptions{}).Fetch(context.Background(), mentions.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"l1", "l2"}, ids(records))

	path = writeFile(t, "broken.json", `[{"id":`)
	_, err = NewFileSource(path, FileOptions{}).Fetch(context.Background(), mentions.FetchOptions{})
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)
}

func TestFileSourceMissingFile(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope.csv"), FileOptions{}).
		Fetch(context.Background(), mentions.FetchOptions{})
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteRecordsRoundTrip(t *testing.T) {
	in := []mentions.RawRecord{
		{ID: "1", Text: "Apple, Inc. \"AAPL\" rallies", Score: 5, URL: "https://x/1"},
		{ID: "2", Text: "Tesla", Score: 9},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRecords(&buf, in))
	out, err := ReadRecords(strings.NewReader(buf.String()), FormatCSV, FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadFileMetadata(t *testing.T) {
	path := writeFile(t, "posts.csv", "Post_ID,Headline,Upvotes,Permalink\n1,x,2,y\n")
	meta, err := ReadFileMetadata(path, ColumnCandidates{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Post_ID", "Headline", "Upvotes", "Permalink"}, meta.Columns)
	assert.Equal(t, Columns{ID: "Post_ID", Title: "Headline", Score: "Upvotes", URL: "Permalink"}, meta.Suggested)

	meta, err = ReadFileMetadata(writeFile(t, "t.txt", "a\n"), ColumnCandidates{})
	require.NoError(t, err)
	assert.Empty(t, meta.Columns)
}

func TestArrange(t *testing.T) {
	in := []mentions.RawRecord{{ID: "a", Score: 1}, {ID: "b", Score: 3}, {ID: "c", Score: 3}}
	assert.Equal(t, []string{"b", "c", "a"}, ids(Arrange(in, mentions.FetchOptions{Sort: mentions.SortTop})))
	assert.Equal(t, []string{"a", "b"}, ids(Arrange(in, mentions.FetchOptions{Sort: mentions.SortHot, Limit: 2})))
	assert.Equal(t, []string{"a", "b", "c"}, ids(in), "input is not reordered")
}
