package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/orgtrends/classify"
	"yashubustudio/orgtrends/internal/config"
	"yashubustudio/orgtrends/mentions"
	"yashubustudio/orgtrends/source"
)

func fileSettings(t *testing.T, lines ...string) config.Settings {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posts.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	s := config.Default()
	s.Source = config.SourceFile
	s.File.Path = path
	return s
}

func TestBuildClassifier(t *testing.T) {
	ctx := context.Background()
	s := config.Default()
	backend, err := BuildClassifier(ctx, s, discard())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(backend.ID(), "gazetteer:"))
	_, cached := backend.(*classify.Cached)
	assert.False(t, cached)

	s.Gazetteer.Path = filepath.Join(t.TempDir(), "missing.csv")
	backend, err = BuildClassifier(ctx, s, discard())
	require.NoError(t, err, "a missing gazetteer file falls back to built-in entries")
	assert.Equal(t, len(classify.DefaultEntries()), backend.(*classify.Gazetteer).Size())

	s.Backend = "word2vec"
	_, err = BuildClassifier(ctx, s, discard())
	require.ErrorIs(t, err, mentions.ErrClassifierUnavailable)
}

func TestBuildClassifierOllamaReachability(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	s := config.Default()
	s.Backend = classify.BackendOllama
	s.Ollama.Host = srv.URL

	backend, err := BuildClassifier(context.Background(), s, discard())
	require.NoError(t, err)
	assert.Equal(t, "ollama:"+classify.DefaultOllamaModel, backend.ID())
	_, cached := backend.(*classify.Cached)
	assert.True(t, cached)
	require.NoError(t, backend.Close())

	srv.Close()
	_, err = BuildClassifier(context.Background(), s, discard())
	require.ErrorIs(t, err, mentions.ErrClassifierUnavailable)
	assert.Contains(t, err.Error(), srv.URL)
}

func TestBuildSource(t *testing.T) {
	s := config.Default()
	s.Reddit.ClientID = ""
	_, err := BuildSource(s)
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)

	s.Source = config.SourceFile
	_, err = BuildSource(s)
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)

	s.File.Path = "posts.csv"
	src, err := BuildSource(s)
	require.NoError(t, err)
	assert.NotNil(t, src)
}

func TestNewWithMissingCredentials(t *testing.T) {
	s := config.Default()
	s.Reddit.ClientID, s.Reddit.ClientSecret = "", ""
	a, err := New(context.Background(), s, discard())
	require.NoError(t, err)
	defer a.Close()

	require.Error(t, a.SourceErr)
	_, err = a.Run(context.Background())
	require.ErrorIs(t, err, mentions.ErrSourceUnavailable)

	res, err := a.Service.Analyze(context.Background(), []mentions.RawRecord{{ID: "1", Text: "Tesla beats Ford"}})
	require.NoError(t, err, "analysis works without a source")
	assert.Equal(t, mentions.RankedTable{{Name: "Tesla", Count: 1}, {Name: "Ford", Count: 1}}, res.Table)
}

func TestRunFileSourceWithMetrics(t *testing.T) {
	s := fileSettings(t,
		"Why Tesla and Apple will moon",
		"Apple earnings tomorrow",
		"Nothing to see here",
	)
	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), s, discard(), WithRegistry(reg))
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.Metrics)

	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mentions.RankedTable{{Name: "Apple", Count: 2}, {Name: "Tesla", Count: 1}}, res.Table)
	assert.Len(t, res.Records, 3)
	assert.Equal(t, s.File.Path, a.SourceDetail)
	assert.InDelta(t, 3, testutil.ToFloat64(a.Metrics.FetchedTotal.WithLabelValues(config.SourceFile)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(a.Metrics.EntityMentions.WithLabelValues("Apple")), 0)
}

type stubClassifier struct {
	spans []mentions.Span
}

func (s stubClassifier) Classify(context.Context, string) ([]mentions.Span, error) {
	return s.spans, nil
}

func TestNewDescribesRedditSource(t *testing.T) {
	s := config.Default()
	s.Reddit.ClientID, s.Reddit.ClientSecret = "id", "secret"
	a, err := New(context.Background(), s, discard())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "r/stocks", a.SourceDetail)

	s.Reddit.Subreddit = "r/investing"
	a, err = New(context.Background(), s, discard())
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "r/investing", a.SourceDetail)
}

func TestNewWithInjectedClassifier(t *testing.T) {
	s := fileSettings(t, "anything")
	stub := stubClassifier{spans: []mentions.Span{{Text: "Acme", Label: "ORG"}}}
	a, err := New(context.Background(), s, discard(), WithClassifier(stub))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "custom", a.Classifier.ID())
	res, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mentions.RankedTable{{Name: "Acme", Count: 1}}, res.Table)
}

func TestWriteTable(t *testing.T) {
	s := fileSettings(t, "x")
	s.Render.Format = "csv"
	s.Render.Output = filepath.Join(t.TempDir(), "out", "table.csv")
	a, err := New(context.Background(), s, discard())
	require.NoError(t, err)
	defer a.Close()

	table := mentions.RankedTable{{Name: "Apple", Count: 3}}
	var stdout strings.Builder
	require.NoError(t, a.WriteTable(&stdout, table))
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(s.Render.Output)
	require.NoError(t, err)
	assert.Equal(t, "Company Name,Number of Times Mentioned\nApple,3\n", string(data))

	a.Settings.Render.Output = ""
	a.Settings.Render.Format = "terminal"
	require.NoError(t, a.WriteTable(&stdout, table))
	assert.Contains(t, stdout.String(), "Apple")

	a.Settings.Render.Format = "svg"
	require.Error(t, a.WriteTable(&stdout, table))
}

func TestLogSink(t *testing.T) {
	sink := NewLogSink(2)
	notified := 0
	sink.setNotify(func() { notified++ })

	_, err := sink.Write([]byte("one\r\ntwo\n\nthree\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three"}, sink.Lines())
	assert.Equal(t, "two\nthree", sink.Text())
	assert.Equal(t, 1, notified)
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestSplitNonEmptyLines(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, splitNonEmptyLines("  a \n\n b c\n   \n"))
	assert.Nil(t, splitNonEmptyLines(" \n"))
	assert.Equal(t, "Apple, Tesla", joinNames([]mentions.EntityMatch{{Name: "Apple"}, {Name: "Tesla"}}))
}

func TestTitleColumnChoices(t *testing.T) {
	options, selected, ok := titleColumnChoices(source.FileMetadata{
		Columns:   []string{"id", "", "headline", "score"},
		Suggested: source.Columns{Title: "headline"},
	})
	require.True(t, ok)
	assert.Equal(t, []string{"id", "headline", "score"}, options)
	assert.Equal(t, 1, selected)

	_, _, ok = titleColumnChoices(source.FileMetadata{Columns: []string{"title"}})
	assert.False(t, ok, "a single column leaves nothing to pick")

	path := filepath.Join(t.TempDir(), "posts.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,title,score\n1,Tesla beats Ford,3\n"), 0o644))
	meta, err := source.ReadFileMetadata(path, source.ColumnCandidates{})
	require.NoError(t, err)
	options, selected, ok = titleColumnChoices(meta)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "title", "score"}, options)
	assert.Equal(t, "title", options[selected])
}
