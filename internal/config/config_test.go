package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/orgtrends/mentions"
)

// isolate runs the test in an empty directory with no user config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	for _, key := range []string{"REDDIT_CLIENT_ID", "REDDIT_CLIENT_SECRET", "REDDIT_USER_AGENT", "GEMINI_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY", "OLLAMA_HOST"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	return dir
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	s, used, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, used)
	assert.Equal(t, mentions.DefaultTopN, s.Pipeline.TopN)
	assert.Equal(t, mentions.SortTop, s.Pipeline.Fetch.Sort)
	assert.Equal(t, mentions.DefaultNoisePatterns, s.Pipeline.NoisePatterns)
	assert.Equal(t, SourceReddit, s.Source)
	assert.Equal(t, "stocks", s.Reddit.Subreddit)
	assert.Equal(t, time.Hour, s.Cache.TTL)
	assert.Equal(t, "terminal", s.Render.Format)
}

func TestLoadFileEnvAndDotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte(`
pipeline:
  top_n: 5
  fetch:
    sort: NEW
    limit: 200
source: file
file:
  path: posts.csv
  include_body: true
  columns:
    title: headline
reddit:
  subreddit: r/investing
cache:
  ttl: 10m
render:
  format: csv
  bar_width: 12
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("REDDIT_CLIENT_ID=from-dotenv\nREDDIT_CLIENT_SECRET=s3cret\n"), 0o644))
	t.Setenv("ORGTRENDS_PIPELINE_TOP_N", "7")
	t.Setenv("ORGTRENDS_BACKEND", "Ollama")

	s, used, err := Load(LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultFileName, used)
	assert.Equal(t, 7, s.Pipeline.TopN, "environment beats the file")
	assert.Equal(t, mentions.SortNew, s.Pipeline.Fetch.Sort)
	assert.Equal(t, 200, s.Pipeline.Fetch.Limit)
	assert.Equal(t, SourceFile, s.Source)
	assert.Equal(t, "ollama", s.Backend)
	assert.Equal(t, "posts.csv", s.File.Path)
	assert.True(t, s.File.IncludeBody)
	assert.Equal(t, "headline", s.File.Columns.Title)
	assert.Equal(t, "investing", s.Reddit.Subreddit)
	assert.Equal(t, "from-dotenv", s.Reddit.ClientID)
	assert.Equal(t, "s3cret", s.Reddit.ClientSecret)
	assert.Equal(t, 10*time.Minute, s.Cache.TTL)
	assert.Equal(t, "csv", s.Render.Format)
	assert.Equal(t, 12, s.Render.BarWidth)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := isolate(t)
	t.Setenv("ORGTRENDS_PIPELINE_TOP_N", "-3")
	_, _, err := Load(LoadOptions{})
	require.ErrorIs(t, err, mentions.ErrInvalidTopN)

	t.Setenv("ORGTRENDS_PIPELINE_TOP_N", "")
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: word2vec\n"), 0o644))
	_, _, err = Load(LoadOptions{ConfigFile: path})
	require.ErrorContains(t, err, "unknown backend")

	_, _, err = Load(LoadOptions{ConfigFile: filepath.Join(dir, "missing.yaml")})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{name: "source", mutate: func(s *Settings) { s.Source = "twitter" }, want: "unknown source"},
		{name: "format", mutate: func(s *Settings) { s.Render.Format = "svg" }, want: "unknown render format"},
		{name: "sort", mutate: func(s *Settings) { s.Pipeline.Fetch.Sort = "rising" }, want: "unknown sort order"},
		{name: "log level", mutate: func(s *Settings) { s.Logging.Level = "loud" }, want: "logging"},
		{name: "max records", mutate: func(s *Settings) { s.Server.MaxRecords = -1 }, want: "max_records"},
	}
	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			require.ErrorContains(t, s.Validate(), tt.want)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"orgtrends.yaml", "orgtrends.json"} {
		t.Run(name, func(t *testing.T) {
			dir := isolate(t)
			path := filepath.Join(dir, "nested", name)
			s := Default()
			s.Pipeline.TopN = 9
			s.Backend = "gemini"
			s.Reddit.ClientSecret = "never-written"
			s.Gemini.APIKey = "never-written"
			require.NoError(t, Save(path, s))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "never-written")
			_, err = os.Stat(path + ".tmp")
			assert.ErrorIs(t, err, os.ErrNotExist)

			loaded, used, err := Load(LoadOptions{ConfigFile: path})
			require.NoError(t, err)
			assert.Equal(t, path, used)
			assert.Equal(t, 9, loaded.Pipeline.TopN)
			assert.Equal(t, "gemini", loaded.Backend)
			assert.Equal(t, s.Anthropic.InitialBackoff, loaded.Anthropic.InitialBackoff)
			assert.Equal(t, s.Render.ImageWidth, loaded.Render.ImageWidth)
		})
	}
}
