package classify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yashubustudio/orgtrends/mentions"
)

type countingClassifier struct {
	calls  atomic.Int32
	fail   atomic.Bool
	closed bool
}

func (c *countingClassifier) Classify(_ context.Context, text string) ([]mentions.Span, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("backend down")
	}
	return []mentions.Span{{Text: text, Label: "ORG"}}, nil
}

func (c *countingClassifier) Close() error {
	c.closed = true
	return nil
}

func TestCachedMemory(t *testing.T) {
	inner := &countingClassifier{}
	c, err := NewCached(inner, "test:v1", CacheConfig{TTL: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		spans, err := c.Classify(context.Background(), "Apple")
		require.NoError(t, err)
		assert.Equal(t, []mentions.Span{{Text: "Apple", Label: "ORG"}}, spans)
	}
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, c.Len())

	spans, _ := c.Classify(context.Background(), "Apple")
	spans[0].Text = "mutated"
	again, _ := c.Classify(context.Background(), "Apple")
	assert.Equal(t, "Apple", again[0].Text, "callers get copies")

	require.NoError(t, c.Close())
	assert.True(t, inner.closed)
}

func TestCachedSkipsErrors(t *testing.T) {
	inner := &countingClassifier{}
	inner.fail.Store(true)
	c, err := NewCached(inner, "test:v1", CacheConfig{})
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), "Tesla")
	require.Error(t, err)
	inner.fail.Store(false)
	spans, err := c.Classify(context.Background(), "Tesla")
	require.NoError(t, err)
	assert.Len(t, spans, 1)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spans")
	inner := &countingClassifier{}
	c, err := NewCached(inner, "test:v1", CacheConfig{Dir: dir})
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), "Nvidia")
	require.NoError(t, err)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ".json", filepath.Ext(files[0].Name()))

	fresh := &countingClassifier{}
	c2, err := NewCached(fresh, "test:v1", CacheConfig{Dir: dir})
	require.NoError(t, err)
	spans, err := c2.Classify(context.Background(), "Nvidia")
	require.NoError(t, err)
	assert.Equal(t, []mentions.Span{{Text: "Nvidia", Label: "ORG"}}, spans)
	assert.Equal(t, int32(0), fresh.calls.Load())

	other, err := NewCached(fresh, "test:v2", CacheConfig{Dir: dir})
	require.NoError(t, err)
	_, err = other.Classify(context.Background(), "Nvidia")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fresh.calls.Load(), "a different backend id misses the cache")
}

func TestCachedDiskWriteFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spans")
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	inner := &countingClassifier{}
	c, err := NewCached(inner, "test:v1", CacheConfig{Dir: dir}, WithCacheLogger(logger))
	require.NoError(t, err)

	// A plain file where the directory was makes every write fail.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("not a dir"), 0o644))

	spans, err := c.Classify(context.Background(), "Nvidia")
	require.NoError(t, err, "a failed disk write does not fail classification")
	assert.Equal(t, []mentions.Span{{Text: "Nvidia", Label: "ORG"}}, spans)
	assert.Equal(t, int64(1), c.DiskErrors())
	assert.Contains(t, logs.String(), "classifier cache write failed")
	assert.Contains(t, logs.String(), "backend=test:v1")

	_, err = c.Classify(context.Background(), "Nvidia")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.DiskErrors(), "memory hits do not touch the disk")
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedNilInner(t *testing.T) {
	_, err := NewCached(nil, "x", CacheConfig{})
	require.ErrorIs(t, err, mentions.ErrClassifierUnavailable)
}
