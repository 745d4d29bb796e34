package mentions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	records []RawRecord
	err     error
	got     FetchOptions
}

func (s *staticSource) Fetch(_ context.Context, opts FetchOptions) ([]RawRecord, error) {
	s.got = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

type recordingObserver struct {
	mu        sync.Mutex
	fetched   map[string]int
	extracted int
	failures  int
	tables    []RankedTable
}

func (o *recordingObserver) RecordsFetched(source string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fetched == nil {
		o.fetched = make(map[string]int)
	}
	o.fetched[source] += n
}

func (o *recordingObserver) RecordExtracted(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.extracted++
	if err != nil {
		o.failures++
	}
}

func (o *recordingObserver) TableRanked(table RankedTable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tables = append(o.tables, table)
}

func TestServiceRun(t *testing.T) {
	src := &staticSource{records: []RawRecord{
		{ID: "t3_a", Text: "Apple's stock rises", Score: 120},
		{ID: "t3_b", Text: "Apple beats Tesla earnings", Score: 80},
		{ID: "t3_c", Text: "Nothing to see here"},
	}}
	obs := &recordingObserver{}
	cfg := DefaultConfig()
	cfg.TopN = 2
	cfg.Fetch = FetchOptions{Limit: 50, Sort: SortNew}

	svc, err := NewService(src, newWordClassifier("Apple", "ORG", "Tesla", "ORG"), cfg, nil,
		WithServiceObserver(obs), WithSourceName("reddit"))
	require.NoError(t, err)

	res, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, FetchOptions{Limit: 50, Sort: SortNew}, src.got)
	assert.Equal(t, RankedTable{{"Apple", 2}, {"Tesla", 1}}, res.Table)
	assert.Len(t, res.Matches, 3)
	assert.Equal(t, 3, res.MentionCount())
	assert.Equal(t, src.records, res.Records)

	assert.Equal(t, 3, obs.fetched["reddit"])
	assert.Equal(t, 3, obs.extracted)
	require.Len(t, obs.tables, 1)
	assert.Equal(t, res.Table, obs.tables[0])
}

func TestServiceFoldUnicodeOptIn(t *testing.T) {
	records := []RawRecord{{ID: "1", Text: "Ｔｅｓｌａ beats Tesla"}}
	svc, err := NewService(nil, newWordClassifier("Tesla", "ORG"), DefaultConfig(), nil)
	require.NoError(t, err)

	res, err := svc.Analyze(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, RankedTable{{"Tesla", 1}}, res.Table, "fullwidth text is left alone by default")

	cfg := DefaultConfig()
	cfg.FoldUnicode = true
	res, err = svc.AnalyzeWith(context.Background(), records, cfg)
	require.NoError(t, err)
	assert.Equal(t, RankedTable{{"Tesla", 2}}, res.Table)
}

func TestServiceRunSourceFailure(t *testing.T) {
	upstream := errors.New("dial tcp: connection refused")
	classifier := newWordClassifier("Apple", "ORG")
	svc, err := NewService(&staticSource{err: upstream}, classifier, DefaultConfig(), nil)
	require.NoError(t, err)

	_, err = svc.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
	require.ErrorIs(t, err, upstream)
	assert.Equal(t, int32(0), classifier.calls.Load())

	svc, err = NewService(nil, classifier, DefaultConfig(), nil)
	require.NoError(t, err)
	_, err = svc.Run(context.Background())
	require.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestServiceRunClassifierFailure(t *testing.T) {
	src := &staticSource{records: []RawRecord{{ID: "1", Text: "Apple"}, {ID: "2", Text: "Tesla"}}}
	svc, err := NewService(src, &failingClassifier{err: errors.New("model not loaded")}, DefaultConfig(), nil)
	require.NoError(t, err)

	res, err := svc.Run(context.Background())
	require.ErrorIs(t, err, ErrClassifierUnavailable)
	assert.Nil(t, res)
}

func TestServiceAnalyze(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopN = 1
	cfg.Workers = 4
	svc, err := NewService(nil, newWordClassifier("A", "ORG", "B", "ORG", "C", "ORG"), cfg, nil)
	require.NoError(t, err)

	records := []RawRecord{
		{ID: "1", Text: "A"}, {ID: "2", Text: "B"}, {ID: "3", Text: "A"},
		{ID: "4", Text: "C"}, {ID: "5", Text: "B"},
	}
	res, err := svc.Analyze(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, RankedTable{{"A", 2}}, res.Table)

	res, err = svc.Analyze(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Table)
}

func TestServiceConfig(t *testing.T) {
	_, err := NewService(nil, nil, DefaultConfig(), nil)
	require.ErrorIs(t, err, ErrClassifierUnavailable)

	_, err = NewService(nil, newWordClassifier(), Config{TopN: -1}, nil)
	require.ErrorIs(t, err, ErrInvalidTopN)

	svc, err := NewService(nil, newWordClassifier("Apple", "ORG"), Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopN, svc.Config().TopN)

	require.ErrorIs(t, svc.UpdateConfig(Config{TopN: -5}), ErrInvalidTopN)
	assert.Equal(t, DefaultTopN, svc.Config().TopN, "rejected update leaves config untouched")

	require.Error(t, svc.UpdateConfig(Config{NoisePatterns: []string{"("}}))

	require.NoError(t, svc.UpdateConfig(Config{TopN: 3, NoisePatterns: []string{}}))
	res, err := svc.Analyze(context.Background(), []RawRecord{{ID: "1", Text: "Apple's"}})
	require.NoError(t, err)
	assert.Empty(t, res.Table, "without noise patterns the possessive stays attached")
}

func TestServiceOneOffConfig(t *testing.T) {
	src := &staticSource{records: []RawRecord{
		{ID: "1", Text: "Apple and Tesla"},
		{ID: "2", Text: "Tesla again"},
	}}
	classifier := newWordClassifier("Apple", "ORG", "Tesla", "ORG")
	svc, err := NewService(src, classifier, DefaultConfig(), nil)
	require.NoError(t, err)

	override := svc.Config()
	override.TopN = 1
	override.Fetch = FetchOptions{Sort: SortHot, Limit: 2}
	res, err := svc.RunWith(context.Background(), override)
	require.NoError(t, err)
	assert.Equal(t, RankedTable{{"Tesla", 2}}, res.Table)
	assert.Equal(t, FetchOptions{Sort: SortHot, Limit: 2}, src.got)
	assert.Equal(t, DefaultTopN, svc.Config().TopN, "service configuration is untouched")

	override.TopN = -1
	calls := classifier.calls.Load()
	_, err = svc.AnalyzeWith(context.Background(), src.records, override)
	require.ErrorIs(t, err, ErrInvalidTopN)
	assert.Equal(t, calls, classifier.calls.Load())

	override.TopN = 5
	override.Category = "person"
	res, err = svc.AnalyzeWith(context.Background(), src.records, override)
	require.NoError(t, err)
	assert.Empty(t, res.Table)
}
