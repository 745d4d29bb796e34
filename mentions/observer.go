package mentions

import "time"

// Observer receives pipeline measurements. Implementations must be safe for
// concurrent use because RecordExtracted is called from extractor workers.
type Observer interface {
	RecordsFetched(source string, n int)
	RecordExtracted(elapsed time.Duration, err error)
	TableRanked(table RankedTable)
}

type nopObserver struct{}

func (nopObserver) RecordsFetched(string, int)           {}
func (nopObserver) RecordExtracted(time.Duration, error) {}
func (nopObserver) TableRanked(RankedTable)              {}
