package mentions

import "errors"

var (
	// ErrClassifierUnavailable means extraction cannot run at all.
	ErrClassifierUnavailable = errors.New("entity classifier unavailable")
	// ErrInvalidTopN is returned when the requested table size is not positive.
	ErrInvalidTopN = errors.New("top-n must be a positive integer")
	// ErrSourceUnavailable wraps any failure of the upstream record source.
	ErrSourceUnavailable = errors.New("record source unavailable")
)
