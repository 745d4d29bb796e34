package app

import (
	"strings"
	"sync"
)

// LogSink keeps the most recent log lines for display in the viewer. It is an io.Writer
// so it can sit behind any slog handler.
type LogSink struct {
	mu     sync.Mutex
	lines  []string
	limit  int
	notify func()
}

// NewLogSink keeps at most limit lines. Non-positive limits fall back to maxLogLines.
func NewLogSink(limit int) *LogSink {
	if limit <= 0 {
		limit = maxLogLines
	}
	return &LogSink{limit: limit}
}

func (l *LogSink) Write(p []byte) (int, error) {
	text := strings.ReplaceAll(string(p), "\r\n", "\n")
	l.mu.Lock()
	for _, part := range strings.Split(text, "\n") {
		if part == "" {
			continue
		}
		l.lines = append(l.lines, part)
	}
	if len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
	notify := l.notify
	l.mu.Unlock()

	if notify != nil {
		notify()
	}
	return len(p), nil
}

// Text joins the retained lines.
func (l *LogSink) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

// Lines returns a copy of the retained lines.
func (l *LogSink) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func (l *LogSink) setNotify(fn func()) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}
