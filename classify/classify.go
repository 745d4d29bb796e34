// Package classify provides EntityClassifier backends for the mentions pipeline.
package classify

import (
	"fmt"
	"io"

	"yashubustudio/orgtrends/mentions"
)

// Backend is an EntityClassifier that can be identified for caching and released when done.
type Backend interface {
	mentions.EntityClassifier
	io.Closer
	// ID identifies the backend and model, used for cache keys.
	ID() string
}

// Backend names accepted by configuration.
const (
	BackendGazetteer = "gazetteer"
	BackendORT       = "ort"
	BackendOllama    = "ollama"
	BackendGemini    = "gemini"
	BackendAnthropic = "anthropic"
)

// Backends lists every backend name in display order.
var Backends = []string{BackendGazetteer, BackendORT, BackendOllama, BackendGemini, BackendAnthropic}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", mentions.ErrClassifierUnavailable, fmt.Sprintf(format, args...))
}

func unavailableErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, mentions.ErrClassifierUnavailable, err)
}
