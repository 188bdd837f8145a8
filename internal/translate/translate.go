// Package translate turns the engine's Spanish labels into the target
// language. Translation is an enhancement: callers always get text back,
// the original when the backend fails.
package translate

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"mspro-labs/cfe-tariffs/internal/ai"
	"mspro-labs/cfe-tariffs/internal/config"
)

var logger = log.WithField("component", "translate")

// Backend performs a single remote translation.
type Backend interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

// Adapter adds the blank pass-through, the failure fallback and a cache to a Backend.
type Adapter struct {
	backend Backend
	cache   *lru.Cache[string, string]
}

const DefaultCacheSize = 4096

func NewAdapter(backend Backend, cacheSize int) *Adapter {
	a := &Adapter{backend: backend}
	if cacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		a.cache, _ = lru.New[string, string](cacheSize)
	}
	return a
}

// Translate never fails: blank input is returned untouched and backend
// errors yield the original text.
func (a *Adapter) Translate(ctx context.Context, text, lang string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	key := lang + "\x00" + text
	if a.cache != nil {
		if hit, ok := a.cache.Get(key); ok {
			return hit
		}
	}
	out, err := a.backend.Translate(ctx, text, lang)
	if err != nil {
		logger.WithField("text", text).Warnf("Translation failed: %v", err)
		return text
	}
	if a.cache != nil {
		a.cache.Add(key, out)
	}
	return out
}

// Noop leaves text as it is.
type Noop struct{}

func (Noop) Translate(_ context.Context, text, _ string) (string, error) { return text, nil }

// New builds the adapter selected by TRANSLATOR. The returned func releases the backend.
func New(ctx context.Context, cfg config.AppConfig) (*Adapter, func(), error) {
	switch cfg.Translator {
	case "gemini":
		client, err := ai.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, nil, err
		}
		return NewAdapter(client, DefaultCacheSize), client.Close, nil
	case "google":
		return NewAdapter(NewGoogleWeb(DefaultGoogleURL), DefaultCacheSize), func() {}, nil
	case "none", "":
		return NewAdapter(Noop{}, 0), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown translator %q", cfg.Translator)
	}
}
