package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/moolen/insight/internal/config"
	"github.com/moolen/insight/internal/llm"
)

// Models creates providers for the `models` config section on first use and
// shares them between the classifier, the commentator and the backends.
type Models struct {
	settings map[string]config.ModelSettings
	create   func(ctx context.Context, cfg llm.Config) (llm.Provider, error)

	mu        sync.Mutex
	providers map[string]llm.Provider
}

// NewModels returns a source for settings.
func NewModels(settings map[string]config.ModelSettings) *Models {
	return &Models{
		settings:  settings,
		create:    llm.New,
		providers: make(map[string]llm.Provider),
	}
}

// Model implements ModelSource.
func (m *Models) Model(ctx context.Context, name string) (llm.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.providers[name]; ok {
		return p, nil
	}
	s, ok := m.settings[name]
	if !ok {
		return nil, fmt.Errorf("model %q is not defined under models", name)
	}
	p, err := m.create(ctx, llm.Config{
		Provider:    s.Provider,
		Model:       s.Model,
		APIKey:      s.APIKey,
		BaseURL:     s.BaseURL,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", name, err)
	}
	m.providers[name] = p
	return p, nil
}

// StaticModels is a fixed ModelSource.
type StaticModels map[string]llm.Provider

// Model implements ModelSource.
func (s StaticModels) Model(_ context.Context, name string) (llm.Provider, error) {
	p, ok := s[name]
	if !ok {
		return nil, fmt.Errorf("model %q is not defined under models", name)
	}
	return p, nil
}
