package trends

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/llm"
	"github.com/moolen/insight/internal/logging"
)

// GroundedType is the adapter type of the search-grounded model backend.
const GroundedType = "grounded-trends"

// GroundedConfig is the `config` map of a grounded-trends instance.
type GroundedConfig struct {
	// Model names a models entry whose provider supports search grounding. Default: default
	Model string `yaml:"model"`

	// RecencyDays is the maximum age of posts considered, 1 to 7. Default: 7
	RecencyDays int `yaml:"recency_days"`
}

// GroundedBackend asks a model with web search enabled and takes citations
// from its grounding metadata.
type GroundedBackend struct {
	name   string
	config GroundedConfig
	models adapter.ModelSource
	health *adapter.HealthState
	logger *logging.Logger

	mu       sync.Mutex
	provider llm.Provider
}

// NewGroundedInstance is the adapter.Factory for grounded-trends instances.
func NewGroundedInstance(name string, raw map[string]interface{}, deps adapter.Deps) (adapter.Instance, error) {
	var cfg GroundedConfig
	if err := adapter.DecodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	return NewGrounded(name, cfg, deps.Models), nil
}

// NewGrounded creates a grounded backend. The model is resolved on Start.
func NewGrounded(name string, cfg GroundedConfig, models adapter.ModelSource) *GroundedBackend {
	if cfg.Model == "" {
		cfg.Model = "default"
	}
	cfg.RecencyDays = clamp(cfg.RecencyDays, 1, 7, 7)
	return &GroundedBackend{
		name:   name,
		config: cfg,
		models: models,
		health: adapter.NewHealthState(),
		logger: logging.GetLogger("adapter.trends").WithField("instance", name),
	}
}

// Tag implements capability.Backend.
func (b *GroundedBackend) Tag() capability.Tag { return capability.Trends }

// Metadata implements adapter.Instance.
func (b *GroundedBackend) Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        b.name,
		Version:     Version,
		Description: "Thai social media trends via search-grounded model " + b.config.Model,
		Type:        GroundedType,
	}
}

// Start implements adapter.Instance.
func (b *GroundedBackend) Start(ctx context.Context) error {
	b.health.Set(adapter.Degraded)
	_, err := b.resolve(ctx)
	return b.health.Observe(err)
}

// Stop implements adapter.Instance.
func (b *GroundedBackend) Stop(ctx context.Context) error {
	b.health.Set(adapter.Stopped)
	return nil
}

// Health implements adapter.Instance.
func (b *GroundedBackend) Health(ctx context.Context) adapter.HealthStatus {
	return b.health.Get()
}

func (b *GroundedBackend) resolve(ctx context.Context) (llm.Provider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.provider != nil {
		return b.provider, nil
	}
	if b.models == nil {
		return nil, fmt.Errorf("no model source for %q", b.config.Model)
	}
	p, err := b.models.Model(ctx, b.config.Model)
	if err != nil {
		return nil, err
	}
	b.provider = p
	return p, nil
}

// Fetch implements capability.Backend.
func (b *GroundedBackend) Fetch(ctx context.Context, req capability.Request) (capability.Payload, error) {
	p, err := b.resolve(ctx)
	if err != nil {
		return nil, capability.Unreachable("trends model: %v", err)
	}

	q := req.Query
	platforms := platformsFor(q)
	days := recencyDays(q, b.config.RecencyDays)

	resp, err := p.Generate(ctx, llm.Request{
		System: socialListeningSystem,
		Prompt: groundedPrompt(q, platforms, days),
		Search: true,
	})
	if err != nil {
		return nil, err
	}

	var a analysis
	if err := llm.DecodeJSON(resp.Text, &a); err != nil {
		return nil, capability.Malformed("trends model answer: %v", err)
	}

	digest := &Digest{
		Platforms:   platformNames(platforms),
		RecencyDays: days,
		Origin:      p.Name() + "/" + p.Model() + " + web search",
	}
	a.apply(digest)
	for _, c := range resp.Citations {
		digest.Sources = append(digest.Sources, Source{Title: c.Title, URL: c.URL, Platform: platformOf(c.URL)})
	}
	if len(digest.Sources) == 0 && !digest.Empty() {
		digest.Notes = append(digest.Notes, "The model cited no sources; treat these findings with caution.")
	}
	return digest, nil
}

func groundedPrompt(q capability.Query, platforms []Platform, days int) string {
	terms := searchTerms(q)
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", q.Text)
	fmt.Fprintf(&b, "Search only posts and discussions from the past %d days. Use these searches:\n", days)
	for _, pl := range platforms {
		fmt.Fprintf(&b, "- %s\n", pl.siteQuery(terms))
	}
	if q.Params.Segment != "" {
		fmt.Fprintf(&b, "\nFocus on the %s audience.\n", strings.ReplaceAll(q.Params.Segment, "_", " "))
	}
	b.WriteString("\n" + analysisFormat)
	return b.String()
}
