// Package creative analyzes the ad images of a campaign with a multimodal model.
package creative

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/llm"
	"github.com/moolen/insight/internal/logging"
	"github.com/moolen/insight/internal/warehouse"
	"golang.org/x/sync/errgroup"
)

// Type is the adapter type name.
const Type = "creative"

// Version is the backend implementation version.
const Version = "1.0.0"

func init() {
	if err := adapter.RegisterFactory(Type, NewInstance); err != nil {
		logger := logging.GetLogger("adapter.creative")
		logger.Warn("Failed to register creative factory: %v", err)
	}
}

// Config is the `config` map of a creative instance.
type Config struct {
	warehouse.Config `yaml:",squash"`

	// Model names a multimodal models entry. Default: default
	Model string `yaml:"model"`

	// MaxCreatives caps the creatives analyzed per query. Default: 10
	MaxCreatives int `yaml:"max_creatives"`

	// Concurrency caps parallel image analyses. Default: 3
	Concurrency int `yaml:"concurrency"`

	// ImageTimeout bounds each image download. Default: 10s
	ImageTimeout time.Duration `yaml:"image_timeout"`

	// MaxImageBytes rejects larger images. Default: 8 MiB
	MaxImageBytes int64 `yaml:"max_image_bytes"`

	// CacheSize is the number of memoized analyses, keyed by image URL. Default: 256
	CacheSize int `yaml:"cache_size"`
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = "default"
	}
	if c.MaxCreatives <= 0 {
		c.MaxCreatives = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.ImageTimeout <= 0 {
		c.ImageTimeout = 10 * time.Second
	}
	if c.MaxImageBytes <= 0 {
		c.MaxImageBytes = 8 << 20
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
}

// Backend implements adapter.Instance for the creative capability.
type Backend struct {
	name   string
	config Config
	exec   warehouse.Executor
	client *http.Client
	models adapter.ModelSource
	cache  *lru.Cache[string, Analysis]
	health *adapter.HealthState
	logger *logging.Logger

	mu       sync.Mutex
	provider llm.Provider
}

// NewInstance is the adapter.Factory for creative instances.
func NewInstance(name string, raw map[string]interface{}, deps adapter.Deps) (adapter.Instance, error) {
	var cfg Config
	if err := adapter.DecodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	exec, err := warehouse.New(context.Background(), cfg.Config)
	if err != nil {
		return nil, err
	}
	return New(name, cfg, exec, deps)
}

// New creates a backend listing creatives through exec.
func New(name string, cfg Config, exec warehouse.Executor, deps adapter.Deps) (*Backend, error) {
	cfg.applyDefaults()
	cache, err := lru.New[string, Analysis](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis cache: %w", err)
	}
	client := deps.HTTPClient
	if client == nil {
		client = adapter.DefaultHTTPClient()
	}
	return &Backend{
		name:   name,
		config: cfg,
		exec:   exec,
		client: client,
		models: deps.Models,
		cache:  cache,
		health: adapter.NewHealthState(),
		logger: logging.GetLogger("adapter.creative").WithField("instance", name),
	}, nil
}

// Tag implements capability.Backend.
func (b *Backend) Tag() capability.Tag { return capability.Creative }

// Metadata implements adapter.Instance.
func (b *Backend) Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        b.name,
		Version:     Version,
		Description: "Creative image analysis with model " + b.config.Model,
		Type:        Type,
	}
}

// Start implements adapter.Instance.
func (b *Backend) Start(ctx context.Context) error {
	b.health.Set(adapter.Degraded)
	if _, err := b.model(ctx); err != nil {
		return b.health.Observe(err)
	}
	return b.health.Observe(b.exec.Ping(ctx))
}

// Stop implements adapter.Instance.
func (b *Backend) Stop(ctx context.Context) error {
	b.health.Set(adapter.Stopped)
	return b.exec.Close()
}

// Health implements adapter.Instance.
func (b *Backend) Health(ctx context.Context) adapter.HealthStatus {
	if b.health.Get() == adapter.Stopped {
		return adapter.Stopped
	}
	err := b.exec.Ping(ctx)
	if err == nil {
		_, err = b.model(ctx)
	}
	_ = b.health.Observe(err)
	return b.health.Get()
}

func (b *Backend) model(ctx context.Context) (llm.Provider, error) {
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
func (b *Backend) Fetch(ctx context.Context, req capability.Request) (capability.Payload, error) {
	q := req.Query
	id, ok := q.CampaignID()
	if !ok {
		return &Gallery{Hint: `Name a campaign (for example "campaign 12") to analyze its creatives.`}, nil
	}

	provider, err := b.model(ctx)
	if err != nil {
		return nil, capability.Unreachable("creative model: %v", err)
	}

	creatives, err := b.list(ctx, id, q.Params.Platform)
	if err != nil {
		return nil, err
	}
	gallery := &Gallery{
		CampaignID: id,
		Creatives:  creatives,
		Model:      provider.Name() + "/" + provider.Model(),
	}
	if len(creatives) == 0 {
		gallery.Hint = fmt.Sprintf("No creatives found for campaign %d.", id)
		return gallery, nil
	}

	errs := make([]error, len(creatives))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.config.Concurrency)
	for i := range gallery.Creatives {
		i := i
		g.Go(func() error {
			c := &gallery.Creatives[i]
			a, err := b.analyze(gctx, provider, c.ImageURL)
			if err != nil {
				errs[i] = err
				c.Error = capability.FailureFrom(err).String()
				return nil
			}
			c.Analysis = &a
			return nil
		})
	}
	_ = g.Wait()

	if len(gallery.analyzed()) == 0 {
		return nil, errs[0]
	}
	return gallery, nil
}

func (b *Backend) list(ctx context.Context, campaignID int64, platform string) ([]Creative, error) {
	sql := fmt.Sprintf("SELECT creative_id, image_url, platform, format, status FROM creatives WHERE campaign_id = %d", campaignID)
	if platform != "" {
		sql += " AND platform = " + warehouse.Quote(platform)
	}
	sql += fmt.Sprintf(" ORDER BY creative_id LIMIT %d", b.config.MaxCreatives)

	rows, err := b.exec.Query(ctx, warehouse.Operational, sql)
	if err != nil {
		return nil, err
	}
	out := make([]Creative, 0, rows.Len())
	for i := 0; i < rows.Len(); i++ {
		out = append(out, Creative{
			ID:       rows.Int(i, "creative_id"),
			ImageURL: rows.String(i, "image_url"),
			Platform: rows.String(i, "platform"),
			Format:   rows.String(i, "format"),
			Status:   rows.String(i, "status"),
		})
	}
	return out, nil
}

// analyze returns the memoized analysis of url, or downloads and analyzes it.
func (b *Backend) analyze(ctx context.Context, provider llm.Provider, url string) (Analysis, error) {
	if a, ok := b.cache.Get(url); ok {
		return a, nil
	}

	img, err := b.download(ctx, url)
	if err != nil {
		return Analysis{}, err
	}
	resp, err := provider.Generate(ctx, llm.Request{
		System: analysisSystem,
		Prompt: analysisPrompt,
		Images: []llm.Image{img},
		JSON:   true,
	})
	if err != nil {
		return Analysis{}, err
	}
	var a Analysis
	if err := llm.DecodeJSON(resp.Text, &a); err != nil {
		return Analysis{}, capability.Malformed("image analysis: %v", err)
	}
	b.cache.Add(url, a)
	return a, nil
}

func (b *Backend) download(ctx context.Context, url string) (llm.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, b.config.ImageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return llm.Image{}, capability.Malformed("image url %q: %v", url, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return llm.Image{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return llm.Image{}, capability.Unreachable("image fetch: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, b.config.MaxImageBytes+1))
	if err != nil {
		return llm.Image{}, capability.Unreachable("image fetch: %v", err)
	}
	if int64(len(data)) > b.config.MaxImageBytes {
		return llm.Image{}, capability.Malformed("image larger than %d bytes", b.config.MaxImageBytes)
	}

	mime := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return llm.Image{}, capability.Malformed("not an image (%s)", mime)
	}
	return llm.Image{MIMEType: mime, Data: data}, nil
}
