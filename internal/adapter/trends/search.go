package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/llm"
	"github.com/moolen/insight/internal/logging"
	"golang.org/x/sync/errgroup"
)

// SearchType is the adapter type of the search API backend.
const SearchType = "search-trends"

// DefaultSearchURL is the Google Custom Search JSON API endpoint.
const DefaultSearchURL = "https://www.googleapis.com/customsearch/v1"

// SearchConfig is the `config` map of a search-trends instance.
type SearchConfig struct {
	// APIKey defaults to $GOOGLE_CSE_API_KEY.
	APIKey string `yaml:"api_key"`

	// EngineID is the programmable search engine id. Defaults to $GOOGLE_CSE_ID.
	EngineID string `yaml:"engine_id"`

	// BaseURL overrides the API endpoint (tests).
	BaseURL string `yaml:"base_url"`

	// RecencyDays is the maximum age of results, 1 to 7. Default: 7
	RecencyDays int `yaml:"recency_days"`

	// Results is the number of results per platform, 1 to 10. Default: 5
	Results int `yaml:"results"`

	// Model optionally names a model that summarizes the results into topics
	// and sentiment.
	Model string `yaml:"model"`
}

func (c *SearchConfig) applyDefaults() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("GOOGLE_CSE_API_KEY")
	}
	if c.EngineID == "" {
		c.EngineID = os.Getenv("GOOGLE_CSE_ID")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultSearchURL
	}
	c.RecencyDays = clamp(c.RecencyDays, 1, 7, 7)
	c.Results = clamp(c.Results, 1, 10, 5)
}

func clamp(v, lo, hi, def int) int {
	switch {
	case v == 0:
		return def
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// SearchBackend finds recent posts with site-restricted web searches.
type SearchBackend struct {
	name   string
	config SearchConfig
	client *http.Client
	models adapter.ModelSource
	health *adapter.HealthState
	logger *logging.Logger

	mu         sync.Mutex
	summarizer llm.Provider
}

// NewSearchInstance is the adapter.Factory for search-trends instances.
func NewSearchInstance(name string, raw map[string]interface{}, deps adapter.Deps) (adapter.Instance, error) {
	var cfg SearchConfig
	if err := adapter.DecodeConfig(raw, &cfg); err != nil {
		return nil, err
	}
	return NewSearch(name, cfg, deps), nil
}

// NewSearch creates a search backend.
func NewSearch(name string, cfg SearchConfig, deps adapter.Deps) *SearchBackend {
	cfg.applyDefaults()
	client := deps.HTTPClient
	if client == nil {
		client = adapter.DefaultHTTPClient()
	}
	return &SearchBackend{
		name:   name,
		config: cfg,
		client: client,
		models: deps.Models,
		health: adapter.NewHealthState(),
		logger: logging.GetLogger("adapter.trends").WithField("instance", name),
	}
}

// Tag implements capability.Backend.
func (b *SearchBackend) Tag() capability.Tag { return capability.Trends }

// Metadata implements adapter.Instance.
func (b *SearchBackend) Metadata() adapter.Metadata {
	return adapter.Metadata{
		Name:        b.name,
		Version:     Version,
		Description: "Thai social media search (Facebook, YouTube, TikTok, Pantip, X)",
		Type:        SearchType,
	}
}

// Start checks the credentials and resolves the summarizer model. Quota is
// not spent on a probe search.
func (b *SearchBackend) Start(ctx context.Context) error {
	b.health.Set(adapter.Degraded)
	if b.config.APIKey == "" || b.config.EngineID == "" {
		return b.health.Observe(errors.New("search API key and engine id are required (GOOGLE_CSE_API_KEY, GOOGLE_CSE_ID)"))
	}
	if b.config.Model != "" {
		if _, err := b.model(ctx); err != nil {
			return b.health.Observe(err)
		}
	}
	return b.health.Observe(nil)
}

// Stop implements adapter.Instance.
func (b *SearchBackend) Stop(ctx context.Context) error {
	b.health.Set(adapter.Stopped)
	return nil
}

// Health implements adapter.Instance.
func (b *SearchBackend) Health(ctx context.Context) adapter.HealthStatus {
	return b.health.Get()
}

func (b *SearchBackend) model(ctx context.Context) (llm.Provider, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.summarizer != nil {
		return b.summarizer, nil
	}
	if b.models == nil {
		return nil, fmt.Errorf("no model source for summarizer %q", b.config.Model)
	}
	p, err := b.models.Model(ctx, b.config.Model)
	if err != nil {
		return nil, err
	}
	b.summarizer = p
	return p, nil
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

type searchError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch implements capability.Backend. Platforms are searched concurrently;
// the digest is partial when some of them fail and an error when all fail.
func (b *SearchBackend) Fetch(ctx context.Context, req capability.Request) (capability.Payload, error) {
	q := req.Query
	platforms := platformsFor(q)
	days := recencyDays(q, b.config.RecencyDays)
	terms := searchTerms(q)

	results := make([][]Source, len(platforms))
	errs := make([]error, len(platforms))
	g, gctx := errgroup.WithContext(ctx)
	for i, pl := range platforms {
		i, pl := i, pl
		g.Go(func() error {
			results[i], errs[i] = b.search(gctx, pl, terms, days)
			return nil
		})
	}
	_ = g.Wait()

	digest := &Digest{
		Platforms:   platformNames(platforms),
		RecencyDays: days,
		Origin:      "google-custom-search",
	}
	var failed []string
	var firstErr error
	for i, pl := range platforms {
		if errs[i] != nil {
			failed = append(failed, pl.Name)
			if firstErr == nil {
				firstErr = errs[i]
			}
			b.logger.WithContext(ctx).Warn("Search on %s failed: %v", pl.Name, errs[i])
			continue
		}
		digest.Sources = append(digest.Sources, results[i]...)
	}
	if len(failed) == len(platforms) {
		return nil, firstErr
	}
	if len(failed) > 0 {
		digest.Notes = append(digest.Notes, "No results from: "+strings.Join(failed, ", ")+".")
	}

	if b.config.Model != "" && len(digest.Sources) > 0 {
		b.summarize(ctx, q, digest)
	}
	return digest, nil
}

func (b *SearchBackend) search(ctx context.Context, pl Platform, terms string, days int) ([]Source, error) {
	params := url.Values{}
	params.Set("key", b.config.APIKey)
	params.Set("cx", b.config.EngineID)
	params.Set("q", pl.siteQuery(terms))
	params.Set("dateRestrict", "d"+strconv.Itoa(days))
	params.Set("num", strconv.Itoa(b.config.Results))
	params.Set("gl", "th")
	params.Set("hl", "th")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, capability.Unreachable("search %s: %v", pl.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		var se searchError
		msg := resp.Status
		if json.Unmarshal(body, &se) == nil && se.Error.Message != "" {
			msg = se.Error.Message
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, capability.Unreachable("search %s: %s", pl.Name, msg)
		}
		return nil, capability.Malformed("search %s rejected: %s", pl.Name, msg)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, capability.Malformed("search %s: %v", pl.Name, err)
	}
	out := make([]Source, 0, len(sr.Items))
	for _, item := range sr.Items {
		if item.Link == "" {
			continue
		}
		out = append(out, Source{
			Title:    item.Title,
			URL:      item.Link,
			Platform: pl.Name,
			Snippet:  strings.TrimSpace(item.Snippet),
		})
	}
	return out, nil
}

// summarize fills topics and sentiment from the search results. Failures
// leave the plain result list.
func (b *SearchBackend) summarize(ctx context.Context, q capability.Query, d *Digest) {
	logger := b.logger.WithContext(ctx)
	p, err := b.model(ctx)
	if err != nil {
		logger.Warn("Summarizer unavailable: %v", err)
		d.Notes = append(d.Notes, "Topics and sentiment were not assessed.")
		return
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Question: %s\n\nSearch results from the %s:\n", q.Text, d.Freshness())
	for i, s := range d.Sources {
		fmt.Fprintf(&prompt, "%d. [%s] %s\n   %s\n", i+1, s.Platform, s.Title, s.Snippet)
	}
	prompt.WriteString("\n" + analysisFormat)

	resp, err := p.Generate(ctx, llm.Request{
		System: socialListeningSystem,
		Prompt: prompt.String(),
		JSON:   true,
	})
	if err != nil {
		logger.Warn("Summarizing search results failed: %v", err)
		d.Notes = append(d.Notes, "Topics and sentiment were not assessed.")
		return
	}
	var a analysis
	if err := llm.DecodeJSON(resp.Text, &a); err != nil {
		logger.Warn("Unusable summary: %v", err)
		d.Notes = append(d.Notes, "Topics and sentiment were not assessed.")
		return
	}
	a.apply(d)
}
