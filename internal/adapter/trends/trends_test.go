package trends

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	mu        sync.Mutex
	text      string
	citations []llm.Citation
	err       error
	requests  []llm.Request
}

func (m *fakeModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Text: m.text, Citations: m.citations}, nil
}

func (m *fakeModel) Name() string  { return "fake" }
func (m *fakeModel) Model() string { return "fake-1" }

const modelAnswer = "```json\n" + `{"topics": [{"title": "Songkran water guns", "detail": "Viral TikTok clips"}],
 "sentiment": {"overall": "Positive", "drivers": ["festive mood"]},
 "summary": "Songkran content dominates."}` + "\n```"

// fakeSearch serves the custom search API, keyed by the site restriction.
type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	fail    map[string]int
}

func (f *fakeSearch) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.queries = append(f.queries, q.Get("q")+" |"+q.Get("dateRestrict"))
	f.mu.Unlock()

	for site, code := range f.fail {
		if strings.Contains(q.Get("q"), "site:"+site) {
			w.WriteHeader(code)
			fmt.Fprintf(w, `{"error": {"code": %d, "message": "quota exceeded"}}`, code)
			return
		}
	}
	site := q.Get("q")[strings.LastIndex(q.Get("q"), "site:")+5:]
	fmt.Fprintf(w, `{"items": [{"title": "Post on %s", "link": "https://www.%s/post/1", "snippet": " hot take "}]}`, site, site)
}

func newSearchBackend(t *testing.T, fake *fakeSearch, model llm.Provider) *SearchBackend {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := SearchConfig{APIKey: "k", EngineID: "cx", BaseURL: srv.URL}
	deps := adapter.Deps{HTTPClient: srv.Client()}
	if model != nil {
		cfg.Model = "fast"
		deps.Models = adapter.StaticModels{"fast": model}
	}
	return NewSearch("social-search", cfg, deps)
}

func fetchDigest(t *testing.T, b capability.Backend, q capability.Query) *Digest {
	t.Helper()
	p, err := b.Fetch(context.Background(), capability.Request{Tag: capability.Trends, Query: q})
	require.NoError(t, err)
	d, ok := p.(*Digest)
	require.True(t, ok)
	return d
}

func TestSearchBackendQueriesPrimaryPlatforms(t *testing.T) {
	fake := &fakeSearch{}
	d := fetchDigest(t, newSearchBackend(t, fake, nil), capability.Query{Text: "เทรนด์ คอนโด"})

	assert.Equal(t, []string{"facebook", "youtube", "tiktok", "pantip"}, d.Platforms)
	assert.Len(t, fake.queries, 4)
	assert.Contains(t, fake.queries, "เทรนด์ คอนโด ล่าสุด site:pantip.com |d7")

	require.Len(t, d.Sources, 4)
	assert.Equal(t, Source{Title: "Post on facebook.com", URL: "https://www.facebook.com/post/1", Platform: "facebook", Snippet: "hot take"}, d.Sources[0])
	assert.Equal(t, "pantip", d.Sources[3].Platform)
	assert.Empty(t, d.Topics)
	assert.False(t, d.Empty())
	assert.Contains(t, d.Render(), "- [Post on tiktok.com](https://www.tiktok.com/post/1) (tiktok)")
	assert.Equal(t, "past 7 days", d.Metadata()["freshness"])
}

func TestSearchBackendAddsXForGenZ(t *testing.T) {
	fake := &fakeSearch{}
	since := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	window := capability.Window{Since: since, Until: since.AddDate(0, 0, 3)}

	d := fetchDigest(t, newSearchBackend(t, fake, nil), capability.Query{
		Text:   "Gen Z sentiment on EVs",
		Params: capability.Params{Window: window},
	})

	assert.Equal(t, []string{"facebook", "youtube", "tiktok", "pantip", "x"}, d.Platforms)
	assert.Contains(t, fake.queries, "Gen Z sentiment on EVs ล่าสุด site:x.com OR site:twitter.com |d3")
	assert.Equal(t, 3, d.RecencyDays)
}

func TestSearchBackendPartialAndTotalFailure(t *testing.T) {
	fake := &fakeSearch{fail: map[string]int{"tiktok.com": http.StatusTooManyRequests}}
	d := fetchDigest(t, newSearchBackend(t, fake, nil), capability.Query{Text: "trend"})
	assert.Len(t, d.Sources, 3)
	assert.Contains(t, d.Render(), "_No results from: tiktok._")

	fake = &fakeSearch{fail: map[string]int{
		"facebook.com": 500, "youtube.com": 500, "tiktok.com": 500, "pantip.com": 500,
	}}
	_, err := newSearchBackend(t, fake, nil).Fetch(context.Background(), capability.Request{
		Tag: capability.Trends, Query: capability.Query{Text: "trend"},
	})
	assert.ErrorIs(t, err, capability.ErrBackendUnreachable)
}

func TestSearchBackendRejectedRequestIsMalformed(t *testing.T) {
	fake := &fakeSearch{fail: map[string]int{
		"facebook.com": 400, "youtube.com": 400, "tiktok.com": 400, "pantip.com": 400,
	}}
	_, err := newSearchBackend(t, fake, nil).Fetch(context.Background(), capability.Request{
		Tag: capability.Trends, Query: capability.Query{Text: "trend"},
	})
	assert.ErrorIs(t, err, capability.ErrBackendMalformed)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestSearchBackendSummarizes(t *testing.T) {
	model := &fakeModel{text: modelAnswer}
	d := fetchDigest(t, newSearchBackend(t, &fakeSearch{}, model), capability.Query{Text: "Songkran trend"})

	require.Len(t, model.requests, 1)
	assert.True(t, model.requests[0].JSON)
	assert.Contains(t, model.requests[0].Prompt, "[pantip] Post on pantip.com")

	assert.Equal(t, []Topic{{Title: "Songkran water guns", Detail: "Viral TikTok clips"}}, d.Topics)
	assert.Equal(t, Sentiment{Overall: "positive", Drivers: []string{"festive mood"}}, d.Sentiment)
	out := d.Render()
	assert.Contains(t, out, "1. **Songkran water guns**: Viral TikTok clips")
	assert.Contains(t, out, "**Sentiment:** positive (festive mood)")
}

func TestSearchBackendSummaryFailureKeepsResults(t *testing.T) {
	model := &fakeModel{err: errors.New("quota")}
	d := fetchDigest(t, newSearchBackend(t, &fakeSearch{}, model), capability.Query{Text: "trend"})
	assert.Len(t, d.Sources, 4)
	assert.Contains(t, d.Notes, "Topics and sentiment were not assessed.")
}

func TestSearchBackendStartNeedsCredentials(t *testing.T) {
	t.Setenv("GOOGLE_CSE_API_KEY", "")
	t.Setenv("GOOGLE_CSE_ID", "")
	b := NewSearch("s", SearchConfig{}, adapter.Deps{})
	assert.Error(t, b.Start(context.Background()))
	assert.Equal(t, adapter.Degraded, b.Health(context.Background()))

	t.Setenv("GOOGLE_CSE_API_KEY", "key")
	t.Setenv("GOOGLE_CSE_ID", "cx")
	b = NewSearch("s", SearchConfig{}, adapter.Deps{})
	require.NoError(t, b.Start(context.Background()))
	assert.Equal(t, adapter.Healthy, b.Health(context.Background()))
	assert.Equal(t, DefaultSearchURL, b.config.BaseURL)
}

func TestGroundedBackend(t *testing.T) {
	model := &fakeModel{
		text: modelAnswer,
		citations: []llm.Citation{
			{Title: "pantip.com", URL: "https://pantip.com/topic/4242"},
			{Title: "news", URL: "https://news.example.com/a"},
		},
	}
	b := NewGrounded("social-trends", GroundedConfig{}, adapter.StaticModels{"default": model})
	require.NoError(t, b.Start(context.Background()))

	d := fetchDigest(t, b, capability.Query{Text: "What's trending about Songkran?", Params: capability.Params{Segment: "gen_z"}})

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	assert.True(t, req.Search)
	assert.Contains(t, req.Prompt, "past 7 days")
	assert.Contains(t, req.Prompt, "site:x.com OR site:twitter.com")
	assert.Contains(t, req.Prompt, "Focus on the gen z audience.")

	assert.Equal(t, "positive", d.Sentiment.Overall)
	assert.Equal(t, "Songkran content dominates.", d.Summary)
	require.Len(t, d.Sources, 2)
	assert.Equal(t, "pantip", d.Sources[0].Platform)
	assert.Equal(t, "web", d.Sources[1].Platform)
	assert.Equal(t, "fake/fake-1 + web search", d.Metadata()["source"])
}

func TestGroundedBackendUnparseableAnswer(t *testing.T) {
	b := NewGrounded("g", GroundedConfig{}, adapter.StaticModels{"default": &fakeModel{text: "I could not find anything."}})
	_, err := b.Fetch(context.Background(), capability.Request{Tag: capability.Trends, Query: capability.Query{Text: "trend"}})
	assert.ErrorIs(t, err, capability.ErrBackendMalformed)
}

func TestGroundedBackendEmptyAnswer(t *testing.T) {
	b := NewGrounded("g", GroundedConfig{}, adapter.StaticModels{"default": &fakeModel{
		text: `{"topics": [], "sentiment": {"overall": ""}, "summary": ""}`,
	}})
	d := fetchDigest(t, b, capability.Query{Text: "trend"})
	assert.True(t, d.Empty())
	assert.Equal(t, "", d.Render())
}

func TestGroundedBackendMissingModel(t *testing.T) {
	b := NewGrounded("g", GroundedConfig{Model: "search"}, adapter.StaticModels{})
	assert.Error(t, b.Start(context.Background()))
	assert.Equal(t, adapter.Degraded, b.Health(context.Background()))

	_, err := b.Fetch(context.Background(), capability.Request{Tag: capability.Trends})
	assert.ErrorIs(t, err, capability.ErrBackendUnreachable)
}

func TestPlatformsFor(t *testing.T) {
	assert.Equal(t, []string{"tiktok"}, platformNames(platformsFor(capability.Query{Params: capability.Params{Platform: "tiktok"}})))
	assert.Equal(t, []string{"x"}, platformNames(platformsFor(capability.Query{Params: capability.Params{Platform: "twitter"}})))
	assert.Len(t, platformsFor(capability.Query{Params: capability.Params{Platform: "line"}}), 4)
}

func TestPlatformOf(t *testing.T) {
	assert.Equal(t, "youtube", platformOf("https://m.youtube.com/watch?v=1"))
	assert.Equal(t, "x", platformOf("https://twitter.com/a/status/1"))
	assert.Equal(t, "web", platformOf("https://vertexaisearch.cloud.google.com/grounding-api-redirect/abc"))
}

func TestFactoriesRegistered(t *testing.T) {
	for _, typ := range []string{SearchType, GroundedType} {
		_, ok := adapter.GetFactory(typ)
		assert.True(t, ok, typ)
	}
	inst, err := NewGroundedInstance("g", map[string]interface{}{"model": "fast", "recency_days": 30}, adapter.Deps{})
	require.NoError(t, err)
	assert.Equal(t, 7, inst.(*GroundedBackend).config.RecencyDays)
}
