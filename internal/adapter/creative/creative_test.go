package creative

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/moolen/insight/internal/adapter"
	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/llm"
	"github.com/moolen/insight/internal/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu      sync.Mutex
	rows    *warehouse.Rows
	err     error
	pingErr error
	queries []string
	closed  bool
}

func (f *fakeExecutor) Query(ctx context.Context, src warehouse.Source, sql string) (*warehouse.Rows, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, string(src)+": "+sql)
	if f.err != nil {
		return nil, f.err
	}
	if f.rows == nil {
		return &warehouse.Rows{}, nil
	}
	return f.rows, nil
}

func (f *fakeExecutor) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeExecutor) Close() error {
	f.closed = true
	return nil
}

// fakeVision answers every image with the same analysis, or fails images
// whose bytes contain "broken".
type fakeVision struct {
	mu     sync.Mutex
	answer string
	calls  int
	mimes  []string
}

func (m *fakeVision) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	for _, img := range req.Images {
		m.mimes = append(m.mimes, img.MIMEType)
		if strings.Contains(string(img.Data), "broken") {
			return &llm.Response{Text: "I cannot describe this"}, nil
		}
	}
	return &llm.Response{Text: m.answer}, nil
}

func (m *fakeVision) Name() string  { return "fake" }
func (m *fakeVision) Model() string { return "vision-1" }

const visionAnswer = `{"visual_style": "fun", "dominant_colors": ["orange", "white"], "has_faces": true,
 "num_people": 2, "age_style": "youthful", "text_density": "medium",
 "extracted_text": {"headline": "ลดแรง 50%", "subtext": "", "cta": "Shop now", "promo_messages": ["free delivery"]},
 "emotional_tone": "energetic", "layout_type": "centered", "platform_fit": "tiktok",
 "description": "Two friends holding phones\non an orange background."}`

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func newImageServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/missing.png":
			http.NotFound(w, r)
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html></html>"))
		case "/huge.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(append(pngHeader, make([]byte, 2048)...))
		case "/broken.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(append(pngHeader, []byte("broken")...))
		default:
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(pngHeader)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func creativeRows(base string, paths ...string) *warehouse.Rows {
	rows := &warehouse.Rows{Columns: []string{"creative_id", "format", "image_url", "platform", "status"}}
	for i, p := range paths {
		rows.Records = append(rows.Records, map[string]interface{}{
			"creative_id": int64(101 + i),
			"image_url":   base + p,
			"platform":    "tiktok",
			"format":      "image",
			"status":      "active",
		})
	}
	return rows
}

func newTestBackend(t *testing.T, exec warehouse.Executor, vision llm.Provider, cfg Config) *Backend {
	t.Helper()
	b, err := New("gemini-creative", cfg, exec, adapter.Deps{
		Models: adapter.StaticModels{"default": vision},
	})
	require.NoError(t, err)
	return b
}

func fetch(t *testing.T, b *Backend, text string) (*Gallery, error) {
	t.Helper()
	p, err := b.Fetch(context.Background(), capability.Request{
		Tag:   capability.Creative,
		Query: capability.Query{Text: text},
	})
	if err != nil {
		return nil, err
	}
	g, ok := p.(*Gallery)
	require.True(t, ok)
	return g, nil
}

func TestFetchAnalyzesCreatives(t *testing.T) {
	srv, _ := newImageServer(t)
	exec := &fakeExecutor{rows: creativeRows(srv.URL, "/a.png", "/b.png")}
	vision := &fakeVision{answer: visionAnswer}
	b := newTestBackend(t, exec, vision, Config{})

	g, err := fetch(t, b, "Analyze the creatives of campaign 12")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"operational: SELECT creative_id, image_url, platform, format, status FROM creatives WHERE campaign_id = 12 ORDER BY creative_id LIMIT 10",
	}, exec.queries)
	require.Len(t, g.Creatives, 2)
	assert.Equal(t, int64(12), g.CampaignID)
	assert.Equal(t, "fake/vision-1", g.Model)
	for _, c := range g.Creatives {
		require.NotNil(t, c.Analysis)
		assert.Equal(t, "fun", c.Analysis.VisualStyle)
		assert.Equal(t, "ลดแรง 50%", c.Analysis.ExtractedText.Headline)
	}
	assert.Equal(t, []string{"image/png", "image/png"}, vision.mimes)

	out := g.Render()
	assert.Contains(t, out, "**Campaign 12:** 2 of 2 creatives analyzed")
	assert.Contains(t, out, "| #101 | tiktok | image | fun | energetic | orange, white | 2 | medium | ลดแรง 50% | Shop now |")
	assert.Contains(t, out, "- Faces: 2 of 2 creatives")
	assert.Contains(t, out, "- #102: Two friends holding phones on an orange background.")
	assert.NotContains(t, out, "Not analyzed")

	md := g.Metadata()
	assert.Equal(t, "2", md["analyzed"])
	assert.Equal(t, "12", md["campaign_id"])
}

func TestFetchWithoutCampaignGivesHint(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestBackend(t, exec, &fakeVision{answer: visionAnswer}, Config{})

	g, err := fetch(t, b, "Which creatives work best?")
	require.NoError(t, err)
	assert.True(t, g.Empty())
	assert.Contains(t, g.Render(), "campaign 12")
	assert.Empty(t, exec.queries)
}

func TestFetchNoCreatives(t *testing.T) {
	b := newTestBackend(t, &fakeExecutor{}, &fakeVision{answer: visionAnswer}, Config{})

	g, err := fetch(t, b, "creatives for campaign 7")
	require.NoError(t, err)
	assert.True(t, g.Empty())
	assert.Equal(t, "No creatives found for campaign 7.", g.Render())
}

func TestFetchPlatformFilterAndLimit(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestBackend(t, exec, &fakeVision{answer: visionAnswer}, Config{MaxCreatives: 4})

	_, err := b.Fetch(context.Background(), capability.Request{
		Tag: capability.Creative,
		Query: capability.Query{
			Text:   "campaign 3 creatives",
			Params: capability.Params{Platform: "facebook"},
		},
	})
	require.NoError(t, err)
	require.Len(t, exec.queries, 1)
	assert.True(t, strings.HasSuffix(exec.queries[0], "WHERE campaign_id = 3 AND platform = 'facebook' ORDER BY creative_id LIMIT 4"))
}

func TestFetchPartialFailures(t *testing.T) {
	srv, _ := newImageServer(t)
	exec := &fakeExecutor{rows: creativeRows(srv.URL, "/a.png", "/missing.png", "/page.html", "/broken.png", "/huge.png")}
	b := newTestBackend(t, exec, &fakeVision{answer: visionAnswer}, Config{MaxImageBytes: 1024})

	g, err := fetch(t, b, "campaign 12 creatives")
	require.NoError(t, err)

	require.Len(t, g.Creatives, 5)
	assert.NotNil(t, g.Creatives[0].Analysis)
	assert.True(t, strings.HasPrefix(g.Creatives[1].Error, "unreachable"))
	assert.True(t, strings.HasPrefix(g.Creatives[2].Error, "malformed"))
	assert.True(t, strings.HasPrefix(g.Creatives[3].Error, "malformed"))
	assert.True(t, strings.HasPrefix(g.Creatives[4].Error, "malformed"))

	out := g.Render()
	assert.Contains(t, out, "1 of 5 creatives analyzed")
	assert.Contains(t, out, "_Not analyzed: #102 (unreachable")
}

func TestFetchAllImagesFail(t *testing.T) {
	srv, _ := newImageServer(t)
	exec := &fakeExecutor{rows: creativeRows(srv.URL, "/missing.png", "/missing.png")}
	b := newTestBackend(t, exec, &fakeVision{answer: visionAnswer}, Config{})

	_, err := fetch(t, b, "campaign 12 creatives")
	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrBackendUnreachable)
}

func TestFetchMemoizesAnalyses(t *testing.T) {
	srv, hits := newImageServer(t)
	exec := &fakeExecutor{rows: creativeRows(srv.URL, "/a.png")}
	vision := &fakeVision{answer: visionAnswer}
	b := newTestBackend(t, exec, vision, Config{})

	for i := 0; i < 3; i++ {
		_, err := fetch(t, b, "campaign 12 creatives")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, vision.calls)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchWarehouseError(t *testing.T) {
	exec := &fakeExecutor{err: capability.Unreachable("connection refused")}
	b := newTestBackend(t, exec, &fakeVision{answer: visionAnswer}, Config{})

	_, err := fetch(t, b, "campaign 12 creatives")
	assert.ErrorIs(t, err, capability.ErrBackendUnreachable)
}

func TestLifecycle(t *testing.T) {
	exec := &fakeExecutor{}
	b := newTestBackend(t, exec, &fakeVision{}, Config{})
	ctx := context.Background()

	require.NoError(t, b.Start(ctx))
	assert.Equal(t, adapter.Healthy, b.Health(ctx))

	exec.pingErr = errors.New("down")
	assert.Equal(t, adapter.Degraded, b.Health(ctx))

	require.NoError(t, b.Stop(ctx))
	assert.True(t, exec.closed)
	assert.Equal(t, adapter.Stopped, b.Health(ctx))
}

func TestStartWithoutModel(t *testing.T) {
	b, err := New("gemini-creative", Config{Model: "vision"}, &fakeExecutor{}, adapter.Deps{
		Models: adapter.StaticModels{},
	})
	require.NoError(t, err)

	assert.Error(t, b.Start(context.Background()))
	assert.Equal(t, adapter.Degraded, b.Health(context.Background()))
}

func TestFactoryRegistered(t *testing.T) {
	_, ok := adapter.GetFactory(Type)
	assert.True(t, ok)

	_, err := NewInstance("c", map[string]interface{}{"max_creatives": "five"}, adapter.Deps{})
	assert.Error(t, err)

	inst, err := NewInstance("c", map[string]interface{}{"max_creatives": 5, "image_timeout": "3s"}, adapter.Deps{})
	require.NoError(t, err)
	b := inst.(*Backend)
	assert.Equal(t, 5, b.config.MaxCreatives)
	assert.Equal(t, "3s", b.config.ImageTimeout.String())
	assert.Equal(t, capability.Creative, inst.Tag())
}
