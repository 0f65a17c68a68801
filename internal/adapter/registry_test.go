package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/config"
	"github.com/moolen/insight/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := &fakeInstance{name: "b-instance", tag: capability.Metrics}
	b := &fakeInstance{name: "a-instance", tag: capability.Trends}

	require.NoError(t, r.Register("b-instance", a))
	require.NoError(t, r.Register("a-instance", b))
	assert.Error(t, r.Register("a-instance", b), "duplicate names are rejected")
	assert.Error(t, r.Register("", b))

	got, ok := r.Get("b-instance")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Equal(t, []string{"a-instance", "b-instance"}, r.List())
	assert.Equal(t, 2, r.Len())

	assert.True(t, r.Remove("a-instance"))
	assert.False(t, r.Remove("a-instance"))
	_, ok = r.Get("a-instance")
	assert.False(t, ok)
}

func TestFactoryRegistry(t *testing.T) {
	r := NewFactoryRegistry()
	factory := func(name string, cfg map[string]interface{}, deps Deps) (Instance, error) {
		return &fakeInstance{name: name}, nil
	}

	require.NoError(t, r.Register("trends", factory))
	require.NoError(t, r.Register("metrics", factory))
	assert.ErrorContains(t, r.Register("metrics", factory), "already registered")
	assert.Error(t, r.Register("", factory))
	assert.Error(t, r.Register("creative", nil))

	_, ok := r.Get("metrics")
	assert.True(t, ok)
	_, ok = r.Get("weather")
	assert.False(t, ok)
	assert.Equal(t, []string{"metrics", "trends"}, r.List())
}

func TestDecodeConfig(t *testing.T) {
	type Endpoint struct {
		URL string `yaml:"url"`
	}
	type settings struct {
		Endpoint    `yaml:",squash"`
		Timeout     time.Duration `yaml:"timeout"`
		RecencyDays int           `yaml:"recency_days"`
		Platforms   []string      `yaml:"platforms"`
	}

	var s settings
	err := DecodeConfig(map[string]interface{}{
		"url":          "http://toolbox:5000/mcp",
		"timeout":      "15s",
		"recency_days": "3",
		"platforms":    []interface{}{"facebook", "pantip"},
	}, &s)
	require.NoError(t, err)
	assert.Equal(t, "http://toolbox:5000/mcp", s.URL)
	assert.Equal(t, 15*time.Second, s.Timeout)
	assert.Equal(t, 3, s.RecencyDays)
	assert.Equal(t, []string{"facebook", "pantip"}, s.Platforms)

	err = DecodeConfig(map[string]interface{}{"timout": "15s"}, &s)
	assert.ErrorContains(t, err, "invalid adapter config")
}

type namedProvider struct{ model string }

func (p *namedProvider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: p.model}, nil
}
func (p *namedProvider) Name() string  { return "fake" }
func (p *namedProvider) Model() string { return p.model }

func TestModelsCreatesOncePerName(t *testing.T) {
	m := NewModels(map[string]config.ModelSettings{
		"fast": {Provider: "gemini", Model: "gemini-2.5-flash"},
	})
	var created []llm.Config
	m.create = func(ctx context.Context, cfg llm.Config) (llm.Provider, error) {
		created = append(created, cfg)
		return &namedProvider{model: cfg.Model}, nil
	}

	p1, err := m.Model(context.Background(), "fast")
	require.NoError(t, err)
	p2, err := m.Model(context.Background(), "fast")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	require.Len(t, created, 1)
	assert.Equal(t, "gemini", created[0].Provider)

	_, err = m.Model(context.Background(), "slow")
	assert.ErrorContains(t, err, `model "slow" is not defined`)
}

func TestStaticModels(t *testing.T) {
	p := &namedProvider{model: "m"}
	s := StaticModels{"default": p}

	got, err := s.Model(context.Background(), "default")
	require.NoError(t, err)
	assert.Same(t, p, got)

	_, err = s.Model(context.Background(), "other")
	assert.Error(t, err)
}

func TestHealthState(t *testing.T) {
	s := NewHealthState()
	assert.Equal(t, Degraded, s.Get())

	assert.NoError(t, s.Observe(nil))
	assert.Equal(t, Healthy, s.Get())

	err := s.Observe(assert.AnError)
	assert.Same(t, assert.AnError, err)
	assert.Equal(t, Degraded, s.Get())

	s.Set(Stopped)
	_ = s.Observe(nil)
	assert.Equal(t, Stopped, s.Get())
	assert.Equal(t, "stopped", s.Get().String())
}
