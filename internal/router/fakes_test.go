package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moolen/insight/internal/capability"
	"github.com/moolen/insight/internal/llm"
)

type stubPayload struct {
	tag  capability.Tag
	body string
}

func (p stubPayload) Tag() capability.Tag { return p.tag }
func (p stubPayload) Empty() bool         { return p.body == "" }
func (p stubPayload) Render() string      { return p.body }

// stubBackend answers after delay with a fixed body or error. A negative
// delay never answers, ignoring the context.
type stubBackend struct {
	tag   capability.Tag
	body  string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (b *stubBackend) Tag() capability.Tag { return b.tag }

func (b *stubBackend) Fetch(ctx context.Context, req capability.Request) (capability.Payload, error) {
	b.calls.Add(1)
	if b.delay < 0 {
		select {}
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.err != nil {
		return nil, b.err
	}
	return stubPayload{tag: b.tag, body: b.body}, nil
}

func bindingsFor(backends ...*stubBackend) Bindings {
	var b Bindings
	for _, be := range backends {
		if err := b.Bind(capability.NewAdapter(be.tag.String()+"-stub", be)); err != nil {
			panic(err)
		}
	}
	return b
}

// fakeModel returns canned answers and records prompts.
type fakeModel struct {
	mu      sync.Mutex
	text    string
	err     error
	prompts []string
}

func (m *fakeModel) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, req.Prompt)
	if m.err != nil {
		return nil, m.err
	}
	return &llm.Response{Text: m.text}, nil
}

func (m *fakeModel) Name() string  { return "fake" }
func (m *fakeModel) Model() string { return "fake-1" }

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

var errConnRefused = capability.Unreachable("dial tcp 10.0.0.1:5000: connection refused")
