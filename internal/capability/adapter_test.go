package capability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type textPayload struct {
	tag  Tag
	text string
}

func (p textPayload) Tag() Tag       { return p.tag }
func (p textPayload) Empty() bool    { return p.text == "" }
func (p textPayload) Render() string { return p.text }
func (p textPayload) Metadata() map[string]string {
	return map[string]string{"source": "test"}
}

type funcBackend struct {
	tag Tag
	fn  func(ctx context.Context, req Request) (Payload, error)
}

func (b funcBackend) Tag() Tag { return b.tag }
func (b funcBackend) Fetch(ctx context.Context, req Request) (Payload, error) {
	return b.fn(ctx, req)
}

func TestAdapterInvokeSuccess(t *testing.T) {
	a := NewAdapter("metrics-test", funcBackend{tag: Metrics, fn: func(ctx context.Context, req Request) (Payload, error) {
		return textPayload{tag: Metrics, text: "rows"}, nil
	}})

	res, err := a.Invoke(context.Background(), Request{Tag: Metrics}, time.Second)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "rows", res.Payload.Render())
	assert.Equal(t, "metrics-test", res.Metadata["adapter"])
	assert.Equal(t, "test", res.Metadata["source"])
	assert.Equal(t, "ok", res.Outcome())
}

func TestAdapterInvokeMapsBackendErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason Reason
	}{
		{"unreachable", Unreachable("connection refused"), ReasonUnreachable},
		{"malformed", Malformed("not json"), ReasonMalformed},
		{"plain error", errors.New("boom"), ReasonUnreachable},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, ReasonTimeout},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), ReasonTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter("x", funcBackend{tag: Trends, fn: func(ctx context.Context, req Request) (Payload, error) {
				return nil, tt.err
			}})
			res, err := a.Invoke(context.Background(), Request{Tag: Trends}, time.Second)
			require.NoError(t, err)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.reason, res.Failure.Reason)
			assert.False(t, res.OK())
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestAdapterInvokeNilPayloadIsMalformed(t *testing.T) {
	a := NewAdapter("x", funcBackend{tag: Creative, fn: func(ctx context.Context, req Request) (Payload, error) {
		return nil, nil
	}})
	res, err := a.Invoke(context.Background(), Request{Tag: Creative}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonMalformed, res.Failure.Reason)
}

func TestAdapterInvokeRecoversPanic(t *testing.T) {
	a := NewAdapter("x", funcBackend{tag: Creative, fn: func(ctx context.Context, req Request) (Payload, error) {
		panic("nil map")
	}})
	res, err := a.Invoke(context.Background(), Request{Tag: Creative}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonMalformed, res.Failure.Reason)
	assert.Contains(t, res.Failure.Detail, "nil map")
}

type ptrPayload struct{ tag Tag }

func (p *ptrPayload) Tag() Tag       { return p.tag }
func (p *ptrPayload) Empty() bool    { return false }
func (p *ptrPayload) Render() string { return "" }

// panickingPayload blows up as soon as it is inspected.
type panickingPayload struct{}

func (panickingPayload) Tag() Tag       { panic("payload tag") }
func (panickingPayload) Empty() bool    { return false }
func (panickingPayload) Render() string { return "" }

func TestAdapterInvokeTypedNilPayload(t *testing.T) {
	a := NewAdapter("x", funcBackend{tag: Creative, fn: func(ctx context.Context, req Request) (Payload, error) {
		var p *ptrPayload
		return p, nil
	}})
	res, err := a.Invoke(context.Background(), Request{Tag: Creative}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonMalformed, res.Failure.Reason)
	assert.Equal(t, "backend returned no payload", res.Failure.Detail)
}

func TestAdapterInvokeRecoversPayloadPanic(t *testing.T) {
	a := NewAdapter("x", funcBackend{tag: Creative, fn: func(ctx context.Context, req Request) (Payload, error) {
		return panickingPayload{}, nil
	}})
	res, err := a.Invoke(context.Background(), Request{Tag: Creative}, time.Second)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonMalformed, res.Failure.Reason)
	assert.Contains(t, res.Failure.Detail, "payload tag")
}

func TestAdapterInvokeTimeoutWithBackendIgnoringContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	a := NewAdapter("slow", funcBackend{tag: Trends, fn: func(ctx context.Context, req Request) (Payload, error) {
		<-block
		return textPayload{tag: Trends, text: "late"}, nil
	}})

	start := time.Now()
	res, err := a.Invoke(context.Background(), Request{Tag: Trends}, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonTimeout, res.Failure.Reason)
}

func TestAdapterInvokeParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := NewAdapter("slow", funcBackend{tag: Trends, fn: func(ctx context.Context, req Request) (Payload, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := a.Invoke(ctx, Request{Tag: Trends}, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, ReasonCancelled, res.Failure.Reason)
}

func TestAdapterInvokeRejectsForeignTag(t *testing.T) {
	called := false
	a := NewAdapter("metrics", funcBackend{tag: Metrics, fn: func(ctx context.Context, req Request) (Payload, error) {
		called = true
		return textPayload{tag: Metrics}, nil
	}})

	_, err := a.Invoke(context.Background(), Request{Tag: Creative}, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCapability)
	assert.False(t, called)
}

func TestFailureUnwrap(t *testing.T) {
	f := &Failure{Reason: ReasonTimeout, Detail: "10s"}
	assert.ErrorIs(t, f, ErrBackendTimeout)
	assert.Equal(t, "timeout: 10s", f.String())
	assert.Equal(t, "cancelled", Failure{Reason: ReasonCancelled}.String())
}
