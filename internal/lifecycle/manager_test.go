package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []string
}

type stubComponent struct {
	name     string
	rec      *recorder
	startErr error
}

func (s *stubComponent) Start(ctx context.Context) error {
	s.rec.events = append(s.rec.events, "start "+s.name)
	return s.startErr
}

func (s *stubComponent) Stop(ctx context.Context) error {
	s.rec.events = append(s.rec.events, "stop "+s.name)
	return nil
}

func (s *stubComponent) Name() string { return s.name }

func TestManagerStartsDependenciesFirst(t *testing.T) {
	rec := &recorder{}
	tracing := &stubComponent{name: "tracing", rec: rec}
	adapters := &stubComponent{name: "adapters", rec: rec}
	api := &stubComponent{name: "api", rec: rec}

	m := NewManager()
	require.NoError(t, m.Register(tracing))
	require.NoError(t, m.Register(adapters, tracing))
	require.NoError(t, m.Register(api, adapters))

	require.NoError(t, m.Start(context.Background()))
	assert.True(t, m.Running(api))
	require.NoError(t, m.Stop(context.Background()))
	assert.False(t, m.Running(api))

	assert.Equal(t, []string{
		"start tracing", "start adapters", "start api",
		"stop api", "stop adapters", "stop tracing",
	}, rec.events)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	rec := &recorder{}
	a := &stubComponent{name: "a", rec: rec}
	b := &stubComponent{name: "b", rec: rec, startErr: errors.New("port in use")}

	m := NewManager()
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b, a))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, rec.events)
	assert.False(t, m.Running(a))
}

func TestManagerRegisterValidation(t *testing.T) {
	rec := &recorder{}
	a := &stubComponent{name: "a", rec: rec}
	orphan := &stubComponent{name: "orphan", rec: rec}

	m := NewManager()
	assert.Error(t, m.Register(nil))
	assert.Error(t, m.Register(&stubComponent{rec: rec}))
	require.NoError(t, m.Register(a))
	assert.Error(t, m.Register(a))
	assert.Error(t, m.Register(&stubComponent{name: "b", rec: rec}, orphan))
}
