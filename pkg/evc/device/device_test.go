package device

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	name     string
	closed   *[]string
	closeErr error
}

func (s *fakeSession) Device() string { return s.name }

func (s *fakeSession) Close() error {
	*s.closed = append(*s.closed, s.name)
	return s.closeErr
}

type otherSession struct{ fakeSession }

type fakeExecutor struct {
	opened   int
	closed   []string
	failOn   string
	closeErr map[string]error
}

func (e *fakeExecutor) Open(_ context.Context, device string) (Session, error) {
	if device == e.failOn {
		return nil, errors.New("unreachable")
	}
	e.opened++
	return &fakeSession{name: device, closed: &e.closed, closeErr: e.closeErr[device]}, nil
}

func TestPoolOpensOncePerDevice(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	p := NewPool()

	a1, err := p.Get(ctx, "pe1", exec)
	require.NoError(t, err)
	a2, err := p.Get(ctx, "pe1", exec)
	require.NoError(t, err)
	_, err = p.Get(ctx, "pe2", exec)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, 2, exec.opened)
	assert.Equal(t, 2, p.Open())
}

func TestPoolReleaseReverseOrder(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{closeErr: map[string]error{"pe1": errors.New("boom")}}
	p := NewPool()
	for _, d := range []string{"pe1", "pe2", "pe3"} {
		_, err := p.Get(ctx, d, exec)
		require.NoError(t, err)
	}

	err := p.Release()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pe1")
	assert.Equal(t, []string{"pe3", "pe2", "pe1"}, exec.closed, "every session closed even when one fails")
	assert.Equal(t, 0, p.Open())

	require.NoError(t, p.Release())
	_, err = p.Get(ctx, "pe1", exec)
	assert.Error(t, err)
}

func TestPoolOpenFailure(t *testing.T) {
	p := NewPool()
	_, err := p.Get(context.Background(), "down", &fakeExecutor{failOn: "down"})
	assert.Error(t, err)
	assert.Equal(t, 0, p.Open())
}

func TestAcquireTyped(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	p := NewPool()

	s, err := Acquire[*fakeSession](ctx, p, "pe1", exec)
	require.NoError(t, err)
	assert.Equal(t, "pe1", s.Device())

	_, err = Acquire[*otherSession](ctx, p, "pe1", exec)
	assert.Error(t, err)
}
