package container

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"limit-order-go/infrastructure/logger"
)

type stubComponent struct {
	startErr error
	started  bool
	stopped  bool
}

func (s *stubComponent) Start(context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *stubComponent) Stop() error {
	s.stopped = true
	return nil
}

func (s *stubComponent) Health() error {
	if !s.started {
		return errors.New("not started")
	}
	return nil
}

func TestStartAllRollsBackOnFailure(t *testing.T) {
	m := NewLifecycleManager()
	first := &stubComponent{}
	second := &stubComponent{startErr: errors.New("bind failed")}
	third := &stubComponent{}
	m.Register(first)
	m.Register(second)
	m.Register(third)

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.True(t, first.stopped)
	assert.False(t, third.started)
}

func TestRunComponentReportsEarlyExit(t *testing.T) {
	boom := errors.New("stream closed")
	exited := make(chan struct{})
	rc := &runComponent{
		name:   "stream",
		logger: logger.NewNop(),
		run: func(ctx context.Context) error {
			defer close(exited)
			return boom
		},
	}
	require.NoError(t, rc.Start(context.Background()))
	<-exited
	require.Eventually(t, func() bool { return rc.Health() != nil }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rc.Health(), boom)
	require.NoError(t, rc.Stop())
}

func TestRunComponentStopCancelsLoop(t *testing.T) {
	rc := &runComponent{
		name:   "loop",
		logger: logger.NewNop(),
		run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	require.NoError(t, rc.Start(context.Background()))
	assert.NoError(t, rc.Health())
	require.NoError(t, rc.Stop())
}
