package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
}

func (s *recordingSender) Send(_ context.Context, m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestNewRunnerRejectsBadSchedule(t *testing.T) {
	_, err := NewRunner(&recordingSender{}, "every quarter hour", time.UTC)
	assert.Error(t, err)
}

func TestRunnerStartSendsImmediateTick(t *testing.T) {
	s := &recordingSender{}
	r, err := NewRunner(s, "*/15 * * * *", time.UTC)
	require.NoError(t, err)
	fixed := time.Date(2026, time.October, 21, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.Start(context.Background())
	defer r.Stop()

	require.Equal(t, 1, s.count())
	assert.Equal(t, Tick{Now: fixed}, s.msgs[0])

	next := r.Next()
	require.False(t, next.IsZero())
	assert.Zero(t, next.Minute()%15)
}

func TestRunnerDropsTicksAfterCancel(t *testing.T) {
	s := &recordingSender{}
	r, err := NewRunner(s, "@every 1h", time.UTC)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	defer r.Stop()
	cancel()
	r.tick()
	assert.Equal(t, 1, s.count())
}

func TestRunnerDrivesEngine(t *testing.T) {
	f := &fakeFetcher{}
	h := start(t, f, nil)
	r, err := NewRunner(h.e, "@every 1h", time.UTC)
	require.NoError(t, err)
	r.now = func() time.Time { return wednesday }

	r.Start(context.Background())
	defer r.Stop()

	st := h.await(t, statusIs(StatusOK))
	assert.Equal(t, "no_record", st.Reason)
}
