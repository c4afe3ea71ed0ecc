package sched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsBadExpression(t *testing.T) {
	s := New()
	err := s.Add("digest", "sometimes", func(ctx context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "digest")
}

func TestAddAfterStartFails(t *testing.T) {
	s := New()
	defer s.Stop()

	require.NoError(t, s.Add("early", "daily", func(ctx context.Context) {}))
	s.Start(context.Background())

	err := s.Add("late", "daily", func(ctx context.Context) {})
	assert.ErrorContains(t, err, "already started")
}

func TestStopShutsDownJobGoroutines(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("digest", "daily:03:00", func(ctx context.Context) {}))
	require.NoError(t, s.Add("evergreen", "weekly:sun", func(ctx context.Context) {}))

	s.Start(context.Background())
	s.Start(context.Background()) // second Start is a no-op

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStopWithoutStartReturns(t *testing.T) {
	s := New()
	s.Stop()
}

func TestFireRunsJob(t *testing.T) {
	s := New()

	ran := false
	s.fire(context.Background(), Job{Name: "ok", Run: func(ctx context.Context) { ran = true }})
	assert.True(t, ran)
}

func TestFireContainsPanics(t *testing.T) {
	s := New()

	assert.NotPanics(t, func() {
		s.fire(context.Background(), Job{Name: "boom", Run: func(ctx context.Context) { panic("kaput") }})
	})
}
