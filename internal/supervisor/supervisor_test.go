package supervisor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"

	"github.com/flairwarden/flairwarden/internal/notify"
	"github.com/flairwarden/flairwarden/internal/supervisor"
	"github.com/flairwarden/flairwarden/internal/util/testutil"
)

// fastBackoff keeps restart delays in the low milliseconds for tests.
func fastBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Millisecond
	b.MaxInterval = 5 * time.Millisecond
	b.Multiplier = 2.0
	b.RandomizationFactor = 0
	b.Reset()
	return b
}

func TestAdd_RunsTask(t *testing.T) {
	s := supervisor.New(notify.Nop{})
	defer s.Shutdown()

	var ran atomic.Bool
	s.Add(context.Background(), "probe", func(ctx context.Context) error {
		ran.Store(true)
		<-ctx.Done()
		return nil
	})

	testutil.RequireEventually(t, func() bool { return ran.Load() })
	assert.Equal(t, []string{"probe"}, s.Running())
}

func TestAdd_RestartsOnError(t *testing.T) {
	restore := supervisor.OverrideRestartBackoff(fastBackoff)
	defer restore()

	s := supervisor.New(notify.Nop{})
	defer s.Shutdown()

	var runs atomic.Int32
	s.Add(context.Background(), "flaky", func(ctx context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("boom")
		}
		<-ctx.Done()
		return nil
	})

	testutil.RequireEventually(t, func() bool { return runs.Load() >= 3 })
}

func TestAdd_ReplacesPriorTask(t *testing.T) {
	s := supervisor.New(notify.Nop{})
	defer s.Shutdown()

	firstStopped := make(chan struct{})
	s.Add(context.Background(), "stream", func(ctx context.Context) error {
		<-ctx.Done()
		close(firstStopped)
		return nil
	})

	var second atomic.Bool
	s.Add(context.Background(), "stream", func(ctx context.Context) error {
		second.Store(true)
		<-ctx.Done()
		return nil
	})

	select {
	case <-firstStopped:
	default:
		t.Fatal("prior task still running after replacement")
	}
	testutil.RequireEventually(t, func() bool { return second.Load() })
	assert.Equal(t, []string{"stream"}, s.Running())
}

func TestTaskFinishedIsNotRestarted(t *testing.T) {
	restore := supervisor.OverrideRestartBackoff(fastBackoff)
	defer restore()

	s := supervisor.New(notify.Nop{})
	defer s.Shutdown()

	var runs atomic.Int32
	s.Add(context.Background(), "oneshot", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	testutil.RequireEventually(t, func() bool { return len(s.Running()) == 0 })
	assert.Equal(t, int32(1), runs.Load())
}

func TestCancelAndShutdown(t *testing.T) {
	s := supervisor.New(notify.Nop{})

	block := func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}
	s.Add(context.Background(), "a", block)
	s.Add(context.Background(), "b", block)

	s.Cancel("a")
	assert.Equal(t, []string{"b"}, s.Running())
	s.Cancel("missing") // no-op

	s.Shutdown()
	assert.Empty(t, s.Running())
}
