// Package supervisor owns the engine's long-lived tasks: it names them,
// restarts them with capped exponential backoff when they fail, and
// reports which ones are running.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/flairwarden/flairwarden/internal/metrics"
	"github.com/flairwarden/flairwarden/internal/notify"
)

// Task is a long-running function. A nil return means the task finished
// on purpose and is not restarted.
type Task func(ctx context.Context) error

// newRestartBackoff creates the restart backoff: 5s → 300s, multiplier
// 2x, ±20% jitter.
var newRestartBackoff = func() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Second
	b.MaxInterval = 300 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// OverrideRestartBackoff swaps the restart backoff factory, returning a
// restore function. Test-only.
func OverrideRestartBackoff(f func() *backoff.ExponentialBackOff) func() {
	prev := newRestartBackoff
	newRestartBackoff = f
	return func() { newRestartBackoff = prev }
}

type running struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor is the named task registry.
type Supervisor struct {
	notifier notify.Notifier

	mu    sync.Mutex
	tasks map[string]*running
}

// New creates a Supervisor reporting restarts to notifier.
func New(notifier notify.Notifier) *Supervisor {
	return &Supervisor{
		notifier: notifier,
		tasks:    make(map[string]*running),
	}
}

// Add registers fn under name and starts it. Any prior task with the
// same name is cancelled and awaited first, so at most one instance per
// name runs at a time.
func (s *Supervisor) Add(ctx context.Context, name string, fn Task) {
	s.mu.Lock()
	if prev, ok := s.tasks[name]; ok {
		prev.cancel()
		s.mu.Unlock()
		<-prev.done
		s.mu.Lock()
	}

	taskCtx, cancel := context.WithCancel(ctx)
	r := &running{cancel: cancel, done: make(chan struct{})}
	s.tasks[name] = r
	s.mu.Unlock()

	metrics.RunningTasks.Inc()
	go s.run(taskCtx, name, fn, r)
}

func (s *Supervisor) run(ctx context.Context, name string, fn Task, r *running) {
	defer func() {
		metrics.RunningTasks.Dec()
		s.mu.Lock()
		if s.tasks[name] == r {
			delete(s.tasks, name)
		}
		s.mu.Unlock()
		close(r.done)
	}()

	b := newRestartBackoff()
	for {
		err := fn(ctx)
		if ctx.Err() != nil {
			slog.Info("task stopped", "task", name)
			return
		}
		if err == nil {
			slog.Info("task finished", "task", name)
			return
		}

		delay := b.NextBackOff()
		slog.Error("task failed, restarting", "task", name, "error", err, "delay", delay)
		metrics.TaskRestartsTotal.WithLabelValues(name).Inc()
		if nerr := s.notifier.Status(ctx, fmt.Sprintf("Task %s failed: %v (restarting in %s)", name, err, delay.Round(time.Millisecond))); nerr != nil {
			slog.Warn("restart notification failed", "task", name, "error", nerr)
		}

		select {
		case <-ctx.Done():
			slog.Info("task stopped", "task", name)
			return
		case <-time.After(delay):
		}
	}
}

// Cancel stops the named task and waits for it to exit. Unknown names
// are a no-op.
func (s *Supervisor) Cancel(name string) {
	s.mu.Lock()
	r, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	r.cancel()
	<-r.done
}

// Shutdown cancels every task and waits for all of them.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	rs := make([]*running, 0, len(s.tasks))
	for _, r := range s.tasks {
		r.cancel()
		rs = append(rs, r)
	}
	s.mu.Unlock()
	for _, r := range rs {
		<-r.done
	}
}

// Running returns the names of the currently-registered tasks, sorted.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
