// Package processor drains the action store: it schedules submissions
// with pending rows under a bounded semaphore, executes each action
// idempotently in a fixed order, and escalates jobs that keep failing.
package processor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/flairwarden/flairwarden/internal/metrics"
	"github.com/flairwarden/flairwarden/internal/notify"
	"github.com/flairwarden/flairwarden/internal/rules"
	"github.com/flairwarden/flairwarden/internal/store"
	"github.com/flairwarden/flairwarden/reddit"
)

// NoteStore is the toolbox-notes surface the processor uses. Satisfied
// by *toolbox.Store.
type NoteStore interface {
	Append(ctx context.Context, community, user, text, link, mod, category string) error
	BanHistory(ctx context.Context, community, user string) ([]string, error)
}

// FlairWebhook delivers the per-flair embed for the sendToWebhook
// action. Satisfied by *notify.Discord.
type FlairWebhook interface {
	FlairEvent(ctx context.Context, url string, g *rules.GeneralConfiguration, post *reddit.Submission, mod string) error
}

// Options are the processor's tuning knobs.
type Options struct {
	Concurrency     int
	MaxRetries      int
	RetryDelay      time.Duration
	PollInterval    time.Duration
	AllowBanAndNuke bool
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Concurrency < 1 {
		out.Concurrency = 2
	}
	if out.MaxRetries < 1 {
		out.MaxRetries = 3
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = time.Minute
	}
	if out.PollInterval <= 0 {
		out.PollInterval = time.Second
	}
	return out
}

type retryState struct {
	attempts    int
	lastAttempt time.Time
	lastErr     error
}

// Processor executes queued actions against the platform.
type Processor struct {
	posts    reddit.Posts
	mods     reddit.Mods
	users    reddit.Users
	configs  *store.ConfigStore
	actions  *store.ActionStore
	notes    NoteStore
	webhook  FlairWebhook
	notifier notify.Notifier
	opts     Options

	mu      sync.Mutex
	retries map[string]*retryState

	now func() time.Time // test hook
}

// New creates a Processor.
func New(posts reddit.Posts, mods reddit.Mods, users reddit.Users, configs *store.ConfigStore, actions *store.ActionStore, notes NoteStore, webhook FlairWebhook, notifier notify.Notifier, opts Options) *Processor {
	return &Processor{
		posts:    posts,
		mods:     mods,
		users:    users,
		configs:  configs,
		actions:  actions,
		notes:    notes,
		webhook:  webhook,
		notifier: notifier,
		opts:     opts.withDefaults(),
		retries:  make(map[string]*retryState),
		now:      time.Now,
	}
}

// Run polls for pending jobs until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Pass(ctx)
		}
	}
}

// Pass runs one scheduling pass: every due pending job is processed,
// at most Concurrency submissions in parallel.
func (p *Processor) Pass(ctx context.Context) {
	jobs, err := p.actions.PendingJobs(ctx)
	if err != nil {
		slog.Error("pending job scan failed", "error", err)
		return
	}
	if count, err := p.actions.PendingCount(ctx); err == nil {
		metrics.PendingActions.Set(float64(count))
	}

	sem := make(chan struct{}, p.opts.Concurrency)
	var wg sync.WaitGroup
	for _, job := range jobs {
		if !p.due(job.SubmissionID) {
			continue
		}
		wg.Add(1)
		go func(job store.PendingJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			p.processJob(ctx, job)
		}(job)
	}
	wg.Wait()
}

// due reports whether a submission may be redispatched: immediately for
// first attempts, after RetryDelay for jobs that failed before.
func (p *Processor) due(submissionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.retries[submissionID]
	if !ok {
		return true
	}
	return p.now().Sub(st.lastAttempt) >= p.opts.RetryDelay
}

func (p *Processor) processJob(ctx context.Context, job store.PendingJob) {
	done, err := p.actions.JobDone(ctx, job.SubmissionID)
	if err != nil {
		slog.Error("job-done check failed", "submission", job.SubmissionID, "error", err)
		return
	}
	if done {
		p.finishJob(ctx, job.SubmissionID)
		return
	}

	community, err := p.executeJob(ctx, job)
	if err != nil {
		p.recordFailure(ctx, job, community, err)
		return
	}
	p.clearRetry(job.SubmissionID)
	p.finishJob(ctx, job.SubmissionID)
}

func (p *Processor) finishJob(ctx context.Context, submissionID string) {
	done, err := p.actions.JobDone(ctx, submissionID)
	if err != nil || !done {
		return
	}
	if err := p.actions.GCCompleted(ctx, submissionID); err != nil {
		slog.Error("gc failed", "submission", submissionID, "error", err)
	}
	p.clearRetry(submissionID)
}

func (p *Processor) clearRetry(submissionID string) {
	p.mu.Lock()
	delete(p.retries, submissionID)
	p.mu.Unlock()
}

// recordFailure bumps the job's attempt counter; once MaxRetries is
// reached the job is force-completed and the operator is notified.
func (p *Processor) recordFailure(ctx context.Context, job store.PendingJob, community string, jobErr error) {
	p.mu.Lock()
	st, ok := p.retries[job.SubmissionID]
	if !ok {
		st = &retryState{}
		p.retries[job.SubmissionID] = st
	}
	st.attempts++
	st.lastAttempt = p.now()
	st.lastErr = jobErr
	attempts := st.attempts
	p.mu.Unlock()

	slog.Warn("job attempt failed",
		"submission", job.SubmissionID,
		"attempts", attempts,
		"error", jobErr)

	if attempts < p.opts.MaxRetries {
		return
	}

	pending, err := p.actions.PendingActions(ctx, job.SubmissionID)
	if err != nil {
		slog.Error("pending list unavailable", "submission", job.SubmissionID, "error", err)
	}
	f := notify.Failure{
		SubmissionID: job.SubmissionID,
		Community:    community,
		Attempts:     attempts,
		Pending:      pending,
		Err:          jobErr,
	}
	if nerr := p.notifier.Failure(ctx, f); nerr != nil {
		slog.Warn("failure notification failed", "submission", job.SubmissionID, "error", nerr)
	}

	if err := p.actions.MarkAllCompleted(ctx, job.SubmissionID); err != nil {
		slog.Error("force-complete failed", "submission", job.SubmissionID, "error", err)
		return
	}
	metrics.JobsForceCompletedTotal.Inc()
	if err := p.actions.GCCompleted(ctx, job.SubmissionID); err != nil {
		slog.Error("gc failed", "submission", job.SubmissionID, "error", err)
	}
	p.clearRetry(job.SubmissionID)
}
