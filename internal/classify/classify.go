// Package classify consumes the unified mod-log stream. Flair
// assignments fan out into persisted action rows through the active
// community configuration; config-page revisions trigger a re-ingest.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flairwarden/flairwarden/internal/metrics"
	"github.com/flairwarden/flairwarden/internal/rules"
	"github.com/flairwarden/flairwarden/internal/store"
	"github.com/flairwarden/flairwarden/reddit"
)

// SubmissionLoader is the one platform call the classifier needs.
type SubmissionLoader interface {
	Submission(ctx context.Context, id string) (*reddit.Submission, error)
}

// Reingester reloads a community's configuration after a wiki revision.
// Satisfied by *ingest.Ingestor.
type Reingester interface {
	IngestCommunity(ctx context.Context, community string) error
}

// Classifier turns mod-log entries into queued work.
type Classifier struct {
	modlog   reddit.ModLog
	posts    SubmissionLoader
	configs  *store.ConfigStore
	actions  *store.ActionStore
	ingestor Reingester

	wikiPage string
	ignored  func(account string) bool

	mu     sync.Mutex
	recent map[string]time.Time // submission_flair -> last enqueue attempt

	now func() time.Time // test hook
}

// New creates a Classifier. ignored filters mod-log accounts (other
// bots) whose flair edits must not trigger actions; nil ignores nothing.
func New(modlog reddit.ModLog, posts SubmissionLoader, configs *store.ConfigStore, actions *store.ActionStore, ingestor Reingester, wikiPage string, ignored func(string) bool) *Classifier {
	if ignored == nil {
		ignored = func(string) bool { return false }
	}
	return &Classifier{
		modlog:   modlog,
		posts:    posts,
		configs:  configs,
		actions:  actions,
		ingestor: ingestor,
		wikiPage: wikiPage,
		ignored:  ignored,
		recent:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// Run consumes the mod-log stream until ctx is cancelled or the stream
// breaks. Entry-level failures are absorbed; only stream breakage
// propagates (the supervisor restarts the task).
func (c *Classifier) Run(ctx context.Context) error {
	return c.modlog.StreamModLog(ctx, func(e reddit.ModLogEntry) error {
		c.Handle(ctx, e)
		return nil
	})
}

// Handle classifies a single mod-log entry.
func (c *Classifier) Handle(ctx context.Context, e reddit.ModLogEntry) {
	metrics.ModLogEntriesTotal.WithLabelValues(e.Action).Inc()

	switch e.Action {
	case "wikirevise":
		if strings.Contains(e.Details, c.wikiPage) {
			slog.Debug("config page revised", "community", e.Subreddit, "editor", e.Mod)
			if err := c.ingestor.IngestCommunity(ctx, e.Subreddit); err != nil {
				slog.Error("re-ingest after wiki revision failed", "community", e.Subreddit, "error", err)
			}
		}
	case "editflair":
		c.handleFlairEdit(ctx, e)
	}
}

func (c *Classifier) handleFlairEdit(ctx context.Context, e reddit.ModLogEntry) {
	if c.ignored(e.Mod) {
		return
	}
	// Only submission flair edits carry actions; comment and user flair
	// targets are skipped.
	if !strings.HasPrefix(e.TargetFullname, "t3_") {
		return
	}
	submissionID := strings.TrimPrefix(e.TargetFullname, "t3_")

	blob, ok, err := c.configs.Get(ctx, e.Subreddit)
	if err != nil {
		slog.Error("config lookup failed", "community", e.Subreddit, "error", err)
		return
	}
	if !ok {
		slog.Debug("no configuration", "community", e.Subreddit)
		return
	}
	cfg, err := rules.FromCanonical(blob)
	if err != nil {
		slog.Error("cached config unreadable", "community", e.Subreddit, "error", err)
		return
	}

	post, err := c.posts.Submission(ctx, submissionID)
	if err != nil {
		if reddit.IsNotFound(err) || reddit.IsForbidden(err) {
			slog.Debug("submission unavailable", "submission", submissionID)
		} else {
			slog.Error("submission load failed", "submission", submissionID, "error", err)
		}
		return
	}
	guid := post.LinkFlair.TemplateID
	if guid == "" {
		slog.Debug("no flair template on submission", "submission", submissionID)
		return
	}

	if !c.shouldEnqueue(submissionID, guid, cfg.General.IgnoreSameFlairWindow()) {
		slog.Debug("duplicate flair assignment ignored", "submission", submissionID, "flair", guid)
		return
	}

	rule := cfg.Rule(guid)
	if rule == nil {
		slog.Debug("flair not configured", "community", e.Subreddit, "flair", guid)
		return
	}
	kinds := rule.Actions()
	if len(kinds) == 0 {
		return
	}

	if err := c.actions.InsertBatch(ctx, submissionID, kinds, e.Mod, guid); err != nil {
		slog.Error("enqueue failed", "submission", submissionID, "error", err)
		return
	}
	metrics.ActionsEnqueuedTotal.Add(float64(len(kinds)))
	slog.Info("actions enqueued",
		"community", e.Subreddit,
		"submission", submissionID,
		"flair", guid,
		"mod", e.Mod,
		"actions", kinds)
}

// shouldEnqueue applies the per-(submission, flair) dedupe window. The
// window is half-open: a repeat exactly at the boundary enqueues again.
// The attempt time is recorded even when the flair turns out to carry no
// rule, matching how repeated assignments are throttled.
func (c *Classifier) shouldEnqueue(submissionID, guid string, window time.Duration) bool {
	key := submissionID + "_" + guid
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.recent[key]; ok && now.Sub(last) < window {
		return false
	}
	c.recent[key] = now
	return true
}
