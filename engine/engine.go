// Package engine assembles the service: it opens the database, builds
// every pipeline component against one caller-supplied platform client
// and supervises the long-running tasks.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flairwarden/flairwarden/config"
	"github.com/flairwarden/flairwarden/internal/classify"
	"github.com/flairwarden/flairwarden/internal/ingest"
	"github.com/flairwarden/flairwarden/internal/logging"
	"github.com/flairwarden/flairwarden/internal/notify"
	"github.com/flairwarden/flairwarden/internal/pmbot"
	"github.com/flairwarden/flairwarden/internal/processor"
	"github.com/flairwarden/flairwarden/internal/store"
	"github.com/flairwarden/flairwarden/internal/supervisor"
	"github.com/flairwarden/flairwarden/internal/toolbox"
	"github.com/flairwarden/flairwarden/internal/util/timefmt"
	"github.com/flairwarden/flairwarden/reddit"
)

// Version is stamped by the build; the startup banner shows it.
var Version = "dev"

// Task names in the supervisor registry.
const (
	taskModLog   = "modlog-monitor"
	taskProcess  = "action-processor"
	taskInbox    = "inbox-monitor"
	taskReingest = "config-refresh"
)

// coldStartSpacing is the minimum interval between engine cold starts,
// guarding against rapid crash-restart loops hammering the platform.
const coldStartSpacing = 10 * time.Second

var (
	startMu       sync.Mutex
	lastColdStart time.Time
)

// Engine is the assembled service.
type Engine struct {
	cfg      *config.Config
	client   reddit.Client
	db       *sql.DB
	notifier notify.Notifier

	configs    *store.ConfigStore
	actions    *store.ActionStore
	sup        *supervisor.Supervisor
	ingestor   *ingest.Ingestor
	classifier *classify.Classifier
	processor  *processor.Processor
	inbox      *pmbot.Bot

	startedAt time.Time
}

// New builds an Engine from the runtime configuration and a platform
// client. The client is an external collaborator: authentication and
// token handling live with the caller.
func New(cfg *config.Config, client reddit.Client) (*Engine, error) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NotificationWebhook != "" {
		notifier = notify.NewDiscord(cfg.NotificationWebhook)
	}

	configs := store.NewConfigStore(db)
	actions := store.NewActionStore(db)
	notes := toolbox.NewStore(client)
	webhook := notify.NewDiscord("")

	ingestor := ingest.New(client, client, client, configs, notifier,
		cfg.ConfigWikiPage, cfg.BotUsername, cfg.IngestConcurrency)
	classifier := classify.New(client, client, configs, actions, ingestor,
		cfg.ConfigWikiPage, cfg.IsIgnored)
	proc := processor.New(client, client, client, configs, actions, notes,
		webhook, notifier, processor.Options{
			Concurrency:     cfg.ActionConcurrency,
			MaxRetries:      cfg.MaxProcessingRetries,
			RetryDelay:      cfg.ProcessingRetryDelay,
			PollInterval:    cfg.ProcessPollInterval,
			AllowBanAndNuke: cfg.AllowBanAndNuke,
		})
	inbox := pmbot.New(client, client, notifier,
		cfg.ConfigWikiPage, cfg.AutoAcceptModInvites, cfg.PMPollInterval)

	return &Engine{
		cfg:        cfg,
		client:     client,
		db:         db,
		notifier:   notifier,
		configs:    configs,
		actions:    actions,
		sup:        supervisor.New(notifier),
		ingestor:   ingestor,
		classifier: classifier,
		processor:  proc,
		inbox:      inbox,
	}, nil
}

// Run starts every pipeline task and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	logging.PrintBanner(Version, e.cfg.DataDir)
	if e.cfg.Debug || e.cfg.Verbose {
		logging.SetLevel(slog.LevelDebug)
	}

	waitColdStart(ctx)
	e.startedAt = time.Now()

	// A cold database means first run (or a wiped cache): load every
	// moderated community's config before the mod-log stream starts.
	empty, err := e.configs.Empty(ctx)
	if err != nil {
		return err
	}
	if empty {
		slog.Info("config cache empty, running initial ingest")
		if err := e.ingestor.IngestAll(ctx); err != nil {
			return fmt.Errorf("initial ingest: %w", err)
		}
	}

	e.sup.Add(ctx, taskModLog, e.classifier.Run)
	e.sup.Add(ctx, taskProcess, e.processor.Run)
	e.sup.Add(ctx, taskInbox, e.inbox.Run)
	e.sup.Add(ctx, taskReingest, e.delayedReingest)

	e.announceStartup(ctx)

	<-ctx.Done()
	e.sup.Shutdown()
	return e.db.Close()
}

// delayedReingest refreshes every community config once, a while after
// startup, to pick up wiki edits made while the engine was down. The
// task ends after one sweep.
func (e *Engine) delayedReingest(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(e.cfg.StartupFetchDelay):
	}
	return e.ingestor.IngestAll(ctx)
}

func (e *Engine) announceStartup(ctx context.Context) {
	communities, err := e.client.ModeratedCommunities(ctx)
	if err != nil {
		slog.Warn("moderated-community listing failed", "error", err)
	}
	sort.Slice(communities, func(i, j int) bool {
		return strings.ToLower(communities[i]) < strings.ToLower(communities[j])
	})
	msg := fmt.Sprintf("FlairWarden started at %s, monitoring %d communities: %s",
		timefmt.Format(e.startedAt), len(communities), strings.Join(communities, ", "))
	if err := e.notifier.Status(ctx, msg); err != nil {
		slog.Warn("startup notification failed", "error", err)
	}
}

// Status reports the running tasks, the pending-action backlog and the
// monitored communities.
func (e *Engine) Status(ctx context.Context) (string, error) {
	pending, err := e.actions.PendingCount(ctx)
	if err != nil {
		return "", err
	}
	communities, err := e.configs.Communities(ctx)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Started: %s\n", timefmt.Format(e.startedAt))
	fmt.Fprintf(&sb, "Log level: %s\n", logging.GetLevel())
	fmt.Fprintf(&sb, "Tasks: %s\n", strings.Join(e.sup.Running(), ", "))
	fmt.Fprintf(&sb, "Pending actions: %d\n", pending)
	fmt.Fprintf(&sb, "Communities (%d): %s\n", len(communities), strings.Join(communities, ", "))
	return sb.String(), nil
}

// waitColdStart enforces the minimum spacing between cold starts.
func waitColdStart(ctx context.Context) {
	startMu.Lock()
	since := time.Since(lastColdStart)
	if !lastColdStart.IsZero() && since < coldStartSpacing {
		wait := coldStartSpacing - since
		startMu.Unlock()
		slog.Info("cold-start spacing", "wait", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		startMu.Lock()
	}
	lastColdStart = time.Now()
	startMu.Unlock()
}
