// Package ingest pulls community config wiki pages, parses and
// validates them, re-authorizes the editor, and swaps the active
// configuration in the config store when the content changed.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/flairwarden/flairwarden/internal/metrics"
	"github.com/flairwarden/flairwarden/internal/notify"
	"github.com/flairwarden/flairwarden/internal/rules"
	"github.com/flairwarden/flairwarden/internal/store"
	"github.com/flairwarden/flairwarden/reddit"
)

// ingestCallTries bounds the retry count per platform call during a
// sweep; transient failures back off between tries.
const ingestCallTries = 4

// Ingestor loads community configurations from their wiki pages.
type Ingestor struct {
	wiki     reddit.Wiki
	mods     reddit.Mods
	inbox    reddit.Inbox
	configs  *store.ConfigStore
	notifier notify.Notifier

	page        string // wiki page name, e.g. "flair_helper"
	botUsername string
	concurrency int
}

// New creates an Ingestor. concurrency bounds parallel wiki fetches
// during a full sweep.
func New(wiki reddit.Wiki, mods reddit.Mods, inbox reddit.Inbox, configs *store.ConfigStore, notifier notify.Notifier, page, botUsername string, concurrency int) *Ingestor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Ingestor{
		wiki:        wiki,
		mods:        mods,
		inbox:       inbox,
		configs:     configs,
		notifier:    notifier,
		page:        page,
		botUsername: botUsername,
		concurrency: concurrency,
	}
}

// IngestAll sweeps every community the bot moderates. Per-community
// failures are logged and do not abort the sweep.
func (i *Ingestor) IngestAll(ctx context.Context) error {
	communities, err := i.mods.ModeratedCommunities(ctx)
	if err != nil {
		return fmt.Errorf("list moderated communities: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)
	for _, community := range communities {
		// User-profile pseudo-communities carry no config page.
		if strings.HasPrefix(community, "u_") {
			continue
		}
		g.Go(func() error {
			if err := i.IngestCommunity(gctx, community); err != nil {
				slog.Error("config ingest failed", "community", community, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// IngestCommunity loads one community's config page and swaps the active
// configuration when the content changed and the editor is authorized.
// Invalid content never evicts the cached config.
func (i *Ingestor) IngestCommunity(ctx context.Context, community string) error {
	var content, revisor string
	err := reddit.Call(ctx, ingestCallTries, func() error {
		var cerr error
		content, revisor, cerr = i.wiki.WikiPage(ctx, community, i.page)
		return cerr
	})
	switch {
	case reddit.IsNotFound(err):
		slog.Debug("no config page", "community", community)
		return nil
	case reddit.IsForbidden(err):
		slog.Warn("config page not readable", "community", community)
		return nil
	case err != nil:
		return fmt.Errorf("fetch config page for r/%s: %w", community, err)
	}
	if strings.TrimSpace(content) == "" {
		slog.Debug("config page is blank", "community", community)
		return nil
	}

	cfg, converted, err := rules.Parse(content)
	if err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("invalid").Inc()
		i.reportInvalid(ctx, community, revisor, err)
		return nil
	}

	canonical, err := cfg.Canonical()
	if err != nil {
		return fmt.Errorf("canonicalize config for r/%s: %w", community, err)
	}

	cached, ok, err := i.configs.Get(ctx, community)
	if err != nil {
		return fmt.Errorf("load cached config for r/%s: %w", community, err)
	}
	if ok && cached == canonical {
		metrics.ConfigReloadsTotal.WithLabelValues("unchanged").Inc()
		slog.Debug("config unchanged", "community", community)
		return nil
	}

	if cfg.General.RequireConfigToEdit && revisor != i.botUsername {
		authorized, err := i.editorAuthorized(ctx, community, revisor)
		if err != nil {
			return fmt.Errorf("check editor permissions for r/%s: %w", community, err)
		}
		if !authorized {
			metrics.ConfigReloadsTotal.WithLabelValues("unauthorized").Inc()
			msg := fmt.Sprintf("Mod %s does not have permission to edit the %s wiki in r/%s; keeping the previous configuration.", revisor, i.page, community)
			slog.Warn("unauthorized config edit", "community", community, "editor", revisor)
			if nerr := i.notifier.Status(ctx, msg); nerr != nil {
				slog.Warn("notification failed", "error", nerr)
			}
			return nil
		}
	}

	if err := i.configs.Put(ctx, community, canonical); err != nil {
		return fmt.Errorf("cache config for r/%s: %w", community, err)
	}
	metrics.ConfigReloadsTotal.WithLabelValues("ok").Inc()
	slog.Info("config reloaded", "community", community, "rules", len(cfg.Rules), "converted", converted)

	// Write the canonical form back so the page and the cache agree.
	pretty, err := cfg.Pretty()
	if err == nil && strings.TrimSpace(content) != pretty {
		werr := reddit.Call(ctx, ingestCallTries, func() error {
			return i.wiki.EditWikiPage(ctx, community, i.page, pretty, "canonicalized by flairwarden")
		})
		if werr != nil {
			slog.Warn("config page rewrite failed", "community", community, "error", werr)
		}
	}

	if nerr := i.notifier.Status(ctx, fmt.Sprintf("Configuration for r/%s reloaded (%d rules).", community, len(cfg.Rules))); nerr != nil {
		slog.Warn("notification failed", "error", nerr)
	}
	return nil
}

// editorAuthorized reports whether the revisor holds the config (or all)
// moderator permission in the community.
func (i *Ingestor) editorAuthorized(ctx context.Context, community, revisor string) (bool, error) {
	var perms []string
	err := reddit.Call(ctx, ingestCallTries, func() error {
		var cerr error
		perms, cerr = i.mods.ModeratorPermissions(ctx, community, revisor)
		return cerr
	})
	if reddit.IsNotFound(err) {
		return false, nil // no longer a moderator
	}
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == "all" || p == "config" {
			return true, nil
		}
	}
	return false, nil
}

// reportInvalid messages the editing moderator and the operator channel
// about a config that failed to parse. The prior cached config stays
// active.
func (i *Ingestor) reportInvalid(ctx context.Context, community, revisor string, parseErr error) {
	slog.Warn("invalid config", "community", community, "editor", revisor, "error", parseErr)
	if revisor != "" && revisor != i.botUsername {
		body := fmt.Sprintf("The %s configuration for r/%s could not be loaded:\n\n%v\n\nThe previous configuration remains active.", i.page, community, parseErr)
		if err := i.inbox.SendMessage(ctx, revisor, "Configuration error in r/"+community, body); err != nil {
			slog.Warn("could not message config editor", "community", community, "editor", revisor, "error", err)
		}
	}
	if err := i.notifier.Status(ctx, fmt.Sprintf("Invalid configuration in r/%s (edited by %s): %v", community, revisor, parseErr)); err != nil {
		slog.Warn("notification failed", "error", err)
	}
}
