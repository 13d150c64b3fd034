// Package pmbot answers the bot account's inbox: flair-template
// listings, starter-config generation and moderator invitations.
package pmbot

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/flairwarden/flairwarden/internal/notify"
	"github.com/flairwarden/flairwarden/internal/rules"
	"github.com/flairwarden/flairwarden/reddit"
)

// messageLimit is the platform's private-message length cap.
const messageLimit = 10000

// communityNameRe matches a valid community name.
var communityNameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,21}$`)

// Bot polls the inbox and answers each unread message exactly once.
type Bot struct {
	inbox      reddit.Inbox
	mods       reddit.Mods
	notifier   notify.Notifier
	wikiPage   string
	autoAccept bool
	interval   time.Duration
}

// New creates a Bot. wikiPage is the config page name referenced in
// generated replies.
func New(inbox reddit.Inbox, mods reddit.Mods, notifier notify.Notifier, wikiPage string, autoAccept bool, interval time.Duration) *Bot {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Bot{
		inbox:      inbox,
		mods:       mods,
		notifier:   notifier,
		wikiPage:   wikiPage,
		autoAccept: autoAccept,
		interval:   interval,
	}
}

// Run sweeps the inbox until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.Sweep(ctx); err != nil {
				return err
			}
		}
	}
}

// Sweep handles every unread message. Per-message failures are logged
// and do not stop the sweep.
func (b *Bot) Sweep(ctx context.Context) error {
	msgs, err := b.inbox.UnreadMessages(ctx)
	if err != nil {
		return fmt.Errorf("read inbox: %w", err)
	}
	for _, msg := range msgs {
		if err := b.handle(ctx, msg); err != nil {
			slog.Error("message handling failed", "message", msg.ID, "error", err)
		}
	}
	return nil
}

func (b *Bot) handle(ctx context.Context, msg reddit.Message) error {
	// Admin and system mail never gets a reply.
	if strings.EqualFold(msg.Author, "reddit") {
		return b.inbox.MarkRead(ctx, msg.ID)
	}
	if isModInvite(msg) {
		return b.handleInvite(ctx, msg)
	}

	if err := b.inbox.MarkRead(ctx, msg.ID); err != nil {
		return err
	}
	response := b.respond(ctx, msg)
	if response == "" {
		return nil
	}
	err := b.inbox.ReplyToMessage(ctx, msg.ID, response)
	switch {
	case err == nil:
		return nil
	case reddit.IsForbidden(err):
		slog.Debug("reply blocked by recipient", "message", msg.ID)
		return nil
	case reddit.IsNotFound(err):
		slog.Debug("message vanished before reply", "message", msg.ID)
		return nil
	default:
		return fmt.Errorf("reply to %s: %w", msg.ID, err)
	}
}

func isModInvite(msg reddit.Message) bool {
	return strings.Contains(strings.ToLower(msg.Subject), "invitation to moderate") ||
		strings.HasPrefix(msg.Body, "gadzooks!")
}

func (b *Bot) handleInvite(ctx context.Context, msg reddit.Message) error {
	community := msg.Subreddit
	if !b.autoAccept {
		b.status(ctx, fmt.Sprintf("Received mod invitation for r/%s but auto-accept is disabled", community))
		return b.inbox.MarkRead(ctx, msg.ID)
	}
	if err := b.mods.AcceptModInvite(ctx, community); err != nil {
		if reddit.IsNotFound(err) {
			slog.Debug("stale mod invite", "community", community)
		} else {
			slog.Warn("mod invite accept failed", "community", community, "error", err)
		}
	} else {
		b.status(ctx, fmt.Sprintf("Accepted mod invitation for r/%s", community))
	}
	return b.inbox.MarkRead(ctx, msg.ID)
}

func (b *Bot) status(ctx context.Context, message string) {
	if err := b.notifier.Status(ctx, message); err != nil {
		slog.Warn("status notification failed", "error", err)
	}
}

// respond builds the reply body for a command message.
func (b *Bot) respond(ctx context.Context, msg reddit.Message) string {
	fields := strings.Fields(msg.Body)
	if len(fields) == 0 {
		return b.usage()
	}
	community := fields[0]
	if !communityNameRe.MatchString(community) {
		return "Invalid subreddit name. The subreddit name must be between 3 and 21 characters long and can only contain letters, numbers, and underscores."
	}

	switch strings.ToLower(strings.TrimSpace(msg.Subject)) {
	case "list":
		return b.listFlairs(ctx, community)
	case "auto":
		return b.starterConfig(ctx, community)
	default:
		return b.usage()
	}
}

func (b *Bot) usage() string {
	return "Unknown command. Available commands: 'list', 'auto'."
}

func (b *Bot) moderates(ctx context.Context, community string) (bool, error) {
	communities, err := b.mods.ModeratedCommunities(ctx)
	if err != nil {
		return false, err
	}
	for _, c := range communities {
		if strings.EqualFold(c, community) {
			return true, nil
		}
	}
	return false, nil
}

func (b *Bot) listFlairs(ctx context.Context, community string) string {
	ok, err := b.moderates(ctx, community)
	if err != nil {
		slog.Warn("moderated-community lookup failed", "error", err)
		return ""
	}
	if !ok {
		return fmt.Sprintf("You are not a moderator of /r/%s.", community)
	}

	templates, err := b.modOnlyTemplates(ctx, community)
	if err != nil {
		if reddit.IsNotFound(err) {
			return fmt.Sprintf("Subreddit /r/%s not found.", community)
		}
		slog.Warn("flair template listing failed", "community", community, "error", err)
		return ""
	}
	if len(templates) == 0 {
		return fmt.Sprintf("No mod-only flair templates found for /r/%s.", community)
	}

	lines := make([]string, 0, len(templates))
	for _, t := range templates {
		lines = append(lines, fmt.Sprintf("%s: %s", t.Text, t.ID))
	}
	return fmt.Sprintf("Mod-only flair templates for /r/%s:\n\n%s",
		community, strings.Join(lines, "\n\n"))
}

func (b *Bot) modOnlyTemplates(ctx context.Context, community string) ([]reddit.FlairTemplate, error) {
	templates, err := b.mods.FlairTemplates(ctx, community)
	if err != nil {
		return nil, err
	}
	var modOnly []reddit.FlairTemplate
	for _, t := range templates {
		if t.ModOnly {
			modOnly = append(modOnly, t)
		}
	}
	return modOnly, nil
}

// starterConfig generates a valid configuration for the community's
// mod-only flairs with every toggle off. Oversized replies drop
// trailing flair rules until the message fits.
func (b *Bot) starterConfig(ctx context.Context, community string) string {
	ok, err := b.moderates(ctx, community)
	if err != nil {
		slog.Warn("moderated-community lookup failed", "error", err)
		return ""
	}
	if !ok {
		return fmt.Sprintf("You are not a moderator of /r/%s.", community)
	}

	templates, err := b.modOnlyTemplates(ctx, community)
	if err != nil {
		if reddit.IsNotFound(err) {
			return fmt.Sprintf("Subreddit /r/%s not found.", community)
		}
		slog.Warn("flair template listing failed", "community", community, "error", err)
		return ""
	}

	cfg := StarterConfig(templates)
	response, err := b.renderStarter(community, cfg)
	if err != nil {
		slog.Warn("starter config rendering failed", "community", community, "error", err)
		return ""
	}
	for len(response) > messageLimit && len(cfg.Rules) > 0 {
		cfg.Rules = cfg.Rules[:len(cfg.Rules)-1]
		if response, err = b.renderStarter(community, cfg); err != nil {
			slog.Warn("starter config rendering failed", "community", community, "error", err)
			return ""
		}
	}
	return response
}

func (b *Bot) renderStarter(community string, cfg *rules.Config) (string, error) {
	blob, err := cfg.Pretty()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb,
		"Here's a sample configuration for /r/%s which you can place in [https://www.reddit.com/r/%s/wiki/%s](https://www.reddit.com/r/%s/wiki/%s)\n\n",
		community, community, b.wikiPage, community, b.wikiPage)
	sb.WriteString("By default, all options are set to 'False' to prevent an automatic configuration from causing troubles. Please review the configuration carefully and enable the desired actions for each flair.\n\n")
	sb.WriteString("\n```json\n" + blob + "\n```")
	sb.WriteString("\n\nPlease be sure to review all the detected flairs and remove any that may not be applicable (such as Mod Announcements, Notices, News, etc.)")
	return sb.String(), nil
}

// StarterConfig builds the all-off starter configuration for a set of
// flair templates.
func StarterConfig(templates []reddit.FlairTemplate) *rules.Config {
	cfg := &rules.Config{
		General: rules.GeneralConfiguration{
			Notes:              "This is an auto-generated configuration. All options are off by default; review it carefully and enable what you need.",
			Header:             "Hi /u/{{author}}, thanks for contributing to /r/{{subreddit}}. Unfortunately, your post was removed as it violates our rules:",
			Footer:             "Please read the rules of our subreddit [here](https://www.reddit.com/r/{{subreddit}}/about/rules) before posting again. If you have any questions or concerns please [message the moderators through modmail](https://www.reddit.com/message/compose?to=/r/{{subreddit}}&subject=About my removed {{kind}}&message=I'm writing to you about the following {{kind}}: {{url}}. %0D%0DMy issue is...).",
			UsernoteTypeName:   "flair_helper_note",
			RemovalCommentType: rules.RemovalCommentPublicAsSubreddit,
		},
	}
	for _, t := range templates {
		cfg.Rules = append(cfg.Rules, rules.FlairRule{
			TemplateID:   t.ID,
			Notes:        t.Text,
			ModlogReason: "Violated Rule - " + t.Text,
			Comment: rules.CommentRule{
				Body:         "Removed for violating rule - " + t.Text,
				Distinguish:  true,
				HeaderFooter: true,
			},
			Usernote:    rules.UsernoteRule{Note: "Removed - " + t.Text},
			Contributor: rules.ContributorRule{Action: "add"},
			Ban:         rules.BanRule{Duration: rules.NewBanDuration("0")},
		})
	}
	return cfg
}
