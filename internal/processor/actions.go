package processor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flairwarden/flairwarden/internal/metrics"
	"github.com/flairwarden/flairwarden/internal/placeholder"
	"github.com/flairwarden/flairwarden/internal/rules"
	"github.com/flairwarden/flairwarden/internal/store"
	"github.com/flairwarden/flairwarden/internal/toolbox"
	"github.com/flairwarden/flairwarden/reddit"
)

// nukeHistoryLimit bounds the author-history listings the nuke action
// sweeps per community.
const nukeHistoryLimit = 100

// banNoteCategory files escalating-ban bookkeeping notes under the
// toolbox warning type shared with regular usernotes.
const banNoteCategory = "flair_helper_note"

// jobRun carries the state of one execution attempt: the resolved
// submission, rule and placeholder values plus the set of still-pending
// row kinds.
type jobRun struct {
	p       *Processor
	job     store.PendingJob
	post    *reddit.Submission
	general *rules.GeneralConfiguration
	rule    *rules.FlairRule
	values  map[string]string
	pending map[string]bool
}

// executeJob runs every pending action of a job in execution order,
// marking rows completed one at a time so a retry resumes where the
// previous attempt stopped. It returns the community for failure
// reporting; an error leaves the remaining rows pending.
func (p *Processor) executeJob(ctx context.Context, job store.PendingJob) (string, error) {
	post, err := p.posts.Submission(ctx, job.SubmissionID)
	if err != nil {
		if reddit.IsNotFound(err) || reddit.IsForbidden(err) {
			slog.Debug("submission gone, dropping job", "submission", job.SubmissionID)
			return "", p.forceComplete(ctx, job.SubmissionID)
		}
		return "", fmt.Errorf("load submission: %w", err)
	}
	community := post.Subreddit

	blob, ok, err := p.configs.Get(ctx, community)
	if err != nil {
		return community, err
	}
	if !ok {
		slog.Warn("no config for community, dropping job", "submission", job.SubmissionID, "community", community)
		return community, p.forceComplete(ctx, job.SubmissionID)
	}
	cfg, err := rules.FromCanonical(blob)
	if err != nil {
		slog.Warn("cached config unreadable, dropping job", "community", community, "error", err)
		return community, p.forceComplete(ctx, job.SubmissionID)
	}

	guid, err := p.actions.FlairGUID(ctx, job.SubmissionID)
	if err != nil {
		return community, err
	}
	rule := cfg.Rule(guid)
	if rule == nil {
		slog.Warn("flair no longer configured, dropping job",
			"submission", job.SubmissionID, "community", community, "flair", guid)
		return community, p.forceComplete(ctx, job.SubmissionID)
	}

	pendingList, err := p.actions.PendingActions(ctx, job.SubmissionID)
	if err != nil {
		return community, err
	}
	pending := make(map[string]bool, len(pendingList))
	for _, kind := range pendingList {
		pending[kind] = true
	}

	r := &jobRun{
		p:       p,
		job:     job,
		post:    post,
		general: &cfg.General,
		rule:    rule,
		values:  p.placeholderValues(post, job.Mod, &cfg.General),
		pending: pending,
	}
	return community, r.execute(ctx)
}

func (p *Processor) forceComplete(ctx context.Context, submissionID string) error {
	if err := p.actions.MarkAllCompleted(ctx, submissionID); err != nil {
		return err
	}
	return p.actions.GCCompleted(ctx, submissionID)
}

func (p *Processor) placeholderValues(post *reddit.Submission, mod string, g *rules.GeneralConfiguration) map[string]string {
	pc := &placeholder.PostContext{
		Author:         post.Author,
		AuthorID:       post.AuthorID,
		Subreddit:      post.Subreddit,
		SubredditID:    post.SubredditID,
		Title:          post.Title,
		Body:           post.SelfText,
		ID:             post.ID,
		Permalink:      post.Permalink,
		Domain:         post.Domain,
		Link:           post.URL,
		Mod:            mod,
		AuthorFlair:    placeholder.FlairContext(post.AuthorFlair),
		LinkFlair:      placeholder.FlairContext(post.LinkFlair),
		CreatedUTC:     post.CreatedUTC,
		UTCOffsetHours: g.UTCOffset,
		TimeFormat:     g.CustomTimeFormat,
	}
	return pc.Values()
}

func (r *jobRun) execute(ctx context.Context) error {
	if err := r.step(ctx, rules.ActionApprove, r.approve); err != nil {
		return err
	}
	if err := r.step(ctx, rules.ActionRemove, r.remove); err != nil {
		return err
	}
	if err := r.step(ctx, rules.ActionModlogReason, r.modlogReason); err != nil {
		return err
	}
	if err := r.step(ctx, rules.ActionLock, func(ctx context.Context) error {
		return r.p.posts.Lock(ctx, r.post.ID)
	}); err != nil {
		return err
	}
	if err := r.step(ctx, rules.ActionSpoiler, func(ctx context.Context) error {
		return r.p.posts.Spoiler(ctx, r.post.ID)
	}); err != nil {
		return err
	}
	if err := r.step(ctx, rules.ActionClearPostFlair, func(ctx context.Context) error {
		return r.p.posts.ClearPostFlair(ctx, r.post.ID)
	}); err != nil {
		return err
	}
	if err := r.step(ctx, rules.ActionSendToWebhook, r.sendToWebhook); err != nil {
		return err
	}

	if r.authorGone() {
		if err := r.skipAuthorScoped(ctx); err != nil {
			return err
		}
	} else {
		if err := r.step(ctx, rules.ActionComment, r.comment); err != nil {
			return err
		}
		if err := r.step(ctx, rules.ActionBan, r.ban); err != nil {
			return err
		}
		if err := r.step(ctx, rules.ActionUnban, func(ctx context.Context) error {
			return r.p.mods.UnbanUser(ctx, r.post.Subreddit, r.post.Author)
		}); err != nil {
			return err
		}
		if err := r.step(ctx, rules.ActionUserFlair, r.userFlair); err != nil {
			return err
		}
		if err := r.step(ctx, rules.ActionUsernote, r.usernote); err != nil {
			return err
		}
		if err := r.step(ctx, rules.ActionContributor, r.contributor); err != nil {
			return err
		}
		r.nuke(ctx)
	}

	return r.step(ctx, rules.ActionNukeUserComments, r.nukeUserComments)
}

// step runs one action kind if a pending row exists for it, then flips
// the row to completed.
func (r *jobRun) step(ctx context.Context, kind string, fn func(context.Context) error) error {
	if !r.pending[kind] {
		return nil
	}
	if err := fn(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", kind, r.post.ID, err)
	}
	return r.markDone(ctx, kind)
}

func (r *jobRun) markDone(ctx context.Context, kind string) error {
	if err := r.p.actions.MarkCompleted(ctx, r.job.SubmissionID, kind); err != nil {
		return err
	}
	metrics.ActionsCompletedTotal.WithLabelValues(kind).Inc()
	delete(r.pending, kind)
	return nil
}

func (r *jobRun) authorGone() bool {
	return r.post.Author == "" || r.post.AuthorDeleted || r.post.AuthorSuspended
}

// skipAuthorScoped completes the author-scoped rows of a job whose
// author is deleted or suspended without calling the platform.
func (r *jobRun) skipAuthorScoped(ctx context.Context) error {
	for kind := range r.pending {
		if !rules.AuthorScoped(kind) {
			continue
		}
		slog.Debug("author unavailable, skipping action",
			"submission", r.post.ID, "kind", kind)
		if err := r.markDone(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

func (r *jobRun) approve(ctx context.Context) error {
	if err := r.p.posts.Approve(ctx, r.post.ID); err != nil {
		return err
	}
	if r.post.Locked {
		if err := r.p.posts.Unlock(ctx, r.post.ID); err != nil {
			return err
		}
	}
	if r.post.Spoilered {
		if err := r.p.posts.Unspoiler(ctx, r.post.ID); err != nil {
			return err
		}
	}
	return nil
}

// remove takes the post down with the expanded mod-log reason attached
// as its removal note, which also satisfies the modlogReason row.
func (r *jobRun) remove(ctx context.Context) error {
	if !r.post.Removed {
		note := r.removalNote()
		if err := r.p.posts.Remove(ctx, r.post.ID, note); err != nil {
			return err
		}
	}
	if r.pending[rules.ActionModlogReason] {
		return r.markDone(ctx, rules.ActionModlogReason)
	}
	return nil
}

// removalNote is the short note attached to the removal log row: the
// expanded modlogReason, falling back to the text of an enabled
// usernote. Capped at 100 characters by the platform.
func (r *jobRun) removalNote() string {
	note := rules.SanitizeModlogReason(placeholder.Expand(r.rule.ModlogReason, r.values))
	if note == "" && r.rule.Usernote.Enabled {
		note = strings.TrimSpace(placeholder.Expand(r.rule.Usernote.Note, r.values))
	}
	if runes := []rune(note); len(runes) > 100 {
		note = string(runes[:100])
	}
	return note
}

// modlogReason runs only when the rule has a reason but no removal; the
// reason then lands as a standalone mod note on the post.
func (r *jobRun) modlogReason(ctx context.Context) error {
	reason := rules.SanitizeModlogReason(placeholder.Expand(r.rule.ModlogReason, r.values))
	if reason == "" {
		return nil
	}
	return r.p.posts.CreateModNote(ctx, r.post.ID, reason)
}

func (r *jobRun) sendToWebhook(ctx context.Context) error {
	if r.p.webhook == nil || r.general.Webhook == "" {
		return nil
	}
	return r.p.webhook.FlairEvent(ctx, r.general.Webhook, r.general, r.post, r.job.Mod)
}

func (r *jobRun) comment(ctx context.Context) error {
	if r.postAgeDays() > r.general.MaxAgeForComment() {
		slog.Debug("post too old for comment", "submission", r.post.ID)
		return nil
	}
	body := placeholder.Expand(r.rule.Comment.Body, r.values)
	if r.rule.Comment.HeaderFooter {
		body = r.wrapHeaderFooter(body)
	}
	if strings.TrimSpace(body) == "" {
		return nil
	}

	if r.rule.Remove {
		return r.p.posts.SendRemovalMessage(ctx, r.post.ID, body, r.general.RemovalType())
	}

	commentID, err := r.p.posts.Reply(ctx, r.post.ID, body)
	if err != nil {
		return err
	}
	if r.rule.Comment.Distinguish || r.rule.Comment.StickyComment {
		if err := r.p.posts.DistinguishComment(ctx, commentID, r.rule.Comment.StickyComment); err != nil {
			return err
		}
	}
	if r.rule.Comment.LockComment {
		return r.p.posts.LockComment(ctx, commentID)
	}
	return nil
}

func (r *jobRun) postAgeDays() int {
	return int(r.p.now().Sub(r.post.CreatedUTC).Hours() / 24)
}

func (r *jobRun) wrapHeaderFooter(body string) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{
		placeholder.Expand(r.general.Header, r.values),
		body,
		placeholder.Expand(r.general.Footer, r.values),
	} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	sep := "\n\n"
	if r.general.SkipAddNewlines {
		sep = ""
	}
	return strings.Join(parts, sep)
}

// ban applies the rule's ban. Escalating durations consult the author's
// toolbox ban history and record the applied step as a new tag; the
// ban placeholders are only defined on that path.
func (r *jobRun) ban(ctx context.Context) error {
	if !r.p.opts.AllowBanAndNuke {
		slog.Warn("ban action disabled by operator", "submission", r.post.ID)
		return nil
	}
	community, author := r.post.Subreddit, r.post.Author
	dur := r.rule.Ban.Duration

	if steps, ok := dur.Steps(); ok {
		history, err := r.p.notes.BanHistory(ctx, community, author)
		if err != nil {
			return err
		}
		days := toolbox.NextBanDuration(history, steps)
		vals := placeholder.Merge(r.values, placeholder.BanValues(days))
		err = r.p.mods.BanUser(ctx, community, author, reddit.BanOptions{
			Days:    days,
			Message: placeholder.Expand(r.rule.Ban.Message, vals),
			Note:    rules.SanitizeBanNote(placeholder.Expand(r.rule.Ban.ModNote, vals)),
		})
		if err != nil {
			return err
		}
		return r.p.notes.Append(ctx, community, author,
			toolbox.BanTag(days), r.post.Permalink, r.job.Mod, banNoteCategory)
	}

	days := 0
	if !dur.Permanent() {
		var ok bool
		if days, ok = dur.Days(); !ok {
			slog.Warn("unusable ban duration, skipping ban",
				"submission", r.post.ID, "duration", dur.String())
			return nil
		}
	}
	return r.p.mods.BanUser(ctx, community, author, reddit.BanOptions{
		Days:    days,
		Message: placeholder.Expand(r.rule.Ban.Message, r.values),
		Note:    rules.SanitizeBanNote(placeholder.Expand(r.rule.Ban.ModNote, r.values)),
	})
}

func (r *jobRun) userFlair(ctx context.Context) error {
	uf := r.rule.UserFlair
	flair := reddit.Flair{TemplateID: uf.TemplateID}
	if uf.TemplateID == "" {
		flair = reddit.Flair{
			Text:     placeholder.Expand(uf.Text, r.values),
			CSSClass: placeholder.Expand(uf.CSSClass, r.values),
		}
	}
	return r.p.mods.SetUserFlair(ctx, r.post.Subreddit, r.post.Author, flair)
}

func (r *jobRun) usernote(ctx context.Context) error {
	text := strings.TrimSpace(placeholder.Expand(r.rule.Usernote.Note, r.values))
	if text == "" {
		return nil
	}
	return r.p.notes.Append(ctx, r.post.Subreddit, r.post.Author,
		text, r.post.Permalink, r.job.Mod, r.general.UsernoteTypeName)
}

func (r *jobRun) contributor(ctx context.Context) error {
	if r.rule.Contributor.Action == "remove" {
		return r.p.mods.RemoveContributor(ctx, r.post.Subreddit, r.post.Author)
	}
	return r.p.mods.AddContributor(ctx, r.post.Subreddit, r.post.Author)
}

// nuke sweeps the author's recent history across the rule's target
// communities. It never runs as a queue row: failures are logged and
// never retried, matching its best-effort contract.
func (r *jobRun) nuke(ctx context.Context) {
	n := r.rule.Nuke
	if n == nil || !n.Enabled || len(n.TargetSubreddits) == 0 {
		return
	}
	if !r.p.opts.AllowBanAndNuke {
		slog.Warn("nuke action disabled by operator", "submission", r.post.ID)
		return
	}
	author := r.post.Author

	var comments []reddit.Comment
	var posts []reddit.Submission
	var err error
	if n.RemoveAllComments {
		if comments, err = r.p.users.UserComments(ctx, author, nukeHistoryLimit); err != nil {
			slog.Warn("nuke: comment history unavailable", "user", author, "error", err)
		}
	}
	if n.RemoveAllSubmissions {
		if posts, err = r.p.users.UserSubmissions(ctx, author, nukeHistoryLimit); err != nil {
			slog.Warn("nuke: submission history unavailable", "user", author, "error", err)
		}
	}

	for _, target := range n.TargetSubreddits {
		if n.BanFromAllListed {
			err := r.p.mods.BanUser(ctx, target, author, reddit.BanOptions{
				Note: "Nuke action performed",
			})
			if err != nil {
				slog.Warn("nuke: ban failed", "user", author, "community", target, "error", err)
			}
		}
		for _, c := range comments {
			if !strings.EqualFold(c.Subreddit, target) || c.Removed {
				continue
			}
			if err := r.p.posts.RemoveComment(ctx, c.ID); err != nil {
				slog.Warn("nuke: comment removal failed", "comment", c.ID, "error", err)
			}
		}
		for _, s := range posts {
			if !strings.EqualFold(s.Subreddit, target) || s.Removed {
				continue
			}
			if err := r.p.posts.Remove(ctx, s.ID, ""); err != nil {
				slog.Warn("nuke: submission removal failed", "submission", s.ID, "error", err)
				continue
			}
			if err := r.p.posts.Lock(ctx, s.ID); err != nil {
				slog.Warn("nuke: submission lock failed", "submission", s.ID, "error", err)
			}
			if err := r.p.posts.Spoiler(ctx, s.ID); err != nil {
				slog.Warn("nuke: submission spoiler failed", "submission", s.ID, "error", err)
			}
		}
	}
}

// nukeUserComments removes every live non-moderator comment in the
// flaired submission's thread.
func (r *jobRun) nukeUserComments(ctx context.Context) error {
	comments, err := r.p.posts.SubmissionComments(ctx, r.post.ID)
	if err != nil {
		return err
	}
	for _, c := range comments {
		if c.Distinguished || c.Removed {
			continue
		}
		if err := r.p.posts.RemoveComment(ctx, c.ID); err != nil {
			return err
		}
	}
	return nil
}
