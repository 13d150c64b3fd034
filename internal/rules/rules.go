// Package rules holds the typed per-community configuration model: one
// GeneralConfiguration record plus one FlairRule per recognized flair
// template GUID, together with the canonical JSON codec, the legacy YAML
// converter and the action-set computation the classifier runs on it.
package rules

import (
	"strconv"
	"strings"
	"time"
)

// Action kinds form a closed vocabulary; unknown kinds are never inserted
// into the action queue.
const (
	ActionApprove          = "approve"
	ActionRemove           = "remove"
	ActionModlogReason     = "modlogReason"
	ActionLock             = "lock"
	ActionSpoiler          = "spoiler"
	ActionClearPostFlair   = "clearPostFlair"
	ActionSendToWebhook    = "sendToWebhook"
	ActionComment          = "comment"
	ActionBan              = "ban"
	ActionUnban            = "unban"
	ActionUserFlair        = "userFlair"
	ActionUsernote         = "usernote"
	ActionContributor      = "contributor"
	ActionNuke             = "nuke"
	ActionNukeUserComments = "nukeUserComments"
)

// Removal-message visibility kinds.
const (
	RemovalCommentPublic            = "public"
	RemovalCommentPrivate           = "private"
	RemovalCommentPrivateExposed    = "private_exposed"
	RemovalCommentPublicAsSubreddit = "public_as_subreddit"
)

// GeneralConfiguration is the first element of a community's config
// sequence. All fields are optional; accessors apply the documented
// defaults.
type GeneralConfiguration struct {
	Notes               string `json:"notes"`
	Header              string `json:"header"`
	Footer              string `json:"footer"`
	UsernoteTypeName    string `json:"usernote_type_name"`
	RemovalCommentType  string `json:"removal_comment_type"`
	SkipAddNewlines     bool   `json:"skip_add_newlines"`
	RequireConfigToEdit bool   `json:"require_config_to_edit"`
	IgnoreSameFlairSecs *int   `json:"ignore_same_flair_seconds,omitempty"`

	// Webhook target and formatting flags, forwarded opaquely to the
	// notifier.
	Webhook             string `json:"webhook"`
	WebhookContent      string `json:"wh_content"`
	WebhookPingScore    *int   `json:"wh_ping_over_score,omitempty"`
	WebhookPing         string `json:"wh_ping_over_ping"`
	WebhookExcludeMod   bool   `json:"wh_exclude_mod"`
	WebhookExcludeRpts  bool   `json:"wh_exclude_reports"`
	WebhookExcludeImage bool   `json:"wh_exclude_image"`
	WebhookNSFWImages   bool   `json:"wh_include_nsfw_images"`

	UTCOffset        int    `json:"utc_offset"`
	CustomTimeFormat string `json:"custom_time_format"`
	MaxAgeComment    *int   `json:"maxAgeForComment,omitempty"`
	MaxAgeBan        *int   `json:"maxAgeForBan,omitempty"`
}

// IgnoreSameFlairWindow returns the dedupe window for repeated
// assignments of the same (submission, flair) pair. Default 60s.
func (g *GeneralConfiguration) IgnoreSameFlairWindow() time.Duration {
	if g.IgnoreSameFlairSecs == nil {
		return 60 * time.Second
	}
	return time.Duration(*g.IgnoreSameFlairSecs) * time.Second
}

// MaxAgeForComment returns the post-age ceiling (days, inclusive) for the
// comment action. Default 175.
func (g *GeneralConfiguration) MaxAgeForComment() int {
	if g.MaxAgeComment == nil {
		return 175
	}
	return *g.MaxAgeComment
}

// RemovalType returns the removal-message kind, falling back to
// public_as_subreddit for empty or unrecognized values.
func (g *GeneralConfiguration) RemovalType() string {
	switch g.RemovalCommentType {
	case RemovalCommentPublic, RemovalCommentPrivate, RemovalCommentPrivateExposed, RemovalCommentPublicAsSubreddit:
		return g.RemovalCommentType
	default:
		return RemovalCommentPublicAsSubreddit
	}
}

// CommentRule configures the reply/removal-message action of a FlairRule.
type CommentRule struct {
	Enabled       bool   `json:"enabled"`
	Body          string `json:"body"`
	LockComment   bool   `json:"lockComment"`
	StickyComment bool   `json:"stickyComment"`
	Distinguish   bool   `json:"distinguish"`
	HeaderFooter  bool   `json:"headerFooter"`
}

// UsernoteRule configures the toolbox-note action.
type UsernoteRule struct {
	Enabled bool   `json:"enabled"`
	Note    string `json:"note"`
}

// ContributorRule configures the approved-contributor action.
type ContributorRule struct {
	Enabled bool   `json:"enabled"`
	Action  string `json:"action"` // "add" or "remove"
}

// UserFlairRule configures the author-flair action. A non-empty template
// id takes precedence over text/css.
type UserFlairRule struct {
	Enabled    bool   `json:"enabled"`
	Text       string `json:"text"`
	CSSClass   string `json:"cssClass"`
	TemplateID string `json:"templateId"`
}

// BanRule configures the ban action. Duration is permanent when empty,
// a fixed number of days when a positive integer, or an escalating
// sequence when a comma-separated list.
type BanRule struct {
	Enabled  bool        `json:"enabled"`
	Duration BanDuration `json:"duration"`
	Message  string      `json:"message"`
	ModNote  string      `json:"modNote"`
}

// NukeRule configures the heavyweight cross-community cleanup action.
type NukeRule struct {
	Enabled              bool     `json:"enabled"`
	BanFromAllListed     bool     `json:"banFromAllListed"`
	RemoveAllComments    bool     `json:"removeAllComments"`
	RemoveAllSubmissions bool     `json:"removeAllSubmissions"`
	TargetSubreddits     []string `json:"targetSubreddits"`
}

// FlairRule is the per-flair action bundle, keyed by templateId.
type FlairRule struct {
	TemplateID       string          `json:"templateId"`
	Notes            string          `json:"notes"`
	Approve          bool            `json:"approve"`
	Remove           bool            `json:"remove"`
	Lock             bool            `json:"lock"`
	Spoiler          bool            `json:"spoiler"`
	ClearPostFlair   bool            `json:"clearPostFlair"`
	ModlogReason     string          `json:"modlogReason"`
	Comment          CommentRule     `json:"comment"`
	NukeUserComments bool            `json:"nukeUserComments"`
	Usernote         UsernoteRule    `json:"usernote"`
	Contributor      ContributorRule `json:"contributor"`
	UserFlair        UserFlairRule   `json:"userFlair"`
	Ban              BanRule         `json:"ban"`
	Unban            bool            `json:"unban"`
	SendToWebhook    bool            `json:"sendToWebhook"`
	Nuke             *NukeRule       `json:"nuke,omitempty"`
}

// Config is a community's active configuration: the general record plus
// the per-flair rules in wiki order.
type Config struct {
	General GeneralConfiguration
	Rules   []FlairRule
}

// Rule returns the FlairRule for a template GUID, or nil when the flair
// is not configured. Lookup by templateId is unique within a community.
func (c *Config) Rule(templateID string) *FlairRule {
	for i := range c.Rules {
		if c.Rules[i].TemplateID == templateID {
			return &c.Rules[i]
		}
	}
	return nil
}

// Actions computes the set of action kinds a flair assignment expands
// into, one per enabled capability, in execution order. A non-empty
// modlogReason always yields a row; when remove is also enabled the
// remove step satisfies it, otherwise it runs as a standalone mod-log
// note.
func (r *FlairRule) Actions() []string {
	var kinds []string
	if r.Approve {
		kinds = append(kinds, ActionApprove)
	}
	if r.Remove {
		kinds = append(kinds, ActionRemove)
	}
	if strings.TrimSpace(r.ModlogReason) != "" {
		kinds = append(kinds, ActionModlogReason)
	}
	if r.Lock {
		kinds = append(kinds, ActionLock)
	}
	if r.Spoiler {
		kinds = append(kinds, ActionSpoiler)
	}
	if r.ClearPostFlair {
		kinds = append(kinds, ActionClearPostFlair)
	}
	if r.SendToWebhook {
		kinds = append(kinds, ActionSendToWebhook)
	}
	if r.Comment.Enabled {
		kinds = append(kinds, ActionComment)
	}
	if r.Ban.Enabled {
		kinds = append(kinds, ActionBan)
	}
	if r.Unban {
		kinds = append(kinds, ActionUnban)
	}
	if r.UserFlair.Enabled {
		kinds = append(kinds, ActionUserFlair)
	}
	if r.Usernote.Enabled {
		kinds = append(kinds, ActionUsernote)
	}
	if r.Contributor.Enabled {
		kinds = append(kinds, ActionContributor)
	}
	if r.NukeUserComments {
		kinds = append(kinds, ActionNukeUserComments)
	}
	return kinds
}

// AuthorScoped reports whether an action kind only makes sense with a
// present, non-suspended author.
func AuthorScoped(kind string) bool {
	switch kind {
	case ActionComment, ActionBan, ActionUnban, ActionUserFlair, ActionUsernote, ActionContributor, ActionNuke:
		return true
	}
	return false
}

// BanDuration is the flexible ban-duration value: "" (or legacy true)
// means permanent, a positive integer means days, and a comma-separated
// integer list means escalating.
type BanDuration struct {
	raw string
}

// NewBanDuration builds a BanDuration from its string form.
func NewBanDuration(s string) BanDuration {
	return BanDuration{raw: s}
}

// String returns the raw duration value.
func (d BanDuration) String() string { return d.raw }

// Permanent reports whether the duration means a permanent ban.
func (d BanDuration) Permanent() bool {
	return strings.TrimSpace(d.raw) == ""
}

// Days returns the fixed day count and true when the duration is a
// single positive integer.
func (d BanDuration) Days() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(d.raw))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Steps returns the escalating duration list and true when the duration
// is comma-separated. Non-numeric elements decode as 0 (permanent), as
// the legacy format allowed.
func (d BanDuration) Steps() ([]int, bool) {
	if !strings.Contains(d.raw, ",") {
		return nil, false
	}
	parts := strings.Split(d.raw, ",")
	steps := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			n = 0
		}
		steps = append(steps, n)
	}
	return steps, true
}
