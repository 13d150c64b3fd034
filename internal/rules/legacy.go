package rules

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// legacyDoc mirrors the flat legacy YAML layout. Presence maps are keyed
// by flair GUID; for most of them only key presence matters, not the
// value. Flairs is kept as a yaml.Node so GUID order survives conversion.
type legacyDoc struct {
	Notes               string `yaml:"notes"`
	Header              string `yaml:"header"`
	Footer              string `yaml:"footer"`
	UsernoteTypeName    string `yaml:"usernote_type_name"`
	RemovalCommentType  string `yaml:"removal_comment_type"`
	SkipAddNewlines     bool   `yaml:"skip_add_newlines"`
	RequireConfigToEdit bool   `yaml:"require_config_to_edit"`
	IgnoreSameFlairSecs *int   `yaml:"ignore_same_flair_seconds"`
	Webhook             string `yaml:"webhook"`
	WebhookContent      string `yaml:"wh_content"`
	WebhookPingScore    *int   `yaml:"wh_ping_over_score"`
	WebhookPing         string `yaml:"wh_ping_over_ping"`
	WebhookExcludeMod   bool   `yaml:"wh_exclude_mod"`
	WebhookExcludeRpts  bool   `yaml:"wh_exclude_reports"`
	WebhookExcludeImage bool   `yaml:"wh_exclude_image"`
	WebhookNSFWImages   bool   `yaml:"wh_include_nsfw_images"`
	UTCOffset           int    `yaml:"utc_offset"`
	CustomTimeFormat    string `yaml:"custom_time_format"`
	MaxAgeForComment    *int   `yaml:"max_age_for_comment"`
	MaxAgeForBan        *int   `yaml:"max_age_for_ban"`

	Flairs yaml.Node `yaml:"flairs"`

	Approve           map[string]any    `yaml:"approve"`
	Remove            map[string]any    `yaml:"remove"`
	LockPost          map[string]any    `yaml:"lock_post"`
	SpoilerPost       map[string]any    `yaml:"spoiler_post"`
	RemoveLinkFlair   map[string]any    `yaml:"remove_link_flair"`
	Comment           map[string]any    `yaml:"comment"`
	CommentLocked     map[string]bool   `yaml:"comment_locked"`
	CommentStickied   map[string]bool   `yaml:"comment_stickied"`
	NukeUserComments  map[string]any    `yaml:"nukeUserComments"`
	Usernote          map[string]string `yaml:"usernote"`
	AddContributor    map[string]any    `yaml:"add_contributor"`
	RemoveContributor map[string]any    `yaml:"remove_contributor"`
	AuthorFlairText   map[string]string `yaml:"set_author_flair_text"`
	AuthorFlairCSS    map[string]string `yaml:"set_author_flair_css_class"`
	AuthorFlairTmpl   map[string]string `yaml:"set_author_flair_template_id"`
	Bans              map[string]any    `yaml:"bans"`
	BanMessage        map[string]string `yaml:"ban_message"`
	BanNote           map[string]string `yaml:"ban_note"`
	ModlogReason      map[string]string `yaml:"ban"`
	Unbans            map[string]any    `yaml:"unbans"`
	SendToWebhook     []string          `yaml:"send_to_webhook"`
}

// ConvertLegacyYAML parses a legacy YAML config document and projects it
// into the typed model. The mapping is deterministic and lossless for
// every field the engine uses; flair order follows the YAML document.
func ConvertLegacyYAML(content string) (*Config, error) {
	var doc legacyDoc
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML config: %w", err)
	}

	ignoreSecs := 60
	if doc.IgnoreSameFlairSecs != nil {
		ignoreSecs = *doc.IgnoreSameFlairSecs
	}
	maxAgeComment := 175
	if doc.MaxAgeForComment != nil {
		maxAgeComment = *doc.MaxAgeForComment
	}

	cfg := &Config{
		General: GeneralConfiguration{
			Notes:               doc.Notes,
			Header:              doc.Header,
			Footer:              doc.Footer,
			UsernoteTypeName:    doc.UsernoteTypeName,
			RemovalCommentType:  doc.RemovalCommentType,
			SkipAddNewlines:     doc.SkipAddNewlines,
			RequireConfigToEdit: doc.RequireConfigToEdit,
			IgnoreSameFlairSecs: &ignoreSecs,
			Webhook:             doc.Webhook,
			WebhookContent:      doc.WebhookContent,
			WebhookPingScore:    doc.WebhookPingScore,
			WebhookPing:         doc.WebhookPing,
			WebhookExcludeMod:   doc.WebhookExcludeMod,
			WebhookExcludeRpts:  doc.WebhookExcludeRpts,
			WebhookExcludeImage: doc.WebhookExcludeImage,
			WebhookNSFWImages:   doc.WebhookNSFWImages,
			UTCOffset:           doc.UTCOffset,
			CustomTimeFormat:    doc.CustomTimeFormat,
			MaxAgeComment:       &maxAgeComment,
			MaxAgeBan:           doc.MaxAgeForBan,
		},
	}

	for _, f := range flairEntries(&doc.Flairs) {
		guid, body := f.guid, f.body
		_, addContrib := doc.AddContributor[guid]
		_, removeContrib := doc.RemoveContributor[guid]
		contribAction := ""
		if addContrib || removeContrib {
			// The legacy converter only ever produced "add"; keep that.
			contribAction = "add"
		}

		rule := FlairRule{
			TemplateID:     guid,
			Notes:          body,
			Approve:        has(doc.Approve, guid),
			Remove:         has(doc.Remove, guid),
			Lock:           has(doc.LockPost, guid),
			Spoiler:        has(doc.SpoilerPost, guid),
			ClearPostFlair: has(doc.RemoveLinkFlair, guid),
			ModlogReason:   SanitizeModlogReason(doc.ModlogReason[guid]),
			Comment: CommentRule{
				Enabled:       has(doc.Comment, guid),
				Body:          body,
				LockComment:   doc.CommentLocked[guid],
				StickyComment: doc.CommentStickied[guid],
				Distinguish:   true,
				HeaderFooter:  true,
			},
			NukeUserComments: has(doc.NukeUserComments, guid),
			Usernote: UsernoteRule{
				Enabled: has(doc.Usernote, guid),
				Note:    doc.Usernote[guid],
			},
			Contributor: ContributorRule{
				Enabled: addContrib || removeContrib,
				Action:  contribAction,
			},
			UserFlair: UserFlairRule{
				Enabled:    has(doc.AuthorFlairText, guid) || has(doc.AuthorFlairCSS, guid) || has(doc.AuthorFlairTmpl, guid),
				Text:       doc.AuthorFlairText[guid],
				CSSClass:   doc.AuthorFlairCSS[guid],
				TemplateID: doc.AuthorFlairTmpl[guid],
			},
			Ban: BanRule{
				Enabled:  has(doc.Bans, guid),
				Duration: legacyBanDuration(doc.Bans[guid]),
				Message:  doc.BanMessage[guid],
				ModNote:  SanitizeBanNote(doc.BanNote[guid]),
			},
			Unban:         has(doc.Unbans, guid),
			SendToWebhook: contains(doc.SendToWebhook, guid),
		}
		cfg.Rules = append(cfg.Rules, rule)
	}

	return cfg, nil
}

type flairEntry struct {
	guid string
	body string
}

// flairEntries walks the `flairs` mapping node in document order.
func flairEntries(node *yaml.Node) []flairEntry {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	entries := make([]flairEntry, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		entries = append(entries, flairEntry{
			guid: node.Content[i].Value,
			body: node.Content[i+1].Value,
		})
	}
	return entries
}

func has[V any](m map[string]V, key string) bool {
	_, ok := m[key]
	return ok
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// legacyBanDuration converts the legacy `bans` value: true means
// permanent, an integer means days, a string is kept verbatim (it may be
// an escalating list).
func legacyBanDuration(v any) BanDuration {
	switch t := v.(type) {
	case nil:
		return NewBanDuration("0")
	case bool:
		if t {
			return NewBanDuration("")
		}
		return NewBanDuration("0")
	case int:
		return NewBanDuration(strconv.Itoa(t))
	case string:
		return NewBanDuration(strings.TrimSpace(t))
	default:
		return NewBanDuration("0")
	}
}
