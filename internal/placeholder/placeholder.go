// Package placeholder implements the {{name}} template substitution used
// in removal messages, ban messages, mod notes and user-flair text.
// Substitution is literal and single-pass; unknown names pass through
// unchanged.
package placeholder

import (
	"strconv"
	"strings"
	"time"
)

// PostContext carries the submission-derived values a rule's text fields
// may reference.
type PostContext struct {
	Author         string
	AuthorID       string
	Subreddit      string
	SubredditID    string
	Title          string
	Body           string
	ID             string
	Permalink      string
	Domain         string
	Link           string
	Mod            string
	AuthorFlair    FlairContext
	LinkFlair      FlairContext
	CreatedUTC     time.Time
	UTCOffsetHours int
	TimeFormat     string

	now func() time.Time // test hook
}

// FlairContext is the text/css/template triple of a user or link flair.
type FlairContext struct {
	Text       string
	CSSClass   string
	TemplateID string
}

// Values builds the full substitution map. Time values apply the
// community's utc_offset; the custom variants are empty when no
// custom_time_format is configured.
func (p *PostContext) Values() map[string]string {
	nowFn := p.now
	if nowFn == nil {
		nowFn = time.Now
	}
	offset := time.Duration(p.UTCOffsetHours) * time.Hour
	now := nowFn().UTC().Add(offset)
	created := p.CreatedUTC.UTC().Add(offset)

	custom := func(t time.Time) string {
		if p.TimeFormat == "" {
			return ""
		}
		return t.Format(p.TimeFormat)
	}

	return map[string]string{
		"author":                   p.Author,
		"subreddit":                p.Subreddit,
		"title":                    p.Title,
		"body":                     p.Body,
		"id":                       p.ID,
		"permalink":                p.Permalink,
		"url":                      p.Permalink,
		"domain":                   p.Domain,
		"link":                     p.Link,
		"kind":                     "submission",
		"mod":                      p.Mod,
		"author_id":                p.AuthorID,
		"subreddit_id":             p.SubredditID,
		"author_flair_text":        p.AuthorFlair.Text,
		"author_flair_css_class":   p.AuthorFlair.CSSClass,
		"author_flair_template_id": p.AuthorFlair.TemplateID,
		"link_flair_text":          p.LinkFlair.Text,
		"link_flair_css_class":     p.LinkFlair.CSSClass,
		"link_flair_template_id":   p.LinkFlair.TemplateID,
		"time_unix":                strconv.FormatInt(now.Unix(), 10),
		"time_iso":                 now.Format("2006-01-02T15:04:05"),
		"time_custom":              custom(now),
		"created_unix":             strconv.FormatInt(created.Unix(), 10),
		"created_iso":              created.Format("2006-01-02T15:04:05"),
		"created_custom":           custom(created),
	}
}

// Expand substitutes every {{name}} occurrence found in values. The scan
// is a single left-to-right pass, so substituted values are never
// re-expanded.
func Expand(s string, values map[string]string) string {
	var b strings.Builder
	for {
		open := strings.Index(s, "{{")
		if open < 0 {
			break
		}
		rest := s[open+2:]
		close := strings.Index(rest, "}}")
		if close < 0 {
			break
		}
		name := rest[:close]
		if v, ok := values[name]; ok {
			b.WriteString(s[:open])
			b.WriteString(v)
		} else {
			b.WriteString(s[:open+2+close+2])
		}
		s = rest[close+2:]
	}
	b.WriteString(s)
	return b.String()
}

// BanValues returns the ban-only placeholder pair for a resolved
// duration. days <= 0 means permanent.
func BanValues(days int) map[string]string {
	switch {
	case days <= 0:
		return map[string]string{
			"ban_duration":        "permanently banned",
			"ban_duration_number": "permanent",
		}
	case days == 1:
		return map[string]string{
			"ban_duration":        "banned for 1 day",
			"ban_duration_number": "1",
		}
	default:
		return map[string]string{
			"ban_duration":        "banned for " + strconv.Itoa(days) + " days",
			"ban_duration_number": strconv.Itoa(days),
		}
	}
}

// Merge overlays extra values on top of base without mutating either.
func Merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
