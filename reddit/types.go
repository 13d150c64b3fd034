// Package reddit defines the platform boundary: the domain types the
// engine operates on, narrow capability interfaces implemented by the
// API client, typed errors for the platform's failure modes and a shared
// retry helper.
package reddit

import "time"

// Flair is the text/css/template triple attached to a post or a user.
type Flair struct {
	Text       string
	CSSClass   string
	TemplateID string
}

// Submission is a forum post with the moderation-relevant state the
// processor inspects before acting.
type Submission struct {
	ID          string // short id, e.g. "abc123"
	Fullname    string // prefixed id, e.g. "t3_abc123"
	Subreddit   string
	SubredditID string
	Title       string
	SelfText    string
	Domain      string
	URL         string
	Permalink   string
	Thumbnail   string
	Score       int
	NSFW        bool
	CreatedUTC  time.Time

	Author          string
	AuthorID        string
	AuthorDeleted   bool
	AuthorSuspended bool
	AuthorFlair     Flair

	LinkFlair Flair
	Removed   bool
	Locked    bool
	Spoilered bool
	Reports   []string
}

// ModLogEntry is one row of the unified moderation log.
type ModLogEntry struct {
	ID             string
	Action         string // e.g. "editflair", "wikirevise"
	Mod            string
	Subreddit      string
	TargetFullname string
	Details        string
	Description    string
	CreatedUTC     time.Time
}

// Comment is a user comment, loaded when sweeping a thread or an
// author's history.
type Comment struct {
	ID            string
	Author        string
	SubmissionID  string
	Subreddit     string
	Removed       bool
	Distinguished bool // distinguished as a moderator comment
	CreatedUTC    time.Time
}

// Message is a private message from the bot's inbox.
type Message struct {
	ID         string
	Author     string
	Subreddit  string // set on messages sent on behalf of a community
	Subject    string
	Body       string
	CreatedUTC time.Time
}

// FlairTemplate describes one of a community's post flair templates.
type FlairTemplate struct {
	ID       string
	Text     string
	CSSClass string
	ModOnly  bool
}

// BanOptions carries the knobs of a ban call. Days == 0 bans permanently.
type BanOptions struct {
	Days    int
	Message string
	Note    string // sanitized, <= 100 chars
}
