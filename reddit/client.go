package reddit

import "context"

// Posts covers the per-submission moderation calls the processor makes.
type Posts interface {
	Submission(ctx context.Context, id string) (*Submission, error)
	Approve(ctx context.Context, id string) error
	// Remove takes the post down (never as spam) with an optional short
	// mod note attached to the log row.
	Remove(ctx context.Context, id, modNote string) error
	CreateModNote(ctx context.Context, id, note string) error
	Lock(ctx context.Context, id string) error
	Unlock(ctx context.Context, id string) error
	Spoiler(ctx context.Context, id string) error
	Unspoiler(ctx context.Context, id string) error
	ClearPostFlair(ctx context.Context, id string) error
	Reply(ctx context.Context, id, body string) (commentID string, err error)
	// SendRemovalMessage attaches a removal reason of the given kind
	// (public, private, private_exposed, public_as_subreddit).
	SendRemovalMessage(ctx context.Context, id, body, kind string) error
	DistinguishComment(ctx context.Context, commentID string, sticky bool) error
	LockComment(ctx context.Context, commentID string) error
	RemoveComment(ctx context.Context, commentID string) error
	SubmissionComments(ctx context.Context, id string) ([]Comment, error)
}

// Mods covers community-scoped moderator operations.
type Mods interface {
	// ModeratedCommunities lists the communities the bot account moderates.
	ModeratedCommunities(ctx context.Context) ([]string, error)
	// ModeratorPermissions returns the permission set a user holds in a
	// community; "all" subsumes every other permission.
	ModeratorPermissions(ctx context.Context, community, user string) ([]string, error)
	BanUser(ctx context.Context, community, user string, opts BanOptions) error
	UnbanUser(ctx context.Context, community, user string) error
	AddContributor(ctx context.Context, community, user string) error
	RemoveContributor(ctx context.Context, community, user string) error
	SetUserFlair(ctx context.Context, community, user string, flair Flair) error
	UserFlair(ctx context.Context, community, user string) (Flair, error)
	FlairTemplates(ctx context.Context, community string) ([]FlairTemplate, error)
	AcceptModInvite(ctx context.Context, community string) error
}

// Users covers author-history listings, used by the nuke action.
type Users interface {
	UserComments(ctx context.Context, user string, limit int) ([]Comment, error)
	UserSubmissions(ctx context.Context, user string, limit int) ([]Submission, error)
}

// Wiki covers config-page access. Revisor is the account that made the
// latest revision.
type Wiki interface {
	WikiPage(ctx context.Context, community, page string) (content, revisor string, err error)
	EditWikiPage(ctx context.Context, community, page, content, reason string) error
}

// Inbox covers the private-message surface.
type Inbox interface {
	UnreadMessages(ctx context.Context) ([]Message, error)
	MarkRead(ctx context.Context, messageID string) error
	ReplyToMessage(ctx context.Context, messageID, body string) error
	SendMessage(ctx context.Context, to, subject, body string) error
}

// ModLog streams the unified moderation log across every moderated
// community. Stream blocks until ctx is cancelled or the stream breaks,
// invoking fn for each entry in arrival order.
type ModLog interface {
	StreamModLog(ctx context.Context, fn func(ModLogEntry) error) error
}

// Client is the full platform surface. Components depend on the narrow
// interfaces above; the composed form exists for wiring.
type Client interface {
	Posts
	Mods
	Users
	Wiki
	Inbox
	ModLog
}
