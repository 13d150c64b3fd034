package pmbot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flairwarden/flairwarden/internal/notify"
	"github.com/flairwarden/flairwarden/internal/rules"
	"github.com/flairwarden/flairwarden/reddit"
)

type fakeInbox struct {
	unread   []reddit.Message
	read     []string
	replies  map[string]string
	replyErr error
}

func newFakeInbox() *fakeInbox {
	return &fakeInbox{replies: make(map[string]string)}
}

func (f *fakeInbox) UnreadMessages(context.Context) ([]reddit.Message, error) {
	return f.unread, nil
}

func (f *fakeInbox) MarkRead(_ context.Context, id string) error {
	f.read = append(f.read, id)
	return nil
}

func (f *fakeInbox) ReplyToMessage(_ context.Context, id, body string) error {
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies[id] = body
	return nil
}

func (f *fakeInbox) SendMessage(context.Context, string, string, string) error { return nil }

type fakeMods struct {
	moderated []string
	templates map[string][]reddit.FlairTemplate
	accepted  []string
	acceptErr error
}

func (f *fakeMods) ModeratedCommunities(context.Context) ([]string, error) {
	return f.moderated, nil
}

func (f *fakeMods) ModeratorPermissions(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeMods) BanUser(context.Context, string, string, reddit.BanOptions) error { return nil }
func (f *fakeMods) UnbanUser(context.Context, string, string) error                  { return nil }
func (f *fakeMods) AddContributor(context.Context, string, string) error             { return nil }
func (f *fakeMods) RemoveContributor(context.Context, string, string) error          { return nil }
func (f *fakeMods) SetUserFlair(context.Context, string, string, reddit.Flair) error { return nil }

func (f *fakeMods) UserFlair(context.Context, string, string) (reddit.Flair, error) {
	return reddit.Flair{}, nil
}

func (f *fakeMods) FlairTemplates(_ context.Context, community string) ([]reddit.FlairTemplate, error) {
	t, ok := f.templates[community]
	if !ok {
		return nil, &reddit.NotFoundError{Resource: "r/" + community}
	}
	return t, nil
}

func (f *fakeMods) AcceptModInvite(_ context.Context, community string) error {
	if f.acceptErr != nil {
		return f.acceptErr
	}
	f.accepted = append(f.accepted, community)
	return nil
}

type statusNotifier struct {
	messages []string
}

func (s *statusNotifier) Status(_ context.Context, message string) error {
	s.messages = append(s.messages, message)
	return nil
}

func (s *statusNotifier) Failure(context.Context, notify.Failure) error { return nil }

type env struct {
	bot      *Bot
	inbox    *fakeInbox
	mods     *fakeMods
	statuses *statusNotifier
}

func newEnv(autoAccept bool) *env {
	e := &env{
		inbox: newFakeInbox(),
		mods: &fakeMods{
			moderated: []string{"askgo"},
			templates: map[string][]reddit.FlairTemplate{
				"askgo": {
					{ID: "t1", Text: "Rule 1", ModOnly: true},
					{ID: "t2", Text: "Showcase", ModOnly: false},
					{ID: "t3", Text: "Rule 2", ModOnly: true},
				},
			},
		},
		statuses: &statusNotifier{},
	}
	e.bot = New(e.inbox, e.mods, e.statuses, "flair_helper", autoAccept, time.Minute)
	return e
}

func msg(id, author, subject, body string) reddit.Message {
	return reddit.Message{ID: id, Author: author, Subject: subject, Body: body}
}

func TestSweep_ListCommand(t *testing.T) {
	e := newEnv(false)
	e.inbox.unread = []reddit.Message{msg("m1", "alice", "list", "askgo")}

	require.NoError(t, e.bot.Sweep(context.Background()))

	assert.Equal(t, []string{"m1"}, e.inbox.read)
	reply := e.inbox.replies["m1"]
	assert.Contains(t, reply, "Mod-only flair templates for /r/askgo:")
	assert.Contains(t, reply, "Rule 1: t1")
	assert.Contains(t, reply, "Rule 2: t3")
	assert.NotContains(t, reply, "Showcase", "non-mod-only templates are excluded")
}

func TestSweep_ListNotModerated(t *testing.T) {
	e := newEnv(false)
	e.inbox.unread = []reddit.Message{msg("m1", "alice", "list", "othersub")}

	require.NoError(t, e.bot.Sweep(context.Background()))

	assert.Equal(t, "You are not a moderator of /r/othersub.", e.inbox.replies["m1"])
}

func TestSweep_InvalidCommunityName(t *testing.T) {
	e := newEnv(false)
	e.inbox.unread = []reddit.Message{msg("m1", "alice", "list", "a!")}

	require.NoError(t, e.bot.Sweep(context.Background()))

	assert.Contains(t, e.inbox.replies["m1"], "Invalid subreddit name.")
}

func TestSweep_UnknownCommand(t *testing.T) {
	e := newEnv(false)
	e.inbox.unread = []reddit.Message{msg("m1", "alice", "help", "askgo")}

	require.NoError(t, e.bot.Sweep(context.Background()))

	assert.Equal(t, "Unknown command. Available commands: 'list', 'auto'.", e.inbox.replies["m1"])
}

func TestSweep_AutoGeneratesValidConfig(t *testing.T) {
	e := newEnv(false)
	e.inbox.unread = []reddit.Message{msg("m1", "alice", "auto", "askgo")}

	require.NoError(t, e.bot.Sweep(context.Background()))

	reply := e.inbox.replies["m1"]
	require.Contains(t, reply, "```json\n")

	start := strings.Index(reply, "```json\n") + len("```json\n")
	end := strings.Index(reply[start:], "\n```")
	require.Positive(t, end)
	blob := reply[start : start+end]

	cfg, _, err := rules.Parse(blob)
	require.NoError(t, err, "generated starter config must parse")
	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, "t1", cfg.Rules[0].TemplateID)
	assert.Equal(t, "t3", cfg.Rules[1].TemplateID)
	for _, r := range cfg.Rules {
		assert.False(t, r.Remove)
		assert.False(t, r.Comment.Enabled)
		assert.False(t, r.Ban.Enabled)
	}
}

func TestSweep_AutoTruncatesOversizedReply(t *testing.T) {
	e := newEnv(false)
	var many []reddit.FlairTemplate
	for i := 0; i < 80; i++ {
		many = append(many, reddit.FlairTemplate{
			ID:      fmt.Sprintf("tmpl-%03d", i),
			Text:    fmt.Sprintf("Rule %d with a fairly long descriptive flair label", i),
			ModOnly: true,
		})
	}
	e.mods.templates["askgo"] = many
	e.inbox.unread = []reddit.Message{msg("m1", "alice", "auto", "askgo")}

	require.NoError(t, e.bot.Sweep(context.Background()))

	reply := e.inbox.replies["m1"]
	require.NotEmpty(t, reply)
	assert.LessOrEqual(t, len(reply), messageLimit)
	assert.Contains(t, reply, "tmpl-000", "leading rules survive truncation")
}

func TestSweep_ModInviteAutoAccept(t *testing.T) {
	e := newEnv(true)
	invite := reddit.Message{
		ID: "m1", Author: "subreddit-bot", Subreddit: "newsub",
		Subject: "invitation to moderate /r/newsub",
	}
	e.inbox.unread = []reddit.Message{invite}

	require.NoError(t, e.bot.Sweep(context.Background()))

	assert.Equal(t, []string{"newsub"}, e.mods.accepted)
	assert.Equal(t, []string{"m1"}, e.inbox.read)
	require.Len(t, e.statuses.messages, 1)
	assert.Contains(t, e.statuses.messages[0], "Accepted mod invitation for r/newsub")
}

func TestSweep_ModInviteAutoAcceptDisabled(t *testing.T) {
	e := newEnv(false)
	invite := reddit.Message{
		ID: "m1", Author: "subreddit-bot", Subreddit: "newsub",
		Subject: "Invitation to moderate /r/newsub",
	}
	e.inbox.unread = []reddit.Message{invite}

	require.NoError(t, e.bot.Sweep(context.Background()))

	assert.Empty(t, e.mods.accepted)
	assert.Equal(t, []string{"m1"}, e.inbox.read)
	require.Len(t, e.statuses.messages, 1)
	assert.Contains(t, e.statuses.messages[0], "auto-accept is disabled")
}

func TestSweep_SystemMailSkipped(t *testing.T) {
	e := newEnv(false)
	e.inbox.unread = []reddit.Message{msg("m1", "reddit", "something", "whatever")}

	require.NoError(t, e.bot.Sweep(context.Background()))

	assert.Equal(t, []string{"m1"}, e.inbox.read)
	assert.Empty(t, e.inbox.replies)
}

func TestSweep_BlockedRecipientIsSilent(t *testing.T) {
	e := newEnv(false)
	e.inbox.unread = []reddit.Message{msg("m1", "alice", "list", "askgo")}
	e.inbox.replyErr = &reddit.ForbiddenError{Resource: "m1"}

	require.NoError(t, e.bot.Sweep(context.Background()))

	assert.Equal(t, []string{"m1"}, e.inbox.read, "blocked replies still mark the message read")
}
