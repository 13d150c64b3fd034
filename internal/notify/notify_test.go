package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flairwarden/flairwarden/internal/notify"
	"github.com/flairwarden/flairwarden/internal/rules"
	"github.com/flairwarden/flairwarden/reddit"
)

type capture struct {
	payloads []map[string]any
}

func newWebhookServer(t *testing.T, status int) (*httptest.Server, *capture) {
	t.Helper()
	c := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var p map[string]any
		require.NoError(t, json.Unmarshal(body, &p))
		c.payloads = append(c.payloads, p)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestDiscord_Status(t *testing.T) {
	srv, c := newWebhookServer(t, http.StatusNoContent)
	d := notify.NewDiscord(srv.URL)

	require.NoError(t, d.Status(context.Background(), "engine started"))
	require.Len(t, c.payloads, 1)
	assert.Equal(t, "engine started", c.payloads[0]["content"])
}

func TestDiscord_Failure(t *testing.T) {
	srv, c := newWebhookServer(t, http.StatusNoContent)
	d := notify.NewDiscord(srv.URL)

	f := notify.Failure{
		SubmissionID: "p1",
		Community:    "askgo",
		Attempts:     3,
		Pending:      []string{"ban", "usernote"},
		Err:          errors.New("server error: status 503"),
	}
	require.NoError(t, d.Failure(context.Background(), f))

	require.Len(t, c.payloads, 1)
	content := c.payloads[0]["content"].(string)
	assert.Contains(t, content, "https://redd.it/p1")
	assert.Contains(t, content, "r/askgo")
	assert.Contains(t, content, "after 3 attempts")
	assert.Contains(t, content, "ban, usernote")
	assert.Contains(t, content, "status 503")
}

func flairedPost() *reddit.Submission {
	return &reddit.Submission{
		ID:         "p1",
		Subreddit:  "askgo",
		Title:      "help me",
		Permalink:  "/r/askgo/comments/p1/help_me/",
		URL:        "https://i.example/img.png",
		Score:      120,
		CreatedUTC: time.Unix(1700000000, 0),
		Author:     "alice",
		LinkFlair:  reddit.Flair{Text: "Spam"},
	}
}

func TestDiscord_FlairEvent(t *testing.T) {
	srv, c := newWebhookServer(t, http.StatusNoContent)
	d := notify.NewDiscord(srv.URL)
	g := &rules.GeneralConfiguration{WebhookContent: "heads up"}

	require.NoError(t, d.FlairEvent(context.Background(), srv.URL, g, flairedPost(), "modA"))

	require.Len(t, c.payloads, 1)
	p := c.payloads[0]
	assert.Equal(t, "heads up", p["content"])

	embeds := p["embeds"].([]any)
	require.Len(t, embeds, 1)
	e := embeds[0].(map[string]any)
	assert.Equal(t, "help me", e["title"])
	assert.Equal(t, "https://www.reddit.com/r/askgo/comments/p1/help_me/", e["url"])
	assert.Equal(t, "Post Flaired: Spam", e["description"])
	require.NotNil(t, e["image"])

	// Mod field present by default.
	var names []string
	for _, f := range e["fields"].([]any) {
		names = append(names, f.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "Actioned By")
}

func TestDiscord_FlairEvent_Flags(t *testing.T) {
	srv, c := newWebhookServer(t, http.StatusNoContent)
	d := notify.NewDiscord(srv.URL)

	score := 100
	g := &rules.GeneralConfiguration{
		WebhookExcludeMod:   true,
		WebhookExcludeImage: true,
		WebhookPingScore:    &score,
		WebhookPing:         "everyone",
	}
	require.NoError(t, d.FlairEvent(context.Background(), srv.URL, g, flairedPost(), "modA"))

	p := c.payloads[0]
	// Ping replaces any configured content once the score threshold hits.
	assert.Equal(t, "@everyone", p["content"])
	e := p["embeds"].([]any)[0].(map[string]any)
	assert.Nil(t, e["image"])
	for _, f := range e["fields"].([]any) {
		assert.NotEqual(t, "Actioned By", f.(map[string]any)["name"])
	}
}

func TestDiscord_FlairEvent_NSFWImageExcluded(t *testing.T) {
	srv, c := newWebhookServer(t, http.StatusNoContent)
	d := notify.NewDiscord(srv.URL)

	post := flairedPost()
	post.NSFW = true
	require.NoError(t, d.FlairEvent(context.Background(), srv.URL, &rules.GeneralConfiguration{}, post, "modA"))

	e := c.payloads[0]["embeds"].([]any)[0].(map[string]any)
	assert.Nil(t, e["image"])
}

func TestDiscord_ServerError(t *testing.T) {
	srv, _ := newWebhookServer(t, http.StatusBadGateway)
	d := notify.NewDiscord(srv.URL)

	err := d.Status(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, reddit.IsTransient(err))
}

func TestFailureString_NoPending(t *testing.T) {
	f := notify.Failure{SubmissionID: "p2", Community: "askgo", Attempts: 1}
	s := f.String()
	assert.Contains(t, s, "https://redd.it/p2")
	assert.NotContains(t, s, "Pending actions")
}
