package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flairwarden/flairwarden/internal/rules"
	"github.com/flairwarden/flairwarden/reddit"
)

// Discord posts to a Discord-compatible webhook URL.
type Discord struct {
	url    string
	client *http.Client
}

// NewDiscord creates a Discord notifier for the given webhook URL.
func NewDiscord(url string) *Discord {
	return &Discord{
		url:    url,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []embed `json:"embeds,omitempty"`
}

type embed struct {
	Title       string       `json:"title,omitempty"`
	URL         string       `json:"url,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Image       *embedImage  `json:"image,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type embedImage struct {
	URL string `json:"url"`
}

// Status sends a plaintext status line.
func (d *Discord) Status(ctx context.Context, message string) error {
	return d.post(ctx, d.url, webhookPayload{Content: message})
}

// Failure sends a terminal-failure report.
func (d *Discord) Failure(ctx context.Context, f Failure) error {
	return d.post(ctx, d.url, webhookPayload{Content: f.String()})
}

// FlairEvent sends the per-flair embed to a community-configured webhook.
// The wh_* flags of the community's GeneralConfiguration shape the
// payload; post state supplies the fields.
func (d *Discord) FlairEvent(ctx context.Context, url string, g *rules.GeneralConfiguration, post *reddit.Submission, mod string) error {
	author := post.Author
	if post.AuthorDeleted || author == "" {
		author = "[deleted]"
	}

	e := embed{
		Title:       post.Title,
		URL:         "https://www.reddit.com" + post.Permalink,
		Description: "Post Flaired: " + post.LinkFlair.Text,
		Color:       242424,
		Fields: []embedField{
			{Name: "Author", Value: author, Inline: true},
			{Name: "Score", Value: fmt.Sprintf("%d", post.Score), Inline: true},
			{Name: "Created", Value: post.CreatedUTC.UTC().Format("Jan 2 2006 15:04:05 UTC"), Inline: true},
			{Name: "User Flair", Value: post.AuthorFlair.Text, Inline: true},
			{Name: "Subreddit", Value: "/r/" + post.Subreddit, Inline: true},
		},
	}
	if !g.WebhookExcludeMod {
		e.Fields = append(e.Fields, embedField{Name: "Actioned By", Value: mod})
	}
	if !g.WebhookExcludeRpts && len(post.Reports) > 0 {
		var reports string
		for i, r := range post.Reports {
			if i > 0 {
				reports += ", "
			}
			reports += r
		}
		e.Fields = append(e.Fields, embedField{Name: "Reports", Value: reports})
	}
	if post.NSFW && !g.WebhookNSFWImages {
		// Never embed NSFW media unless the community opted in.
	} else if !g.WebhookExcludeImage && post.URL != "" {
		e.Image = &embedImage{URL: post.URL}
	}

	payload := webhookPayload{Embeds: []embed{e}}
	if g.WebhookContent != "" {
		payload.Content = g.WebhookContent
	}
	if g.WebhookPingScore != nil && post.Score >= *g.WebhookPingScore && g.WebhookPing != "" {
		switch g.WebhookPing {
		case "everyone":
			payload.Content = "@everyone"
		case "here":
			payload.Content = "@here"
		default:
			payload.Content = "<@&" + g.WebhookPing + ">"
		}
	}
	return d.post(ctx, url, payload)
}

func (d *Discord) post(ctx context.Context, url string, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		ra, _ := reddit.ParseRetryAfter(resp.Header.Get("Retry-After") + " seconds")
		return &reddit.RateLimitError{RetryAfter: ra, Message: "webhook"}
	case resp.StatusCode >= 500:
		return &reddit.ServerError{StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return fmt.Errorf("webhook rejected: status %d", resp.StatusCode)
	}
	return nil
}
