package placeholder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	values := map[string]string{
		"author":    "alice",
		"subreddit": "askgo",
	}

	assert.Equal(t, "Hi u/alice, welcome to r/askgo",
		Expand("Hi u/{{author}}, welcome to r/{{subreddit}}", values))

	// Unknown names pass through unchanged.
	assert.Equal(t, "see {{rules_url}}", Expand("see {{rules_url}}", values))

	// Single pass: substituted values are not re-expanded.
	tricky := map[string]string{"a": "{{b}}", "b": "boom"}
	assert.Equal(t, "{{b}}", Expand("{{a}}", tricky))

	// Unterminated braces are left alone.
	assert.Equal(t, "dangling {{author", Expand("dangling {{author", values))
	assert.Equal(t, "", Expand("", values))
}

func TestPostContext_Values(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := time.Date(2024, 3, 2, 18, 30, 0, 0, time.UTC)

	ctx := &PostContext{
		Author:         "alice",
		AuthorID:       "t2_abc",
		Subreddit:      "askgo",
		SubredditID:    "t5_xyz",
		Title:          "help",
		ID:             "p1",
		Permalink:      "/r/askgo/comments/p1/help/",
		Mod:            "bob",
		LinkFlair:      FlairContext{Text: "Question"},
		CreatedUTC:     created,
		UTCOffsetHours: 2,
		TimeFormat:     "2006-01-02",
		now:            func() time.Time { return now },
	}

	v := ctx.Values()
	assert.Equal(t, "alice", v["author"])
	assert.Equal(t, "bob", v["mod"])
	assert.Equal(t, "submission", v["kind"])
	assert.Equal(t, "Question", v["link_flair_text"])
	// url aliases permalink.
	assert.Equal(t, v["permalink"], v["url"])

	// utc_offset shifts both clocks by two hours.
	assert.Equal(t, "2024-03-01T14:00:00", v["created_iso"])
	assert.Equal(t, "2024-03-02T20:30:00", v["time_iso"])
	assert.Equal(t, "2024-03-01", v["created_custom"])
	assert.Equal(t, "2024-03-02", v["time_custom"])
}

func TestPostContext_Values_NoCustomFormat(t *testing.T) {
	ctx := &PostContext{CreatedUTC: time.Unix(1700000000, 0)}
	v := ctx.Values()
	assert.Empty(t, v["time_custom"])
	assert.Empty(t, v["created_custom"])
	assert.Equal(t, "1700000000", v["created_unix"])
}

func TestBanValues(t *testing.T) {
	v := BanValues(0)
	assert.Equal(t, "permanently banned", v["ban_duration"])
	assert.Equal(t, "permanent", v["ban_duration_number"])

	v = BanValues(1)
	assert.Equal(t, "banned for 1 day", v["ban_duration"])

	v = BanValues(7)
	assert.Equal(t, "banned for 7 days", v["ban_duration"])
	assert.Equal(t, "7", v["ban_duration_number"])
}

func TestMerge(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	out := Merge(base, map[string]string{"b": "3", "c": "4"})

	require.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, out)
	// Base is untouched.
	assert.Equal(t, "2", base["b"])
}
