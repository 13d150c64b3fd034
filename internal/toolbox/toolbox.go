// Package toolbox reads and appends third-party "usernotes" kept on a
// community wiki page as a compressed blob. The wire format is shared
// with the moderator toolbox browser extension and must round-trip
// bit-exactly on the fields this engine touches.
package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flairwarden/flairwarden/reddit"
)

const notesPage = "usernotes"

// NotePrefix marks notes written by this engine.
const NotePrefix = "[FH] "

// banTagPrefix marks escalating-ban bookkeeping notes.
const banTagPrefix = NotePrefix + "FH-Ban-"

// Store appends and reads usernotes. The underlying wiki page is a
// read-modify-write blob, so updates are serialized per community.
type Store struct {
	wiki reddit.Wiki

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time // test hook
}

// NewStore creates a Store reading and writing through wiki.
func NewStore(wiki reddit.Wiki) *Store {
	return &Store{
		wiki:  wiki,
		locks: make(map[string]*sync.Mutex),
		now:   time.Now,
	}
}

func (s *Store) lock(community string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[community]
	if !ok {
		l = &sync.Mutex{}
		s.locks[community] = l
	}
	return l
}

// Append adds one note for user. text gets the engine prefix; link is the
// submission permalink, stored in toolbox shorthand. The moderator and
// category are interned into the document's constants tables on first
// use.
func (s *Store) Append(ctx context.Context, community, user, text, link, mod, category string) error {
	l := s.lock(community)
	l.Lock()
	defer l.Unlock()

	content, _, err := s.wiki.WikiPage(ctx, community, notesPage)
	if err != nil {
		return fmt.Errorf("load usernotes for r/%s: %w", community, err)
	}

	// Keep unrecognized top-level fields (ver, ...) intact across the
	// rewrite.
	doc := make(map[string]json.RawMessage)
	if strings.TrimSpace(content) != "" {
		if err := json.Unmarshal([]byte(content), &doc); err != nil {
			return fmt.Errorf("parse usernotes for r/%s: %w", community, err)
		}
	}

	var consts Constants
	if raw, ok := doc["constants"]; ok {
		if err := json.Unmarshal(raw, &consts); err != nil {
			return fmt.Errorf("parse usernotes constants for r/%s: %w", community, err)
		}
	}
	var blob string
	if raw, ok := doc["blob"]; ok {
		if err := json.Unmarshal(raw, &blob); err != nil {
			return fmt.Errorf("parse usernotes blob for r/%s: %w", community, err)
		}
	}
	notes, err := DecompressBlob(blob)
	if err != nil {
		return fmt.Errorf("usernotes for r/%s: %w", community, err)
	}

	modIdx := intern(&consts.Users, mod)
	warnIdx := 0
	if category != "" {
		warnIdx = intern(&consts.Warnings, category)
	}

	un := notes[user]
	if un == nil {
		un = &UserNotes{}
		notes[user] = un
	}
	un.Notes = append(un.Notes, Note{
		Text:    NotePrefix + text,
		Time:    s.now().Unix(),
		Mod:     modIdx,
		Link:    "l," + submissionIDFromLink(link),
		Warning: warnIdx,
	})

	newBlob, err := CompressBlob(notes)
	if err != nil {
		return fmt.Errorf("usernotes for r/%s: %w", community, err)
	}
	constsRaw, err := json.Marshal(consts)
	if err != nil {
		return fmt.Errorf("encode usernotes constants: %w", err)
	}
	blobRaw, err := json.Marshal(newBlob)
	if err != nil {
		return fmt.Errorf("encode usernotes blob: %w", err)
	}
	doc["constants"] = constsRaw
	doc["blob"] = blobRaw

	out, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode usernotes for r/%s: %w", community, err)
	}
	reason := fmt.Sprintf("note added on user %s via flairwarden", user)
	if err := s.wiki.EditWikiPage(ctx, community, notesPage, string(out), reason); err != nil {
		return fmt.Errorf("save usernotes for r/%s: %w", community, err)
	}
	return nil
}

// BanHistory returns the escalating-ban tags recorded for user, in note
// order. Each tag is the value after "FH-Ban-": a stringified day count
// or "permanent". A missing page or missing user yields an empty list.
func (s *Store) BanHistory(ctx context.Context, community, user string) ([]string, error) {
	l := s.lock(community)
	l.Lock()
	defer l.Unlock()

	content, _, err := s.wiki.WikiPage(ctx, community, notesPage)
	if err != nil {
		if reddit.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load usernotes for r/%s: %w", community, err)
	}

	var doc struct {
		Blob string `json:"blob"`
	}
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("parse usernotes for r/%s: %w", community, err)
	}
	notes, err := DecompressBlob(doc.Blob)
	if err != nil {
		return nil, fmt.Errorf("usernotes for r/%s: %w", community, err)
	}
	un := notes[user]
	if un == nil {
		return nil, nil
	}

	var tags []string
	for _, n := range un.Notes {
		if strings.HasPrefix(n.Text, banTagPrefix) {
			tags = append(tags, strings.TrimPrefix(n.Text, banTagPrefix))
		}
	}
	return tags, nil
}

// BanTag formats the bookkeeping note text for an applied escalating
// ban. days == 0 means permanent.
func BanTag(days int) string {
	if days == 0 {
		return "FH-Ban-permanent"
	}
	return fmt.Sprintf("FH-Ban-%d", days)
}

// NextBanDuration selects the next escalation step given a user's prior
// ban tags: the first step strictly greater than the highest prior
// duration, the last step when the history already tops the list, 0
// (permanent) once a permanent ban is on record, and the first step for
// a clean history.
func NextBanDuration(history []string, steps []int) int {
	if len(steps) == 0 {
		return 0
	}
	if len(history) == 0 {
		return steps[0]
	}

	highest := 0
	permanent := false
	for _, tag := range history {
		if tag == "permanent" {
			permanent = true
			continue
		}
		var n int
		if _, err := fmt.Sscanf(tag, "%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	if permanent {
		return 0
	}

	for _, d := range steps {
		if d > highest {
			return d
		}
	}
	return steps[len(steps)-1]
}

// intern returns the index of v in list, appending it when absent.
func intern(list *[]string, v string) int {
	for i, s := range *list {
		if s == v {
			return i
		}
	}
	*list = append(*list, v)
	return len(*list) - 1
}

// submissionIDFromLink extracts the submission id from a permalink of
// the form /r/<sub>/comments/<id>/<slug>/.
func submissionIDFromLink(link string) string {
	parts := strings.Split(link, "/")
	for i, p := range parts {
		if p == "comments" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	if len(parts) >= 3 {
		return parts[len(parts)-3]
	}
	return link
}
