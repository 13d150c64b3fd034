// Package notify delivers out-of-band notifications: operator status
// lines, terminal-failure reports and the per-flair Discord webhook
// embeds communities can opt into.
package notify

import (
	"context"
	"fmt"
	"strings"
)

// Failure describes a job that exhausted its processing retries.
type Failure struct {
	SubmissionID string
	Community    string
	Attempts     int
	Pending      []string // action kinds still outstanding
	Err          error
}

func (f Failure) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action processing failed for https://redd.it/%s in r/%s after %d attempts.",
		f.SubmissionID, f.Community, f.Attempts)
	if len(f.Pending) > 0 {
		fmt.Fprintf(&b, "\nPending actions: %s", strings.Join(f.Pending, ", "))
	}
	if f.Err != nil {
		fmt.Fprintf(&b, "\nLast error: %v", f.Err)
	}
	return b.String()
}

// Notifier is the operator-channel sink.
type Notifier interface {
	Status(ctx context.Context, message string) error
	Failure(ctx context.Context, f Failure) error
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Status(context.Context, string) error   { return nil }
func (Nop) Failure(context.Context, Failure) error { return nil }
