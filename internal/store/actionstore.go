package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// PendingJob identifies a submission with outstanding action rows and the
// moderator whose flair assignment produced them.
type PendingJob struct {
	SubmissionID string
	Mod          string
}

// ActionStore is the durable queue of per-submission action rows. Rows are
// append-only on insert and flip completed 0→1 exactly once; all mutating
// operations are idempotent under retry. A single writer lock keeps the
// store simple — throughput is gated by upstream API calls, not storage.
type ActionStore struct {
	mu sync.Mutex
	db *sql.DB
}

// NewActionStore creates an ActionStore backed by db.
func NewActionStore(db *sql.DB) *ActionStore {
	return &ActionStore{db: db}
}

// InsertBatch appends one pending row per action kind for a submission.
func (s *ActionStore) InsertBatch(ctx context.Context, submissionID string, kinds []string, mod, flairGUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	for _, kind := range kinds {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO actions (submission_id, action, completed, mod_name, flair_guid) VALUES (?, ?, 0, ?, ?)",
			submissionID, kind, mod, flairGUID); err != nil {
			return fmt.Errorf("insert action %s for %s: %w", kind, submissionID, err)
		}
	}
	return tx.Commit()
}

// PendingJobs returns the distinct (submission, mod) pairs that still have
// at least one pending row.
func (s *ActionStore) PendingJobs(ctx context.Context) ([]PendingJob, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT submission_id, mod_name FROM actions WHERE completed = 0")
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []PendingJob
	for rows.Next() {
		var j PendingJob
		if err := rows.Scan(&j.SubmissionID, &j.Mod); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// PendingActions returns the kinds still pending for a submission.
func (s *ActionStore) PendingActions(ctx context.Context, submissionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT action FROM actions WHERE submission_id = ? AND completed = 0", submissionID)
	if err != nil {
		return nil, fmt.Errorf("list pending actions for %s: %w", submissionID, err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan pending action: %w", err)
		}
		kinds = append(kinds, kind)
	}
	return kinds, rows.Err()
}

// FlairGUID returns the flair template GUID recorded on a job's rows.
func (s *ActionStore) FlairGUID(ctx context.Context, submissionID string) (string, error) {
	var guid string
	err := s.db.QueryRowContext(ctx,
		"SELECT flair_guid FROM actions WHERE submission_id = ? ORDER BY rowid DESC LIMIT 1",
		submissionID).Scan(&guid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("flair guid for %s: %w", submissionID, err)
	}
	return guid, nil
}

// PendingCount returns the total number of pending rows across all jobs.
func (s *ActionStore) PendingCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM actions WHERE completed = 0").Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return count, nil
}

// MarkCompleted flips a single action row to completed. A no-op when the
// row is already completed or absent.
func (s *ActionStore) MarkCompleted(ctx context.Context, submissionID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE actions SET completed = 1 WHERE submission_id = ? AND action = ?",
		submissionID, kind)
	if err != nil {
		return fmt.Errorf("mark %s completed for %s: %w", kind, submissionID, err)
	}
	return nil
}

// MarkAllCompleted flips every row of a job to completed. Used when a job
// exhausts its retries and is force-completed to unblock gc.
func (s *ActionStore) MarkAllCompleted(ctx context.Context, submissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE actions SET completed = 1 WHERE submission_id = ?", submissionID)
	if err != nil {
		return fmt.Errorf("mark all completed for %s: %w", submissionID, err)
	}
	return nil
}

// IsCompleted reports whether a given action kind has completed for a
// submission. Kinds never enqueued report false.
func (s *ActionStore) IsCompleted(ctx context.Context, submissionID, kind string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM actions WHERE submission_id = ? AND action = ? AND completed = 1",
		submissionID, kind).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check %s completed for %s: %w", kind, submissionID, err)
	}
	return count > 0, nil
}

// JobDone reports whether a submission has no pending rows left. An empty
// job (all rows gc'd or never inserted) also reports true.
func (s *ActionStore) JobDone(ctx context.Context, submissionID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM actions WHERE submission_id = ? AND completed = 0",
		submissionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check job done for %s: %w", submissionID, err)
	}
	return count == 0, nil
}

// GCCompleted deletes the completed rows of a job.
func (s *ActionStore) GCCompleted(ctx context.Context, submissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM actions WHERE submission_id = ? AND completed = 1", submissionID)
	if err != nil {
		return fmt.Errorf("gc completed for %s: %w", submissionID, err)
	}
	return nil
}
