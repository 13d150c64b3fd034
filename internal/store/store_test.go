package store_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flairwarden/flairwarden/internal/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))
	return db
}

func TestOpen_InMemory(t *testing.T) {
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, db.Ping())

	var fkEnabled int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled))
	assert.Equal(t, 1, fkEnabled)
}

func TestMigrate(t *testing.T) {
	db := newTestDB(t)

	// Verify tables exist by querying each one.
	for _, table := range []string{"configs", "actions"} {
		var count int64
		err := db.QueryRow("SELECT count(*) FROM " + table).Scan(&count)
		assert.NoError(t, err, "table %q does not exist or is not queryable", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, store.Migrate(db))
}

func TestConfigStore_PutGet(t *testing.T) {
	db := newTestDB(t)
	cs := store.NewConfigStore(db)
	ctx := context.Background()

	_, ok, err := cs.Get(ctx, "askgo")
	require.NoError(t, err)
	assert.False(t, ok)

	empty, err := cs.Empty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, cs.Put(ctx, "askgo", `[{"GeneralConfiguration":{}}]`))

	blob, ok, err := cs.Get(ctx, "askgo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"GeneralConfiguration":{}}]`, blob)

	// Upsert replaces.
	require.NoError(t, cs.Put(ctx, "askgo", `[{"GeneralConfiguration":{"header":"hi"}}]`))
	blob, ok, err = cs.Get(ctx, "askgo")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, blob, "hi")

	empty, err = cs.Empty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)

	names, err := cs.Communities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"askgo"}, names)

	require.NoError(t, cs.Delete(ctx, "askgo"))
	_, ok, err = cs.Get(ctx, "askgo")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActionStore_JobLifecycle(t *testing.T) {
	db := newTestDB(t)
	as := store.NewActionStore(db)
	ctx := context.Background()

	require.NoError(t, as.InsertBatch(ctx, "p1", []string{"remove", "modlogReason", "comment"}, "m1", "g1"))

	jobs, err := as.PendingJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, store.PendingJob{SubmissionID: "p1", Mod: "m1"}, jobs[0])

	pending, err := as.PendingActions(ctx, "p1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"remove", "modlogReason", "comment"}, pending)

	done, err := as.JobDone(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, as.MarkCompleted(ctx, "p1", "remove"))

	ok, err := as.IsCompleted(ctx, "p1", "remove")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = as.IsCompleted(ctx, "p1", "comment")
	require.NoError(t, err)
	assert.False(t, ok)

	// Completing the rest finishes the job.
	require.NoError(t, as.MarkCompleted(ctx, "p1", "modlogReason"))
	require.NoError(t, as.MarkCompleted(ctx, "p1", "comment"))

	done, err = as.JobDone(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, done)

	require.NoError(t, as.GCCompleted(ctx, "p1"))
	count, err := as.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	// A gc'd job still reports done (no pending rows).
	done, err = as.JobDone(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestActionStore_MarkCompletedIdempotent(t *testing.T) {
	db := newTestDB(t)
	as := store.NewActionStore(db)
	ctx := context.Background()

	require.NoError(t, as.InsertBatch(ctx, "p1", []string{"lock"}, "m1", "g1"))

	require.NoError(t, as.MarkCompleted(ctx, "p1", "lock"))
	require.NoError(t, as.MarkCompleted(ctx, "p1", "lock"))
	// Marking a kind that was never enqueued is also a no-op.
	require.NoError(t, as.MarkCompleted(ctx, "p1", "spoiler"))

	ok, err := as.IsCompleted(ctx, "p1", "spoiler")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActionStore_MarkAllCompleted(t *testing.T) {
	db := newTestDB(t)
	as := store.NewActionStore(db)
	ctx := context.Background()

	require.NoError(t, as.InsertBatch(ctx, "p1", []string{"remove", "ban", "usernote"}, "m1", "g1"))
	require.NoError(t, as.InsertBatch(ctx, "p2", []string{"approve"}, "m2", "g2"))

	require.NoError(t, as.MarkAllCompleted(ctx, "p1"))

	done, err := as.JobDone(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, done)

	// Other jobs are untouched.
	done, err = as.JobDone(ctx, "p2")
	require.NoError(t, err)
	assert.False(t, done)
}
