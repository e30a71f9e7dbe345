package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njoerd114/pressrelay/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-history.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRun(started time.Time) *Run {
	return &Run{
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Status:     RunSucceeded,
		Remote:     4,
		Skipped:    1,
		Changes: []model.ChangeRecord{
			{Path: "about", ID: 1, Action: model.ActionCreated},
			{Path: "about/team", ID: 2, Action: model.ActionCreated},
			{Path: "contact", ID: 3, Action: model.ActionEdited},
		},
	}
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	last, err := s.LastRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.SaveRun(context.Background(), sampleRun(time.Now())))
	require.NoError(t, s1.Close())

	// Re-opening the same file must not fail or wipe data.
	s2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	runs, err := s2.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSaveRun_AssignsIDAndCounts(t *testing.T) {
	s := openTestStore(t)
	run := sampleRun(time.Now())

	require.NoError(t, s.SaveRun(context.Background(), run))

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.Created)
	assert.Equal(t, 1, run.Edited)
}

func TestGetRun_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2025, 6, 1, 8, 30, 0, 123000000, time.UTC)
	run := sampleRun(started)
	run.DryRun = true
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, 1500*time.Millisecond, got.Duration())
	assert.True(t, got.DryRun)
	assert.Equal(t, RunSucceeded, got.Status)
	assert.Equal(t, 4, got.Remote)
	assert.Equal(t, 1, got.Skipped)
	assert.Equal(t, run.Changes, got.Changes, "changes keep processing order")
}

func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetRun(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveRun_DuplicateIDFails(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := sampleRun(time.Now())
	require.NoError(t, s.SaveRun(ctx, run))

	dup := sampleRun(time.Now())
	dup.ID = run.ID
	assert.Error(t, s.SaveRun(ctx, dup))
}

func TestSaveRun_FailedRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	run := &Run{
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Status:     RunFailed,
		Error:      `page "a/b": unresolved parent "a"`,
	}
	require.NoError(t, s.SaveRun(ctx, run))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	assert.Equal(t, run.Error, got.Error)
	assert.Empty(t, got.Changes)
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	var ids []string
	for i := range 3 {
		// Sub-second offsets exercise the fixed-width timestamp ordering.
		run := sampleRun(base.Add(time.Duration(i) * 500 * time.Millisecond))
		require.NoError(t, s.SaveRun(ctx, run))
		ids = append(ids, run.ID)
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
	assert.Nil(t, runs[0].Changes)

	last, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids[2], last.ID)
}

func TestPageHistory_ExcludesDryRuns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, sampleRun(base)))
	dry := sampleRun(base.Add(time.Minute))
	dry.DryRun = true
	require.NoError(t, s.SaveRun(ctx, dry))
	edit := &Run{
		StartedAt: base.Add(time.Hour),
		Status:    RunSucceeded,
		Changes:   []model.ChangeRecord{{Path: "about", ID: 1, Action: model.ActionEdited}},
	}
	require.NoError(t, s.SaveRun(ctx, edit))

	got, err := s.PageHistory(ctx, "/about/")
	require.NoError(t, err)
	assert.Equal(t, []model.ChangeRecord{
		{Path: "about", ID: 1, Action: model.ActionEdited},
		{Path: "about", ID: 1, Action: model.ActionCreated},
	}, got)
}

func TestPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 5 {
		require.NoError(t, s.SaveRun(ctx, sampleRun(base.Add(time.Duration(i)*time.Hour))))
	}

	n, err := s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
