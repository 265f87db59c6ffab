package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/journeyforge/pkg/journey"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func result(id, name string, success bool, started time.Time, d time.Duration) *journey.Result {
	res := &journey.Result{
		JourneyID:      id,
		Name:           name,
		Success:        success,
		StartedAt:      started,
		Duration:       d,
		CompletedSteps: 3,
		TotalSteps:     3,
		Errors:         []journey.JourneyError{},
		Screenshots:    []string{},
		Steps:          []journey.StepTiming{{StepID: "a", Action: journey.ActionClick, Duration: d, Attempts: 1, Success: true}},
	}
	if !success {
		res.CompletedSteps = 1
		res.Errors = []journey.JourneyError{{StepID: "b", StepIndex: 1, Kind: journey.KindElementNotInteractable, Message: "no element"}}
	}
	return res
}

func TestStore_RecordListGet(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, result("r1", "login", true, base, 1200*time.Millisecond)))
	require.NoError(t, s.Record(ctx, result("r2", "login", false, base.Add(time.Hour), 800*time.Millisecond)))
	require.NoError(t, s.Record(ctx, result("r3", "checkout", true, base.Add(2*time.Hour), 3*time.Second)))

	all, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"r3", "r2", "r1"}, []string{all[0].ID, all[1].ID, all[2].ID})

	logins, err := s.List(ctx, "login", 1)
	require.NoError(t, err)
	require.Len(t, logins, 1)
	r := logins[0]
	assert.Equal(t, "r2", r.ID)
	assert.False(t, r.Success)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 1, r.CompletedSteps)
	assert.Equal(t, 800*time.Millisecond, r.Duration)
	assert.True(t, base.Add(time.Hour).Equal(r.StartedAt))

	full, err := s.Get(ctx, "r2")
	require.NoError(t, err)
	require.Len(t, full.Errors, 1)
	assert.Equal(t, "b", full.Errors[0].StepID)
	assert.Equal(t, journey.KindElementNotInteractable, full.Errors[0].Kind)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	none, err := s.List(ctx, "nope", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_RecordValidation(t *testing.T) {
	s := openMemory(t)
	assert.Error(t, s.Record(context.Background(), nil))
	assert.Error(t, s.Record(context.Background(), &journey.Result{Name: "x"}))
}

func TestStore_ReplaceSameID(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Record(ctx, result("r1", "login", false, now, time.Second)))
	require.NoError(t, s.Record(ctx, result("r1", "login", true, now, time.Second)))

	runs, err := s.List(ctx, "login", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
}

func TestStore_StatsAndPrune(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	empty, err := s.Stats(ctx, "login")
	require.NoError(t, err)
	assert.Zero(t, empty.Runs)
	assert.True(t, empty.LastRun.IsZero())

	require.NoError(t, s.Record(ctx, result("r1", "login", true, base, time.Second)))
	require.NoError(t, s.Record(ctx, result("r2", "login", false, base.Add(time.Minute), 3*time.Second)))
	require.NoError(t, s.Record(ctx, result("r3", "login", true, base.Add(2*time.Minute), 2*time.Second)))

	st, err := s.Stats(ctx, "login")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Runs)
	assert.Equal(t, 2, st.Passed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 2*time.Second, st.AverageDuration)
	assert.True(t, base.Add(2*time.Minute).Equal(st.LastRun))

	removed, err := s.Prune(ctx, "login", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	runs, err := s.List(ctx, "login", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r3", runs[0].ID)
}

func TestOpen_FileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, result("r1", "login", true, time.Now(), time.Second)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
