package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateAssignsMonotonicIDs(t *testing.T) {
	table := NewTable(2)

	j1, idx1, err := table.Allocate("sleep 1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, j1.ID)

	j2, idx2, err := table.Allocate("sleep 2", true)
	require.NoError(t, err)
	assert.Equal(t, 2, j2.ID)
	assert.NotEqual(t, idx1, idx2)

	_, _, err = table.Allocate("sleep 3", false)
	assert.ErrorIs(t, err, ErrFull)
}

func TestFreeReleasesSlotForReuse(t *testing.T) {
	table := NewTable(1)

	_, idx, err := table.Allocate("a", false)
	require.NoError(t, err)

	table.Free(idx)

	j, _, err := table.Allocate("b", false)
	require.NoError(t, err)
	assert.Equal(t, 2, j.ID, "nextID keeps advancing even after a free")
}

func TestForegroundRunningFindsTheSoleForegroundJob(t *testing.T) {
	table := NewTable(2)

	_, _, err := table.Allocate("bg job", true)
	require.NoError(t, err)
	fg, _, err := table.Allocate("fg job", false)
	require.NoError(t, err)

	got, _, ok := table.ForegroundRunning()
	require.True(t, ok)
	assert.Equal(t, fg.ID, got.ID)
}

func TestAppendPIDAndMarkReaped(t *testing.T) {
	table := NewTable(1)
	_, idx, err := table.Allocate("pipeline", false)
	require.NoError(t, err)

	table.AppendPID(idx, 100)
	table.AppendPID(idx, 200)

	j, _ := table.At(idx)
	assert.Equal(t, []int{100, 200}, j.Pids)
	assert.Len(t, j.Remaining(), 2)

	remaining := table.MarkReaped(idx, 100)
	assert.Equal(t, 1, remaining)

	remaining = table.MarkReaped(idx, 200)
	assert.Equal(t, 0, remaining)
}

func TestTransitionToStoppedIsIdempotent(t *testing.T) {
	table := NewTable(1)
	_, idx, err := table.Allocate("job", false)
	require.NoError(t, err)

	table.TransitionToStopped(idx)
	assert.Equal(t, 1, table.StoppedCount())

	table.TransitionToStopped(idx)
	assert.Equal(t, 1, table.StoppedCount(), "second transition must not double-count")
}

func TestResumeInBackgroundRequiresStopped(t *testing.T) {
	table := NewTable(1)
	_, idx, err := table.Allocate("job", false)
	require.NoError(t, err)

	table.ResumeInBackground(idx)
	j, _ := table.At(idx)
	assert.Equal(t, Running, j.State, "resuming a non-stopped job is a no-op")
	assert.Equal(t, 0, table.BgCount())

	table.TransitionToStopped(idx)
	table.ResumeInBackground(idx)
	j, _ = table.At(idx)
	assert.Equal(t, Running, j.State)
	assert.True(t, j.Background)
	assert.Equal(t, 1, table.BgCount())
	assert.Equal(t, 0, table.StoppedCount())
}

func TestLiveSortedByIDOrdersAscendingAndSkipsFreeSlots(t *testing.T) {
	table := NewTable(3)

	_, idxA, err := table.Allocate("a", false)
	require.NoError(t, err)
	_, idxB, err := table.Allocate("b", false)
	require.NoError(t, err)
	_, _, err = table.Allocate("c", false)
	require.NoError(t, err)

	table.Free(idxB)

	live := table.LiveSortedByID()
	require.Len(t, live, 2)
	assert.Equal(t, "a", live[0].Job.CommandText)
	assert.Equal(t, idxA, live[0].Index)
	assert.Equal(t, "c", live[1].Job.CommandText)
}

func TestLastStoppedJobIDDefaultsToNegativeOne(t *testing.T) {
	table := NewTable(1)
	assert.Equal(t, -1, table.LastStoppedJobID())
}

func TestResumeInBackgroundRecomputesLastStoppedJobID(t *testing.T) {
	table := NewTable(2)

	_, idx1, err := table.Allocate("job 1", false)
	require.NoError(t, err)
	_, idx2, err := table.Allocate("job 2", false)
	require.NoError(t, err)

	table.TransitionToStopped(idx1)
	table.TransitionToStopped(idx2)
	require.Equal(t, 2, table.LastStoppedJobID())

	// Resuming the job lastStoppedJobID currently points at must fall back
	// to another live Stopped job rather than keep pointing at a job that
	// is no longer Stopped (invariant 6, spec §3).
	table.ResumeInBackground(idx2)
	assert.Equal(t, 1, table.LastStoppedJobID())

	j1, _ := table.At(idx1)
	assert.Equal(t, Stopped, j1.State)

	// Resuming the last remaining Stopped job must reset to -1, not leave a
	// dangling reference.
	table.ResumeInBackground(idx1)
	assert.Equal(t, -1, table.LastStoppedJobID())
}

func TestResumeInBackgroundLeavesLastStoppedJobIDUnchangedForOtherJob(t *testing.T) {
	table := NewTable(2)

	_, idx1, err := table.Allocate("job 1", false)
	require.NoError(t, err)
	_, idx2, err := table.Allocate("job 2", false)
	require.NoError(t, err)

	table.TransitionToStopped(idx1)
	table.TransitionToStopped(idx2)
	require.Equal(t, 2, table.LastStoppedJobID())

	// Resuming a job other than the one lastStoppedJobID points at must not
	// disturb it.
	table.ResumeInBackground(idx1)
	assert.Equal(t, 2, table.LastStoppedJobID())
}
