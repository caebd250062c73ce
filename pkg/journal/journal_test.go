package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilltypes "github.com/autoskill-ai/autoskill/pkg/types/skill"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func record(t *testing.T, j *Journal, name string, success bool, duration time.Duration) {
	t.Helper()
	result := &skilltypes.ExecutionResult{
		ID:        uuid.New().String(),
		SkillName: name,
		Success:   success,
		Duration:  duration,
		Isolation: "none",
	}
	if !success {
		result.Error = &skilltypes.ExecutionError{
			Kind:    skilltypes.ErrExecution,
			Message: "it broke",
		}
	}
	require.NoError(t, j.Record(context.Background(), 1, result))
}

func TestStatsAggregation(t *testing.T) {
	j := openTestJournal(t)

	record(t, j, "worker", true, 100*time.Millisecond)
	record(t, j, "worker", true, 200*time.Millisecond)
	record(t, j, "worker", false, 300*time.Millisecond)
	record(t, j, "bystander", true, time.Millisecond)

	stats, err := j.Stats(context.Background(), "worker")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRuns)
	assert.Equal(t, 2, stats.Successes)
	assert.Equal(t, 1, stats.Failures)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 200.0, stats.AvgDurationMS, 1e-9)
	assert.False(t, stats.LastUsed.IsZero())
}

func TestStatsUnknownSkill(t *testing.T) {
	j := openTestJournal(t)

	stats, err := j.Stats(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRuns)
	assert.Zero(t, stats.SuccessRate)
	assert.True(t, stats.LastUsed.IsZero())
}

func TestHistoryNewestFirst(t *testing.T) {
	j := openTestJournal(t)

	record(t, j, "worker", true, time.Millisecond)
	record(t, j, "worker", false, time.Millisecond)

	entries, err := j.History(context.Background(), "worker", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Success)
	assert.Equal(t, string(skilltypes.ErrExecution), entries[0].ErrorKind)
	assert.Equal(t, "it broke", entries[0].ErrorMessage)
	assert.True(t, entries[1].Success)
}

func TestHistoryLimit(t *testing.T) {
	j := openTestJournal(t)

	for i := 0; i < 5; i++ {
		record(t, j, "busy", true, time.Millisecond)
	}
	entries, err := j.History(context.Background(), "busy", 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestPrune(t *testing.T) {
	j := openTestJournal(t)

	record(t, j, "doomed", true, time.Millisecond)
	record(t, j, "survivor", true, time.Millisecond)

	require.NoError(t, j.Prune(context.Background(), "doomed"))

	stats, err := j.Stats(context.Background(), "doomed")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalRuns)

	stats, err = j.Stats(context.Background(), "survivor")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	record(t, j, "durable", true, time.Millisecond)
	require.NoError(t, j.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Stats(context.Background(), "durable")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRuns)
}
