package metadata

import (
	"testing"
	"time"

	"github.com/rajmodi8905/adaptive-sink/internal/classify"
	"github.com/rajmodi8905/adaptive-sink/internal/record"
	"github.com/rajmodi8905/adaptive-sink/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	decisions := map[string]classify.Decision{
		"username": {
			Field:        "username",
			Backend:      classify.BackendBoth,
			CanonicalType: record.KindStr,
			IsPrimaryKey: true,
			Reason:       "linking field",
		},
	}
	fieldStats := map[string]stats.Snapshot{
		"username": {PresenceCount: 10, TypeCounts: map[string]int64{"str": 10}},
	}
	state := State{TotalRecordsProcessed: 10, LastFlushTime: time.Now().UTC().Truncate(time.Second), Version: 1}

	require.NoError(t, store.Save(decisions, fieldStats, state))

	loadedDecisions, loadedStats, loadedState, err := store.Load()
	require.NoError(t, err)

	require.Contains(t, loadedDecisions, "username")
	assert.Equal(t, classify.BackendBoth, loadedDecisions["username"].Backend)
	assert.True(t, loadedDecisions["username"].IsPrimaryKey)
	assert.Equal(t, int64(10), loadedStats["username"].PresenceCount)
	assert.Equal(t, int64(10), loadedState.TotalRecordsProcessed)
}

func TestLoadOnMissingFilesIsColdStart(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	decisions, fieldStats, state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, decisions)
	assert.Empty(t, fieldStats)
	assert.Equal(t, State{}, state)
}
