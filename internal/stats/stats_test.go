package stats

import (
	"testing"

	"github.com/rajmodi8905/adaptive-sink/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzerPresenceAndNullCounts(t *testing.T) {
	a := NewAnalyzer()
	a.Update([]record.Record{
		{"age": record.IntValue(30)},
		{"age": record.Null},
		{"age": record.IntValue(40)},
	})

	fs := a.Get("age")
	require.NotNil(t, fs)
	assert.Equal(t, int64(2), fs.PresenceCount)
	assert.Equal(t, int64(1), fs.NullCount)
	assert.Equal(t, int64(3), a.TotalRecordsSeen())
}

func TestAnalyzerTypeStabilitySplitsOnTypeChange(t *testing.T) {
	a := NewAnalyzer()
	a.Update([]record.Record{
		{"age": record.IntValue(1)},
		{"age": record.IntValue(2)},
		{"age": record.StrValue("ten")},
	})
	fs := a.Get("age")
	assert.InDelta(t, 2.0/3.0, fs.TypeStability(), 1e-9)
}

func TestAnalyzerUniqueValuesCap(t *testing.T) {
	a := NewAnalyzer()
	batch := make([]record.Record, 0, 1500)
	for i := 0; i < 1500; i++ {
		batch = append(batch, record.Record{"id": record.IntValue(int64(i))})
	}
	a.Update(batch)
	fs := a.Get("id")
	assert.Equal(t, 1000, fs.UniqueCount())
	assert.InDelta(t, 1000.0/1500.0, fs.UniqueRatio(), 1e-9)
}

func TestAnalyzerIsNestedStickyOnceTrue(t *testing.T) {
	a := NewAnalyzer()
	a.Update([]record.Record{
		{"tags": record.ArrayValue([]record.Value{record.StrValue("a")})},
	})
	assert.True(t, a.Get("tags").IsNested)
}

func TestAnalyzerSampleValuesCappedAtTen(t *testing.T) {
	a := NewAnalyzer()
	batch := make([]record.Record, 0, 20)
	for i := 0; i < 20; i++ {
		batch = append(batch, record.Record{"x": record.IntValue(int64(i))})
	}
	a.Update(batch)
	assert.Len(t, a.Get("x").SampleValues, 10)
}

func TestAnalyzerProbesArrayOfObjectsForStatsOnly(t *testing.T) {
	a := NewAnalyzer()
	a.Update([]record.Record{
		{"events": record.ArrayValue([]record.Value{
			record.ObjectValue(map[string]record.Value{"kind": record.StrValue("click")}),
		})},
	})
	require.NotNil(t, a.Get("events"))
	require.NotNil(t, a.Get("events_kind"))
	assert.Equal(t, int64(1), a.Get("events_kind").PresenceCount)
}

func TestSnapshotRoundTrip(t *testing.T) {
	a := NewAnalyzer()
	a.Update([]record.Record{{"age": record.IntValue(30)}})
	snap := a.Snapshot()

	restored := NewAnalyzer()
	restored.LoadSnapshot(a.TotalRecordsSeen(), snap)
	assert.Equal(t, a.Get("age").PresenceCount, restored.Get("age").PresenceCount)
	assert.Equal(t, a.Get("age").DominantType(), restored.Get("age").DominantType())
}
