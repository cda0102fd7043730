package classify

import (
	"fmt"
	"testing"
	"time"

	"github.com/rajmodi8905/adaptive-sink/internal/record"
	"github.com/rajmodi8905/adaptive-sink/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenario A from spec.md section 8 ("first batch, mixed shape"), scaled
// up from the spec's two-record illustration to a batch large enough
// that presence_ratio and type_stability can actually clear the 0.70/0.90
// placement thresholds (spec section 4.3) for age/city/score, while
// keeping the same mixed shape and the same expected outcome per field.
func TestScenarioAFirstBatchMixedShape(t *testing.T) {
	a := stats.NewAnalyzer()
	for i := 0; i < 20; i++ {
		rec := record.Record{
			"username":        record.StrValue(fmt.Sprintf("user-%d", i)),
			"sys_ingested_at": record.DateTimeValue("t", time.Now()),
		}
		if i < 18 {
			rec["age"] = record.IntValue(int64(20 + i))
			rec["city"] = record.StrValue("NYC")
			rec["score"] = record.FloatValue(90.0 + float64(i))
		} else {
			rec["metadata_level"] = record.IntValue(5)
		}
		a.Update([]record.Record{rec})
	}

	c := NewClassifier(DefaultThresholds())
	decisions, pk := c.Classify(a.Fields(), a.TotalRecordsSeen())

	assert.Equal(t, BackendBoth, decisions["username"].Backend)
	assert.Equal(t, BackendSQL, decisions["age"].Backend)
	assert.Equal(t, "BIGINT", decisions["age"].SQLType)
	assert.Equal(t, "VARCHAR(255)", decisions["city"].SQLType)
	assert.Equal(t, "DOUBLE", decisions["score"].SQLType)
	assert.Equal(t, BackendBoth, decisions["sys_ingested_at"].Backend)
	assert.Equal(t, "username", pk)
}

// scenario D from spec.md section 8: 60% presence, 100% stability -> DOC.
func TestScenarioDPresenceBelowThreshold(t *testing.T) {
	a := stats.NewAnalyzer()
	for i := 0; i < 200; i++ {
		rec := record.Record{}
		if i < 120 {
			rec["maybe"] = record.IntValue(int64(i))
		}
		a.Update([]record.Record{rec})
	}
	c := NewClassifier(DefaultThresholds())
	decisions, _ := c.Classify(a.Fields(), a.TotalRecordsSeen())
	assert.Equal(t, BackendDoc, decisions["maybe"].Backend)
}

// scenario E from spec.md section 8: nested array always present -> DOC.
func TestScenarioENestedArrayAlwaysDoc(t *testing.T) {
	a := stats.NewAnalyzer()
	for i := 0; i < 50; i++ {
		a.Update([]record.Record{{"tags": record.ArrayValue([]record.Value{record.StrValue("a")})}})
	}
	c := NewClassifier(DefaultThresholds())
	decisions, _ := c.Classify(a.Fields(), a.TotalRecordsSeen())
	assert.Equal(t, BackendDoc, decisions["tags"].Backend)
}

// scenario F from spec.md section 8: tied PK candidates resolve
// lexicographically.
func TestScenarioFPrimaryKeyTieBreak(t *testing.T) {
	a := stats.NewAnalyzer()
	for i := 0; i < 10; i++ {
		a.Update([]record.Record{{
			"user_id":     record.IntValue(int64(i)),
			"account_key": record.IntValue(int64(i)),
		}})
	}
	c := NewClassifier(DefaultThresholds())
	decisions, pk := c.Classify(a.Fields(), a.TotalRecordsSeen())
	require.Contains(t, decisions, "user_id")
	assert.Equal(t, "account_key", pk)
}

func TestNoQualifyingPrimaryKey(t *testing.T) {
	a := stats.NewAnalyzer()
	for i := 0; i < 10; i++ {
		a.Update([]record.Record{{"note": record.StrValue("same value every time")}})
	}
	c := NewClassifier(DefaultThresholds())
	_, pk := c.Classify(a.Fields(), a.TotalRecordsSeen())
	assert.Equal(t, "", pk)
}

func TestTimestampFieldsExcludedFromPrimaryKey(t *testing.T) {
	a := stats.NewAnalyzer()
	for i := 0; i < 10; i++ {
		a.Update([]record.Record{{
			"created_at": record.IntValue(int64(i)),
		}})
	}
	c := NewClassifier(DefaultThresholds())
	_, pk := c.Classify(a.Fields(), a.TotalRecordsSeen())
	assert.Equal(t, "", pk)
}

// sys_ingested_at is a BOTH-backend field that is effectively always
// 100% present and unique; PickFallbackKey must still skip it (spec
// section 4.3's "first available unique non-timestamp field" fallback),
// not hand it back as the document upsert key.
func TestPickFallbackKeySkipsTimestampField(t *testing.T) {
	decisions := map[string]Decision{
		"sys_ingested_at": {Field: "sys_ingested_at", Backend: BackendBoth, IsUnique: true},
		"user_email":      {Field: "user_email", Backend: BackendDoc, IsUnique: true},
	}
	assert.Equal(t, "user_email", PickFallbackKey(decisions))
}

func TestPickFallbackKeyEmptyWhenOnlyTimestampQualifies(t *testing.T) {
	decisions := map[string]Decision{
		"sys_ingested_at": {Field: "sys_ingested_at", Backend: BackendBoth, IsUnique: true},
		"notes":           {Field: "notes", Backend: BackendDoc, IsUnique: false},
	}
	assert.Equal(t, "", PickFallbackKey(decisions))
}

func TestPickFallbackKeyTieBreaksLexicographically(t *testing.T) {
	decisions := map[string]Decision{
		"email":    {Field: "email", Backend: BackendDoc, IsUnique: true},
		"account":  {Field: "account", Backend: BackendDoc, IsUnique: true},
		"metadata": {Field: "metadata", Backend: BackendSQL, IsUnique: true},
	}
	assert.Equal(t, "account", PickFallbackKey(decisions))
}
