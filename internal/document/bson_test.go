package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/rajmodi8905/adaptive-sink/internal/record"
)

func TestToBSONPreservesDateTimeAsNativeTime(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := record.Record{
		"seen_at": record.DateTimeValue("2024-03-01T12:00:00Z", when),
		"age":     record.IntValue(30),
	}
	out := toBSON(r)
	assert.Equal(t, when, out["seen_at"])
	assert.Equal(t, int64(30), out["age"])
}

func TestToBSONConvertsNestedObjectsAndArrays(t *testing.T) {
	r := record.Record{
		"tags": record.ArrayValue([]record.Value{record.StrValue("a"), record.StrValue("b")}),
		"meta": record.ObjectValue(map[string]record.Value{
			"level": record.IntValue(5),
		}),
	}
	out := toBSON(r)

	tags, ok := out["tags"].(bson.A)
	require.True(t, ok)
	assert.Equal(t, bson.A{"a", "b"}, tags)

	meta, ok := out["meta"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, int64(5), meta["level"])
}

func TestBuildURIWithAndWithoutAuth(t *testing.T) {
	noAuth := buildURI(Config{Host: "localhost", Port: 27017, Database: "db"})
	assert.Equal(t, "mongodb://localhost:27017", noAuth)

	withAuth := buildURI(Config{Host: "localhost", Port: 27017, Database: "db", User: "u", Password: "p"})
	assert.Equal(t, "mongodb://u:p@localhost:27017/db", withAuth)
}
