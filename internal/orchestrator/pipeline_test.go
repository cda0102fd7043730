package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rajmodi8905/adaptive-sink/internal/classify"
)

func TestDocKeyPrefersRelationalPK(t *testing.T) {
	decisions := map[string]classify.Decision{
		"username": {Field: "username", Backend: classify.BackendBoth, IsUnique: true},
	}
	assert.Equal(t, "username", docKey("username", decisions))
}

func TestDocKeyFallsBackToFirstUniqueDocField(t *testing.T) {
	decisions := map[string]classify.Decision{
		"email": {Field: "email", Backend: classify.BackendDoc, IsUnique: true},
		"notes": {Field: "notes", Backend: classify.BackendDoc, IsUnique: false},
	}
	assert.Equal(t, "email", docKey("", decisions))
}

// sys_ingested_at is BOTH-backend, effectively always 100% present and
// unique; without the timestamp exclusion it would win this fallback over
// user_email, which sorts after it.
func TestDocKeySkipsTimestampPatternedField(t *testing.T) {
	decisions := map[string]classify.Decision{
		"sys_ingested_at": {Field: "sys_ingested_at", Backend: classify.BackendBoth, IsUnique: true},
		"user_email":      {Field: "user_email", Backend: classify.BackendDoc, IsUnique: true},
	}
	assert.Equal(t, "user_email", docKey("", decisions))
}

func TestDocKeyEmptyWhenNoCandidateQualifies(t *testing.T) {
	decisions := map[string]classify.Decision{
		"notes": {Field: "notes", Backend: classify.BackendDoc, IsUnique: false},
	}
	assert.Equal(t, "", docKey("", decisions))
}

func TestConfigPreflightDefaultsTableName(t *testing.T) {
	cfg := Config{
		MetadataDir:          t.TempDir(),
		BufferSize:           50,
		BufferTimeoutSeconds: 30,
	}
	cfg.Relational.Host = "127.0.0.1"
	cfg.Relational.Database = "db"
	cfg.Document.Host = "127.0.0.1"
	cfg.Document.Database = "db"

	require := assert.New(t)
	err := cfg.Preflight()
	require.NoError(err)
	require.Equal("records", cfg.TableName)
}

func TestConfigPreflightRejectsMissingMetadataDir(t *testing.T) {
	cfg := Config{BufferSize: 50, BufferTimeoutSeconds: 30}
	cfg.Relational.Host = "127.0.0.1"
	cfg.Relational.Database = "db"
	cfg.Document.Host = "127.0.0.1"
	cfg.Document.Database = "db"

	assert.Error(t, cfg.Preflight())
}
