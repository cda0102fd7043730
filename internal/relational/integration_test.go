package relational

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/rajmodi8905/adaptive-sink/internal/classify"
	"github.com/rajmodi8905/adaptive-sink/internal/ident"
	"github.com/rajmodi8905/adaptive-sink/internal/record"
)

// TestClientAgainstRealMySQL exercises Open, EnsureTable, and InsertBatch
// against an actual MySQL server, the way Pieczasz-smf's applier
// integration test exercises its Applier.Connect: a testcontainers-go
// mysql module, skipped under -short.
func TestClientAgainstRealMySQL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	mysqlContainer, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("root"),
		mysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(mysqlContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := mysqlContainer.Host(ctx)
	require.NoError(t, err)
	port, err := mysqlContainer.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	cfg := Config{
		Host:     host,
		Port:     port.Int(),
		User:     "root",
		Password: "testpass",
		Database: "testdb",
	}

	client, err := Open(ctx, cfg)
	require.NoError(t, err, "failed to connect to relational backend")
	t.Cleanup(func() { _ = client.Close() })

	table := ident.NewTable("events")
	decisions := map[string]classify.Decision{
		"username": {Field: "username", Backend: classify.BackendBoth, CanonicalType: record.KindStr, SQLType: "VARCHAR(255)", IsPrimaryKey: true},
		"age":      {Field: "age", Backend: classify.BackendSQL, CanonicalType: record.KindInt, SQLType: "BIGINT"},
	}

	require.NoError(t, client.EnsureTable(ctx, table, decisions))

	rows := []record.Record{
		{"username": record.StrValue("alice"), "age": record.IntValue(30)},
		{"username": record.StrValue("bob"), "age": record.IntValue(25)},
	}
	require.NoError(t, client.InsertBatch(ctx, table, rows, "username"))

	// re-running EnsureTable against the now-existing table must be a
	// no-op that leaves the data intact.
	require.NoError(t, client.EnsureTable(ctx, table, decisions))

	// upserting the same username again (idempotent update) must not error.
	rows[0] = record.Record{"username": record.StrValue("alice"), "age": record.IntValue(31)}
	require.NoError(t, client.InsertBatch(ctx, table, rows[:1], "username"))

	cols, err := client.ListColumns(ctx, table)
	require.NoError(t, err)
	require.Len(t, cols, 2)
}
