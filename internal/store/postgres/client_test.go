package postgres

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "  postgres://x "}))

	got := DSN(ClientConfig{Host: "db", Database: "marketd", User: "ledger", Password: "p@ss/word"})
	assert.Equal(t, "postgres://ledger:p%40ss%2Fword@db:5432/marketd?sslmode=disable", got)

	got = DSN(ClientConfig{Host: "db", Port: 6432, Database: "marketd", SSLMode: "require"})
	assert.Equal(t, "postgres://db:6432/marketd?sslmode=require", got)
}

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_index.sql": {Data: []byte("CREATE INDEX i ON markets (created_at);")},
		"migrations/0001_init.sql":  {Data: []byte("CREATE TABLE markets ();")},
		"migrations/README.md":      {Data: []byte("notes")},
		"migrations/0003_more.sql":  {Data: []byte("SELECT 1;")},
	}

	all, err := pendingMigrations(fsys, "migrations", nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "0001_init.sql", all[0].name)
	assert.Equal(t, "CREATE TABLE markets ();", all[0].sql)
	assert.Equal(t, "0003_more.sql", all[2].name)

	rest, err := pendingMigrations(fsys, "migrations", map[string]bool{"0001_init.sql": true, "0003_more.sql": true})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "0002_index.sql", rest[0].name)

	_, err = pendingMigrations(fsys, "missing", nil)
	assert.ErrorContains(t, err, "read migrations dir")
}

func TestEmbeddedLedgerSchema(t *testing.T) {
	ms, err := pendingMigrations(migrationsFS, "migrations", nil)
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	for _, table := range []string{"markets", "accounts", "token_accounts", "market_events"} {
		assert.Contains(t, ms[0].sql, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}
