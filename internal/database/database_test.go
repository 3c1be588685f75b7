package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDialect(t *testing.T) {
	cases := map[string]Dialect{
		"postgres":   Postgres,
		"PostgreSQL": Postgres,
		"sqlite":     SQLite,
		"sqlite3":    SQLite,
		"":           SQLite,
	}
	for in, want := range cases {
		got, err := ParseDialect(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDialect("mysql")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	q := `SELECT id FROM t WHERE a = ? AND b = '?' AND c = ?`
	assert.Equal(t, `SELECT id FROM t WHERE a = $1 AND b = '?' AND c = $2`, Postgres.Rebind(q))
	assert.Equal(t, q, SQLite.Rebind(q))
}

func TestNewDB_SQLiteMemory(t *testing.T) {
	db, err := NewDB(context.Background(), Options{Driver: "sqlite", DSN: ":memory:"}, zerolog.Nop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(context.Background(), db))
	// Idempotent.
	require.NoError(t, Migrate(context.Background(), db))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM prompt_chains`).Scan(&n))
	assert.Zero(t, n)
}

func TestOpenMemory_ActiveUniquePerScope(t *testing.T) {
	ctx := context.Background()
	db, err := OpenMemory(ctx)
	require.NoError(t, err)
	defer db.Close()

	insert := `INSERT INTO prompt_chains (id, name, scope, is_active, nodes, created_at, updated_at)
VALUES (?, 'c', 'global', ?, '[]', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	_, err = db.ExecContext(ctx, insert, "a", true)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "b", false)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "c", true)
	assert.Error(t, err, "second active chain in the same scope must be rejected")
}

func TestFindEnvFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("DATABASE_URL=postgres://x\n"), 0o600))

	got, err := findEnvFile(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".env"), got)
}

func TestLoadDatabaseURL_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", " postgres://vessel@localhost/vessel ")
	got, err := loadDatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://vessel@localhost/vessel", got)
}

func TestLoadDatabaseURL_FromDotEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	body := "# local settings\nLOG_LEVEL=debug\nDATABASE_URL=\"postgres://vessel@localhost/vessel\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte(body), 0o600))
	t.Chdir(nested)

	got, err := loadDatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://vessel@localhost/vessel", got)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("OTHER=1\n"), 0o600))
	_, err = loadDatabaseURL()
	assert.Error(t, err)
}
