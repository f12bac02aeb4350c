package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, Config{
		Driver:     DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "matchengine.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected string
	}{
		{
			name: "postgres fields",
			config: Config{
				Driver:   DriverPostgres,
				Host:     "localhost",
				Port:     "5432",
				User:     "testuser",
				Password: "testpass",
				DBName:   "testdb",
				SSLMode:  "require",
			},
			expected: "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=require",
		},
		{
			name: "postgres url wins",
			config: Config{
				Driver: DriverPostgres,
				URL:    "postgres://u:p@db:5432/matches?sslmode=disable",
				Host:   "ignored",
			},
			expected: "postgres://u:p@db:5432/matches?sslmode=disable",
		},
		{
			name:     "sqlite path",
			config:   Config{Driver: DriverSQLite, SQLitePath: "/var/lib/matchd.db"},
			expected: "file:/var/lib/matchd.db?" + sqliteParams,
		},
		{
			name:     "sqlite path with options",
			config:   Config{Driver: DriverSQLite, SQLitePath: "/var/lib/matchd.db?cache=shared"},
			expected: "file:/var/lib/matchd.db?cache=shared&" + sqliteParams,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

func TestOpen_SQLiteSettingsSurviveNewConnections(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Drop idle connections so each query dials a fresh one.
	db.SetMaxIdleConns(0)

	for i := 0; i < 2; i++ {
		var foreignKeys, busyTimeout int
		var journalMode string
		require.NoError(t, db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&foreignKeys))
		require.NoError(t, db.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&busyTimeout))
		require.NoError(t, db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&journalMode))
		assert.Equal(t, 1, foreignKeys)
		assert.Equal(t, 5000, busyTimeout)
		assert.Equal(t, "wal", journalMode)
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO channels (id, match_id, match_pair_key, created_at) VALUES ('c', 'm', 'no-such-match', CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "channel without a match violates the foreign key")
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: "mysql"})
	assert.Error(t, err)
	assert.Nil(t, db)
}

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	lite := &DB{driver: DriverSQLite}
	query := "SELECT a FROM t WHERE b = ? AND c = ? LIMIT ?"

	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2 LIMIT $3", pg.Rebind(query))
	assert.Equal(t, query, lite.Rebind(query))
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Migrate(context.Background()))
	require.NoError(t, db.Health(context.Background()))
	assert.Equal(t, DriverSQLite, db.Driver())
}

func TestWithTransaction(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	insert := func(tx *sql.Tx, actor string) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO swipe_decisions (actor_id, target_id, disposition, decided_at) VALUES (?, 'x', 'like', CURRENT_TIMESTAMP)`,
			actor)
		return err
	}
	count := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM swipe_decisions`).Scan(&n))
		return n
	}

	require.NoError(t, db.WithTransaction(ctx, func(tx *sql.Tx) error {
		return insert(tx, "committed")
	}))
	assert.Equal(t, 1, count())

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(tx *sql.Tx) error {
		require.NoError(t, insert(tx, "rolled-back"))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count())

	assert.Panics(t, func() {
		_ = db.WithTransaction(ctx, func(tx *sql.Tx) error {
			require.NoError(t, insert(tx, "panicked"))
			panic("boom")
		})
	})
	assert.Equal(t, 1, count())
}
