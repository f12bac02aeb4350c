package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meetsmatch/matchengine/internal/matching"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "sqlite3")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "matchd.db"))
	t.Setenv("LOG_OUTPUT", "discard")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("ASYNQ_REDIS_URL", "")
}

func TestMigrateThenSwipe(t *testing.T) {
	useSQLite(t)

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema is up to date (sqlite3)")

	out, err = run(t, "swipe", "alice", "bob", "right")
	require.NoError(t, err)
	var first matching.SwipeOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	assert.False(t, first.Matched)

	out, err = run(t, "swipe", "bob", "alice", "super-like")
	require.NoError(t, err)
	var second matching.SwipeOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &second))
	assert.True(t, second.Matched)
	assert.True(t, second.NewMatch)
	assert.NotEmpty(t, second.ChannelID)
}

func TestSwipe_Rejections(t *testing.T) {
	useSQLite(t)

	_, err := run(t, "swipe", "alice", "bob", "maybe")
	assert.Error(t, err)

	_, err = run(t, "swipe", "alice", "bob")
	assert.Error(t, err)

	_, err = run(t, "migrate")
	require.NoError(t, err)
	_, err = run(t, "swipe", "alice", "alice", "like")
	assert.Error(t, err)
}

func TestUnsupportedStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	t.Setenv("LOG_OUTPUT", "discard")

	_, err := run(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported STORE_DRIVER")
}
