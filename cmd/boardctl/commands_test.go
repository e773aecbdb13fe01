package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bulletin/internal/board"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func seedBoard(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "board.db")
	opts := board.DefaultOptions()
	opts.Path = path
	opts.Settings.Capacity = 3
	opts.Settings.Cooldown = 0
	s, err := board.Open(opts)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.ClaimHandle(ctx, "did:plc:alice", "alice", "")
	require.NoError(t, err)
	for _, body := range []string{"first", "second", "third", "fourth"} {
		_, err := s.Post(ctx, "did:plc:alice", body)
		require.NoError(t, err)
	}
	_, err = s.Reply(ctx, "did:plc:alice", 2, "a reply")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatsCommand(t *testing.T) {
	path := seedBoard(t)

	out, err := execute(t, "stats", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "next id:        6")
	assert.Contains(t, out, "active records: 3 / 3")
	assert.Contains(t, out, "file size:")
}

func TestGetCommand(t *testing.T) {
	path := seedBoard(t)

	out, err := execute(t, "get", "1", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "#1 deleted @alice")
	assert.Contains(t, out, "first")

	out, err = execute(t, "get", "5", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "reply to #2")

	_, err = execute(t, "get", "99", "--db", path)
	assert.ErrorIs(t, err, board.ErrNotFound)

	_, err = execute(t, "get", "x", "--db", path)
	assert.Error(t, err)
}

func TestLatestCommand(t *testing.T) {
	path := seedBoard(t)

	out, err := execute(t, "latest", "-n", "2", "--db", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "#4 live"))
	assert.True(t, strings.HasPrefix(lines[2], "#3 live"))
}

func TestVerifyCommand(t *testing.T) {
	path := seedBoard(t)

	out, err := execute(t, "verify", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	t.Run("corrupted counter", func(t *testing.T) {
		db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
		require.NoError(t, err)
		require.NoError(t, db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(board.BucketMeta).Put([]byte("active_total"), make([]byte, 8))
		}))
		require.NoError(t, db.Close())

		out, err := execute(t, "verify", "--db", path)
		assert.ErrorIs(t, err, errVerifyFailed)
		assert.Contains(t, out, "mismatch")
	})
}

func TestBackupCommand(t *testing.T) {
	path := seedBoard(t)
	out := filepath.Join(t.TempDir(), "board.db.zst")

	stdout, err := execute(t, "backup", out, "--db", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "wrote "+out)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()

	restored := filepath.Join(t.TempDir(), "restored.db")
	rf, err := os.Create(restored)
	require.NoError(t, err)
	_, err = dec.WriteTo(rf)
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	s, err := board.Open(board.Options{Path: restored, ReadOnly: true})
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.GetRecord(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "fourth", rec.Body)

	report, err := s.Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, report.OK())
}

func TestMissingDatabase(t *testing.T) {
	_, err := execute(t, "stats", "--db", filepath.Join(t.TempDir(), "nope.db"), "--timeout", "100ms")
	assert.Error(t, err)
}
