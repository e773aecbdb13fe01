package board

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func TestLatest(t *testing.T) {
	b := setupTestStore(t, func(o *Options) {
		o.Settings.MaxLatest = 5
	})
	ctx := context.Background()
	b.withProfiles(t, "alice", "bob")

	p1 := b.post(t, "alice", "p1")
	b.reply(t, "bob", p1, "r")
	p2 := b.post(t, "bob", "p2")
	p3 := b.post(t, "alice", "p3")
	require.NoError(t, b.DeleteRecord(ctx, "bob", p2))

	t.Run("over the cap", func(t *testing.T) {
		_, err := b.Latest(ctx, 6)
		assert.ErrorIs(t, err, ErrTooMany)
	})

	t.Run("live top-level only, newest first", func(t *testing.T) {
		latest, err := b.Latest(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, []uint64{p3, p1}, ids(latest))
	})

	t.Run("truncated", func(t *testing.T) {
		latest, err := b.Latest(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint64{p3}, ids(latest))
	})

	t.Run("zero", func(t *testing.T) {
		latest, err := b.Latest(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, latest)
	})
}

func TestLatest_EmptyBoard(t *testing.T) {
	b := setupTestStore(t, nil)

	latest, err := b.Latest(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, latest)
	assert.Empty(t, latest)
}

func TestPaginate(t *testing.T) {
	b := setupTestStore(t, func(o *Options) {
		o.Settings.MaxPageSize = 4
		o.Settings.MaxLatest = 100
	})
	ctx := context.Background()
	b.withProfiles(t, "alice", "bob")

	var posted []uint64
	for i := 0; i < 10; i++ {
		id := b.post(t, "alice", "post")
		posted = append(posted, id)
		if i%3 == 0 {
			b.reply(t, "bob", id, "reply")
		}
	}
	require.NoError(t, b.DeleteRecord(ctx, "alice", posted[4]))

	t.Run("size validation", func(t *testing.T) {
		_, err := b.Paginate(ctx, 0, 0)
		assert.ErrorIs(t, err, ErrPageSizeZero)

		_, err = b.Paginate(ctx, 0, -1)
		assert.ErrorIs(t, err, ErrPageSizeZero)

		_, err = b.Paginate(ctx, 0, 5)
		assert.ErrorIs(t, err, ErrPageSizeTooLarge)

		_, err = b.Paginate(ctx, -1, 2)
		assert.ErrorIs(t, err, ErrInvalidPage)
	})

	t.Run("pages concatenate to latest", func(t *testing.T) {
		latest, err := b.Latest(ctx, 100)
		require.NoError(t, err)
		require.Len(t, latest, 9)

		for size := 1; size <= 4; size++ {
			var all []uint64
			for page := 0; ; page++ {
				p, err := b.Paginate(ctx, page, size)
				require.NoError(t, err)
				all = append(all, ids(p.Records)...)
				if !p.HasMore {
					break
				}
			}
			assert.Equal(t, ids(latest), all, "page size %d", size)
		}
	})

	t.Run("last partial page", func(t *testing.T) {
		p, err := b.Paginate(ctx, 2, 4)
		require.NoError(t, err)
		assert.Len(t, p.Records, 1)
		assert.False(t, p.HasMore)
		assert.Equal(t, posted[0], p.Records[0].ID)
	})

	t.Run("past the end is empty", func(t *testing.T) {
		p, err := b.Paginate(ctx, 50, 4)
		require.NoError(t, err)
		assert.Empty(t, p.Records)
		assert.False(t, p.HasMore)
		assert.Equal(t, 50, p.Page)
		assert.Equal(t, 4, p.Size)
	})

	t.Run("huge page numbers are empty", func(t *testing.T) {
		tests := []struct {
			name string
			page int
			size int
		}{
			{"max int", math.MaxInt, 1},
			{"max int size 4", math.MaxInt, 4},
			{"product wraps to zero", 1 << 62, 4},
			{"product wraps negative", 1<<62 + 1, 3},
			{"just past the overflow bound", math.MaxInt/4 + 1, 4},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p, err := b.Paginate(ctx, tt.page, tt.size)
				require.NoError(t, err)
				assert.Empty(t, p.Records)
				assert.False(t, p.HasMore)
				assert.Equal(t, tt.page, p.Page)
			})
		}
	})
}

func TestLiveTopIndex(t *testing.T) {
	b := setupTestStore(t, withCapacity(4))
	ctx := context.Background()
	b.withProfiles(t, "alice", "bob")

	p1 := b.post(t, "alice", "p1")
	b.reply(t, "bob", p1, "r1")
	p2 := b.post(t, "bob", "p2")
	b.reply(t, "alice", p2, "r2")
	p3 := b.post(t, "alice", "p3")
	require.NoError(t, b.DeleteRecord(ctx, "alice", p3))
	p4 := b.post(t, "bob", "p4")

	indexed := func() []uint64 {
		var out []uint64
		require.NoError(t, b.DB().View(func(tx *bolt.Tx) error {
			return tx.Bucket(BucketLiveTop).ForEach(func(k, _ []byte) error {
				out = append(out, u64(k))
				return nil
			})
		}))
		return out
	}

	// p3 evicted p1. Replies stay out of the index and a delete removes its
	// entry.
	assert.Equal(t, []uint64{p2, p4}, indexed())

	latest, err := b.Latest(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{p4, p2}, ids(latest))
	b.requireConsistent(t)

	t.Run("verify reports a stale entry", func(t *testing.T) {
		require.NoError(t, b.DB().Update(func(tx *bolt.Tx) error {
			return tx.Bucket(BucketLiveTop).Put(idKey(p3), []byte{})
		}))

		report, err := b.Verify(ctx)
		require.NoError(t, err)
		assert.False(t, report.OK())
		require.Len(t, report.Mismatches, 1)
		assert.Equal(t, "live_top_index", report.Mismatches[0].Counter)
		assert.Equal(t, uint64(1), report.Mismatches[0].Stored)
		assert.Equal(t, uint64(0), report.Mismatches[0].Actual)
	})
}

func TestRepliesOf(t *testing.T) {
	b := setupTestStore(t, nil)
	ctx := context.Background()
	b.withProfiles(t, "alice", "bob", "carol")

	parent := b.post(t, "alice", "parent")
	r1 := b.reply(t, "bob", parent, "r1")
	other := b.post(t, "carol", "other")
	b.reply(t, "bob", other, "elsewhere")
	r2 := b.reply(t, "carol", parent, "r2")
	r3 := b.reply(t, "alice", parent, "r3")
	nested := b.reply(t, "alice", r1, "nested")
	require.NoError(t, b.DeleteRecord(ctx, "carol", r2))

	t.Run("unknown id", func(t *testing.T) {
		_, err := b.RepliesOf(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("direct replies in insertion order", func(t *testing.T) {
		replies, err := b.RepliesOf(ctx, parent)
		require.NoError(t, err)
		assert.Equal(t, []uint64{r1, r3}, ids(replies))
	})

	t.Run("including tombstones", func(t *testing.T) {
		replies, err := b.RepliesOf(ctx, parent, IncludeDeleted())
		require.NoError(t, err)
		assert.Equal(t, []uint64{r1, r2, r3}, ids(replies))
	})

	t.Run("replies of a reply", func(t *testing.T) {
		replies, err := b.RepliesOf(ctx, r1)
		require.NoError(t, err)
		assert.Equal(t, []uint64{nested}, ids(replies))
	})

	t.Run("no replies", func(t *testing.T) {
		replies, err := b.RepliesOf(ctx, r3)
		require.NoError(t, err)
		assert.Empty(t, replies)
	})
}

func TestByAuthor(t *testing.T) {
	b := setupTestStore(t, nil)
	ctx := context.Background()
	b.withProfiles(t, "alice", "bob")

	a1 := b.post(t, "alice", "a1")
	b.post(t, "bob", "b1")
	a2 := b.reply(t, "alice", a1, "a2")
	a3 := b.post(t, "alice", "a3")
	require.NoError(t, b.DeleteRecord(ctx, "alice", a1))

	records, err := b.ByAuthor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []uint64{a2, a3}, ids(records))

	records, err = b.ByAuthor(ctx, "alice", IncludeDeleted())
	require.NoError(t, err)
	assert.Equal(t, []uint64{a1, a2, a3}, ids(records))

	records, err = b.ByAuthor(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = b.ByAuthor(ctx, NullIdentity)
	require.NoError(t, err)
	assert.Empty(t, records, "the sentinel is not indexed")
}

func TestByBucket(t *testing.T) {
	b := setupTestStore(t, func(o *Options) {
		o.BucketSize = 3
	})
	ctx := context.Background()
	b.withProfiles(t, "alice")

	var posted []uint64
	for i := 0; i < 5; i++ {
		posted = append(posted, b.post(t, "alice", "x"))
	}
	// ids 1,2 -> bucket 0; 3,4,5 -> bucket 1
	require.NoError(t, b.DeleteRecord(ctx, "alice", posted[3]))

	t.Run("never populated", func(t *testing.T) {
		_, err := b.ByBucket(ctx, 2)
		assert.ErrorIs(t, err, ErrBucketNotFound)
	})

	t.Run("bucket 0 skips the sentinel", func(t *testing.T) {
		records, err := b.ByBucket(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []uint64{1, 2}, ids(records))
	})

	t.Run("live entries", func(t *testing.T) {
		records, err := b.ByBucket(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint64{3, 5}, ids(records))
	})

	t.Run("emptied bucket still exists", func(t *testing.T) {
		require.NoError(t, b.DeleteRecord(ctx, "alice", 3))
		require.NoError(t, b.DeleteRecord(ctx, "alice", 5))

		records, err := b.ByBucket(ctx, 1)
		require.NoError(t, err)
		assert.Empty(t, records)

		records, err = b.ByBucket(ctx, 1, IncludeDeleted())
		require.NoError(t, err)
		assert.Equal(t, []uint64{3, 4, 5}, ids(records))

		n, err := b.ActiveInBucket(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), n)
	})
}

func TestOriginalOf(t *testing.T) {
	b := setupTestStore(t, nil)
	ctx := context.Background()
	b.withProfiles(t, "alice", "bob")

	parent := b.post(t, "alice", "parent")
	reply := b.reply(t, "bob", parent, "reply")

	_, err := b.OriginalOf(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = b.OriginalOf(ctx, parent)
	assert.ErrorIs(t, err, ErrNotAReply)

	_, err = b.OriginalOf(ctx, SentinelID)
	assert.ErrorIs(t, err, ErrNotAReply)

	orig, err := b.OriginalOf(ctx, reply)
	require.NoError(t, err)
	assert.Equal(t, parent, orig.ID)
	assert.Equal(t, "parent", orig.Body)
}

func TestGetRecord_ReturnsTombstones(t *testing.T) {
	b := setupTestStore(t, nil)
	ctx := context.Background()
	b.withProfiles(t, "alice")

	id := b.post(t, "alice", "soon gone")
	require.NoError(t, b.DeleteRecord(ctx, "alice", id))

	rec, err := b.GetRecord(ctx, id)
	require.NoError(t, err)
	assert.True(t, rec.Deleted)
	assert.Equal(t, "soon gone", rec.Body)
	assert.Equal(t, "alice", rec.Author)
}
