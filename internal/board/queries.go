package board

import (
	"bytes"
	"context"
	"math"
)

type queryOptions struct {
	includeDeleted bool
}

// QueryOption adjusts an index listing.
type QueryOption func(*queryOptions)

// IncludeDeleted makes a listing return tombstones as well as live records.
func IncludeDeleted() QueryOption {
	return func(o *queryOptions) {
		o.includeDeleted = true
	}
}

func applyQueryOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GetRecord returns a record, deleted or not.
func (s *Store) GetRecord(ctx context.Context, id uint64) (*Record, error) {
	var out *Record
	err := s.view(ctx, "get_record", func(l *ledger) error {
		rec, err := l.existing(id)
		out = rec
		return err
	})
	return out, err
}

// existing loads an assigned id or fails with NotFound.
func (l *ledger) existing(id uint64) (*Record, error) {
	if id >= l.meta(metaNextID) {
		return nil, newError(KindNotFound, "record %d does not exist", id)
	}
	rec, err := l.record(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, newError(KindNotFound, "record %d does not exist", id)
	}
	return rec, nil
}

// Latest returns up to n live top-level records, newest first.
func (s *Store) Latest(ctx context.Context, n int) ([]*Record, error) {
	var out []*Record
	err := s.view(ctx, "latest", func(l *ledger) error {
		st, err := l.settings()
		if err != nil {
			return err
		}
		if n > st.MaxLatest {
			return newError(KindTooMany, "latest %d exceeds the limit of %d", n, st.MaxLatest)
		}
		out = []*Record{}
		if n <= 0 {
			return nil
		}
		return l.walkNewest(0, func(rec *Record) bool {
			out = append(out, rec)
			return len(out) < n
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Paginate returns slice [page*size, page*size+size) of the newest-first
// sequence of live top-level records. Past the end it returns an empty page.
func (s *Store) Paginate(ctx context.Context, page, size int) (*Page, error) {
	var out *Page
	err := s.view(ctx, "paginate", func(l *ledger) error {
		st, err := l.settings()
		if err != nil {
			return err
		}
		switch {
		case size <= 0:
			return newError(KindPageSizeZero, "page size must be positive")
		case size > st.MaxPageSize:
			return newError(KindPageSizeTooLarge, "page size %d exceeds the limit of %d", size, st.MaxPageSize)
		case page < 0:
			return newError(KindInvalidPage, "page %d is negative", page)
		}

		out = &Page{Records: []*Record{}, Page: page, Size: size}
		if page > math.MaxInt/size {
			return nil
		}
		return l.walkNewest(page*size, func(rec *Record) bool {
			if len(out.Records) == size {
				out.HasMore = true
				return false
			}
			out.Records = append(out.Records, rec)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// walkNewest passes over the newest skip live top-level records, then visits
// the rest from newest to oldest until fn returns false. Skipped entries are
// never decoded, and the index holds at most capacity entries.
func (l *ledger) walkNewest(skip int, fn func(*Record) bool) error {
	records := l.tx.Bucket(BucketRecords)

	c := l.tx.Bucket(BucketLiveTop).Cursor()
	k, _ := c.Last()
	for ; k != nil && skip > 0; k, _ = c.Prev() {
		skip--
	}
	for ; k != nil; k, _ = c.Prev() {
		rec, err := decodeRecord(records.Get(k))
		if err != nil {
			return err
		}
		if !fn(rec) {
			return nil
		}
	}
	return nil
}

// RepliesOf returns the direct replies to id in the order they were made.
func (s *Store) RepliesOf(ctx context.Context, id uint64, opts ...QueryOption) ([]*Record, error) {
	o := applyQueryOptions(opts)
	var out []*Record
	err := s.view(ctx, "replies_of", func(l *ledger) error {
		if _, err := l.existing(id); err != nil {
			return err
		}
		var err error
		out, err = l.scanPrefix(BucketReplies, idKey(id), o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ByBucket returns the records in a time bucket in id order.
func (s *Store) ByBucket(ctx context.Context, bucket uint64, opts ...QueryOption) ([]*Record, error) {
	o := applyQueryOptions(opts)
	var out []*Record
	err := s.view(ctx, "by_bucket", func(l *ledger) error {
		prefix := idKey(bucket)
		if k, _ := l.tx.Bucket(BucketByBucket).Cursor().Seek(prefix); k == nil || !bytes.HasPrefix(k, prefix) {
			return newError(KindBucketNotFound, "bucket %d was never populated", bucket)
		}
		var err error
		out, err = l.scanPrefix(BucketByBucket, prefix, o)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scanPrefix reads a {be64 major}{be64 id} index in id order.
func (l *ledger) scanPrefix(bucket, prefix []byte, o queryOptions) ([]*Record, error) {
	out := []*Record{}
	records := l.tx.Bucket(BucketRecords)
	c := l.tx.Bucket(bucket).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		rec, err := decodeRecord(records.Get(k[8:]))
		if err != nil {
			return nil, err
		}
		if rec.Deleted && !o.includeDeleted {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ByAuthor returns everything identity wrote, top-level and replies, in the
// order it was written.
func (s *Store) ByAuthor(ctx context.Context, identity string, opts ...QueryOption) ([]*Record, error) {
	o := applyQueryOptions(opts)
	out := []*Record{}
	err := s.view(ctx, "by_author", func(l *ledger) error {
		if identity == NullIdentity {
			return nil
		}
		authored := l.tx.Bucket(BucketByAuthor).Bucket([]byte(identity))
		if authored == nil {
			return nil
		}
		records := l.tx.Bucket(BucketRecords)
		return authored.ForEach(func(k, _ []byte) error {
			rec, err := decodeRecord(records.Get(k))
			if err != nil {
				return err
			}
			if !rec.Deleted || o.includeDeleted {
				out = append(out, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// OriginalOf returns the record a reply answers, even if it has been deleted.
func (s *Store) OriginalOf(ctx context.Context, replyID uint64) (*Record, error) {
	var out *Record
	err := s.view(ctx, "original_of", func(l *ledger) error {
		rec, err := l.existing(replyID)
		if err != nil {
			return err
		}
		if !rec.IsReply() {
			return newError(KindNotAReply, "record %d is not a reply", replyID)
		}
		out, err = l.existing(rec.ParentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveTotal returns the number of live records.
func (s *Store) ActiveTotal(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.view(ctx, "active_total", func(l *ledger) error {
		n = l.meta(metaActiveTotal)
		return nil
	})
	return n, err
}

// ActiveInBucket returns the number of live records in a time bucket.
func (s *Store) ActiveInBucket(ctx context.Context, bucket uint64) (uint64, error) {
	var n uint64
	err := s.view(ctx, "active_in_bucket", func(l *ledger) error {
		n = l.count(BucketActiveByBucket, idKey(bucket))
		return nil
	})
	return n, err
}

// ActiveByAuthor returns the number of live records by identity.
func (s *Store) ActiveByAuthor(ctx context.Context, identity string) (uint64, error) {
	var n uint64
	err := s.view(ctx, "active_by_author", func(l *ledger) error {
		if identity != NullIdentity {
			n = l.count(BucketActiveByAuthor, []byte(identity))
		}
		return nil
	})
	return n, err
}

// ActiveReplies returns the number of live direct replies to parent.
func (s *Store) ActiveReplies(ctx context.Context, parent uint64) (uint64, error) {
	var n uint64
	err := s.view(ctx, "active_replies", func(l *ledger) error {
		n = l.count(BucketActiveReplies, idKey(parent))
		return nil
	})
	return n, err
}

// Stats returns the ledger scalars and current settings.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var out *Stats
	err := s.view(ctx, "stats", func(l *ledger) error {
		st, err := l.settings()
		if err != nil {
			return err
		}
		out = &Stats{
			NextID:      l.meta(metaNextID),
			ActiveTotal: l.meta(metaActiveTotal),
			EvictHead:   l.meta(metaEvictHead),
			Step:        l.meta(metaStep),
			BucketSize:  s.bucketSize,
			Admin:       s.admin,
			Settings:    st,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
