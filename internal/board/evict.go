package board

import (
	"github.com/rs/zerolog/log"
)

// evict soft-deletes up to n of the oldest live top-level records. Replies
// are passed over, never evicted. The walk resumes at the persisted evict
// head, which only ever moves forward because everything behind it is either
// deleted or a reply.
func (l *ledger) evict(n uint64) (uint64, error) {
	if n == 0 {
		return 0, nil
	}

	head := l.meta(metaEvictHead)
	next := head
	var evicted uint64

	c := l.tx.Bucket(BucketChrono).Cursor()
	for k, _ := c.Seek(idKey(head)); k != nil && evicted < n; k, _ = c.Next() {
		id := u64(k)
		next = id + 1

		rec, err := l.record(id)
		if err != nil {
			return evicted, err
		}
		if rec == nil || rec.Deleted || rec.IsReply() {
			continue
		}

		if err := l.tombstone(rec); err != nil {
			return evicted, err
		}
		evicted++
	}

	if evicted < n {
		// Exhausted: every remaining entry was a reply or a tombstone.
		next = l.meta(metaNextID)
	}
	if next != head {
		if err := l.putMeta(metaEvictHead, next); err != nil {
			return evicted, err
		}
	}

	l.evicted += evicted
	l.emit(Event{
		Kind:      EventRecordsPruned,
		Requested: n,
		Evicted:   evicted,
	})

	if evicted < n {
		log.Warn().
			Uint64("requested", n).
			Uint64("evicted", evicted).
			Uint64("active_total", l.meta(metaActiveTotal)).
			Msg("board: no top-level records left to evict, active count stays above capacity")
	}

	return evicted, nil
}
