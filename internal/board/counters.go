package board

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ledger is the view of one transaction. Write paths also queue events and
// tally evictions on it; both are discarded if the transaction rolls back.
type ledger struct {
	tx      *bolt.Tx
	store   *Store
	now     time.Time
	events  []Event
	evicted uint64
}

func (l *ledger) emit(ev Event) {
	l.events = append(l.events, ev)
}

func idKey(id uint64) []byte {
	return putU64(id)
}

// pairKey builds a composite {be64 major}{be64 minor} key so a cursor Seek on
// the major half walks its entries in id order.
func pairKey(major, minor uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], major)
	binary.BigEndian.PutUint64(buf[8:], minor)
	return buf
}

func putU64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func u64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (l *ledger) meta(key []byte) uint64 {
	return u64(l.tx.Bucket(BucketMeta).Get(key))
}

func (l *ledger) putMeta(key []byte, v uint64) error {
	return l.tx.Bucket(BucketMeta).Put(key, putU64(v))
}

func (l *ledger) count(bucket, key []byte) uint64 {
	return u64(l.tx.Bucket(bucket).Get(key))
}

// addCount applies delta to a counter. A counter that would go negative means
// the ledger is already inconsistent, so the whole step is aborted.
func (l *ledger) addCount(bucket, key []byte, delta int64) error {
	b := l.tx.Bucket(bucket)
	current := u64(b.Get(key))
	if delta < 0 && uint64(-delta) > current {
		return fmt.Errorf("counter %s/%x underflow: %d%+d", bucket, key, current, delta)
	}
	return b.Put(key, putU64(uint64(int64(current)+delta)))
}

func (l *ledger) addTotal(delta int64) error {
	current := l.meta(metaActiveTotal)
	if delta < 0 && uint64(-delta) > current {
		return fmt.Errorf("active_total underflow: %d%+d", current, delta)
	}
	return l.putMeta(metaActiveTotal, uint64(int64(current)+delta))
}

func (l *ledger) settings() (Settings, error) {
	var st Settings
	data := l.tx.Bucket(BucketMeta).Get(metaSettings)
	if data == nil {
		return DefaultSettings(), nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return st, nil
}

func (l *ledger) putSettings(st Settings) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return l.tx.Bucket(BucketMeta).Put(metaSettings, data)
}

// record loads a record by id. It returns (nil, nil) when the id was never
// assigned.
func (l *ledger) record(id uint64) (*Record, error) {
	data := l.tx.Bucket(BucketRecords).Get(idKey(id))
	if data == nil {
		return nil, nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %d: %w", id, err)
	}
	return &rec, nil
}

func (l *ledger) putRecord(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return l.tx.Bucket(BucketRecords).Put(idKey(rec.ID), data)
}

// tombstone flips a live record to deleted and decrements every counter that
// was counting it.
func (l *ledger) tombstone(rec *Record) error {
	if rec.Deleted {
		return fmt.Errorf("record %d is already deleted", rec.ID)
	}
	rec.Deleted = true
	if err := l.putRecord(rec); err != nil {
		return err
	}
	if err := l.addTotal(-1); err != nil {
		return err
	}
	if err := l.addCount(BucketActiveByBucket, idKey(l.store.BucketOf(rec.ID)), -1); err != nil {
		return err
	}
	if err := l.addCount(BucketActiveByAuthor, []byte(rec.Author), -1); err != nil {
		return err
	}
	if rec.IsReply() {
		return l.addCount(BucketActiveReplies, idKey(rec.ParentID), -1)
	}
	if err := l.tx.Bucket(BucketLiveTop).Delete(idKey(rec.ID)); err != nil {
		return fmt.Errorf("failed to drop record %d from live index: %w", rec.ID, err)
	}
	return nil
}

func unixNano(n uint64) time.Time {
	return time.Unix(0, int64(n))
}
