// Package board implements the bounded multi-indexed message store.
//
// All state lives in a single bbolt file. Each public write runs as one
// read-write transaction, so it is either fully applied (record, indexes,
// counters, eviction) or fully discarded. Reads run in read-only transactions
// and never observe a half-applied step.
package board

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"bulletin/internal/metrics"
	"bulletin/internal/tracing"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// Bucket names for the ledger
var (
	// BucketRecords stores full records: {be64 id} -> {Record JSON}
	BucketRecords = []byte("records")

	// BucketChrono is the chronological index: {be64 id} -> {}
	BucketChrono = []byte("idx_chrono")

	// BucketLiveTop holds only live top-level records: {be64 id} -> {}
	BucketLiveTop = []byte("idx_live_top")

	// BucketByBucket is the time-bucket index: {be64 bucket}{be64 id} -> {}
	BucketByBucket = []byte("idx_bucket")

	// BucketByAuthor holds one nested bucket per author: {identity} -> {be64 id} -> {}
	BucketByAuthor = []byte("idx_author")

	// BucketReplies is the reply index: {be64 parent}{be64 id} -> {}
	BucketReplies = []byte("idx_replies")

	// BucketActiveByBucket stores live counts per time bucket: {be64 bucket} -> {be64 count}
	BucketActiveByBucket = []byte("active_by_bucket")

	// BucketActiveByAuthor stores live counts per author: {identity} -> {be64 count}
	BucketActiveByAuthor = []byte("active_by_author")

	// BucketActiveReplies stores live reply counts per parent: {be64 parent} -> {be64 count}
	BucketActiveReplies = []byte("active_replies")

	// BucketProfiles stores profiles: {identity} -> {Profile JSON}
	BucketProfiles = []byte("profiles")

	// BucketHandles is the handle directory: {handle} -> {identity}
	BucketHandles = []byte("handles")

	// BucketCooldowns stores the last post-or-reply time: {identity} -> {be64 unix nanos}
	BucketCooldowns = []byte("cooldowns")

	// BucketMeta stores ledger scalars and settings
	BucketMeta = []byte("meta")
)

var allBuckets = [][]byte{
	BucketRecords,
	BucketChrono,
	BucketLiveTop,
	BucketByBucket,
	BucketByAuthor,
	BucketReplies,
	BucketActiveByBucket,
	BucketActiveByAuthor,
	BucketActiveReplies,
	BucketProfiles,
	BucketHandles,
	BucketCooldowns,
	BucketMeta,
}

// Meta keys
var (
	metaNextID      = []byte("next_id")
	metaActiveTotal = []byte("active_total")
	metaEvictHead   = []byte("evict_head")
	metaStep        = []byte("step")
	metaBucketSize  = []byte("bucket_size")
	metaSettings    = []byte("settings")
)

const (
	defaultBucketSize      = 100
	defaultMaxHandleLength = 32
)

// Store is the message board ledger.
type Store struct {
	db         *bolt.DB
	admin      string
	bucketSize uint64
	maxHandle  int
	now        func() time.Time
	sink       EventSink
}

// Options configures the store.
type Options struct {
	// Path to the database file. Parent directories will be created if needed.
	Path string

	// Timeout for obtaining a file lock on the database.
	// If zero, a default of 5 seconds is used.
	Timeout time.Duration

	// FileMode for creating the database file.
	// If zero, 0600 is used.
	FileMode os.FileMode

	// ReadOnly opens an existing board without the ability to write.
	ReadOnly bool

	// Admin is the single privileged identity allowed to change settings
	// and delete records it did not author. Empty disables the admin surface.
	Admin string

	// Settings seed a fresh board. An existing board keeps its persisted settings.
	Settings Settings

	// BucketSize is the number of consecutive ids per time bucket. It is
	// fixed when the board is created; zero means "whatever the board has".
	BucketSize uint64

	// MaxHandleLength bounds profile handles. If zero, 32 is used.
	MaxHandleLength int

	// Now is the ledger clock. If nil, time.Now is used.
	Now func() time.Time

	// Events receives change notifications after each committed step.
	Events EventSink
}

// DefaultOptions returns sensible defaults for development.
func DefaultOptions() Options {
	return Options{
		Path:            "bulletin.db",
		Timeout:         5 * time.Second,
		FileMode:        0600,
		Settings:        DefaultSettings(),
		BucketSize:      defaultBucketSize,
		MaxHandleLength: defaultMaxHandleLength,
	}
}

// Open creates or opens a board at opts.Path. A new file gets its buckets,
// the sentinel record and the seed settings in a single transaction.
func Open(opts Options) (*Store, error) {
	if opts.Path == "" {
		opts.Path = "bulletin.db"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0600
	}
	if opts.MaxHandleLength == 0 {
		opts.MaxHandleLength = defaultMaxHandleLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Settings == (Settings{}) {
		opts.Settings = DefaultSettings()
	}
	if err := validateSettings(opts.Settings); err != nil {
		return nil, err
	}

	if !opts.ReadOnly {
		dir := filepath.Dir(opts.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{
		Timeout:  opts.Timeout,
		ReadOnly: opts.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:        db,
		admin:     opts.Admin,
		maxHandle: opts.MaxHandleLength,
		now:       opts.Now,
		sink:      opts.Events,
	}

	if opts.ReadOnly {
		err = db.View(func(tx *bolt.Tx) error {
			meta := tx.Bucket(BucketMeta)
			if meta == nil || meta.Get(metaBucketSize) == nil {
				return fmt.Errorf("%s is not a bulletin board", opts.Path)
			}
			s.bucketSize = u64(meta.Get(metaBucketSize))
			return nil
		})
	} else {
		err = db.Update(func(tx *bolt.Tx) error {
			return s.initialize(tx, opts)
		})
	}
	if err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(tx *bolt.Tx, opts Options) error {
	for _, bucket := range allBuckets {
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}

	meta := tx.Bucket(BucketMeta)
	if stored := meta.Get(metaBucketSize); stored != nil {
		s.bucketSize = u64(stored)
		if opts.BucketSize != 0 && opts.BucketSize != s.bucketSize {
			return fmt.Errorf("bucket size is fixed at %d for this board, got %d", s.bucketSize, opts.BucketSize)
		}
		return nil
	}

	s.bucketSize = opts.BucketSize
	if s.bucketSize == 0 {
		s.bucketSize = defaultBucketSize
	}

	sentinel := Record{ID: SentinelID, Author: NullIdentity, Deleted: true}
	data, err := json.Marshal(sentinel)
	if err != nil {
		return fmt.Errorf("failed to marshal sentinel: %w", err)
	}
	if err := tx.Bucket(BucketRecords).Put(idKey(SentinelID), data); err != nil {
		return err
	}

	settings, err := json.Marshal(opts.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := meta.Put(metaSettings, settings); err != nil {
		return err
	}

	for key, value := range map[string]uint64{
		string(metaNextID):      SentinelID + 1,
		string(metaActiveTotal): 0,
		string(metaEvictHead):   SentinelID + 1,
		string(metaStep):        0,
		string(metaBucketSize):  s.bucketSize,
	} {
		if err := meta.Put([]byte(key), putU64(value)); err != nil {
			return err
		}
	}

	log.Info().
		Uint64("bucket_size", s.bucketSize).
		Uint64("capacity", opts.Settings.Capacity).
		Msg("board: initialized new ledger")

	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying BoltDB instance for advanced operations.
func (s *Store) DB() *bolt.DB {
	return s.db
}

// Backup writes a consistent snapshot of the whole board file to w.
func (s *Store) Backup(w io.Writer) (int64, error) {
	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("failed to back up board: %w", err)
	}
	return n, nil
}

// Admin returns the privileged identity, or "" if none is configured.
func (s *Store) Admin() string {
	return s.admin
}

// BucketSize returns the number of ids per time bucket.
func (s *Store) BucketSize() uint64 {
	return s.bucketSize
}

// BucketOf returns the time bucket a record id belongs to.
func (s *Store) BucketOf(id uint64) uint64 {
	return id / s.bucketSize
}

// SetEventSink replaces the notification sink. Call before serving traffic.
func (s *Store) SetEventSink(sink EventSink) {
	s.sink = sink
}

func (s *Store) isAdmin(identity string) bool {
	return s.admin != "" && identity == s.admin
}

// update runs fn as one ledger step. Events queued by fn are published only
// after the transaction commits.
func (s *Store) update(ctx context.Context, op string, fn func(l *ledger) error) error {
	_, span := tracing.BoardSpan(ctx, op)
	defer span.End()

	var l *ledger
	err := s.db.Update(func(tx *bolt.Tx) error {
		l = &ledger{tx: tx, store: s, now: s.now()}
		if err := fn(l); err != nil {
			return err
		}

		step := l.meta(metaStep) + 1
		if err := l.putMeta(metaStep, step); err != nil {
			return err
		}

		events := l.events
		for i := range events {
			events[i].Step = step
			events[i].At = l.now
		}
		tx.OnCommit(func() {
			s.publish(events)
		})
		return nil
	})

	metrics.BoardOperationsTotal.WithLabelValues(op, outcome(err)).Inc()
	tracing.EndWithError(span, err)

	if err == nil && l.evicted > 0 {
		metrics.BoardEvictedTotal.Add(float64(l.evicted))
		log.Info().
			Str("op", op).
			Uint64("evicted", l.evicted).
			Msg("board: evicted records")
	}
	return err
}

// view runs fn in a read-only transaction.
func (s *Store) view(ctx context.Context, op string, fn func(l *ledger) error) error {
	_, span := tracing.BoardSpan(ctx, op)
	defer span.End()

	err := s.db.View(func(tx *bolt.Tx) error {
		return fn(&ledger{tx: tx, store: s})
	})

	metrics.BoardOperationsTotal.WithLabelValues(op, outcome(err)).Inc()
	tracing.EndWithError(span, err)
	return err
}

func (s *Store) publish(events []Event) {
	for _, ev := range events {
		metrics.BoardEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
		if s.sink != nil {
			s.sink.Publish(ev)
		}
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
