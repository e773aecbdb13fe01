package board

import "time"

// NullIdentity is the author of the sentinel record and the value returned
// when a handle lookup finds nothing.
const NullIdentity = ""

// SentinelID is the permanently deleted record that lets ParentID == 0 mean
// "not a reply".
const SentinelID uint64 = 0

// Record is a single message on the board. Everything except Deleted is fixed
// at creation, and Deleted only ever goes from false to true.
type Record struct {
	ID           uint64    `json:"id"`
	Author       string    `json:"author"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
	AuthorHandle string    `json:"author_handle"` // snapshot at post time
	ParentID     uint64    `json:"parent_id"`
	Deleted      bool      `json:"deleted"`
}

// IsReply reports whether the record answers another record.
func (r *Record) IsReply() bool {
	return r.ParentID != SentinelID
}

// Profile is an identity's public face on the board.
type Profile struct {
	Identity        string    `json:"identity"`
	Handle          string    `json:"handle"`
	AvatarRef       string    `json:"avatar_ref"`
	Active          bool      `json:"active"`
	HandleClaimedAt time.Time `json:"handle_claimed_at"`
}

// Settings are the runtime-adjustable board parameters. They are persisted
// with the ledger and changed only by the administrator.
type Settings struct {
	Capacity      uint64        `json:"capacity"`
	Cooldown      time.Duration `json:"cooldown"`
	MaxLatest     int           `json:"max_latest"`
	MaxPageSize   int           `json:"max_page_size"`
	MaxBodyLength int           `json:"max_body_length"`
}

// DefaultSettings returns the values a fresh board starts with.
func DefaultSettings() Settings {
	return Settings{
		Capacity:      1000,
		Cooldown:      30 * time.Second,
		MaxLatest:     100,
		MaxPageSize:   50,
		MaxBodyLength: 280,
	}
}

// Page is one slice of the newest-first sequence of live top-level records.
type Page struct {
	Records []*Record `json:"records"`
	Page    int       `json:"page"`
	Size    int       `json:"size"`
	HasMore bool      `json:"has_more"`
}

// Stats summarizes ledger-level state.
type Stats struct {
	NextID      uint64   `json:"next_id"`
	ActiveTotal uint64   `json:"active_total"`
	EvictHead   uint64   `json:"evict_head"`
	Step        uint64   `json:"step"`
	BucketSize  uint64   `json:"bucket_size"`
	Admin       string   `json:"admin"`
	Settings    Settings `json:"settings"`
}

// Overflow is how far the active count sits above capacity. It is non-zero
// only after a run of replies exhausted an eviction walk.
func (s Stats) Overflow() uint64 {
	if s.ActiveTotal > s.Settings.Capacity {
		return s.ActiveTotal - s.Settings.Capacity
	}
	return 0
}
