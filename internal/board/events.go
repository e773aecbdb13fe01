package board

import "time"

// EventKind names a change notification.
type EventKind string

const (
	EventRecordCreated      EventKind = "record.created"
	EventReplyCreated       EventKind = "reply.created"
	EventRecordDeleted      EventKind = "record.deleted"
	EventRecordsPruned      EventKind = "records.pruned"
	EventProfileUpdated     EventKind = "profile.updated"
	EventProfileDeactivated EventKind = "profile.deactivated"
	EventConfigChanged      EventKind = "config.changed"
)

// Event is a change notification published after a step commits. Only the
// fields relevant to Kind are set.
type Event struct {
	Kind EventKind `json:"kind"`
	Step uint64    `json:"step"`
	At   time.Time `json:"at"`

	// record.created, reply.created, record.deleted
	RecordID uint64 `json:"record_id,omitempty"`
	ParentID uint64 `json:"parent_id,omitempty"`
	Author   string `json:"author,omitempty"`
	Body     string `json:"body,omitempty"`

	// record.deleted, config.changed
	Actor string `json:"actor,omitempty"`

	// profile.updated, profile.deactivated; Handle is also the snapshot on creations
	Identity  string `json:"identity,omitempty"`
	Handle    string `json:"handle,omitempty"`
	AvatarRef string `json:"avatar_ref,omitempty"`

	// records.pruned
	Requested uint64 `json:"requested,omitempty"`
	Evicted   uint64 `json:"evicted,omitempty"`

	// config.changed
	Param string `json:"param,omitempty"`
	Value string `json:"value,omitempty"`
}

// EventSink receives committed events. Publish runs on the writer's goroutine
// after the write lock is released, so two writers may deliver out of order;
// Step gives the commit order. It must not block.
type EventSink interface {
	Publish(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

// Publish calls f(ev).
func (f SinkFunc) Publish(ev Event) {
	f(ev)
}

// MultiSink fans events out to several sinks.
type MultiSink []EventSink

// Publish forwards ev to every sink.
func (m MultiSink) Publish(ev Event) {
	for _, sink := range m {
		sink.Publish(ev)
	}
}
