package board

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Post creates a top-level record and returns its id.
func (s *Store) Post(ctx context.Context, author, body string) (uint64, error) {
	var id uint64
	err := s.update(ctx, "post", func(l *ledger) error {
		var err error
		id, err = l.createRecord(author, body, SentinelID, false)
		return err
	})
	return id, err
}

// Reply creates a record answering parentID. Deleted parents may still be
// answered.
func (s *Store) Reply(ctx context.Context, author string, parentID uint64, body string) (uint64, error) {
	var id uint64
	err := s.update(ctx, "reply", func(l *ledger) error {
		var err error
		id, err = l.createRecord(author, body, parentID, true)
		return err
	})
	return id, err
}

// CreateRecord posts when parentID is zero and replies otherwise.
func (s *Store) CreateRecord(ctx context.Context, author, body string, parentID uint64) (uint64, error) {
	if parentID == SentinelID {
		return s.Post(ctx, author, body)
	}
	return s.Reply(ctx, author, parentID, body)
}

func (l *ledger) createRecord(author, body string, parentID uint64, isReply bool) (uint64, error) {
	profile, err := l.profile(author)
	if err != nil {
		return 0, err
	}
	if profile == nil {
		return 0, newError(KindProfileRequired, "identity %q has no profile", author)
	}
	if !profile.Active {
		return 0, newError(KindProfileInactive, "profile of %q is deactivated", author)
	}

	st, err := l.settings()
	if err != nil {
		return 0, err
	}

	if body == "" {
		return 0, newError(KindBodyEmpty, "body is empty")
	}
	if n := utf8.RuneCountInString(body); n > st.MaxBodyLength {
		return 0, newError(KindBodyTooLong, "body has %d characters, limit is %d", n, st.MaxBodyLength)
	}

	cooldowns := l.tx.Bucket(BucketCooldowns)
	if last := cooldowns.Get([]byte(author)); last != nil {
		elapsed := l.now.Sub(unixNano(u64(last)))
		if elapsed < st.Cooldown {
			return 0, newError(KindCooldownActive, "wait %s before posting again", st.Cooldown-elapsed)
		}
	}

	nextID := l.meta(metaNextID)
	if isReply && (parentID == SentinelID || parentID >= nextID) {
		return 0, newError(KindParentNotFound, "record %d does not exist", parentID)
	}

	if total := l.meta(metaActiveTotal); total >= st.Capacity {
		if _, err := l.evict(total - st.Capacity + 1); err != nil {
			return 0, err
		}
	}

	id := nextID
	if err := l.putMeta(metaNextID, id+1); err != nil {
		return 0, err
	}

	rec := &Record{
		ID:           id,
		Author:       author,
		Body:         body,
		CreatedAt:    l.now,
		AuthorHandle: profile.Handle,
		ParentID:     parentID,
	}
	if err := l.putRecord(rec); err != nil {
		return 0, err
	}

	if err := l.appendIndexes(rec); err != nil {
		return 0, err
	}
	if err := l.countLive(rec); err != nil {
		return 0, err
	}

	if err := cooldowns.Put([]byte(author), putU64(uint64(l.now.UnixNano()))); err != nil {
		return 0, err
	}

	kind := EventRecordCreated
	if rec.IsReply() {
		kind = EventReplyCreated
	}
	l.emit(Event{
		Kind:     kind,
		RecordID: rec.ID,
		ParentID: rec.ParentID,
		Author:   rec.Author,
		Handle:   rec.AuthorHandle,
		Body:     rec.Body,
	})

	return id, nil
}

func (l *ledger) appendIndexes(rec *Record) error {
	if err := l.tx.Bucket(BucketChrono).Put(idKey(rec.ID), []byte{}); err != nil {
		return fmt.Errorf("failed to append chronological index: %w", err)
	}
	if err := l.tx.Bucket(BucketByBucket).Put(pairKey(l.store.BucketOf(rec.ID), rec.ID), []byte{}); err != nil {
		return fmt.Errorf("failed to append bucket index: %w", err)
	}

	authored, err := l.tx.Bucket(BucketByAuthor).CreateBucketIfNotExists([]byte(rec.Author))
	if err != nil {
		return fmt.Errorf("failed to create author index: %w", err)
	}
	if err := authored.Put(idKey(rec.ID), []byte{}); err != nil {
		return fmt.Errorf("failed to append author index: %w", err)
	}

	if !rec.IsReply() {
		if err := l.tx.Bucket(BucketLiveTop).Put(idKey(rec.ID), []byte{}); err != nil {
			return fmt.Errorf("failed to append live index: %w", err)
		}
	}

	if rec.IsReply() {
		if err := l.tx.Bucket(BucketReplies).Put(pairKey(rec.ParentID, rec.ID), []byte{}); err != nil {
			return fmt.Errorf("failed to append reply index: %w", err)
		}
	}
	return nil
}

func (l *ledger) countLive(rec *Record) error {
	if err := l.addTotal(1); err != nil {
		return err
	}
	if err := l.addCount(BucketActiveByBucket, idKey(l.store.BucketOf(rec.ID)), 1); err != nil {
		return err
	}
	if err := l.addCount(BucketActiveByAuthor, []byte(rec.Author), 1); err != nil {
		return err
	}
	if rec.IsReply() {
		return l.addCount(BucketActiveReplies, idKey(rec.ParentID), 1)
	}
	return nil
}

// DeleteRecord soft-deletes a record on behalf of its author or the admin.
func (s *Store) DeleteRecord(ctx context.Context, actor string, id uint64) error {
	return s.update(ctx, "delete", func(l *ledger) error {
		if id >= l.meta(metaNextID) {
			return newError(KindNotFound, "record %d does not exist", id)
		}
		rec, err := l.record(id)
		if err != nil {
			return err
		}
		if rec == nil {
			return newError(KindNotFound, "record %d does not exist", id)
		}
		if rec.Deleted {
			return newError(KindAlreadyDeleted, "record %d is already deleted", id)
		}
		if actor != rec.Author && !s.isAdmin(actor) {
			return newError(KindNotAuthorized, "%q may not delete record %d", actor, id)
		}

		if err := l.tombstone(rec); err != nil {
			return err
		}

		l.emit(Event{
			Kind:     EventRecordDeleted,
			RecordID: id,
			ParentID: rec.ParentID,
			Author:   rec.Author,
			Actor:    actor,
		})
		return nil
	})
}

// decodeRecord is used by cursor walks that already hold the raw value.
func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}
