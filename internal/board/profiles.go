package board

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
)

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func (s *Store) validateHandle(handle string) error {
	switch {
	case handle == "":
		return newError(KindInvalidHandle, "handle is empty")
	case len(handle) > s.maxHandle:
		return newError(KindInvalidHandle, "handle is longer than %d characters", s.maxHandle)
	case !handlePattern.MatchString(handle):
		return newError(KindInvalidHandle, "handle %q may only contain letters, digits and underscores", handle)
	}
	return nil
}

func (l *ledger) profile(identity string) (*Profile, error) {
	if identity == NullIdentity {
		return nil, nil
	}
	data := l.tx.Bucket(BucketProfiles).Get([]byte(identity))
	if data == nil {
		return nil, nil
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, nil
}

func (l *ledger) putProfile(p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	return l.tx.Bucket(BucketProfiles).Put([]byte(p.Identity), data)
}

// releaseHandle drops the directory entry for handle if identity still owns it.
func (l *ledger) releaseHandle(handle, identity string) error {
	if handle == "" {
		return nil
	}
	handles := l.tx.Bucket(BucketHandles)
	if owner := handles.Get([]byte(handle)); owner != nil && string(owner) == identity {
		return handles.Delete([]byte(handle))
	}
	return nil
}

// ClaimHandle sets identity's handle and avatar, creating the profile on
// first use and reactivating it after a deactivation.
func (s *Store) ClaimHandle(ctx context.Context, identity, handle, avatarRef string) (*Profile, error) {
	var out *Profile
	err := s.update(ctx, "claim_handle", func(l *ledger) error {
		if identity == NullIdentity {
			return newError(KindInvalidIdentity, "the null identity cannot hold a handle")
		}
		if err := s.validateHandle(handle); err != nil {
			return err
		}

		handles := l.tx.Bucket(BucketHandles)
		if owner := handles.Get([]byte(handle)); owner != nil && string(owner) != identity {
			return newError(KindHandleTaken, "handle %q is taken", handle)
		}

		p, err := l.profile(identity)
		if err != nil {
			return err
		}
		if p == nil {
			p = &Profile{Identity: identity}
		}

		if p.Handle != handle || !p.Active {
			if p.Handle != handle {
				if err := l.releaseHandle(p.Handle, identity); err != nil {
					return err
				}
			}
			p.HandleClaimedAt = l.now
		}
		if err := handles.Put([]byte(handle), []byte(identity)); err != nil {
			return err
		}

		p.Handle = handle
		p.AvatarRef = avatarRef
		p.Active = true
		if err := l.putProfile(p); err != nil {
			return err
		}

		l.emit(Event{
			Kind:      EventProfileUpdated,
			Identity:  identity,
			Handle:    handle,
			AvatarRef: avatarRef,
		})
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateAvatar changes only the avatar of an existing profile.
func (s *Store) UpdateAvatar(ctx context.Context, identity, avatarRef string) (*Profile, error) {
	var out *Profile
	err := s.update(ctx, "update_avatar", func(l *ledger) error {
		p, err := l.profile(identity)
		if err != nil {
			return err
		}
		if p == nil || p.Handle == "" {
			return newError(KindProfileMissing, "identity %q has no handle yet", identity)
		}

		p.AvatarRef = avatarRef
		if err := l.putProfile(p); err != nil {
			return err
		}

		l.emit(Event{
			Kind:      EventProfileUpdated,
			Identity:  identity,
			Handle:    p.Handle,
			AvatarRef: avatarRef,
		})
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Deactivate releases identity's handle and marks the profile inactive.
// The profile row and the handle snapshots on past records are kept.
func (s *Store) Deactivate(ctx context.Context, identity string) error {
	return s.update(ctx, "deactivate", func(l *ledger) error {
		p, err := l.profile(identity)
		if err != nil {
			return err
		}
		if p == nil {
			return newError(KindProfileMissing, "identity %q has no profile", identity)
		}

		if err := l.releaseHandle(p.Handle, identity); err != nil {
			return err
		}
		p.Active = false
		if err := l.putProfile(p); err != nil {
			return err
		}

		l.emit(Event{
			Kind:     EventProfileDeactivated,
			Identity: identity,
		})
		return nil
	})
}

// GetProfile returns identity's profile.
func (s *Store) GetProfile(ctx context.Context, identity string) (*Profile, error) {
	var out *Profile
	err := s.view(ctx, "get_profile", func(l *ledger) error {
		p, err := l.profile(identity)
		if err != nil {
			return err
		}
		if p == nil {
			return newError(KindProfileMissing, "identity %q has no profile", identity)
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HandleToIdentity resolves a claimed handle. The second result is false
// (and the identity is NullIdentity) when nobody holds it.
func (s *Store) HandleToIdentity(ctx context.Context, handle string) (string, bool, error) {
	identity := NullIdentity
	err := s.view(ctx, "handle_to_identity", func(l *ledger) error {
		if handle == "" {
			return nil
		}
		if owner := l.tx.Bucket(BucketHandles).Get([]byte(handle)); owner != nil {
			identity = string(owner)
		}
		return nil
	})
	if err != nil {
		return NullIdentity, false, err
	}
	return identity, identity != NullIdentity, nil
}
