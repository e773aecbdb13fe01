package board

import (
	"errors"
	"fmt"
)

// Kind classifies a board failure. Every precondition in the write and read
// paths maps to exactly one kind so callers can react without parsing messages.
type Kind string

const (
	// Validation errors
	KindInvalidHandle    Kind = "invalid_handle"
	KindInvalidIdentity  Kind = "invalid_identity"
	KindBodyEmpty        Kind = "body_empty"
	KindBodyTooLong      Kind = "body_too_long"
	KindPageSizeZero     Kind = "page_size_zero"
	KindPageSizeTooLarge Kind = "page_size_too_large"
	KindInvalidPage      Kind = "invalid_page"
	KindInvalidSetting   Kind = "invalid_setting"
	KindUnknownSetting   Kind = "unknown_setting"

	// State-precondition errors
	KindProfileMissing  Kind = "profile_missing"
	KindProfileRequired Kind = "profile_required"
	KindProfileInactive Kind = "profile_inactive"
	KindHandleTaken     Kind = "handle_taken"
	KindCooldownActive  Kind = "cooldown_active"
	KindParentNotFound  Kind = "parent_not_found"
	KindNotFound        Kind = "not_found"
	KindBucketNotFound  Kind = "bucket_not_found"
	KindAlreadyDeleted  Kind = "already_deleted"
	KindNotAReply       Kind = "not_a_reply"
	KindNotAuthorized   Kind = "not_authorized"

	// Capacity errors
	KindTooMany Kind = "too_many"
)

// Error is returned for every rejected board operation. A rejected operation
// never leaves partial state behind.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Msg
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidHandle    = &Error{Kind: KindInvalidHandle}
	ErrInvalidIdentity  = &Error{Kind: KindInvalidIdentity}
	ErrBodyEmpty        = &Error{Kind: KindBodyEmpty}
	ErrBodyTooLong      = &Error{Kind: KindBodyTooLong}
	ErrPageSizeZero     = &Error{Kind: KindPageSizeZero}
	ErrPageSizeTooLarge = &Error{Kind: KindPageSizeTooLarge}
	ErrInvalidPage      = &Error{Kind: KindInvalidPage}
	ErrInvalidSetting   = &Error{Kind: KindInvalidSetting}
	ErrUnknownSetting   = &Error{Kind: KindUnknownSetting}
	ErrProfileMissing   = &Error{Kind: KindProfileMissing}
	ErrProfileRequired  = &Error{Kind: KindProfileRequired}
	ErrProfileInactive  = &Error{Kind: KindProfileInactive}
	ErrHandleTaken      = &Error{Kind: KindHandleTaken}
	ErrCooldownActive   = &Error{Kind: KindCooldownActive}
	ErrParentNotFound   = &Error{Kind: KindParentNotFound}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrBucketNotFound   = &Error{Kind: KindBucketNotFound}
	ErrAlreadyDeleted   = &Error{Kind: KindAlreadyDeleted}
	ErrNotAReply        = &Error{Kind: KindNotAReply}
	ErrNotAuthorized    = &Error{Kind: KindNotAuthorized}
	ErrTooMany          = &Error{Kind: KindTooMany}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of a board error, or "" for infrastructure errors
// (storage, encoding) that are not part of the taxonomy.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}
