package board

import (
	"context"
	"strconv"
	"time"
)

// Setting names accepted by ApplySetting.
const (
	SettingCapacity      = "capacity"
	SettingCooldown      = "cooldown"
	SettingMaxLatest     = "max_latest"
	SettingMaxPageSize   = "max_page_size"
	SettingMaxBodyLength = "max_body_length"
)

// SettingNames lists every adjustable parameter.
var SettingNames = []string{
	SettingCapacity,
	SettingCooldown,
	SettingMaxLatest,
	SettingMaxPageSize,
	SettingMaxBodyLength,
}

func validateSettings(st Settings) error {
	switch {
	case st.Capacity < 1:
		return newError(KindInvalidSetting, "capacity must be at least 1")
	case st.Cooldown < 0:
		return newError(KindInvalidSetting, "cooldown must not be negative")
	case st.MaxLatest < 1:
		return newError(KindInvalidSetting, "max_latest must be at least 1")
	case st.MaxPageSize < 1:
		return newError(KindInvalidSetting, "max_page_size must be at least 1")
	case st.MaxBodyLength < 1:
		return newError(KindInvalidSetting, "max_body_length must be at least 1")
	}
	return nil
}

// Settings returns the persisted board settings.
func (s *Store) Settings(ctx context.Context) (Settings, error) {
	var st Settings
	err := s.view(ctx, "settings", func(l *ledger) error {
		var err error
		st, err = l.settings()
		return err
	})
	return st, err
}

// SetCapacity changes the active-record ceiling. Lowering it below the current
// active count evicts the difference in the same step; the number of records
// evicted is returned.
func (s *Store) SetCapacity(ctx context.Context, actor string, capacity uint64) (uint64, error) {
	var evicted uint64
	err := s.changeSetting(ctx, actor, SettingCapacity, strconv.FormatUint(capacity, 10), func(l *ledger, st *Settings) error {
		st.Capacity = capacity
		if err := validateSettings(*st); err != nil {
			return err
		}
		if err := l.putSettings(*st); err != nil {
			return err
		}
		if total := l.meta(metaActiveTotal); total > capacity {
			var err error
			evicted, err = l.evict(total - capacity)
			return err
		}
		return nil
	})
	return evicted, err
}

// SetCooldown changes the minimum gap between an identity's posts.
func (s *Store) SetCooldown(ctx context.Context, actor string, cooldown time.Duration) error {
	return s.changeSetting(ctx, actor, SettingCooldown, cooldown.String(), func(l *ledger, st *Settings) error {
		st.Cooldown = cooldown
		return l.storeSettings(*st)
	})
}

// SetMaxLatest changes the cap on Latest.
func (s *Store) SetMaxLatest(ctx context.Context, actor string, n int) error {
	return s.changeSetting(ctx, actor, SettingMaxLatest, strconv.Itoa(n), func(l *ledger, st *Settings) error {
		st.MaxLatest = n
		return l.storeSettings(*st)
	})
}

// SetMaxPageSize changes the cap on Paginate's page size.
func (s *Store) SetMaxPageSize(ctx context.Context, actor string, n int) error {
	return s.changeSetting(ctx, actor, SettingMaxPageSize, strconv.Itoa(n), func(l *ledger, st *Settings) error {
		st.MaxPageSize = n
		return l.storeSettings(*st)
	})
}

// SetMaxBodyLength changes the body limit for new records. Existing records
// are not affected.
func (s *Store) SetMaxBodyLength(ctx context.Context, actor string, n int) error {
	return s.changeSetting(ctx, actor, SettingMaxBodyLength, strconv.Itoa(n), func(l *ledger, st *Settings) error {
		st.MaxBodyLength = n
		return l.storeSettings(*st)
	})
}

// ApplySetting parses value and applies it to the named setting. Durations
// use time.ParseDuration syntax.
func (s *Store) ApplySetting(ctx context.Context, actor, name, value string) error {
	switch name {
	case SettingCapacity:
		c, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return newError(KindInvalidSetting, "capacity %q: %v", value, err)
		}
		_, err = s.SetCapacity(ctx, actor, c)
		return err
	case SettingCooldown:
		d, err := time.ParseDuration(value)
		if err != nil {
			return newError(KindInvalidSetting, "cooldown %q: %v", value, err)
		}
		return s.SetCooldown(ctx, actor, d)
	case SettingMaxLatest, SettingMaxPageSize, SettingMaxBodyLength:
		n, err := strconv.Atoi(value)
		if err != nil {
			return newError(KindInvalidSetting, "%s %q: %v", name, value, err)
		}
		switch name {
		case SettingMaxLatest:
			return s.SetMaxLatest(ctx, actor, n)
		case SettingMaxPageSize:
			return s.SetMaxPageSize(ctx, actor, n)
		default:
			return s.SetMaxBodyLength(ctx, actor, n)
		}
	default:
		return newError(KindUnknownSetting, "no setting named %q", name)
	}
}

func (l *ledger) storeSettings(st Settings) error {
	if err := validateSettings(st); err != nil {
		return err
	}
	return l.putSettings(st)
}

// changeSetting runs fn as one admin step and queues config.changed ahead of
// any events fn emits.
func (s *Store) changeSetting(ctx context.Context, actor, name, value string, fn func(l *ledger, st *Settings) error) error {
	return s.update(ctx, "set_"+name, func(l *ledger) error {
		if !s.isAdmin(actor) {
			return newError(KindNotAuthorized, "%q may not change %s", actor, name)
		}
		st, err := l.settings()
		if err != nil {
			return err
		}

		l.emit(Event{
			Kind:  EventConfigChanged,
			Actor: actor,
			Param: name,
			Value: value,
		})
		return fn(l, &st)
	})
}
