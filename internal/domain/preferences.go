package domain

import "time"

// QuietHours is a daily do-not-disturb window in the user's own timezone.
// Start may be greater than End to express a window crossing midnight.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"` // "HH:MM", 24h
	End      string `json:"end"`
	Timezone string `json:"timezone"` // IANA name, e.g. "America/Chicago"
}

// Active reports whether now (UTC) falls inside the quiet window, loaded
// in the user's timezone. A malformed timezone or time is treated as
// inactive rather than rejected, so a bad preference never blocks delivery.
func (q QuietHours) Active(now time.Time) bool {
	if !q.Enabled {
		return false
	}
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return false
	}
	local := now.In(loc)
	start, err := time.ParseInLocation("15:04", q.Start, loc)
	if err != nil {
		return false
	}
	end, err := time.ParseInLocation("15:04", q.End, loc)
	if err != nil {
		return false
	}
	cur := local.Hour()*60 + local.Minute()
	s := start.Hour()*60 + start.Minute()
	e := end.Hour()*60 + end.Minute()
	if s <= e {
		return cur >= s && cur < e
	}
	// window crosses midnight
	return cur >= s || cur < e
}

// DeferUntil returns the next moment the quiet window identified by q
// ends, in UTC, for a notification arriving at now that must wait out
// the window. Falls back to now (no deferral) if the window can't be
// evaluated.
func (q QuietHours) DeferUntil(now time.Time) time.Time {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return now
	}
	local := now.In(loc)
	end, err := time.ParseInLocation("15:04", q.End, loc)
	if err != nil {
		return now
	}
	candidate := time.Date(local.Year(), local.Month(), local.Day(), end.Hour(), end.Minute(), 0, 0, loc)
	if !candidate.After(local) {
		candidate = candidate.Add(24 * time.Hour)
	}
	return candidate.UTC()
}

// TypePreference holds a per-(user,type) override of channel mask and
// whether notifications of that type are exempt from quiet-hours deferral.
type TypePreference struct {
	ChannelMask    ChannelMask `json:"channel_mask"`
	QuietHoursExempt bool      `json:"quiet_hours_exempt"` // this type ignores quiet hours
}

// Preferences is a recipient's global notification configuration: a
// default channel mask, per-type overrides, a quiet-hours window, and a
// block list of sender IDs whose notifications are dropped outright.
type Preferences struct {
	UserID         string                               `json:"user_id"`
	EmailAddress   string                               `json:"email_address,omitempty"`
	DefaultMask    ChannelMask                          `json:"default_mask"`
	TypeOverrides  map[NotificationType]TypePreference  `json:"type_overrides,omitempty"`
	QuietHours     QuietHours                           `json:"quiet_hours"`
	BlockedSenders map[string]struct{}                  `json:"blocked_senders,omitempty"`
	UpdatedAt      time.Time                            `json:"updated_at"`
}

// DefaultPreferences returns an all-channels-on, no quiet-hours baseline,
// used when a recipient has never saved preferences.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:      userID,
		DefaultMask: NewChannelMask(ChannelInApp, ChannelPush, ChannelEmail),
	}
}

// IsBlocked reports whether senderID is on the recipient's block list.
func (p Preferences) IsBlocked(senderID string) bool {
	if senderID == "" {
		return false
	}
	_, blocked := p.BlockedSenders[senderID]
	return blocked
}

// EffectiveMask returns the channel mask a notification of type t is
// allowed to use: the per-type override if one exists, else the default.
func (p Preferences) EffectiveMask(t NotificationType) ChannelMask {
	if ov, ok := p.TypeOverrides[t]; ok {
		return ov.ChannelMask
	}
	return p.DefaultMask
}

// QuietHoursExempt reports whether the given type's override marks it
// exempt from quiet-hours suppression.
func (p Preferences) QuietHoursExempt(t NotificationType) bool {
	ov, ok := p.TypeOverrides[t]
	return ok && ov.QuietHoursExempt
}
