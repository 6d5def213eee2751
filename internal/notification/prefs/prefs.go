// Package prefs holds per-user notification preferences and the read-time
// suppression logic for DND and Snooze windows.
package prefs

import (
	"time"

	"github.com/google/uuid"
)

// ChannelToggles enables or disables channels for one notification category.
type ChannelToggles struct {
	InApp bool `json:"inApp"`
	Email bool `json:"email"`
}

// Preference is one user's notification configuration. DND and Snooze are
// independent; either being active suppresses the unread badge at read time
// but never blocks or deletes the underlying notification rows.
type Preference struct {
	UserID uuid.UUID `json:"userId"`

	DNDEnabled bool `json:"dndEnabled"`
	// DND window bounds as minutes since local midnight. The window may wrap
	// past midnight (start > end).
	DNDStartMinute int `json:"dndStartMinute"`
	DNDEndMinute   int `json:"dndEndMinute"`

	SnoozeUntil *time.Time `json:"snoozeUntil,omitempty"`

	// SelfActions opts the user in to notifications about their own actions.
	// Off by default.
	SelfActions bool `json:"selfActions"`

	Categories map[string]ChannelToggles `json:"categories"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// Default returns the preference applied to users who never saved one:
// no DND, no snooze, self-action notifications off, every category enabled
// on both channels.
func Default(userID uuid.UUID) Preference {
	return Preference{UserID: userID, Categories: map[string]ChannelToggles{}}
}

// CategoryInAppEnabled reports whether the in-app channel is enabled for a
// category. Categories the user never configured default to enabled.
func (p Preference) CategoryInAppEnabled(category string) bool {
	toggles, ok := p.Categories[category]
	if !ok {
		return true
	}
	return toggles.InApp
}

// CategoryEmailEnabled reports whether the email channel is enabled for a
// category. Categories the user never configured default to enabled.
func (p Preference) CategoryEmailEnabled(category string) bool {
	toggles, ok := p.Categories[category]
	if !ok {
		return true
	}
	return toggles.Email
}

// IsSuppressed reports whether the unread badge should be hidden right now.
// True while a snooze is pending or the current local time falls inside the
// DND window. Pure function of the preference and the clock; nothing is
// mutated when a snooze lapses.
func IsSuppressed(p Preference, now time.Time) bool {
	if p.SnoozeUntil != nil && now.Before(*p.SnoozeUntil) {
		return true
	}
	if !p.DNDEnabled {
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	start, end := p.DNDStartMinute, p.DNDEndMinute
	if start == end {
		return false
	}
	if start < end {
		return start <= minute && minute < end
	}
	// Window wraps past midnight.
	return minute >= start || minute < end
}
