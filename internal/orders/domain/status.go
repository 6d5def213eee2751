// Package domain holds the order status vocabulary and role definitions
// shared by the lifecycle, routing, and notification modules.
package domain

import "strings"

// Status is a canonical order workflow state.
type Status string

const (
	StatusNew             Status = "new"
	StatusInProgress      Status = "in_progress"
	StatusInReview        Status = "in_review"
	StatusRevisions       Status = "revisions"
	StatusReadyToSend     Status = "ready_to_send"
	StatusComplete        Status = "complete"
	StatusOnHold          Status = "on_hold"
	StatusHoldClient      Status = "hold_client"
	StatusWaitingOnClient Status = "waiting_on_client"
	StatusPaused          Status = "paused"
	StatusCancelled       Status = "cancelled"
)

// StatusGroup classifies statuses for badge coloring and activity filtering.
type StatusGroup string

const (
	GroupProgress StatusGroup = "progress"
	GroupReview   StatusGroup = "review"
	GroupReady    StatusGroup = "ready"
	GroupHold     StatusGroup = "hold"
	GroupComplete StatusGroup = "complete"
)

// statusAliases maps historical raw values seen in older records onto the
// canonical vocabulary. Keys are already lowercased and trimmed.
var statusAliases = map[string]Status{
	"completed":       StatusComplete,
	"done":            StatusComplete,
	"inprogress":      StatusInProgress,
	"in progress":     StatusInProgress,
	"in-progress":     StatusInProgress,
	"in review":       StatusInReview,
	"inreview":        StatusInReview,
	"under_review":    StatusInReview,
	"revision":        StatusRevisions,
	"needs_revisions": StatusRevisions,
	"ready":           StatusReadyToSend,
	"ready to send":   StatusReadyToSend,
	"hold":            StatusOnHold,
	"on hold":         StatusOnHold,
	"client_hold":     StatusHoldClient,
	"waiting":         StatusWaitingOnClient,
	"canceled":        StatusCancelled,
}

var statusGroups = map[Status]StatusGroup{
	StatusNew:             GroupProgress,
	StatusInProgress:      GroupProgress,
	StatusInReview:        GroupReview,
	StatusRevisions:       GroupReview,
	StatusReadyToSend:     GroupReady,
	StatusComplete:        GroupComplete,
	StatusOnHold:          GroupHold,
	StatusHoldClient:      GroupHold,
	StatusWaitingOnClient: GroupHold,
	StatusPaused:          GroupHold,
	StatusCancelled:       GroupComplete,
}

// Normalize maps a raw status string to its canonical form. Known historical
// aliases resolve to vocabulary members; unknown values are lowercased and
// trimmed but passed through unchanged so data drift stays visible instead of
// being silently coerced. Normalize is idempotent.
func Normalize(raw string) Status {
	cleaned := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := statusAliases[cleaned]; ok {
		return canonical
	}
	return Status(cleaned)
}

// IsCanonical reports whether s is a member of the canonical vocabulary.
func IsCanonical(s Status) bool {
	_, ok := statusGroups[s]
	return ok
}

// Group classifies a status into exactly one display group. Statuses outside
// the canonical vocabulary (drifted data) classify as progress so they remain
// visible in active views rather than vanishing.
func Group(s Status) StatusGroup {
	if group, ok := statusGroups[s]; ok {
		return group
	}
	return GroupProgress
}

// IsActive reports whether an order in this status still needs attention.
func IsActive(s Status) bool {
	return Group(s) != GroupComplete && s != StatusCancelled
}

// IsTerminal reports whether the lifecycle offers no further gated transition
// from this status. Administrative override remains possible past a terminal
// status and is recorded as such.
func IsTerminal(s Status) bool {
	return s == StatusComplete || s == StatusCancelled
}
