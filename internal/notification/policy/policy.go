// Package policy decides, per event and recipient role, which notification
// channels fire. The table is process-wide, loaded at startup, and validated
// against every event key the workflow can emit so a missing policy is caught
// at boot instead of at emission time.
package policy

import (
	"fmt"
	"strings"

	"appraisal_portal_backend/internal/orders/domain"
)

// EventKey identifies a notifiable domain event.
type EventKey string

const (
	EventSentToReview       EventKey = "order.sent_to_review"
	EventApproved           EventKey = "order.approved"
	EventRevisionsRequested EventKey = "order.revisions_requested"
	EventReadyToSend        EventKey = "order.ready_to_send"
	EventSentToClient       EventKey = "order.sent_to_client"
	EventCompleted          EventKey = "order.completed"
	EventNewAssigned        EventKey = "order.new_assigned"
)

// ParseEventKey validates a raw key string.
func ParseEventKey(raw string) (EventKey, error) {
	key := EventKey(strings.TrimSpace(raw))
	if key == "" || !strings.Contains(string(key), ".") {
		return "", fmt.Errorf("invalid event key %q", raw)
	}
	return key, nil
}

// ChannelRule controls one channel for one role.
// Required overrides any user-level opt-out; Default is subject to the
// recipient's own category toggle.
type ChannelRule struct {
	Default  bool
	Required bool
}

// Active reports whether the channel fires at all for this role.
func (r ChannelRule) Active() bool {
	return r.Required || r.Default
}

// RoleRule holds the per-channel rules for one recipient role.
type RoleRule struct {
	InApp ChannelRule
	Email ChannelRule
}

// Policy is the notification decision table for a single event key.
type Policy struct {
	Category string
	Priority string
	// Anonymized bodies never name the acting user, e.g. assignment
	// notifications must not reveal which admin assigned the order.
	Anonymized bool
	Roles      map[domain.Role]RoleRule
}

// Table maps event keys to their policies.
type Table map[EventKey]Policy

// Validate checks that every emittable event key resolves to a policy and
// that every policy is well formed. Run at startup; a failure here means the
// process must not come up.
func (t Table) Validate(emittable []string) error {
	for key, p := range t {
		if _, err := ParseEventKey(string(key)); err != nil {
			return err
		}
		if p.Category == "" {
			return fmt.Errorf("policy %s has no category", key)
		}
		if len(p.Roles) == 0 {
			return fmt.Errorf("policy %s mentions no roles", key)
		}
	}
	for _, raw := range emittable {
		if _, ok := t[EventKey(raw)]; !ok {
			return fmt.Errorf("no notification policy configured for emittable event %q", raw)
		}
	}
	return nil
}

const (
	CategoryWorkflow   = "workflow"
	CategoryAssignment = "assignment"

	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// DefaultTable is the shipped policy configuration.
func DefaultTable() Table {
	return Table{
		EventSentToReview: {
			Category: CategoryWorkflow,
			Priority: PriorityNormal,
			Roles: map[domain.Role]RoleRule{
				domain.RoleReviewer:  {InApp: ChannelRule{Required: true}, Email: ChannelRule{Default: true}},
				domain.RoleAppraiser: {InApp: ChannelRule{Default: true}},
				domain.RoleAdmin:     {InApp: ChannelRule{Default: true}},
			},
		},
		EventApproved: {
			Category: CategoryWorkflow,
			Priority: PriorityNormal,
			Roles: map[domain.Role]RoleRule{
				domain.RoleAppraiser: {InApp: ChannelRule{Default: true}, Email: ChannelRule{Default: true}},
				domain.RoleAdmin:     {InApp: ChannelRule{Default: true}},
			},
		},
		EventRevisionsRequested: {
			Category: CategoryWorkflow,
			Priority: PriorityHigh,
			Roles: map[domain.Role]RoleRule{
				domain.RoleAppraiser: {InApp: ChannelRule{Required: true}, Email: ChannelRule{Required: true}},
				domain.RoleAdmin:     {InApp: ChannelRule{Default: true}},
			},
		},
		EventReadyToSend: {
			Category: CategoryWorkflow,
			Priority: PriorityNormal,
			Roles: map[domain.Role]RoleRule{
				domain.RoleAdmin: {InApp: ChannelRule{Required: true}, Email: ChannelRule{Default: true}},
			},
		},
		EventSentToClient: {
			Category: CategoryWorkflow,
			Priority: PriorityNormal,
			Roles: map[domain.Role]RoleRule{
				domain.RoleAppraiser: {InApp: ChannelRule{Default: true}},
				domain.RoleReviewer:  {InApp: ChannelRule{Default: true}},
				domain.RoleAdmin:     {InApp: ChannelRule{Default: true}},
			},
		},
		EventCompleted: {
			Category: CategoryWorkflow,
			Priority: PriorityNormal,
			Roles: map[domain.Role]RoleRule{
				domain.RoleAppraiser: {InApp: ChannelRule{Default: true}, Email: ChannelRule{Default: true}},
				domain.RoleReviewer:  {InApp: ChannelRule{Default: true}},
				domain.RoleAdmin:     {InApp: ChannelRule{Default: true}},
			},
		},
		EventNewAssigned: {
			Category:   CategoryAssignment,
			Priority:   PriorityHigh,
			Anonymized: true,
			Roles: map[domain.Role]RoleRule{
				domain.RoleReviewer:  {InApp: ChannelRule{Required: true}, Email: ChannelRule{Required: true}},
				domain.RoleAppraiser: {InApp: ChannelRule{Default: true}},
			},
		},
	}
}
