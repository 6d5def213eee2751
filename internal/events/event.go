// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"appraisal_portal_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Order Domain Events
// =============================================================================

// OrderStatusChanged is published whenever a lifecycle action moves an order
// to a new status. The event carries enough order context that notification
// handlers never have to read the orders module back.
type OrderStatusChanged struct {
	BaseEvent
	OrderID     uuid.UUID  `json:"orderId"`
	Reference   string     `json:"reference"`
	ClientName  string     `json:"clientName"`
	Address     string     `json:"address"`
	PrevStatus  string     `json:"prevStatus"`
	NewStatus   string     `json:"newStatus"`
	Key         string     `json:"key"`
	ActorID     uuid.UUID  `json:"actorId"`
	ActorName   string     `json:"actorName"`
	ActorRole   string     `json:"actorRole"`
	Override    bool       `json:"override,omitempty"`
	ReviewerID  *uuid.UUID `json:"reviewerId,omitempty"`
	AppraiserID *uuid.UUID `json:"appraiserId,omitempty"`
	ReviewDueAt *time.Time `json:"reviewDueAt,omitempty"`
	FinalDueAt  *time.Time `json:"finalDueAt,omitempty"`
}

// EventName returns the lifecycle-derived notification key so policy lookup
// and bus routing use the same identifier.
func (e OrderStatusChanged) EventName() string { return e.Key }

// OrderAssigned is published when a reviewer is assigned to an order.
type OrderAssigned struct {
	BaseEvent
	OrderID      uuid.UUID  `json:"orderId"`
	Reference    string     `json:"reference"`
	ClientName   string     `json:"clientName"`
	Address      string     `json:"address"`
	ReviewerID   uuid.UUID  `json:"reviewerId"`
	AppraiserID  *uuid.UUID `json:"appraiserId,omitempty"`
	AssignedByID uuid.UUID  `json:"assignedById"`
	ReviewDueAt  *time.Time `json:"reviewDueAt,omitempty"`
}

func (e OrderAssigned) EventName() string { return "order.new_assigned" }
