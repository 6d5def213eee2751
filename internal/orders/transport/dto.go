// Package transport holds the request/response shapes for the orders API.
package transport

import (
	"github.com/google/uuid"
)

// TransitionRequest asks for one lifecycle action on an order.
type TransitionRequest struct {
	Action string `json:"action" validate:"required"`
	// Note is an optional comment recorded on the activity trail. It is
	// preserved even when the transition itself is rejected.
	Note *string `json:"note" validate:"omitempty,max=4000"`
	// ConfirmOverride acknowledges that completing the order bypasses review.
	ConfirmOverride bool `json:"confirmOverride"`
}

// SetRouteRequest replaces the order's planned reviewer sequence.
type SetRouteRequest struct {
	Steps []RouteStepRequest `json:"steps" validate:"required,min=1,dive"`
}

// RouteStepRequest is one planned reviewer in a route request.
type RouteStepRequest struct {
	ReviewerID uuid.UUID `json:"reviewerId" validate:"required"`
}

// MoveStepRequest moves one route step up or down.
type MoveStepRequest struct {
	Direction string `json:"direction" validate:"required,oneof=up down"`
}

// AssignNextRequest triggers reviewer assignment. ReviewerID is only
// consulted when the order has no planned route.
type AssignNextRequest struct {
	ReviewerID *uuid.UUID `json:"reviewerId"`
}
