// Package lifecycle is the single authority for order status transitions.
// Role gating lives in one transition table here; callers (including the UI
// via the actions endpoint) ask this package instead of re-deriving rules.
package lifecycle

import (
	"context"
	"fmt"

	"appraisal_portal_backend/internal/events"
	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/internal/orders/repository"
	"appraisal_portal_backend/platform/apperr"
	"appraisal_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// Action is a requested lifecycle operation on an order.
type Action string

const (
	ActionStartReview      Action = "start_review"
	ActionApprove          Action = "approve"
	ActionRequestRevisions Action = "request_revisions"
	ActionMarkReadyToSend  Action = "mark_ready_to_send"
	ActionSendToClient     Action = "send_to_client"
	ActionMarkComplete     Action = "mark_complete"
)

// actionOrder fixes the iteration order for AllowedActions.
var actionOrder = []Action{
	ActionStartReview,
	ActionApprove,
	ActionRequestRevisions,
	ActionMarkReadyToSend,
	ActionSendToClient,
	ActionMarkComplete,
}

// ParseAction validates a raw action string against the closed action set.
func ParseAction(raw string) (Action, error) {
	action := Action(raw)
	if _, ok := transitionRules[action]; !ok {
		return "", apperr.Validation(fmt.Sprintf("unknown action %q", raw))
	}
	return action, nil
}

// IllegalTransitionError reports a transition the gating table does not
// authorize for the given role and current status. It is never downgraded
// to a silent no-op.
type IllegalTransitionError struct {
	Action Action
	Status domain.Status
	Role   domain.Role
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot %s: order is %s and actor role is %s", e.Action, e.Status, e.Role)
}

// OverrideConfirmationRequiredError is returned when marking an order complete
// would bypass the review process and the caller has not confirmed the
// override yet.
type OverrideConfirmationRequiredError struct {
	Status domain.Status
}

func (e *OverrideConfirmationRequiredError) Error() string {
	return fmt.Sprintf("completing an order in status %s without an assigned reviewer bypasses review and requires explicit confirmation", e.Status)
}

type rule struct {
	roles    map[domain.Role]struct{}
	allowed  func(domain.Status) bool
	result   domain.Status
	eventKey string
}

var reviewerOrAdmin = map[domain.Role]struct{}{domain.RoleReviewer: {}, domain.RoleAdmin: {}}
var adminOnly = map[domain.Role]struct{}{domain.RoleAdmin: {}}

var transitionRules = map[Action]rule{
	ActionStartReview: {
		roles: reviewerOrAdmin,
		allowed: func(s domain.Status) bool {
			return s != domain.StatusInReview && s != domain.StatusComplete && s != domain.StatusCancelled
		},
		result:   domain.StatusInReview,
		eventKey: "order.sent_to_review",
	},
	ActionApprove: {
		roles:    reviewerOrAdmin,
		allowed:  func(s domain.Status) bool { return s == domain.StatusInReview },
		result:   domain.StatusReadyToSend,
		eventKey: "order.approved",
	},
	ActionRequestRevisions: {
		roles:    reviewerOrAdmin,
		allowed:  func(s domain.Status) bool { return s == domain.StatusInReview },
		result:   domain.StatusRevisions,
		eventKey: "order.revisions_requested",
	},
	ActionMarkReadyToSend: {
		roles:    reviewerOrAdmin,
		allowed:  func(s domain.Status) bool { return s == domain.StatusInReview || s == domain.StatusRevisions },
		result:   domain.StatusReadyToSend,
		eventKey: "order.ready_to_send",
	},
	ActionSendToClient: {
		roles:    adminOnly,
		allowed:  func(s domain.Status) bool { return s == domain.StatusReadyToSend },
		result:   domain.StatusComplete,
		eventKey: "order.sent_to_client",
	},
	ActionMarkComplete: {
		roles:    adminOnly,
		allowed:  func(s domain.Status) bool { return s != domain.StatusComplete && s != domain.StatusCancelled },
		result:   domain.StatusComplete,
		eventKey: "order.completed",
	},
}

// EmittableEventKeys lists every notification key the lifecycle can produce.
// The notification policy table is validated against this set at startup.
func EmittableEventKeys() []string {
	keys := make([]string, 0, len(actionOrder))
	for _, action := range actionOrder {
		keys = append(keys, transitionRules[action].eventKey)
	}
	return keys
}

// Actor identifies who requests a transition.
type Actor struct {
	ID   uuid.UUID
	Name string
	Role domain.Role
}

// Options carries the optional parts of a transition request.
type Options struct {
	// Note is appended to the activity trail as a separate entry when the
	// transition succeeds. On a gating failure the caller decides whether to
	// save the note on its own; it must not be lost either way.
	Note *string
	// ConfirmOverride acknowledges that completing the order bypasses review.
	ConfirmOverride bool
}

// Store is the persistence surface the lifecycle needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, prev, next domain.Status) error
	AppendActivity(ctx context.Context, p repository.AppendActivityParams) (repository.ActivityEvent, error)
}

type Service struct {
	store Store
	bus   events.Bus
	log   *logger.Logger
}

func NewService(store Store, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, bus: bus, log: log}
}

// AllowedActions returns the actions the gating table authorizes for the
// given status and role, in stable order.
func AllowedActions(status domain.Status, role domain.Role) []Action {
	allowed := make([]Action, 0, len(actionOrder))
	for _, action := range actionOrder {
		r := transitionRules[action]
		if _, ok := r.roles[role]; !ok {
			continue
		}
		if !r.allowed(status) {
			continue
		}
		allowed = append(allowed, action)
	}
	return allowed
}

// ApplyTransition validates and applies a lifecycle action. On success the
// order's status is persisted, a status_changed activity entry is recorded,
// and a domain event carrying the action's notification key is published.
// Notification side effects are downstream of the event and never influence
// the transition's outcome.
func (s *Service) ApplyTransition(ctx context.Context, orderID uuid.UUID, action Action, actor Actor, opts Options) (repository.Order, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return repository.Order{}, err
	}

	r, ok := transitionRules[action]
	if !ok {
		return repository.Order{}, apperr.Validation(fmt.Sprintf("unknown action %q", action))
	}
	if _, roleOK := r.roles[actor.Role]; !roleOK || !r.allowed(order.Status) {
		return repository.Order{}, &IllegalTransitionError{Action: action, Status: order.Status, Role: actor.Role}
	}

	override := false
	if action == ActionMarkComplete && order.ReviewerID == nil && order.Status != domain.StatusReadyToSend {
		if !opts.ConfirmOverride {
			return repository.Order{}, &OverrideConfirmationRequiredError{Status: order.Status}
		}
		override = true
	}

	prev := order.Status
	if err := s.store.UpdateStatus(ctx, order.ID, prev, r.result); err != nil {
		return repository.Order{}, err
	}
	order.Status = r.result

	detail := map[string]any{
		"prev_status": string(prev),
		"new_status":  string(r.result),
	}
	if override {
		detail["override"] = true
	}
	if action == ActionSendToClient {
		detail["sent_to_client"] = true
	}
	if _, err := s.store.AppendActivity(ctx, repository.AppendActivityParams{
		OrderID:   order.ID,
		EventType: repository.EventTypeStatusChanged,
		ActorID:   actor.ID,
		Detail:    detail,
	}); err != nil {
		return repository.Order{}, err
	}

	if opts.Note != nil && *opts.Note != "" {
		if _, err := s.store.AppendActivity(ctx, repository.AppendActivityParams{
			OrderID:   order.ID,
			EventType: repository.EventTypeNoteAdded,
			ActorID:   actor.ID,
			Message:   opts.Note,
		}); err != nil {
			return repository.Order{}, err
		}
	}

	s.log.Info("order transition applied",
		"orderId", order.ID,
		"action", string(action),
		"prevStatus", string(prev),
		"newStatus", string(order.Status),
		"actorRole", string(actor.Role),
		"override", override,
	)

	s.bus.Publish(ctx, events.OrderStatusChanged{
		BaseEvent:   events.NewBaseEvent(),
		OrderID:     order.ID,
		Reference:   order.Reference,
		ClientName:  order.ClientName,
		Address:     order.Address,
		PrevStatus:  string(prev),
		NewStatus:   string(order.Status),
		Key:         r.eventKey,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		ActorRole:   string(actor.Role),
		Override:    override,
		ReviewerID:  order.ReviewerID,
		AppraiserID: order.AppraiserID,
		ReviewDueAt: order.ReviewDueAt,
		FinalDueAt:  order.FinalDueAt,
	})

	return order, nil
}
