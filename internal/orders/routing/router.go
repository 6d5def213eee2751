// Package routing manages an order's planned reviewer sequence and the
// currently assigned reviewer pointer.
package routing

import (
	"context"
	"fmt"

	"appraisal_portal_backend/internal/events"
	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/internal/orders/repository"
	"appraisal_portal_backend/platform/apperr"
	"appraisal_portal_backend/platform/logger"

	identityrepo "appraisal_portal_backend/internal/identity/repository"

	"github.com/google/uuid"
)

// InvalidRouteError reports a route that cannot be saved.
type InvalidRouteError struct {
	Reason string
}

func (e *InvalidRouteError) Error() string {
	return fmt.Sprintf("invalid review route: %s", e.Reason)
}

// AlreadyAssignedError reports an assignment attempt on an order that already
// has a reviewer. Re-running assignment is a conscious action, not automatic.
type AlreadyAssignedError struct {
	ReviewerID uuid.UUID
}

func (e *AlreadyAssignedError) Error() string {
	return fmt.Sprintf("order already assigned to reviewer %s", e.ReviewerID)
}

// Store is the persistence surface the router needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (repository.Order, error)
	SetReviewer(ctx context.Context, id uuid.UUID, reviewerID *uuid.UUID) error
	SetRoute(ctx context.Context, id uuid.UUID, steps []repository.RouteStep) error
	AppendActivity(ctx context.Context, p repository.AppendActivityParams) (repository.ActivityEvent, error)
}

// Directory resolves reviewer references against the user directory.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (identityrepo.User, error)
}

type Service struct {
	store     Store
	directory Directory
	bus       events.Bus
	log       *logger.Logger
}

func NewService(store Store, directory Directory, bus events.Bus, log *logger.Logger) *Service {
	return &Service{store: store, directory: directory, bus: bus, log: log}
}

// SetRoute replaces the order's planned reviewer sequence. Every step must
// reference a resolvable user holding the reviewer role. The currently
// assigned reviewer is deliberately left untouched.
func (s *Service) SetRoute(ctx context.Context, orderID uuid.UUID, steps []repository.RouteStep) error {
	if len(steps) == 0 {
		return &InvalidRouteError{Reason: "route has no steps"}
	}

	for i, step := range steps {
		if step.ReviewerID == uuid.Nil {
			return &InvalidRouteError{Reason: fmt.Sprintf("step %d has no reviewer", i)}
		}
		user, err := s.directory.GetByID(ctx, step.ReviewerID)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return &InvalidRouteError{Reason: fmt.Sprintf("step %d references unknown reviewer %s", i, step.ReviewerID)}
			}
			return err
		}
		if user.Role != domain.RoleReviewer && user.Role != domain.RoleAdmin {
			return &InvalidRouteError{Reason: fmt.Sprintf("step %d references %s, who is not a reviewer", i, user.Name)}
		}
	}

	return s.store.SetRoute(ctx, orderID, steps)
}

// AssignNext assigns the order's reviewer pointer. When a route exists the
// first step wins; without a route the caller must supply a reviewer
// explicitly. Fails with AlreadyAssignedError when a reviewer is set.
func (s *Service) AssignNext(ctx context.Context, orderID uuid.UUID, actorID uuid.UUID, explicit *uuid.UUID) (identityrepo.User, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return identityrepo.User{}, err
	}
	if order.ReviewerID != nil {
		return identityrepo.User{}, &AlreadyAssignedError{ReviewerID: *order.ReviewerID}
	}

	var candidate uuid.UUID
	switch {
	case len(order.ReviewRoute) > 0:
		candidate = order.ReviewRoute[0].ReviewerID
	case explicit != nil && *explicit != uuid.Nil:
		candidate = *explicit
	default:
		return identityrepo.User{}, apperr.Validation("no review route configured and no reviewer supplied")
	}

	reviewer, err := s.directory.GetByID(ctx, candidate)
	if err != nil {
		return identityrepo.User{}, err
	}

	if err := s.store.SetReviewer(ctx, order.ID, &reviewer.ID); err != nil {
		return identityrepo.User{}, err
	}

	if _, err := s.store.AppendActivity(ctx, repository.AppendActivityParams{
		OrderID:   order.ID,
		EventType: repository.EventTypeAssigneeChanged,
		ActorID:   actorID,
		Detail:    map[string]any{"reviewer_id": reviewer.ID.String(), "reviewer_name": reviewer.Name},
	}); err != nil {
		return identityrepo.User{}, err
	}

	s.log.Info("reviewer assigned", "orderId", order.ID, "reviewerId", reviewer.ID)

	s.bus.Publish(ctx, events.OrderAssigned{
		BaseEvent:    events.NewBaseEvent(),
		OrderID:      order.ID,
		Reference:    order.Reference,
		ClientName:   order.ClientName,
		Address:      order.Address,
		ReviewerID:   reviewer.ID,
		AppraiserID:  order.AppraiserID,
		AssignedByID: actorID,
		ReviewDueAt:  order.ReviewDueAt,
	})

	return reviewer, nil
}

// MoveRouteStep moves one route step up or down and persists the result.
// Out-of-range moves persist the route unchanged.
func (s *Service) MoveRouteStep(ctx context.Context, orderID uuid.UUID, idx, direction int) ([]repository.RouteStep, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	steps := MoveStep(order.ReviewRoute, idx, direction)
	if err := s.store.SetRoute(ctx, orderID, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// RemoveRouteStep removes one route step and persists the result. Removing the
// last step leaves the order with an empty route.
func (s *Service) RemoveRouteStep(ctx context.Context, orderID uuid.UUID, idx int) ([]repository.RouteStep, error) {
	order, err := s.store.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	steps := RemoveStep(order.ReviewRoute, idx)
	if err := s.store.SetRoute(ctx, orderID, steps); err != nil {
		return nil, err
	}
	return steps, nil
}

// MoveStep returns a copy of steps with the step at idx moved one position in
// the given direction (-1 up, +1 down). Out-of-range moves are a no-op copy.
func MoveStep(steps []repository.RouteStep, idx, direction int) []repository.RouteStep {
	result := make([]repository.RouteStep, len(steps))
	copy(result, steps)

	target := idx + direction
	if idx < 0 || idx >= len(result) || target < 0 || target >= len(result) {
		return result
	}
	result[idx], result[target] = result[target], result[idx]
	return result
}

// RemoveStep returns a copy of steps without the step at idx. Out-of-range
// indices are a no-op copy.
func RemoveStep(steps []repository.RouteStep, idx int) []repository.RouteStep {
	if idx < 0 || idx >= len(steps) {
		result := make([]repository.RouteStep, len(steps))
		copy(result, steps)
		return result
	}
	result := make([]repository.RouteStep, 0, len(steps)-1)
	result = append(result, steps[:idx]...)
	return append(result, steps[idx+1:]...)
}
