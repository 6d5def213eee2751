package routing

import (
	"context"
	"errors"
	"testing"

	"appraisal_portal_backend/internal/events"
	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/internal/orders/repository"
	"appraisal_portal_backend/platform/apperr"
	"appraisal_portal_backend/platform/logger"

	identityrepo "appraisal_portal_backend/internal/identity/repository"

	"github.com/google/uuid"
)

type fakeStore struct {
	order    repository.Order
	route    []repository.RouteStep
	activity []repository.AppendActivityParams
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (repository.Order, error) {
	return f.order, nil
}

func (f *fakeStore) SetReviewer(ctx context.Context, id uuid.UUID, reviewerID *uuid.UUID) error {
	f.order.ReviewerID = reviewerID
	return nil
}

func (f *fakeStore) SetRoute(ctx context.Context, id uuid.UUID, steps []repository.RouteStep) error {
	f.route = steps
	return nil
}

func (f *fakeStore) AppendActivity(ctx context.Context, p repository.AppendActivityParams) (repository.ActivityEvent, error) {
	f.activity = append(f.activity, p)
	return repository.ActivityEvent{}, nil
}

type fakeDirectory struct {
	users map[uuid.UUID]identityrepo.User
}

func (f *fakeDirectory) GetByID(ctx context.Context, id uuid.UUID) (identityrepo.User, error) {
	user, ok := f.users[id]
	if !ok {
		return identityrepo.User{}, apperr.NotFound("user not found")
	}
	return user, nil
}

type fakeBus struct {
	published []events.Event
}

func (f *fakeBus) Publish(ctx context.Context, event events.Event) {
	f.published = append(f.published, event)
}

func (f *fakeBus) PublishSync(ctx context.Context, event events.Event) error {
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) Subscribe(eventName string, handler events.Handler) {}

func newFixture(order repository.Order, users ...identityrepo.User) (*Service, *fakeStore, *fakeBus) {
	store := &fakeStore{order: order}
	directory := &fakeDirectory{users: make(map[uuid.UUID]identityrepo.User)}
	for _, u := range users {
		directory.users[u.ID] = u
	}
	bus := &fakeBus{}
	return NewService(store, directory, bus, logger.New("test")), store, bus
}

func reviewer(name string) identityrepo.User {
	return identityrepo.User{ID: uuid.New(), Name: name, Email: name + "@example.com", Role: domain.RoleReviewer}
}

func TestSetRouteRejectsEmpty(t *testing.T) {
	svc, _, _ := newFixture(repository.Order{ID: uuid.New()})

	err := svc.SetRoute(context.Background(), uuid.New(), nil)
	var invalid *InvalidRouteError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidRouteError, got %v", err)
	}
}

func TestSetRouteRejectsUnresolvableReviewer(t *testing.T) {
	known := reviewer("Nina")
	svc, store, _ := newFixture(repository.Order{ID: uuid.New()}, known)

	err := svc.SetRoute(context.Background(), store.order.ID, []repository.RouteStep{
		{ReviewerID: known.ID},
		{ReviewerID: uuid.New()},
	})
	var invalid *InvalidRouteError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidRouteError, got %v", err)
	}
	if store.route != nil {
		t.Fatalf("rejected route was persisted")
	}
}

func TestSetRouteRejectsNonReviewer(t *testing.T) {
	appraiser := identityrepo.User{ID: uuid.New(), Name: "Paul", Role: domain.RoleAppraiser}
	svc, _, _ := newFixture(repository.Order{ID: uuid.New()}, appraiser)

	err := svc.SetRoute(context.Background(), uuid.New(), []repository.RouteStep{{ReviewerID: appraiser.ID}})
	var invalid *InvalidRouteError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidRouteError, got %v", err)
	}
}

func TestSetRoutePersistsValidRoute(t *testing.T) {
	first, second := reviewer("Nina"), reviewer("Omar")
	svc, store, _ := newFixture(repository.Order{ID: uuid.New()}, first, second)

	steps := []repository.RouteStep{{ReviewerID: first.ID}, {ReviewerID: second.ID}}
	if err := svc.SetRoute(context.Background(), store.order.ID, steps); err != nil {
		t.Fatalf("SetRoute failed: %v", err)
	}
	if len(store.route) != 2 || store.route[0].ReviewerID != first.ID {
		t.Fatalf("persisted route = %v", store.route)
	}
}

func TestAssignNextFailsWhenAlreadyAssigned(t *testing.T) {
	current := uuid.New()
	svc, _, _ := newFixture(repository.Order{ID: uuid.New(), ReviewerID: &current})

	_, err := svc.AssignNext(context.Background(), uuid.New(), uuid.New(), nil)
	var already *AlreadyAssignedError
	if !errors.As(err, &already) {
		t.Fatalf("expected AlreadyAssignedError, got %v", err)
	}
	if already.ReviewerID != current {
		t.Fatalf("error names reviewer %s, want %s", already.ReviewerID, current)
	}
}

func TestAssignNextUsesFirstRouteStep(t *testing.T) {
	first, second := reviewer("Nina"), reviewer("Omar")
	order := repository.Order{
		ID:          uuid.New(),
		Reference:   "APR-2001",
		ReviewRoute: []repository.RouteStep{{ReviewerID: first.ID}, {ReviewerID: second.ID}},
	}
	svc, store, bus := newFixture(order, first, second)
	actorID := uuid.New()

	assigned, err := svc.AssignNext(context.Background(), order.ID, actorID, nil)
	if err != nil {
		t.Fatalf("AssignNext failed: %v", err)
	}
	if assigned.ID != first.ID {
		t.Fatalf("assigned %s, want first route step %s", assigned.ID, first.ID)
	}
	if store.order.ReviewerID == nil || *store.order.ReviewerID != first.ID {
		t.Fatalf("reviewer pointer not persisted")
	}
	if len(store.activity) != 1 || store.activity[0].EventType != repository.EventTypeAssigneeChanged {
		t.Fatalf("expected one assignee_changed entry, got %v", store.activity)
	}
	if len(bus.published) != 1 || bus.published[0].EventName() != "order.new_assigned" {
		t.Fatalf("expected order.new_assigned event, got %v", bus.published)
	}
	event := bus.published[0].(events.OrderAssigned)
	if event.ReviewerID != first.ID || event.AssignedByID != actorID {
		t.Fatalf("event = %+v", event)
	}
}

func TestAssignNextFallsBackToExplicitReviewer(t *testing.T) {
	pick := reviewer("Nina")
	svc, store, _ := newFixture(repository.Order{ID: uuid.New()}, pick)

	assigned, err := svc.AssignNext(context.Background(), store.order.ID, uuid.New(), &pick.ID)
	if err != nil {
		t.Fatalf("AssignNext with explicit reviewer failed: %v", err)
	}
	if assigned.ID != pick.ID {
		t.Fatalf("assigned %s, want %s", assigned.ID, pick.ID)
	}
}

func TestAssignNextWithoutRouteOrExplicitReviewer(t *testing.T) {
	svc, _, _ := newFixture(repository.Order{ID: uuid.New()})

	_, err := svc.AssignNext(context.Background(), uuid.New(), uuid.New(), nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMoveStep(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	steps := []repository.RouteStep{{ReviewerID: a}, {ReviewerID: b}, {ReviewerID: c}}

	moved := MoveStep(steps, 0, 1)
	if moved[0].ReviewerID != b || moved[1].ReviewerID != a {
		t.Fatalf("move down failed: %v", moved)
	}

	// Out-of-range moves are no-ops.
	for _, tc := range []struct{ idx, dir int }{{0, -1}, {2, 1}, {-1, 1}, {3, -1}} {
		same := MoveStep(steps, tc.idx, tc.dir)
		for i := range steps {
			if same[i] != steps[i] {
				t.Fatalf("MoveStep(%d, %d) mutated order: %v", tc.idx, tc.dir, same)
			}
		}
	}

	// The input slice itself is never mutated.
	if steps[0].ReviewerID != a {
		t.Fatalf("MoveStep mutated its input")
	}
}

func TestRemoveStep(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	steps := []repository.RouteStep{{ReviewerID: a}, {ReviewerID: b}, {ReviewerID: c}}

	removed := RemoveStep(steps, 1)
	if len(removed) != 2 || removed[0].ReviewerID != a || removed[1].ReviewerID != c {
		t.Fatalf("RemoveStep(1) = %v", removed)
	}

	for _, idx := range []int{-1, 3} {
		same := RemoveStep(steps, idx)
		if len(same) != 3 {
			t.Fatalf("RemoveStep(%d) changed length: %v", idx, same)
		}
	}

	if len(steps) != 3 {
		t.Fatalf("RemoveStep mutated its input")
	}
}
