package lifecycle

import (
	"context"
	"errors"
	"testing"

	"appraisal_portal_backend/internal/events"
	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/internal/orders/repository"
	"appraisal_portal_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	order    repository.Order
	activity []repository.AppendActivityParams
}

func (f *fakeStore) GetByID(ctx context.Context, id uuid.UUID) (repository.Order, error) {
	return f.order, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id uuid.UUID, prev, next domain.Status) error {
	if f.order.Status != prev {
		return errors.New("status changed concurrently")
	}
	f.order.Status = next
	return nil
}

func (f *fakeStore) AppendActivity(ctx context.Context, p repository.AppendActivityParams) (repository.ActivityEvent, error) {
	f.activity = append(f.activity, p)
	return repository.ActivityEvent{OrderID: p.OrderID, EventType: p.EventType}, nil
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

func newTestService(order repository.Order) (*Service, *fakeStore, *fakeBus) {
	store := &fakeStore{order: order}
	bus := &fakeBus{}
	return NewService(store, bus, logger.New("test")), store, bus
}

func testOrder(status domain.Status, reviewerAssigned bool) repository.Order {
	order := repository.Order{
		ID:         uuid.New(),
		Reference:  "APR-1001",
		ClientName: "Acme Holdings",
		Address:    "12 Main St",
		Status:     status,
	}
	if reviewerAssigned {
		reviewer := uuid.New()
		order.ReviewerID = &reviewer
	}
	return order
}

var allStatuses = []domain.Status{
	domain.StatusNew, domain.StatusInProgress, domain.StatusInReview,
	domain.StatusRevisions, domain.StatusReadyToSend, domain.StatusComplete,
	domain.StatusOnHold, domain.StatusHoldClient, domain.StatusWaitingOnClient,
	domain.StatusPaused, domain.StatusCancelled,
}

var allRoles = []domain.Role{domain.RoleAdmin, domain.RoleReviewer, domain.RoleAppraiser, domain.RoleClient}

// expectedResult mirrors the documented gating table independently of the
// implementation: it returns the resulting status and true when the triple is
// authorized, or false when it must be rejected.
func expectedResult(action Action, status domain.Status, role domain.Role) (domain.Status, bool) {
	reviewerOrAdmin := role == domain.RoleReviewer || role == domain.RoleAdmin
	admin := role == domain.RoleAdmin
	terminal := status == domain.StatusComplete || status == domain.StatusCancelled

	switch action {
	case ActionStartReview:
		if reviewerOrAdmin && status != domain.StatusInReview && !terminal {
			return domain.StatusInReview, true
		}
	case ActionApprove:
		if reviewerOrAdmin && status == domain.StatusInReview {
			return domain.StatusReadyToSend, true
		}
	case ActionRequestRevisions:
		if reviewerOrAdmin && status == domain.StatusInReview {
			return domain.StatusRevisions, true
		}
	case ActionMarkReadyToSend:
		if reviewerOrAdmin && (status == domain.StatusInReview || status == domain.StatusRevisions) {
			return domain.StatusReadyToSend, true
		}
	case ActionSendToClient:
		if admin && status == domain.StatusReadyToSend {
			return domain.StatusComplete, true
		}
	case ActionMarkComplete:
		if admin && !terminal {
			return domain.StatusComplete, true
		}
	}
	return "", false
}

// TestApplyTransitionGrid checks every (status, role, action) triple: the
// transition either lands on exactly the table's resulting status or fails
// with IllegalTransitionError. There is no third outcome.
func TestApplyTransitionGrid(t *testing.T) {
	for _, status := range allStatuses {
		for _, role := range allRoles {
			for _, action := range actionOrder {
				// Reviewer always assigned so the override branch stays out
				// of the grid; it has its own tests below.
				svc, store, bus := newTestService(testOrder(status, true))
				actor := Actor{ID: uuid.New(), Name: "Grid Actor", Role: role}

				updated, err := svc.ApplyTransition(context.Background(), store.order.ID, action, actor, Options{})
				want, ok := expectedResult(action, status, role)

				if ok {
					if err != nil {
						t.Errorf("(%s, %s, %s): unexpected error %v", status, role, action, err)
						continue
					}
					if updated.Status != want {
						t.Errorf("(%s, %s, %s): status = %s, want %s", status, role, action, updated.Status, want)
					}
					if len(bus.published) != 1 {
						t.Errorf("(%s, %s, %s): published %d events, want 1", status, role, action, len(bus.published))
					}
					if len(store.activity) != 1 || store.activity[0].EventType != repository.EventTypeStatusChanged {
						t.Errorf("(%s, %s, %s): expected exactly one status_changed activity entry", status, role, action)
					}
					continue
				}

				var illegal *IllegalTransitionError
				if !errors.As(err, &illegal) {
					t.Errorf("(%s, %s, %s): got %v, want IllegalTransitionError", status, role, action, err)
					continue
				}
				if store.order.Status != status {
					t.Errorf("(%s, %s, %s): rejected transition mutated status to %s", status, role, action, store.order.Status)
				}
				if len(store.activity) != 0 || len(bus.published) != 0 {
					t.Errorf("(%s, %s, %s): rejected transition produced side effects", status, role, action)
				}
			}
		}
	}
}

func TestMarkCompleteOverrideRequiresConfirmation(t *testing.T) {
	svc, store, _ := newTestService(testOrder(domain.StatusInProgress, false))
	actor := Actor{ID: uuid.New(), Name: "Admin", Role: domain.RoleAdmin}

	_, err := svc.ApplyTransition(context.Background(), store.order.ID, ActionMarkComplete, actor, Options{})
	var confirm *OverrideConfirmationRequiredError
	if !errors.As(err, &confirm) {
		t.Fatalf("expected OverrideConfirmationRequiredError, got %v", err)
	}
	if store.order.Status != domain.StatusInProgress {
		t.Fatalf("unconfirmed override mutated status to %s", store.order.Status)
	}
}

func TestMarkCompleteOverrideFlagsActivity(t *testing.T) {
	svc, store, bus := newTestService(testOrder(domain.StatusInProgress, false))
	actor := Actor{ID: uuid.New(), Name: "Admin", Role: domain.RoleAdmin}

	updated, err := svc.ApplyTransition(context.Background(), store.order.ID, ActionMarkComplete, actor, Options{ConfirmOverride: true})
	if err != nil {
		t.Fatalf("confirmed override failed: %v", err)
	}
	if updated.Status != domain.StatusComplete {
		t.Fatalf("status = %s, want complete", updated.Status)
	}
	if len(store.activity) != 1 {
		t.Fatalf("expected one activity entry, got %d", len(store.activity))
	}
	if flagged, _ := store.activity[0].Detail["override"].(bool); !flagged {
		t.Fatalf("override completion not flagged in activity detail: %v", store.activity[0].Detail)
	}

	if len(bus.published) != 1 {
		t.Fatalf("expected one published event, got %d", len(bus.published))
	}
	event, ok := bus.published[0].(events.OrderStatusChanged)
	if !ok {
		t.Fatalf("published event has unexpected type %T", bus.published[0])
	}
	if !event.Override || event.EventName() != "order.completed" {
		t.Fatalf("event = %+v, want override completed event", event)
	}
}

func TestMarkCompleteFromReadyToSendNeedsNoConfirmation(t *testing.T) {
	svc, store, _ := newTestService(testOrder(domain.StatusReadyToSend, false))
	actor := Actor{ID: uuid.New(), Name: "Admin", Role: domain.RoleAdmin}

	updated, err := svc.ApplyTransition(context.Background(), store.order.ID, ActionMarkComplete, actor, Options{})
	if err != nil {
		t.Fatalf("completion from ready_to_send failed: %v", err)
	}
	if updated.Status != domain.StatusComplete {
		t.Fatalf("status = %s, want complete", updated.Status)
	}
	if flagged, _ := store.activity[0].Detail["override"].(bool); flagged {
		t.Fatalf("completion from ready_to_send must not be flagged as override")
	}
}

func TestSendToClientRecordsDistinctSignal(t *testing.T) {
	svc, store, bus := newTestService(testOrder(domain.StatusReadyToSend, true))
	actor := Actor{ID: uuid.New(), Name: "Admin", Role: domain.RoleAdmin}

	_, err := svc.ApplyTransition(context.Background(), store.order.ID, ActionSendToClient, actor, Options{})
	if err != nil {
		t.Fatalf("send to client failed: %v", err)
	}
	if flagged, _ := store.activity[0].Detail["sent_to_client"].(bool); !flagged {
		t.Fatalf("send to client not marked in activity detail")
	}
	if bus.published[0].EventName() != "order.sent_to_client" {
		t.Fatalf("event key = %s, want order.sent_to_client", bus.published[0].EventName())
	}
}

func TestApplyTransitionAppendsNote(t *testing.T) {
	svc, store, _ := newTestService(testOrder(domain.StatusInReview, true))
	actor := Actor{ID: uuid.New(), Name: "Reviewer", Role: domain.RoleReviewer}
	note := "comps look thin for unit 4B"

	_, err := svc.ApplyTransition(context.Background(), store.order.ID, ActionApprove, actor, Options{Note: &note})
	if err != nil {
		t.Fatalf("approve with note failed: %v", err)
	}
	if len(store.activity) != 2 {
		t.Fatalf("expected status_changed plus note_added, got %d entries", len(store.activity))
	}
	if store.activity[1].EventType != repository.EventTypeNoteAdded || *store.activity[1].Message != note {
		t.Fatalf("note entry = %+v", store.activity[1])
	}
}

func TestAllowedActions(t *testing.T) {
	tests := []struct {
		status domain.Status
		role   domain.Role
		want   []Action
	}{
		{domain.StatusInReview, domain.RoleReviewer, []Action{ActionApprove, ActionRequestRevisions, ActionMarkReadyToSend}},
		{domain.StatusReadyToSend, domain.RoleAdmin, []Action{ActionStartReview, ActionSendToClient, ActionMarkComplete}},
		{domain.StatusComplete, domain.RoleAdmin, nil},
		{domain.StatusNew, domain.RoleAppraiser, nil},
		{domain.StatusNew, domain.RoleReviewer, []Action{ActionStartReview}},
	}

	for _, tc := range tests {
		got := AllowedActions(tc.status, tc.role)
		if len(got) != len(tc.want) {
			t.Errorf("AllowedActions(%s, %s) = %v, want %v", tc.status, tc.role, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("AllowedActions(%s, %s) = %v, want %v", tc.status, tc.role, got, tc.want)
				break
			}
		}
	}
}
