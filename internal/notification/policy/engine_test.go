package policy

import (
	"context"
	"strings"
	"testing"

	identityrepo "appraisal_portal_backend/internal/identity/repository"
	"appraisal_portal_backend/internal/notification/inapp"
	"appraisal_portal_backend/internal/notification/outbox"
	"appraisal_portal_backend/internal/notification/prefs"
	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeInApp struct {
	sent []inapp.SendParams
}

func (f *fakeInApp) Send(ctx context.Context, p inapp.SendParams) error {
	f.sent = append(f.sent, p)
	return nil
}

type fakeQueue struct {
	inserted []outbox.InsertParams
}

func (f *fakeQueue) Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error) {
	f.inserted = append(f.inserted, p)
	return uuid.New(), nil
}

type fakePrefs struct {
	byUser map[uuid.UUID]prefs.Preference
}

func (f *fakePrefs) Get(ctx context.Context, userID uuid.UUID) (prefs.Preference, error) {
	if p, ok := f.byUser[userID]; ok {
		return p, nil
	}
	return prefs.Default(userID), nil
}

type fakeDirectory struct {
	users map[uuid.UUID]identityrepo.User
}

func (f *fakeDirectory) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]identityrepo.User, error) {
	out := make([]identityrepo.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type fixture struct {
	engine    *Engine
	inapp     *fakeInApp
	queue     *fakeQueue
	prefs     *fakePrefs
	directory *fakeDirectory
}

func newFixture(table Table) *fixture {
	f := &fixture{
		inapp:     &fakeInApp{},
		queue:     &fakeQueue{},
		prefs:     &fakePrefs{byUser: map[uuid.UUID]prefs.Preference{}},
		directory: &fakeDirectory{users: map[uuid.UUID]identityrepo.User{}},
	}
	f.engine = NewEngine(table, f.inapp, f.queue, f.prefs, f.directory, "https://portal.example.com", logger.New("test"))
	return f
}

func (f *fixture) addUser(role domain.Role) uuid.UUID {
	id := uuid.New()
	f.directory.users[id] = identityrepo.User{ID: id, Name: "User " + id.String()[:8], Email: id.String()[:8] + "@example.com", Role: role}
	return id
}

func testOrder() OrderContext {
	return OrderContext{OrderID: uuid.New(), Reference: "APR-1001", ClientName: "Acme Holdings", Address: "12 Main St"}
}

func TestEmitRequiredInAppRuleWritesExactlyOneRow(t *testing.T) {
	table := Table{
		EventNewAssigned: {
			Category: CategoryAssignment,
			Priority: PriorityHigh,
			Roles: map[domain.Role]RoleRule{
				domain.RoleAppraiser: {InApp: ChannelRule{Required: true}},
			},
		},
	}
	f := newFixture(table)
	appraiser := f.addUser(domain.RoleAppraiser)
	reviewer := f.addUser(domain.RoleReviewer)

	f.engine.Emit(context.Background(), EventNewAssigned, []Recipient{
		{UserID: appraiser, Role: domain.RoleAppraiser},
		{UserID: reviewer, Role: domain.RoleReviewer},
	}, testOrder(), nil, uuid.New(), "Admin Alice")

	if len(f.inapp.sent) != 1 {
		t.Fatalf("expected exactly one in-app row, got %d", len(f.inapp.sent))
	}
	if f.inapp.sent[0].UserID != appraiser {
		t.Fatalf("row written for %s, want appraiser %s", f.inapp.sent[0].UserID, appraiser)
	}
	if len(f.queue.inserted) != 0 {
		t.Fatalf("no email rule configured, but %d outbox rows enqueued", len(f.queue.inserted))
	}
}

func TestEmitMissingPolicyHasNoSideEffects(t *testing.T) {
	f := newFixture(Table{})
	user := f.addUser(domain.RoleReviewer)

	f.engine.Emit(context.Background(), EventApproved, []Recipient{
		{UserID: user, Role: domain.RoleReviewer},
	}, testOrder(), nil, uuid.New(), "Admin Alice")

	if len(f.inapp.sent) != 0 || len(f.queue.inserted) != 0 {
		t.Fatalf("missing policy must fail closed, got %d in-app and %d emails",
			len(f.inapp.sent), len(f.queue.inserted))
	}
}

func TestEmitEmailRuleEnqueuesOnePendingRow(t *testing.T) {
	f := newFixture(DefaultTable())
	reviewer := f.addUser(domain.RoleReviewer)

	f.engine.Emit(context.Background(), EventNewAssigned, []Recipient{
		{UserID: reviewer, Role: domain.RoleReviewer},
	}, testOrder(), nil, uuid.New(), "Admin Alice")

	if len(f.queue.inserted) != 1 {
		t.Fatalf("expected one outbox row, got %d", len(f.queue.inserted))
	}
	row := f.queue.inserted[0]
	if row.TemplateKey != "order_assigned" {
		t.Fatalf("template key = %q, want order_assigned", row.TemplateKey)
	}
	if row.Subject != "Order APR-1001 assigned to you" {
		t.Fatalf("subject = %q", row.Subject)
	}
	if !strings.Contains(row.ToEmail, "@example.com") {
		t.Fatalf("recipient email not resolved: %q", row.ToEmail)
	}
}

func TestEmitSelfActionSuppressedByDefault(t *testing.T) {
	f := newFixture(DefaultTable())
	reviewer := f.addUser(domain.RoleReviewer)

	// The reviewer triggers the event themselves.
	f.engine.Emit(context.Background(), EventSentToReview, []Recipient{
		{UserID: reviewer, Role: domain.RoleReviewer},
	}, testOrder(), nil, reviewer, "Reviewer Nina")

	if len(f.inapp.sent) != 0 || len(f.queue.inserted) != 0 {
		t.Fatalf("self-action must be suppressed without opt-in")
	}
}

func TestEmitSelfActionDeliveredWhenOptedIn(t *testing.T) {
	f := newFixture(DefaultTable())
	reviewer := f.addUser(domain.RoleReviewer)
	pref := prefs.Default(reviewer)
	pref.SelfActions = true
	f.prefs.byUser[reviewer] = pref

	f.engine.Emit(context.Background(), EventSentToReview, []Recipient{
		{UserID: reviewer, Role: domain.RoleReviewer},
	}, testOrder(), nil, reviewer, "Reviewer Nina")

	if len(f.inapp.sent) != 1 {
		t.Fatalf("opted-in self-action should deliver, got %d rows", len(f.inapp.sent))
	}
}

func TestEmitCategoryToggleDisablesDefaultEmailOnly(t *testing.T) {
	f := newFixture(DefaultTable())
	appraiser := f.addUser(domain.RoleAppraiser)
	pref := prefs.Default(appraiser)
	pref.Categories[CategoryWorkflow] = prefs.ChannelToggles{InApp: true, Email: false}
	f.prefs.byUser[appraiser] = pref

	// order.approved: appraiser email is default, not required.
	f.engine.Emit(context.Background(), EventApproved, []Recipient{
		{UserID: appraiser, Role: domain.RoleAppraiser},
	}, testOrder(), nil, uuid.New(), "Reviewer Nina")

	if len(f.inapp.sent) != 1 {
		t.Fatalf("in-app row must still be written, got %d", len(f.inapp.sent))
	}
	if len(f.queue.inserted) != 0 {
		t.Fatalf("default email should honor the category opt-out")
	}

	// order.revisions_requested: appraiser email is required and overrides
	// the opt-out.
	f.engine.Emit(context.Background(), EventRevisionsRequested, []Recipient{
		{UserID: appraiser, Role: domain.RoleAppraiser},
	}, testOrder(), nil, uuid.New(), "Reviewer Nina")

	if len(f.queue.inserted) != 1 {
		t.Fatalf("required email must override the category opt-out")
	}
}

func TestEmitAnonymizedEventNeverNamesActor(t *testing.T) {
	f := newFixture(DefaultTable())
	reviewer := f.addUser(domain.RoleReviewer)

	f.engine.Emit(context.Background(), EventNewAssigned, []Recipient{
		{UserID: reviewer, Role: domain.RoleReviewer},
	}, testOrder(), nil, uuid.New(), "Admin Alice")

	if len(f.inapp.sent) != 1 {
		t.Fatalf("expected one in-app row, got %d", len(f.inapp.sent))
	}
	if strings.Contains(f.inapp.sent[0].Body, "Admin Alice") {
		t.Fatalf("assignment body leaks the acting admin: %q", f.inapp.sent[0].Body)
	}
}

func TestTableValidate(t *testing.T) {
	table := DefaultTable()
	emittable := []string{
		"order.sent_to_review", "order.approved", "order.revisions_requested",
		"order.ready_to_send", "order.sent_to_client", "order.completed",
		"order.new_assigned",
	}
	if err := table.Validate(emittable); err != nil {
		t.Fatalf("default table should cover all emittable keys: %v", err)
	}

	if err := table.Validate([]string{"order.vanished"}); err == nil {
		t.Fatalf("expected validation failure for unconfigured emittable key")
	}

	broken := Table{EventKey("nodot"): {Category: "x", Roles: map[domain.Role]RoleRule{domain.RoleAdmin: {}}}}
	if err := broken.Validate(nil); err == nil {
		t.Fatalf("expected validation failure for malformed key")
	}
}

func TestTemplateKeyFor(t *testing.T) {
	tests := []struct {
		key  EventKey
		want string
	}{
		{EventNewAssigned, "order_assigned"},
		{EventSentToReview, "order_sent_to_review"},
		{EventCompleted, "order_completed"},
	}
	for _, tc := range tests {
		if got := TemplateKeyFor(tc.key); got != tc.want {
			t.Errorf("TemplateKeyFor(%s) = %q, want %q", tc.key, got, tc.want)
		}
	}
}
