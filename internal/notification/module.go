// Package notification fans order workflow events out to in-app rows and
// queued emails. It subscribes to domain events and inverts the dependency:
// the orders module never knows about channels, policies, or SMTP.
package notification

import (
	"context"

	"appraisal_portal_backend/internal/events"
	apphttp "appraisal_portal_backend/internal/http"
	identityrepo "appraisal_portal_backend/internal/identity/repository"
	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/internal/orders/lifecycle"
	notifhandler "appraisal_portal_backend/internal/notification/handler"
	"appraisal_portal_backend/internal/notification/inapp"
	"appraisal_portal_backend/internal/notification/outbox"
	"appraisal_portal_backend/internal/notification/policy"
	"appraisal_portal_backend/internal/notification/prefs"
	"appraisal_portal_backend/platform/config"
	"appraisal_portal_backend/platform/logger"
	"appraisal_portal_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module owns the notification decision pipeline: policy lookup, preference
// evaluation, in-app writes, and email outbox enqueueing.
type Module struct {
	cfg       config.NotificationConfig
	log       *logger.Logger
	engine    *policy.Engine
	directory *identityrepo.Repository
	inAppSvc  *inapp.Service
	outbox    *outbox.Repository
	handler   *notifhandler.HTTPHandler
}

// New wires the notification module. The policy table is validated against
// every event key the lifecycle can emit, so a policy gap fails the boot
// instead of silently dropping events later.
func New(pool *pgxpool.Pool, cfg config.NotificationConfig, val *validator.Validator, log *logger.Logger) (*Module, error) {
	table := policy.DefaultTable()
	emittable := append(lifecycle.EmittableEventKeys(), string(policy.EventNewAssigned))
	if err := table.Validate(emittable); err != nil {
		return nil, err
	}

	prefRepo := prefs.NewRepository(pool)
	inAppRepo := inapp.NewRepository(pool)
	inAppSvc := inapp.NewService(inAppRepo, prefRepo, log)
	outboxRepo := outbox.New(pool)
	directory := identityrepo.New(pool)

	engine := policy.NewEngine(table, inAppSvc, outboxRepo, prefRepo, directory, cfg.GetAppBaseURL(), log)

	return &Module{
		cfg:       cfg,
		log:       log,
		engine:    engine,
		directory: directory,
		inAppSvc:  inAppSvc,
		outbox:    outboxRepo,
		handler:   notifhandler.NewHTTPHandler(inAppSvc, prefRepo, outboxRepo, val),
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	notifications := ctx.Protected.Group("/notifications")
	m.handler.RegisterRoutes(notifications)

	preferences := ctx.Protected.Group("/notification-preferences")
	m.handler.RegisterPreferenceRoutes(preferences)

	m.handler.RegisterAdminRoutes(ctx.Admin)
}

// InAppService exposes the in-app notification service for integration points.
func (m *Module) InAppService() *inapp.Service { return m.inAppSvc }

// Outbox exposes the email outbox repository for the delivery worker.
func (m *Module) Outbox() *outbox.Repository { return m.outbox }

// RegisterHandlers subscribes to all workflow events on the event bus.
// OrderStatusChanged is routed by its dynamic key, so every lifecycle key
// gets its own subscription.
func (m *Module) RegisterHandlers(bus events.Bus) {
	for _, key := range lifecycle.EmittableEventKeys() {
		bus.Subscribe(key, m)
	}
	bus.Subscribe(events.OrderAssigned{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.OrderStatusChanged:
		return m.handleStatusChanged(ctx, e)
	case events.OrderAssigned:
		return m.handleAssigned(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleStatusChanged(ctx context.Context, e events.OrderStatusChanged) error {
	key, err := policy.ParseEventKey(e.Key)
	if err != nil {
		m.log.Error("status change event carried malformed key", "error", err, "orderId", e.OrderID)
		return nil
	}

	recipients := m.workflowRecipients(ctx, e.ReviewerID, e.AppraiserID)
	order := policy.OrderContext{
		OrderID:     e.OrderID,
		Reference:   e.Reference,
		ClientName:  e.ClientName,
		Address:     e.Address,
		ReviewDueAt: e.ReviewDueAt,
		FinalDueAt:  e.FinalDueAt,
	}

	var extra map[string]any
	if e.Override {
		extra = map[string]any{"override": true}
	}

	m.engine.Emit(ctx, key, recipients, order, extra, e.ActorID, e.ActorName)
	return nil
}

func (m *Module) handleAssigned(ctx context.Context, e events.OrderAssigned) error {
	recipients := []policy.Recipient{{UserID: e.ReviewerID, Role: domain.RoleReviewer}}
	if e.AppraiserID != nil {
		recipients = append(recipients, policy.Recipient{UserID: *e.AppraiserID, Role: domain.RoleAppraiser})
	}

	order := policy.OrderContext{
		OrderID:     e.OrderID,
		Reference:   e.Reference,
		ClientName:  e.ClientName,
		Address:     e.Address,
		ReviewDueAt: e.ReviewDueAt,
	}

	// Assignment notifications are anonymized; the actor name is never
	// rendered, only used for self-action suppression.
	m.engine.Emit(ctx, policy.EventNewAssigned, recipients, order, nil, e.AssignedByID, "")
	return nil
}

// workflowRecipients collects the order's reviewer and appraiser plus every
// admin, deduplicated. A user wearing two hats keeps their order-specific
// role so the policy row for that role applies.
func (m *Module) workflowRecipients(ctx context.Context, reviewerID, appraiserID *uuid.UUID) []policy.Recipient {
	seen := map[uuid.UUID]struct{}{}
	recipients := make([]policy.Recipient, 0, 4)

	add := func(id uuid.UUID, role domain.Role) {
		if id == uuid.Nil {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, policy.Recipient{UserID: id, Role: role})
	}

	if reviewerID != nil {
		add(*reviewerID, domain.RoleReviewer)
	}
	if appraiserID != nil {
		add(*appraiserID, domain.RoleAppraiser)
	}

	admins, err := m.directory.ListByRole(ctx, domain.RoleAdmin)
	if err != nil {
		m.log.Error("admin recipient lookup failed", "error", err)
	}
	for _, admin := range admins {
		add(admin.ID, domain.RoleAdmin)
	}

	return recipients
}
