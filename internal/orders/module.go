// Package orders owns the appraisal order workflow: the status vocabulary,
// the lifecycle state machine, the review route, and the activity trail.
package orders

import (
	"appraisal_portal_backend/internal/events"
	apphttp "appraisal_portal_backend/internal/http"
	identityrepo "appraisal_portal_backend/internal/identity/repository"
	"appraisal_portal_backend/internal/orders/handler"
	"appraisal_portal_backend/internal/orders/lifecycle"
	"appraisal_portal_backend/internal/orders/repository"
	"appraisal_portal_backend/internal/orders/routing"
	"appraisal_portal_backend/platform/logger"
	"appraisal_portal_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	repo      *repository.Repository
	lifecycle *lifecycle.Service
	routing   *routing.Service
	handler   *handler.HTTPHandler
}

func New(pool *pgxpool.Pool, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	directory := identityrepo.New(pool)
	lifecycleSvc := lifecycle.NewService(repo, bus, log)
	routingSvc := routing.NewService(repo, directory, bus, log)

	return &Module{
		repo:      repo,
		lifecycle: lifecycleSvc,
		routing:   routingSvc,
		handler:   handler.NewHTTPHandler(repo, lifecycleSvc, routingSvc, directory, val),
	}
}

func (m *Module) Name() string { return "orders" }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	orders := ctx.Protected.Group("/orders")
	m.handler.RegisterRoutes(orders)

	// Route editing and assignment are admin actions.
	m.handler.RegisterAdminRoutes(ctx.Admin)
}

// Lifecycle exposes the transition service for integration points.
func (m *Module) Lifecycle() *lifecycle.Service { return m.lifecycle }
