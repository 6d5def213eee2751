// Package repository persists orders and their activity trail.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGet          = "orders.repository.get"
	opUpdateStatus = "orders.repository.update_status"
	opSetReviewer  = "orders.repository.set_reviewer"
	opSetRoute     = "orders.repository.set_route"
	opList         = "orders.repository.list"

	errRepoNotConfigured = "orders repository not configured"
)

// RouteStep is one planned stop in an order's review route.
type RouteStep struct {
	ReviewerID uuid.UUID `json:"reviewerId"`
}

// Order is the workflow view of an appraisal order. The pipeline mutates
// status, the reviewer pointer, and the planned route; everything else is
// informational and owned by the wider order record.
type Order struct {
	ID          uuid.UUID       `json:"id"`
	Reference   string          `json:"reference"`
	ClientName  string          `json:"clientName"`
	Address     string          `json:"address"`
	Status      domain.Status   `json:"status"`
	ReviewerID  *uuid.UUID      `json:"reviewerId,omitempty"`
	AppraiserID *uuid.UUID      `json:"appraiserId,omitempty"`
	ReviewRoute []RouteStep     `json:"reviewRoute"`
	SiteVisitAt *time.Time      `json:"siteVisitAt,omitempty"`
	ReviewDueAt *time.Time      `json:"reviewDueAt,omitempty"`
	FinalDueAt  *time.Time      `json:"finalDueAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const orderSelectCols = `
	id, reference, client_name, address, status, reviewer_id, appraiser_id,
	review_route, site_visit_at, review_due_at, final_due_at, created_at, updated_at`

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Order, error) {
	if r == nil || r.pool == nil {
		return Order{}, apperr.Internal(errRepoNotConfigured).WithOp(opGet)
	}

	row := r.pool.QueryRow(ctx, `SELECT`+orderSelectCols+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.NotFound("order not found").WithOp(opGet)
		}
		return Order{}, apperr.Internal(fmt.Sprintf("get order failed: %v", err)).WithOp(opGet)
	}
	return order, nil
}

// UpdateStatus moves an order from prev to next with a conditional update.
// The WHERE clause on the previous status makes concurrent conflicting
// transitions lose cleanly instead of overwriting each other.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, prev, next domain.Status) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opUpdateStatus)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
	`, id, string(prev), string(next))
	if err != nil {
		return apperr.Internal(fmt.Sprintf("update order status failed: %v", err)).WithOp(opUpdateStatus)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("order status changed concurrently").WithOp(opUpdateStatus)
	}
	return nil
}

// SetReviewer assigns the current reviewer pointer. Passing nil clears it.
func (r *Repository) SetReviewer(ctx context.Context, id uuid.UUID, reviewerID *uuid.UUID) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opSetReviewer)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET reviewer_id = $2, updated_at = now()
		WHERE id = $1
	`, id, reviewerID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("set reviewer failed: %v", err)).WithOp(opSetReviewer)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order not found").WithOp(opSetReviewer)
	}
	return nil
}

// SetRoute replaces the planned review route. The route is independent of the
// currently assigned reviewer.
func (r *Repository) SetRoute(ctx context.Context, id uuid.UUID, steps []RouteStep) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opSetRoute)
	}

	routeJSON, err := json.Marshal(steps)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("marshal review route: %v", err)).WithOp(opSetRoute)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET review_route = $2, updated_at = now()
		WHERE id = $1
	`, id, routeJSON)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("set review route failed: %v", err)).WithOp(opSetRoute)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("order not found").WithOp(opSetRoute)
	}
	return nil
}

// ListActive returns orders still needing attention, newest first.
func (r *Repository) ListActive(ctx context.Context, limit, offset int) ([]Order, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opList)
	}
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT`+orderSelectCols+`
		FROM orders
		WHERE status NOT IN ('complete', 'cancelled')
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list orders failed: %v", err)).WithOp(opList)
	}
	defer rows.Close()

	items := make([]Order, 0, limit)
	for rows.Next() {
		order, scanErr := scanOrder(rows)
		if scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan order failed: %v", scanErr)).WithOp(opList)
		}
		items = append(items, order)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate orders failed: %v", rowsErr)).WithOp(opList)
	}
	return items, nil
}

// orderRowScanner is satisfied by pgx.Rows and pgx.Row so scanOrder can be
// shared between single-row and multi-row queries.
type orderRowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s orderRowScanner) (Order, error) {
	var order Order
	var rawStatus string
	var rawRoute []byte
	if err := s.Scan(
		&order.ID,
		&order.Reference,
		&order.ClientName,
		&order.Address,
		&rawStatus,
		&order.ReviewerID,
		&order.AppraiserID,
		&rawRoute,
		&order.SiteVisitAt,
		&order.ReviewDueAt,
		&order.FinalDueAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return Order{}, err
	}
	// Historical rows may carry drifted raw values; normalize on read.
	order.Status = domain.Normalize(rawStatus)
	if len(rawRoute) > 0 {
		_ = json.Unmarshal(rawRoute, &order.ReviewRoute)
	}
	return order, nil
}
