// Package repository is the minimal user directory consumed by the workflow:
// reviewer resolution for routing and recipient email lookup for
// notifications. Authentication and account management live elsewhere.
package repository

import (
	"context"
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
	opGet        = "identity.repository.get"
	opGetMany    = "identity.repository.get_many"
	opListByRole = "identity.repository.list_by_role"

	errRepoNotConfigured = "identity repository not configured"
)

// User is a directory entry.
type User struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	if r == nil || r.pool == nil {
		return User{}, apperr.Internal(errRepoNotConfigured).WithOp(opGet)
	}

	var user User
	var rawRole string
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, role, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &rawRole, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, apperr.NotFound("user not found").WithOp(opGet)
		}
		return User{}, apperr.Internal(fmt.Sprintf("get user failed: %v", err)).WithOp(opGet)
	}
	user.Role = domain.Role(rawRole)
	return user, nil
}

// GetByIDs returns the directory entries for the given ids. Missing ids are
// simply absent from the result; callers decide whether that matters.
func (r *Repository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opGetMany)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, role, created_at FROM users WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("get users failed: %v", err)).WithOp(opGetMany)
	}
	defer rows.Close()

	return collectUsers(rows, opGetMany)
}

// ListByRole returns every user holding a role, ordered by name.
func (r *Repository) ListByRole(ctx context.Context, role domain.Role) ([]User, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListByRole)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, role, created_at FROM users WHERE role = $1 ORDER BY name ASC
	`, string(role))
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list users by role failed: %v", err)).WithOp(opListByRole)
	}
	defer rows.Close()

	return collectUsers(rows, opListByRole)
}

func collectUsers(rows pgx.Rows, op string) ([]User, error) {
	items := make([]User, 0)
	for rows.Next() {
		var user User
		var rawRole string
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &rawRole, &user.CreatedAt); err != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan user failed: %v", err)).WithOp(op)
		}
		user.Role = domain.Role(rawRole)
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate users failed: %v", err)).WithOp(op)
	}
	return items, nil
}
