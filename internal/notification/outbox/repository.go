// Package outbox is the durable queue of outbound emails. Rows move through
// pending → claimed → sent|failed; failed rows can be reset to pending for a
// manual retry.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusClaimed Status = "claimed"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"

	errRepoNotConfigured = "email outbox repository not configured"
)

type QueuedEmail struct {
	ID          uuid.UUID
	ToEmail     string
	Subject     string
	TemplateKey string
	Payload     json.RawMessage
	Status      Status
	ClaimedBy   *string
	ClaimedAt   *time.Time
	SentAt      *time.Time
	LastError   *string
	CreatedAt   time.Time
}

type InsertParams struct {
	ToEmail     string
	Subject     string
	TemplateKey string
	Payload     any
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert enqueues one pending email. Emission never sends synchronously; the
// delivery worker drains the queue on its own schedule.
func (r *Repository) Insert(ctx context.Context, p InsertParams) (uuid.UUID, error) {
	if r == nil || r.pool == nil {
		return uuid.Nil, errors.New(errRepoNotConfigured)
	}
	if p.ToEmail == "" {
		return uuid.Nil, fmt.Errorf("toEmail is required")
	}
	if p.Subject == "" {
		return uuid.Nil, fmt.Errorf("subject is required")
	}
	if p.TemplateKey == "" {
		return uuid.Nil, fmt.Errorf("templateKey is required")
	}

	payloadBytes, err := json.Marshal(p.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO email_outbox (to_email, subject, template_key, payload, status)
		 VALUES ($1, $2, $3, $4, 'pending')
		 RETURNING id`,
		p.ToEmail, p.Subject, p.TemplateKey, payloadBytes,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (QueuedEmail, error) {
	if r == nil || r.pool == nil {
		return QueuedEmail{}, errors.New(errRepoNotConfigured)
	}

	var q QueuedEmail
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, to_email, subject, template_key, payload, status,
		        claimed_by, claimed_at, sent_at, last_error, created_at
		 FROM email_outbox
		 WHERE id = $1`,
		id,
	).Scan(&q.ID, &q.ToEmail, &q.Subject, &q.TemplateKey, &q.Payload, &status,
		&q.ClaimedBy, &q.ClaimedAt, &q.SentAt, &q.LastError, &q.CreatedAt)
	if err != nil {
		return QueuedEmail{}, err
	}
	q.Status = Status(status)
	return q, nil
}

// ClaimBatch atomically takes ownership of up to limit pending rows, oldest
// first. The status flip and the claimed_by/claimed_at stamps happen in one
// conditional update, so two concurrent workers can never claim the same row.
func (r *Repository) ClaimBatch(ctx context.Context, limit int, workerID string) ([]QueuedEmail, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}
	if workerID == "" {
		return nil, fmt.Errorf("workerId is required")
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM email_outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE email_outbox e
	SET status = 'claimed', claimed_by = $2, claimed_at = now()
	FROM cte
	WHERE e.id = cte.id
	RETURNING e.id, e.to_email, e.subject, e.template_key, e.payload, e.status,
	          e.claimed_by, e.claimed_at, e.sent_at, e.last_error, e.created_at`, limit, workerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []QueuedEmail
	for rows.Next() {
		var q QueuedEmail
		var status string
		if err := rows.Scan(&q.ID, &q.ToEmail, &q.Subject, &q.TemplateKey, &q.Payload, &status,
			&q.ClaimedBy, &q.ClaimedAt, &q.SentAt, &q.LastError, &q.CreatedAt); err != nil {
			return nil, err
		}
		q.Status = Status(status)
		results = append(results, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE email_outbox
		 SET status = 'sent', sent_at = now(), last_error = NULL
		 WHERE id = $1`,
		id,
	)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE email_outbox
		 SET status = 'failed', last_error = $2
		 WHERE id = $1`,
		id, lastError,
	)
	return err
}

// Requeue resets a failed row to pending so the next worker pass picks it up
// again. The manual retry path; nothing requeues automatically.
func (r *Repository) Requeue(ctx context.Context, id uuid.UUID) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE email_outbox
		 SET status = 'pending', claimed_by = NULL, claimed_at = NULL
		 WHERE id = $1 AND status = 'failed'`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("outbox row %s is not in failed state", id)
	}
	return nil
}
