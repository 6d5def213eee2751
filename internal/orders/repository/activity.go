package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"appraisal_portal_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	opAppendActivity = "orders.repository.append_activity"
	opListActivity   = "orders.repository.list_activity"

	// EventTypeStatusChanged records a lifecycle transition.
	EventTypeStatusChanged = "status_changed"
	// EventTypeNoteAdded records a free-text note from an actor.
	EventTypeNoteAdded = "note_added"
	// EventTypeAssigneeChanged records a reviewer assignment.
	EventTypeAssigneeChanged = "assignee_changed"
)

// ActivityEvent is one immutable entry in an order's audit trail.
// Rows are only ever inserted; there is no update or delete path.
type ActivityEvent struct {
	ID        uuid.UUID      `json:"id"`
	OrderID   uuid.UUID      `json:"orderId"`
	EventType string         `json:"eventType"`
	ActorID   uuid.UUID      `json:"actorId"`
	Message   *string        `json:"message,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AppendActivityParams describes a single activity entry to record.
type AppendActivityParams struct {
	OrderID   uuid.UUID
	EventType string
	ActorID   uuid.UUID
	Message   *string
	Detail    map[string]any
}

// AppendActivity writes one audit entry. A failed append is a real error for
// the caller to handle, never a best-effort write.
func (r *Repository) AppendActivity(ctx context.Context, p AppendActivityParams) (ActivityEvent, error) {
	if r == nil || r.pool == nil {
		return ActivityEvent{}, apperr.Internal(errRepoNotConfigured).WithOp(opAppendActivity)
	}
	if p.OrderID == uuid.Nil || p.ActorID == uuid.Nil {
		return ActivityEvent{}, apperr.Validation("orderId and actorId are required").WithOp(opAppendActivity)
	}
	if p.EventType == "" {
		return ActivityEvent{}, apperr.Validation("eventType is required").WithOp(opAppendActivity)
	}

	detailJSON, err := json.Marshal(p.Detail)
	if err != nil {
		return ActivityEvent{}, apperr.Internal(fmt.Sprintf("marshal activity detail: %v", err)).WithOp(opAppendActivity)
	}

	// detail is excluded from RETURNING: we already hold p.Detail as a Go
	// value, so re-scanning the stored JSONB would be a redundant roundtrip.
	var event ActivityEvent
	err = r.pool.QueryRow(ctx, `
		INSERT INTO order_activity_events (order_id, event_type, actor_id, message, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, order_id, event_type, actor_id, message, created_at
	`, p.OrderID, p.EventType, p.ActorID, p.Message, detailJSON).Scan(
		&event.ID, &event.OrderID, &event.EventType, &event.ActorID, &event.Message, &event.CreatedAt,
	)
	if err != nil {
		return ActivityEvent{}, apperr.Internal(fmt.Sprintf("append activity failed: %v", err)).WithOp(opAppendActivity)
	}
	event.Detail = p.Detail
	return event, nil
}

// ListActivity returns an order's audit trail, newest first.
func (r *Repository) ListActivity(ctx context.Context, orderID uuid.UUID, limit, offset int) ([]ActivityEvent, error) {
	if r == nil || r.pool == nil {
		return nil, apperr.Internal(errRepoNotConfigured).WithOp(opListActivity)
	}
	if orderID == uuid.Nil {
		return nil, apperr.Validation("orderId is required").WithOp(opListActivity)
	}
	if limit < 1 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, event_type, actor_id, message, detail, created_at
		FROM order_activity_events
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, orderID, limit, offset)
	if err != nil {
		return nil, apperr.Internal(fmt.Sprintf("list activity failed: %v", err)).WithOp(opListActivity)
	}
	defer rows.Close()

	items := make([]ActivityEvent, 0, limit)
	for rows.Next() {
		var event ActivityEvent
		var rawDetail []byte
		if scanErr := rows.Scan(&event.ID, &event.OrderID, &event.EventType, &event.ActorID, &event.Message, &rawDetail, &event.CreatedAt); scanErr != nil {
			return nil, apperr.Internal(fmt.Sprintf("scan activity failed: %v", scanErr)).WithOp(opListActivity)
		}
		if len(rawDetail) > 0 {
			_ = json.Unmarshal(rawDetail, &event.Detail)
		}
		items = append(items, event)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, apperr.Internal(fmt.Sprintf("iterate activity failed: %v", rowsErr)).WithOp(opListActivity)
	}
	return items, nil
}
