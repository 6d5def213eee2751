package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"appraisal_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	opGet    = "notification.prefs.repository.get"
	opUpsert = "notification.prefs.repository.upsert"

	errRepoNotConfigured = "preference repository not configured"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get returns the stored preference for a user, or the default when the user
// never saved one.
func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (Preference, error) {
	if r == nil || r.pool == nil {
		return Preference{}, apperr.Internal(errRepoNotConfigured).WithOp(opGet)
	}
	if userID == uuid.Nil {
		return Preference{}, apperr.Validation("userId is required").WithOp(opGet)
	}

	var p Preference
	var rawCategories []byte
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, dnd_enabled, dnd_start_minute, dnd_end_minute,
		       snooze_until, self_actions, categories, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`, userID).Scan(
		&p.UserID, &p.DNDEnabled, &p.DNDStartMinute, &p.DNDEndMinute,
		&p.SnoozeUntil, &p.SelfActions, &rawCategories, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Default(userID), nil
		}
		return Preference{}, apperr.Internal(fmt.Sprintf("get preference failed: %v", err)).WithOp(opGet)
	}

	p.Categories = map[string]ChannelToggles{}
	if len(rawCategories) > 0 {
		_ = json.Unmarshal(rawCategories, &p.Categories)
	}
	return p, nil
}

// Upsert saves a user's preference, replacing any existing row.
func (r *Repository) Upsert(ctx context.Context, p Preference) error {
	if r == nil || r.pool == nil {
		return apperr.Internal(errRepoNotConfigured).WithOp(opUpsert)
	}
	if p.UserID == uuid.Nil {
		return apperr.Validation("userId is required").WithOp(opUpsert)
	}
	if p.DNDStartMinute < 0 || p.DNDStartMinute >= 1440 || p.DNDEndMinute < 0 || p.DNDEndMinute >= 1440 {
		return apperr.Validation("dnd window bounds must be minutes within a day").WithOp(opUpsert)
	}

	categoriesJSON, err := json.Marshal(p.Categories)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("marshal categories: %v", err)).WithOp(opUpsert)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notification_preferences
			(user_id, dnd_enabled, dnd_start_minute, dnd_end_minute, snooze_until, self_actions, categories, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id) DO UPDATE SET
			dnd_enabled = EXCLUDED.dnd_enabled,
			dnd_start_minute = EXCLUDED.dnd_start_minute,
			dnd_end_minute = EXCLUDED.dnd_end_minute,
			snooze_until = EXCLUDED.snooze_until,
			self_actions = EXCLUDED.self_actions,
			categories = EXCLUDED.categories,
			updated_at = now()
	`, p.UserID, p.DNDEnabled, p.DNDStartMinute, p.DNDEndMinute, p.SnoozeUntil, p.SelfActions, categoriesJSON)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("upsert preference failed: %v", err)).WithOp(opUpsert)
	}
	return nil
}
