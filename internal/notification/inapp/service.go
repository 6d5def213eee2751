package inapp

import (
	"context"
	"time"

	"appraisal_portal_backend/internal/notification/prefs"
	"appraisal_portal_backend/platform/apperr"
	"appraisal_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// PreferenceReader supplies the badge-suppression state for a user.
type PreferenceReader interface {
	Get(ctx context.Context, userID uuid.UUID) (prefs.Preference, error)
}

type Service struct {
	repo  *Repository
	prefs PreferenceReader
	log   *logger.Logger
	now   func() time.Time
}

func NewService(repo *Repository, preferences PreferenceReader, log *logger.Logger) *Service {
	return &Service{
		repo:  repo,
		prefs: preferences,
		log:   log,
		now:   time.Now,
	}
}

type SendParams struct {
	UserID   uuid.UUID
	Title    string
	Body     string
	OrderID  *uuid.UUID
	Category string
	Priority string
}

// Send persists the notification row. DND and Snooze never block the write;
// they only suppress the unread badge when it is read back.
func (s *Service) Send(ctx context.Context, p SendParams) error {
	if s == nil || s.repo == nil {
		return apperr.Internal("in-app notification service not configured")
	}

	_, err := s.repo.Create(ctx, CreateParams{
		UserID:   p.UserID,
		Title:    p.Title,
		Body:     p.Body,
		OrderID:  p.OrderID,
		Category: p.Category,
		Priority: p.Priority,
	})
	if err != nil {
		if s.log != nil {
			s.log.Error("failed to persist in-app notification", "error", err, "userId", p.UserID)
		}
		return err
	}

	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, userID, pageSize, offset)
}

// UnreadBadge is the unread state surfaced to the UI. Suppressed reflects the
// user's DND/Snooze settings at the moment of the read; the count itself is
// always real.
type UnreadBadge struct {
	Count      int  `json:"count"`
	Suppressed bool `json:"suppressed"`
}

// Unread returns the unread count together with the read-time suppression
// flag. The full list view is never filtered by suppression.
func (s *Service) Unread(ctx context.Context, userID uuid.UUID) (UnreadBadge, error) {
	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return UnreadBadge{}, err
	}

	badge := UnreadBadge{Count: count}
	if s.prefs != nil {
		pref, prefErr := s.prefs.Get(ctx, userID)
		if prefErr != nil {
			// A broken preference read must not hide the unread count.
			if s.log != nil {
				s.log.Error("failed to load notification preference", "error", prefErr, "userId", userID)
			}
			return badge, nil
		}
		badge.Suppressed = prefs.IsSuppressed(pref, s.now())
	}
	return badge, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.Delete(ctx, userID, id)
}
