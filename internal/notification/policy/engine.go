package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"appraisal_portal_backend/internal/email"
	identityrepo "appraisal_portal_backend/internal/identity/repository"
	"appraisal_portal_backend/internal/notification/inapp"
	"appraisal_portal_backend/internal/notification/outbox"
	"appraisal_portal_backend/internal/notification/prefs"
	"appraisal_portal_backend/internal/orders/domain"
	"appraisal_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// Recipient is one role-tagged notification target.
type Recipient struct {
	UserID uuid.UUID
	Role   domain.Role
}

// OrderContext carries the order fields messages are built from. Events carry
// this context so the engine never reads the orders module back.
type OrderContext struct {
	OrderID     uuid.UUID
	Reference   string
	ClientName  string
	Address     string
	SiteVisitAt *time.Time
	ReviewDueAt *time.Time
	FinalDueAt  *time.Time
}

// InAppSender writes in-app notification rows.
type InAppSender interface {
	Send(ctx context.Context, p inapp.SendParams) error
}

// EmailQueue appends pending outbox rows; emission never blocks on SMTP.
type EmailQueue interface {
	Insert(ctx context.Context, p outbox.InsertParams) (uuid.UUID, error)
}

// PreferenceReader loads a recipient's notification preference.
type PreferenceReader interface {
	Get(ctx context.Context, userID uuid.UUID) (prefs.Preference, error)
}

// Directory resolves recipient email addresses.
type Directory interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]identityrepo.User, error)
}

// Engine fans a single domain event out to zero or more notification side
// effects, one decision per recipient and channel.
type Engine struct {
	table     Table
	inapp     InAppSender
	queue     EmailQueue
	prefs     PreferenceReader
	directory Directory
	log       *logger.Logger
	baseURL   string
}

func NewEngine(table Table, inAppSender InAppSender, queue EmailQueue, preferences PreferenceReader, directory Directory, baseURL string, log *logger.Logger) *Engine {
	return &Engine{
		table:     table,
		inapp:     inAppSender,
		queue:     queue,
		prefs:     preferences,
		directory: directory,
		log:       log,
		baseURL:   baseURL,
	}
}

// TemplateKeyFor maps an event key to its email template key.
func TemplateKeyFor(key EventKey) string {
	if key == EventNewAssigned {
		return email.TemplateOrderAssigned
	}
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			out = append(out, '_')
			continue
		}
		out = append(out, key[i])
	}
	return string(out)
}

// Emit applies the policy for an event to a set of recipients. A missing
// policy drops the event with an error log and no side effects; that log line
// is the only place a missing policy is visible, and it must stay
// distinguishable from "policy says don't notify". Per-recipient failures
// are logged and never abort the fan-out: notification is a secondary effect
// and the triggering business action has already succeeded.
func (e *Engine) Emit(ctx context.Context, key EventKey, recipients []Recipient, order OrderContext, extra map[string]any, actorID uuid.UUID, actorName string) {
	policy, ok := e.table[key]
	if !ok {
		e.log.Error("notification policy missing, event dropped", "eventKey", string(key))
		return
	}

	users := e.resolveUsers(ctx, recipients)
	payload := e.buildPayload(order, actorName, policy.Anonymized, extra)
	title, body := buildMessage(key, order, actorName, policy.Anonymized)
	templateKey := TemplateKeyFor(key)
	subject := email.SubjectFor(templateKey, order.Reference)

	for _, recipient := range recipients {
		rule, mentioned := policy.Roles[recipient.Role]
		if !mentioned {
			// A role absent from the policy is intentionally excluded.
			continue
		}

		pref, err := e.prefs.Get(ctx, recipient.UserID)
		if err != nil {
			e.log.Error("failed to load notification preference, using defaults",
				"error", err, "userId", recipient.UserID, "eventKey", string(key))
			pref = prefs.Default(recipient.UserID)
		}

		// Actors only hear about their own actions when they opted in.
		if recipient.UserID == actorID && !pref.SelfActions {
			continue
		}

		if rule.InApp.Active() {
			orderID := order.OrderID
			if err := e.inapp.Send(ctx, inapp.SendParams{
				UserID:   recipient.UserID,
				Title:    title,
				Body:     body,
				OrderID:  &orderID,
				Category: policy.Category,
				Priority: policy.Priority,
			}); err != nil {
				e.log.Error("in-app notification write failed",
					"error", err, "userId", recipient.UserID, "eventKey", string(key))
			}
		}

		sendEmail := rule.Email.Required || (rule.Email.Default && pref.CategoryEmailEnabled(policy.Category))
		if !sendEmail {
			continue
		}
		user, known := users[recipient.UserID]
		if !known || user.Email == "" {
			e.log.Error("no email address for notification recipient",
				"userId", recipient.UserID, "eventKey", string(key))
			continue
		}
		if _, err := e.queue.Insert(ctx, outbox.InsertParams{
			ToEmail:     user.Email,
			Subject:     subject,
			TemplateKey: templateKey,
			Payload:     payload,
		}); err != nil {
			e.log.Error("email outbox enqueue failed",
				"error", err, "userId", recipient.UserID, "eventKey", string(key))
		}
	}
}

func (e *Engine) resolveUsers(ctx context.Context, recipients []Recipient) map[uuid.UUID]identityrepo.User {
	ids := make([]uuid.UUID, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.UserID)
	}
	resolved := make(map[uuid.UUID]identityrepo.User, len(ids))
	if e.directory == nil {
		return resolved
	}
	users, err := e.directory.GetByIDs(ctx, ids)
	if err != nil {
		e.log.Error("recipient lookup failed", "error", err)
		return resolved
	}
	for _, u := range users {
		resolved[u.ID] = u
	}
	return resolved
}

func (e *Engine) buildPayload(order OrderContext, actorName string, anonymized bool, extra map[string]any) map[string]any {
	orderVars := map[string]any{
		"reference":   order.Reference,
		"client_name": order.ClientName,
		"address":     order.Address,
	}
	if order.SiteVisitAt != nil {
		orderVars["site_visit"] = order.SiteVisitAt.Format("2006-01-02 15:04")
	}
	if order.ReviewDueAt != nil {
		orderVars["review_due"] = order.ReviewDueAt.Format("2006-01-02")
	}
	if order.FinalDueAt != nil {
		orderVars["final_due"] = order.FinalDueAt.Format("2006-01-02")
	}

	payload := map[string]any{
		"order": orderVars,
		"link":  fmt.Sprintf("%s/orders/%s", e.baseURL, order.OrderID),
	}
	if !anonymized && actorName != "" {
		payload["actor"] = map[string]any{"name": actorName}
	}
	for k, v := range extra {
		payload[k] = v
	}
	return payload
}

// buildMessage produces the in-app title and body for an event. Anonymized
// events never name the acting user.
func buildMessage(key EventKey, order OrderContext, actorName string, anonymized bool) (string, string) {
	ref := order.Reference

	var title, body string
	switch key {
	case EventSentToReview:
		title = fmt.Sprintf("Order %s sent to review", ref)
		body = fmt.Sprintf("%s moved order %s (%s) into review.", actorName, ref, order.ClientName)
	case EventApproved:
		title = fmt.Sprintf("Order %s approved", ref)
		body = fmt.Sprintf("%s approved order %s (%s).", actorName, ref, order.ClientName)
	case EventRevisionsRequested:
		title = fmt.Sprintf("Revisions requested on order %s", ref)
		body = fmt.Sprintf("%s requested revisions on order %s (%s).", actorName, ref, order.ClientName)
	case EventReadyToSend:
		title = fmt.Sprintf("Order %s ready to send", ref)
		body = fmt.Sprintf("Order %s (%s) is ready to send to the client.", ref, order.ClientName)
	case EventSentToClient:
		title = fmt.Sprintf("Order %s sent to client", ref)
		body = fmt.Sprintf("Order %s was delivered to %s.", ref, order.ClientName)
	case EventCompleted:
		title = fmt.Sprintf("Order %s completed", ref)
		body = fmt.Sprintf("Order %s (%s) is complete.", ref, order.ClientName)
	case EventNewAssigned:
		title = fmt.Sprintf("Order %s assigned to you", ref)
		body = fmt.Sprintf("Order %s (%s) has been assigned to you for review.", ref, order.Address)
	default:
		title = fmt.Sprintf("Update on order %s", ref)
		body = fmt.Sprintf("Order %s (%s) was updated.", ref, order.ClientName)
	}

	if anonymized && actorName != "" && strings.Contains(body, actorName) {
		// Last line of defense: an anonymized event must never leak the actor.
		body = strings.ReplaceAll(body, actorName, "An administrator")
	}
	return title, body
}
