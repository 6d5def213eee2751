package email

import (
	"fmt"
	"regexp"
	"strings"
)

// Template keys. The notification policy engine derives these from event keys
// when it enqueues outbox rows; the delivery worker resolves them here.
const (
	TemplateOrderSentToReview       = "order_sent_to_review"
	TemplateOrderApproved           = "order_approved"
	TemplateOrderRevisionsRequested = "order_revisions_requested"
	TemplateOrderReadyToSend        = "order_ready_to_send"
	TemplateOrderSentToClient       = "order_sent_to_client"
	TemplateOrderCompleted          = "order_completed"
	TemplateOrderAssigned           = "order_assigned"
	TemplateSiteVisitSet            = "site_visit_set"
	TemplateReviewDueUpdated        = "review_due_updated"
)

// Registry resolves template keys to email bodies. Placeholders use the
// {{ dotted.path }} syntax shared with the UI-facing message builder; unknown
// placeholders render as empty strings, never as errors.
type Registry struct {
	bodies map[string]string
}

// NewRegistry returns the registry with the shipped workflow templates.
func NewRegistry() *Registry {
	return &Registry{bodies: map[string]string{
		TemplateOrderSentToReview: `<p>Order {{ order.reference }} for {{ order.client_name }} is ready for your review.</p>
<p>Property: {{ order.address }}</p>
<p><a href="{{ link }}">Open the order</a></p>`,
		TemplateOrderApproved: `<p>Order {{ order.reference }} for {{ order.client_name }} was approved by {{ actor.name }}.</p>
<p><a href="{{ link }}">Open the order</a></p>`,
		TemplateOrderRevisionsRequested: `<p>{{ actor.name }} requested revisions on order {{ order.reference }}.</p>
<p>Property: {{ order.address }}</p>
<p><a href="{{ link }}">Open the order</a></p>`,
		TemplateOrderReadyToSend: `<p>Order {{ order.reference }} for {{ order.client_name }} is ready to send.</p>
<p><a href="{{ link }}">Open the order</a></p>`,
		TemplateOrderSentToClient: `<p>Order {{ order.reference }} was delivered to {{ order.client_name }}.</p>
<p><a href="{{ link }}">Open the order</a></p>`,
		TemplateOrderCompleted: `<p>Order {{ order.reference }} for {{ order.client_name }} is complete.</p>
<p><a href="{{ link }}">Open the order</a></p>`,
		// Assignment notifications deliberately do not name who assigned.
		TemplateOrderAssigned: `<p>Order {{ order.reference }} has been assigned to you for review.</p>
<p>Property: {{ order.address }}</p>
<p>Review due: {{ order.review_due }}</p>
<p><a href="{{ link }}">Open the order</a></p>`,
		TemplateSiteVisitSet: `<p>A site visit for order {{ order.reference }} is scheduled on {{ order.site_visit }}.</p>
<p>Property: {{ order.address }}</p>
<p><a href="{{ link }}">Open the order</a></p>`,
		TemplateReviewDueUpdated: `<p>The review due date for order {{ order.reference }} changed to {{ order.review_due }}.</p>
<p><a href="{{ link }}">Open the order</a></p>`,
	}}
}

// Has reports whether a template key is known.
func (r *Registry) Has(templateKey string) bool {
	_, ok := r.bodies[templateKey]
	return ok
}

// Render produces the email body for a template key and payload. An unknown
// template key is an error; unknown placeholders inside a known template
// render as empty strings.
func (r *Registry) Render(templateKey string, payload map[string]any) (string, error) {
	body, ok := r.bodies[templateKey]
	if !ok {
		return "", fmt.Errorf("unknown template key %q", templateKey)
	}
	return Substitute(body, payload), nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\s*\}\}`)

// Substitute replaces {{ dotted.path }} placeholders with values resolved
// from the payload. Missing paths substitute an empty string.
func Substitute(tpl string, payload map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(tpl, func(match string) string {
		submatches := placeholderPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return ""
		}
		return lookupPath(payload, strings.TrimSpace(submatches[1]))
	})
}

func lookupPath(data map[string]any, path string) string {
	var current any = data
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = node[segment]
		if !ok {
			return ""
		}
	}
	switch v := current.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
