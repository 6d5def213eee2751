package email

import "fmt"

var subjectFormats = map[string]string{
	TemplateOrderSentToReview:       "Order %s is ready for review",
	TemplateOrderApproved:           "Order %s approved",
	TemplateOrderRevisionsRequested: "Revisions requested on order %s",
	TemplateOrderReadyToSend:        "Order %s is ready to send",
	TemplateOrderSentToClient:       "Order %s delivered to client",
	TemplateOrderCompleted:          "Order %s completed",
	TemplateOrderAssigned:           "Order %s assigned to you",
	TemplateSiteVisitSet:            "Site visit scheduled for order %s",
	TemplateReviewDueUpdated:        "Review due date changed on order %s",
}

// SubjectFor builds the subject line for a template key and order reference.
func SubjectFor(templateKey, orderReference string) string {
	format, ok := subjectFormats[templateKey]
	if !ok {
		return fmt.Sprintf("Update on order %s", orderReference)
	}
	return fmt.Sprintf(format, orderReference)
}
