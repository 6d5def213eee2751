package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"appraisal_portal_backend/internal/email"
	"appraisal_portal_backend/internal/notification/outbox"
	"appraisal_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeQueue models the outbox state machine in memory with the same claim
// semantics as the SQL repository: pending rows flip to claimed atomically,
// so a second claim never sees rows from the first.
type fakeQueue struct {
	rows     []outbox.QueuedEmail
	claimErr error
	failed   map[uuid.UUID]string
	sent     map[uuid.UUID]bool
}

func newFakeQueue(rows ...outbox.QueuedEmail) *fakeQueue {
	return &fakeQueue{rows: rows, failed: map[uuid.UUID]string{}, sent: map[uuid.UUID]bool{}}
}

func (f *fakeQueue) ClaimBatch(ctx context.Context, limit int, workerID string) ([]outbox.QueuedEmail, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	var claimed []outbox.QueuedEmail
	for i := range f.rows {
		if len(claimed) == limit {
			break
		}
		if f.rows[i].Status != outbox.StatusPending {
			continue
		}
		f.rows[i].Status = outbox.StatusClaimed
		f.rows[i].ClaimedBy = &workerID
		claimed = append(claimed, f.rows[i])
	}
	return claimed, nil
}

func (f *fakeQueue) MarkSent(ctx context.Context, id uuid.UUID) error {
	f.sent[id] = true
	return nil
}

func (f *fakeQueue) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	f.failed[id] = lastError
	return nil
}

// fakeTransport fails for addresses listed in failFor.
type fakeTransport struct {
	sent    []email.Message
	failFor map[string]error
}

func (f *fakeTransport) Send(ctx context.Context, msg email.Message) error {
	if err, ok := f.failFor[msg.To]; ok {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type staticConfig struct{}

func (staticConfig) GetDeliveryBatchLimit() int            { return 10 }
func (staticConfig) GetDeliveryInterval() time.Duration    { return time.Minute }
func (staticConfig) GetDeliverySendTimeout() time.Duration { return time.Second }

func queuedEmail(to string) outbox.QueuedEmail {
	payload, _ := json.Marshal(map[string]any{
		"order": map[string]any{"reference": "APR-1001", "client_name": "Acme Holdings"},
		"link":  "https://portal.example.com/orders/1",
	})
	return outbox.QueuedEmail{
		ID:          uuid.New(),
		ToEmail:     to,
		Subject:     "Order APR-1001 approved",
		TemplateKey: email.TemplateOrderApproved,
		Payload:     payload,
		Status:      outbox.StatusPending,
	}
}

func newWorker(queue Queue, transport email.Transport) *Worker {
	return NewWorker(queue, email.NewRegistry(), transport, staticConfig{}, logger.New("test"))
}

func TestRunOnceSendsWholeBatch(t *testing.T) {
	queue := newFakeQueue(queuedEmail("a@example.com"), queuedEmail("b@example.com"))
	transport := &fakeTransport{}
	worker := newWorker(queue, transport)

	summary, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary != (Summary{Claimed: 2, Sent: 2, Failed: 0}) {
		t.Fatalf("summary = %+v", summary)
	}
	if len(transport.sent) != 2 {
		t.Fatalf("dispatched %d messages, want 2", len(transport.sent))
	}
	if len(queue.sent) != 2 || len(queue.failed) != 0 {
		t.Fatalf("queue marks: sent=%d failed=%d", len(queue.sent), len(queue.failed))
	}
}

func TestRunOnceFailureOnOneItemDoesNotAbortBatch(t *testing.T) {
	first := queuedEmail("a@example.com")
	second := queuedEmail("broken@example.com")
	third := queuedEmail("c@example.com")
	queue := newFakeQueue(first, second, third)
	transport := &fakeTransport{failFor: map[string]error{
		"broken@example.com": errors.New("smtp: connection refused"),
	}}
	worker := newWorker(queue, transport)

	summary, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary != (Summary{Claimed: 3, Sent: 2, Failed: 1}) {
		t.Fatalf("summary = %+v", summary)
	}
	if !queue.sent[first.ID] || !queue.sent[third.ID] {
		t.Fatalf("items 1 and 3 should reach sent state")
	}
	lastError, failed := queue.failed[second.ID]
	if !failed || lastError == "" {
		t.Fatalf("item 2 should be failed with a non-empty error, got %q", lastError)
	}
}

func TestRunOnceClaimFailureAbortsInvocation(t *testing.T) {
	queue := newFakeQueue(queuedEmail("a@example.com"))
	queue.claimErr = errors.New("connection reset")
	transport := &fakeTransport{}
	worker := newWorker(queue, transport)

	_, err := worker.RunOnce(context.Background())
	if err == nil {
		t.Fatalf("expected claim failure to abort the invocation")
	}
	if len(transport.sent) != 0 || len(queue.sent) != 0 || len(queue.failed) != 0 {
		t.Fatalf("aborted invocation must have no side effects")
	}
}

func TestRunOnceUnknownTemplateKeyFailsRow(t *testing.T) {
	row := queuedEmail("a@example.com")
	row.TemplateKey = "no_such_template"
	queue := newFakeQueue(row)
	worker := newWorker(queue, &fakeTransport{})

	summary, err := worker.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary.Failed != 1 || summary.Sent != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if lastError := queue.failed[row.ID]; lastError == "" {
		t.Fatalf("render failure must record an error")
	}
}

func TestSequentialClaimsNeverOverlap(t *testing.T) {
	rows := make([]outbox.QueuedEmail, 0, 6)
	for i := 0; i < 6; i++ {
		rows = append(rows, queuedEmail(fmt.Sprintf("user%d@example.com", i)))
	}
	queue := newFakeQueue(rows...)

	first, err := queue.ClaimBatch(context.Background(), 3, "w1")
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	second, err := queue.ClaimBatch(context.Background(), 3, "w2")
	if err != nil {
		t.Fatalf("second claim failed: %v", err)
	}

	seen := map[uuid.UUID]bool{}
	for _, item := range first {
		seen[item.ID] = true
	}
	for _, item := range second {
		if seen[item.ID] {
			t.Fatalf("row %s claimed by both workers", item.ID)
		}
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("claims = %d and %d, want 3 and 3", len(first), len(second))
	}
}
