// Package delivery drains the email outbox: claim a batch, render, dispatch,
// and record the per-row outcome.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"appraisal_portal_backend/internal/email"
	"appraisal_portal_backend/internal/notification/outbox"
	"appraisal_portal_backend/platform/config"
	"appraisal_portal_backend/platform/logger"

	"github.com/google/uuid"
)

// Queue is the outbox surface the worker drains.
type Queue interface {
	ClaimBatch(ctx context.Context, limit int, workerID string) ([]outbox.QueuedEmail, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// Renderer resolves a template key and payload to an email body.
type Renderer interface {
	Render(templateKey string, payload map[string]any) (string, error)
}

// Summary reports one worker invocation for observability.
type Summary struct {
	Claimed int `json:"claimed"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type Worker struct {
	queue       Queue
	templates   Renderer
	transport   email.Transport
	log         *logger.Logger
	workerID    string
	batchLimit  int
	sendTimeout time.Duration
}

func NewWorker(queue Queue, templates Renderer, transport email.Transport, cfg config.DeliveryConfig, log *logger.Logger) *Worker {
	hostname, _ := os.Hostname()
	return &Worker{
		queue:       queue,
		templates:   templates,
		transport:   transport,
		log:         log,
		workerID:    fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
		batchLimit:  cfg.GetDeliveryBatchLimit(),
		sendTimeout: cfg.GetDeliverySendTimeout(),
	}
}

// RunOnce claims one batch and processes every row independently. A claim
// failure aborts the invocation since nothing was claimed; a per-row failure
// marks that row failed and moves on. Rows are never retried within the same
// invocation. Safe to run concurrently from multiple instances: mutual
// exclusion comes from the atomic claim, not from this loop.
func (w *Worker) RunOnce(ctx context.Context) (Summary, error) {
	batch, err := w.queue.ClaimBatch(ctx, w.batchLimit, w.workerID)
	if err != nil {
		return Summary{}, fmt.Errorf("claim batch: %w", err)
	}

	summary := Summary{Claimed: len(batch)}
	for _, item := range batch {
		if err := w.process(ctx, item); err != nil {
			summary.Failed++
			if markErr := w.queue.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
				w.log.Error("failed to mark outbox row failed", "error", markErr, "id", item.ID)
			}
			continue
		}
		summary.Sent++
		if markErr := w.queue.MarkSent(ctx, item.ID); markErr != nil {
			w.log.Error("failed to mark outbox row sent", "error", markErr, "id", item.ID)
		}
	}

	w.log.Info("delivery batch processed",
		"workerId", w.workerID,
		"claimed", summary.Claimed,
		"sent", summary.Sent,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (w *Worker) process(ctx context.Context, item outbox.QueuedEmail) error {
	var payload map[string]any
	if len(item.Payload) > 0 {
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}

	body, err := w.templates.Render(item.TemplateKey, payload)
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	// Bounded timeout so a stuck provider call cannot stall the batch.
	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	if err := w.transport.Send(sendCtx, email.Message{
		To:      item.ToEmail,
		Subject: item.Subject,
		HTML:    body,
	}); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}
