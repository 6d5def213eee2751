package scheduler

import (
	"context"
	"time"

	"appraisal_portal_backend/platform/config"
	"appraisal_portal_backend/platform/logger"
)

// Dispatcher enqueues a delivery batch task on a fixed interval. It only
// produces ticks; the actual outbox drain happens in the asynq worker.
type Dispatcher struct {
	client   *Client
	interval time.Duration
	log      *logger.Logger
}

func NewDispatcher(client *Client, cfg config.DeliveryConfig, log *logger.Logger) *Dispatcher {
	interval := cfg.GetDeliveryInterval()
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Dispatcher{
		client:   client,
		interval: interval,
		log:      log,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := d.client.EnqueueDeliveryBatch(ctx); err != nil {
			d.log.Warn("delivery batch enqueue failed", "error", err)
		}
	}
}
