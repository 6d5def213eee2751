package scheduler

import (
	"context"
	"fmt"

	"appraisal_portal_backend/internal/notification/delivery"
	"appraisal_portal_backend/platform/config"
	"appraisal_portal_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server   *asynq.Server
	mux      *asynq.ServeMux
	delivery *delivery.Worker
	log      *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, deliveryWorker *delivery.Worker, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:   server,
		mux:      mux,
		delivery: deliveryWorker,
		log:      log,
	}

	mux.HandleFunc(TaskEmailDeliveryBatch, w.handleEmailDeliveryBatch)

	return w, nil
}

func (w *Worker) handleEmailDeliveryBatch(ctx context.Context, task *asynq.Task) error {
	if _, err := ParseEmailDeliveryBatchPayload(task); err != nil {
		return err
	}

	summary, err := w.delivery.RunOnce(ctx)
	if err != nil {
		// Claim failures abort with nothing taken; asynq retries the tick.
		return err
	}

	if summary.Claimed > 0 {
		w.log.Info("email delivery batch finished",
			"claimed", summary.Claimed,
			"sent", summary.Sent,
			"failed", summary.Failed,
		)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
