package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type staticSchedulerConfig struct {
	redisURL string
}

func (c staticSchedulerConfig) GetRedisURL() string       { return c.redisURL }
func (c staticSchedulerConfig) GetRedisTLSInsecure() bool { return false }
func (c staticSchedulerConfig) GetAsynqQueueName() string { return "workflow" }
func (c staticSchedulerConfig) GetAsynqConcurrency() int  { return 2 }

func TestEnqueueDeliveryBatch(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewClient(staticSchedulerConfig{redisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	if err := client.EnqueueDeliveryBatch(context.Background()); err != nil {
		t.Fatalf("EnqueueDeliveryBatch: %v", err)
	}

	if len(mr.Keys()) == 0 {
		t.Fatal("expected enqueued task keys in redis, found none")
	}
}

func TestNewClientRequiresRedisURL(t *testing.T) {
	if _, err := NewClient(staticSchedulerConfig{}); err == nil {
		t.Fatal("expected error for missing redis url")
	}
}

func TestEmailDeliveryBatchPayloadRoundTrip(t *testing.T) {
	requested := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	task, err := NewEmailDeliveryBatchTask(EmailDeliveryBatchPayload{RequestedAt: requested})
	if err != nil {
		t.Fatalf("NewEmailDeliveryBatchTask: %v", err)
	}
	if task.Type() != TaskEmailDeliveryBatch {
		t.Fatalf("task type = %q, want %q", task.Type(), TaskEmailDeliveryBatch)
	}

	payload, err := ParseEmailDeliveryBatchPayload(task)
	if err != nil {
		t.Fatalf("ParseEmailDeliveryBatchPayload: %v", err)
	}
	if !payload.RequestedAt.Equal(requested) {
		t.Fatalf("requestedAt = %v, want %v", payload.RequestedAt, requested)
	}
}

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@localhost:6380/2", false)
	if err != nil {
		t.Fatalf("redisClientOpt: %v", err)
	}
	if opt.Addr != "localhost:6380" {
		t.Errorf("addr = %q, want localhost:6380", opt.Addr)
	}
	if opt.Password != "secret" {
		t.Errorf("password = %q, want secret", opt.Password)
	}
	if opt.DB != 2 {
		t.Errorf("db = %d, want 2", opt.DB)
	}
	if opt.TLSConfig != nil {
		t.Error("expected no TLS config for redis:// url")
	}

	insecure, err := redisClientOpt("rediss://localhost:6380", true)
	if err != nil {
		t.Fatalf("redisClientOpt tls: %v", err)
	}
	if insecure.TLSConfig == nil || !insecure.TLSConfig.InsecureSkipVerify {
		t.Error("expected insecure TLS config for rediss:// url with tlsInsecure")
	}
}
