package queue

import (
	"testing"
	"time"

	"github.com/bazaar-next/internal/config"

	"github.com/hibiken/asynq"
)

func TestDisabledClientIsNoop(t *testing.T) {
	client, err := NewClient(&config.QueueConfig{Enabled: false})
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if client.Enabled() {
		t.Fatalf("client should be disabled")
	}
	if err := client.EnqueueOrderTimeoutCancel(OrderTimeoutCancelPayload{OrderID: 1}, time.Minute); err != nil {
		t.Fatalf("disabled enqueue should be noop, got %v", err)
	}
	if err := client.EnqueueGroupBuyExpire(GroupBuyExpirePayload{GroupBuyID: 1}, time.Now()); err != nil {
		t.Fatalf("disabled enqueue should be noop, got %v", err)
	}
	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatalf("nil client should report disabled")
	}
	if err := nilClient.EnqueueOrderStatusChanged(OrderStatusChangedPayload{OrderID: 1}); err != nil {
		t.Fatalf("nil client enqueue should be noop, got %v", err)
	}
}

func TestTaskPayloadRoundTrip(t *testing.T) {
	task, err := NewOrderStatusChangedTask(OrderStatusChangedPayload{OrderID: 3, FromStatus: "pending", ToStatus: "paid"})
	if err != nil {
		t.Fatalf("new task failed: %v", err)
	}
	if task.Type() != TaskOrderStatusChanged {
		t.Fatalf("unexpected task type %s", task.Type())
	}
	var decoded OrderStatusChangedPayload
	if err := DecodePayload(task, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.OrderID != 3 || decoded.ToStatus != "paid" {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if err := DecodePayload(asynq.NewTask(TaskGroupBuyExpire, []byte("{")), &decoded); err == nil {
		t.Fatalf("expected decode error for malformed payload")
	}
}

func TestBuildServerConfigDefaults(t *testing.T) {
	opt, cfg := BuildServerConfig(nil)
	if opt.Addr != "127.0.0.1:6379" {
		t.Fatalf("unexpected redis addr %s", opt.Addr)
	}
	if cfg.Concurrency != 10 {
		t.Fatalf("concurrency want 10 got %d", cfg.Concurrency)
	}
	if cfg.Queues[CriticalQueue] != 2 || cfg.Queues[DefaultQueue] != 1 {
		t.Fatalf("unexpected queue weights %v", cfg.Queues)
	}
}
