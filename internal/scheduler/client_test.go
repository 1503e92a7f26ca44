package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

type testConfig struct {
	addr  string
	queue string
}

func (c testConfig) GetRedisAddr() string          { return c.addr }
func (c testConfig) GetRedisDB() int               { return 0 }
func (c testConfig) GetAsynqQueueName() string     { return c.queue }
func (c testConfig) GetAsynqConcurrency() int      { return 1 }
func (c testConfig) GetEventRetention() time.Duration {
	return 30 * 24 * time.Hour
}

func TestScheduleEventsPrune(t *testing.T) {
	mr := miniredis.RunT(t)

	c := NewClient(testConfig{addr: mr.Addr(), queue: "maintenance"})
	defer c.Close()

	runAt := time.Now().Add(time.Hour)
	if err := c.ScheduleEventsPrune(context.Background(), EventsPrunePayload{RetentionDays: 30}, runAt); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}

	if !mr.Exists("asynq:{maintenance}:scheduled") {
		t.Fatal("expected the task in the scheduled set")
	}
}

func TestClientNilSafe(t *testing.T) {
	var c *Client
	if err := c.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
	if err := c.ScheduleEventsPrune(context.Background(), EventsPrunePayload{}, time.Now()); err != nil {
		t.Fatalf("nil schedule: %v", err)
	}
}
