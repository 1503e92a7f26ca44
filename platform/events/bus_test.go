package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingEvent struct {
	N int
}

func (e pingEvent) EventName() string { return "test.ping" }

func TestPublishSyncDeliversToSubscribers(t *testing.T) {
	bus := NewInMemoryBus(nil)

	var got []int
	bus.Subscribe(pingEvent{}.EventName(), HandlerFunc(func(ctx context.Context, event Event) error {
		got = append(got, event.(pingEvent).N)
		return nil
	}))
	bus.Subscribe(pingEvent{}.EventName(), HandlerFunc(func(ctx context.Context, event Event) error {
		got = append(got, event.(pingEvent).N*10)
		return nil
	}))

	if err := bus.PublishSync(context.Background(), pingEvent{N: 7}); err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}
	if len(got) != 2 || got[0] != 7 || got[1] != 70 {
		t.Fatalf("expected both handlers to run in order, got %v", got)
	}
}

func TestPublishSyncJoinsHandlerErrors(t *testing.T) {
	bus := NewInMemoryBus(nil)

	sentinel := errors.New("handler failed")
	bus.Subscribe(pingEvent{}.EventName(), HandlerFunc(func(ctx context.Context, event Event) error {
		return sentinel
	}))

	err := bus.PublishSync(context.Background(), pingEvent{})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestPublishSyncWithoutSubscribersIsNoop(t *testing.T) {
	bus := NewInMemoryBus(nil)
	if err := bus.PublishSync(context.Background(), pingEvent{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestPublishIsAsynchronous(t *testing.T) {
	bus := NewInMemoryBus(nil)

	delivered := make(chan int, 1)
	bus.Subscribe(pingEvent{}.EventName(), HandlerFunc(func(ctx context.Context, event Event) error {
		delivered <- event.(pingEvent).N
		return nil
	}))

	bus.Publish(context.Background(), pingEvent{N: 3})

	select {
	case n := <-delivered:
		if n != 3 {
			t.Fatalf("expected 3, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}
