package event

import (
	"context"
	"testing"
	"time"

	"fseventwatcher/internal/metrics"
)

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus[string](context.Background(), BusOptions{Name: "test", Registry: &metrics.Registry{}})
	defer bus.Close()

	events, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish("hello")

	select {
	case got := <-events:
		if got != "hello" {
			t.Fatalf("expected %q, got %q", "hello", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBusFilteredSubscription(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{Name: "test", Registry: &metrics.Registry{}})
	defer bus.Close()

	events, cancel := bus.SubscribeFiltered(func(value int) bool {
		return value%2 == 0
	})
	defer cancel()

	bus.Publish(1)
	bus.Publish(2)

	select {
	case got := <-events:
		if got != 2 {
			t.Fatalf("expected 2, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus[int](context.Background(), BusOptions{
		Name:                 "test",
		SubscriberBufferSize: 1,
		Registry:             &metrics.Registry{},
	})
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(1)
	bus.Publish(2)

	if dropped := bus.Dropped(); dropped != 1 {
		t.Fatalf("expected 1 dropped event, got %d", dropped)
	}
}

func TestBusInvokesDropHookWhenSubscriberIsFull(t *testing.T) {
	var reasons []string
	bus := NewBus[int](context.Background(), BusOptions{
		Name:                 "test",
		SubscriberBufferSize: 1,
		Registry:             &metrics.Registry{},
		OnDrop: func(reason string) {
			reasons = append(reasons, reason)
		},
	})
	defer bus.Close()

	_, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(1)
	bus.Publish(2)
	bus.Publish(3)

	if len(reasons) != 2 {
		t.Fatalf("expected 2 drop notifications, got %d", len(reasons))
	}
	if reasons[0] == "" {
		t.Fatal("expected a non-empty drop reason")
	}
}

func TestBusClosesSubscribersOnContextCancel(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	bus := NewBus[int](ctx, BusOptions{Name: "test", Registry: &metrics.Registry{}})

	events, cancel := bus.Subscribe()
	defer cancel()

	cancelCtx()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	if count := bus.SubscriberCount(); count != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", count)
	}
}
