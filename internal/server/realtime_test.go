package server

import (
	"context"
	"testing"
	"time"

	"github.com/clearhaven/worklog/backend/internal/activity"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, ChannelKey("project-1", "todo-1"))
	defer cleanup()

	event := activity.Event{
		Type:       activity.EventActivityCreated,
		ProjectID:  "project-1",
		TodoID:     "todo-1",
		ActivityID: "act-1",
		Timestamp:  time.Now().UTC(),
	}
	if err := dispatcher.Publish(event); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	select {
	case received := <-stream:
		if received.Type != activity.EventActivityCreated {
			t.Fatalf("expected event type %s, got %s", activity.EventActivityCreated, received.Type)
		}
		if received.ActivityID != "act-1" {
			t.Fatalf("expected activity id act-1, got %s", received.ActivityID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime event within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByChannel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	todoStream, cleanup := dispatcher.Subscribe(ctx, ChannelKey("project-1", "todo-1"))
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, ChannelKey("project-1", "todo-2"))
	defer otherCleanup()

	if err := dispatcher.Publish(activity.Event{
		Type:       activity.EventActivityUpdated,
		ProjectID:  "project-1",
		TodoID:     "todo-1",
		ActivityID: "act-1",
	}); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	select {
	case <-todoStream:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event on the matching channel")
	}

	select {
	case event := <-otherStream:
		t.Fatalf("unexpected event leaked to another todo channel: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRealtimeDispatcherUnsubscribesOnContextCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	stream, cleanup := dispatcher.Subscribe(ctx, ChannelKey("project-1", "todo-1"))
	defer cleanup()

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dispatcher.mu.RLock()
		remaining := len(dispatcher.subscribers)
		dispatcher.mu.RUnlock()
		if remaining == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	dispatcher.mu.RLock()
	remaining := len(dispatcher.subscribers)
	dispatcher.mu.RUnlock()
	if remaining != 0 {
		t.Fatalf("expected subscriber map to be empty after cancellation")
	}

	if err := dispatcher.Publish(activity.Event{
		Type:       activity.EventActivityCreated,
		ProjectID:  "project-1",
		TodoID:     "todo-1",
		ActivityID: "act-1",
	}); err != nil {
		t.Fatalf("unexpected publish error: %v", err)
	}

	select {
	case event, ok := <-stream:
		if ok {
			t.Fatalf("unexpected event after unsubscribe: %+v", event)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRealtimeDispatcherDropsWhenSubscriberBufferFull(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	dispatcher.bufferSize = 1
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, ChannelKey("project-1", "todo-1"))
	defer cleanup()

	for index := 0; index < 3; index++ {
		if err := dispatcher.Publish(activity.Event{
			Type:       activity.EventActivityCreated,
			ProjectID:  "project-1",
			TodoID:     "todo-1",
			ActivityID: "act-1",
		}); err != nil {
			t.Fatalf("unexpected publish error: %v", err)
		}
	}

	received := 0
drain:
	for {
		select {
		case <-stream:
			received++
		default:
			break drain
		}
	}
	if received != 1 {
		t.Fatalf("expected exactly the buffered event, got %d", received)
	}
}
