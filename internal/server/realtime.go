package server

import (
	"context"
	"sync"

	"github.com/clearhaven/worklog/backend/internal/activity"
)

// ChannelKey derives the realtime channel identifier for one todo inside one
// project. All activity events for that todo flow through this channel.
func ChannelKey(projectID, todoID string) string {
	return projectID + "/" + todoID
}

// RealtimeDispatcher fans activity events out to live subscribers of a
// project/todo channel. Delivery is best-effort: a subscriber whose buffer is
// full misses the event rather than blocking the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan activity.Event
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener on the channel until ctx is done. The
// returned cleanup is idempotent and safe to call alongside cancellation.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, channelKey string) (<-chan activity.Event, func()) {
	if channelKey == "" {
		ch := make(chan activity.Event)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan activity.Event, d.bufferSize),
	}
	d.registerSubscriber(channelKey, subscriber)
	cleanup := func() {
		d.unregisterSubscriber(channelKey, subscriber.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish delivers one event to every subscriber of its project/todo channel.
// It implements activity.Publisher.
func (d *RealtimeDispatcher) Publish(event activity.Event) error {
	if event.ProjectID == "" || event.TodoID == "" || event.Type == "" {
		return nil
	}
	channelKey := ChannelKey(event.ProjectID, event.TodoID)
	d.mu.RLock()
	subscribers := d.subscribers[channelKey]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return nil
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- event:
		default:
		}
	}
	return nil
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(channelKey string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[channelKey]; !ok {
		d.subscribers[channelKey] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[channelKey][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(channelKey string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[channelKey]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, channelKey)
		}
	}
	d.mu.Unlock()
}
