package activity

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// EventActivityCreated is published once per successful create.
	EventActivityCreated = "activity-created"
	// EventActivityUpdated is published once per successful update and carries
	// the replacement content so subscribers can patch in place.
	EventActivityUpdated = "activity-updated"

	defaultNotifyQueueSize = 64
)

var errMissingPublisher = errors.New("notification publisher is required")

// Event is one realtime notification about an activity mutation, scoped to a
// project/todo channel.
type Event struct {
	Type       string          `json:"type"`
	ProjectID  string          `json:"project_id"`
	TodoID     string          `json:"todo_id"`
	ActivityID string          `json:"activity_id"`
	Content    json.RawMessage `json:"content,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Publisher hands events to the realtime transport.
type Publisher interface {
	Publish(event Event) error
}

// NotifierConfig describes the async notification dispatch.
type NotifierConfig struct {
	Publisher Publisher
	Logger    *zap.Logger
	QueueSize int
	Clock     func() time.Time
}

// Notifier decouples notification publishing from the create/update request
// path: events go through a bounded queue drained by a single worker, and
// neither queue overflow nor publish failure ever reaches the caller.
type Notifier struct {
	publisher Publisher
	logger    *zap.Logger
	clock     func() time.Time

	queue     chan Event
	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewNotifier constructs a Notifier and starts its worker.
func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	if cfg.Publisher == nil {
		return nil, errMissingPublisher
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultNotifyQueueSize
	}

	notifier := &Notifier{
		publisher: cfg.Publisher,
		logger:    logger,
		clock:     clock,
		queue:     make(chan Event, queueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go notifier.drain()
	return notifier, nil
}

// CreatedParams identifies a freshly created activity.
type CreatedParams struct {
	ProjectID  string
	TodoID     string
	ActivityID string
}

// NotifyCreated enqueues an activity-created event. It never blocks.
func (n *Notifier) NotifyCreated(params CreatedParams) {
	n.enqueue(Event{
		Type:       EventActivityCreated,
		ProjectID:  params.ProjectID,
		TodoID:     params.TodoID,
		ActivityID: params.ActivityID,
		Timestamp:  n.clock().UTC(),
	})
}

// UpdatedParams identifies an updated activity plus its replacement content.
type UpdatedParams struct {
	ProjectID  string
	TodoID     string
	ActivityID string
	Content    json.RawMessage
}

// NotifyUpdated enqueues an activity-updated event. It never blocks.
func (n *Notifier) NotifyUpdated(params UpdatedParams) {
	n.enqueue(Event{
		Type:       EventActivityUpdated,
		ProjectID:  params.ProjectID,
		TodoID:     params.TodoID,
		ActivityID: params.ActivityID,
		Content:    params.Content,
		Timestamp:  n.clock().UTC(),
	})
}

// DroppedCount reports how many events were shed because the queue was full.
func (n *Notifier) DroppedCount() int64 {
	return n.dropped.Load()
}

// FailedCount reports how many events the transport refused.
func (n *Notifier) FailedCount() int64 {
	return n.failed.Load()
}

// Close stops the worker after draining whatever is already queued.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() {
		close(n.stop)
		<-n.done
	})
}

func (n *Notifier) enqueue(event Event) {
	select {
	case <-n.stop:
		n.dropped.Add(1)
		return
	default:
	}
	select {
	case n.queue <- event:
	default:
		n.dropped.Add(1)
		n.logger.Warn("notification queue full, event dropped",
			zap.String("event_type", event.Type),
			zap.String("todo_id", event.TodoID),
			zap.String("activity_id", event.ActivityID),
			zap.Int64("dropped_total", n.dropped.Load()))
	}
}

func (n *Notifier) drain() {
	defer close(n.done)
	for {
		select {
		case event := <-n.queue:
			n.publish(event)
		case <-n.stop:
			for {
				select {
				case event := <-n.queue:
					n.publish(event)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) publish(event Event) {
	if err := n.publisher.Publish(event); err != nil {
		n.failed.Add(1)
		n.logger.Error("notification publish failed",
			zap.String("event_type", event.Type),
			zap.String("todo_id", event.TodoID),
			zap.String("activity_id", event.ActivityID),
			zap.Error(err))
	}
}
