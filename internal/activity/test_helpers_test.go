package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clearhaven/worklog/backend/internal/agents"
	"github.com/clearhaven/worklog/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func mustTodoID(t *testing.T, value string) TodoID {
	t.Helper()
	id, err := NewTodoID(value)
	if err != nil {
		t.Fatalf("unexpected todo id error: %v", err)
	}
	return id
}

func mustProjectID(t *testing.T, value string) ProjectID {
	t.Helper()
	id, err := NewProjectID(value)
	if err != nil {
		t.Fatalf("unexpected project id error: %v", err)
	}
	return id
}

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// stepClock hands out strictly increasing instants so created records order
// deterministically.
type stepClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func newStepClock(start int64, step time.Duration) *stepClock {
	return &stepClock{current: time.Unix(start, 0).UTC(), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := c.current
	c.current = c.current.Add(c.step)
	return value
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *capturingPublisher) Publish(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

type mapUserDirectory struct {
	summaries map[string]users.Summary
	delay     time.Duration
}

func (d *mapUserDirectory) GetSummary(ctx context.Context, userID string) (users.Summary, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return users.Summary{}, ctx.Err()
		}
	}
	summary, ok := d.summaries[userID]
	if !ok {
		return users.Summary{}, fmt.Errorf("%w: %s", users.ErrIdentityNotFound, userID)
	}
	return summary, nil
}

type mapAgentDirectory struct {
	summaries map[string]agents.Summary
}

func (d *mapAgentDirectory) GetSummary(ctx context.Context, agentID string) (agents.Summary, error) {
	summary, ok := d.summaries[agentID]
	if !ok {
		return agents.Summary{}, fmt.Errorf("%w: %s", agents.ErrAgentNotFound, agentID)
	}
	return summary, nil
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:worklog_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Activity{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

type storeFixture struct {
	service   *Service
	db        *gorm.DB
	publisher *capturingPublisher
	notifier  *Notifier
	clock     *stepClock
	users     *mapUserDirectory
	agents    *mapAgentDirectory
}

func newTestStore(t *testing.T, ids []string) *storeFixture {
	t.Helper()

	db := newTestDatabase(t)
	publisher := &capturingPublisher{}

	notifier, err := NewNotifier(NotifierConfig{Publisher: publisher})
	if err != nil {
		t.Fatalf("failed to construct notifier: %v", err)
	}
	t.Cleanup(notifier.Close)

	userDirectory := &mapUserDirectory{summaries: map[string]users.Summary{}}
	agentDirectory := &mapAgentDirectory{summaries: map[string]agents.Summary{}}
	enricher, err := NewEnricher(EnricherConfig{Users: userDirectory, Agents: agentDirectory})
	if err != nil {
		t.Fatalf("failed to construct enricher: %v", err)
	}

	clock := newStepClock(1700000000, time.Second)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: &staticIDGenerator{ids: ids},
		Notifier:   notifier,
		Enricher:   enricher,
	})
	if err != nil {
		t.Fatalf("failed to construct activity service: %v", err)
	}

	return &storeFixture{
		service:   service,
		db:        db,
		publisher: publisher,
		notifier:  notifier,
		clock:     clock,
		users:     userDirectory,
		agents:    agentDirectory,
	}
}

func waitForEvents(t *testing.T, publisher *capturingPublisher, want int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		events := publisher.Events()
		if len(events) >= want {
			return events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d published events, got %d", want, len(publisher.Events()))
	return nil
}
