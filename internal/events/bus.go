// Package events distributes domain events inside the process and forwards
// them to Redis pub/sub.
package events

import (
	"sync"
	"time"
)

// Type names a kind of event.
type Type string

const (
	// InstanceCreated is published after a workflow instance is created.
	InstanceCreated Type = "instance.created"
	// InstanceTransitioned is published after a successful stage transition.
	InstanceTransitioned Type = "instance.transitioned"
	// InstanceCompleted is published when an instance becomes completed,
	// either by reaching a terminal stage or explicitly.
	InstanceCompleted Type = "instance.completed"
	// RulesEvaluated is published after a rule evaluation.
	RulesEvaluated Type = "rules.evaluated"
)

// Event is a single domain event. Fields not relevant to Type are empty.
type Event struct {
	Type        Type      `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	InstanceID  string    `json:"instance_id,omitempty"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	FromStage   string    `json:"from_stage,omitempty"`
	ToStage     string    `json:"to_stage,omitempty"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
	Triggered   []string  `json:"triggered_rules,omitempty"`
}

// Publisher accepts events. Publish must not block on listeners.
type Publisher interface {
	Publish(event *Event)
}

// Listener handles one event.
type Listener func(*Event)

// Bus delivers events to listeners asynchronously. A panicking listener is
// recovered and does not affect other listeners or the publisher.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Type][]Listener
	global    []Listener
	wg        sync.WaitGroup
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[Type][]Listener)}
}

// Subscribe registers a listener for one event type.
func (b *Bus) Subscribe(t Type, l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[t] = append(b.listeners[t], l)
}

// SubscribeAll registers a listener for every event type.
func (b *Bus) SubscribeAll(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, l)
}

// Publish hands event to the listeners on a separate goroutine.
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	targets := make([]Listener, 0, len(b.listeners[event.Type])+len(b.global))
	targets = append(targets, b.listeners[event.Type]...)
	targets = append(targets, b.global...)
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for _, l := range targets {
			safeInvoke(l, event)
		}
	}()
}

// Wait blocks until every event published so far has been delivered. It is
// used on shutdown and in tests.
func (b *Bus) Wait() {
	b.wg.Wait()
}

func safeInvoke(l Listener, event *Event) {
	defer func() { _ = recover() }()
	l(event)
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(*Event) {}

var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = Nop{}
)
