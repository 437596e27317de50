package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventPackageInstalling EventType = "package.installing"
	EventPackageInstalled  EventType = "package.installed"
	EventPackageRemoved    EventType = "package.removed"
	EventPackageStarted    EventType = "package.started"
	EventPackageStopped    EventType = "package.stopped"
	EventPackageBackingUp  EventType = "package.backing-up"
	EventPackageBackedUp   EventType = "package.backed-up"
	EventPackageRestoring  EventType = "package.restoring"
	EventPackageRestored   EventType = "package.restored"
	EventConfigureApplied  EventType = "configure.applied"
	EventDependencyBroken  EventType = "dependency.broken"
	EventDependencyHealed  EventType = "dependency.healed"

	// EventHealthCheckCritical is published when a critical health check
	// fails and the reconciler transitions the package to Stopping. It is
	// the "external sink" the health loop notifies, per the resolved
	// critical-health-check Open Question: appmgr does not assume any
	// particular downstream subscriber exists.
	EventHealthCheckCritical EventType = "health-check.critical"

	EventRuntimeAnomaly EventType = "runtime.anomaly"
)

// Event represents a daemon-wide event.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	PackageId string
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	// Set ID and timestamp if not set
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
