package wire

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// EventKind discriminates the payload types published on the bus.
type EventKind uint8

const (
	// EventSample carries one MeasurementSample.
	EventSample EventKind = iota
	// EventAnomaly carries one AnomalyEvent.
	EventAnomaly
	// EventTerminal is the last event a subscriber ever receives. Err is
	// nil for a normal end of stream and non-nil for a session-fatal
	// failure. The subscription channel closes after it.
	EventTerminal
)

// Event is one item on a subscriber's ordered stream.
type Event struct {
	Kind    EventKind
	Sample  MeasurementSample
	Anomaly AnomalyEvent
	Err     error
}

// DropPolicy controls what happens when a subscriber's queue is full.
type DropPolicy uint8

const (
	// DropOldest evicts the oldest unread item for that subscriber only
	// and records the loss. Suited to display consumers, which tolerate
	// lag but must never stall the producer.
	DropOldest DropPolicy = iota
	// BlockProducer makes the publisher wait for queue space. Suited to
	// persistence consumers, which are data-loss-intolerant; give these
	// a generous capacity.
	BlockProducer
)

// Subscription is one consumer's handle on the bus. Events arrive in
// publication order; sequence numbers on samples are strictly increasing
// with gaps only where Dropped says items were evicted.
type Subscription struct {
	name    string
	policy  DropPolicy
	ch      chan Event
	dropped atomic.Uint64

	// mu serialises publishers against each other for the evict-and-send
	// sequence; consumers only ever receive.
	mu sync.Mutex
}

// Events returns the subscriber's ordered stream. The channel closes
// after the terminal event.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Name returns the subscriber name.
func (s *Subscription) Name() string { return s.name }

// Dropped returns how many events were evicted from this subscriber's
// queue because it was full. Consumers use it to detect loss.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

func (s *Subscription) deliver(ev Event) {
	if s.policy == BlockProducer {
		s.ch <- ev
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		// Queue full: evict the oldest unread item. The consumer may
		// race us for it, which is fine either way.
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// Bus fans measurement samples and anomaly events out to subscribers,
// each with its own bounded, ordered queue. A slow subscriber can lag or
// lose items according to its policy, but never stalls the pipeline
// worker indefinitely.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
	logger *log.Logger
}

// NewBus returns an empty bus. logger may be nil.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{subs: make(map[string]*Subscription), logger: logger}
}

// Subscribe registers a consumer. capacity must be positive; name must be
// unique among live subscriptions.
func (b *Bus) Subscribe(name string, capacity int, policy DropPolicy) (*Subscription, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("subscription capacity must be positive, got %d", capacity)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}
	if _, exists := b.subs[name]; exists {
		return nil, fmt.Errorf("subscriber %q already registered", name)
	}
	sub := &Subscription{
		name:   name,
		policy: policy,
		ch:     make(chan Event, capacity),
	}
	b.subs[name] = sub
	return sub, nil
}

// Unsubscribe removes a consumer and closes its stream. No-op for an
// unknown name.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[name]; ok {
		delete(b.subs, name)
		close(sub.ch)
	}
}

// PublishSample delivers a sample to every subscriber.
func (b *Bus) PublishSample(s MeasurementSample) {
	b.publish(Event{Kind: EventSample, Sample: s})
}

// PublishAnomaly delivers an anomaly event to every subscriber.
func (b *Bus) PublishAnomaly(a AnomalyEvent) {
	b.publish(Event{Kind: EventAnomaly, Anomaly: a})
}

func (b *Bus) publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.deliver(ev)
	}
}

// Close publishes the terminal event to all subscribers and closes their
// streams. err is nil for a normal end of stream. Idempotent.
func (b *Bus) Close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		sub.deliver(Event{Kind: EventTerminal, Err: err})
		close(sub.ch)
	}
	b.subs = make(map[string]*Subscription)
	if err != nil {
		b.logger.Printf("[Bus] closed with terminal error: %v", err)
	}
}
