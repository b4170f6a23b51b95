// Package events implements the synchronous in-process event bus of
// spec.md §4.D, §5: NodeCreated/NodeUpdated/NodeDeleted notifications
// fanned out in the publishing goroutine, with subscriber panics
// recovered and subscriber errors logged rather than propagated.
package events

import (
	"context"
	"sync"

	"github.com/antbox/ecm/internal/domain/nodes"
	"github.com/antbox/ecm/pkg/logger"
)

// EventID names one of the three node lifecycle events.
type EventID string

const (
	NodeCreated EventID = "NodeCreatedEvent"
	NodeUpdated EventID = "NodeUpdatedEvent"
	NodeDeleted EventID = "NodeDeletedEvent"
)

// Event carries the node a lifecycle transition happened to, plus —
// for NodeUpdated — the set of field/property keys that changed and
// their before/after values, matching spec.md §6's wire payload
// {uuid, oldValues, newValues}.
type Event struct {
	ID          EventID
	Node        *nodes.Node
	ChangedKeys []string
	OldValues   map[string]any
	NewValues   map[string]any
}

// Subscriber handles one event. It runs inside Publish's calling
// goroutine unless the subscriber itself offloads work (see
// Async).
type Subscriber func(ctx context.Context, evt Event) error

// Bus is a synchronous, in-process pub/sub keyed by EventID.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventID][]Subscriber
	log         *logger.Logger
}

func NewBus(log *logger.Logger) *Bus {
	return &Bus{subscribers: map[EventID][]Subscriber{}, log: log}
}

// Subscribe registers fn to run, in registration order, whenever id is
// published.
func (b *Bus) Subscribe(id EventID, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = append(b.subscribers[id], fn)
}

// Publish fans out evt to every subscriber of evt.ID, in the calling
// goroutine, in registration order. A subscriber panic is recovered
// and logged; a subscriber error is logged and swallowed — Publish
// never fails the calling operation (spec.md §4.D).
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subscribers[evt.ID]))
	copy(subs, b.subscribers[evt.ID])
	b.mu.RUnlock()

	for _, sub := range subs {
		b.runOne(ctx, evt, sub)
	}
}

func (b *Bus) runOne(ctx context.Context, evt Event, sub Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			if b.log != nil {
				b.log.Error("event subscriber panicked", "event", string(evt.ID), "uuid", evt.Node.UUID, "recover", r)
			}
		}
	}()
	if err := sub(ctx, evt); err != nil && b.log != nil {
		b.log.Error("event subscriber failed", "event", string(evt.ID), "uuid", evt.Node.UUID, "error", err)
	}
}

// Async turns an enqueue function (for example Pool.Enqueue) into a
// Subscriber, so Publish only waits for the hand-off, not for the I/O
// work itself (embedding indexing, OCR). Async does no retrying of its
// own; with Pool.Enqueue, an event that meets a full queue is dropped.
func Async(enqueue func(ctx context.Context, evt Event) error) Subscriber {
	return func(ctx context.Context, evt Event) error {
		return enqueue(ctx, evt)
	}
}

// Pool runs enqueued events through fn using a fixed number of
// goroutines, dropping work on Close rather than blocking it.
type Pool struct {
	jobs   chan Event
	fn     func(ctx context.Context, evt Event) error
	log    *logger.Logger
	wg     sync.WaitGroup
	closed chan struct{}
}

func NewPool(workers int, fn func(ctx context.Context, evt Event) error, log *logger.Logger) *Pool {
	p := &Pool{
		jobs:   make(chan Event, 256),
		fn:     fn,
		log:    log,
		closed: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case evt, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.fn(context.Background(), evt); err != nil && p.log != nil {
				p.log.Error("async event handler failed", "event", string(evt.ID), "uuid", evt.Node.UUID, "error", err)
			}
		case <-p.closed:
			return
		}
	}
}

// Enqueue submits evt without blocking the caller; a full queue drops
// the event and logs, rather than backpressuring the triggering
// operation.
func (p *Pool) Enqueue(ctx context.Context, evt Event) error {
	select {
	case p.jobs <- evt:
		return nil
	default:
		if p.log != nil {
			p.log.Error("async event queue full, dropping event", "event", string(evt.ID), "uuid", evt.Node.UUID)
		}
		return nil
	}
}

func (p *Pool) Close() {
	close(p.closed)
	p.wg.Wait()
}
