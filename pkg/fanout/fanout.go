// Package fanout implements the Fan-out Bus: a broker that delivers
// kernel-internal events to every subscribed tab in dispatch order.
// One Bus serves every namespace; messages carry their own Namespace
// field so subscribers filter if they only care about one.
package fanout

import (
	"sync"
	"time"

	"github.com/cuemby/bkmsync/pkg/metrics"
)

// MessageType enumerates the catalogue a tab can subscribe to.
type MessageType string

const (
	MsgOperationProcessed     MessageType = "operation_processed"
	MsgTreeReloaded           MessageType = "tree_reloaded"
	MsgHydrateNode            MessageType = "hydrate_node"
	MsgRootHydrated           MessageType = "root_hydrated"
	MsgRootHydrationFailed    MessageType = "root_hydration_failed"
	MsgSSEStateChanged        MessageType = "sse_state_changed"
	MsgSyncStatusChanged      MessageType = "sync_status_changed"
	MsgOperationSyncCompleted MessageType = "operation_sync_completed"
)

// Message is one fan-out event. Payload is message-type specific and
// left untyped here deliberately: the kernel is the only producer and
// the wire layer (pkg/api) is the only consumer that needs to inspect
// it, so a shared interface would buy nothing but an extra indirection.
type Message struct {
	Type      MessageType
	Namespace string
	Timestamp time.Time
	Payload   interface{}
}

// Subscriber is a channel a tab connection reads fan-out messages from.
type Subscriber chan *Message

// Bus distributes messages to every live subscriber. A slow or absent
// reader never blocks the kernel: delivery is best-effort, bounded by
// each subscriber's buffer.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	msgCh       chan *Message
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBus creates a Bus with an internal buffer of 256 messages.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Subscriber]bool),
		msgCh:       make(chan *Message, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the bus's distribution loop in its own goroutine.
func (b *Bus) Start() {
	go b.run()
}

// Stop halts distribution. Subscriber channels are left open; only
// Unsubscribe closes one.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe registers a new subscriber with a per-tab buffer.
func (b *Bus) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes and closes sub. Safe to call more than once.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish enqueues msg for distribution, stamping Timestamp if unset.
// Publish blocks only until the internal queue accepts the message or
// the bus stops; it never waits on a slow subscriber.
func (b *Bus) Publish(msg *Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	metrics.FanoutMessagesTotal.WithLabelValues(string(msg.Type)).Inc()
	select {
	case b.msgCh <- msg:
	case <-b.stopCh:
	}
}

func (b *Bus) run() {
	for {
		select {
		case msg := <-b.msgCh:
			b.broadcast(msg)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) broadcast(msg *Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- msg:
		default:
			// Subscriber buffer full: drop rather than stall the bus.
			// Tabs reconcile state via getTree on reconnect/backfill.
		}
	}
}

// SubscriberCount returns the number of live subscribers, for metrics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
