// Package eventbus is the in-process typed publish/subscribe fan-out for
// task/execution/routing lifecycle events (spec §4.6). It offers a global
// subscription plus per-execution log subchannels so a UI tailing one
// execution's log does not have to filter the firehose.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type enumerates the wire event types.
type Type string

const (
	TaskCreated       Type = "task:created"
	TaskUpdated       Type = "task:updated"
	TaskDeleted       Type = "task:deleted"
	TaskCommentAdded  Type = "task:comment:added"
	ExecutionCreated  Type = "execution:created"
	ExecutionUpdated  Type = "execution:updated"
	ExecutionLogEvent Type = "execution:log"
	RoutingUpdated    Type = "routing:updated"
)

// Event is the envelope every subscriber receives.
type Event struct {
	Type      Type
	Payload   map[string]any
	Timestamp int64 // server-assigned, milliseconds since epoch
}

// Handler receives published events. Handlers must not block for long —
// they run synchronously inside Emit's fan-out and a slow handler delays
// delivery to every other subscriber. Panics inside a handler are recovered
// and logged-equivalent (swallowed) so one faulty subscriber cannot corrupt
// delivery to others.
type Handler func(Event)

// Metrics is an atomically-updated snapshot of bus health.
type Metrics struct {
	Delivered       uint64
	Dropped         uint64
	DropsPerSession map[string]uint64
}

// Bus is the concrete event bus. The zero value is not usable; use New.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*Handler

	logMu    sync.RWMutex
	logSubs  map[string][]chan Event // keyed by execution id
	logBuf   int

	delivered uint64
	dropped   uint64

	dropMu   sync.Mutex
	dropsPer map[string]uint64

	now func() int64
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithLogBufferSize sets the buffer depth of each per-execution log
// subchannel. Defaults to 256.
func WithLogBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.logBuf = n
		}
	}
}

// WithClock overrides the timestamp source; used by tests.
func WithClock(now func() int64) Option {
	return func(b *Bus) { b.now = now }
}

// New constructs an empty Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logSubs:  make(map[string][]chan Event),
		dropsPer: make(map[string]uint64),
		logBuf:   256,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a global handler that receives every event. The
// returned function unsubscribes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy-on-write: replace the slice rather than mutate it in place, so a
	// concurrent Emit iterating the old slice is unaffected.
	hp := &h
	next := make([]*Handler, len(b.subscribers)+1)
	copy(next, b.subscribers)
	next[len(b.subscribers)] = hp
	b.subscribers = next

	var once sync.Once
	return func() {
		once.Do(func() {
			b.unsubscribeHandler(hp)
		})
	}
}

// unsubscribeHandler removes the subscription registered as hp, wherever it
// now sits in the slice after earlier subscribes and unsubscribes.
func (b *Bus) unsubscribeHandler(hp *Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]*Handler, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub != hp {
			next = append(next, sub)
		}
	}
	b.subscribers = next
}

// SubscribeToExecutionLogs registers a channel-based subscriber for one
// execution's log events only. The channel is buffered; a full channel
// causes the event to be dropped and counted in Metrics, never blocks Emit.
func (b *Bus) SubscribeToExecutionLogs(executionID string) (ch <-chan Event, unsubscribe func()) {
	c := make(chan Event, b.logBuf)
	b.logMu.Lock()
	b.logSubs[executionID] = append(b.logSubs[executionID], c)
	b.logMu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			b.unsubscribeLog(executionID, c)
		})
	}
}

func (b *Bus) unsubscribeLog(executionID string, target chan Event) {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	subs := b.logSubs[executionID]
	next := make([]chan Event, 0, len(subs))
	for _, c := range subs {
		if c != target {
			next = append(next, c)
		}
	}
	if len(next) == 0 {
		delete(b.logSubs, executionID)
	} else {
		b.logSubs[executionID] = next
	}
}

// Emit publishes an event of the given type and payload, non-blocking and
// best-effort. If the type is execution:log, payload must carry
// "execution_id" so it can also be fanned to that execution's log
// subchannel.
func (b *Bus) Emit(t Type, payload map[string]any) {
	evt := Event{Type: t, Payload: payload, Timestamp: b.now()}

	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()
	for _, h := range subs {
		b.dispatchSafely(*h, evt)
	}
	atomic.AddUint64(&b.delivered, uint64(len(subs)))

	if t == ExecutionLogEvent {
		if execID, ok := payload["execution_id"].(string); ok {
			b.fanToLogSubscribers(execID, evt)
		}
	}
}

func (b *Bus) dispatchSafely(h Handler, evt Event) {
	defer func() {
		_ = recover() // a subscriber panic must never break delivery to others
	}()
	h(evt)
}

func (b *Bus) fanToLogSubscribers(executionID string, evt Event) {
	b.logMu.RLock()
	subs := b.logSubs[executionID]
	b.logMu.RUnlock()

	for _, c := range subs {
		select {
		case c <- evt:
		default:
			atomic.AddUint64(&b.dropped, 1)
			b.dropMu.Lock()
			b.dropsPer[executionID]++
			b.dropMu.Unlock()
		}
	}
}

// GetMetrics returns a snapshot of delivery/drop counters.
func (b *Bus) GetMetrics() Metrics {
	b.dropMu.Lock()
	perSession := make(map[string]uint64, len(b.dropsPer))
	for k, v := range b.dropsPer {
		perSession[k] = v
	}
	b.dropMu.Unlock()

	return Metrics{
		Delivered:       atomic.LoadUint64(&b.delivered),
		Dropped:         atomic.LoadUint64(&b.dropped),
		DropsPerSession: perSession,
	}
}
