package stream

import (
	"context"
	"sync"

	"github.com/blockberries/dapi/metrics"
	"github.com/blockberries/dapi/types"
)

// Handler receives mediator events. Handlers run synchronously on the
// publishing goroutine and must not block for long.
type Handler func(types.StreamEvent)

// Subscription identifies one handler registration.
type Subscription struct {
	kind types.EventKind
	id   uint64
}

// Kind returns the event kind the subscription listens to.
func (s Subscription) Kind() types.EventKind { return s.kind }

// Mediator is the event hub of one client connection.
//
// Any number of handlers may listen to each event kind; each receives
// every event published while it is attached, exactly once, in no
// particular order relative to other handlers. Nothing is buffered for
// handlers that attach later.
//
// Only the owning [Session] publishes. Callers outside this package
// can listen and disconnect. A Disconnect that arrives while an event
// is being fanned out skips the handlers not yet called, and
// clientDisconnected is then delivered by the publishing goroutine
// once the running handler returns, so no listener sees an event after
// clientDisconnected.
type Mediator struct {
	lc lifecycle

	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}

	mu       sync.Mutex
	nextID   uint64
	handlers map[types.EventKind]map[uint64]Handler
	reason   string

	// delivering counts publish calls running handlers; a Disconnect
	// arriving meanwhile is finished by the last of them.
	delivering int
	deferred   bool

	metrics *metrics.Metrics
}

func newMediator(m *metrics.Metrics) *Mediator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Mediator{
		ctx:      ctx,
		cancel:   cancel,
		closed:   make(chan struct{}),
		handlers: make(map[types.EventKind]map[uint64]Handler),
		metrics:  m,
	}
}

// Subscribe attaches h to events of the given kind. Subscribing to a
// closed mediator returns a subscription that never fires.
func (m *Mediator) Subscribe(kind types.EventKind, h Handler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	sub := Subscription{kind: kind, id: m.nextID}
	if m.lc.load() == StateClosed {
		return sub
	}
	hs := m.handlers[kind]
	if hs == nil {
		hs = make(map[uint64]Handler)
		m.handlers[kind] = hs
	}
	hs[sub.id] = h
	return sub
}

// Unsubscribe detaches a handler. Unknown or already removed
// subscriptions are ignored.
func (m *Mediator) Unsubscribe(sub Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers[sub.kind], sub.id)
}

// Listeners returns the number of handlers attached to kind.
func (m *Mediator) Listeners(kind types.EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers[kind])
}

// State returns the current lifecycle state.
func (m *Mediator) State() State { return m.lc.load() }

// Done is closed once a disconnect has started.
func (m *Mediator) Done() <-chan struct{} { return m.ctx.Done() }

// Closed is closed once the mediator reaches StateClosed.
func (m *Mediator) Closed() <-chan struct{} { return m.closed }

// Reason returns the disconnect reason, or "" while active.
func (m *Mediator) Reason() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Disconnect delivers clientDisconnected to the attached listeners,
// cancels any replay or forwarding driven by this mediator and closes
// it. Only the first call has an effect.
//
// If an event is being delivered concurrently, Disconnect returns after
// cancelling and the publisher completes the close; wait on Closed to
// observe it.
func (m *Mediator) Disconnect(reason string) {
	if !m.lc.beginDisconnect() {
		return
	}
	m.mu.Lock()
	m.reason = reason
	deferred := m.delivering > 0
	m.deferred = deferred
	m.mu.Unlock()

	// Cancel first so a replay loop stops at its next unit boundary
	// even while a listener is still running.
	m.cancel()
	if deferred {
		return
	}
	m.finish()
}

func (m *Mediator) finish() {
	m.mu.Lock()
	reason := m.reason
	hs := m.snapshot(types.EventClientDisconnected)
	m.mu.Unlock()

	m.metrics.EventPublished(types.EventClientDisconnected)
	ev := types.StreamEvent{Kind: types.EventClientDisconnected, Reason: reason}
	for _, h := range hs {
		h(ev)
	}

	m.mu.Lock()
	m.handlers = make(map[types.EventKind]map[uint64]Handler)
	m.mu.Unlock()

	m.lc.close()
	close(m.closed)
}

// publish delivers ev to the handlers of its kind. It is a no-op
// unless the mediator is active, and handlers not yet called when a
// disconnect starts are skipped.
func (m *Mediator) publish(ev types.StreamEvent) bool {
	m.mu.Lock()
	if m.lc.load() != StateActive {
		m.mu.Unlock()
		return false
	}
	hs := m.snapshot(ev.Kind)
	m.delivering++
	m.mu.Unlock()

	m.metrics.EventPublished(ev.Kind)
	for _, h := range hs {
		if m.lc.load() != StateActive {
			break
		}
		h(ev)
	}

	m.mu.Lock()
	m.delivering--
	deferred := m.deferred && m.delivering == 0
	if deferred {
		m.deferred = false
	}
	m.mu.Unlock()

	if deferred {
		m.finish()
	}
	return true
}

// snapshot copies the handlers of kind. m.mu must be held.
func (m *Mediator) snapshot(kind types.EventKind) []Handler {
	hs := make([]Handler, 0, len(m.handlers[kind]))
	for _, h := range m.handlers[kind] {
		hs = append(hs, h)
	}
	return hs
}
