package stream

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/blockberries/dapi"
	"github.com/blockberries/dapi/metrics"
	"github.com/blockberries/dapi/types"
	"github.com/google/uuid"
)

// DefaultLiveBuffer is the live channel capacity per session.
const DefaultLiveBuffer = 256

// ErrShutdown is returned by OpenStream after CloseAll.
var ErrShutdown = errors.New("stream: orchestrator shut down")

// Orchestrator creates and tracks stream sessions. Each OpenStream
// call gets a fresh mediator; mediators are never shared or reused.
type Orchestrator struct {
	log *slog.Logger

	history    dapi.HistorySource
	live       dapi.LiveFeed
	liveBuffer int

	metrics *metrics.Metrics

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	shutdown bool
}

// Config is the configuration type for [NewOrchestrator].
type Config struct {
	History dapi.HistorySource
	Live    dapi.LiveFeed

	// LiveBuffer is the capacity of each session's live channel.
	// Zero means DefaultLiveBuffer.
	LiveBuffer int

	// Optional.
	Metrics *metrics.Metrics
}

// NewOrchestrator returns an Orchestrator for the given sources.
func NewOrchestrator(log *slog.Logger, cfg Config) *Orchestrator {
	buf := cfg.LiveBuffer
	if buf <= 0 {
		buf = DefaultLiveBuffer
	}
	return &Orchestrator{
		log: log,

		history:    cfg.History,
		live:       cfg.Live,
		liveBuffer: buf,

		metrics: cfg.Metrics,

		sessions: make(map[uuid.UUID]*Session),
	}
}

// OpenStream creates a session for filter. The caller attaches
// listeners to its mediator and then calls Run.
func (o *Orchestrator) OpenStream(filter types.Filter) (*Session, error) {
	id := uuid.New()
	s := &Session{
		id:  id,
		log: o.log.With("session", id),

		filter:   filter,
		mediator: newMediator(o.metrics),

		history:    o.history,
		live:       o.live,
		liveBuffer: o.liveBuffer,
	}
	s.release = func() { o.remove(id) }

	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil, ErrShutdown
	}
	o.sessions[id] = s
	o.mu.Unlock()

	o.metrics.SessionOpened()
	o.log.Debug("Opened stream", "session", id, "from_height", filter.FromHeight, "elements", len(filter.Elements))
	return s, nil
}

// Session returns the open session with the given id.
func (o *Orchestrator) Session(id uuid.UUID) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[id]
	return s, ok
}

// CloseStream disconnects the session with the given id. It reports
// false if no such session is open.
func (o *Orchestrator) CloseStream(id uuid.UUID, reason string) bool {
	s, ok := o.Session(id)
	if !ok {
		return false
	}
	s.Disconnect(reason)
	return true
}

// CloseAll disconnects every open session and refuses new ones.
func (o *Orchestrator) CloseAll(reason string) {
	o.mu.Lock()
	o.shutdown = true
	sessions := make([]*Session, 0, len(o.sessions))
	for _, s := range o.sessions {
		sessions = append(sessions, s)
	}
	o.mu.Unlock()

	for _, s := range sessions {
		s.Disconnect(reason)
	}
}

// Len returns the number of open sessions.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

func (o *Orchestrator) remove(id uuid.UUID) {
	o.mu.Lock()
	_, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()

	if ok {
		o.metrics.SessionClosed()
		o.log.Debug("Closed stream", "session", id)
	}
}
