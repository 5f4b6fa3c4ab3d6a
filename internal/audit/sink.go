package audit

import (
	"sync/atomic"
	"time"

	"github.com/wasmsandbox/core/internal/logging"
)

// backpressureWindow bounds how long Publish will block a Warning/Critical
// event against a full buffer before logging-and-dropping it, per spec.md
// §4.10: "apply backpressure bounded by a small buffer, then log-and-drop
// with an eviction counter incremented."
const backpressureWindow = 10 * time.Millisecond

// Sink fans every published Event out to one user-registered callback,
// atomically swappable, without ever blocking the publishing goroutine for
// longer than backpressureWindow (spec.md §4.10).
type Sink struct {
	events chan Event
	active atomic.Pointer[func(Event)]
	log    logging.Logger

	droppedInfo     atomic.Uint64
	evicted         atomic.Uint64
	done            chan struct{}
}

// NewSink starts a Sink with the given buffer depth, delivering events to
// fn (may be nil to start with no subscriber; use Subscribe to attach
// one). log defaults to a no-op logger.
func NewSink(bufferSize int, fn func(Event), log logging.Logger) *Sink {
	if log == nil {
		log = logging.NewNoOp()
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	s := &Sink{
		events: make(chan Event, bufferSize),
		log:    log,
		done:   make(chan struct{}),
	}
	if fn != nil {
		s.active.Store(&fn)
	}
	go s.run()
	return s
}

func (s *Sink) run() {
	for ev := range s.events {
		if cb := s.active.Load(); cb != nil {
			(*cb)(ev)
		}
	}
	close(s.done)
}

// Subscribe atomically replaces the delivery callback (spec.md §5: "sink
// may be replaced atomically"). A nil fn detaches the subscriber.
func (s *Sink) Subscribe(fn func(Event)) {
	if fn == nil {
		s.active.Store(nil)
		return
	}
	s.active.Store(&fn)
}

// Publish enqueues ev without ever blocking the caller indefinitely.
// Info-level events are dropped-with-counter on a full buffer; Warning and
// Critical events get one bounded retry window before they are
// log-and-dropped with the eviction counter incremented (spec.md §4.10:
// "Warning and Critical events are never silently dropped").
func (s *Sink) Publish(ev Event) {
	select {
	case s.events <- ev:
		return
	default:
	}

	if ev.Severity == SeverityInfo {
		s.droppedInfo.Add(1)
		return
	}

	timer := time.NewTimer(backpressureWindow)
	defer timer.Stop()
	select {
	case s.events <- ev:
	case <-timer.C:
		s.evicted.Add(1)
		s.log.Error(nil, "audit sink backpressure exceeded, dropping event",
			"kind", string(ev.Kind), "severity", string(ev.Severity), "instance_id", ev.InstanceID.String())
	}
}

// DroppedInfo reports how many Info events were dropped due to a full
// buffer.
func (s *Sink) DroppedInfo() uint64 { return s.droppedInfo.Load() }

// Evicted reports how many Warning/Critical events were log-and-dropped
// after exhausting their backpressure window.
func (s *Sink) Evicted() uint64 { return s.evicted.Load() }

// Close stops accepting new events and waits for the delivery goroutine to
// drain the buffer.
func (s *Sink) Close() {
	close(s.events)
	<-s.done
}
