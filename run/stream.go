package run

import (
	"sync"

	"github.com/BaSui01/runflow/types"
)

// TerminalKind tags the single frame that ends every stream.
type TerminalKind string

const (
	TerminalInterrupt TerminalKind = "interrupt"
	TerminalCompleted TerminalKind = "completed"
	TerminalError     TerminalKind = "error"
	TerminalCancelled TerminalKind = "cancelled"
)

// StreamEvent is one entry in the orchestrator's internal event sequence
// for a run: either a relayed engine event or the terminal marker.
type StreamEvent struct {
	Event EngineEvent

	Terminal bool
	Kind     TerminalKind
	Payload  any
}

// Frame is one typed, framed event delivered to a streaming client.
type Frame struct {
	Mode string `json:"mode"`
	Data any    `json:"data"`
}

// Multiplex converts a run's internal event sequence into the framed
// client stream: one frame per selected mode per engine event, then exactly
// one terminal frame. The returned channel closes after the terminal frame.
func Multiplex(events <-chan StreamEvent, modes []types.StreamMode) <-chan Frame {
	out := make(chan Frame, 16)
	go func() {
		defer close(out)
		for ev := range events {
			if ev.Terminal {
				out <- Frame{Mode: string(ev.Kind), Data: ev.Payload}
				return
			}
			for _, mode := range modes {
				out <- Frame{Mode: string(mode), Data: ev.Event.Data}
			}
		}
	}()
	return out
}

// broadcaster fans one run's event sequence out to its stream subscribers.
// Events are replayed to late subscribers so a client attaching after the
// run started still observes the full ordered sequence. Only single-run
// fan-out is supported; this is not a general pub/sub broker.
type broadcaster struct {
	mu     sync.Mutex
	events []StreamEvent
	subs   map[int]chan StreamEvent
	nextID int
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan StreamEvent)}
}

// publish appends the event and delivers it to every subscriber. A
// subscriber that stops draining is evicted rather than blocking the run.
func (b *broadcaster) publish(ev StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.events = append(b.events, ev)
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
	if ev.Terminal {
		b.closeLocked()
	}
}

// subscribe returns a channel carrying the full event sequence from the
// start of the run, and a cancel function detaching the subscriber.
func (b *broadcaster) subscribe() (<-chan StreamEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Replay plus headroom; the publisher never blocks on replayed events.
	ch := make(chan StreamEvent, len(b.events)+64)
	for _, ev := range b.events {
		ch <- ev
	}
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (b *broadcaster) closeLocked() {
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
