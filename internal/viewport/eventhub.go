package viewport

import (
	"sync"

	"github.com/rs/zerolog"
)

// EventKind names the events guards publish and the viewport/agent
// subscribe to (spec §4.6).
type EventKind string

const (
	EventPolicyViolation EventKind = "policy-violation"
	EventTabOpened       EventKind = "tab-opened"
	EventContentReady    EventKind = "content-ready"
	EventDownload        EventKind = "download"
	EventCrash           EventKind = "crash"
)

// Event is one published occurrence; Data is event-kind specific.
type Event struct {
	Kind EventKind
	Data any
}

// Listener handles one Event; it must not block or panic (the hub
// recovers and logs instead of propagating).
type Listener func(Event)

// EventHub is a typed, synchronous publish/subscribe bus. Delivery to
// listeners of one event kind happens in subscription order; no ordering
// is promised across kinds (spec §4.6, §5).
type EventHub struct {
	mu        sync.Mutex
	listeners map[EventKind][]Listener
	log       zerolog.Logger
}

func NewEventHub(log zerolog.Logger) *EventHub {
	return &EventHub{listeners: make(map[EventKind][]Listener), log: log}
}

// Subscribe registers fn for kind; returns an unsubscribe func.
func (h *EventHub) Subscribe(kind EventKind, fn Listener) func() {
	h.mu.Lock()
	h.listeners[kind] = append(h.listeners[kind], fn)
	idx := len(h.listeners[kind]) - 1
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.listeners[kind]
		if idx < len(list) {
			list[idx] = nil
		}
	}
}

// Publish delivers ev to every live subscriber of ev.Kind, synchronously,
// in subscription order. A listener panic is caught and logged; it never
// propagates (spec §4.6 "listeners must not throw out of the hub").
func (h *EventHub) Publish(ev Event) {
	h.mu.Lock()
	list := append([]Listener(nil), h.listeners[ev.Kind]...)
	h.mu.Unlock()

	for _, fn := range list {
		if fn == nil {
			continue
		}
		h.dispatch(fn, ev)
	}
}

func (h *EventHub) dispatch(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn().Interface("recover", r).Str("kind", string(ev.Kind)).Msg("guard listener panicked, swallowed")
		}
	}()
	fn(ev)
}
