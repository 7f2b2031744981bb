package events

// Event represents a structured state change emitted by the lending ledger.
type Event interface {
	EventType() string
}

// Record is the flattened form of an event handed to subscribers such as the
// archive and the websocket stream.
type Record struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Recordable events render their own attribute set.
type Recordable interface {
	Event
	Record() *Record
}

// ToRecord flattens an event, falling back to a bare type when the event does
// not render attributes.
func ToRecord(evt Event) *Record {
	if evt == nil {
		return nil
	}
	if r, ok := evt.(Recordable); ok {
		if rec := r.Record(); rec != nil {
			return rec
		}
	}
	return &Record{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer holds events until the surrounding batch decides whether they are
// published or dropped.
type Buffer struct {
	events []Event
}

// Emit implements the Emitter interface.
func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Events returns the buffered events in emission order.
func (b *Buffer) Events() []Event {
	if b == nil {
		return nil
	}
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Reset drops every buffered event.
func (b *Buffer) Reset() {
	if b == nil {
		return
	}
	b.events = nil
}
