package service

import "sync"

// Event notifies collaborators that a diagram was generated or a generation
// attempt failed. State is committed before publishing; a lost event never
// corrupts anything because the diagram rows remain the source of truth.
type Event struct {
	Type           string `json:"type"`
	ConversationId uint   `json:"conversation_id"`
	DiagramId      uint   `json:"diagram_id,omitempty"`
	Version        int    `json:"version,omitempty"`
	Error          string `json:"error,omitempty"`
}

const (
	EventDiagramGenerated = "diagram.generated"
	EventDiagramModified  = "diagram.modified"
	EventGenerationFailed = "diagram.generation_failed"
)

// EventBus is an in-process publish/subscribe channel per conversation.
// Publishing never blocks: subscribers that fall behind miss events and
// re-query instead.
type EventBus struct {
	mu   sync.Mutex
	subs map[uint]map[chan Event]struct{}
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[uint]map[chan Event]struct{})}
}

// Subscribe registers a listener for one conversation and returns the
// channel plus a cancel function.
func (b *EventBus) Subscribe(conversationId uint) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	b.mu.Lock()
	if b.subs[conversationId] == nil {
		b.subs[conversationId] = make(map[chan Event]struct{})
	}
	b.subs[conversationId][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[conversationId]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, conversationId)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *EventBus) Publish(conversationId uint, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[conversationId] {
		select {
		case ch <- event:
		default:
		}
	}
}
