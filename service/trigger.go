package service

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TriggerState is the per-conversation generation state machine.
type TriggerState int

const (
	// TriggerIdle: not enough technical signal accumulated.
	TriggerIdle TriggerState = iota
	// TriggerPending: the qualifying-message threshold was reached and
	// exactly one generation should run.
	TriggerPending
	// TriggerGenerated: a diagram exists for the current burst of signal.
	TriggerGenerated
)

func (s TriggerState) String() string {
	switch s {
	case TriggerPending:
		return "PENDING_GENERATION"
	case TriggerGenerated:
		return "GENERATED"
	default:
		return "IDLE"
	}
}

// convState carries everything that must be serialized per conversation:
// the mutex guarding ingest/generate/modify, the trigger state, and the
// lifetime context that deletion cancels.
type convState struct {
	mu      sync.Mutex
	trigger TriggerState
	ctx     context.Context
	cancel  context.CancelFunc
}

// Registry owns per-conversation state. Different conversations proceed
// fully in parallel; all mutable state for one conversation funnels
// through its convState.
type Registry struct {
	mu     sync.Mutex
	states map[uint]*convState

	// flight collapses concurrent generation triggers for the same
	// conversation into one in-flight call.
	flight singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{states: make(map[uint]*convState)}
}

func (r *Registry) state(conversationId uint) *convState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[conversationId]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		s = &convState{trigger: TriggerIdle, ctx: ctx, cancel: cancel}
		r.states[conversationId] = s
	}
	return s
}

// Lock acquires the conversation's mutual-exclusion scope and returns the
// unlock function.
func (r *Registry) Lock(conversationId uint) func() {
	s := r.state(conversationId)
	s.mu.Lock()
	return s.mu.Unlock
}

// Trigger returns the current trigger state. Callers must hold the
// conversation lock.
func (r *Registry) Trigger(conversationId uint) TriggerState {
	return r.state(conversationId).trigger
}

// SetTrigger updates the trigger state. Callers must hold the conversation
// lock.
func (r *Registry) SetTrigger(conversationId uint, state TriggerState) {
	r.state(conversationId).trigger = state
}

// Context returns a context that is cancelled when the conversation is
// deleted. Model calls for the conversation derive from it so deletion
// interrupts them instead of waiting behind them.
func (r *Registry) Context(conversationId uint) context.Context {
	return r.state(conversationId).ctx
}

// Cancel interrupts in-flight work for the conversation. It deliberately
// does not take the conversation lock: the point is to unblock whoever
// holds it.
func (r *Registry) Cancel(conversationId uint) {
	r.state(conversationId).cancel()
}

// Forget drops per-conversation state after deletion. A later access for
// the same id gets a fresh state and fails at the row lookup instead.
func (r *Registry) Forget(conversationId uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[conversationId]; ok {
		s.cancel()
		delete(r.states, conversationId)
	}
}
