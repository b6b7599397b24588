package cull

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
)

// FrameState is where one frame's cull work stands.
type FrameState uint8

const (
	// StateIdle means no cull work is outstanding; the indirect slot may be rewritten.
	StateIdle FrameState = iota
	// StateDispatched means the cull dispatch was submitted and its fence has not signalled.
	StateDispatched
	// StateFenceSignaled means the counts are final and graphics may consume them.
	StateFenceSignaled
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatched:
		return "dispatched"
	case StateFenceSignaled:
		return "fence-signaled"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrIllegalTransition is returned for any transition outside Idle -> Dispatched -> FenceSignaled -> Idle.
var ErrIllegalTransition = errors.New("cull: illegal frame state transition")

// Tracker holds the cull state of each ring slot.
type Tracker struct {
	mu     sync.Mutex
	states []FrameState
}

// NewTracker creates a tracker for slots ring slots, all idle.
func NewTracker(slots int) *Tracker {
	return &Tracker{states: make([]FrameState, max(slots, 1))}
}

func (t *Tracker) transition(slot int, from, to FrameState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.states[slot%len(t.states)]
	if cur != from {
		return errors.Wrapf(ErrIllegalTransition, "slot %d: %s -> %s, currently %s", slot, from, to, cur)
	}
	t.states[slot%len(t.states)] = to
	return nil
}

// Dispatch marks a slot's cull work as submitted.
func (t *Tracker) Dispatch(slot int) error {
	return t.transition(slot, StateIdle, StateDispatched)
}

// Signal marks a slot's fence as signalled.
func (t *Tracker) Signal(slot int) error {
	return t.transition(slot, StateDispatched, StateFenceSignaled)
}

// Consume returns a slot to idle once graphics has read it.
func (t *Tracker) Consume(slot int) error {
	return t.transition(slot, StateFenceSignaled, StateIdle)
}

// State returns the current state of a slot.
func (t *Tracker) State(slot int) FrameState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[slot%len(t.states)]
}
