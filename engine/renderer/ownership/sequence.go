package ownership

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Sequence checks that barriers arrive in protocol order on every slot and that each acquire
// names the families its matching release used.
type Sequence struct {
	mu      sync.Mutex
	next    map[int]Phase
	release map[int]Barrier
}

// NewSequence creates an empty sequence checker.
func NewSequence() *Sequence {
	return &Sequence{next: map[int]Phase{}, release: map[int]Barrier{}}
}

// Observe validates one barrier.
//
// Parameters:
//   - b: the barrier about to be recorded
//
// Returns:
//   - error: an assertion failure for an out-of-order or mismatched barrier
func (s *Sequence) Observe(b Barrier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := s.next[b.Slot]
	if b.Phase != want {
		return errors.AssertionFailedf("ownership: slot %d expected %s, got %s", b.Slot, want, b.Phase)
	}
	switch b.Phase {
	case PhaseComputeRelease, PhaseGraphicsRelease:
		s.release[b.Slot] = b
	case PhaseGraphicsAcquire:
		if err := matches(s.release[b.Slot], b); err != nil {
			return err
		}
	case PhaseComputeAcquire:
		if prev, ok := s.release[b.Slot]; ok {
			if err := matches(prev, b); err != nil {
				return err
			}
		}
	}
	s.next[b.Slot] = (b.Phase + 1) % 4
	return nil
}

// ObserveAll validates a batch in order.
func (s *Sequence) ObserveAll(bs ...Barrier) error {
	for _, b := range bs {
		if err := s.Observe(b); err != nil {
			return err
		}
	}
	return nil
}

func matches(release, acquire Barrier) error {
	if release.SrcFamily != acquire.SrcFamily || release.DstFamily != acquire.DstFamily {
		return errors.AssertionFailedf("ownership: slot %d %s families %d->%d do not match %s %d->%d",
			acquire.Slot, acquire.Phase, acquire.SrcFamily, acquire.DstFamily,
			release.Phase, release.SrcFamily, release.DstFamily)
	}
	return nil
}
