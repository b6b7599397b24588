package ownership

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrFenceTimeout is returned when a fence does not signal within the configured bound.
var ErrFenceTimeout = errors.New("ownership: fence wait timed out")

// Fence is a host-visible completion signal for one compute submission.
type Fence interface {
	// Wait blocks for at most timeout and reports whether the fence signalled.
	Wait(timeout time.Duration) (bool, error)
	// Reset returns the fence to the unsignalled state.
	Reset() error
}

// Semaphore orders a compute submission before a graphics submission on the device.
type Semaphore interface {
	Label() string
}

const fencePollSlice = 5 * time.Millisecond

// WaitFence waits for a fence in short slices so that cancellation is noticed promptly.
//
// Parameters:
//   - ctx: cancels the wait
//   - f: the fence
//   - timeout: upper bound on the total wait; zero or negative waits once without blocking
//
// Returns:
//   - error: nil once signalled, the context error when cancelled, ErrFenceTimeout past the bound
func WaitFence(ctx context.Context, f Fence, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		slice := min(fencePollSlice, max(time.Until(deadline), 0))
		ok, err := f.Wait(slice)
		if err != nil {
			return errors.Wrap(err, "ownership: wait fence")
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return errors.Wrapf(ErrFenceTimeout, "after %s", timeout)
		}
	}
}
