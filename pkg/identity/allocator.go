// Package identity mints ids for newly created users. Allocated ids must be
// disjoint from every id currently known to either source, and two
// concurrent creations must never receive the same id.
package identity

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/errors"
	"github.com/overlaykit/userdir/pkg/interfaces"
)

// Allocator hands out ids above everything it has ever seen. The counter is
// ratcheted to max(known)+1 on every call and only moves forward, so two
// in-process allocations racing on the same snapshot still claim distinct
// candidates. Each candidate is re-verified against the overlay store right
// before it is handed out.
type Allocator struct {
	overlay     interfaces.Overlay
	logger      interfaces.Logger
	maxAttempts uint

	next atomic.Uint64
}

var _ interfaces.Allocator = (*Allocator)(nil)

// NewAllocator creates a new allocator backed by the given overlay store
func NewAllocator(overlay interfaces.Overlay, cfg config.AllocatorConfig, log interfaces.Logger) *Allocator {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Allocator{
		overlay:     overlay,
		logger:      log,
		maxAttempts: uint(attempts),
	}
}

// Allocate returns an id disjoint from the given set of known ids. The
// counter ratchet guarantees the candidate exceeds every id in the snapshot;
// the overlay re-check catches records that appeared after the snapshot was
// taken. A candidate found taken is dropped and the next one tried, a
// bounded number of times.
func (a *Allocator) Allocate(ctx context.Context, known map[uint64]struct{}) (uint64, error) {
	var top uint64
	for id := range known {
		if id > top {
			top = id
		}
	}
	a.ratchet(top + 1)

	var (
		allocated uint64
		storeErr  error
	)

	err := retry.Do(
		func() error {
			candidate := a.next.Add(1) - 1

			exists, checkErr := a.overlay.ExistsByID(ctx, candidate)
			if checkErr != nil {
				storeErr = checkErr
				return retry.Unrecoverable(checkErr)
			}
			if exists {
				a.logger.Warn("allocated id already taken", map[string]interface{}{
					"candidate": candidate,
				})
				return errors.NewIdentityCollisionError(candidate)
			}

			allocated = candidate
			return nil
		},
		retry.Attempts(a.maxAttempts),
		retry.Delay(10*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		// retry-go's unrecoverable wrapper hides the error chain; hand the
		// store fault back as-is.
		if storeErr != nil {
			return 0, storeErr
		}
		return 0, err
	}

	return allocated, nil
}

// ratchet raises the counter to at least the given value
func (a *Allocator) ratchet(to uint64) {
	for {
		cur := a.next.Load()
		if cur >= to {
			return
		}
		if a.next.CompareAndSwap(cur, to) {
			return
		}
	}
}
