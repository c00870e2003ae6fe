package likelihoods

import (
	"context"
	"os"
	"runtime"
	"strings"

	"github.com/LdDl/replay-go/replay"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Backend runs the numeric kernels of an algorithm. Implementations must
// produce bit-identical results: every output element is computed by one
// call of fn, in the same order, whichever backend runs it.
type Backend interface {
	// Name returns a short backend name for logs
	Name() string
	// Acquire reserves the backend for one fit or estimate call
	Acquire() (release func(), err error)
	// ParallelFor covers [0, n) with calls fn(lo, hi) over disjoint blocks
	ParallelFor(n int, fn func(lo, hi int))
}

// CPUBackend runs everything on the calling goroutine
type CPUBackend struct{}

// Name implements Backend
func (CPUBackend) Name() string { return "cpu" }

// Acquire implements Backend. The CPU is always available.
func (CPUBackend) Acquire() (func(), error) { return func() {}, nil }

// ParallelFor implements Backend
func (CPUBackend) ParallelFor(n int, fn func(lo, hi int)) {
	if n > 0 {
		fn(0, n)
	}
}

// AcceleratorEnv disables the accelerated backend when set to "off", "0" or "false"
const AcceleratorEnv = "REPLAY_ACCELERATOR"

// AcceleratedBackend splits kernels into blocks evaluated by a pool of
// workers. A call holds the backend exclusively from Acquire to release.
type AcceleratedBackend struct {
	workers int
	device  *semaphore.Weighted
}

// NewAcceleratedBackend creates a backend with the given number of workers.
// With no workers the backend reports itself unavailable.
func NewAcceleratedBackend(workers int) *AcceleratedBackend {
	return &AcceleratedBackend{
		workers: workers,
		device:  semaphore.NewWeighted(1),
	}
}

// NewDefaultAcceleratedBackend uses one worker per CPU unless disabled via AcceleratorEnv
func NewDefaultAcceleratedBackend() *AcceleratedBackend {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(AcceleratorEnv))) {
	case "off", "0", "false":
		return NewAcceleratedBackend(0)
	}
	return NewAcceleratedBackend(runtime.NumCPU())
}

// Name implements Backend
func (b *AcceleratedBackend) Name() string { return "accelerated" }

// Available reports whether the backend can serve calls
func (b *AcceleratedBackend) Available() bool {
	return b != nil && b.workers > 0
}

// Acquire implements Backend. It fails with ErrDeviceUnavailable instead of
// falling back to the CPU.
func (b *AcceleratedBackend) Acquire() (func(), error) {
	if !b.Available() {
		return nil, errors.Wrap(replay.ErrDeviceUnavailable, "accelerated backend has no workers")
	}
	if err := b.device.Acquire(context.Background(), 1); err != nil {
		return nil, errors.Wrap(replay.ErrDeviceUnavailable, err.Error())
	}
	return func() { b.device.Release(1) }, nil
}

// ParallelFor implements Backend
func (b *AcceleratedBackend) ParallelFor(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}
	blockSize := (n + b.workers - 1) / b.workers
	var g errgroup.Group
	g.SetLimit(b.workers)
	for lo := 0; lo < n; lo += blockSize {
		lo := lo
		hi := lo + blockSize
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
