package likelihoods

import (
	"sync/atomic"
	"testing"

	"github.com/LdDl/replay-go/replay"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendsCoverEveryIndexOnce(t *testing.T) {
	backends := []Backend{CPUBackend{}, NewAcceleratedBackend(1), NewAcceleratedBackend(3), NewAcceleratedBackend(64)}
	for _, backend := range backends {
		for _, n := range []int{0, 1, 7, 100} {
			hits := make([]int32, n)
			backend.ParallelFor(n, func(lo, hi int) {
				for i := lo; i < hi; i++ {
					atomic.AddInt32(&hits[i], 1)
				}
			})
			for i, h := range hits {
				assert.Equal(t, int32(1), h, "backend %s, n=%d, index %d", backend.Name(), n, i)
			}
		}
	}
}

func TestAcceleratedBackendUnavailable(t *testing.T) {
	backend := NewAcceleratedBackend(0)
	assert.False(t, backend.Available())
	_, err := backend.Acquire()
	assert.True(t, errors.Is(err, replay.ErrDeviceUnavailable))
}

func TestAcceleratedBackendEnv(t *testing.T) {
	t.Setenv(AcceleratorEnv, "off")
	assert.False(t, NewDefaultAcceleratedBackend().Available())
	t.Setenv(AcceleratorEnv, "")
	assert.True(t, NewDefaultAcceleratedBackend().Available())
}

func TestAcceleratedBackendExclusive(t *testing.T) {
	backend := NewAcceleratedBackend(2)
	release, err := backend.Acquire()
	require.NoError(t, err)
	assert.False(t, backend.device.TryAcquire(1), "device must be held until release")
	release()
	assert.True(t, backend.device.TryAcquire(1))
	backend.device.Release(1)
}
